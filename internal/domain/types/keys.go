package types

// X25519Public is a Curve25519 public key.
type X25519Public [32]byte

// Slice returns the key as a []byte.
func (p X25519Public) Slice() []byte { return p[:] }

// X25519Private is a Curve25519 private key. It has no byte accessor; only
// crypto.Keypair reads it, in place.
type X25519Private [32]byte
