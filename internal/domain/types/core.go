package types

// PairingCode is the short code the pairing service issues for a registered
// public key.
type PairingCode string

// String returns the string form of the code.
func (c PairingCode) String() string { return string(c) }

// SenderID identifies a peer connected over the discovery channel.
type SenderID string

// String returns the string form of the sender identifier.
func (id SenderID) String() string { return string(id) }

// Namespace names a message stream on the discovery channel.
type Namespace string

// String returns the string form of the namespace.
func (n Namespace) String() string { return string(n) }

// Fingerprint is a short identifier for public keys presented to users and logs.
type Fingerprint string

// String returns the string form of the fingerprint.
func (f Fingerprint) String() string { return string(f) }
