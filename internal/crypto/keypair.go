package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/box"

	"castpair/internal/domain"
	"castpair/internal/util/memzero"
)

var (
	// ErrKeypairWiped is returned when a wiped Keypair is used.
	ErrKeypairWiped = errors.New("keypair has been wiped")
	// ErrOpenFailed is returned when a sealed box cannot be opened.
	ErrOpenFailed = errors.New("sealed box: open failed")
)

// noCopy lets go vet's copylocks check flag accidental copies of a Keypair.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Keypair is an ephemeral X25519 key pair for anonymous sealed boxes.
type Keypair struct {
	noCopy noCopy

	public  domain.X25519Public
	private domain.X25519Private
	wiped   bool
}

// GenerateKeypair returns a fresh key pair from crypto/rand.
func GenerateKeypair() (*Keypair, error) {
	return GenerateKeypairFrom(rand.Reader)
}

// GenerateKeypairFrom returns a fresh key pair read from r.
func GenerateKeypairFrom(r io.Reader) (*Keypair, error) {
	pub, priv, err := box.GenerateKey(r)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	kp := &Keypair{public: *pub, private: *priv}
	memzero.Zero(priv[:])
	return kp, nil
}

// Public returns the public half.
func (k *Keypair) Public() domain.X25519Public { return k.public }

// Fingerprint returns the short fingerprint of the public half.
func (k *Keypair) Fingerprint() domain.Fingerprint {
	return domain.Fingerprint(Fingerprint(k.public.Slice()))
}

// Wiped reports whether Wipe has been called.
func (k *Keypair) Wiped() bool { return k.wiped }

// Wipe zeroes both halves. It is safe to call more than once.
func (k *Keypair) Wipe() {
	memzero.Zero(k.private[:])
	memzero.Zero(k.public[:])
	k.wiped = true
}

// Open decrypts a sealed box addressed to this key pair.
func (k *Keypair) Open(sealed []byte) ([]byte, error) {
	if k.wiped {
		return nil, ErrKeypairWiped
	}
	out, ok := box.OpenAnonymous(
		nil,
		sealed,
		(*[32]byte)(&k.public),
		(*[32]byte)(&k.private),
	)
	if !ok {
		return nil, ErrOpenFailed
	}
	return out, nil
}

var _ domain.KeyOpener = (*Keypair)(nil)
