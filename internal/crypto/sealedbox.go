package crypto

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/nacl/box"

	"castpair/internal/domain"
)

// SealOverhead is the number of bytes a sealed box adds to the message.
const SealOverhead = box.AnonymousOverhead

// Seal encrypts msg so that only the holder of the private key matching
// recipient can open it. The sender stays anonymous.
func Seal(recipient domain.X25519Public, msg []byte) ([]byte, error) {
	sealed, err := box.SealAnonymous(nil, msg, (*[32]byte)(&recipient), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("seal: %w", err)
	}
	return sealed, nil
}
