package crypto

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint returns a short hex fingerprint of a device public key.
//
// Log entries identify a registered key by its fingerprint so the key itself
// never reaches a log line. It hashes with SHA-256 and truncates to 10 bytes
// (20 hex chars).
func Fingerprint(pub []byte) string {
	sum := sha256.Sum256(pub)
	return hex.EncodeToString(sum[:10])
}
