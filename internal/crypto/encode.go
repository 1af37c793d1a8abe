package crypto

import (
	"encoding/base64"
	"fmt"
	"strings"

	"castpair/internal/domain"
)

// B64 returns standard base64 encoding without newlines.
func B64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

// DecodeB64 decodes standard base64, ignoring surrounding whitespace.
func DecodeB64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(strings.TrimSpace(s))
}

// DecodePublicKey decodes a base64 X25519 public key.
func DecodePublicKey(s string) (domain.X25519Public, error) {
	var pub domain.X25519Public
	b, err := DecodeB64(s)
	if err != nil {
		return pub, fmt.Errorf("decode public key: %w", err)
	}
	if len(b) != len(pub) {
		return pub, fmt.Errorf("decode public key: want %d bytes, got %d", len(pub), len(b))
	}
	copy(pub[:], b)
	return pub, nil
}
