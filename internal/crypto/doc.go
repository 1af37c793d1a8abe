// Package crypto exposes the minimal primitives used by castpair.
//
// Contents
//
//   - Ephemeral X25519 key pairs for anonymous sealed boxes (GenerateKeypair)
//   - Sealing to a public key and opening with a Keypair (Seal, Keypair.Open),
//     compatible with libsodium's crypto_box_seal
//   - Base64 helpers for the wire encoding (B64, DecodeB64)
//   - Short public-key fingerprints for display/logging (Fingerprint)
//
// # Notes
//
// A Keypair is owned by exactly one pairing session. It must not be copied;
// hold it by pointer and call Wipe on every exit path. Private key bytes
// never leave the Keypair.
package crypto
