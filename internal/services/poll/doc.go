// Package poll waits for a companion to claim a pairing code and decrypts
// the payload it sealed to the device.
//
// The fetch RPC is called with at most one request in flight. An empty
// answer means "not yet" and is retried after the poll interval. A
// transport or server error is reported as ErrCodeExpired so the session
// can register again instead of polling a dead code forever. A non-empty
// answer is decrypted exactly once; any failure there is a *DecryptionError
// and is never retried.
//
// # Payload encoding
//
// The fetch RPC returns base64(seal(base64(json))). Decrypt reverses each
// layer and requires the JSON to be an object.
package poll
