// Package relay provides an HTTP implementation of the pairing service
// clients used by castpair.
//
// The pairing service is an untrusted middleman: it binds a device's public
// key to a short code and holds the payload a companion sealed to that key
// until the device fetches it. It never sees plaintext or private keys.
//
// Supported operations include:
//   - Registering a device public key and receiving a pairing code.
//   - Fetching the sealed payload claimed for a code.
//   - Looking up the public key registered for a code (companion side).
//   - Publishing a sealed payload for a code (companion side).
//
// All requests are JSON over HTTP and accept a context for cancellation and
// deadlines. Non-2xx statuses are returned as *StatusError values carrying
// the HTTP method, path and status text to aid diagnostics. A 404 from the
// fetch endpoint means nothing has been claimed yet and is not an error.
package relay
