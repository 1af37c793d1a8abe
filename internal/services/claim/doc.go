// Package claim is the companion side of pairing: it seals a JSON payload
// to the public key registered for a pairing code and publishes it.
package claim
