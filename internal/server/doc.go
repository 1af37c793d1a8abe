// Package server implements the in-memory pairing service used during
// development and tests.
//
// HTTP API
//
//	POST /cast/device-info {"publicKey": "<base64>"}
//	    Register a device public key. Returns {"deviceCode": "<code>"}.
//
//	GET /cast/device-info/{code}
//	    Return {"publicKey": "<base64>"} for a live code, 404 otherwise.
//
//	POST /cast/cast-data {"deviceCode": "<code>", "encPayload": "<base64>"}
//	    Attach a sealed payload to a live code. A code can be claimed once.
//
//	GET /cast/cast-data/{code}
//	    Return {"encCastData": "<base64>"} once claimed, or an empty string
//	    while waiting. Unknown and expired codes return 410 Gone.
//
//	GET /metrics
//	    Prometheus metrics.
//
// Behaviour
//
//   - All state is held in memory and lost on process exit.
//   - Codes are six characters from an alphabet without 0/O or 1/I and
//     expire after the configured TTL.
//   - Claimed data is deleted once fetched, together with its code.
//   - The server never sees plaintext or private keys.
package server
