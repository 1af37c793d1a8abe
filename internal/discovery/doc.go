// Package discovery implements the local channel a receiver uses to hand its
// pairing code to a nearby companion.
//
// Adapter wraps any domain.DiscoveryChannel: it answers every handshake
// request on the pairing namespace with the code currently held, and on the
// first sender disconnect it stops the channel exactly once and signals
// abort. A request must be an empty JSON object; anything else is ignored. Only HandshakeReply messages are ever sent; payloads travel through
// the pairing service, sealed end to end.
//
// Two channels are provided:
//
//   - WebSocketChannel serves the channel over a local websocket endpoint.
//     Each connection is a sender with a random id. Messages are Frame JSON
//     objects. Probe is the matching companion-side dialer.
//   - Loopback is an in-process channel whose messages and disconnects are
//     driven by the caller. Tests use it in place of a real transport.
package discovery
