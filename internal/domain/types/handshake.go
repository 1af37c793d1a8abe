package types

import "time"

// PairNamespace is the discovery namespace reserved for pairing handshakes.
const PairNamespace Namespace = "urn:x-cast:pair-request"

// HandshakeRequest is the empty probe a companion sends to learn the code.
type HandshakeRequest struct{}

// HandshakeReply answers a probe. It is the only thing the receiver ever
// sends over the discovery channel.
type HandshakeReply struct {
	Code PairingCode `json:"code"`
}

// ChannelOptions configure how the discovery channel listens.
type ChannelOptions struct {
	// MaxInactivity is how long a connected sender may stay silent before it
	// is considered gone.
	MaxInactivity time.Duration
	// DisableIdleTimeout keeps the channel open while no sender is connected.
	DisableIdleTimeout bool
}
