package discovery

import (
	"encoding/json"
	"errors"
	"time"

	"castpair/internal/domain"
)

// DefaultMaxInactivity is how long a silent sender stays connected.
const DefaultMaxInactivity = 3600 * time.Second

var (
	// ErrChannelClosed is returned when sending on a stopped channel.
	ErrChannelClosed = errors.New("discovery channel closed")
	// ErrUnknownSender is returned when sending to a sender that is not connected.
	ErrUnknownSender = errors.New("discovery: unknown sender")
	// ErrChannelStart wraps failures to start listening.
	ErrChannelStart = errors.New("discovery channel failed to start")
)

// DefaultOptions returns the listening options used for pairing.
func DefaultOptions() domain.ChannelOptions {
	return domain.ChannelOptions{
		MaxInactivity:      DefaultMaxInactivity,
		DisableIdleTimeout: true,
	}
}

// Frame is one message on the websocket transport.
type Frame struct {
	Namespace domain.Namespace `json:"namespace"`
	Data      json.RawMessage  `json:"data"`
}
