package interfaces

import (
	"context"

	domaintypes "castpair/internal/domain/types"
)

// MessageHandler receives a raw message from a sender on a namespace.
type MessageHandler func(sender domaintypes.SenderID, data []byte)

// DisconnectHandler is told when a sender goes away. An empty sender means
// the channel itself closed.
type DisconnectHandler func(sender domaintypes.SenderID)

// DiscoveryChannel is the local low-bandwidth transport used to hand the
// pairing code to a nearby companion. Handlers must be added before Start.
type DiscoveryChannel interface {
	Start(ctx context.Context, opts domaintypes.ChannelOptions) error
	OnMessage(namespace domaintypes.Namespace, handler MessageHandler)
	OnDisconnect(handler DisconnectHandler)
	Send(namespace domaintypes.Namespace, to domaintypes.SenderID, payload []byte) error
	Stop() error
}
