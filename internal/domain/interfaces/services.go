package interfaces

import (
	"context"

	domaintypes "castpair/internal/domain/types"
)

// KeyOpener opens sealed boxes addressed to its public key.
type KeyOpener interface {
	Public() domaintypes.X25519Public
	Open(sealed []byte) ([]byte, error)
}

// Registrar obtains a pairing code for a public key.
type Registrar interface {
	Register(ctx context.Context, publicKey domaintypes.X25519Public) (domaintypes.PairingCode, error)
}

// Poller waits for a payload to be claimed for code and decrypts it.
type Poller interface {
	Poll(
		ctx context.Context,
		code domaintypes.PairingCode,
		key KeyOpener,
	) (domaintypes.Payload, error)
}

// HandshakeResponder answers discovery probes with the code it holds.
type HandshakeResponder interface {
	Arm(ctx context.Context, code domaintypes.PairingCode) error
	SetCode(code domaintypes.PairingCode)
	ClearCode()
	Disconnected() <-chan struct{}
	Close() error
}

// Claimer seals a payload to a paired device.
type Claimer interface {
	Claim(ctx context.Context, code domaintypes.PairingCode, payload []byte) error
}
