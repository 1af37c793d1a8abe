package interfaces

import (
	"context"

	domaintypes "castpair/internal/domain/types"
)

// PairingClient is the receiver's view of the pairing service.
type PairingClient interface {
	// RegisterDevice exchanges a base64 public key for a pairing code.
	RegisterDevice(ctx context.Context, publicKey string) (domaintypes.PairingCode, error)
	// FetchCastData returns the base64 sealed payload claimed for code, or
	// "" with a nil error when nothing has been claimed yet.
	FetchCastData(ctx context.Context, code domaintypes.PairingCode) (string, error)
}

// ClaimClient is the companion's view of the pairing service.
type ClaimClient interface {
	FetchDevicePublicKey(ctx context.Context, code domaintypes.PairingCode) (string, error)
	PublishCastData(ctx context.Context, code domaintypes.PairingCode, encPayload string) error
}
