package claim

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"castpair/internal/crypto"
	"castpair/internal/domain"
)

// ErrNotObject is returned when the payload is not a JSON object.
var ErrNotObject = errors.New("payload must be a JSON object")

// Service claims pairing codes on behalf of a companion.
type Service struct {
	client domain.ClaimClient
	log    logrus.FieldLogger
}

// New returns a claim service. A nil logger means the standard logger.
func New(client domain.ClaimClient, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{client: client, log: log}
}

// Claim seals payload to the device that registered code and publishes it.
func (s *Service) Claim(ctx context.Context, code domain.PairingCode, payload []byte) error {
	pubB64, err := s.client.FetchDevicePublicKey(ctx, code)
	if err != nil {
		return fmt.Errorf("look up device for code %s: %w", code, err)
	}
	pub, err := crypto.DecodePublicKey(pubB64)
	if err != nil {
		return err
	}
	enc, err := EncryptPayload(pub, payload)
	if err != nil {
		return err
	}
	if err := s.client.PublishCastData(ctx, code, enc); err != nil {
		return fmt.Errorf("publish payload for code %s: %w", code, err)
	}
	s.log.WithFields(logrus.Fields{
		"component":   "claim",
		"code":        code.String(),
		"fingerprint": crypto.Fingerprint(pub.Slice()),
	}).Info("claimed pairing code")
	return nil
}

// EncryptPayload produces base64(seal(base64(payload))) for recipient.
func EncryptPayload(recipient domain.X25519Public, payload []byte) (string, error) {
	trimmed := bytes.TrimSpace(payload)
	if !json.Valid(trimmed) || len(trimmed) == 0 || trimmed[0] != '{' {
		return "", ErrNotObject
	}
	sealed, err := crypto.Seal(recipient, []byte(crypto.B64(trimmed)))
	if err != nil {
		return "", err
	}
	return crypto.B64(sealed), nil
}

var _ domain.Claimer = (*Service)(nil)
