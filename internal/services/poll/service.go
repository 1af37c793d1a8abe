package poll

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"castpair/internal/crypto"
	"castpair/internal/domain"
	"castpair/internal/metrics"
	"castpair/internal/util/memzero"
)

// DefaultInterval is the wait between fetches that found nothing.
const DefaultInterval = 3 * time.Second

// ErrCodeExpired means the fetch RPC failed and the code should be treated as dead.
var ErrCodeExpired = errors.New("pairing code expired")

// Decryption stages reported by DecryptionError.
const (
	StageDecodeCiphertext = "decode ciphertext"
	StageOpen             = "open sealed box"
	StageDecodePlaintext  = "decode plaintext"
	StageParse            = "parse json"
)

// DecryptionError reports a ciphertext that can never become valid.
type DecryptionError struct {
	Stage string
	Err   error
}

func (e *DecryptionError) Error() string {
	return fmt.Sprintf("decrypt payload: %s: %v", e.Stage, e.Err)
}

func (e *DecryptionError) Unwrap() error { return e.Err }

// Service polls the pairing service for claimed payloads.
type Service struct {
	client   domain.PairingClient
	interval time.Duration
	clock    clock.Clock
	log      logrus.FieldLogger
	metrics  *metrics.Receiver
}

// Option customises a Service.
type Option func(*Service)

// WithInterval sets the wait between empty fetches.
func WithInterval(d time.Duration) Option { return func(s *Service) { s.interval = d } }

// WithClock sets the clock used for the poll interval.
func WithClock(c clock.Clock) Option { return func(s *Service) { s.clock = c } }

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option { return func(s *Service) { s.log = l } }

// WithMetrics counts fetches in m.
func WithMetrics(m *metrics.Receiver) Option { return func(s *Service) { s.metrics = m } }

// New returns a poller using client.
func New(client domain.PairingClient, opts ...Option) *Service {
	s := &Service{
		client:   client,
		interval: DefaultInterval,
		clock:    clock.New(),
		log:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.interval <= 0 {
		s.interval = DefaultInterval
	}
	return s
}

// Poll fetches until a payload is claimed for code, then opens it with key.
func (s *Service) Poll(
	ctx context.Context,
	code domain.PairingCode,
	key domain.KeyOpener,
) (domain.Payload, error) {
	log := s.log.WithFields(logrus.Fields{"component": "poll", "code": code.String()})
	for polls := 1; ; polls++ {
		enc, err := s.client.FetchCastData(ctx, code)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.metrics.ObservePoll(metrics.PollError)
			log.WithError(err).Warn("fetch failed, treating code as expired")
			return nil, fmt.Errorf("%w: %w", ErrCodeExpired, err)
		}
		if enc != "" {
			s.metrics.ObservePoll(metrics.PollCiphertext)
			log.WithField("polls", polls).Info("received claimed payload")
			return Decrypt(enc, key)
		}
		s.metrics.ObservePoll(metrics.PollEmpty)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.clock.After(s.interval):
		}
	}
}

// Decrypt opens a base64 sealed payload with key and parses the JSON object inside.
func Decrypt(enc string, key domain.KeyOpener) (domain.Payload, error) {
	sealed, err := crypto.DecodeB64(enc)
	if err != nil {
		return nil, &DecryptionError{Stage: StageDecodeCiphertext, Err: err}
	}
	inner, err := key.Open(sealed)
	if err != nil {
		return nil, &DecryptionError{Stage: StageOpen, Err: err}
	}
	defer memzero.Zero(inner)

	raw := make([]byte, base64.StdEncoding.DecodedLen(len(inner)))
	defer memzero.Zero(raw)
	n, err := base64.StdEncoding.Decode(raw, bytes.TrimSpace(inner))
	if err != nil {
		return nil, &DecryptionError{Stage: StageDecodePlaintext, Err: err}
	}

	payload, err := parseObject(raw[:n])
	if err != nil {
		return nil, &DecryptionError{Stage: StageParse, Err: err}
	}
	return payload, nil
}

func parseObject(b []byte) (domain.Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var out domain.Payload
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, errors.New("payload is not a JSON object")
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after JSON object")
	}
	return out, nil
}

var _ domain.Poller = (*Service)(nil)
