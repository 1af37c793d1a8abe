package registration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"castpair/internal/crypto"
	"castpair/internal/domain"
	"castpair/internal/metrics"
)

// DefaultRetryDelay is the wait between failed registration attempts.
const DefaultRetryDelay = 10 * time.Second

// ErrAttemptsExhausted is returned when a bounded policy runs out of attempts.
var ErrAttemptsExhausted = errors.New("registration attempts exhausted")

// RetryPolicy controls the wait between failed attempts.
type RetryPolicy struct {
	// Delay is the wait after the first failure.
	Delay time.Duration
	// Multiplier grows the delay after each failure. Values <= 1 keep it fixed.
	Multiplier float64
	// MaxDelay caps a growing delay. Zero means no cap.
	MaxDelay time.Duration
	// MaxAttempts bounds the number of attempts. Zero means unbounded.
	MaxAttempts int
}

// DefaultRetryPolicy retries forever every DefaultRetryDelay.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Delay: DefaultRetryDelay, Multiplier: 1}
}

// Next returns the delay that follows d.
func (p RetryPolicy) Next(d time.Duration) time.Duration {
	if p.Multiplier <= 1 {
		return d
	}
	n := time.Duration(float64(d) * p.Multiplier)
	if p.MaxDelay > 0 && n > p.MaxDelay {
		n = p.MaxDelay
	}
	return n
}

// Service registers public keys with the pairing service.
type Service struct {
	client  domain.PairingClient
	policy  RetryPolicy
	clock   clock.Clock
	log     logrus.FieldLogger
	metrics *metrics.Receiver
}

// Option customises a Service.
type Option func(*Service)

// WithPolicy replaces the default retry policy.
func WithPolicy(p RetryPolicy) Option { return func(s *Service) { s.policy = p } }

// WithClock sets the clock used for retry delays.
func WithClock(c clock.Clock) Option { return func(s *Service) { s.clock = c } }

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option { return func(s *Service) { s.log = l } }

// WithMetrics counts attempts in m.
func WithMetrics(m *metrics.Receiver) Option { return func(s *Service) { s.metrics = m } }

// New returns a registration service using client.
func New(client domain.PairingClient, opts ...Option) *Service {
	s := &Service{
		client: client,
		policy: DefaultRetryPolicy(),
		clock:  clock.New(),
		log:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.policy.Delay <= 0 {
		s.policy.Delay = DefaultRetryDelay
	}
	return s
}

// Register returns the first code the service issues for publicKey.
func (s *Service) Register(ctx context.Context, publicKey domain.X25519Public) (domain.PairingCode, error) {
	encoded := crypto.B64(publicKey.Slice())
	log := s.log.WithFields(logrus.Fields{
		"component":   "registration",
		"fingerprint": crypto.Fingerprint(publicKey.Slice()),
	})

	delay := s.policy.Delay
	for attempt := 1; ; attempt++ {
		code, err := s.client.RegisterDevice(ctx, encoded)
		s.metrics.ObserveRegistration(err)
		if err == nil {
			log.WithField("attempt", attempt).Debug("registered public key")
			return code, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if s.policy.MaxAttempts > 0 && attempt >= s.policy.MaxAttempts {
			return "", fmt.Errorf("%w after %d attempts: %w", ErrAttemptsExhausted, attempt, err)
		}

		log.WithError(err).WithFields(logrus.Fields{
			"attempt": attempt,
			"retry":   delay.String(),
		}).Error("failed to register public key with server")

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-s.clock.After(delay):
		}
		delay = s.policy.Next(delay)
	}
}

var _ domain.Registrar = (*Service)(nil)
