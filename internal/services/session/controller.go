package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"castpair/internal/crypto"
	"castpair/internal/domain"
	"castpair/internal/metrics"
	"castpair/internal/services/poll"
	"castpair/internal/services/registration"
)

// DefaultRestartPolicy waits before registering again after a code expires.
// The wait starts at the poll interval and doubles up to one minute.
func DefaultRestartPolicy() registration.RetryPolicy {
	return registration.RetryPolicy{Delay: poll.DefaultInterval, Multiplier: 2, MaxDelay: time.Minute}
}

// ErrAlreadyRun is returned when Run is called twice on one Controller.
var ErrAlreadyRun = errors.New("pairing session already run")

// Result is the outcome of a session. Payload is set only when State is
// StateComplete.
type Result struct {
	State    State
	Payload  domain.Payload
	Restarts int
}

// KeyGenerator produces the session keypair.
type KeyGenerator func() (*crypto.Keypair, error)

// Controller orchestrates one pairing session.
type Controller struct {
	id        string
	generate  KeyGenerator
	registrar domain.Registrar
	poller    domain.Poller
	responder domain.HandshakeResponder
	rotate    bool
	restart   registration.RetryPolicy
	clock     clock.Clock
	log       logrus.FieldLogger
	metrics   *metrics.Receiver

	onTransition func(from, to State)
	onCode       func(domain.PairingCode)

	mu    sync.Mutex
	state State
	ran   bool
}

// Option customises a Controller.
type Option func(*Controller)

// WithKeyGenerator replaces crypto.GenerateKeypair.
func WithKeyGenerator(g KeyGenerator) Option { return func(c *Controller) { c.generate = g } }

// WithRotateKeyOnRestart controls whether a new keypair is generated when a
// code expires. The default is true.
func WithRotateKeyOnRestart(rotate bool) Option { return func(c *Controller) { c.rotate = rotate } }

// WithRestartPolicy sets the wait between an expired code and the next
// registration. MaxAttempts is ignored.
func WithRestartPolicy(p registration.RetryPolicy) Option {
	return func(c *Controller) { c.restart = p }
}

// WithClock replaces the wall clock used for restart waits.
func WithClock(clk clock.Clock) Option { return func(c *Controller) { c.clock = clk } }

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option { return func(c *Controller) { c.log = l } }

// WithMetrics counts session outcomes in m.
func WithMetrics(m *metrics.Receiver) Option { return func(c *Controller) { c.metrics = m } }

// OnTransition registers fn to be called on every state change.
func OnTransition(fn func(from, to State)) Option { return func(c *Controller) { c.onTransition = fn } }

// OnCode registers fn to be called with every code the session displays.
func OnCode(fn func(domain.PairingCode)) Option { return func(c *Controller) { c.onCode = fn } }

// New returns a controller for a single session.
func New(
	registrar domain.Registrar,
	poller domain.Poller,
	responder domain.HandshakeResponder,
	opts ...Option,
) *Controller {
	c := &Controller{
		id:        uuid.NewString(),
		generate:  crypto.GenerateKeypair,
		registrar: registrar,
		poller:    poller,
		responder: responder,
		rotate:    true,
		restart:   DefaultRestartPolicy(),
		clock:     clock.New(),
		log:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.restart.Delay <= 0 {
		c.restart.Delay = poll.DefaultInterval
	}
	c.log = c.log.WithFields(logrus.Fields{"component": "session", "session": c.id})
	return c
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Run drives the session to a terminal state. COMPLETE and ABORTED return a
// nil error; FAILED returns the cause.
func (c *Controller) Run(ctx context.Context) (Result, error) {
	c.mu.Lock()
	if c.ran {
		state := c.state
		c.mu.Unlock()
		return Result{State: state}, ErrAlreadyRun
	}
	c.ran = true
	c.mu.Unlock()

	kp, err := c.generate()
	if err != nil {
		return c.fail(Result{}, fmt.Errorf("generate keypair: %w", err))
	}
	defer func() { kp.Wipe() }()

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	armed := false
	defer func() {
		if armed {
			if err := c.responder.Close(); err != nil {
				c.log.WithError(err).Warn("stop discovery channel")
			}
		}
	}()

	res := Result{}
	restartDelay := c.restart.Delay
	for {
		c.transition(StateRegistering)
		code, err := c.registrar.Register(sessCtx, kp.Public())
		if err != nil {
			if c.disconnected() {
				return c.abort(res)
			}
			return c.fail(res, fmt.Errorf("register: %w", err))
		}

		c.transition(StateArmed)
		c.log.WithFields(logrus.Fields{
			"code":        code.String(),
			"fingerprint": kp.Fingerprint().String(),
		}).Info("pairing code ready")
		if c.onCode != nil {
			c.onCode(code)
		}
		if !armed {
			if err := c.responder.Arm(sessCtx, code); err != nil {
				c.log.WithError(err).Error("discovery channel unavailable")
				return c.abort(res)
			}
			armed = true
			go func() {
				select {
				case <-c.responder.Disconnected():
					cancel()
				case <-sessCtx.Done():
				}
			}()
		} else {
			c.responder.SetCode(code)
		}

		payload, err := c.poller.Poll(sessCtx, code, kp)
		switch {
		case c.disconnected():
			return c.abort(res)
		case err == nil:
			c.transition(StateComplete)
			c.metrics.ObserveSession(StateComplete.String())
			res.State = StateComplete
			res.Payload = payload
			return res, nil
		case errors.Is(err, poll.ErrCodeExpired):
			c.transition(StateRestarting)
			c.log.WithError(err).Warn("pairing code expired, registering again")
			c.responder.ClearCode()
			res.Restarts++
			if c.rotate {
				kp.Wipe()
				next, err := c.generate()
				if err != nil {
					return c.fail(res, fmt.Errorf("generate keypair: %w", err))
				}
				kp = next
			}
			c.log.WithField("retry", restartDelay.String()).Debug("waiting before registering again")
			select {
			case <-sessCtx.Done():
				if c.disconnected() {
					return c.abort(res)
				}
				return c.fail(res, sessCtx.Err())
			case <-c.clock.After(restartDelay):
			}
			restartDelay = c.restart.Next(restartDelay)
		default:
			return c.fail(res, err)
		}
	}
}

func (c *Controller) disconnected() bool {
	select {
	case <-c.responder.Disconnected():
		return true
	default:
		return false
	}
}

func (c *Controller) abort(res Result) (Result, error) {
	c.transition(StateAborted)
	c.metrics.ObserveSession(StateAborted.String())
	c.log.Info("pairing aborted")
	res.State = StateAborted
	return res, nil
}

func (c *Controller) fail(res Result, err error) (Result, error) {
	c.transition(StateFailed)
	c.metrics.ObserveSession(StateFailed.String())
	c.log.WithError(err).Error("pairing failed")
	res.State = StateFailed
	return res, err
}

func (c *Controller) transition(to State) {
	c.mu.Lock()
	from := c.state
	if !canTransition(from, to) {
		c.mu.Unlock()
		panic(fmt.Sprintf("session: illegal transition %s -> %s", from, to))
	}
	c.state = to
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{"from": from.String(), "to": to.String()}).Debug("state change")
	if c.onTransition != nil {
		c.onTransition(from, to)
	}
}
