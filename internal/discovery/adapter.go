package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"castpair/internal/domain"
	"castpair/internal/metrics"
)

// Adapter answers pairing probes on a discovery channel.
type Adapter struct {
	ch        domain.DiscoveryChannel
	namespace domain.Namespace
	opts      domain.ChannelOptions
	log       logrus.FieldLogger
	metrics   *metrics.Receiver

	code     atomic.Pointer[domain.PairingCode]
	stopped  atomic.Bool
	stopOnce sync.Once
	stopErr  error
	aborted  chan struct{}
}

// AdapterOption customises an Adapter.
type AdapterOption func(*Adapter)

// WithNamespace overrides the pairing namespace.
func WithNamespace(ns domain.Namespace) AdapterOption {
	return func(a *Adapter) { a.namespace = ns }
}

// WithOptions overrides the channel listening options.
func WithOptions(o domain.ChannelOptions) AdapterOption {
	return func(a *Adapter) { a.opts = o }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) AdapterOption {
	return func(a *Adapter) { a.log = l }
}

// WithMetrics counts replies in m.
func WithMetrics(m *metrics.Receiver) AdapterOption {
	return func(a *Adapter) { a.metrics = m }
}

// NewAdapter wraps ch.
func NewAdapter(ch domain.DiscoveryChannel, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		ch:        ch,
		namespace: domain.PairNamespace,
		opts:      DefaultOptions(),
		log:       logrus.StandardLogger(),
		aborted:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = a.log.WithField("component", "discovery")
	return a
}

// Arm holds code, installs the handlers and starts the channel.
func (a *Adapter) Arm(ctx context.Context, code domain.PairingCode) error {
	a.SetCode(code)
	a.ch.OnMessage(a.namespace, a.handleProbe)
	a.ch.OnDisconnect(a.handleDisconnect)
	if err := a.ch.Start(ctx, a.opts); err != nil {
		a.stop()
		return fmt.Errorf("%w: %w", ErrChannelStart, err)
	}
	a.log.WithField("namespace", a.namespace.String()).Info("listening for pairing requests")
	return nil
}

// SetCode replaces the code sent in replies.
func (a *Adapter) SetCode(code domain.PairingCode) { a.code.Store(&code) }

// ClearCode stops replying until SetCode is called again.
func (a *Adapter) ClearCode() { a.code.Store(nil) }

// Disconnected is closed when a sender disconnects.
func (a *Adapter) Disconnected() <-chan struct{} { return a.aborted }

// Close stops the channel without signalling abort. It is idempotent.
func (a *Adapter) Close() error {
	a.stop()
	return a.stopErr
}

func (a *Adapter) handleProbe(sender domain.SenderID, data []byte) {
	if a.stopped.Load() {
		return
	}
	log := a.log.WithField("sender", sender.String())

	var req map[string]json.RawMessage
	if err := json.Unmarshal(data, &req); err != nil {
		log.WithError(err).Warn("ignoring malformed pairing request")
		return
	}
	if req == nil || len(req) != 0 {
		log.Warn("ignoring pairing request that is not an empty object")
		return
	}
	code := a.code.Load()
	if code == nil {
		log.Debug("no pairing code held, ignoring request")
		return
	}
	reply, err := json.Marshal(domain.HandshakeReply{Code: *code})
	if err != nil {
		log.WithError(err).Error("encode pairing reply")
		return
	}
	if err := a.ch.Send(a.namespace, sender, reply); err != nil {
		log.WithError(err).Warn("failed to send pairing code")
		return
	}
	a.metrics.ObserveHandshakeReply()
	log.Debug("sent pairing code")
}

func (a *Adapter) handleDisconnect(sender domain.SenderID) {
	if a.stop() {
		a.log.WithField("sender", sender.String()).Info("sender disconnected, stopping")
		close(a.aborted)
	}
}

// stop stops the channel once and reports whether this call did it.
func (a *Adapter) stop() bool {
	did := false
	a.stopOnce.Do(func() {
		did = true
		a.stopped.Store(true)
		a.stopErr = a.ch.Stop()
	})
	return did
}

var _ domain.HandshakeResponder = (*Adapter)(nil)
