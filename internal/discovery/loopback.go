package discovery

import (
	"context"
	"sync"

	"castpair/internal/domain"
)

// Message is a message sent over a Loopback channel.
type Message struct {
	Namespace domain.Namespace
	To        domain.SenderID
	Payload   []byte
}

// Loopback is an in-process discovery channel driven by its caller.
type Loopback struct {
	// StartErr, when set, is returned by Start.
	StartErr error

	mu          sync.Mutex
	handlers    map[domain.Namespace]domain.MessageHandler
	disconnects []domain.DisconnectHandler
	opts        domain.ChannelOptions
	started     bool
	stopped     bool
	stopCalls   int
	sent        []Message
	sentCh      chan Message
}

// NewLoopback returns an unstarted loopback channel.
func NewLoopback() *Loopback {
	return &Loopback{
		handlers: make(map[domain.Namespace]domain.MessageHandler),
		sentCh:   make(chan Message, 64),
	}
}

func (l *Loopback) Start(_ context.Context, opts domain.ChannelOptions) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.StartErr != nil {
		return l.StartErr
	}
	l.opts = opts
	l.started = true
	return nil
}

func (l *Loopback) OnMessage(namespace domain.Namespace, handler domain.MessageHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[namespace] = handler
}

func (l *Loopback) OnDisconnect(handler domain.DisconnectHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.disconnects = append(l.disconnects, handler)
}

func (l *Loopback) Send(namespace domain.Namespace, to domain.SenderID, payload []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return ErrChannelClosed
	}
	m := Message{Namespace: namespace, To: to, Payload: append([]byte(nil), payload...)}
	l.sent = append(l.sent, m)
	select {
	case l.sentCh <- m:
	default:
	}
	return nil
}

func (l *Loopback) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopCalls++
	l.stopped = true
	return nil
}

// Deliver hands payload to the handler for namespace as if sender sent it.
// Delivery happens even after Stop so late messages can be simulated.
func (l *Loopback) Deliver(sender domain.SenderID, namespace domain.Namespace, payload []byte) {
	l.mu.Lock()
	h := l.handlers[namespace]
	l.mu.Unlock()
	if h != nil {
		h(sender, payload)
	}
}

// Disconnect notifies every disconnect handler that sender went away.
func (l *Loopback) Disconnect(sender domain.SenderID) {
	l.mu.Lock()
	hs := append([]domain.DisconnectHandler(nil), l.disconnects...)
	l.mu.Unlock()
	for _, h := range hs {
		h(sender)
	}
}

// Sent returns every message sent so far.
func (l *Loopback) Sent() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Message(nil), l.sent...)
}

// SentC delivers sent messages as they happen. It drops messages when full.
func (l *Loopback) SentC() <-chan Message { return l.sentCh }

// Started reports whether Start succeeded.
func (l *Loopback) Started() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.started
}

// StopCalls returns how many times Stop was called.
func (l *Loopback) StopCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopCalls
}

// Options returns the options passed to Start.
func (l *Loopback) Options() domain.ChannelOptions {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.opts
}

var _ domain.DiscoveryChannel = (*Loopback)(nil)
