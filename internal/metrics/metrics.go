package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "castpair"

// Poll results.
const (
	PollEmpty      = "empty"
	PollCiphertext = "ciphertext"
	PollError      = "error"
)

// Receiver holds the counters for one receiver process.
type Receiver struct {
	registrations    *prometheus.CounterVec
	polls            *prometheus.CounterVec
	handshakeReplies prometheus.Counter
	sessions         *prometheus.CounterVec
}

// NewReceiver registers the receiver counters with reg.
func NewReceiver(reg prometheus.Registerer) *Receiver {
	f := promauto.With(reg)
	return &Receiver{
		registrations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registration_attempts_total",
			Help:      "Registration RPC attempts by result.",
		}, []string{"result"}),
		polls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Fetch RPC calls by result.",
		}, []string{"result"}),
		handshakeReplies: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshake_replies_total",
			Help:      "Pairing codes sent over the discovery channel.",
		}),
		sessions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Pairing sessions by final state.",
		}, []string{"state"}),
	}
}

// ObserveRegistration counts one registration attempt.
func (m *Receiver) ObserveRegistration(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.registrations.WithLabelValues(result).Inc()
}

// ObservePoll counts one fetch with one of the Poll* results.
func (m *Receiver) ObservePoll(result string) {
	if m == nil {
		return
	}
	m.polls.WithLabelValues(result).Inc()
}

// ObserveHandshakeReply counts one reply sent to a sender.
func (m *Receiver) ObserveHandshakeReply() {
	if m == nil {
		return
	}
	m.handshakeReplies.Inc()
}

// ObserveSession counts a session reaching a terminal state.
func (m *Receiver) ObserveSession(state string) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(state).Inc()
}

// Server holds the counters for the development pairing server.
type Server struct {
	codesIssued prometheus.Counter
	claims      prometheus.Counter
	deliveries  prometheus.Counter
	expired     prometheus.Counter
}

// NewServer registers the server counters with reg.
func NewServer(reg prometheus.Registerer) *Server {
	f := promauto.With(reg)
	counter := func(name, help string) prometheus.Counter {
		return f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      name,
			Help:      help,
		})
	}
	return &Server{
		codesIssued: counter("codes_issued_total", "Pairing codes issued."),
		claims:      counter("claims_total", "Payloads claimed against a code."),
		deliveries:  counter("deliveries_total", "Claimed payloads fetched by a device."),
		expired:     counter("codes_expired_total", "Codes removed by the sweeper."),
	}
}

func (m *Server) ObserveCodeIssued() {
	if m != nil {
		m.codesIssued.Inc()
	}
}

func (m *Server) ObserveClaim() {
	if m != nil {
		m.claims.Inc()
	}
}

func (m *Server) ObserveDelivery() {
	if m != nil {
		m.deliveries.Inc()
	}
}

func (m *Server) ObserveExpired(n int) {
	if m != nil {
		m.expired.Add(float64(n))
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
