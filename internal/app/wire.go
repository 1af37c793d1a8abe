package app

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"castpair/internal/discovery"
	"castpair/internal/domain"
	"castpair/internal/metrics"
	"castpair/internal/relay"
	claimsvc "castpair/internal/services/claim"
	pollsvc "castpair/internal/services/poll"
	registrationsvc "castpair/internal/services/registration"
	sessionsvc "castpair/internal/services/session"
)

// Wire bundles the clients and services for the CLI.
type Wire struct {
	Relay     *relay.HTTP
	Registrar domain.Registrar
	Poller    domain.Poller
	Claimer   domain.Claimer
	Registry  *prometheus.Registry
	Metrics   *metrics.Receiver
	Log       logrus.FieldLogger

	cfg Config
}

// NewWire constructs the dependency graph from cfg. A nil httpClient means
// http.DefaultClient.
func NewWire(cfg Config, log logrus.FieldLogger, httpClient *http.Client) *Wire {
	reg := prometheus.NewRegistry()
	m := metrics.NewReceiver(reg)

	rc := relay.NewHTTP(cfg.ServerURL, httpClient)

	policy := registrationsvc.RetryPolicy{
		Delay:       cfg.Registration.RetryDelay,
		Multiplier:  cfg.Registration.BackoffMultiplier,
		MaxDelay:    cfg.Registration.MaxDelay,
		MaxAttempts: cfg.Registration.MaxAttempts,
	}
	if policy.Delay <= 0 {
		policy.Delay = registrationsvc.DefaultRetryDelay
	}

	return &Wire{
		Relay: rc,
		Registrar: registrationsvc.New(rc,
			registrationsvc.WithPolicy(policy),
			registrationsvc.WithLogger(log),
			registrationsvc.WithMetrics(m),
		),
		Poller: pollsvc.New(rc,
			pollsvc.WithInterval(cfg.Poll.Interval),
			pollsvc.WithLogger(log),
			pollsvc.WithMetrics(m),
		),
		Claimer:  claimsvc.New(rc, log),
		Registry: reg,
		Metrics:  m,
		Log:      log,
		cfg:      cfg,
	}
}

// ChannelOptions returns the discovery listening options from config.
func (w *Wire) ChannelOptions() domain.ChannelOptions {
	opts := discovery.DefaultOptions()
	if w.cfg.Discovery.MaxInactivity > 0 {
		opts.MaxInactivity = w.cfg.Discovery.MaxInactivity
	}
	opts.DisableIdleTimeout = w.cfg.Discovery.DisableIdleTimeout
	return opts
}

// NewSession builds a pairing session listening for probes on ch.
func (w *Wire) NewSession(ch domain.DiscoveryChannel, opts ...sessionsvc.Option) *sessionsvc.Controller {
	adapterOpts := []discovery.AdapterOption{
		discovery.WithOptions(w.ChannelOptions()),
		discovery.WithLogger(w.Log),
		discovery.WithMetrics(w.Metrics),
	}
	if w.cfg.Discovery.Namespace != "" {
		adapterOpts = append(adapterOpts, discovery.WithNamespace(domain.Namespace(w.cfg.Discovery.Namespace)))
	}
	adapter := discovery.NewAdapter(ch, adapterOpts...)

	restart := sessionsvc.DefaultRestartPolicy()
	if w.cfg.Session.RestartDelay > 0 {
		restart.Delay = w.cfg.Session.RestartDelay
	}
	base := []sessionsvc.Option{
		sessionsvc.WithRotateKeyOnRestart(w.cfg.Session.RotateKeyOnRestart),
		sessionsvc.WithRestartPolicy(restart),
		sessionsvc.WithLogger(w.Log),
		sessionsvc.WithMetrics(w.Metrics),
	}
	return sessionsvc.New(w.Registrar, w.Poller, adapter, append(base, opts...)...)
}

// NewWebSocketChannel returns the local discovery transport from config.
func (w *Wire) NewWebSocketChannel() *discovery.WebSocketChannel {
	return discovery.NewWebSocketChannel(w.cfg.Discovery.Listen, w.Log)
}
