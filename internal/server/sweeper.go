package server

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"castpair/internal/metrics"
)

// DefaultSweepInterval is how often expired codes are removed.
const DefaultSweepInterval = 30 * time.Second

// Sweeper periodically removes expired codes from a Store.
type Sweeper struct {
	Store    *Store
	Interval time.Duration
	Clock    clock.Clock
	Metrics  *metrics.Server
	Log      logrus.FieldLogger
}

// Run sweeps every Interval until ctx is done. It returns nil on cancellation.
func (s *Sweeper) Run(ctx context.Context) error {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	clk := s.Clock
	if clk == nil {
		clk = clock.New()
	}
	log := s.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	t := clk.Ticker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if n := s.Store.Sweep(); n > 0 {
				s.Metrics.ObserveExpired(n)
				log.WithField("removed", n).Info("swept expired pairing codes")
			}
		}
	}
}
