package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"castpair/internal/domain"
	"castpair/internal/metrics"
	"castpair/internal/services/session"
	"castpair/internal/store"
)

// pair: run one receiver session and print or save the payload.
func pairCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "pair",
		Short: "Register, display a pairing code and wait for a companion to claim it",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			ch := wire.NewWebSocketChannel()
			ctrl := wire.NewSession(ch, session.OnCode(func(code domain.PairingCode) {
				fmt.Fprintf(cmd.OutOrStdout(), "Pairing code: %s\n", code)
			}))

			g, gctx := errgroup.WithContext(ctx)
			metricsCtx, stopMetrics := context.WithCancel(gctx)
			defer stopMetrics()

			var res session.Result
			g.Go(func() error {
				defer stopMetrics()
				var err error
				res, err = ctrl.Run(gctx)
				return err
			})
			if cfg.Metrics.Listen != "" {
				g.Go(func() error { return serveMetrics(metricsCtx, cfg.Metrics.Listen) })
			}

			if err := g.Wait(); err != nil {
				log.WithError(err).Error("pairing did not complete")
				return errFailed
			}

			switch res.State {
			case session.StateAborted:
				fmt.Fprintln(cmd.ErrOrStderr(), "Pairing aborted: the companion disconnected.")
				return nil
			case session.StateComplete:
				if out != "" {
					if err := store.WritePayload(out, res.Payload); err != nil {
						return err
					}
					fmt.Fprintf(cmd.ErrOrStderr(), "Payload written to %s\n", out)
					return nil
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res.Payload)
			default:
				return errFailed
			}
		},
	}
	cmd.Flags().String("listen", "", "discovery listen address (host:port)")
	cmd.Flags().Duration("poll-interval", 0, "wait between payload fetches")
	cmd.Flags().Duration("retry-delay", 0, "wait between registration attempts")
	cmd.Flags().Int("max-attempts", 0, "registration attempts before giving up (0 = unbounded)")
	cmd.Flags().Bool("rotate-key", true, "generate a new keypair when a code expires")
	cmd.Flags().String("metrics-listen", "", "serve Prometheus metrics on this address")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the payload to this file (mode 0600) instead of stdout")
	return cmd
}

// serveMetrics serves /metrics until ctx ends.
func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(wire.Registry))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	log.WithField("addr", addr).Info("serving metrics")

	select {
	case err := <-errc:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
