package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"castpair/internal/app"
	"castpair/internal/metrics"
	"castpair/internal/server"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:          "pairserver",
		Short:        "In-memory pairing service for development",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig[app.ServerConfig](cmd, app.Source{
				Name:     "pairserver",
				Defaults: app.ServerDefaults(),
				Flags:    app.ServerFlags,
				Path:     configPath,
			})
			if err != nil {
				return err
			}
			log, err := app.NewLogger(cfg.Log, os.Stderr)
			if err != nil {
				return err
			}
			gin.SetMode(gin.ReleaseMode)

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			m := metrics.NewServer(reg)

			store := server.NewStore(server.WithTTL(cfg.CodeTTL))
			h := server.NewHandler(store, m, log)
			srv := &http.Server{
				Addr:              cfg.Listen,
				Handler:           server.NewRouter(h, reg),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			g, gctx := errgroup.WithContext(ctx)

			g.Go(func() error {
				log.WithField("addr", cfg.Listen).Info("pairing server listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			g.Go(func() error {
				sw := &server.Sweeper{Store: store, Interval: cfg.SweepInterval, Metrics: m, Log: log}
				return sw.Run(gctx)
			})

			err = g.Wait()
			log.Info("pairing server stopped")
			return err
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "config file (default pairserver.yaml in the user config dir, /etc/pairserver or .)")
	cmd.Flags().String("listen", "", "listen address")
	cmd.Flags().Duration("code-ttl", 0, "how long pairing codes stay valid")
	cmd.Flags().Duration("sweep-interval", 0, "how often expired codes are removed")
	cmd.Flags().String("log-level", "", "log level (debug, info, warn, error)")
	cmd.Flags().String("log-format", "", "log format (text, json)")
	return cmd
}
