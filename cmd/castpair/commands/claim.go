package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"castpair/internal/discovery"
	"castpair/internal/domain"
	"castpair/internal/store"
)

// claim: act as the companion for a receiver.
func claimCmd() *cobra.Command {
	var (
		receiverURL string
		code        string
		payload     string
		payloadFile string
		wait        time.Duration
		timeout     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "claim",
		Short: "Probe a receiver for its code and hand it an encrypted payload",
		Example: `  castpair claim --discovery ws://192.168.1.20:8009/pair --payload '{"collectionId":42}'
  castpair claim --code ABC123 --payload-file payload.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (payload == "") == (payloadFile == "") {
				return errors.New("exactly one of --payload or --payload-file is required")
			}
			if receiverURL == "" && code == "" {
				return errors.New("--discovery or --code required")
			}
			if code == "" && wait <= 0 {
				// Hanging up straight away aborts the receiver before it fetches.
				return errors.New("--wait must be positive when probing a receiver")
			}
			data := []byte(payload)
			if payloadFile != "" {
				var err error
				if data, err = store.ReadPayload(payloadFile, os.Stdin); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			var probe *discovery.ProbeSession
			if code == "" {
				var err error
				probe, err = discovery.Probe(ctx, receiverURL, domain.Namespace(cfg.Discovery.Namespace))
				if err != nil {
					return err
				}
				defer probe.Close()
				code = probe.Code.String()
				log.WithField("code", code).Info("receiver answered")
			}

			if err := wire.Claimer.Claim(ctx, domain.PairingCode(code), data); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Claimed pairing code %s\n", code)

			if probe != nil && wait > 0 {
				waitCtx, cancel := context.WithTimeout(ctx, wait)
				defer cancel()
				if err := probe.Wait(waitCtx); err != nil {
					log.WithError(err).Warn("receiver did not close the discovery connection")
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&receiverURL, "discovery", "", "receiver discovery URL (ws://host:port/pair)")
	cmd.Flags().StringVar(&code, "code", "", "claim this code without probing a receiver")
	cmd.Flags().StringVar(&payload, "payload", "", "JSON object to send")
	cmd.Flags().StringVar(&payloadFile, "payload-file", "", "read the JSON object from a file (- for stdin)")
	cmd.Flags().DurationVar(&wait, "wait", 30*time.Second, "keep the discovery connection open until the receiver hangs up (must be positive with --discovery)")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "overall deadline for probing and claiming")
	return cmd
}
