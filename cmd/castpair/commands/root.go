package commands

import (
	"errors"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"castpair/internal/app"
)

var (
	configPath string
	cfg        app.Config
	log        *logrus.Logger
	wire       *app.Wire
)

// errFailed marks an error that has already been reported to the user.
var errFailed = errors.New("pairing failed")

func Execute() error {
	root := newRootCmd()
	err := root.Execute()
	if err != nil && !errors.Is(err, errFailed) {
		root.PrintErrln("Error:", err)
	}
	return err
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "castpair",
		Short:         "Pair a display device with a companion using a short code",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = app.LoadConfig[app.Config](cmd, app.Source{
				Name:     "castpair",
				Defaults: app.Defaults(),
				Flags:    app.ReceiverFlags,
				Path:     configPath,
			})
			if err != nil {
				return err
			}
			log, err = app.NewLogger(cfg.Log, os.Stderr)
			if err != nil {
				return err
			}
			wire = app.NewWire(cfg, log, nil)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default castpair.yaml in the user config dir, /etc/castpair or .)")
	root.PersistentFlags().String("server", "", "pairing service base URL (e.g. http://127.0.0.1:8080)")
	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-format", "", "log format (text, json)")

	root.AddCommand(pairCmd(), claimCmd(), configCmd())
	return root
}
