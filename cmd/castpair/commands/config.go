package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"castpair/internal/app"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect castpair configuration",
	}
	cmd.AddCommand(configWriteCmd())
	return cmd
}

// config write: persist the effective configuration.
func configWriteCmd() *cobra.Command {
	var (
		path   string
		system bool
	)
	cmd := &cobra.Command{
		Use:   "write",
		Short: "Write the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				var err error
				if path, err = app.ConfigPath("castpair", system); err != nil {
					return err
				}
			}
			if err := app.WriteConfigFile(&cfg, path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "destination file (default: user config path)")
	cmd.Flags().BoolVar(&system, "system", false, "write to the system-wide config path")
	return cmd
}
