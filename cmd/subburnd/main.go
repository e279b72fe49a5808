// Command subburnd runs the subburn daemon. It is equivalent to
// `subburn daemon` and exists for service managers that expect a
// dedicated binary.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"subburn/internal/config"
	"subburn/internal/daemonrun"
)

func main() {
	var configPath string
	var logLevel string

	cmd := &cobra.Command{
		Use:           "subburnd",
		Short:         "subburn caption daemon",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, _, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{LogLevel: logLevel})
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Configuration file path")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override [logging] level")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "subburnd:", err)
		os.Exit(1)
	}
}
