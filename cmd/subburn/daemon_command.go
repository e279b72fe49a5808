package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"subburn/internal/daemonrun"
	"subburn/internal/ipc"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the subburn daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if socket := strings.TrimSpace(*ctx.socketFlag); socket != "" {
				cfg.Daemon.SocketPath = socket
			}
			return daemonrun.Run(commandCtx(cmd), cfg, daemonrun.Options{LogLevel: logLevel})
		},
	}
	daemonCmd.Flags().StringVar(&logLevel, "log-level", "", "Override [logging] level")
	daemonCmd.AddCommand(newDaemonStatusCommand(ctx))
	return daemonCmd
}

func newDaemonStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon health",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.requireClient()
			if err != nil {
				return err
			}
			defer client.Close()
			health, err := client.Health(commandCtx(cmd))
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, health)
			}
			printHealth(cmd, health)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print health as JSON")
	return cmd
}

func printHealth(cmd *cobra.Command, h *ipc.HealthResponse) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Running:  %s (pid %d, since %s)\n", yesNo(h.Running), h.PID, formatStamp(h.Started))
	fmt.Fprintf(out, "Store:    %s\n", h.StoreBackend)
	fmt.Fprintf(out, "Lock:     %s\n", h.LockPath)
	if h.LogPath != "" {
		fmt.Fprintf(out, "Log:      %s\n", h.LogPath)
	}
	if h.MetricsAddr != "" {
		fmt.Fprintf(out, "Metrics:  http://%s/metrics\n", h.MetricsAddr)
	}
	fmt.Fprintf(out, "Jobs:     %d total, %d processing, %d completed, %d failed\n",
		h.Jobs.Total, h.Jobs.Processing, h.Jobs.Completed, h.Jobs.Failed)
	if len(h.Active) > 0 {
		fmt.Fprintf(out, "Active:   %s\n", strings.Join(h.Active, ", "))
	}
	if h.Cache != nil {
		fmt.Fprintf(out, "Cache:    %d entries, %s, %d hits / %d misses (%s)\n",
			h.Cache.Entries, humanBytes(h.Cache.TotalBytes), h.Cache.Hits, h.Cache.Misses, h.Cache.Policy)
	}
	rows := make([]dependencyRow, 0, len(h.Dependencies))
	for _, dep := range h.Dependencies {
		rows = append(rows, dependencyRow{dep.Name, dep.Command, dep.Optional, dep.Available, dep.Detail})
	}
	printDependencyRows(out, rows)
}
