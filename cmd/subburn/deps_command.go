package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"subburn/internal/deps"
	"subburn/internal/services"
)

func newDepsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "deps",
		Short: "Check external tools and free disk space",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := deps.Check(cfg)
			if asJSON {
				if err := writeJSON(cmd, results); err != nil {
					return err
				}
			} else {
				printDependencies(cmd.OutOrStdout(), results)
			}
			if missing := deps.Missing(results); len(missing) > 0 {
				return services.Wrap(services.ErrCollaboratorUnavailable, "", "deps",
					fmt.Sprintf("%d required dependencies unavailable", len(missing)), nil)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")
	return cmd
}

type dependencyRow struct {
	Name      string
	Command   string
	Optional  bool
	Available bool
	Detail    string
}

func printDependencies(out io.Writer, results []deps.Status) {
	rows := make([]dependencyRow, 0, len(results))
	for _, r := range results {
		rows = append(rows, dependencyRow{r.Name, r.Command, r.Optional, r.Available, r.Detail})
	}
	printDependencyRows(out, rows)
}

func printDependencyRows(out io.Writer, items []dependencyRow) {
	rows := make([][]string, 0, len(items))
	for _, dep := range items {
		state := "ok"
		switch {
		case !dep.Available && dep.Optional:
			state = "missing (optional)"
		case !dep.Available:
			state = "MISSING"
		}
		rows = append(rows, []string{dep.Name, dep.Command, state, dep.Detail})
	}
	fmt.Fprintln(out, renderTable([]string{"Dependency", "Command", "State", "Detail"}, rows, nil))
}
