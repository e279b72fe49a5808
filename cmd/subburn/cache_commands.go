package main

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"subburn/internal/logging"
	"subburn/internal/services"
	"subburn/internal/transcache"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the transcription cache",
	}

	cacheCmd.AddCommand(newCacheListCommand(ctx))
	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	cacheCmd.AddCommand(newCachePruneCommand(ctx))
	cacheCmd.AddCommand(newCacheRemoveCommand(ctx))
	cacheCmd.AddCommand(newCacheClearCommand(ctx))

	return cacheCmd
}

func openDirCache(ctx *commandContext) (*transcache.DirCache, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	_, dir, err := transcache.Open(cfg, logging.NewNop())
	if err != nil {
		return nil, err
	}
	if dir == nil {
		return nil, services.Wrap(services.ErrValidation, "", "cache", "transcription cache is disabled ([cache] enabled = false)", nil)
	}
	return dir, nil
}

func newCacheListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cached transcriptions, most recently used first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := openDirCache(ctx)
			if err != nil {
				return err
			}
			entries, err := cache.List(commandCtx(cmd))
			if err != nil {
				return err
			}
			slices.SortFunc(entries, func(a, b transcache.Entry) int {
				return b.AccessedAt.Compare(a.AccessedAt)
			})
			if asJSON {
				return writeJSON(cmd, entries)
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "Cache is empty")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, entry := range entries {
				lang := entry.Language
				if lang == "" {
					lang = "-"
				}
				rows = append(rows, []string{
					entry.Fingerprint[:16],
					lang,
					strconv.Itoa(entry.Segments),
					humanBytes(entry.SizeBytes),
					formatStamp(entry.CreatedAt),
					formatStamp(entry.AccessedAt),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Fingerprint", "Lang", "Segments", "Size", "Created", "Last used"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print entries as JSON")
	return cmd
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show transcription cache usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := openDirCache(ctx)
			if err != nil {
				return err
			}
			stats, err := cache.Stats(commandCtx(cmd))
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, stats)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Directory: %s\n", cache.Dir())
			fmt.Fprintf(out, "Policy:    %s\n", stats.Policy)
			fmt.Fprintf(out, "Entries:   %d\n", stats.Entries)
			fmt.Fprintf(out, "Size:      %s\n", humanBytes(stats.TotalBytes))
			fmt.Fprintf(out, "Oldest:    %s\n", formatStamp(stats.Oldest))
			fmt.Fprintf(out, "Newest:    %s\n", formatStamp(stats.Newest))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print stats as JSON")
	return cmd
}

func newCachePruneCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Apply the retention policy now",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := openDirCache(ctx)
			if err != nil {
				return err
			}
			removed, err := cache.Prune(commandCtx(cmd))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d entries (policy %s)\n", len(removed), cache.Policy())
			return nil
		},
	}
}

func newCacheRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <fingerprint>",
		Short: "Remove one cached transcription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := openDirCache(ctx)
			if err != nil {
				return err
			}
			if err := cache.Remove(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
			return nil
		},
	}
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every cached transcription",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := openDirCache(ctx)
			if err != nil {
				return err
			}
			removed, err := cache.Clear(commandCtx(cmd))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d entries\n", removed)
			return nil
		},
	}
}
