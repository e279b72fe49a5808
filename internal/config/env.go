package config

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is prepended to every environment override, for example
// SUBBURN_ENGINE_MAX_CONCURRENT or SUBBURN_LOGGING_LEVEL. Field names
// are split on word boundaries and there is no unprefixed fallback.
const EnvPrefix = "SUBBURN"

// applyEnv overlays SUBBURN_* variables onto the decoded configuration.
// Unset variables leave the file or default value untouched.
func (c *Config) applyEnv() error {
	if err := envconfig.Process(EnvPrefix, c); err != nil {
		return fmt.Errorf("environment overrides: %w", err)
	}
	return nil
}

// EnvUsage writes a table of the recognised environment variables to w.
func EnvUsage(w io.Writer) error {
	var cfg Config
	tw := tabwriter.NewWriter(w, 1, 0, 4, ' ', 0)
	if err := envconfig.Usagef(EnvPrefix, &cfg, tw, envconfig.DefaultTableFormat); err != nil {
		return err
	}
	return tw.Flush()
}
