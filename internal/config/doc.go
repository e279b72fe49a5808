// Package config loads, normalizes, and validates subburn configuration.
//
// Values come from three layers applied in order: repository defaults, the
// TOML file (~/.config/subburn/config.toml or ./subburn.toml), and SUBBURN_*
// environment variables (a .env file in the working directory is read first).
// Paths are expanded and derived directories are filled from paths.state_dir
// so downstream packages can rely on absolute locations.
package config
