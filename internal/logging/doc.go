// Package logging assembles structured slog loggers and formatting helpers used
// across subburn.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so pipeline code can tag log
// lines with job IDs, stages, and correlation IDs. The console handler only
// emits colour when writing to an interactive terminal.
package logging
