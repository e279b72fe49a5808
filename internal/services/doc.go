// Package services defines shared utilities consumed by the pipeline stages
// and the external media collaborators.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that translate failures
//     into the error taxonomy (not found, already exists, collaborator
//     unavailable/failed, validation, canceled).
//   - Thin abstractions that make command execution from external tools
//     testable.
//
// Use these helpers when wiring new collaborators so operational behaviour
// (error handling, observability) stays uniform across the pipeline.
package services
