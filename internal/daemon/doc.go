// Package daemon coordinates the long-running subburn process.
//
// It wires configuration, the job store, the transcription cache and the
// pipeline engine into a single lifecycle guarded by a flock so only one
// daemon owns a state directory. On start it fails jobs left running by a
// previous process and optionally serves Prometheus metrics. The IPC layer
// calls into the daemon; individual pipeline stages live in their own
// packages.
package daemon
