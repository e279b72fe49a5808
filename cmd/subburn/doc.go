// Command subburn submits caption jobs, inspects their progress and manages
// the transcription cache. Commands talk to a running daemon over its IPC
// socket; when no daemon is reachable, submit runs the pipeline in-process
// and the read-only commands open the job store directly.
package main
