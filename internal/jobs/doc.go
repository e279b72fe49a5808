// Package jobs defines the caption job record: its lifecycle status, the six
// canonical pipeline steps, and the caption style it was submitted with.
//
// Step and status transitions are implemented here as pure methods on *Job so
// every store backend and the tracker apply identical rules. Jobs are always
// copied with Clone before being handed to callers outside the store.
package jobs
