// Package jobstore persists job records and serialises updates per job.
//
// Two backends implement Store: SQLiteStore (the default, one row per job in
// a WAL-mode database) and FileStore (one JSON document per job, replaced
// atomically and guarded by an advisory file lock so several processes can
// share a directory). Both hand out deep copies; callers never alias the
// stored record.
package jobstore
