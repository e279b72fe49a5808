// Package transcache stores transcriptions keyed by the content fingerprint
// of the audio they were produced from.
//
// DirCache keeps one JSON file per fingerprint. Entries are immutable once
// written; a retention policy decides what to evict after each put. Memory
// is an in-process LRU used on its own in tests and as the first tier of
// Layered in front of a DirCache.
package transcache
