// Package ipc exposes the daemon over JSON-RPC Unix sockets and ships the
// matching client used by the CLI.
//
// It owns socket lifecycle management, request/response DTOs and the error
// encoding that lets the client recover the service error kind from a
// net/rpc error string. The client decorates calls with context timeouts so
// CLI commands fail fast when the daemon is offline.
package ipc
