// Package ipc exposes the daemon over JSON-RPC Unix sockets and ships the
// matching client used by the CLI.
//
// It owns socket lifecycle management and the request/response DTOs. Status
// and plan payloads reuse the controller snapshot types directly so the CLI
// renders exactly what the cache reports.
package ipc
