// Package server exposes the HTTP API: credential exchange and session
// endpoints under /api/auth, the chat endpoints under /api/ai and /api/chat,
// and operational endpoints for probes and metrics.
package server
