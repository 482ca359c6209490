// Package control is the unix-socket JSON protocol between a running
// swarm worker and the CLI: pause, resume, status, stop.
package control

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Command types.
const (
	CmdPause  = "pause"
	CmdResume = "resume"
	CmdStatus = "status"
	CmdStop   = "stop"
)

// Command is one control request.
type Command struct {
	Type      string    `json:"type"` // pause, resume, status, stop
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Response is the worker's answer.
type Response struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// SocketPath returns the control socket location for an instance.
// Sockets live under the user runtime dir when available so a shared
// /tmp does not leak worker handles between users.
func SocketPath(instanceID string) string {
	name := fmt.Sprintf("curator-%s.sock", instanceID)
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, name)
	}
	return filepath.Join(os.TempDir(), name)
}

// DefaultSocketPath is the well-known socket for a single-worker host.
func DefaultSocketPath() string {
	return SocketPath("default")
}
