package control

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T, handler Handler) *Client {
	t.Helper()
	// Short socket path: unix socket paths have a ~100 byte limit and
	// t.TempDir can exceed it on some systems.
	sock := filepath.Join(t.TempDir(), "c.sock")

	srv, err := NewServer(sock, handler)
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { srv.Stop() })

	return NewClient(sock)
}

func TestPauseResumeRoundTrip(t *testing.T) {
	paused := false
	client := startTestServer(t, func(cmd Command) (map[string]any, error) {
		switch cmd.Type {
		case CmdPause:
			paused = true
			return map[string]any{"reason": cmd.Reason}, nil
		case CmdResume:
			paused = false
			return nil, nil
		case CmdStatus:
			return map[string]any{"paused": paused}, nil
		}
		return nil, fmt.Errorf("unknown command %q", cmd.Type)
	})

	resp, err := client.Pause("maintenance window")
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "maintenance window", resp.Data["reason"])

	resp, err = client.Status()
	require.NoError(t, err)
	assert.Equal(t, true, resp.Data["paused"])

	resp, err = client.Resume()
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.False(t, paused)
}

func TestHandlerErrorBecomesFailureResponse(t *testing.T) {
	client := startTestServer(t, func(cmd Command) (map[string]any, error) {
		return nil, fmt.Errorf("worker is busy")
	})

	resp, err := client.Status()
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "worker is busy")
}

func TestClientFailsWithoutServer(t *testing.T) {
	client := NewClient(filepath.Join(t.TempDir(), "none.sock"))
	_, err := client.Status()
	assert.Error(t, err)
}

func TestServerRemovesStaleSocket(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "c.sock")

	srv1, err := NewServer(sock, func(Command) (map[string]any, error) { return nil, nil })
	require.NoError(t, err)
	require.NoError(t, srv1.Start(context.Background()))
	require.NoError(t, srv1.Stop())

	// A second server over the same path starts cleanly.
	srv2, err := NewServer(sock, func(Command) (map[string]any, error) { return nil, nil })
	require.NoError(t, err)
	require.NoError(t, srv2.Start(context.Background()))
	require.NoError(t, srv2.Stop())
}
