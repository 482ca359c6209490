package control

import (
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// Client sends control commands to a running worker.
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a control client for the given socket.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath, timeout: 10 * time.Second}
}

// Send delivers one command and waits for the response.
func (c *Client) Send(cmd Command) (*Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to reach worker (is it running?): %w", err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, fmt.Errorf("failed to set deadline: %w", err)
	}
	if cmd.Timestamp.IsZero() {
		cmd.Timestamp = time.Now()
	}
	if err := json.NewEncoder(conn).Encode(cmd); err != nil {
		return nil, fmt.Errorf("failed to send command: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return &resp, nil
}

// Pause suspends work claiming on the worker.
func (c *Client) Pause(reason string) (*Response, error) {
	return c.Send(Command{Type: CmdPause, Reason: reason})
}

// Resume lifts a pause.
func (c *Client) Resume() (*Response, error) {
	return c.Send(Command{Type: CmdResume})
}

// Status asks the worker for its current state.
func (c *Client) Status() (*Response, error) {
	return c.Send(Command{Type: CmdStatus})
}

// Stop asks the worker to shut down gracefully.
func (c *Client) Stop() (*Response, error) {
	return c.Send(Command{Type: CmdStop})
}
