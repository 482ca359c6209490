package control

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Handler executes a control command and returns response data.
type Handler func(cmd Command) (map[string]any, error)

// Server listens on the control socket and dispatches commands to the
// worker's handler.
type Server struct {
	socketPath string
	handler    Handler

	mu       sync.RWMutex
	running  bool
	listener net.Listener
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewServer creates a control server. A leftover socket file from a
// crashed worker is removed.
func NewServer(socketPath string, handler Handler) (*Server, error) {
	if err := os.MkdirAll(filepath.Dir(socketPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create socket directory: %w", err)
	}
	if err := os.RemoveAll(socketPath); err != nil {
		return nil, fmt.Errorf("failed to remove stale socket: %w", err)
	}
	return &Server{
		socketPath: socketPath,
		handler:    handler,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}, nil
}

// Start begins accepting control connections.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("control server already running")
	}
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to listen on control socket: %w", err)
	}
	s.listener = listener
	s.running = true
	s.mu.Unlock()

	go s.acceptLoop(ctx)
	return nil
}

func (s *Server) acceptLoop(ctx context.Context) {
	defer close(s.doneCh)
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
		}

		// Deadline so the loop re-checks the stop channel.
		if ul, ok := s.listener.(*net.UnixListener); ok {
			if err := ul.SetDeadline(time.Now().Add(time.Second)); err != nil {
				fmt.Fprintf(os.Stderr, "control: failed to set accept deadline: %v\n", err)
			}
		}

		conn, err := s.listener.Accept()
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			select {
			case <-s.stopCh:
				return
			default:
			}
			fmt.Fprintf(os.Stderr, "control: accept error: %v\n", err)
			continue
		}
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(5 * time.Second)); err != nil {
		return
	}

	var cmd Command
	if err := json.NewDecoder(conn).Decode(&cmd); err != nil {
		s.respond(conn, Response{Success: false, Error: fmt.Sprintf("bad command: %v", err)})
		return
	}
	if cmd.Timestamp.IsZero() {
		cmd.Timestamp = time.Now()
	}

	data, err := s.handler(cmd)
	if err != nil {
		s.respond(conn, Response{Success: false, Message: err.Error(), Error: err.Error()})
		return
	}
	s.respond(conn, Response{
		Success: true,
		Message: fmt.Sprintf("%s ok", cmd.Type),
		Data:    data,
	})
}

func (s *Server) respond(conn net.Conn, resp Response) {
	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		fmt.Fprintf(os.Stderr, "control: failed to send response: %v\n", err)
	}
}

// Stop shuts the server down and removes the socket file. Safe to call
// on a server that never started.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	close(s.stopCh)
	if s.listener != nil {
		_ = s.listener.Close()
	}

	select {
	case <-s.doneCh:
	case <-time.After(5 * time.Second):
		fmt.Fprintf(os.Stderr, "control: timeout waiting for shutdown\n")
	}

	if err := os.RemoveAll(s.socketPath); err != nil {
		fmt.Fprintf(os.Stderr, "control: failed to remove socket: %v\n", err)
	}
	return nil
}

// SocketPathInUse returns the socket path this server listens on.
func (s *Server) SocketPathInUse() string { return s.socketPath }
