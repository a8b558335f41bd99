// Package bridge carries dispatch requests from the UI layer to the
// Handler. The Unix socket transport serves one JSON request and one JSON
// response per connection; the optional NATS transport serves the same
// envelope over request/reply subjects.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/and2long/tcm/bridge/internal/dispatch"
)

// RequestTimeout bounds a single socket request. Installs of large packages
// are the slowest requests the bridge serves.
const RequestTimeout = 10 * time.Minute

// Handler executes a decoded request.
type Handler interface {
	Handle(ctx context.Context, req dispatch.Request) dispatch.Response
}

// Server accepts requests on a Unix domain socket.
type Server struct {
	path    string
	handler Handler
	logger  *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    sync.WaitGroup
	cancel   context.CancelFunc
}

// NewServer creates a server for the socket at path.
func NewServer(path string, handler Handler, logger *slog.Logger) *Server {
	return &Server{
		path:    path,
		handler: handler,
		logger:  logger.With(slog.String("component", "socket")),
	}
}

// Listen binds the socket, replacing a stale one, and restricts it to the
// owning user.
func (s *Server) Listen() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove stale socket: %w", err)
	}

	l, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.path, err)
	}
	if err := os.Chmod(s.path, 0600); err != nil {
		l.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()

	s.logger.Info("socket listening", "path", s.path)
	return nil
}

// Serve accepts connections until ctx is cancelled or Shutdown is called.
// Listen must have succeeded first. Cancelling ctx only stops accepting:
// requests in flight keep running until Shutdown's grace period ends.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	l := s.listener
	if l == nil {
		s.mu.Unlock()
		return errors.New("socket is not listening")
	}
	connCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.Close()
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			s.serveConn(connCtx, conn)
		}()
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	var req dispatch.Request
	var resp dispatch.Response
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		s.logger.Warn("invalid request", "error", err)
		resp = dispatch.Response{Error: fmt.Sprintf("invalid request: %v", err)}
	} else {
		resp = s.handler.Handle(ctx, req)
	}

	if err := json.NewEncoder(conn).Encode(&resp); err != nil {
		s.logger.Warn("failed to write response", "method", req.Method, "error", err)
	}
}

// Shutdown stops accepting, waits for in-flight requests until ctx is done,
// then cancels whatever is still running and removes the socket file.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	l, cancel := s.listener, s.cancel
	s.mu.Unlock()

	if l != nil {
		l.Close()
	}

	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if cancel != nil {
		cancel()
	}

	if rmErr := os.Remove(s.path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		s.logger.Debug("failed to remove socket", "error", rmErr)
	}
	return err
}
