// Package control exposes the supervisor on a local Unix socket so the CLI
// can add bots and commands to a running service.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jdelaire/osonbot/core/supervisor"
)

// Backend is the supervisor surface the server exposes.
type Backend interface {
	AddInstance(token string, owner int64) (bool, error)
	RegisterCommand(token, trigger, response string) error
	RemoveInstance(token string) error
	Instances() []supervisor.Info
}

// Server listens on a Unix domain socket and serves one request per
// connection.
type Server struct {
	socketPath string
	backend    Backend
	listener   net.Listener
	wg         sync.WaitGroup
	logger     *slog.Logger
}

// NewServer creates a control server for backend.
func NewServer(socketPath string, backend Backend, logger *slog.Logger) *Server {
	return &Server{
		socketPath: socketPath,
		backend:    backend,
		logger:     logger,
	}
}

// Start begins listening. It removes a stale socket, creates the directory
// with 0700 permissions and sets the socket to 0600.
func (s *Server) Start(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0700); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}

	if _, err := os.Stat(s.socketPath); err == nil {
		conn, err := net.DialTimeout("unix", s.socketPath, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return fmt.Errorf("another instance is already listening on %s", s.socketPath)
		}
		s.logger.Info("removing stale socket", "path", s.socketPath)
		if err := os.Remove(s.socketPath); err != nil {
			return fmt.Errorf("remove stale socket: %w", err)
		}
	}

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		ln.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}

	s.listener = ln
	s.logger.Info("control socket listening", "path", s.socketPath)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop(ctx)
	}()
	return nil
}

// Shutdown stops accepting, waits for in-flight requests and removes the
// socket file.
func (s *Server) Shutdown() {
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
	os.Remove(s.socketPath)
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error("accept error", "error", err)
			return
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(conn)
		}()
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	id := uuid.NewString()
	data, err := io.ReadAll(io.LimitReader(conn, MaxPayloadBytes+1))
	if err != nil {
		s.writeResponse(conn, Response{ID: id, Error: "read error"})
		return
	}

	req, err := ValidateRequest(data)
	if err != nil {
		s.logger.Warn("invalid control request", "id", id, "error", err)
		s.writeResponse(conn, Response{ID: id, Error: err.Error()})
		return
	}

	resp := s.handle(req)
	resp.ID = id
	if resp.OK {
		s.logger.Info("control request served", "id", id, "action", req.Action)
	} else {
		s.logger.Warn("control request failed", "id", id, "action", req.Action, "error", resp.Error)
	}
	s.writeResponse(conn, resp)
}

// handle runs a validated request against the backend.
func (s *Server) handle(req *Request) Response {
	switch req.Action {
	case ActionAddBot:
		p, _ := ParseAddBot(req.Payload)
		added, err := s.backend.AddInstance(p.Token, p.OwnerID)
		if err != nil {
			return Response{Error: err.Error()}
		}
		return Response{OK: true, Added: added}
	case ActionAddCommand:
		p, _ := ParseAddCommand(req.Payload)
		if err := s.backend.RegisterCommand(p.Token, p.Trigger, p.Response); err != nil {
			return Response{Error: err.Error()}
		}
		return Response{OK: true}
	case ActionRemoveBot:
		p, _ := ParseRemoveBot(req.Payload)
		if err := s.backend.RemoveInstance(p.Token); err != nil {
			return Response{Error: err.Error()}
		}
		return Response{OK: true}
	case ActionListBots:
		return Response{OK: true, Bots: s.backend.Instances()}
	}
	return Response{Error: fmt.Sprintf("unknown action %q", req.Action)}
}

func (s *Server) writeResponse(conn net.Conn, resp Response) {
	json.NewEncoder(conn).Encode(resp)
}
