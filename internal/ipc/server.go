package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"time"

	"go.uber.org/zap"
)

// Handler answers one command. It returns the reply payload (nil for
// none), whether the command should be reported as queued rather than
// immediately completed, and an error if the command failed outright.
type Handler func(ctx context.Context, req Request) (data any, queued bool, err error)

// Server accepts one client connection at a time on a Unix domain
// socket, reads a single request, dispatches it to the registered
// handler for its type, writes one reply, then loops.
type Server struct {
	logger     *zap.Logger
	socketPath string
	handlers   map[string]Handler
	listener   net.Listener
}

// NewServer builds a Server; call Register for each command type
// before Start.
func NewServer(logger *zap.Logger, socketPath string) *Server {
	return &Server{
		logger:     logger,
		socketPath: socketPath,
		handlers:   make(map[string]Handler),
	}
}

// Register binds a command type (GET_STATUS, FORCE_CHECK, ...) to a handler.
func (s *Server) Register(commandType string, h Handler) {
	s.handlers[commandType] = h
}

// Start removes any stale socket file, listens, and begins accepting
// connections on its own goroutine. It permits all local users to
// connect.
func (s *Server) Start(ctx context.Context) error {
	_ = os.Remove(s.socketPath)

	l, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.socketPath, err)
	}
	if err := os.Chmod(s.socketPath, 0o666); err != nil {
		s.logger.Warn("failed to widen ipc socket permissions", zap.Error(err))
	}
	s.listener = l

	go s.acceptLoop(ctx)
	s.logger.Info("ipc server listening", zap.String("socket", s.socketPath))
	return nil
}

// Stop closes the listener and removes the socket file.
func (s *Server) Stop() {
	if s.listener != nil {
		_ = s.listener.Close()
	}
	_ = os.Remove(s.socketPath)
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			s.logger.Warn("ipc accept failed", zap.Error(err))
			return
		}
		s.serveClient(ctx, conn)
	}
}

// serveClient handles exactly one client at a time: read one request,
// write one reply, loop until the client disconnects. One client at a
// time; the server accepts, reads a single request, writes a reply,
// then loops.
func (s *Server) serveClient(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	for {
		var req Request
		if err := readFrame(conn, &req); err != nil {
			return // client disconnected or sent a malformed frame
		}

		reply := s.dispatch(ctx, req)
		if err := writeFrame(conn, reply); err != nil {
			s.logger.Warn("ipc write reply failed", zap.Error(err))
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, req Request) Reply {
	h, ok := s.handlers[req.Type]
	if !ok {
		return Reply{
			RequestID: req.RequestID,
			Status:    StatusError,
			Timestamp: time.Now(),
			Error:     fmt.Sprintf("unknown command type %q", req.Type),
		}
	}

	data, queued, err := h(ctx, req)
	if err != nil {
		return Reply{
			RequestID: req.RequestID,
			Status:    StatusError,
			Timestamp: time.Now(),
			Error:     err.Error(),
		}
	}

	status := StatusSuccess
	if queued {
		status = StatusQueued
	}
	var raw json.RawMessage
	if data != nil {
		encoded, marshalErr := json.Marshal(data)
		if marshalErr != nil {
			return Reply{
				RequestID: req.RequestID,
				Status:    StatusError,
				Timestamp: time.Now(),
				Error:     fmt.Sprintf("marshal reply data: %v", marshalErr),
			}
		}
		raw = encoded
	}

	return Reply{
		RequestID: req.RequestID,
		Status:    status,
		Timestamp: time.Now(),
		Data:      raw,
	}
}
