package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agenttools/debugd/internal/toolerr"
	"github.com/agenttools/debugd/internal/tools"
)

// Server is the daemon of spec.md §6.2: it owns a Unix domain socket
// listener and a tools.Registry, and dispatches framed JSON-RPC 2.0
// requests to it.
type Server struct {
	listener net.Listener
	registry *tools.Registry
	logger   *zap.Logger

	wg sync.WaitGroup
}

// Listen creates the Unix domain socket at sockPath, removing any stale
// socket file left by a previous instance (spec.md §6.2: "auto-started on
// first tool invocation" implies a prior crashed daemon's socket may be
// left behind).
func Listen(sockPath string, registry *tools.Registry, logger *zap.Logger) (*Server, error) {
	if err := os.Remove(sockPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("daemon: removing stale socket: %w", err)
	}
	ln, err := net.Listen("unix", sockPath)
	if err != nil {
		return nil, fmt.Errorf("daemon: listen on %s: %w", sockPath, err)
	}
	return &Server{listener: ln, registry: registry, logger: logger}, nil
}

// Serve accepts connections until ctx is cancelled or the listener is closed.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.wg.Wait()
				return nil
			default:
				return fmt.Errorf("daemon: accept: %w", err)
			}
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

// Close stops accepting connections and waits for in-flight ones to drain.
func (s *Server) Close() error {
	err := s.listener.Close()
	s.wg.Wait()
	return err
}

// handleConn owns one client connection (spec.md §5: "one goroutine per
// client connection"). Each request it reads is dispatched on its own
// goroutine via errgroup so a long-running `run` call on one session never
// blocks unrelated requests on the same connection; a panic in any one
// request is recovered and reported as InternalError instead of taking the
// connection — or the daemon — down.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	reader := bufio.NewReader(conn)
	var writeMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for {
		raw, err := readFrame(reader)
		if err != nil {
			break
		}
		var req request
		if jerr := json.Unmarshal(raw, &req); jerr != nil {
			s.logger.Warn("daemon: malformed request frame", zap.Error(jerr))
			continue
		}
		g.Go(func() error {
			resp := s.dispatch(gctx, req)
			if resp == nil {
				return nil // notification: no id, no response expected
			}
			body, merr := json.Marshal(resp)
			if merr != nil {
				return merr
			}
			writeMu.Lock()
			defer writeMu.Unlock()
			return writeFrame(conn, body)
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Warn("daemon: connection handler error", zap.Error(err))
	}
}

func (s *Server) dispatch(ctx context.Context, req request) (resp *response) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("daemon: panic handling request", zap.Any("recover", rec), zap.String("method", req.Method))
			if req.ID != nil {
				resp = errResponse(req.ID, toolerr.New(toolerr.InternalError, "panic: %v", rec))
			}
		}
	}()

	h, ok := methods[req.Method]
	if !ok {
		if req.ID == nil {
			return nil
		}
		return errResponse(req.ID, toolerr.New(toolerr.MethodNotFound, "unknown tool %q", req.Method))
	}

	result, err := h(ctx, s.registry, req.Params)
	if req.ID == nil {
		return nil // notification
	}
	if err != nil {
		return errResponse(req.ID, err)
	}
	return &response{JSONRPC: jsonrpcVersion, ID: req.ID, Result: result}
}

func errResponse(id json.RawMessage, err error) *response {
	return &response{
		JSONRPC: jsonrpcVersion,
		ID:      id,
		Error:   &rpcError{Code: toolerr.CodeOf(err), Message: err.Error()},
	}
}
