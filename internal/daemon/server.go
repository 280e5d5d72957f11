package daemon

import (
	"context"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/cassette-engine/cassette/internal/casserrors"
)

// Handler implements the operations the daemon serves.
type Handler interface {
	HandleHealth(ctx context.Context) HealthResult
	HandleEmbed(ctx context.Context, params EmbedParams) (EmbedResult, error)
	HandleRerank(ctx context.Context, params RerankParams) (RerankResult, error)
}

// Server listens on a Unix domain socket and dispatches length-prefixed RPC
// requests to a Handler, running an accept loop with one goroutine per
// connection and an embed/rerank/health/shutdown method set.
type Server struct {
	socketPath string
	listener   net.Listener
	handler    Handler
	started    time.Time

	mu           sync.Mutex
	shutdown     bool
	shutdownOnce sync.Once
	shutdownCh   chan struct{}
	wg           sync.WaitGroup
}

// NewServer creates a server bound to socketPath once ListenAndServe runs.
func NewServer(socketPath string, handler Handler) *Server {
	return &Server{socketPath: socketPath, handler: handler, shutdownCh: make(chan struct{})}
}

// ListenAndServe starts accepting connections and blocks until ctx is
// cancelled or a client requests shutdown.
func (s *Server) ListenAndServe(ctx context.Context) error {
	_ = os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return err
	}
	s.listener = listener
	s.started = time.Now()

	defer func() {
		_ = listener.Close()
		_ = os.Remove(s.socketPath)
	}()

	slog.Info("daemon listening", slog.String("socket", s.socketPath))

	go func() {
		select {
		case <-ctx.Done():
		case <-s.shutdownCh:
		}
		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			shutdown := s.shutdown
			s.mu.Unlock()
			if shutdown {
				break
			}
			slog.Error("daemon accept error", slog.String("error", err.Error()))
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.wg.Wait()
	return nil
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	if err := conn.SetDeadline(time.Now().Add(30 * time.Second)); err != nil {
		slog.Warn("failed to set connection deadline", slog.String("error", err.Error()))
	}

	var req Request
	if err := readFrame(conn, &req); err != nil {
		_ = writeFrame(conn, NewErrorResponse("", ErrCodeParseError, "failed to parse request"))
		return
	}

	resp := s.handleRequest(ctx, req)
	_ = writeFrame(conn, resp)
}

func (s *Server) handleRequest(ctx context.Context, req Request) Response {
	switch req.Method {
	case MethodHealth:
		return NewSuccessResponse(req.ID, s.health())

	case MethodEmbed:
		params, err := decodeResult[EmbedParams](req.Params)
		if err != nil {
			return NewErrorResponse(req.ID, ErrCodeInvalidParams, err.Error())
		}
		result, err := s.handler.HandleEmbed(ctx, params)
		if err != nil {
			return errorResponseFromErr(req.ID, err)
		}
		return NewSuccessResponse(req.ID, result)

	case MethodRerank:
		params, err := decodeResult[RerankParams](req.Params)
		if err != nil {
			return NewErrorResponse(req.ID, ErrCodeInvalidParams, err.Error())
		}
		result, err := s.handler.HandleRerank(ctx, params)
		if err != nil {
			return errorResponseFromErr(req.ID, err)
		}
		return NewSuccessResponse(req.ID, result)

	case MethodShutdown:
		s.shutdownOnce.Do(func() { close(s.shutdownCh) })
		return NewSuccessResponse(req.ID, ShutdownResult{Acknowledged: true})

	default:
		return NewErrorResponse(req.ID, ErrCodeMethodNotFound, "method not found: "+req.Method)
	}
}

func (s *Server) health() HealthResult {
	result := s.handler.HandleHealth(context.Background())
	result.UptimeMs = time.Since(s.started).Milliseconds()
	return result
}

func errorResponseFromErr(id string, err error) Response {
	return NewErrorResponse(id, kindToErrCode(casserrors.KindOf(err)), err.Error())
}
