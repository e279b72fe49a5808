package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"subburn/internal/daemon"
	"subburn/internal/jobs"
	"subburn/internal/logging"
	"subburn/internal/pipeline"
	"subburn/internal/services"
)

// Backend is the daemon surface the server exposes.
type Backend interface {
	Submit(ctx context.Context, req pipeline.SubmitRequest) (string, error)
	Status(ctx context.Context, id string) (*jobs.Job, error)
	List(ctx context.Context, owner string) ([]*jobs.Job, error)
	Cancel(ctx context.Context, id string) error
	Health(ctx context.Context) (daemon.Health, error)
}

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	connMu sync.Mutex
	conns  map[net.Conn]struct{}
}

// NewServer configures the IPC server at the given socket path. A stale
// socket file is replaced.
func NewServer(ctx context.Context, path string, backend Backend, logger *slog.Logger) (*Server, error) {
	if backend == nil {
		return nil, errors.New("ipc server requires a backend")
	}
	logger = logging.NewComponentLogger(logger, "ipc")

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure socket dir: %w", err)
	}
	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("restrict socket permissions: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName(ServiceName, &service{backend: backend, logger: logger, ctx: serverCtx}); err != nil {
		cancel()
		_ = listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:      path,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
		conns:     make(map[net.Conn]struct{}),
	}, nil
}

// Path returns the socket path.
func (s *Server) Path() string {
	return s.path
}

// Serve starts accepting RPC connections until Close is called or the
// context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
					return
				}
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"))
				continue
			}
			s.track(conn, true)
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				defer s.track(c, false)
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
	go func() {
		<-s.ctx.Done()
		_ = s.listener.Close()
	}()
}

func (s *Server) track(conn net.Conn, add bool) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
		return
	}
	delete(s.conns, conn)
}

// Close stops the server, drops open connections and removes the socket.
func (s *Server) Close() {
	s.cancel()
	_ = s.listener.Close()
	s.connMu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.connMu.Unlock()
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale IPC socket may confuse clients"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually"))
	}
}

type service struct {
	backend Backend
	logger  *slog.Logger
	ctx     context.Context
}

// request tags a mutating call with a correlation id so the daemon log can
// tie it to the client invocation.
func (s *service) request() (context.Context, *slog.Logger) {
	ctx := services.WithRequestID(s.ctx, uuid.NewString())
	return ctx, logging.WithContext(ctx, s.logger)
}

func (s *service) Submit(req SubmitRequest, resp *SubmitResponse) error {
	ctx, logger := s.request()
	id, err := s.backend.Submit(ctx, req)
	if err != nil {
		logger.Debug("submit rejected", logging.String("kind", services.Kind(err)), logging.Error(err))
		return encodeError(err)
	}
	resp.ID = id
	logger.Info("job submitted via IPC",
		logging.String(logging.FieldEventType, "ipc_submit"),
		logging.String(logging.FieldJobID, id),
		logging.String("owner", req.Owner))
	return nil
}

func (s *service) Status(req StatusRequest, resp *StatusResponse) error {
	job, err := s.backend.Status(s.ctx, req.ID)
	if err != nil {
		return encodeError(err)
	}
	resp.Job = job
	return nil
}

func (s *service) List(req ListRequest, resp *ListResponse) error {
	list, err := s.backend.List(s.ctx, req.Owner)
	if err != nil {
		return encodeError(err)
	}
	resp.Jobs = list
	if resp.Jobs == nil {
		resp.Jobs = []*jobs.Job{}
	}
	return nil
}

func (s *service) Cancel(req CancelRequest, resp *CancelResponse) error {
	ctx, logger := s.request()
	if err := s.backend.Cancel(ctx, req.ID); err != nil {
		return encodeError(err)
	}
	resp.Canceled = true
	logger.Info("job cancel requested via IPC",
		logging.String(logging.FieldEventType, "ipc_cancel"),
		logging.String(logging.FieldJobID, req.ID))
	return nil
}

func (s *service) Health(_ HealthRequest, resp *HealthResponse) error {
	health, err := s.backend.Health(s.ctx)
	if err != nil {
		return encodeError(err)
	}
	*resp = HealthResponse{
		Running:      health.Running,
		PID:          health.PID,
		Started:      health.Started,
		LockPath:     health.LockPath,
		StoreBackend: health.StoreBackend,
		LogPath:      health.LogPath,
		MetricsAddr:  health.MetricsAddr,
		Jobs: JobCounts{
			Total:      health.Jobs.Total,
			Pending:    health.Jobs.Pending,
			Processing: health.Jobs.Processing,
			Completed:  health.Jobs.Completed,
			Failed:     health.Jobs.Failed,
		},
		Active:       health.Active,
		Cache:        health.Cache,
		Dependencies: convertDependencies(health.Dependencies),
	}
	return nil
}
