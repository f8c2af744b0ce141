package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"
	"time"

	"log/slog"

	"framecache/internal/daemon"
	"framecache/internal/logging"
	"framecache/internal/logs"
)

// ServiceName is the registered JSON-RPC service.
const ServiceName = "FrameCache"

const (
	removeTimeout = 30 * time.Second
	planTimeout   = 5 * time.Second
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logging.NewComponentLogger(logger, "ipc"), ctx: serverCtx}
	if err := rpcServer.RegisterName(ServiceName, srv); err != nil {
		cancel()
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
		conns:     make(map[net.Conn]struct{}),
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.Event("ipc_accept_failed"),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
				continue
			}
			if !s.track(conn) {
				_ = conn.Close()
				return
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				defer s.untrack(c)
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// track registers an accepted connection unless the server is closing.
func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns == nil {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// Close stops the server, drops connected clients and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.mu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.conns = nil
	s.mu.Unlock()
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.Event("ipc_socket_cleanup_failed"),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually or rerun framecache stop"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	s.logger.Debug("cache start requested")
	if err := s.daemon.Start(s.ctx); err != nil {
		resp.Started = false
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "cache started"
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.logger.Debug("cache stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	return nil
}

func (s *service) Shutdown(_ ShutdownRequest, resp *ShutdownResponse) error {
	s.logger.Info("daemon shutdown requested via IPC",
		logging.Event("daemon_shutdown_requested"))
	s.daemon.RequestShutdown()
	resp.Accepted = true
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status()
	*resp = StatusResponse(status)
	return nil
}

func (s *service) Seek(req SeekRequest, resp *PositionResponse) error {
	pos, err := s.daemon.Seek(req.Item, req.Frame)
	if err != nil {
		return err
	}
	resp.Position = pos
	return nil
}

func (s *service) Step(req StepRequest, resp *PositionResponse) error {
	pos, err := s.daemon.Step(req.Delta)
	if err != nil {
		return err
	}
	resp.Position = pos
	return nil
}

func (s *service) Select(req SelectRequest, resp *PositionResponse) error {
	pos, err := s.daemon.Select(req.Item)
	if err != nil {
		return err
	}
	resp.Position = pos
	return nil
}

func (s *service) Play(req PlayRequest, resp *PositionResponse) error {
	resp.Position = s.daemon.Play(req.Reverse)
	return nil
}

func (s *service) Pause(_ PauseRequest, resp *PositionResponse) error {
	resp.Position = s.daemon.Pause()
	return nil
}

func (s *service) Remove(req RemoveRequest, resp *RemoveResponse) error {
	ctx, cancel := context.WithTimeout(s.ctx, removeTimeout)
	defer cancel()
	id, err := s.daemon.Remove(ctx, req.Item)
	if err != nil {
		return err
	}
	resp.Removed = id
	return nil
}

func (s *service) Load(req LoadRequest, resp *LoadResponse) error {
	if err := s.daemon.Load(req.Item, req.Frame); err != nil {
		return err
	}
	resp.Queued = true
	return nil
}

func (s *service) Settings(req SettingsRequest, resp *SettingsResponse) error {
	if req.Update.Empty() {
		resp.Settings = s.daemon.Settings()
		return nil
	}
	resp.Settings = s.daemon.UpdateSettings(req.Update)
	s.logger.Info("cache settings updated via IPC",
		logging.Event("settings_update"),
		logging.Int64("max_bytes", resp.Settings.MaxBytes),
		logging.Int("workers", resp.Settings.Workers),
		logging.Bool("enabled", resp.Settings.Enabled))
	return nil
}

func (s *service) Plan(_ PlanRequest, resp *PlanResponse) error {
	ctx, cancel := context.WithTimeout(s.ctx, planTimeout)
	defer cancel()
	preview, err := s.daemon.Plan(ctx)
	if err != nil {
		return err
	}
	resp.Preview = preview
	return nil
}

func (s *service) History(req HistoryRequest, resp *HistoryResponse) error {
	samples, summary, err := s.daemon.History(s.ctx, req.Limit)
	if err != nil {
		return err
	}
	resp.Samples = samples
	resp.Summary = summary
	return nil
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	logPath := s.daemon.LogPath()
	if logPath == "" {
		return nil
	}
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	if wait <= 0 && req.Follow {
		wait = time.Second
	}
	ctx := s.ctx
	if req.Follow && wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait+500*time.Millisecond)
		defer cancel()
	}
	result, err := logs.Tail(ctx, logPath, logs.TailOptions{
		Offset: req.Offset,
		Limit:  req.Limit,
		Follow: req.Follow,
		Wait:   wait,
		Match:  req.Match,
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	resp.Lines = result.Lines
	resp.Offset = result.Offset
	return nil
}
