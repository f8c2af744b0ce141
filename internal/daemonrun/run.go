package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"framecache/internal/config"
	"framecache/internal/daemon"
	"framecache/internal/history"
	"framecache/internal/ipc"
	"framecache/internal/logging"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
	// SocketPath overrides the configured control socket.
	SocketPath string
	// NoStart keeps the cache stopped until a client sends start.
	NoStart bool
}

// Run starts the framecache daemon and blocks until a signal or a shutdown
// request arrives.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		cfg.Logging.Level = level
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sessionID := uuid.NewString()
	logger, err := logging.NewFromConfig(cfg, sessionID)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "framecache*.log", Exclude: []string{cfg.LogPath()}},
	)
	logConfigSnapshot(logger, cfg)

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	var store *history.Store
	if cfg.History.Enabled {
		store, err = history.Open(cfg)
		if err != nil {
			logger.Error("open history store", logging.Error(err))
			return err
		}
		store.SetSession(sessionID)
	}

	d, err := daemon.New(cfg, logger, daemon.Options{SessionID: sessionID, History: store})
	if err != nil {
		if store != nil {
			store.Close()
		}
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	socketPath := strings.TrimSpace(opts.SocketPath)
	if socketPath == "" {
		socketPath = cfg.SocketPath()
	}
	ipcServer, err := ipc.NewServer(signalCtx, socketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if !opts.NoStart {
		if err := d.Start(signalCtx); err != nil {
			logger.Warn("cache start failed",
				logging.Error(err),
				logging.Event("daemon_start_failed"),
				logging.String(logging.FieldErrorHint, "check the lock file and history database access"),
				logging.String(logging.FieldImpact, "frames are only decoded on demand"),
			)
		}
	}

	select {
	case <-signalCtx.Done():
	case <-d.ShutdownRequested():
	}
	logger.Info("framecache daemon shutting down",
		logging.Event("daemon_shutdown"))
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	logger.Info("configuration snapshot",
		logging.Event("config_snapshot"),
		logging.Int64("max_bytes", cfg.Cache.MaxBytes()),
		logging.Int("workers", cfg.Cache.Workers),
		logging.Bool("enabled", cfg.Cache.Enabled),
		logging.Int("items", len(cfg.Playlist.Items)),
		logging.Bool("history_enabled", cfg.History.Enabled),
		logging.String("socket", cfg.SocketPath()),
	)
}
