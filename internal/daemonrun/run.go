// Package daemonrun runs the subburn daemon process: logging, pid file,
// daemon lifecycle and the IPC socket, until a signal arrives.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"subburn/internal/config"
	"subburn/internal/daemon"
	"subburn/internal/deps"
	"subburn/internal/ipc"
	"subburn/internal/logging"
)

// Options configures daemon process runtime behavior.
type Options struct {
	// LogLevel overrides [logging] level when set.
	LogLevel string
	// Daemon is passed through to daemon.New.
	Daemon daemon.Options
	// Ready, when set, is called once the IPC socket is accepting requests.
	Ready func(socketPath string)
}

// Run starts the daemon and blocks until ctx ends or SIGINT/SIGTERM arrives.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	runCfg := *cfg
	if opts.LogLevel != "" {
		runCfg.Logging.Level = opts.LogLevel
	}
	started := time.Now()
	logger, logPath, err := logging.NewDaemonLogger(&runCfg, started)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logDependencySnapshot(logger, cfg)
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update subburnd.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Paths.LogDir, logging.SessionLogPattern, cfg.Logging.RetentionDays, started, logPath)

	pidPath := filepath.Join(cfg.Paths.LogDir, "subburnd.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	daemonOpts := opts.Daemon
	if daemonOpts.LogPath == "" {
		daemonOpts.LogPath = logPath
	}
	d, err := daemon.New(cfg, logger, daemonOpts)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logger.Error("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check for another running daemon and job store access"))
		return err
	}

	ipcServer, err := ipc.NewServer(signalCtx, cfg.Daemon.SocketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()
	if opts.Ready != nil {
		opts.Ready(ipcServer.Path())
	}

	<-signalCtx.Done()
	logger.Info("subburn daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "subburnd.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Bool("simulate", cfg.Simulate.Enabled),
		logging.String("whisperx_model", cfg.Transcription.Model),
		logging.Bool("whisperx_cuda", cfg.Transcription.CUDAEnabled),
		logging.String("whisperx_vad_method", cfg.Transcription.VADMethod),
		logging.Bool("cache_enabled", cfg.Cache.Enabled),
		logging.String("artifacts_backend", cfg.Artifacts.Backend),
	}
	for _, status := range deps.Check(cfg) {
		key := strings.ReplaceAll(strings.ToLower(status.Name), " ", "_")
		attrs = append(attrs,
			logging.Bool(key+"_available", status.Available),
			logging.String(key+"_command", status.Command))
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}
