package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"subburn/internal/config"
	"subburn/internal/daemon"
	"subburn/internal/ipc"
	"subburn/internal/logging"
	"subburn/internal/pipeline"
	"subburn/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	daemon     *daemon.Daemon
	socketPath string
	configPath string
}

func noSleep(context.Context, time.Duration) error { return nil }

// setupOfflineEnv writes a config for a fresh state dir without starting a
// daemon.
func setupOfflineEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, socketPath: cfg.Daemon.SocketPath, configPath: configPath}
}

// setupCLITestEnv additionally runs a daemon with instant simulated steps
// behind an IPC socket.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	env := setupOfflineEnv(t)

	d, err := daemon.New(env.cfg, logging.NewNop(), daemon.Options{
		EngineOptions: []pipeline.Option{pipeline.WithSleep(noSleep)},
	})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	srv, err := ipc.NewServer(ctx, env.socketPath, d, logging.NewNop())
	if err != nil {
		cancel()
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	t.Cleanup(func() {
		cancel()
		srv.Close()
		_ = d.Close()
	})
	env.daemon = d
	return env
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
state_dir = %q

[store]
backend = %q

[cache]
enabled = %t
dir = %q

[engine]
min_free_mb = 0

[simulate]
total_seconds = 0

[metrics]
bind = ""

[logging]
level = "error"

[daemon]
socket_path = %q
lock_path = %q
`,
		cfg.Paths.StateDir,
		cfg.Store.Backend,
		cfg.Cache.Enabled,
		cfg.Cache.Dir,
		cfg.Daemon.SocketPath,
		cfg.Daemon.LockPath,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
