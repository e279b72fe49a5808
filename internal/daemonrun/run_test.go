package daemonrun

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"subburn/internal/ipc"
	"subburn/internal/testsupport"
)

func TestRunServesIPCUntilCanceled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Simulate.Enabled = true
	cfg.Logging.Format = "json"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ready := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, cfg, Options{LogLevel: "error", Ready: func(path string) { ready <- path }})
	}()

	var socket string
	select {
	case socket = <-ready:
	case err := <-done:
		t.Fatalf("Run exited early: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not become ready")
	}

	if _, err := os.Stat(filepath.Join(cfg.Paths.LogDir, "subburnd.pid")); err != nil {
		t.Fatalf("expected pid file: %v", err)
	}

	client, err := ipc.Dial(socket)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	health, err := client.Health(ctx)
	_ = client.Close()
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if !health.Running {
		t.Fatal("expected running daemon")
	}
	if health.LogPath == "" {
		t.Fatal("expected session log path in health")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not stop")
	}
	if _, err := os.Stat(socket); !os.IsNotExist(err) {
		t.Fatalf("expected socket removed, stat err %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.Paths.LogDir, "subburnd.pid")); !os.IsNotExist(err) {
		t.Fatalf("expected pid file removed, stat err %v", err)
	}
}

func TestWritePIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pid")
	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		t.Fatalf("read pid: %q %v", data, err)
	}
}
