package config_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"subburn/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "share", "subburn")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if cfg.Paths.AudioDir != filepath.Join(wantState, "audio") {
		t.Fatalf("unexpected audio dir: %q", cfg.Paths.AudioDir)
	}
	if cfg.Store.Backend != config.StoreBackendSQLite {
		t.Fatalf("unexpected store backend: %q", cfg.Store.Backend)
	}
	if cfg.Store.Path != filepath.Join(wantState, "subburn.db") {
		t.Fatalf("unexpected store path: %q", cfg.Store.Path)
	}
	if cfg.Cache.Retention != config.RetentionKeepAll {
		t.Fatalf("expected keep_all retention, got %q", cfg.Cache.Retention)
	}
	if cfg.Daemon.LockPath != filepath.Join(wantState, "logs", "subburnd.lock") {
		t.Fatalf("unexpected lock path: %q", cfg.Daemon.LockPath)
	}
	if cfg.Simulate.TotalSeconds != 8 {
		t.Fatalf("unexpected simulate budget: %v", cfg.Simulate.TotalSeconds)
	}
	if cfg.Ingest.MaxFileBytes != 100*1024*1024 {
		t.Fatalf("unexpected max file bytes: %d", cfg.Ingest.MaxFileBytes)
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	configPath := filepath.Join(t.TempDir(), "config.toml")
	payload := map[string]any{
		"paths": map[string]any{
			"state_dir": "~/state",
		},
		"store": map[string]any{
			"backend": "FILE",
		},
		"engine": map[string]any{
			"max_concurrent": 3,
		},
		"style": map[string]any{
			"font_color": "#ff0000",
		},
	}
	data, err := toml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("unexpected resolution: %q exists=%v", resolved, exists)
	}
	if cfg.Paths.StateDir != filepath.Join(tempHome, "state") {
		t.Fatalf("unexpected state dir: %q", cfg.Paths.StateDir)
	}
	if cfg.Store.Backend != config.StoreBackendFile {
		t.Fatalf("expected file backend, got %q", cfg.Store.Backend)
	}
	if cfg.Store.Dir != filepath.Join(tempHome, "state", "jobs") {
		t.Fatalf("unexpected store dir: %q", cfg.Store.Dir)
	}
	if cfg.Engine.MaxConcurrent != 3 {
		t.Fatalf("unexpected max concurrent: %d", cfg.Engine.MaxConcurrent)
	}
	if cfg.Style.FontColor != "#FF0000" {
		t.Fatalf("expected upper-cased colour, got %q", cfg.Style.FontColor)
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
	t.Setenv("SUBBURN_ENGINE_MAX_CONCURRENT", "5")
	t.Setenv("SUBBURN_SIMULATE_ENABLED", "true")
	t.Setenv("SUBBURN_LOGGING_LEVEL", "DEBUG")

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Engine.MaxConcurrent != 5 {
		t.Fatalf("expected env override, got %d", cfg.Engine.MaxConcurrent)
	}
	if !cfg.Simulate.Enabled {
		t.Fatal("expected simulate enabled from env")
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected normalized level, got %q", cfg.Logging.Level)
	}
}

func TestDotEnvLoadedFromWorkingDirectory(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("SUBBURN_CACHE_ENABLED=false\n"), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("SUBBURN_CACHE_ENABLED") })

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Cache.Enabled {
		t.Fatal("expected cache disabled from .env")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"store backend", func(c *config.Config) { c.Store.Backend = "postgres" }, "store.backend"},
		{"max entries", func(c *config.Config) { c.Cache.Retention = config.RetentionMaxEntries }, "cache.max_entries"},
		{"font size", func(c *config.Config) { c.Style.FontSize = 100 }, "style.font_size"},
		{"colour", func(c *config.Config) { c.Style.FontColor = "white" }, "style.font_color"},
		{"minio endpoint", func(c *config.Config) { c.Artifacts.Backend = config.ArtifactsBackendMinio }, "artifacts.endpoint"},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in %q", tc.want, err.Error())
			}
		})
	}
}

func TestEnsureDirectoriesCreatesLayout(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.Paths.UploadsDir, cfg.Paths.AudioDir, cfg.Paths.OutputsDir, cfg.Paths.LogDir, cfg.Cache.Dir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %q: %v", dir, err)
		}
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	if _, _, exists, err := config.Load(path); err != nil || !exists {
		t.Fatalf("sample config should load: exists=%v err=%v", exists, err)
	}
}

func TestJobPaths(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.AudioDir = "/a"
	cfg.Paths.OutputsDir = "/o"
	if got := cfg.AudioPath("x"); got != "/a/x.wav" {
		t.Fatalf("audio path %q", got)
	}
	if got := cfg.TranscriptPath("x"); got != "/o/x_transcript.json" {
		t.Fatalf("transcript path %q", got)
	}
	if got := cfg.OutputPath("x"); got != "/o/x_captioned.mp4" {
		t.Fatalf("output path %q", got)
	}
}

func TestEnvUsageListsPrefixedVariables(t *testing.T) {
	var buf bytes.Buffer
	if err := config.EnvUsage(&buf); err != nil {
		t.Fatalf("EnvUsage: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"SUBBURN_PATHS_STATE_DIR", "SUBBURN_DAEMON_SOCKET_PATH"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in usage output:\n%s", want, out)
		}
	}
}
