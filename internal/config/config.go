package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains working directory configuration.
type Paths struct {
	StateDir   string `toml:"state_dir" split_words:"true"`
	UploadsDir string `toml:"uploads_dir" split_words:"true"`
	AudioDir   string `toml:"audio_dir" split_words:"true"`
	OutputsDir string `toml:"outputs_dir" split_words:"true"`
	LogDir     string `toml:"log_dir" split_words:"true"`
}

// Store selects and configures the job store backend.
type Store struct {
	Backend           string `toml:"backend" split_words:"true"`
	Path              string `toml:"path" split_words:"true"`
	Dir               string `toml:"dir" split_words:"true"`
	BusyTimeoutMillis int    `toml:"busy_timeout_ms" split_words:"true"`
}

// Cache contains configuration for the transcription cache.
type Cache struct {
	Enabled       bool   `toml:"enabled" split_words:"true"`
	Dir           string `toml:"dir" split_words:"true"`
	Retention     string `toml:"retention" split_words:"true"`
	MaxEntries    int    `toml:"max_entries" split_words:"true"`
	MaxAgeHours   int    `toml:"max_age_hours" split_words:"true"`
	MemoryEntries int    `toml:"memory_entries" split_words:"true"`
}

// Tools names the external binaries used by the collaborators.
type Tools struct {
	FFmpeg  string `toml:"ffmpeg"`
	FFprobe string `toml:"ffprobe"`
	UVX     string `toml:"uvx" split_words:"true"`
}

// Transcription contains WhisperX settings.
type Transcription struct {
	Model          string `toml:"model" split_words:"true"`
	CUDAEnabled    bool   `toml:"cuda_enabled" split_words:"true"`
	VADMethod      string `toml:"vad_method" split_words:"true"`
	HFToken        string `toml:"hf_token" split_words:"true"`
	Language       string `toml:"language" split_words:"true"`
	TimeoutSeconds int    `toml:"timeout_seconds" split_words:"true"`
}

// Engine contains pipeline execution settings.
type Engine struct {
	MaxConcurrent          int `toml:"max_concurrent" split_words:"true"`
	ShutdownTimeoutSeconds int `toml:"shutdown_timeout_seconds" split_words:"true"`
	MinFreeMB              int `toml:"min_free_mb" split_words:"true"`
}

// Simulate controls the simulated pipeline.
type Simulate struct {
	Enabled      bool    `toml:"enabled" split_words:"true"`
	TotalSeconds float64 `toml:"total_seconds" split_words:"true"`
}

// Style holds the default caption style applied when a request omits fields.
type Style struct {
	FontFamily  string `toml:"font_family" split_words:"true"`
	FontSize    int    `toml:"font_size" split_words:"true"`
	FontColor   string `toml:"font_color" split_words:"true"`
	StrokeColor string `toml:"stroke_color" split_words:"true"`
	StrokeWidth int    `toml:"stroke_width" split_words:"true"`
	Padding     int    `toml:"padding" split_words:"true"`
}

// Ingest bounds uploads and URL downloads.
type Ingest struct {
	MaxFileBytes           int64 `toml:"max_file_bytes" split_words:"true"`
	DownloadTimeoutSeconds int   `toml:"download_timeout_seconds" split_words:"true"`
}

// Artifacts configures where finished outputs are published.
type Artifacts struct {
	Backend   string `toml:"backend" split_words:"true"`
	Endpoint  string `toml:"endpoint" split_words:"true"`
	Bucket    string `toml:"bucket" split_words:"true"`
	Prefix    string `toml:"prefix" split_words:"true"`
	Region    string `toml:"region" split_words:"true"`
	AccessKey string `toml:"access_key" split_words:"true"`
	SecretKey string `toml:"secret_key" split_words:"true"`
	UseSSL    bool   `toml:"use_ssl" split_words:"true"`
}

// Metrics configures the Prometheus listener.
type Metrics struct {
	Bind string `toml:"bind" split_words:"true"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format" split_words:"true"`
	Level         string `toml:"level" split_words:"true"`
	RetentionDays int    `toml:"retention_days" split_words:"true"`
}

// Daemon contains socket and lock locations for the background process.
type Daemon struct {
	SocketPath string `toml:"socket_path" split_words:"true"`
	LockPath   string `toml:"lock_path" split_words:"true"`
}

// Config encapsulates all configuration values for subburn.
//
// Configuration sections by subsystem:
//   - Paths: working directories for uploads, audio, outputs and logs
//   - Store: job store backend (sqlite or file)
//   - Cache: transcription cache location and retention
//   - Tools: ffmpeg/ffprobe/uvx binaries
//   - Transcription: WhisperX model settings
//   - Engine: concurrency and shutdown
//   - Simulate: simulated pipeline budget
//   - Style: default caption style
//   - Ingest: upload/download limits
//   - Artifacts: optional object storage publishing
//   - Metrics: Prometheus listener
//   - Logging: log format and level
//   - Daemon: IPC socket and lock file
type Config struct {
	Paths         Paths         `toml:"paths"`
	Store         Store         `toml:"store"`
	Cache         Cache         `toml:"cache"`
	Tools         Tools         `toml:"tools"`
	Transcription Transcription `toml:"transcription"`
	Engine        Engine        `toml:"engine"`
	Simulate      Simulate      `toml:"simulate"`
	Style         Style         `toml:"style"`
	Ingest        Ingest        `toml:"ingest"`
	Artifacts     Artifacts     `toml:"artifacts"`
	Metrics       Metrics       `toml:"metrics"`
	Logging       Logging       `toml:"logging"`
	Daemon        Daemon        `toml:"daemon"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. A .env file in
// the working directory and SUBBURN_* environment variables are applied on
// top of the file. The returned config has all path fields expanded.
func Load(path string) (*Config, string, bool, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, "", false, err
	}

	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("subburn.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for engine operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.StateDir, c.Paths.UploadsDir, c.Paths.AudioDir, c.Paths.OutputsDir, c.Paths.LogDir}
	if c.Store.Backend == StoreBackendFile {
		dirs = append(dirs, c.Store.Dir)
	} else {
		dirs = append(dirs, filepath.Dir(c.Store.Path))
	}
	if c.Cache.Enabled {
		dirs = append(dirs, c.Cache.Dir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// AudioPath returns the transient audio location for a job.
func (c *Config) AudioPath(jobID string) string {
	return filepath.Join(c.Paths.AudioDir, jobID+".wav")
}

// TranscriptPath returns the persisted transcript location for a job.
func (c *Config) TranscriptPath(jobID string) string {
	return filepath.Join(c.Paths.OutputsDir, jobID+"_transcript.json")
}

// OutputPath returns the captioned artifact location for a job.
func (c *Config) OutputPath(jobID string) string {
	return filepath.Join(c.Paths.OutputsDir, jobID+"_captioned.mp4")
}
