package config

const (
	defaultConfigPath             = "~/.config/subburn/config.toml"
	defaultStateDir               = "~/.local/share/subburn"
	defaultCacheDir               = "~/.cache/subburn/transcripts"
	defaultStoreBackend           = StoreBackendSQLite
	defaultBusyTimeoutMillis      = 5000
	defaultCacheRetention         = RetentionKeepAll
	defaultCacheMemoryEntries     = 128
	defaultFFmpeg                 = "ffmpeg"
	defaultFFprobe                = "ffprobe"
	defaultUVX                    = "uvx"
	defaultWhisperXModel          = "large-v3-turbo"
	defaultWhisperXVADMethod      = "silero"
	defaultTranscriptionTimeout   = 3600
	defaultShutdownTimeoutSeconds = 30
	defaultMinFreeMB              = 512
	defaultSimulateTotalSeconds   = 8
	defaultFontFamily             = "Arial"
	defaultFontSize               = 24
	defaultFontColor              = "#FFFFFF"
	defaultStrokeColor            = "#000000"
	defaultStrokeWidth            = 2
	defaultPadding                = 10
	defaultMaxFileBytes           = 100 * 1024 * 1024
	defaultDownloadTimeoutSeconds = 60
	defaultArtifactsBackend       = ArtifactsBackendLocal
	defaultArtifactsPrefix        = "subburn"
	defaultMetricsBind            = "127.0.0.1:9478"
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultLogRetentionDays       = 30
)

// Store backends.
const (
	StoreBackendSQLite = "sqlite"
	StoreBackendFile   = "file"
)

// Cache retention policies.
const (
	RetentionKeepAll    = "keep_all"
	RetentionMaxEntries = "max_entries"
	RetentionMaxAge     = "max_age"
)

// Artifact publishing backends.
const (
	ArtifactsBackendLocal = "local"
	ArtifactsBackendMinio = "minio"
)

// Default returns a Config populated with repository defaults. Directories
// left empty here are derived from paths.state_dir during normalisation.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
		},
		Store: Store{
			Backend:           defaultStoreBackend,
			BusyTimeoutMillis: defaultBusyTimeoutMillis,
		},
		Cache: Cache{
			Enabled:       true,
			Dir:           defaultCacheDir,
			Retention:     defaultCacheRetention,
			MemoryEntries: defaultCacheMemoryEntries,
		},
		Tools: Tools{
			FFmpeg:  defaultFFmpeg,
			FFprobe: defaultFFprobe,
			UVX:     defaultUVX,
		},
		Transcription: Transcription{
			Model:          defaultWhisperXModel,
			VADMethod:      defaultWhisperXVADMethod,
			TimeoutSeconds: defaultTranscriptionTimeout,
		},
		Engine: Engine{
			ShutdownTimeoutSeconds: defaultShutdownTimeoutSeconds,
			MinFreeMB:              defaultMinFreeMB,
		},
		Simulate: Simulate{
			TotalSeconds: defaultSimulateTotalSeconds,
		},
		Style: Style{
			FontFamily:  defaultFontFamily,
			FontSize:    defaultFontSize,
			FontColor:   defaultFontColor,
			StrokeColor: defaultStrokeColor,
			StrokeWidth: defaultStrokeWidth,
			Padding:     defaultPadding,
		},
		Ingest: Ingest{
			MaxFileBytes:           defaultMaxFileBytes,
			DownloadTimeoutSeconds: defaultDownloadTimeoutSeconds,
		},
		Artifacts: Artifacts{
			Backend: defaultArtifactsBackend,
			Prefix:  defaultArtifactsPrefix,
			UseSSL:  true,
		},
		Metrics: Metrics{
			Bind: defaultMetricsBind,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
