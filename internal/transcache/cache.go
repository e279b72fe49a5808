package transcache

import (
	"context"
	"log/slog"
	"time"

	"subburn/internal/config"
	"subburn/internal/transcript"
)

// Cache maps a fingerprint to a previously produced transcription.
type Cache interface {
	Get(ctx context.Context, fingerprint string) (transcript.Transcription, bool, error)
	Put(ctx context.Context, fingerprint string, t transcript.Transcription) error
}

// Entry describes one stored transcription.
type Entry struct {
	Fingerprint string    `json:"fingerprint"`
	Language    string    `json:"language,omitempty"`
	Segments    int       `json:"segments"`
	SizeBytes   int64     `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at"`
	AccessedAt  time.Time `json:"accessed_at"`
}

// Stats summarises cache usage.
type Stats struct {
	Entries    int       `json:"entries"`
	TotalBytes int64     `json:"total_bytes"`
	Oldest     time.Time `json:"oldest,omitzero"`
	Newest     time.Time `json:"newest,omitzero"`
	Hits       int64     `json:"hits"`
	Misses     int64     `json:"misses"`
	Policy     string    `json:"policy"`
}

// Disabled is a Cache that never hits and discards puts.
type Disabled struct{}

func (Disabled) Get(context.Context, string) (transcript.Transcription, bool, error) {
	return transcript.Transcription{}, false, nil
}

func (Disabled) Put(context.Context, string, transcript.Transcription) error { return nil }

// Open builds the cache described by cfg. A disabled cache yields Disabled.
// When memory_entries is positive a Memory tier fronts the directory cache
// and forgets every entry the directory drops.
func Open(cfg *config.Config, logger *slog.Logger) (Cache, *DirCache, error) {
	if cfg == nil || !cfg.Cache.Enabled {
		return Disabled{}, nil, nil
	}
	policy, err := PolicyFromConfig(cfg.Cache)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Cache.MemoryEntries <= 0 {
		dir, err := NewDirCache(cfg.Cache.Dir, policy, logger)
		if err != nil {
			return nil, nil, err
		}
		return dir, dir, nil
	}
	mem := NewMemory(cfg.Cache.MemoryEntries)
	dir, err := NewDirCache(cfg.Cache.Dir, policy, logger, WithEvictHook(mem.Remove))
	if err != nil {
		return nil, nil, err
	}
	return NewLayered(mem, dir), dir, nil
}
