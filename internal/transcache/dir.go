package transcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"subburn/internal/fileutil"
	"subburn/internal/fingerprint"
	"subburn/internal/logging"
	"subburn/internal/services"
	"subburn/internal/transcript"
)

const entrySuffix = ".json"

type record struct {
	Fingerprint   string                   `json:"fingerprint"`
	CreatedAt     time.Time                `json:"created_at"`
	Transcription transcript.Transcription `json:"transcription"`
}

// DirCache keeps one JSON file per fingerprint under a directory. The file
// modification time records the last access and drives MaxEntries eviction.
type DirCache struct {
	dir     string
	policy  RetentionPolicy
	logger  *slog.Logger
	now     func() time.Time
	onEvict func(fp string)

	hits   atomic.Int64
	misses atomic.Int64
}

// DirOption customises a DirCache.
type DirOption func(*DirCache)

// WithClock overrides the cache's time source.
func WithClock(now func() time.Time) DirOption {
	return func(c *DirCache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithEvictHook registers fn to run for every fingerprint the cache drops,
// whether by retention, Remove, Clear or a corrupt read. Layered uses it to
// keep a fast tier from outliving its durable copy.
func WithEvictHook(fn func(fp string)) DirOption {
	return func(c *DirCache) {
		c.onEvict = fn
	}
}

// NewDirCache prepares dir and returns a cache using policy. A nil policy
// keeps everything.
func NewDirCache(dir string, policy RetentionPolicy, logger *slog.Logger, opts ...DirOption) (*DirCache, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("transcache: cache directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("transcache: ensure dir: %w", err)
	}
	if policy == nil {
		policy = KeepAll{}
	}
	c := &DirCache{
		dir:    dir,
		policy: policy,
		logger: logging.NewComponentLogger(logger, "transcache"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Dir returns the cache directory.
func (c *DirCache) Dir() string { return c.dir }

// Policy returns the active retention policy.
func (c *DirCache) Policy() RetentionPolicy { return c.policy }

func (c *DirCache) path(fp string) string {
	return filepath.Join(c.dir, fp+entrySuffix)
}

func (c *DirCache) drop(fp string) error {
	if err := fileutil.RemoveIfExists(c.path(fp)); err != nil {
		return err
	}
	if c.onEvict != nil {
		c.onEvict(fp)
	}
	return nil
}

func checkKey(fp string) error {
	if !fingerprint.Valid(fp) {
		return services.Wrap(services.ErrValidation, "cache", "key", fmt.Sprintf("invalid fingerprint %q", fp), nil)
	}
	return nil
}

// Get returns the stored transcription for fp and records the access.
// An unreadable entry is removed and reported as a miss.
func (c *DirCache) Get(ctx context.Context, fp string) (transcript.Transcription, bool, error) {
	if err := checkKey(fp); err != nil {
		return transcript.Transcription{}, false, err
	}
	if err := ctx.Err(); err != nil {
		return transcript.Transcription{}, false, err
	}
	path := c.path(fp)
	rec, err := readRecord(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.misses.Add(1)
			return transcript.Transcription{}, false, nil
		}
		logging.WarnWithContext(c.logger, "discarding unreadable cache entry", "transcache_entry_corrupt",
			logging.String("fingerprint", fp),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "entry will be regenerated on next transcription"),
		)
		_ = c.drop(fp)
		c.misses.Add(1)
		return transcript.Transcription{}, false, nil
	}
	now := c.now()
	_ = os.Chtimes(path, now, now)
	c.hits.Add(1)
	return rec.Transcription, true, nil
}

// Has reports whether an entry for fp exists without reading it.
func (c *DirCache) Has(fp string) bool {
	return checkKey(fp) == nil && fileutil.Exists(c.path(fp))
}

// Put stores t under fp unless an entry already exists, then applies the
// retention policy to the other entries.
func (c *DirCache) Put(ctx context.Context, fp string, t transcript.Transcription) error {
	if err := checkKey(fp); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	path := c.path(fp)
	if fileutil.Exists(path) {
		return nil
	}
	now := c.now()
	rec := record{Fingerprint: fp, CreatedAt: now.UTC(), Transcription: t}
	if rec.Transcription.Segments == nil {
		rec.Transcription.Segments = []transcript.Segment{}
	}
	if err := fileutil.WriteJSONAtomic(path, rec); err != nil {
		return fmt.Errorf("transcache: put: %w", err)
	}
	_ = os.Chtimes(path, now, now)
	c.logger.DebugContext(ctx, "stored transcription",
		logging.String("fingerprint", fp),
		logging.Int("segments", len(t.Segments)),
	)
	if _, err := c.prune(ctx, fp); err != nil {
		logging.WarnWithContext(c.logger, "cache retention failed", "transcache_prune_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "cache may exceed its retention limits"),
		)
	}
	return nil
}

// List returns metadata for every readable entry.
func (c *DirCache) List(ctx context.Context) ([]Entry, error) {
	dirEntries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("transcache: list: %w", err)
	}
	out := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, entrySuffix) {
			continue
		}
		fp := strings.TrimSuffix(name, entrySuffix)
		if !fingerprint.Valid(fp) {
			continue
		}
		path := c.path(fp)
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		rec, err := readRecord(path)
		if err != nil {
			c.logger.DebugContext(ctx, "skipping unreadable cache entry", logging.String("fingerprint", fp), logging.Error(err))
			continue
		}
		out = append(out, Entry{
			Fingerprint: fp,
			Language:    rec.Transcription.Language,
			Segments:    len(rec.Transcription.Segments),
			SizeBytes:   info.Size(),
			CreatedAt:   rec.CreatedAt,
			AccessedAt:  info.ModTime(),
		})
	}
	return out, nil
}

// Stats summarises the stored entries and this process's hit counters.
func (c *DirCache) Stats(ctx context.Context) (Stats, error) {
	entries, err := c.List(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{
		Entries: len(entries),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Policy:  c.policy.String(),
	}
	for _, entry := range entries {
		stats.TotalBytes += entry.SizeBytes
		if stats.Oldest.IsZero() || entry.CreatedAt.Before(stats.Oldest) {
			stats.Oldest = entry.CreatedAt
		}
		if entry.CreatedAt.After(stats.Newest) {
			stats.Newest = entry.CreatedAt
		}
	}
	return stats, nil
}

// Prune applies the retention policy and returns the evicted fingerprints.
func (c *DirCache) Prune(ctx context.Context) ([]string, error) {
	return c.prune(ctx, "")
}

func (c *DirCache) prune(ctx context.Context, keep string) ([]string, error) {
	if _, ok := c.policy.(KeepAll); ok {
		return nil, nil
	}
	entries, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	var victims []string
	for _, fp := range c.policy.Evict(entries, c.now()) {
		if fp != keep {
			victims = append(victims, fp)
		}
	}
	removed := make([]string, 0, len(victims))
	for _, fp := range victims {
		if err := c.drop(fp); err != nil {
			return removed, fmt.Errorf("transcache: evict %s: %w", fp, err)
		}
		removed = append(removed, fp)
	}
	if len(removed) > 0 {
		c.logger.InfoContext(ctx, "evicted cache entries",
			logging.Int("count", len(removed)),
			logging.String("policy", c.policy.String()),
		)
	}
	return removed, nil
}

// Remove deletes the entry for fp. Removing a missing entry is not an error.
func (c *DirCache) Remove(fp string) error {
	if err := checkKey(fp); err != nil {
		return err
	}
	return c.drop(fp)
}

// Clear deletes every entry and returns how many were removed.
func (c *DirCache) Clear(ctx context.Context) (int, error) {
	entries, err := c.List(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, entry := range entries {
		if err := c.drop(entry.Fingerprint); err != nil {
			return removed, fmt.Errorf("transcache: clear: %w", err)
		}
		removed++
	}
	return removed, nil
}

func readRecord(path string) (record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return record{}, err
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return record{}, fmt.Errorf("parse cache entry: %w", err)
	}
	return rec, nil
}
