package transcache

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"subburn/internal/config"
	"subburn/internal/services"
)

// RetentionPolicy chooses which entries to evict. Candidates never include
// the entry that was just written.
type RetentionPolicy interface {
	Evict(entries []Entry, now time.Time) []string
	String() string
}

// KeepAll never evicts.
type KeepAll struct{}

func (KeepAll) Evict([]Entry, time.Time) []string { return nil }
func (KeepAll) String() string                    { return config.RetentionKeepAll }

// MaxEntries keeps at most N entries, evicting the least recently used.
type MaxEntries struct {
	N int
}

func (p MaxEntries) Evict(entries []Entry, _ time.Time) []string {
	if p.N <= 0 || len(entries) <= p.N {
		return nil
	}
	sorted := slices.Clone(entries)
	slices.SortFunc(sorted, func(a, b Entry) int {
		if c := a.AccessedAt.Compare(b.AccessedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Fingerprint, b.Fingerprint)
	})
	excess := len(sorted) - p.N
	out := make([]string, 0, excess)
	for _, entry := range sorted[:excess] {
		out = append(out, entry.Fingerprint)
	}
	return out
}

func (p MaxEntries) String() string { return fmt.Sprintf("%s(%d)", config.RetentionMaxEntries, p.N) }

// MaxAge evicts entries created more than D ago.
type MaxAge struct {
	D time.Duration
}

func (p MaxAge) Evict(entries []Entry, now time.Time) []string {
	if p.D <= 0 {
		return nil
	}
	cutoff := now.Add(-p.D)
	var out []string
	for _, entry := range entries {
		if entry.CreatedAt.Before(cutoff) {
			out = append(out, entry.Fingerprint)
		}
	}
	return out
}

func (p MaxAge) String() string { return fmt.Sprintf("%s(%s)", config.RetentionMaxAge, p.D) }

// PolicyFromConfig maps the [cache] retention settings to a policy.
func PolicyFromConfig(cfg config.Cache) (RetentionPolicy, error) {
	switch cfg.Retention {
	case "", config.RetentionKeepAll:
		return KeepAll{}, nil
	case config.RetentionMaxEntries:
		return MaxEntries{N: cfg.MaxEntries}, nil
	case config.RetentionMaxAge:
		return MaxAge{D: time.Duration(cfg.MaxAgeHours) * time.Hour}, nil
	default:
		return nil, services.Wrap(services.ErrValidation, "cache", "retention", fmt.Sprintf("unknown retention policy %q", cfg.Retention), nil)
	}
}
