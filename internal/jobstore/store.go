package jobstore

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"regexp"

	"subburn/internal/config"
	"subburn/internal/jobs"
	"subburn/internal/services"
)

// Store is the single source of truth for job records.
type Store interface {
	// Create persists a new job. It fails with services.ErrAlreadyExists when
	// the id is taken.
	Create(ctx context.Context, job *jobs.Job) error
	// Get returns a snapshot or services.ErrNotFound.
	Get(ctx context.Context, id string) (*jobs.Job, error)
	// Update runs fn on the latest record and persists the result. Updates of
	// the same id never interleave. If fn returns an error nothing is written.
	// fn may be invoked again when the backend retries a busy write, so it
	// must only mutate the job it is given.
	Update(ctx context.Context, id string, fn func(*jobs.Job) error) (*jobs.Job, error)
	// List lazily yields snapshots matching filter. Each call re-scans.
	List(ctx context.Context, filter Filter) iter.Seq2[*jobs.Job, error]
	Close() error
}

// Filter selects jobs during List. A nil Filter matches everything.
type Filter func(*jobs.Job) bool

// All matches every job.
func All() Filter { return nil }

// ByOwner matches jobs submitted by owner.
func ByOwner(owner string) Filter {
	return func(job *jobs.Job) bool { return job.Owner == owner }
}

// ByStatus matches jobs in any of the given statuses.
func ByStatus(statuses ...jobs.Status) Filter {
	set := make(map[jobs.Status]struct{}, len(statuses))
	for _, status := range statuses {
		set[status] = struct{}{}
	}
	return func(job *jobs.Job) bool {
		_, ok := set[job.Status]
		return ok
	}
}

// And matches jobs accepted by every non-nil filter.
func And(filters ...Filter) Filter {
	return func(job *jobs.Job) bool {
		for _, f := range filters {
			if f != nil && !f(job) {
				return false
			}
		}
		return true
	}
}

func (f Filter) match(job *jobs.Job) bool {
	return f == nil || f(job)
}

// Collect drains a List sequence into a slice.
func Collect(seq iter.Seq2[*jobs.Job, error]) ([]*jobs.Job, error) {
	var out []*jobs.Job
	for job, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, job)
	}
	return out, nil
}

// Open selects the backend named by [store] backend.
func Open(cfg *config.Config, logger *slog.Logger) (Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("jobstore: config is required")
	}
	switch cfg.Store.Backend {
	case config.StoreBackendFile:
		return OpenFileStore(cfg.Store.Dir, logger)
	case config.StoreBackendSQLite, "":
		return OpenSQLite(cfg.Store.Path, cfg.Store.BusyTimeoutMillis)
	default:
		return nil, fmt.Errorf("jobstore: unsupported backend %q", cfg.Store.Backend)
	}
}

var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

func validateID(id string) error {
	if !idPattern.MatchString(id) {
		return services.Wrap(services.ErrValidation, "jobstore", "id", fmt.Sprintf("invalid job id %q", id), nil)
	}
	return nil
}

func notFound(id string) error {
	return services.Wrap(services.ErrNotFound, "jobstore", "get", fmt.Sprintf("job %s", id), nil)
}

func alreadyExists(id string) error {
	return services.Wrap(services.ErrAlreadyExists, "jobstore", "create", fmt.Sprintf("job %s", id), nil)
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}
