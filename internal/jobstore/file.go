package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"subburn/internal/fileutil"
	"subburn/internal/jobs"
	"subburn/internal/logging"
	"subburn/internal/services"
)

const (
	recordExt      = ".json"
	lockExt        = ".lock"
	lockRetryDelay = 25 * time.Millisecond
)

// FileStore keeps one JSON document per job under dir. Writes go through a
// temp file and rename, and every read-modify-write holds an exclusive flock
// on <id>.lock so separate processes sharing dir serialise too.
type FileStore struct {
	dir    string
	locks  *keyedMutex
	logger *slog.Logger
}

// OpenFileStore prepares dir for use as a job store.
func OpenFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("jobstore: file store directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure store directory: %w", err)
	}
	return &FileStore{
		dir:    dir,
		locks:  newKeyedMutex(),
		logger: logging.NewComponentLogger(logger, "jobstore"),
	}, nil
}

// Dir returns the directory backing the store.
func (s *FileStore) Dir() string {
	return s.dir
}

// Close is a no-op; file handles are never held between calls.
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) recordPath(id string) string {
	return filepath.Join(s.dir, id+recordExt)
}

func (s *FileStore) lockPath(id string) string {
	return filepath.Join(s.dir, id+lockExt)
}

func (s *FileStore) lock(ctx context.Context, id string) (func(), error) {
	unlockLocal := s.locks.Lock(id)
	fl := flock.New(s.lockPath(id))
	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil || !locked {
		unlockLocal()
		if err == nil {
			err = ctx.Err()
		}
		return nil, fmt.Errorf("lock job %s: %w", id, err)
	}
	return func() {
		_ = fl.Unlock()
		unlockLocal()
	}, nil
}

// Create writes a new record, failing if one already exists.
func (s *FileStore) Create(ctx context.Context, job *jobs.Job) error {
	ctx = ensureContext(ctx)
	if job == nil {
		return services.Wrap(services.ErrValidation, "jobstore", "create", "job is nil", nil)
	}
	if err := validateID(job.ID); err != nil {
		return err
	}
	unlock, err := s.lock(ctx, job.ID)
	if err != nil {
		return err
	}
	defer unlock()

	if fileutil.Exists(s.recordPath(job.ID)) {
		return alreadyExists(job.ID)
	}
	return s.write(job)
}

// Get reads a record.
func (s *FileStore) Get(ctx context.Context, id string) (*jobs.Job, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	return s.read(id)
}

// Update applies fn under both the in-process and the file lock. Once a
// record is terminal it is never rewritten, so its lock file is removed
// before the lock is released.
func (s *FileStore) Update(ctx context.Context, id string, fn func(*jobs.Job) error) (*jobs.Job, error) {
	ctx = ensureContext(ctx)
	if err := validateID(id); err != nil {
		return nil, err
	}
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	retire := false
	defer func() {
		if retire {
			s.retireLock(id)
		}
		unlock()
	}()

	job, err := s.read(id)
	if err != nil {
		retire = errors.Is(err, services.ErrNotFound)
		return nil, err
	}
	if job.Status.IsTerminal() {
		retire = true
	}
	if err := fn(job); err != nil {
		return nil, err
	}
	if job.ID != id {
		return nil, services.Wrap(services.ErrValidation, "jobstore", "update", "job id cannot change", nil)
	}
	if err := s.write(job); err != nil {
		return nil, err
	}
	retire = job.Status.IsTerminal()
	return job.Clone(), nil
}

func (s *FileStore) retireLock(id string) {
	path := s.lockPath(id)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Debug("lock file removal failed", logging.String(logging.FieldJobID, id), logging.Error(err))
	}
}

// List yields records newest first by creation time, ties broken by id.
// Unreadable or corrupt records are skipped with a warning.
func (s *FileStore) List(ctx context.Context, filter Filter) iter.Seq2[*jobs.Job, error] {
	ctx = ensureContext(ctx)
	return func(yield func(*jobs.Job, error) bool) {
		entries, err := os.ReadDir(s.dir)
		if err != nil {
			yield(nil, fmt.Errorf("list jobs: %w", err))
			return
		}
		records := make([]*jobs.Job, 0, len(entries))
		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, recordExt) {
				continue
			}
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			id := strings.TrimSuffix(name, recordExt)
			job, err := s.read(id)
			if err != nil {
				if errors.Is(err, services.ErrNotFound) {
					continue
				}
				logging.WarnWithContext(s.logger, "skipping unreadable job record", "job_record_corrupt",
					logging.String(logging.FieldJobID, id),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "inspect or delete "+s.recordPath(id)),
					logging.String(logging.FieldImpact, "job omitted from listings"),
				)
				continue
			}
			if filter.match(job) {
				records = append(records, job)
			}
		}
		sort.SliceStable(records, func(i, j int) bool {
			if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
				return records[i].CreatedAt.After(records[j].CreatedAt)
			}
			return records[i].ID < records[j].ID
		})

		for _, job := range records {
			if !yield(job, nil) {
				return
			}
		}
	}
}

func (s *FileStore) read(id string) (*jobs.Job, error) {
	data, err := os.ReadFile(s.recordPath(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, notFound(id)
		}
		return nil, fmt.Errorf("read job %s: %w", id, err)
	}
	var job jobs.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &job, nil
}

func (s *FileStore) write(job *jobs.Job) error {
	if err := fileutil.WriteJSONAtomic(s.recordPath(job.ID), job); err != nil {
		return fmt.Errorf("write job %s: %w", job.ID, err)
	}
	return nil
}
