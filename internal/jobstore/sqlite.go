package jobstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"subburn/internal/jobs"
	"subburn/internal/services"
)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 6
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// SQLiteStore keeps one row per job; the full record is stored as JSON next
// to the columns used for filtering and ordering.
type SQLiteStore struct {
	db    *sql.DB
	path  string
	locks *keyedMutex
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string, busyTimeoutMillis int) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("jobstore: sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure store directory: %w", err)
	}
	if busyTimeoutMillis <= 0 {
		busyTimeoutMillis = 5000
	}

	// Pragmas in the DSN apply to every pooled connection. Immediate
	// transactions take the write lock up front so read-modify-write cycles
	// from several processes serialise instead of failing at commit.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate",
		path, busyTimeoutMillis)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	store := &SQLiteStore{db: db, path: path, locks: newKeyedMutex()}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Create inserts a new job row.
func (s *SQLiteStore) Create(ctx context.Context, job *jobs.Job) error {
	ctx = ensureContext(ctx)
	if job == nil {
		return services.Wrap(services.ErrValidation, "jobstore", "create", "job is nil", nil)
	}
	if err := validateID(job.ID); err != nil {
		return err
	}
	record, err := encodeRecord(job)
	if err != nil {
		return err
	}
	now := time.Now().UTC().UnixNano()

	var affected int64
	err = retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO jobs (id, owner, status, created_at, updated_at, record)
             VALUES (?, ?, ?, ?, ?, ?)
             ON CONFLICT(id) DO NOTHING`,
			job.ID, job.Owner, string(job.Status), job.CreatedAt.UTC().UnixNano(), now, record,
		)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	if affected == 0 {
		return alreadyExists(job.ID)
	}
	return nil
}

// Get fetches a job by identifier.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*jobs.Job, error) {
	ctx = ensureContext(ctx)
	if err := validateID(id); err != nil {
		return nil, err
	}
	var raw string
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx, `SELECT record FROM jobs WHERE id = ?`, id).Scan(&raw)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return decodeRecord(raw)
}

// Update performs a read-modify-write inside one transaction.
func (s *SQLiteStore) Update(ctx context.Context, id string, fn func(*jobs.Job) error) (*jobs.Job, error) {
	ctx = ensureContext(ctx)
	if err := validateID(id); err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	var updated *jobs.Job
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		var raw string
		if err := tx.QueryRowContext(ctx, `SELECT record FROM jobs WHERE id = ?`, id).Scan(&raw); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return notFound(id)
			}
			return err
		}
		job, err := decodeRecord(raw)
		if err != nil {
			return err
		}
		if err := fn(job); err != nil {
			return err
		}
		if job.ID != id {
			return services.Wrap(services.ErrValidation, "jobstore", "update", "job id cannot change", nil)
		}
		record, err := encodeRecord(job)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE jobs SET owner = ?, status = ?, updated_at = ?, record = ? WHERE id = ?`,
			job.Owner, string(job.Status), time.Now().UTC().UnixNano(), record, id,
		); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		updated = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated.Clone(), nil
}

// List streams records newest first.
func (s *SQLiteStore) List(ctx context.Context, filter Filter) iter.Seq2[*jobs.Job, error] {
	ctx = ensureContext(ctx)
	return func(yield func(*jobs.Job, error) bool) {
		rows, err := s.db.QueryContext(ctx, `SELECT record FROM jobs ORDER BY created_at DESC, id ASC`)
		if err != nil {
			yield(nil, fmt.Errorf("list jobs: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var raw string
			if err := rows.Scan(&raw); err != nil {
				yield(nil, fmt.Errorf("scan job: %w", err))
				return
			}
			job, err := decodeRecord(raw)
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}
			if !filter.match(job) {
				continue
			}
			if !yield(job, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, fmt.Errorf("iterate jobs: %w", err))
		}
	}
}

func encodeRecord(job *jobs.Job) (string, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	return string(data), nil
}

func decodeRecord(raw string) (*jobs.Job, error) {
	var job jobs.Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("decode job record: %w", err)
	}
	return &job, nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
