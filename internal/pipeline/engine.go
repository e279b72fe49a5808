package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"sync"
	"time"

	"subburn/internal/artifacts"
	"subburn/internal/config"
	"subburn/internal/jobs"
	"subburn/internal/jobstore"
	"subburn/internal/logging"
	"subburn/internal/metrics"
	"subburn/internal/services"
	"subburn/internal/tracker"
	"subburn/internal/transcache"
)

// waitPollInterval is how often Wait re-reads jobs run by another process.
const waitPollInterval = 250 * time.Millisecond

// SleepFunc pauses for d or until ctx ends.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Option configures optional Engine behaviour.
type Option func(*Engine)

// WithMetrics records pipeline metrics on r.
func WithMetrics(r *metrics.Recorder) Option {
	return func(e *Engine) { e.metrics = r }
}

// WithClock overrides the time source used for step timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithSleep overrides how simulated steps wait.
func WithSleep(sleep SleepFunc) Option {
	return func(e *Engine) {
		if sleep != nil {
			e.sleep = sleep
		}
	}
}

type runHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Engine owns running jobs. It is safe for concurrent use.
type Engine struct {
	cfg     *config.Config
	store   jobstore.Store
	cache   transcache.Cache
	collab  Collaborators
	logger  *slog.Logger
	tracker *tracker.Tracker
	metrics *metrics.Recorder
	now     func() time.Time
	sleep   SleepFunc

	sem chan struct{}

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup

	mu     sync.Mutex
	runs   map[string]*runHandle
	closed bool
}

// New constructs an engine. A nil cache disables caching.
func New(cfg *config.Config, store jobstore.Store, cache transcache.Cache, collab Collaborators, logger *slog.Logger, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("pipeline: config is required")
	}
	if store == nil {
		return nil, errors.New("pipeline: job store is required")
	}
	if err := collab.validate(); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	if cache == nil {
		cache = transcache.Disabled{}
	}
	if collab.Publisher == nil {
		collab.Publisher = artifacts.Local{}
	}
	baseCtx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:        cfg,
		store:      store,
		cache:      cache,
		collab:     collab,
		logger:     logging.NewComponentLogger(logger, "pipeline"),
		now:        time.Now,
		sleep:      sleepContext,
		baseCtx:    baseCtx,
		baseCancel: cancel,
		runs:       make(map[string]*runHandle),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.tracker = tracker.New(store, tracker.WithClock(e.now))
	if n := cfg.Engine.MaxConcurrent; n > 0 {
		e.sem = make(chan struct{}, n)
	}
	return e, nil
}

// Submit validates req, persists a new job, moves it to processing and
// starts it in the background. The job id is returned immediately.
func (e *Engine) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	req, style, err := e.normalizeRequest(req)
	if err != nil {
		return "", err
	}

	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return "", services.Wrap(services.ErrCollaboratorUnavailable, "submit", "engine", "engine is shutting down", nil)
	}

	id := req.ID
	if id == "" {
		id = jobs.NewID()
	}
	job := jobs.NewAt(id, req.Owner, req.SourcePath, style, e.now())
	job.SourceType = req.SourceType
	job.Filename = req.Filename
	job.SourceURL = req.SourceURL
	job.Simulate = req.Simulate
	if err := e.store.Create(ctx, job); err != nil {
		return "", err
	}
	if _, err := e.store.Update(ctx, id, func(j *jobs.Job) error { return j.MarkProcessing() }); err != nil {
		return "", err
	}

	runCtx, cancel := context.WithCancel(e.baseCtx)
	handle := &runHandle{cancel: cancel, done: make(chan struct{})}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		cancel()
		_, _ = e.tracker.Fail(context.Background(), id, "canceled: engine is shutting down")
		return "", services.Wrap(services.ErrCollaboratorUnavailable, "submit", "engine", "engine is shutting down", nil)
	}
	e.runs[id] = handle
	e.wg.Add(1)
	e.mu.Unlock()

	e.metrics.JobSubmitted()
	e.logger.InfoContext(ctx, "job submitted",
		logging.String(logging.FieldEventType, "job_submitted"),
		logging.String(logging.FieldJobID, id),
		logging.String("owner", job.Owner),
		logging.String("source", job.SourcePath),
		logging.Bool("simulate", job.Simulate),
	)

	go e.run(services.WithJobID(runCtx, id), job, handle)
	return id, nil
}

// Status returns a snapshot of the job.
func (e *Engine) Status(ctx context.Context, id string) (*jobs.Job, error) {
	return e.store.Get(ctx, id)
}

// List yields the owner's jobs, newest first. An empty owner lists every job.
func (e *Engine) List(ctx context.Context, owner string) iter.Seq2[*jobs.Job, error] {
	if owner == "" {
		return e.store.List(ctx, jobstore.All())
	}
	return e.store.List(ctx, jobstore.ByOwner(owner))
}

// Running returns the ids of jobs this engine is currently driving.
func (e *Engine) Running() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.runs))
	for id := range e.runs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Cancel aborts a running job. The job is failed with "canceled" once its
// current step observes the cancellation.
func (e *Engine) Cancel(ctx context.Context, id string) error {
	e.mu.Lock()
	handle, ok := e.runs[id]
	e.mu.Unlock()
	if ok {
		handle.cancel()
		return nil
	}
	job, err := e.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return jobs.ErrTerminal
	}
	return services.Wrap(services.ErrValidation, "cancel", "engine", fmt.Sprintf("job %s is not running in this engine", id), nil)
}

// Wait blocks until the job is terminal or ctx ends.
func (e *Engine) Wait(ctx context.Context, id string) (*jobs.Job, error) {
	e.mu.Lock()
	handle, ok := e.runs[id]
	e.mu.Unlock()
	if ok {
		select {
		case <-handle.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	ticker := time.NewTicker(waitPollInterval)
	defer ticker.Stop()
	for {
		job, err := e.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.Status.IsTerminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Shutdown cancels every running job and waits for them to record their
// terminal status. New submissions are refused from the first call.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.baseCancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pipeline shutdown: %w", ctx.Err())
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
