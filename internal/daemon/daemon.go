package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"subburn/internal/config"
	"subburn/internal/deps"
	"subburn/internal/jobs"
	"subburn/internal/jobstore"
	"subburn/internal/logging"
	"subburn/internal/metrics"
	"subburn/internal/pipeline"
	"subburn/internal/services"
	"subburn/internal/transcache"
)

// Options customises how New builds the daemon. Zero values select the
// production wiring.
type Options struct {
	// Collaborators replaces the ffmpeg/WhisperX collaborators.
	Collaborators *pipeline.Collaborators
	// EngineOptions are passed through to pipeline.New.
	EngineOptions []pipeline.Option
	// LogPath is reported in health responses.
	LogPath string
}

// Daemon owns the job store and pipeline engine for one state directory.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    jobstore.Store
	cache    transcache.Cache
	cacheDir *transcache.DirCache
	engine   *pipeline.Engine
	metrics  *metrics.Recorder
	logPath  string

	lockPath string
	lock     *flock.Flock

	mu            sync.Mutex
	running       atomic.Bool
	metricsAddr   string
	metricsCancel context.CancelFunc
	metricsDone   chan struct{}
	started       time.Time
}

// Health summarises the daemon for status commands.
type Health struct {
	Running      bool
	PID          int
	Started      time.Time
	LockPath     string
	StoreBackend string
	LogPath      string
	MetricsAddr  string
	Jobs         jobstore.Summary
	Active       []string
	Cache        *transcache.Stats
	Dependencies []deps.Status
}

// New opens the store and cache and builds the engine. Nothing runs until
// Start is called.
func New(cfg *config.Config, logger *slog.Logger, opts Options) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	logger = logging.NewComponentLogger(logger, "daemon")

	store, err := jobstore.Open(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}
	cache, cacheDir, err := transcache.Open(cfg, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open transcription cache: %w", err)
	}

	var collab pipeline.Collaborators
	if opts.Collaborators != nil {
		collab = *opts.Collaborators
	} else if collab, err = pipeline.DefaultCollaborators(cfg, logger); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("configure collaborators: %w", err)
	}

	recorder := metrics.New()
	engineOpts := append([]pipeline.Option{pipeline.WithMetrics(recorder)}, opts.EngineOptions...)
	engine, err := pipeline.New(cfg, store, cache, collab, logger, engineOpts...)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		cache:    cache,
		cacheDir: cacheDir,
		engine:   engine,
		metrics:  recorder,
		logPath:  opts.LogPath,
		lockPath: cfg.Daemon.LockPath,
		lock:     flock.New(cfg.Daemon.LockPath),
	}, nil
}

// Start acquires the daemon lock, fails jobs interrupted by a previous
// process and starts the metrics listener.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another subburn daemon holds %s", d.lockPath)
	}

	recovered, err := jobstore.RecoverInterrupted(ctx, d.store, time.Now())
	if err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("recover interrupted jobs: %w", err)
	}
	if len(recovered) > 0 {
		d.logger.Warn("failed jobs interrupted by previous shutdown",
			logging.String(logging.FieldEventType, "jobs_recovered"),
			logging.Int("count", len(recovered)),
			logging.String(logging.FieldImpact, "interrupted jobs must be resubmitted"))
	}

	if err := d.startMetrics(); err != nil {
		_ = d.lock.Unlock()
		return err
	}

	d.started = time.Now()
	d.running.Store(true)
	d.logger.Info("subburn daemon started",
		logging.String(logging.FieldEventType, "daemon_start"),
		logging.String("lock", d.lockPath),
		logging.String("store", d.cfg.Store.Backend))
	return nil
}

func (d *Daemon) startMetrics() error {
	bind := d.cfg.Metrics.Bind
	if bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("metrics listen on %s: %w", bind, err)
	}
	server := metrics.NewServer(d.metrics, listener, d.logger)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := server.Run(ctx); err != nil {
			logging.WarnWithContext(d.logger, "metrics server stopped", "metrics_server_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "metrics are no longer exported"))
		}
	}()
	d.metricsAddr = server.Addr()
	d.metricsCancel = cancel
	d.metricsDone = done
	return nil
}

// Stop cancels running jobs, waits up to the configured shutdown timeout
// for them to record their status and releases the lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}

	timeout := time.Duration(d.cfg.Engine.ShutdownTimeoutSeconds) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := d.engine.Shutdown(ctx); err != nil {
		logging.WarnWithContext(d.logger, "engine did not stop in time", "engine_shutdown_timeout",
			logging.Error(err),
			logging.String(logging.FieldImpact, "some jobs may be failed on next start"))
	}

	if d.metricsCancel != nil {
		d.metricsCancel()
		<-d.metricsDone
		d.metricsCancel = nil
		d.metricsAddr = ""
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("subburn daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
}

// Close stops the daemon and closes the store.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

// Running reports whether Start has succeeded and Stop has not been called.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

func (d *Daemon) requireRunning() error {
	if !d.running.Load() {
		return services.Wrap(services.ErrCollaboratorUnavailable, "", "daemon", "daemon is not running", nil)
	}
	return nil
}

// Submit starts a job and returns its id.
func (d *Daemon) Submit(ctx context.Context, req pipeline.SubmitRequest) (string, error) {
	if err := d.requireRunning(); err != nil {
		return "", err
	}
	return d.engine.Submit(ctx, req)
}

// Status returns a job snapshot.
func (d *Daemon) Status(ctx context.Context, id string) (*jobs.Job, error) {
	return d.engine.Status(ctx, id)
}

// List returns the owner's jobs, or every job when owner is empty.
func (d *Daemon) List(ctx context.Context, owner string) ([]*jobs.Job, error) {
	return jobstore.Collect(d.engine.List(ctx, owner))
}

// Cancel aborts a running job.
func (d *Daemon) Cancel(ctx context.Context, id string) error {
	if err := d.requireRunning(); err != nil {
		return err
	}
	return d.engine.Cancel(ctx, id)
}

// Wait blocks until the job is terminal.
func (d *Daemon) Wait(ctx context.Context, id string) (*jobs.Job, error) {
	return d.engine.Wait(ctx, id)
}

// Health reports daemon, job and cache state plus dependency checks.
func (d *Daemon) Health(ctx context.Context) (Health, error) {
	summary, err := jobstore.Summarize(ctx, d.store, jobstore.All())
	if err != nil {
		return Health{}, err
	}
	d.mu.Lock()
	metricsAddr := d.metricsAddr
	started := d.started
	d.mu.Unlock()

	health := Health{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Started:      started,
		LockPath:     d.lockPath,
		StoreBackend: d.cfg.Store.Backend,
		LogPath:      d.logPath,
		MetricsAddr:  metricsAddr,
		Jobs:         summary,
		Active:       d.engine.Running(),
		Dependencies: deps.Check(d.cfg),
	}
	if d.cacheDir != nil {
		stats, err := d.cacheDir.Stats(ctx)
		if err != nil {
			d.logger.Warn("cache stats unavailable", logging.Error(err))
		} else {
			health.Cache = &stats
		}
	}
	return health, nil
}
