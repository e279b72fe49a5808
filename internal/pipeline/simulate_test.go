package pipeline_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subburn/internal/jobs"
	"subburn/internal/pipeline"
)

type recordingSleep struct {
	mu    sync.Mutex
	calls []time.Duration
}

func (r *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.calls = append(r.calls, d)
	r.mu.Unlock()
	return ctx.Err()
}

func TestSimulatedStepDuration(t *testing.T) {
	assert.Equal(t, 2*time.Second, pipeline.SimulatedStepDuration(8*time.Second))
	assert.Equal(t, time.Second, pipeline.SimulatedStepDuration(0))
	assert.Equal(t, time.Second, pipeline.SimulatedStepDuration(2*time.Second))
}

func TestSimulateNeverCallsCollaborators(t *testing.T) {
	rec := &recordingSleep{}
	h := newHarness(t, nil, pipeline.WithSleep(rec.sleep))
	h.cfg.Simulate.TotalSeconds = 8
	source := h.source(t, "sim.mp4")

	job := h.submitAndWait(t, pipeline.SubmitRequest{Owner: "alice", SourcePath: source, Simulate: true})

	require.Equal(t, jobs.StatusCompleted, job.Status, "error: %s", job.Error)
	assert.True(t, job.Simulate)
	for _, key := range jobs.CanonicalSteps() {
		assert.Equal(t, jobs.StepStatusDone, stepStatus(t, job, key), "step %s", key)
	}
	assert.Zero(t, h.extractor.calls.Load())
	assert.Zero(t, h.transcriber.calls.Load())
	assert.Zero(t, h.compositor.calls.Load())
	assert.Empty(t, job.TranscriptPath)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second, 2 * time.Second, 2 * time.Second}, rec.calls)

	want, err := os.ReadFile(source)
	require.NoError(t, err)
	got, err := os.ReadFile(job.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	entries, err := os.ReadDir(h.cfg.Cache.Dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "simulate must not touch the cache")
}

func TestSimulateGlobalSwitch(t *testing.T) {
	rec := &recordingSleep{}
	h := newHarness(t, nil, pipeline.WithSleep(rec.sleep))
	h.cfg.Simulate.Enabled = true

	job := h.submitAndWait(t, pipeline.SubmitRequest{Owner: "alice", SourcePath: h.source(t, "sim.mp4")})
	assert.Equal(t, jobs.StatusCompleted, job.Status)
	assert.True(t, job.Simulate)
	assert.Zero(t, h.extractor.calls.Load())
}

func TestSimulateMissingSourceWritesPlaceholder(t *testing.T) {
	var source string
	h := newHarness(t, nil, pipeline.WithSleep(func(ctx context.Context, _ time.Duration) error {
		_ = os.Remove(source)
		return ctx.Err()
	}))
	source = filepath.Join(h.cfg.Paths.UploadsDir, "vanishing.mp4")
	require.NoError(t, os.WriteFile(source, []byte("x"), 0o644))

	job := h.submitAndWait(t, pipeline.SubmitRequest{Owner: "alice", SourcePath: source, Simulate: true})
	require.Equal(t, jobs.StatusCompleted, job.Status)
	info, err := os.Stat(job.OutputPath)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestSimulateCancel(t *testing.T) {
	started := make(chan struct{}, 1)
	h := newHarness(t, nil, pipeline.WithSleep(func(ctx context.Context, _ time.Duration) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return ctx.Err()
	}))

	id, err := h.engine.Submit(context.Background(), pipeline.SubmitRequest{Owner: "alice", SourcePath: h.source(t, "sim.mp4"), Simulate: true})
	require.NoError(t, err)
	<-started
	require.NoError(t, h.engine.Cancel(context.Background(), id))

	job, err := h.engine.Wait(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusFailed, job.Status)
	assert.Equal(t, pipeline.CanceledReason, job.Error)
	assert.Equal(t, jobs.StepStatusActive, stepStatus(t, job, jobs.StepExtract))
}

func TestSimulateRealClockStaysWithinBudget(t *testing.T) {
	if testing.Short() {
		t.Skip("runs for the full simulated budget")
	}
	h := newHarness(t, nil)
	h.cfg.Simulate.TotalSeconds = 4

	started := time.Now()
	job := h.submitAndWait(t, pipeline.SubmitRequest{Owner: "alice", SourcePath: h.source(t, "sim.mp4"), Simulate: true})
	elapsed := time.Since(started)

	require.Equal(t, jobs.StatusCompleted, job.Status, "error: %s", job.Error)
	assert.GreaterOrEqual(t, elapsed, 4*time.Second)
	assert.Less(t, elapsed, 6*time.Second)
}
