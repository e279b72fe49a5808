package tracker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"subburn/internal/jobs"
	"subburn/internal/services"
	"subburn/internal/testsupport"
	"subburn/internal/tracker"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func countActive(job *jobs.Job) int {
	n := 0
	for _, step := range job.Steps {
		if step.Status == jobs.StepStatusActive {
			n++
		}
	}
	return n
}

func TestMarkActiveDemotesPrevious(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewJob(t, cfg, store, "alice")
	clock := &fakeClock{t: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	tr := tracker.New(store, tracker.WithClock(clock.now))
	ctx := context.Background()

	if _, err := tr.MarkActive(ctx, job.ID, jobs.StepExtract); err != nil {
		t.Fatalf("MarkActive extract: %v", err)
	}
	got, err := tr.MarkActive(ctx, job.ID, jobs.StepTranscribe)
	if err != nil {
		t.Fatalf("MarkActive transcribe: %v", err)
	}
	if countActive(got) != 1 {
		t.Fatalf("expected one active step, got %d", countActive(got))
	}
	extract, _ := got.Step(jobs.StepExtract)
	transcribe, _ := got.Step(jobs.StepTranscribe)
	if extract.Status != jobs.StepStatusDone || transcribe.Status != jobs.StepStatusActive {
		t.Fatalf("unexpected steps extract=%s transcribe=%s", extract.Status, transcribe.Status)
	}
	if !extract.At.Equal(transcribe.At) {
		t.Fatalf("demotion should share the activation instant: %v vs %v", extract.At, transcribe.At)
	}
}

func TestMarkActiveIdempotentAdvancesTimestamp(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewJob(t, cfg, store, "alice")
	clock := &fakeClock{t: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	tr := tracker.New(store, tracker.WithClock(clock.now))
	ctx := context.Background()

	first, _ := tr.MarkActive(ctx, job.ID, jobs.StepOverlay)
	second, err := tr.MarkActive(ctx, job.ID, jobs.StepOverlay)
	if err != nil {
		t.Fatalf("MarkActive: %v", err)
	}
	a, _ := first.Step(jobs.StepOverlay)
	b, _ := second.Step(jobs.StepOverlay)
	if b.Status != jobs.StepStatusActive || !b.At.After(a.At) {
		t.Fatalf("re-application should only advance the timestamp: %+v -> %+v", a, b)
	}
}

func TestBulkMarkDoneSkipsFinishedSteps(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewJob(t, cfg, store, "alice")
	tr := tracker.New(store)
	ctx := context.Background()

	if _, err := tr.MarkStatus(ctx, job.ID, jobs.StepDownload, jobs.StepStatusError); err != nil {
		t.Fatalf("MarkStatus: %v", err)
	}
	got, err := tr.BulkMarkDoneIfActiveOrQueued(ctx, job.ID, jobs.StepQueued, jobs.StepDownload)
	if err != nil {
		t.Fatalf("BulkMarkDoneIfActiveOrQueued: %v", err)
	}
	queued, _ := got.Step(jobs.StepQueued)
	download, _ := got.Step(jobs.StepDownload)
	if queued.Status != jobs.StepStatusDone {
		t.Fatalf("queued should be done, got %s", queued.Status)
	}
	if download.Status != jobs.StepStatusError {
		t.Fatalf("errored step must be left alone, got %s", download.Status)
	}
}

func TestUnknownKeyRejected(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewJob(t, cfg, store, "alice")
	tr := tracker.New(store)

	_, err := tr.MarkActive(context.Background(), job.ID, jobs.StepKey("render"))
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestTerminalJobRefusesStepChanges(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewJob(t, cfg, store, "alice")
	tr := tracker.New(store)
	ctx := context.Background()

	if _, err := tr.Fail(ctx, job.ID, "extract: boom"); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if _, err := tr.MarkActive(ctx, job.ID, jobs.StepExtract); !errors.Is(err, jobs.ErrTerminal) {
		t.Fatalf("expected ErrTerminal, got %v", err)
	}
	if _, err := tr.Complete(ctx, job.ID, "/out", nil); !errors.Is(err, jobs.ErrTerminal) {
		t.Fatalf("expected ErrTerminal on completion after failure, got %v", err)
	}
	got, _ := store.Get(ctx, job.ID)
	if got.Status != jobs.StatusFailed || got.Error != "extract: boom" {
		t.Fatalf("unexpected job %+v", got)
	}
}

func TestMissingJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	tr := tracker.New(store)
	if _, err := tr.MarkActive(context.Background(), "ghost", jobs.StepExtract); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
