// Package tracker records per-step progress on stored jobs. Every mutation
// is a single Store.Update so concurrent writers for one job serialise.
package tracker

import (
	"context"
	"time"

	"subburn/internal/jobs"
	"subburn/internal/jobstore"
)

// Tracker mutates job steps through a job store.
type Tracker struct {
	store jobstore.Store
	now   func() time.Time
}

// Option customises a Tracker.
type Option func(*Tracker)

// WithClock overrides the time source used to stamp steps.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// New returns a tracker backed by store.
func New(store jobstore.Store, opts ...Option) *Tracker {
	t := &Tracker{store: store, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// MarkActive sets key active and demotes any other active step to done.
func (t *Tracker) MarkActive(ctx context.Context, id string, key jobs.StepKey) (*jobs.Job, error) {
	return t.store.Update(ctx, id, func(job *jobs.Job) error {
		return job.MarkActive(key, t.now())
	})
}

// MarkStatus sets only the named step.
func (t *Tracker) MarkStatus(ctx context.Context, id string, key jobs.StepKey, status jobs.StepStatus) (*jobs.Job, error) {
	return t.store.Update(ctx, id, func(job *jobs.Job) error {
		return job.SetStepStatus(key, status, t.now())
	})
}

// BulkMarkDoneIfActiveOrQueued marks each listed step done unless it already
// finished or errored.
func (t *Tracker) BulkMarkDoneIfActiveOrQueued(ctx context.Context, id string, keys ...jobs.StepKey) (*jobs.Job, error) {
	return t.store.Update(ctx, id, func(job *jobs.Job) error {
		return job.MarkDoneIfActiveOrQueued(t.now(), keys...)
	})
}

// Complete marks the job completed with the given output path.
func (t *Tracker) Complete(ctx context.Context, id, outputPath string, mutate func(*jobs.Job)) (*jobs.Job, error) {
	return t.store.Update(ctx, id, func(job *jobs.Job) error {
		if mutate != nil {
			mutate(job)
		}
		return job.MarkCompleted(t.now(), outputPath)
	})
}

// Fail marks the job failed with message.
func (t *Tracker) Fail(ctx context.Context, id, message string) (*jobs.Job, error) {
	return t.store.Update(ctx, id, func(job *jobs.Job) error {
		return job.MarkFailed(t.now(), message)
	})
}
