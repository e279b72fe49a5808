package jobstore

import (
	"context"
	"errors"
	"time"

	"subburn/internal/jobs"
)

// InterruptedReason is the error recorded on jobs that were still running
// when the previous engine stopped.
const InterruptedReason = "interrupted by engine shutdown"

// RecoverInterrupted fails every non-terminal job. It is meant for engine
// start-up, when nothing can be running yet. It returns the ids it failed.
func RecoverInterrupted(ctx context.Context, store Store, now time.Time) ([]string, error) {
	stale, err := Collect(store.List(ctx, ByStatus(jobs.StatusPending, jobs.StatusProcessing)))
	if err != nil {
		return nil, err
	}
	recovered := make([]string, 0, len(stale))
	for _, job := range stale {
		_, err := store.Update(ctx, job.ID, func(j *jobs.Job) error {
			return j.MarkFailed(now, InterruptedReason)
		})
		if errors.Is(err, jobs.ErrTerminal) {
			continue
		}
		if err != nil {
			return recovered, err
		}
		recovered = append(recovered, job.ID)
	}
	return recovered, nil
}

// Summary holds job counts per status.
type Summary struct {
	Total      int
	Pending    int
	Processing int
	Completed  int
	Failed     int
}

// Summarize counts jobs matching filter by status.
func Summarize(ctx context.Context, store Store, filter Filter) (Summary, error) {
	var summary Summary
	for job, err := range store.List(ctx, filter) {
		if err != nil {
			return summary, err
		}
		summary.Total++
		switch job.Status {
		case jobs.StatusPending:
			summary.Pending++
		case jobs.StatusProcessing:
			summary.Processing++
		case jobs.StatusCompleted:
			summary.Completed++
		case jobs.StatusFailed:
			summary.Failed++
		}
	}
	return summary, nil
}
