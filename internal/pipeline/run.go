package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"subburn/internal/fileutil"
	"subburn/internal/fingerprint"
	"subburn/internal/jobs"
	"subburn/internal/logging"
	"subburn/internal/services"
	"subburn/internal/transcript"
)

// CanceledReason is recorded on jobs stopped by Cancel or Shutdown.
const CanceledReason = "canceled"

func (e *Engine) run(ctx context.Context, job *jobs.Job, handle *runHandle) {
	logger := e.logger.With(logging.String(logging.FieldJobID, job.ID))
	audioPath := e.cfg.AudioPath(job.ID)
	defer func() {
		e.mu.Lock()
		delete(e.runs, job.ID)
		e.mu.Unlock()
		handle.cancel()
		close(handle.done)
		e.wg.Done()
	}()
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(logger, "pipeline panic", "pipeline_panic",
				logging.Any("panic", r),
				logging.String("stack", string(debug.Stack())),
			)
			e.fail(logger, job.ID, audioPath, fmt.Errorf("internal error: %v", r))
		}
	}()

	if e.sem != nil {
		select {
		case e.sem <- struct{}{}:
			defer func() { <-e.sem }()
		case <-ctx.Done():
			e.fail(logger, job.ID, audioPath, ctx.Err())
			return
		}
	}
	e.metrics.JobStarted()
	defer e.metrics.JobStopped()

	if err := e.reconcile(ctx, job.ID); err != nil {
		e.fail(logger, job.ID, audioPath, err)
		return
	}

	var err error
	if job.Simulate {
		err = e.simulate(ctx, logger, job)
	} else {
		err = e.process(ctx, logger, job, audioPath)
	}
	if err != nil {
		e.fail(logger, job.ID, audioPath, err)
	}
}

// reconcile closes the steps that precede processing. The source is on disk
// by the time a job is submitted, so queued and download are already done.
func (e *Engine) reconcile(ctx context.Context, id string) error {
	job, err := e.tracker.BulkMarkDoneIfActiveOrQueued(ctx, id, jobs.StepQueued, jobs.StepDownload)
	if err != nil {
		return err
	}
	if _, active := job.ActiveStep(); !active {
		_, err = e.tracker.MarkActive(ctx, id, jobs.StepExtract)
	}
	return err
}

func (e *Engine) process(ctx context.Context, logger *slog.Logger, job *jobs.Job, audioPath string) error {
	defer e.removeAudio(logger, audioPath)

	if err := e.stage(ctx, logger, job.ID, jobs.StepExtract, func(ctx context.Context) error {
		return e.collab.Extractor.Extract(ctx, job.SourcePath, audioPath)
	}); err != nil {
		return err
	}

	var result transcript.Transcription
	transcriptPath := e.cfg.TranscriptPath(job.ID)
	if err := e.stage(ctx, logger, job.ID, jobs.StepTranscribe, func(ctx context.Context) error {
		var err error
		result, err = e.transcribe(ctx, logger, audioPath)
		if err != nil {
			return err
		}
		if err := result.Save(transcriptPath); err != nil {
			return err
		}
		_, err = e.store.Update(ctx, job.ID, func(j *jobs.Job) error {
			j.TranscriptPath = transcriptPath
			return nil
		})
		return err
	}); err != nil {
		return err
	}

	outputPath := e.cfg.OutputPath(job.ID)
	if err := e.stage(ctx, logger, job.ID, jobs.StepOverlay, func(ctx context.Context) error {
		res, err := e.collab.Compositor.Overlay(ctx, job.SourcePath, outputPath, result, job.Style)
		if err != nil {
			return err
		}
		logger.InfoContext(ctx, "captions rendered",
			logging.String(logging.FieldEventType, "overlay_complete"),
			logging.Int("cues", res.Cues),
			logging.Bool("copied_source", res.Copied),
			logging.Float64("duration_seconds", res.Duration),
		)
		return nil
	}); err != nil {
		return err
	}

	return e.stage(ctx, logger, job.ID, jobs.StepFinalize, func(ctx context.Context) error {
		artifactURL, err := e.collab.Publisher.Publish(ctx, job.ID, outputPath)
		if err != nil {
			return err
		}
		return e.complete(ctx, logger, job.ID, outputPath, func(j *jobs.Job) {
			j.ArtifactURL = artifactURL
		})
	})
}

// transcribe consults the cache by audio fingerprint before calling the
// transcriber. Cache failures degrade to a miss.
func (e *Engine) transcribe(ctx context.Context, logger *slog.Logger, audioPath string) (transcript.Transcription, error) {
	fp, err := fingerprint.File(audioPath)
	if err != nil {
		return transcript.Transcription{}, err
	}
	cached, hit, err := e.cache.Get(ctx, fp)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return transcript.Transcription{}, ctxErr
		}
		logging.WarnWithContext(logger, "transcription cache lookup failed", "cache_lookup_failed",
			logging.String("fingerprint", fp),
			logging.Error(err),
			logging.String(logging.FieldImpact, "audio will be transcribed again"),
		)
	}
	if hit {
		e.metrics.CacheLookup(true)
		logger.InfoContext(ctx, "transcription cache hit",
			logging.String(logging.FieldEventType, "cache_hit"),
			logging.String("fingerprint", fp),
		)
		return cached, nil
	}
	e.metrics.CacheLookup(false)

	result, err := e.collab.Transcriber.Transcribe(ctx, audioPath)
	if err != nil {
		return transcript.Transcription{}, err
	}
	if result.Empty() {
		return transcript.Transcription{}, services.Wrap(services.ErrCollaboratorFailed, string(jobs.StepTranscribe), "transcriber", "no speech segments produced", nil)
	}
	if err := e.cache.Put(ctx, fp, result); err != nil {
		logging.WarnWithContext(logger, "transcription cache store failed", "cache_store_failed",
			logging.String("fingerprint", fp),
			logging.Error(err),
			logging.String(logging.FieldImpact, "identical audio will be transcribed again"),
		)
	}
	return result, nil
}

// stage activates key, runs fn and records its duration. Errors are
// prefixed with the stage name when the collaborator did not already do so.
func (e *Engine) stage(ctx context.Context, logger *slog.Logger, id string, key jobs.StepKey, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := e.tracker.MarkActive(ctx, id, key); err != nil {
		return err
	}
	stageCtx := services.WithStage(ctx, string(key))
	stageLogger := logging.WithContext(stageCtx, logger)
	stageLogger.InfoContext(stageCtx, "stage started", logging.String(logging.FieldEventType, "stage_start"))

	started := time.Now()
	err := fn(stageCtx)
	elapsed := time.Since(started)
	e.metrics.StageObserved(string(key), elapsed, err == nil)
	if err != nil {
		return stageError(key, err)
	}
	stageLogger.InfoContext(stageCtx, "stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("elapsed", elapsed),
	)
	return nil
}

func stageError(key jobs.StepKey, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, jobs.ErrTerminal) {
		return err
	}
	if strings.HasPrefix(services.Message(err), string(key)+":") {
		return err
	}
	return fmt.Errorf("%s: %w", key, err)
}

func (e *Engine) complete(ctx context.Context, logger *slog.Logger, id, outputPath string, mutate func(*jobs.Job)) error {
	job, err := e.tracker.Complete(ctx, id, outputPath, mutate)
	if err != nil {
		return err
	}
	e.metrics.JobFinished(string(jobs.StatusCompleted))
	var elapsed time.Duration
	if job.CompletedAt != nil {
		elapsed = job.CompletedAt.Sub(job.CreatedAt)
	}
	logger.InfoContext(ctx, "job completed",
		logging.String(logging.FieldEventType, "job_completed"),
		logging.String("output", outputPath),
		logging.Duration("elapsed", elapsed),
	)
	return nil
}

// fail records err on the job. It uses a fresh context because the job's own
// context is usually what ended the run.
func (e *Engine) fail(logger *slog.Logger, id, audioPath string, err error) {
	e.removeAudio(logger, audioPath)
	message := failureMessage(err)
	if _, updateErr := e.tracker.Fail(context.Background(), id, message); updateErr != nil {
		if errors.Is(updateErr, jobs.ErrTerminal) {
			return
		}
		logging.ErrorWithContext(logger, "failed to persist job failure", "job_fail_persist_failed",
			logging.Error(updateErr),
			logging.String("reason", message),
		)
		return
	}
	e.metrics.JobFinished(string(jobs.StatusFailed))
	logging.ErrorWithContext(logger, "job failed", "job_failed",
		logging.String("reason", message),
		logging.String("error_kind", services.Kind(err)),
		logging.String(logging.FieldErrorHint, failureHint(err)),
	)
}

func failureMessage(err error) string {
	if errors.Is(err, context.Canceled) {
		return CanceledReason
	}
	if msg := services.Message(err); msg != "" {
		return msg
	}
	return "job failed"
}

func failureHint(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "job was canceled; resubmit to run it again"
	case errors.Is(err, services.ErrCollaboratorUnavailable):
		return "install the missing tool or run subburn deps"
	case errors.Is(err, services.ErrValidation):
		return "check the job input"
	default:
		return "inspect the tool output in the error message"
	}
}

func (e *Engine) removeAudio(logger *slog.Logger, audioPath string) {
	if err := fileutil.RemoveIfExists(audioPath); err != nil {
		logging.WarnWithContext(logger, "failed to remove transient audio", "audio_cleanup_failed",
			logging.String("path", audioPath),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale audio left in the audio directory"),
		)
	}
}
