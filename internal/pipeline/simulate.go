package pipeline

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"subburn/internal/fileutil"
	"subburn/internal/jobs"
	"subburn/internal/logging"
)

// minSimulatedStep is the shortest time a simulated step stays active.
const minSimulatedStep = time.Second

var simulatedSteps = []jobs.StepKey{jobs.StepExtract, jobs.StepTranscribe, jobs.StepOverlay, jobs.StepFinalize}

// SimulatedStepDuration splits budget evenly across the simulated steps.
func SimulatedStepDuration(budget time.Duration) time.Duration {
	return max(budget/time.Duration(len(simulatedSteps)), minSimulatedStep)
}

// simulate walks the processing steps on a timer and copies the source to
// the output. It never touches a collaborator or the transcription cache.
func (e *Engine) simulate(ctx context.Context, logger *slog.Logger, job *jobs.Job) error {
	budget := time.Duration(e.cfg.Simulate.TotalSeconds * float64(time.Second))
	step := SimulatedStepDuration(budget)
	logger.InfoContext(ctx, "simulating job",
		logging.String(logging.FieldEventType, "simulate_start"),
		logging.Duration("step_duration", step),
	)

	for _, key := range simulatedSteps {
		if _, err := e.tracker.MarkActive(ctx, job.ID, key); err != nil {
			return err
		}
		if err := e.sleep(ctx, step); err != nil {
			return err
		}
		if _, err := e.tracker.MarkStatus(ctx, job.ID, key, jobs.StepStatusDone); err != nil {
			return err
		}
	}

	outputPath := e.cfg.OutputPath(job.ID)
	if err := writeSimulatedOutput(job.SourcePath, outputPath); err != nil {
		return err
	}
	return e.complete(ctx, logger, job.ID, outputPath, nil)
}

func writeSimulatedOutput(source, output string) error {
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return err
	}
	if _, err := os.Stat(source); errors.Is(err, fs.ErrNotExist) {
		return fileutil.WriteFileAtomic(output, nil, 0o644)
	}
	return fileutil.CopyFile(source, output)
}
