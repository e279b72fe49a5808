package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"subburn/internal/services"
)

// ErrTerminal is returned when a transition is attempted on a completed or
// failed job.
var ErrTerminal = fmt.Errorf("%w: job is in a terminal state", services.ErrValidation)

// SourceType records how the source media reached the engine.
type SourceType string

const (
	SourceUpload SourceType = "upload"
	SourceURL    SourceType = "url"
	SourcePath   SourceType = "path"
)

// Step is one entry in a job's ordered progress list. A zero At means the
// step has never been touched.
type Step struct {
	Key    StepKey    `json:"key"`
	Label  string     `json:"label"`
	Status StepStatus `json:"status"`
	At     time.Time  `json:"-"`
}

type stepJSON struct {
	Key    StepKey    `json:"key"`
	Label  string     `json:"label"`
	Status StepStatus `json:"status"`
	At     string     `json:"at"`
}

// MarshalJSON renders an untouched step's timestamp as an empty string.
func (s Step) MarshalJSON() ([]byte, error) {
	out := stepJSON{Key: s.Key, Label: s.Label, Status: s.Status}
	if !s.At.IsZero() {
		out.At = s.At.UTC().Format(time.RFC3339Nano)
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts the empty-string timestamp produced by MarshalJSON.
func (s *Step) UnmarshalJSON(data []byte) error {
	var in stepJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	s.Key, s.Label, s.Status, s.At = in.Key, in.Label, in.Status, time.Time{}
	if in.At != "" {
		at, err := time.Parse(time.RFC3339Nano, in.At)
		if err != nil {
			return fmt.Errorf("step %s: parse at: %w", in.Key, err)
		}
		s.At = at
	}
	return nil
}

// Job is the persisted record of one caption request.
type Job struct {
	ID             string     `json:"id"`
	Owner          string     `json:"user_id"`
	SourceType     SourceType `json:"source_type,omitempty"`
	SourcePath     string     `json:"file_path"`
	Filename       string     `json:"filename,omitempty"`
	SourceURL      string     `json:"video_url,omitempty"`
	Style          Style      `json:"caption_style"`
	Status         Status     `json:"status"`
	Steps          []Step     `json:"steps"`
	Error          string     `json:"error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	CompletedAt    *time.Time `json:"completed_at"`
	OutputPath     string     `json:"output_path,omitempty"`
	TranscriptPath string     `json:"transcript_path,omitempty"`
	Simulate       bool       `json:"simulate,omitempty"`
	ArtifactURL    string     `json:"artifact_url,omitempty"`
}

// NewID returns a fresh job identifier.
func NewID() string {
	return uuid.NewString()
}

// New creates a pending job stamped with the current time.
func New(id, owner, sourcePath string, style Style) *Job {
	return NewAt(id, owner, sourcePath, style, time.Now())
}

// NewAt creates a pending job with all six steps. The queued step starts
// active at now; the rest are queued and untouched.
func NewAt(id, owner, sourcePath string, style Style, now time.Time) *Job {
	now = now.UTC()
	steps := make([]Step, 0, len(canonicalSteps))
	for _, def := range canonicalSteps {
		step := Step{Key: def.key, Label: def.label, Status: StepStatusQueued}
		if def.key == StepQueued {
			step.Status = StepStatusActive
			step.At = now
		}
		steps = append(steps, step)
	}
	return &Job{
		ID:         id,
		Owner:      owner,
		SourceType: SourcePath,
		SourcePath: sourcePath,
		Style:      style,
		Status:     StatusPending,
		Steps:      steps,
		CreatedAt:  now,
	}
}

// Clone returns a deep copy of the job.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	cp.Steps = append([]Step(nil), j.Steps...)
	if j.CompletedAt != nil {
		at := *j.CompletedAt
		cp.CompletedAt = &at
	}
	return &cp
}

// Step returns a pointer to the step with key so callers can inspect it.
func (j *Job) Step(key StepKey) (*Step, bool) {
	for i := range j.Steps {
		if j.Steps[i].Key == key {
			return &j.Steps[i], true
		}
	}
	return nil, false
}

// ActiveStep returns the key of the active step, if any.
func (j *Job) ActiveStep() (StepKey, bool) {
	for _, step := range j.Steps {
		if step.Status == StepStatusActive {
			return step.Key, true
		}
	}
	return "", false
}

// Progress returns the fraction of steps that are done.
func (j *Job) Progress() float64 {
	if len(j.Steps) == 0 {
		return 0
	}
	done := 0
	for _, step := range j.Steps {
		if step.Status == StepStatusDone {
			done++
		}
	}
	return float64(done) / float64(len(j.Steps))
}

// MarkProcessing moves a pending job into processing. Calling it on a job
// that is already processing is a no-op.
func (j *Job) MarkProcessing() error {
	switch j.Status {
	case StatusPending:
		j.Status = StatusProcessing
		return nil
	case StatusProcessing:
		return nil
	default:
		return ErrTerminal
	}
}

// MarkActive makes key the only active step. Any other active step is
// demoted to done at the same instant.
func (j *Job) MarkActive(key StepKey, now time.Time) error {
	if err := j.checkMutable(key); err != nil {
		return err
	}
	now = now.UTC()
	for i := range j.Steps {
		step := &j.Steps[i]
		switch {
		case step.Key == key:
			step.Status = StepStatusActive
			step.At = now
		case step.Status == StepStatusActive:
			step.Status = StepStatusDone
			step.At = now
		}
	}
	return nil
}

// SetStepStatus sets only the step named by key. Setting a step active
// through this method demotes any other active step so at most one remains.
func (j *Job) SetStepStatus(key StepKey, status StepStatus, now time.Time) error {
	if status == StepStatusActive {
		return j.MarkActive(key, now)
	}
	if err := j.checkMutable(key); err != nil {
		return err
	}
	if _, ok := ParseStepStatus(string(status)); !ok {
		return services.Wrap(services.ErrValidation, "", "set step", fmt.Sprintf("unknown step status %q", status), nil)
	}
	step, _ := j.Step(key)
	step.Status = status
	step.At = now.UTC()
	return nil
}

// MarkDoneIfActiveOrQueued marks each listed step done when it is active or
// queued. Steps already done or in error are left alone.
func (j *Job) MarkDoneIfActiveOrQueued(now time.Time, keys ...StepKey) error {
	for _, key := range keys {
		if err := j.checkMutable(key); err != nil {
			return err
		}
	}
	now = now.UTC()
	for _, key := range keys {
		step, _ := j.Step(key)
		if step.Status == StepStatusActive || step.Status == StepStatusQueued {
			step.Status = StepStatusDone
			step.At = now
		}
	}
	return nil
}

// MarkCompleted finishes the job successfully. The finalize step and any
// step still active are marked done.
func (j *Job) MarkCompleted(now time.Time, outputPath string) error {
	if j.Status.IsTerminal() {
		return ErrTerminal
	}
	now = now.UTC()
	for i := range j.Steps {
		step := &j.Steps[i]
		if step.Key == StepFinalize || step.Status == StepStatusActive {
			step.Status = StepStatusDone
			step.At = now
		}
	}
	j.Status = StatusCompleted
	j.Error = ""
	j.OutputPath = outputPath
	j.CompletedAt = &now
	return nil
}

// MarkFailed finishes the job with an error. The finalize step is set to
// error; the step that was running when the failure occurred stays active so
// the record shows where the job stopped.
func (j *Job) MarkFailed(now time.Time, message string) error {
	if j.Status.IsTerminal() {
		return ErrTerminal
	}
	now = now.UTC()
	if step, ok := j.Step(StepFinalize); ok {
		step.Status = StepStatusError
		step.At = now
	}
	j.Status = StatusFailed
	j.Error = message
	j.CompletedAt = &now
	return nil
}

func (j *Job) checkMutable(key StepKey) error {
	if j.Status.IsTerminal() {
		return ErrTerminal
	}
	if _, ok := j.Step(key); !ok {
		return services.Wrap(services.ErrValidation, "", "step", fmt.Sprintf("unknown step key %q", key), nil)
	}
	return nil
}
