package jobs

import "strings"

// Status represents the lifecycle of a job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// StepStatus is the state of a single pipeline step.
type StepStatus string

const (
	StepStatusQueued StepStatus = "queued"
	StepStatusActive StepStatus = "active"
	StepStatusDone   StepStatus = "done"
	StepStatusError  StepStatus = "error"
)

// ParseStepStatus converts a string into a known StepStatus.
func ParseStepStatus(value string) (StepStatus, bool) {
	switch s := StepStatus(strings.ToLower(strings.TrimSpace(value))); s {
	case StepStatusQueued, StepStatusActive, StepStatusDone, StepStatusError:
		return s, true
	}
	return "", false
}

// StepKey identifies one of the canonical pipeline steps.
type StepKey string

const (
	StepQueued     StepKey = "queued"
	StepDownload   StepKey = "download"
	StepExtract    StepKey = "extract"
	StepTranscribe StepKey = "transcribe"
	StepOverlay    StepKey = "overlay"
	StepFinalize   StepKey = "finalize"
)

var canonicalSteps = []struct {
	key   StepKey
	label string
}{
	{StepQueued, "Queued"},
	{StepDownload, "Download / Save"},
	{StepExtract, "Extract Audio"},
	{StepTranscribe, "Transcribe Audio"},
	{StepOverlay, "Overlay Captions"},
	{StepFinalize, "Finalize"},
}

// CanonicalSteps returns the step keys in pipeline order.
func CanonicalSteps() []StepKey {
	keys := make([]StepKey, len(canonicalSteps))
	for i, step := range canonicalSteps {
		keys[i] = step.key
	}
	return keys
}

// Label returns the display label for the step, or the raw key when unknown.
func (k StepKey) Label() string {
	for _, step := range canonicalSteps {
		if step.key == k {
			return step.label
		}
	}
	return string(k)
}

// Valid reports whether k is one of the canonical steps.
func (k StepKey) Valid() bool {
	for _, step := range canonicalSteps {
		if step.key == k {
			return true
		}
	}
	return false
}

// ParseStepKey converts a string into a canonical StepKey.
func ParseStepKey(value string) (StepKey, bool) {
	key := StepKey(strings.ToLower(strings.TrimSpace(value)))
	return key, key.Valid()
}
