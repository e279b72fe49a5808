package ipc

import (
	"time"

	"subburn/internal/deps"
	"subburn/internal/jobs"
	"subburn/internal/pipeline"
	"subburn/internal/transcache"
)

// ServiceName is the net/rpc receiver name.
const ServiceName = "Subburn"

// SubmitRequest carries a job submission. It shares the engine's wire shape.
type SubmitRequest = pipeline.SubmitRequest

// SubmitResponse returns the id of the accepted job.
type SubmitResponse struct {
	ID string `json:"id"`
}

// StatusRequest fetches one job.
type StatusRequest struct {
	ID string `json:"id"`
}

// StatusResponse contains a job snapshot.
type StatusResponse struct {
	Job *jobs.Job `json:"job"`
}

// ListRequest filters jobs by owner. An empty owner lists everything.
type ListRequest struct {
	Owner string `json:"owner"`
}

// ListResponse contains job snapshots, newest first.
type ListResponse struct {
	Jobs []*jobs.Job `json:"jobs"`
}

// CancelRequest aborts a running job.
type CancelRequest struct {
	ID string `json:"id"`
}

// CancelResponse acknowledges a cancellation request. The job is failed
// asynchronously once its current step observes the cancellation.
type CancelResponse struct {
	Canceled bool `json:"canceled"`
}

// HealthRequest fetches daemon diagnostics.
type HealthRequest struct{}

// JobCounts holds job totals per status.
type JobCounts struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// DependencyStatus describes availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail"`
}

// HealthResponse represents combined daemon, job and cache state.
type HealthResponse struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	Started      time.Time          `json:"started,omitzero"`
	LockPath     string             `json:"lock_path"`
	StoreBackend string             `json:"store_backend"`
	LogPath      string             `json:"log_path,omitempty"`
	MetricsAddr  string             `json:"metrics_addr,omitempty"`
	Jobs         JobCounts          `json:"jobs"`
	Active       []string           `json:"active"`
	Cache        *transcache.Stats  `json:"cache,omitempty"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

func convertDependencies(in []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, 0, len(in))
	for _, dep := range in {
		out = append(out, DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		})
	}
	return out
}
