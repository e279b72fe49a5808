package testsupport

import (
	"context"
	"path/filepath"
	"testing"

	"subburn/internal/config"
	"subburn/internal/jobs"
	"subburn/internal/jobstore"
	"subburn/internal/logging"
)

// MustOpenStore opens the configured jobstore backend and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) jobstore.Store {
	t.Helper()

	store, err := jobstore.Open(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("jobstore.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// NewJob creates and persists a pending job owned by owner whose source is
// a small file under the uploads directory.
func NewJob(t testing.TB, cfg *config.Config, store jobstore.Store, owner string) *jobs.Job {
	t.Helper()

	id := jobs.NewID()
	source := filepath.Join(cfg.Paths.UploadsDir, id+"_clip.mp4")
	WriteFile(t, source, 1024)
	job := jobs.New(id, owner, source, jobs.DefaultStyle())
	if err := store.Create(context.Background(), job); err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return job
}
