package jobstore_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"subburn/internal/config"
	"subburn/internal/jobs"
	"subburn/internal/jobstore"
	"subburn/internal/services"
	"subburn/internal/testsupport"
)

var backends = []string{config.StoreBackendSQLite, config.StoreBackendFile}

func forEachBackend(t *testing.T, fn func(t *testing.T, cfg *config.Config, store jobstore.Store)) {
	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			cfg := testsupport.NewConfig(t, testsupport.WithStoreBackend(backend))
			store := testsupport.MustOpenStore(t, cfg)
			fn(t, cfg, store)
		})
	}
}

func TestCreateGetRoundTrip(t *testing.T) {
	forEachBackend(t, func(t *testing.T, cfg *config.Config, store jobstore.Store) {
		ctx := context.Background()
		job := jobs.NewAt("job-a", "alice", "/tmp/a.mp4", jobs.DefaultStyle(), time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
		job.Filename = "a.mp4"
		if err := store.Create(ctx, job); err != nil {
			t.Fatalf("Create: %v", err)
		}
		got, err := store.Get(ctx, "job-a")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if !reflect.DeepEqual(job, got) {
			t.Fatalf("round trip mismatch:\n got  %+v\n want %+v", got, job)
		}

		got.Steps[0].Status = jobs.StepStatusError
		again, _ := store.Get(ctx, "job-a")
		if again.Steps[0].Status == jobs.StepStatusError {
			t.Fatal("snapshot must not alias the stored record")
		}
	})
}

func TestCreateDuplicate(t *testing.T) {
	forEachBackend(t, func(t *testing.T, cfg *config.Config, store jobstore.Store) {
		ctx := context.Background()
		job := jobs.New("dup", "alice", "/tmp/a.mp4", jobs.DefaultStyle())
		if err := store.Create(ctx, job); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if err := store.Create(ctx, job); !errors.Is(err, services.ErrAlreadyExists) {
			t.Fatalf("expected ErrAlreadyExists, got %v", err)
		}
	})
}

func TestGetMissing(t *testing.T) {
	forEachBackend(t, func(t *testing.T, cfg *config.Config, store jobstore.Store) {
		if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, services.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		_, err := store.Update(context.Background(), "nope", func(*jobs.Job) error { return nil })
		if !errors.Is(err, services.ErrNotFound) {
			t.Fatalf("expected ErrNotFound from Update, got %v", err)
		}
	})
}

func TestInvalidIDRejected(t *testing.T) {
	forEachBackend(t, func(t *testing.T, cfg *config.Config, store jobstore.Store) {
		if _, err := store.Get(context.Background(), "../etc/passwd"); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})
}

func TestUpdateAppliesAndRollsBack(t *testing.T) {
	forEachBackend(t, func(t *testing.T, cfg *config.Config, store jobstore.Store) {
		ctx := context.Background()
		job := testsupport.NewJob(t, cfg, store, "alice")

		updated, err := store.Update(ctx, job.ID, func(j *jobs.Job) error {
			return j.MarkProcessing()
		})
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
		if updated.Status != jobs.StatusProcessing {
			t.Fatalf("expected processing, got %s", updated.Status)
		}

		boom := errors.New("boom")
		_, err = store.Update(ctx, job.ID, func(j *jobs.Job) error {
			j.Error = "should not persist"
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected fn error, got %v", err)
		}
		got, _ := store.Get(ctx, job.ID)
		if got.Error != "" {
			t.Fatalf("failed update must not persist, got error %q", got.Error)
		}
	})
}

func TestConcurrentUpdatesSameIDSerialise(t *testing.T) {
	forEachBackend(t, func(t *testing.T, cfg *config.Config, store jobstore.Store) {
		ctx := context.Background()
		job := testsupport.NewJob(t, cfg, store, "alice")

		const workers = 16
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.Update(ctx, job.ID, func(j *jobs.Job) error {
					j.Filename += "x"
					return nil
				})
				if err != nil {
					t.Errorf("Update: %v", err)
				}
			}()
		}
		wg.Wait()

		got, err := store.Get(ctx, job.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if len(got.Filename) != workers {
			t.Fatalf("lost updates: filename length %d, want %d", len(got.Filename), workers)
		}
	})
}

func TestListFiltersAndRestarts(t *testing.T) {
	forEachBackend(t, func(t *testing.T, cfg *config.Config, store jobstore.Store) {
		ctx := context.Background()
		for i := 0; i < 3; i++ {
			testsupport.NewJob(t, cfg, store, "alice")
		}
		bob := testsupport.NewJob(t, cfg, store, "bob")

		seq := store.List(ctx, jobstore.ByOwner("alice"))
		first, err := jobstore.Collect(seq)
		if err != nil {
			t.Fatalf("Collect: %v", err)
		}
		if len(first) != 3 {
			t.Fatalf("expected 3 jobs for alice, got %d", len(first))
		}
		second, err := jobstore.Collect(seq)
		if err != nil || len(second) != 3 {
			t.Fatalf("expected restartable sequence, got %d err=%v", len(second), err)
		}

		bobs, _ := jobstore.Collect(store.List(ctx, jobstore.ByOwner("bob")))
		if len(bobs) != 1 || bobs[0].ID != bob.ID {
			t.Fatalf("unexpected bob jobs: %+v", bobs)
		}

		count := 0
		for range store.List(ctx, nil) {
			count++
			break
		}
		if count != 1 {
			t.Fatal("early break should stop iteration")
		}
	})
}

func TestSQLiteListNewestFirst(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		job := jobs.NewAt(fmt.Sprintf("job-%d", i), "alice", "/tmp/x", jobs.DefaultStyle(), base.Add(time.Duration(i)*time.Second))
		if err := store.Create(ctx, job); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	all, err := jobstore.Collect(store.List(ctx, nil))
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for i, want := range []string{"job-2", "job-1", "job-0"} {
		if all[i].ID != want {
			t.Fatalf("position %d = %s, want %s", i, all[i].ID, want)
		}
	}
}

func TestPersistenceSurvivesReopen(t *testing.T) {
	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			cfg := testsupport.NewConfig(t, testsupport.WithStoreBackend(backend))
			ctx := context.Background()

			store, err := jobstore.Open(cfg, nil)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			job := testsupport.NewJob(t, cfg, store, "alice")
			if _, err := store.Update(ctx, job.ID, func(j *jobs.Job) error {
				if err := j.MarkProcessing(); err != nil {
					return err
				}
				return j.MarkCompleted(time.Now(), "/out.mp4")
			}); err != nil {
				t.Fatalf("Update: %v", err)
			}
			want, _ := store.Get(ctx, job.ID)
			if err := store.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}

			reopened := testsupport.MustOpenStore(t, cfg)
			got, err := reopened.Get(ctx, job.ID)
			if err != nil {
				t.Fatalf("Get after reopen: %v", err)
			}
			if !reflect.DeepEqual(want, got) {
				t.Fatalf("record changed across restart:\n got  %+v\n want %+v", got, want)
			}
		})
	}
}

func TestFileStoreSkipsCorruptRecords(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStoreBackend(config.StoreBackendFile))
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.NewJob(t, cfg, store, "alice")
	if err := os.WriteFile(filepath.Join(cfg.Store.Dir, "broken.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write corrupt record: %v", err)
	}
	all, err := jobstore.Collect(store.List(context.Background(), nil))
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected corrupt record skipped, got %d jobs", len(all))
	}
}

func TestRecoverInterrupted(t *testing.T) {
	forEachBackend(t, func(t *testing.T, cfg *config.Config, store jobstore.Store) {
		ctx := context.Background()
		running := testsupport.NewJob(t, cfg, store, "alice")
		if _, err := store.Update(ctx, running.ID, func(j *jobs.Job) error {
			if err := j.MarkProcessing(); err != nil {
				return err
			}
			return j.MarkActive(jobs.StepTranscribe, time.Now())
		}); err != nil {
			t.Fatalf("Update: %v", err)
		}
		done := testsupport.NewJob(t, cfg, store, "alice")
		if _, err := store.Update(ctx, done.ID, func(j *jobs.Job) error {
			_ = j.MarkProcessing()
			return j.MarkCompleted(time.Now(), "/out")
		}); err != nil {
			t.Fatalf("Update: %v", err)
		}

		recovered, err := jobstore.RecoverInterrupted(ctx, store, time.Now())
		if err != nil {
			t.Fatalf("RecoverInterrupted: %v", err)
		}
		if len(recovered) != 1 || recovered[0] != running.ID {
			t.Fatalf("unexpected recovered ids %v", recovered)
		}
		got, _ := store.Get(ctx, running.ID)
		if got.Status != jobs.StatusFailed || got.Error != jobstore.InterruptedReason {
			t.Fatalf("unexpected recovered job: %+v", got)
		}
		finalize, _ := got.Step(jobs.StepFinalize)
		if finalize.Status != jobs.StepStatusError {
			t.Fatalf("finalize should be error, got %s", finalize.Status)
		}

		summary, err := jobstore.Summarize(ctx, store, nil)
		if err != nil {
			t.Fatalf("Summarize: %v", err)
		}
		if summary.Total != 2 || summary.Failed != 1 || summary.Completed != 1 {
			t.Fatalf("unexpected summary %+v", summary)
		}
	})
}

func TestFileStoreRemovesLockOnceTerminal(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStoreBackend(config.StoreBackendFile))
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	done := testsupport.NewJob(t, cfg, store, "alice")
	failed := testsupport.NewJob(t, cfg, store, "alice")
	lockFile := func(id string) string { return filepath.Join(cfg.Store.Dir, id+".lock") }

	if _, err := store.Update(ctx, done.ID, func(j *jobs.Job) error { return j.MarkProcessing() }); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := os.Stat(lockFile(done.ID)); err != nil {
		t.Fatalf("live job should keep its lock file: %v", err)
	}
	if _, err := store.Update(ctx, done.ID, func(j *jobs.Job) error { return j.MarkCompleted(time.Now(), "/out.mp4") }); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := store.Update(ctx, failed.ID, func(j *jobs.Job) error { return j.MarkFailed(time.Now(), "boom") }); err != nil {
		t.Fatalf("fail: %v", err)
	}
	for _, id := range []string{done.ID, failed.ID} {
		if _, err := os.Stat(lockFile(id)); !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("lock file for terminal job %s still present: %v", id, err)
		}
	}

	// A rejected update on a terminal record must not leave a lock behind.
	if _, err := store.Update(ctx, done.ID, func(j *jobs.Job) error { return j.MarkProcessing() }); err == nil {
		t.Fatal("expected terminal job to reject further transitions")
	}
	if _, err := os.Stat(lockFile(done.ID)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("rejected update recreated lock file: %v", err)
	}
	if _, err := store.Update(ctx, "missing", func(*jobs.Job) error { return nil }); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := os.Stat(lockFile("missing")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("update of missing job left a lock file: %v", err)
	}
}

func TestFileListNewestFirstByCreation(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStoreBackend(config.StoreBackendFile))
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		job := jobs.NewAt(fmt.Sprintf("job-%d", i), "alice", "/tmp/x", jobs.DefaultStyle(), base.Add(time.Duration(i)*time.Second))
		if err := store.Create(ctx, job); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	// Rewriting the oldest record bumps its mtime but must not reorder it.
	future := time.Now().Add(time.Hour)
	if _, err := store.Update(ctx, "job-0", func(j *jobs.Job) error { return j.MarkProcessing() }); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := os.Chtimes(filepath.Join(cfg.Store.Dir, "job-0.json"), future, future); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}
	all, err := jobstore.Collect(store.List(ctx, nil))
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(all))
	}
	for i, want := range []string{"job-2", "job-1", "job-0"} {
		if all[i].ID != want {
			t.Fatalf("position %d = %s, want %s", i, all[i].ID, want)
		}
	}
}
