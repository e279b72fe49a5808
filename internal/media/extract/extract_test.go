package extract_test

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"testing"

	"subburn/internal/media/extract"
	"subburn/internal/services"
)

func TestExtractWritesTarget(t *testing.T) {
	target := filepath.Join(t.TempDir(), "audio", "job.wav")
	var gotArgs []string
	ff := extract.FFmpeg{Binary: "ff", Run: func(_ context.Context, name string, args ...string) ([]byte, error) {
		gotArgs = args
		return nil, os.WriteFile(args[len(args)-1], []byte("RIFF"), 0o644)
	}}
	if err := ff.Extract(context.Background(), "/in.mp4", target); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	for _, want := range []string{"-vn", "44100", "160k"} {
		if !slices.Contains(gotArgs, want) {
			t.Fatalf("missing %q in %v", want, gotArgs)
		}
	}
}

func TestExtractEmptyOutputFails(t *testing.T) {
	target := filepath.Join(t.TempDir(), "job.wav")
	ff := extract.FFmpeg{Run: func(_ context.Context, _ string, args ...string) ([]byte, error) {
		return nil, os.WriteFile(args[len(args)-1], nil, 0o644)
	}}
	err := ff.Extract(context.Background(), "/in.mp4", target)
	if !errors.Is(err, services.ErrCollaboratorFailed) {
		t.Fatalf("expected ErrCollaboratorFailed, got %v", err)
	}
	if _, statErr := os.Stat(target); !os.IsNotExist(statErr) {
		t.Fatal("empty output should be removed")
	}
}

func TestExtractMissingBinary(t *testing.T) {
	ff := extract.FFmpeg{Run: func(context.Context, string, ...string) ([]byte, error) {
		return nil, &exec.Error{Name: "ffmpeg", Err: exec.ErrNotFound}
	}}
	err := ff.Extract(context.Background(), "/in.mp4", filepath.Join(t.TempDir(), "a.wav"))
	if !errors.Is(err, services.ErrCollaboratorUnavailable) {
		t.Fatalf("expected ErrCollaboratorUnavailable, got %v", err)
	}
}
