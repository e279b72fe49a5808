package services_test

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"testing"

	"subburn/internal/services"
)

func TestRunToolClassifiesMissingBinary(t *testing.T) {
	run := func(context.Context, string, ...string) ([]byte, error) {
		return nil, &exec.Error{Name: "ffmpeg", Err: exec.ErrNotFound}
	}
	_, err := services.RunTool(context.Background(), run, "extract", "ffmpeg", "-i", "x")
	if !errors.Is(err, services.ErrCollaboratorUnavailable) {
		t.Fatalf("expected ErrCollaboratorUnavailable, got %v", err)
	}
}

func TestRunToolClassifiesExitFailure(t *testing.T) {
	run := func(context.Context, string, ...string) ([]byte, error) {
		return []byte("Invalid data found when processing input\n"), errors.New("exit status 1")
	}
	_, err := services.RunTool(context.Background(), run, "extract", "ffmpeg")
	if !errors.Is(err, services.ErrCollaboratorFailed) {
		t.Fatalf("expected ErrCollaboratorFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "Invalid data found") {
		t.Fatalf("expected tool output in error, got %q", err.Error())
	}
}

func TestRunToolPrefersContextError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	run := func(context.Context, string, ...string) ([]byte, error) {
		return nil, fmt.Errorf("signal: killed")
	}
	_, err := services.RunTool(ctx, run, "overlay", "ffmpeg")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRunToolSuccess(t *testing.T) {
	run := func(_ context.Context, name string, args ...string) ([]byte, error) {
		return []byte(name + " " + strings.Join(args, " ")), nil
	}
	out, err := services.RunTool(context.Background(), run, "probe", "ffprobe", "-v", "error")
	if err != nil {
		t.Fatalf("RunTool: %v", err)
	}
	if string(out) != "ffprobe -v error" {
		t.Fatalf("unexpected output %q", out)
	}
}
