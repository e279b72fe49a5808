package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strings"
)

// CommandRunner executes an external program and returns its combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec. env entries are appended to the
// current environment.
func ExecRunner(env ...string) CommandRunner {
	return func(ctx context.Context, name string, args ...string) ([]byte, error) {
		cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
		if len(env) > 0 {
			cmd.Env = append(os.Environ(), env...)
		}
		return cmd.CombinedOutput()
	}
}

// RunTool executes name through run and maps failures onto the error
// taxonomy: a missing binary is ErrCollaboratorUnavailable, cancellation
// surfaces the context error, anything else is ErrCollaboratorFailed with
// the tail of the tool output.
func RunTool(ctx context.Context, run CommandRunner, stage, name string, args ...string) ([]byte, error) {
	if run == nil {
		run = ExecRunner()
	}
	output, err := run(ctx, name, args...)
	if err == nil {
		return output, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return output, fmt.Errorf("%s: %s: %w", stage, name, ctxErr)
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return output, Wrap(ErrCollaboratorUnavailable, stage, name, fmt.Sprintf("binary %q not found", name), err)
	}
	return output, Wrap(ErrCollaboratorFailed, stage, name, outputTail(output), err)
}

const outputTailLimit = 512

func outputTail(output []byte) string {
	text := strings.TrimSpace(string(output))
	if len(text) > outputTailLimit {
		text = "..." + text[len(text)-outputTailLimit:]
	}
	if text == "" {
		return "command failed"
	}
	return text
}
