// Package extract pulls the audio track out of a video with ffmpeg.
package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"subburn/internal/fileutil"
	"subburn/internal/services"
)

const stage = "extract"

// FFmpeg extracts a stereo 44.1 kHz WAV file from a video.
type FFmpeg struct {
	Binary string
	Run    services.CommandRunner
}

// Args returns the ffmpeg arguments used to extract source into target.
func Args(source, target string) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-vn",
		"-ac", "2",
		"-ar", "44100",
		"-b:a", "160k",
		target,
	}
}

// Extract writes the audio of source to target. A missing or empty target
// after ffmpeg exits is a collaborator failure; partial output is removed.
func (f FFmpeg) Extract(ctx context.Context, source, target string) error {
	binary := strings.TrimSpace(f.Binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("%s: ensure audio dir: %w", stage, err)
	}
	if _, err := services.RunTool(ctx, f.Run, stage, binary, Args(source, target)...); err != nil {
		_ = fileutil.RemoveIfExists(target)
		return err
	}
	info, err := os.Stat(target)
	if err != nil || info.Size() == 0 {
		_ = fileutil.RemoveIfExists(target)
		return services.Wrap(services.ErrCollaboratorFailed, stage, binary, "no audio produced", err)
	}
	return nil
}
