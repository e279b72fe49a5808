// Package compositor burns captions into a video with ffmpeg's ass filter.
package compositor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"subburn/internal/captions"
	"subburn/internal/fileutil"
	"subburn/internal/jobs"
	"subburn/internal/media/ffprobe"
	"subburn/internal/services"
	"subburn/internal/transcript"
)

const stage = "overlay"

// Result describes a finished overlay.
type Result struct {
	Cues     int
	Copied   bool
	Duration float64
	Width    int
	Height   int
}

// FFmpeg renders captions through an intermediate ASS script.
type FFmpeg struct {
	Binary string
	Prober ffprobe.Prober
	Run    services.CommandRunner
}

// Overlay writes source with the captions of t burned in to output. When no
// cue survives clipping the source is copied unchanged.
func (f FFmpeg) Overlay(ctx context.Context, source, output string, t transcript.Transcription, style jobs.Style) (Result, error) {
	probe, err := f.Prober.Inspect(ctx, source)
	if err != nil {
		return Result{}, err
	}
	width, height := probe.Dimensions()
	result := Result{Duration: probe.DurationSeconds(), Width: width, Height: height}

	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return Result{}, fmt.Errorf("%s: ensure output dir: %w", stage, err)
	}

	cues := captions.Build(t, result.Duration)
	if len(cues) == 0 {
		if err := fileutil.CopyFile(source, output); err != nil {
			return Result{}, services.Wrap(services.ErrCollaboratorFailed, stage, "copy", "copy source without captions", err)
		}
		result.Copied = true
		return result, nil
	}
	result.Cues = len(cues)

	scriptPath := strings.TrimSuffix(output, filepath.Ext(output)) + ".ass"
	script := captions.RenderASS(cues, style, width, height)
	if err := fileutil.WriteFileAtomic(scriptPath, []byte(script), 0o644); err != nil {
		return Result{}, fmt.Errorf("%s: write caption script: %w", stage, err)
	}
	defer func() { _ = fileutil.RemoveIfExists(scriptPath) }()

	partial := filepath.Join(filepath.Dir(output), ".partial-"+filepath.Base(output))
	binary := strings.TrimSpace(f.Binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	if _, err := services.RunTool(ctx, f.Run, stage, binary, Args(source, scriptPath, partial)...); err != nil {
		_ = fileutil.RemoveIfExists(partial)
		return Result{}, err
	}
	info, err := os.Stat(partial)
	if err != nil || info.Size() == 0 {
		_ = fileutil.RemoveIfExists(partial)
		return Result{}, services.Wrap(services.ErrCollaboratorFailed, stage, binary, "no video produced", err)
	}
	if err := os.Rename(partial, output); err != nil {
		_ = fileutil.RemoveIfExists(partial)
		return Result{}, fmt.Errorf("%s: finalize output: %w", stage, err)
	}
	return result, nil
}

// Args returns the ffmpeg arguments that burn script into source.
func Args(source, script, output string) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-vf", "ass=" + escapeFilterPath(script),
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "20",
		"-c:a", "aac",
		"-b:a", "160k",
		"-movflags", "+faststart",
		output,
	}
}

var filterPathEscaper = strings.NewReplacer(
	`\`, `\\\\`,
	`:`, `\\:`,
	`'`, `\\\'`,
	`,`, `\,`,
	`[`, `\[`,
	`]`, `\]`,
	`;`, `\;`,
)

func escapeFilterPath(path string) string {
	return filterPathEscaper.Replace(path)
}
