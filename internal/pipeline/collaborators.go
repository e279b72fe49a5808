package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"subburn/internal/artifacts"
	"subburn/internal/config"
	"subburn/internal/jobs"
	"subburn/internal/media/compositor"
	"subburn/internal/media/extract"
	"subburn/internal/media/ffprobe"
	"subburn/internal/services/whisperx"
	"subburn/internal/transcript"
)

// Extractor writes the audio of a video to target.
type Extractor interface {
	Extract(ctx context.Context, source, target string) error
}

// Transcriber turns an audio file into timed text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (transcript.Transcription, error)
}

// Compositor burns a transcription into a video.
type Compositor interface {
	Overlay(ctx context.Context, source, output string, t transcript.Transcription, style jobs.Style) (compositor.Result, error)
}

// Collaborators groups the external services a real run depends on.
type Collaborators struct {
	Extractor   Extractor
	Transcriber Transcriber
	Compositor  Compositor
	Publisher   artifacts.Publisher
}

func (c Collaborators) validate() error {
	var errs []error
	if c.Extractor == nil {
		errs = append(errs, errors.New("extractor is required"))
	}
	if c.Transcriber == nil {
		errs = append(errs, errors.New("transcriber is required"))
	}
	if c.Compositor == nil {
		errs = append(errs, errors.New("compositor is required"))
	}
	return errors.Join(errs...)
}

// DefaultCollaborators wires ffmpeg, ffprobe and WhisperX from cfg.
func DefaultCollaborators(cfg *config.Config, logger *slog.Logger) (Collaborators, error) {
	publisher, err := artifacts.FromConfig(cfg, logger)
	if err != nil {
		return Collaborators{}, err
	}
	return Collaborators{
		Extractor:   extract.FFmpeg{Binary: cfg.Tools.FFmpeg},
		Transcriber: whisperx.NewService(whisperx.ConfigFrom(cfg)),
		Compositor: compositor.FFmpeg{
			Binary: cfg.Tools.FFmpeg,
			Prober: ffprobe.Prober{Binary: cfg.Tools.FFprobe},
		},
		Publisher: publisher,
	}, nil
}
