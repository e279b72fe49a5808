package whisperx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"subburn/internal/services"
	"subburn/internal/transcript"
)

const stage = "transcribe"

// Service provides WhisperX transcription capabilities.
type Service struct {
	cfg Config
	run services.CommandRunner
}

// NewService creates a WhisperX service with the given configuration.
func NewService(cfg Config) *Service {
	// Torch 2.6 changed torch.load to weights_only=true, which breaks the
	// pyannote checkpoints WhisperX loads.
	env := []string{}
	if os.Getenv("TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD") == "" {
		env = append(env, "TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD=1")
	}
	return &Service{cfg: cfg, run: services.ExecRunner(env...)}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(run services.CommandRunner) *Service {
	s.run = run
	return s
}

// Model returns the configured model name for logging.
func (s *Service) Model() string {
	if s.cfg.Model != "" {
		return s.cfg.Model
	}
	return DefaultModel
}

// Transcribe runs WhisperX on audioPath and returns its segments. Output
// without any spoken segment is a collaborator failure.
func (s *Service) Transcribe(ctx context.Context, audioPath string) (transcript.Transcription, error) {
	if strings.TrimSpace(audioPath) == "" {
		return transcript.Transcription{}, services.Wrap(services.ErrValidation, stage, "whisperx", "audio path required", nil)
	}
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	outputDir, err := os.MkdirTemp(filepath.Dir(audioPath), ".whisperx-*")
	if err != nil {
		return transcript.Transcription{}, fmt.Errorf("%s: create scratch dir: %w", stage, err)
	}
	defer os.RemoveAll(outputDir)

	binary := strings.TrimSpace(s.cfg.UVX)
	if binary == "" {
		binary = UVXCommand
	}
	if _, err := services.RunTool(ctx, s.run, stage, binary, s.buildArgs(audioPath, outputDir)...); err != nil {
		return transcript.Transcription{}, err
	}

	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	result, err := LoadTranscription(filepath.Join(outputDir, base+".json"))
	if err != nil {
		return transcript.Transcription{}, services.Wrap(services.ErrCollaboratorFailed, stage, "whisperx", "read output", err)
	}
	if result.Empty() {
		return transcript.Transcription{}, services.Wrap(services.ErrCollaboratorFailed, stage, "whisperx", "no speech segments produced", nil)
	}
	return result, nil
}

// buildArgs constructs the uvx command arguments for WhisperX.
func (s *Service) buildArgs(source, outputDir string) []string {
	args := make([]string, 0, 40)

	if s.cfg.CUDAEnabled {
		args = append(args,
			"--index-url", CUDAIndexURL,
			"--extra-index-url", PypiIndexURL,
		)
	} else {
		args = append(args, "--index-url", PypiIndexURL)
	}

	args = append(args,
		"whisperx",
		source,
		"--model", s.Model(),
		"--batch_size", BatchSize,
		"--output_dir", outputDir,
		"--output_format", OutputFormat,
		"--segment_resolution", SegmentResolution,
		"--chunk_size", ChunkSize,
		"--vad_onset", VADOnset,
		"--vad_offset", VADOffset,
		"--beam_size", BeamSize,
		"--best_of", BestOf,
		"--temperature", Temperature,
		"--patience", Patience,
	)

	vadMethod := s.cfg.VADMethod
	if vadMethod == "" {
		vadMethod = VADMethodSilero
	}
	args = append(args, "--vad_method", vadMethod)
	if vadMethod == VADMethodPyannote && s.cfg.HFToken != "" {
		args = append(args, "--hf_token", s.cfg.HFToken)
	}

	if lang := normalizeLanguage(s.cfg.Language); lang != "" {
		args = append(args, "--language", lang)
	}

	if s.cfg.CUDAEnabled {
		args = append(args, "--device", CUDADevice)
	} else {
		args = append(args, "--device", CPUDevice, "--compute_type", CPUComputeType)
	}
	return args
}

func normalizeLanguage(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if len(lang) < 2 || len(lang) > 3 {
		return ""
	}
	return lang
}

type payload struct {
	Language string           `json:"language"`
	Segments []payloadSegment `json:"segments"`
}

type payloadSegment struct {
	Text  string        `json:"text"`
	Start float64       `json:"start"`
	End   float64       `json:"end"`
	Words []payloadWord `json:"words"`
}

type payloadWord struct {
	Word  string   `json:"word"`
	Start *float64 `json:"start"`
	End   *float64 `json:"end"`
}

// LoadTranscription reads a WhisperX JSON file. Words WhisperX could not
// align carry no timing and are dropped.
func LoadTranscription(jsonPath string) (transcript.Transcription, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return transcript.Transcription{}, err
	}
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return transcript.Transcription{}, fmt.Errorf("parse whisperx json: %w", err)
	}
	if p.Segments == nil {
		return transcript.Transcription{}, errors.New("whisperx json has no segments field")
	}
	out := transcript.Transcription{Language: p.Language, Segments: make([]transcript.Segment, 0, len(p.Segments))}
	for _, seg := range p.Segments {
		converted := transcript.Segment{Start: seg.Start, End: seg.End, Text: strings.TrimSpace(seg.Text)}
		for _, w := range seg.Words {
			if w.Start == nil || w.End == nil {
				continue
			}
			converted.Words = append(converted.Words, transcript.Word{Text: w.Word, Start: *w.Start, End: *w.End})
		}
		out.Segments = append(out.Segments, converted)
	}
	return out, nil
}
