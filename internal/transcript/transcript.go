// Package transcript defines the timed text produced by transcription and
// its on-disk JSON form.
package transcript

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"subburn/internal/fileutil"
)

// Word is a single recognised word with timing in seconds.
type Word struct {
	Text  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Segment is a contiguous span of speech with timing in seconds.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
	Words []Word  `json:"words,omitempty"`
}

// Transcription is the full result for one audio file.
type Transcription struct {
	Language string    `json:"language,omitempty"`
	Segments []Segment `json:"segments"`
}

// Empty reports whether no segment carries non-blank text.
func (t Transcription) Empty() bool {
	for _, seg := range t.Segments {
		if strings.TrimSpace(seg.Text) != "" {
			return false
		}
	}
	return true
}

// Text joins the trimmed text of every segment with single spaces.
func (t Transcription) Text() string {
	parts := make([]string, 0, len(t.Segments))
	for _, seg := range t.Segments {
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// Duration returns the largest segment end time.
func (t Transcription) Duration() float64 {
	var end float64
	for _, seg := range t.Segments {
		end = max(end, seg.End)
	}
	return end
}

// Save writes the transcription as indented JSON, replacing path atomically.
func (t Transcription) Save(path string) error {
	if t.Segments == nil {
		t.Segments = []Segment{}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}
	if err := fileutil.WriteJSONAtomic(path, t); err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}
	return nil
}

// Load reads a transcription previously written by Save.
func Load(path string) (Transcription, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Transcription{}, fmt.Errorf("load transcript: %w", err)
	}
	var t Transcription
	if err := json.Unmarshal(data, &t); err != nil {
		return Transcription{}, fmt.Errorf("parse transcript %s: %w", path, err)
	}
	return t, nil
}
