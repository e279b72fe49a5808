// Package captions turns a transcription into timed cues and renders them as
// an Advanced SubStation Alpha script for burning into video.
package captions

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"subburn/internal/transcript"
)

// Cue is one caption shown between Start and End seconds.
type Cue struct {
	Start float64
	End   float64
	Text  string
}

// Build converts segments into cues. Each segment is clipped to
// [0, videoDuration]; a non-positive duration means the length is unknown and
// only the lower bound applies. Segments that end up empty in time or text
// are dropped.
func Build(t transcript.Transcription, videoDuration float64) []Cue {
	cues := make([]Cue, 0, len(t.Segments))
	for _, seg := range t.Segments {
		text := normalizeText(seg.Text)
		if text == "" {
			continue
		}
		start := max(seg.Start, 0)
		end := seg.End
		if videoDuration > 0 {
			end = min(end, videoDuration)
		}
		if end <= start {
			continue
		}
		cues = append(cues, Cue{Start: start, End: end, Text: text})
	}
	return cues
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}
