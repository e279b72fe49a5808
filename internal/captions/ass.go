package captions

import (
	"fmt"
	"math"
	"strings"

	"subburn/internal/jobs"
)

const (
	defaultPlayResX = 1920
	defaultPlayResY = 1080

	// numpad layout; 2 is bottom centre.
	alignBottomCenter = 2
)

// RenderASS renders cues as an ASS script with a single style derived from
// style. Width and height set the script resolution so font sizes map to
// video pixels; non-positive values fall back to 1920x1080.
func RenderASS(cues []Cue, style jobs.Style, width, height int) string {
	if width <= 0 || height <= 0 {
		width, height = defaultPlayResX, defaultPlayResY
	}
	var b strings.Builder
	b.WriteString("[Script Info]\n")
	b.WriteString("ScriptType: v4.00+\n")
	b.WriteString("WrapStyle: 0\n")
	b.WriteString("ScaledBorderAndShadow: yes\n")
	fmt.Fprintf(&b, "PlayResX: %d\n", width)
	fmt.Fprintf(&b, "PlayResY: %d\n\n", height)

	b.WriteString("[V4+ Styles]\n")
	b.WriteString("Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, " +
		"Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, " +
		"Alignment, MarginL, MarginR, MarginV, Encoding\n")
	primary := ASSColor(style.FontColor)
	fmt.Fprintf(&b, "Style: Default,%s,%d,%s,%s,%s,&H00000000,0,0,0,0,100,100,0,0,1,%d,0,%d,%d,%d,%d,1\n\n",
		escapeStyleField(style.FontFamily), style.FontSize,
		primary, primary, ASSColor(style.StrokeColor),
		style.StrokeWidth, alignBottomCenter,
		style.Padding, style.Padding, style.Padding,
	)

	b.WriteString("[Events]\n")
	b.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")
	for _, cue := range cues {
		fmt.Fprintf(&b, "Dialogue: 0,%s,%s,Default,,0,0,0,,%s\n",
			FormatTimestamp(cue.Start), FormatTimestamp(cue.End), escapeText(cue.Text))
	}
	return b.String()
}

// ASSColor converts #RRGGBB to the &H00BBGGRR form used by ASS. Malformed
// input renders as opaque white.
func ASSColor(hex string) string {
	hex = strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if len(hex) != 6 {
		return "&H00FFFFFF"
	}
	hex = strings.ToUpper(hex)
	return "&H00" + hex[4:6] + hex[2:4] + hex[0:2]
}

// FormatTimestamp renders seconds as H:MM:SS.cc.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	cs := int64(math.Round(seconds * 100))
	h := cs / 360000
	cs -= h * 360000
	m := cs / 6000
	cs -= m * 6000
	s := cs / 100
	cs -= s * 100
	return fmt.Sprintf("%d:%02d:%02d.%02d", h, m, s, cs)
}

var textEscaper = strings.NewReplacer(
	"\\", "\\\\",
	"{", "\\{",
	"}", "\\}",
	"\n", "\\N",
)

func escapeText(s string) string {
	return textEscaper.Replace(s)
}

func escapeStyleField(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", " "))
	if s == "" {
		return "Arial"
	}
	return s
}
