package compositor_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subburn/internal/jobs"
	"subburn/internal/media/compositor"
	"subburn/internal/media/ffprobe"
	"subburn/internal/services"
	"subburn/internal/transcript"
)

const probeJSON = `{"streams":[{"codec_type":"video","width":640,"height":360}],"format":{"duration":"5.0"}}`

func stubProber() ffprobe.Prober {
	return ffprobe.Prober{Run: func(context.Context, string, ...string) ([]byte, error) {
		return []byte(probeJSON), nil
	}}
}

func writeSource(t *testing.T, dir string) string {
	t.Helper()
	source := filepath.Join(dir, "in.mp4")
	require.NoError(t, os.WriteFile(source, []byte("source-bytes"), 0o644))
	return source
}

func TestOverlayBurnsCaptions(t *testing.T) {
	dir := t.TempDir()
	source := writeSource(t, dir)
	output := filepath.Join(dir, "out", "job_captioned.mp4")

	var script string
	ff := compositor.FFmpeg{
		Prober: stubProber(),
		Run: func(_ context.Context, _ string, args ...string) ([]byte, error) {
			for i, arg := range args {
				if arg == "-vf" {
					path := strings.TrimPrefix(args[i+1], "ass=")
					data, err := os.ReadFile(path)
					require.NoError(t, err)
					script = string(data)
				}
			}
			return nil, os.WriteFile(args[len(args)-1], []byte("captioned"), 0o644)
		},
	}
	tr := transcript.Transcription{Segments: []transcript.Segment{
		{Start: 0, End: 2, Text: "hello"},
		{Start: 6, End: 7, Text: "after the end"},
	}}
	result, err := ff.Overlay(context.Background(), source, output, tr, jobs.DefaultStyle())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Cues)
	assert.False(t, result.Copied)
	assert.Equal(t, 640, result.Width)
	assert.Contains(t, script, "PlayResX: 640")
	assert.Contains(t, script, "hello")
	assert.NotContains(t, script, "after the end")

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "captioned", string(data))
	assert.NoFileExists(t, strings.TrimSuffix(output, ".mp4")+".ass")
}

func TestOverlayZeroCuesCopiesSource(t *testing.T) {
	dir := t.TempDir()
	source := writeSource(t, dir)
	output := filepath.Join(dir, "out.mp4")
	ff := compositor.FFmpeg{
		Prober: stubProber(),
		Run: func(context.Context, string, ...string) ([]byte, error) {
			t.Fatal("ffmpeg must not run without cues")
			return nil, nil
		},
	}
	tr := transcript.Transcription{Segments: []transcript.Segment{{Start: 8, End: 9, Text: "beyond"}}}
	result, err := ff.Overlay(context.Background(), source, output, tr, jobs.DefaultStyle())
	require.NoError(t, err)
	assert.Zero(t, result.Cues)
	assert.True(t, result.Copied)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "source-bytes", string(data))
}

func TestOverlayFailureLeavesNoOutput(t *testing.T) {
	dir := t.TempDir()
	source := writeSource(t, dir)
	output := filepath.Join(dir, "out.mp4")
	ff := compositor.FFmpeg{
		Prober: stubProber(),
		Run: func(_ context.Context, _ string, args ...string) ([]byte, error) {
			_ = os.WriteFile(args[len(args)-1], []byte("partial"), 0o644)
			return []byte("encoder exploded"), errors.New("exit status 1")
		},
	}
	tr := transcript.Transcription{Segments: []transcript.Segment{{Start: 0, End: 1, Text: "hi"}}}
	_, err := ff.Overlay(context.Background(), source, output, tr, jobs.DefaultStyle())
	require.ErrorIs(t, err, services.ErrCollaboratorFailed)
	assert.NoFileExists(t, output)

	leftovers, _ := filepath.Glob(filepath.Join(dir, ".partial-*"))
	assert.Empty(t, leftovers)
}

func TestArgsEscapesFilterPath(t *testing.T) {
	args := compositor.Args("in.mp4", "/tmp/a:b/c.ass", "out.mp4")
	assert.Contains(t, args, `ass=/tmp/a\\:b/c.ass`)
	assert.Equal(t, "out.mp4", args[len(args)-1])
}
