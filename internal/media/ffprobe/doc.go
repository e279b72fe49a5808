// Package ffprobe inspects media containers with the ffprobe binary and
// exposes the duration and picture size the compositor needs.
package ffprobe
