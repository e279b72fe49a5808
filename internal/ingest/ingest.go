// Package ingest places source media on local disk before a job is
// submitted, either from an uploaded stream or by downloading a URL.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"subburn/internal/fileutil"
	"subburn/internal/services"
)

const stage = "download"

// ErrTooLarge marks sources that exceed the configured size limit.
var ErrTooLarge = fmt.Errorf("%w: source exceeds size limit", services.ErrValidation)

var fileNameReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
	"\x00", "",
)

// SanitizeFileName makes name safe to use as a single path element. An
// empty result means nothing usable was left.
func SanitizeFileName(name string) string {
	name = strings.TrimSpace(fileNameReplacer.Replace(strings.TrimSpace(name)))
	name = strings.TrimLeft(name, ".")
	if len(name) > 200 {
		ext := filepath.Ext(name)
		if len(ext) > 16 {
			ext = ""
		}
		name = name[:200-len(ext)] + ext
	}
	return name
}

// TargetPath returns <dir>/<id>_<sanitised name>.
func TargetPath(dir, id, name string) string {
	clean := SanitizeFileName(name)
	if clean == "" {
		clean = "upload.mp4"
	}
	return filepath.Join(dir, id+"_"+clean)
}

// SaveFile copies src into dir and returns the stored path. Reading more
// than maxBytes fails with ErrTooLarge; partial files are removed.
func SaveFile(ctx context.Context, src io.Reader, name, dir, id string, maxBytes int64) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("ingest: ensure dir: %w", err)
	}
	target := TargetPath(dir, id, name)
	if err := writeLimited(ctx, src, target, maxBytes); err != nil {
		return "", err
	}
	return target, nil
}

// FetchURL downloads rawURL into dir. The file name comes from the last URL
// path element, falling back to <id>.mp4. It returns the stored path and the
// display file name.
func FetchURL(ctx context.Context, client *http.Client, rawURL, dir, id string, maxBytes int64, timeout time.Duration) (string, string, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return "", "", services.Wrap(services.ErrValidation, stage, "url", fmt.Sprintf("unsupported url %q", rawURL), err)
	}
	if client == nil {
		client = http.DefaultClient
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return "", "", services.Wrap(services.ErrValidation, stage, "url", "build request", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", "", fmt.Errorf("%s: %w", stage, ctxErr)
		}
		return "", "", services.Wrap(services.ErrCollaboratorUnavailable, stage, "http", parsed.Host, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", "", services.Wrap(services.ErrCollaboratorFailed, stage, "http", fmt.Sprintf("GET %s returned %s", parsed.Redacted(), resp.Status), nil)
	}
	if maxBytes > 0 && resp.ContentLength > maxBytes {
		return "", "", fmt.Errorf("%w: %d bytes > %d", ErrTooLarge, resp.ContentLength, maxBytes)
	}

	name := fileNameFromURL(parsed)
	if name == "" {
		name = id + ".mp4"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("ingest: ensure dir: %w", err)
	}
	target := TargetPath(dir, id, name)
	if err := writeLimited(ctx, resp.Body, target, maxBytes); err != nil {
		return "", "", err
	}
	return target, name, nil
}

func fileNameFromURL(u *url.URL) string {
	base := path.Base(u.Path)
	if base == "." || base == "/" {
		return ""
	}
	if unescaped, err := url.PathUnescape(base); err == nil {
		base = unescaped
	}
	// Page-style URLs such as /watch carry no usable media name.
	if !strings.Contains(base, ".") {
		return ""
	}
	return SanitizeFileName(base)
}

func writeLimited(ctx context.Context, src io.Reader, target string, maxBytes int64) error {
	reader := src
	if maxBytes > 0 {
		reader = io.LimitReader(src, maxBytes+1)
	}
	var written int64
	err := fileutil.WriteAtomic(target, 0o644, func(w io.Writer) error {
		n, err := io.Copy(w, contextReader{ctx: ctx, r: reader})
		written = n
		if err != nil {
			return err
		}
		if maxBytes > 0 && n > maxBytes {
			return fmt.Errorf("%w: more than %d bytes", ErrTooLarge, maxBytes)
		}
		return nil
	})
	if err != nil {
		_ = fileutil.RemoveIfExists(target)
		if errors.Is(err, ErrTooLarge) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s: %w", stage, ctxErr)
		}
		return fmt.Errorf("ingest: write %s after %d bytes: %w", filepath.Base(target), written, err)
	}
	return nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
