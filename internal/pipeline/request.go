package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"subburn/internal/config"
	"subburn/internal/jobs"
	"subburn/internal/services"
)

// SubmitRequest describes a new job. The source must already be on local
// disk; ingest handles uploads and URL downloads beforehand.
type SubmitRequest struct {
	// ID is optional; a fresh UUID is used when empty.
	ID         string          `json:"id,omitempty" validate:"omitempty,max=128"`
	Owner      string          `json:"owner" validate:"required,max=128"`
	SourcePath string          `json:"source_path" validate:"required"`
	SourceType jobs.SourceType `json:"source_type,omitempty" validate:"omitempty,oneof=upload url path"`
	Filename   string          `json:"filename,omitempty"`
	SourceURL  string          `json:"source_url,omitempty" validate:"omitempty,url"`
	// Style falls back to the configured defaults when nil.
	Style    *jobs.Style `json:"style,omitempty"`
	Simulate bool        `json:"simulate,omitempty"`
}

// StyleDefaults converts the [style] section into a job style.
func StyleDefaults(cfg config.Style) jobs.Style {
	return jobs.Style{
		FontFamily:  cfg.FontFamily,
		FontSize:    cfg.FontSize,
		FontColor:   cfg.FontColor,
		StrokeColor: cfg.StrokeColor,
		StrokeWidth: cfg.StrokeWidth,
		Padding:     cfg.Padding,
	}
}

func (e *Engine) normalizeRequest(req SubmitRequest) (SubmitRequest, jobs.Style, error) {
	req.Owner = strings.TrimSpace(req.Owner)
	req.SourcePath = strings.TrimSpace(req.SourcePath)
	if err := jobs.Validate(req); err != nil {
		return req, jobs.Style{}, err
	}

	style := StyleDefaults(e.cfg.Style)
	if req.Style != nil {
		style = *req.Style
	}
	style.FontColor = strings.ToUpper(style.FontColor)
	style.StrokeColor = strings.ToUpper(style.StrokeColor)
	if err := style.Validate(); err != nil {
		return req, jobs.Style{}, err
	}

	abs, err := filepath.Abs(req.SourcePath)
	if err != nil {
		return req, jobs.Style{}, services.Wrap(services.ErrValidation, "submit", "source", "resolve source path", err)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.Mode().IsRegular() {
		return req, jobs.Style{}, services.Wrap(services.ErrValidation, "submit", "source", fmt.Sprintf("source %s is not a readable file", abs), err)
	}
	req.SourcePath = abs

	if req.SourceType == "" {
		req.SourceType = jobs.SourcePath
	}
	if strings.TrimSpace(req.Filename) == "" {
		req.Filename = filepath.Base(abs)
	}
	req.Simulate = req.Simulate || e.cfg.Simulate.Enabled
	return req, style, nil
}
