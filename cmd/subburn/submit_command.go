package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"subburn/internal/config"
	"subburn/internal/daemon"
	"subburn/internal/ingest"
	"subburn/internal/ipc"
	"subburn/internal/jobs"
	"subburn/internal/logging"
	"subburn/internal/pipeline"
	"subburn/internal/services"
)

type submitOptions struct {
	owner    string
	simulate bool
	upload   bool
	noWait   bool
	json     bool
	timeout  time.Duration

	fontFamily  string
	fontSize    int
	fontColor   string
	strokeColor string
	strokeWidth int
	padding     int
}

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var opts submitOptions

	cmd := &cobra.Command{
		Use:   "submit <path|url>",
		Short: "Caption a video",
		Long: `Submit a local video file or an http(s) URL for captioning.

URLs are downloaded into the uploads directory first. With --upload a local
file is copied into the uploads directory instead of being read in place.
When no daemon is running the pipeline runs inside this process.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			req, err := buildSubmitRequest(cmd, cfg, args[0], opts)
			if err != nil {
				return err
			}

			client, ok, err := ctx.dialClient()
			if err != nil {
				discardIngested(req)
				return err
			}
			var job *jobs.Job
			if ok {
				defer client.Close()
				job, err = submitViaDaemon(cmd, client, req, opts)
			} else {
				if opts.noWait {
					discardIngested(req)
					return services.Wrap(services.ErrValidation, "", "submit", "--no-wait needs a running daemon", nil)
				}
				job, err = submitInProcess(cmd, cfg, req, opts)
			}
			if err != nil || job == nil {
				return err
			}
			if opts.json {
				if err := writeJSON(cmd, job); err != nil {
					return err
				}
			} else {
				printJob(cmd.OutOrStdout(), job)
			}
			if job.Status == jobs.StatusFailed {
				return fmt.Errorf("job %s failed: %s", job.ID, job.Error)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.owner, "owner", "", "Owner recorded on the job (default: current user)")
	flags.BoolVar(&opts.simulate, "simulate", false, "Walk the steps without running ffmpeg or WhisperX")
	flags.BoolVar(&opts.upload, "upload", false, "Copy a local file into the uploads directory before processing")
	flags.BoolVar(&opts.noWait, "no-wait", false, "Return as soon as the daemon accepts the job")
	flags.BoolVar(&opts.json, "json", false, "Print the job as JSON")
	flags.DurationVar(&opts.timeout, "timeout", 0, "Give up waiting after this long (0 waits forever)")
	flags.StringVar(&opts.fontFamily, "font", "", "Caption font family")
	flags.IntVar(&opts.fontSize, "font-size", 0, "Caption font size (12-72)")
	flags.StringVar(&opts.fontColor, "font-color", "", "Caption colour as #RRGGBB")
	flags.StringVar(&opts.strokeColor, "stroke-color", "", "Outline colour as #RRGGBB")
	flags.IntVar(&opts.strokeWidth, "stroke-width", 0, "Outline width (0-10)")
	flags.IntVar(&opts.padding, "padding", 0, "Bottom and side margin (0-50)")
	return cmd
}

func buildSubmitRequest(cmd *cobra.Command, cfg *config.Config, source string, opts submitOptions) (pipeline.SubmitRequest, error) {
	req := pipeline.SubmitRequest{
		ID:       jobs.NewID(),
		Owner:    strings.TrimSpace(opts.owner),
		Simulate: opts.simulate,
	}
	if req.Owner == "" {
		req.Owner = currentUser()
	}
	style := applyStyleFlags(cmd, pipeline.StyleDefaults(cfg.Style), opts)
	req.Style = &style

	ctx := commandCtx(cmd)
	source = strings.TrimSpace(source)
	switch {
	case strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://"):
		timeout := time.Duration(cfg.Ingest.DownloadTimeoutSeconds) * time.Second
		path, name, err := ingest.FetchURL(ctx, &http.Client{}, source, cfg.Paths.UploadsDir, req.ID, cfg.Ingest.MaxFileBytes, timeout)
		if err != nil {
			return req, err
		}
		req.SourcePath, req.SourceType, req.SourceURL, req.Filename = path, jobs.SourceURL, source, name
	case opts.upload:
		f, err := os.Open(source)
		if err != nil {
			return req, services.Wrap(services.ErrValidation, "", "upload", "open source", err)
		}
		defer f.Close()
		name := filepath.Base(source)
		path, err := ingest.SaveFile(ctx, f, name, cfg.Paths.UploadsDir, req.ID, cfg.Ingest.MaxFileBytes)
		if err != nil {
			return req, err
		}
		req.SourcePath, req.SourceType, req.Filename = path, jobs.SourceUpload, name
	default:
		abs, err := filepath.Abs(source)
		if err != nil {
			return req, services.Wrap(services.ErrValidation, "", "submit", "resolve source path", err)
		}
		req.SourcePath, req.SourceType = abs, jobs.SourcePath
	}
	return req, nil
}

func applyStyleFlags(cmd *cobra.Command, style jobs.Style, opts submitOptions) jobs.Style {
	flags := cmd.Flags()
	if flags.Changed("font") {
		style.FontFamily = opts.fontFamily
	}
	if flags.Changed("font-size") {
		style.FontSize = opts.fontSize
	}
	if flags.Changed("font-color") {
		style.FontColor = opts.fontColor
	}
	if flags.Changed("stroke-color") {
		style.StrokeColor = opts.strokeColor
	}
	if flags.Changed("stroke-width") {
		style.StrokeWidth = opts.strokeWidth
	}
	if flags.Changed("padding") {
		style.Padding = opts.padding
	}
	return style
}

func waitContext(cmd *cobra.Command, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(commandCtx(cmd), timeout)
	}
	return context.WithCancel(commandCtx(cmd))
}

func submitViaDaemon(cmd *cobra.Command, client *ipc.Client, req pipeline.SubmitRequest, opts submitOptions) (*jobs.Job, error) {
	id, err := client.Submit(commandCtx(cmd), req)
	if err != nil {
		discardIngested(req)
		return nil, err
	}
	if opts.noWait {
		if opts.json {
			return client.Status(commandCtx(cmd), id)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Submitted %s\n", id)
		return nil, nil
	}
	if !opts.json {
		fmt.Fprintf(cmd.ErrOrStderr(), "Submitted %s, waiting for it to finish\n", id)
	}
	waitCtx, cancel := waitContext(cmd, opts.timeout)
	defer cancel()
	return client.Wait(waitCtx, id, 500*time.Millisecond)
}

// submitInProcess runs a private daemon for the duration of one job. The
// daemon lock keeps it from racing a daemon started meanwhile.
func submitInProcess(cmd *cobra.Command, cfg *config.Config, req pipeline.SubmitRequest, opts submitOptions) (*jobs.Job, error) {
	local := *cfg
	local.Metrics.Bind = ""
	logger, err := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stderr"},
	})
	if err != nil {
		discardIngested(req)
		return nil, err
	}

	d, err := daemon.New(&local, logger, daemon.Options{})
	if err != nil {
		discardIngested(req)
		return nil, err
	}
	defer d.Close()
	if err := d.Start(commandCtx(cmd)); err != nil {
		discardIngested(req)
		return nil, err
	}

	id, err := d.Submit(commandCtx(cmd), req)
	if err != nil {
		discardIngested(req)
		return nil, err
	}
	if !opts.json {
		fmt.Fprintf(cmd.ErrOrStderr(), "Running %s in-process\n", id)
	}
	waitCtx, cancel := waitContext(cmd, opts.timeout)
	defer cancel()
	job, err := d.Wait(waitCtx, id)
	if err != nil {
		// Stop via the deferred Close fails the job as canceled.
		return nil, err
	}
	return job, nil
}

// discardIngested removes a file copied or downloaded for a job that was
// never accepted. Sources read in place are left alone.
func discardIngested(req pipeline.SubmitRequest) {
	switch req.SourceType {
	case jobs.SourceUpload, jobs.SourceURL:
		if req.SourcePath != "" {
			_ = os.Remove(req.SourcePath)
		}
	}
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return "local"
}
