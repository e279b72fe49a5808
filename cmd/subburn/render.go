package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"subburn/internal/jobs"
)

const stampLayout = "2006-01-02 15:04:05"

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatStamp(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Local().Format(stampLayout)
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func statusLabel(job *jobs.Job) string {
	label := string(job.Status)
	if job.Status == jobs.StatusProcessing {
		if key, ok := job.ActiveStep(); ok {
			label += " (" + key.Label() + ")"
		}
	}
	return label
}

func printJob(out io.Writer, job *jobs.Job) {
	fmt.Fprintf(out, "Job:        %s\n", job.ID)
	fmt.Fprintf(out, "Owner:      %s\n", job.Owner)
	fmt.Fprintf(out, "Status:     %s %.0f%%\n", statusLabel(job), job.Progress()*100)
	source := job.SourcePath
	if job.SourceURL != "" {
		source += " <- " + job.SourceURL
	}
	fmt.Fprintf(out, "Source:     %s (%s)\n", source, job.SourceType)
	if job.Simulate {
		fmt.Fprintln(out, "Mode:       simulated")
	}
	fmt.Fprintf(out, "Created:    %s\n", formatStamp(job.CreatedAt))
	if job.CompletedAt != nil {
		fmt.Fprintf(out, "Finished:   %s\n", formatStamp(*job.CompletedAt))
	}
	if job.OutputPath != "" {
		fmt.Fprintf(out, "Output:     %s\n", job.OutputPath)
	}
	if job.TranscriptPath != "" {
		fmt.Fprintf(out, "Transcript: %s\n", job.TranscriptPath)
	}
	if job.ArtifactURL != "" {
		fmt.Fprintf(out, "Artifact:   %s\n", job.ArtifactURL)
	}
	if job.Error != "" {
		fmt.Fprintf(out, "Error:      %s\n", job.Error)
	}

	rows := make([][]string, 0, len(job.Steps))
	for _, step := range job.Steps {
		rows = append(rows, []string{step.Label, string(step.Status), formatStamp(step.At)})
	}
	fmt.Fprintln(out, renderTable([]string{"Step", "Status", "Updated"}, rows, nil))
}

func printJobList(out io.Writer, list []*jobs.Job) {
	if len(list) == 0 {
		fmt.Fprintln(out, "No jobs")
		return
	}
	rows := make([][]string, 0, len(list))
	for _, job := range list {
		name := job.Filename
		if name == "" {
			name = job.SourcePath
		}
		rows = append(rows, []string{
			job.ID,
			job.Owner,
			statusLabel(job),
			fmt.Sprintf("%.0f%%", job.Progress()*100),
			formatStamp(job.CreatedAt),
			truncate(name, 40),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"ID", "Owner", "Status", "Progress", "Created", "Source"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
	))
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	r := []rune(s)
	return "..." + strings.TrimSpace(string(r[len(r)-n+3:]))
}
