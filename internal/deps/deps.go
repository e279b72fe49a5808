package deps

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"subburn/internal/config"
)

// Requirement defines an external dependency subburn relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Requirements lists the binaries the real pipeline shells out to. They are
// optional when the configuration runs every job in simulate mode.
func Requirements(cfg *config.Config) []Requirement {
	optional := cfg != nil && cfg.Simulate.Enabled
	tools := config.Tools{FFmpeg: "ffmpeg", FFprobe: "ffprobe", UVX: "uvx"}
	if cfg != nil {
		tools = cfg.Tools
	}
	return []Requirement{
		{Name: "FFmpeg", Command: tools.FFmpeg, Description: "Extracts audio and burns captions", Optional: optional},
		{Name: "FFprobe", Command: tools.FFprobe, Description: "Inspects source and output media", Optional: optional},
		{Name: "uvx", Command: tools.UVX, Description: "Runs WhisperX for transcription", Optional: optional},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		resolved, err := exec.LookPath(cmd)
		if err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Command = resolved
		status.Available = true
		results = append(results, status)
	}
	return results
}

// CheckFreeSpace reports whether dir's filesystem has at least minBytes free.
// A missing dir is checked through its nearest existing parent.
func CheckFreeSpace(dir string, minBytes uint64) Status {
	status := Status{
		Name:        "Disk space",
		Command:     dir,
		Description: fmt.Sprintf("At least %d MiB free for audio and outputs", minBytes>>20),
		Available:   true,
	}
	if minBytes == 0 {
		status.Detail = "check disabled"
		return status
	}
	probe := existingParent(dir)
	var fs unix.Statfs_t
	if err := unix.Statfs(probe, &fs); err != nil {
		status.Available = false
		status.Detail = fmt.Sprintf("statfs %s: %v", probe, err)
		return status
	}
	free := fs.Bavail * uint64(fs.Bsize)
	if free < minBytes {
		status.Available = false
		status.Detail = fmt.Sprintf("%d MiB free, need %d MiB", free>>20, minBytes>>20)
		return status
	}
	status.Detail = fmt.Sprintf("%d MiB free", free>>20)
	return status
}

// Check runs every check the configuration implies.
func Check(cfg *config.Config) []Status {
	results := CheckBinaries(Requirements(cfg))
	if cfg != nil && cfg.Engine.MinFreeMB > 0 {
		results = append(results, CheckFreeSpace(cfg.Paths.OutputsDir, uint64(cfg.Engine.MinFreeMB)<<20))
	}
	return results
}

// Missing returns the required (non-optional) checks that failed.
func Missing(results []Status) []Status {
	var missing []Status
	for _, status := range results {
		if !status.Available && !status.Optional {
			missing = append(missing, status)
		}
	}
	return missing
}

func existingParent(dir string) string {
	dir = filepath.Clean(dir)
	for {
		if _, err := os.Stat(dir); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}
