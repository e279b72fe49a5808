// Package artifacts publishes finished captioned videos. The local publisher
// leaves files where the engine wrote them; the minio publisher uploads them
// to an S3-compatible bucket.
package artifacts

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"

	"subburn/internal/config"
	"subburn/internal/services"
)

const stage = "finalize"

// Publisher makes a finished output available and returns where it lives.
type Publisher interface {
	Publish(ctx context.Context, jobID, localPath string) (string, error)
}

// Local publishes in place and returns the local path.
type Local struct{}

func (Local) Publish(_ context.Context, _ string, localPath string) (string, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return "", services.Wrap(services.ErrCollaboratorFailed, stage, "publish", "output missing", err)
	}
	if info.IsDir() {
		return "", services.Wrap(services.ErrCollaboratorFailed, stage, "publish", "output is a directory", nil)
	}
	return localPath, nil
}

// FromConfig returns the publisher selected by [artifacts] backend.
func FromConfig(cfg *config.Config, logger *slog.Logger) (Publisher, error) {
	switch cfg.Artifacts.Backend {
	case "", config.ArtifactsBackendLocal:
		return Local{}, nil
	case config.ArtifactsBackendMinio:
		return NewMinio(MinioOptions{
			Endpoint:  cfg.Artifacts.Endpoint,
			Bucket:    cfg.Artifacts.Bucket,
			Prefix:    cfg.Artifacts.Prefix,
			Region:    cfg.Artifacts.Region,
			AccessKey: cfg.Artifacts.AccessKey,
			SecretKey: cfg.Artifacts.SecretKey,
			UseSSL:    cfg.Artifacts.UseSSL,
		}, logger)
	default:
		return nil, fmt.Errorf("artifacts: unsupported backend %q", cfg.Artifacts.Backend)
	}
}

// ObjectName returns the key a job's output is stored under.
func ObjectName(prefix, jobID string) string {
	name := jobID + "_captioned.mp4"
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}
