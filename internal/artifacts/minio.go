package artifacts

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"subburn/internal/logging"
	"subburn/internal/services"
)

// MinioOptions configures an S3-compatible publisher.
type MinioOptions struct {
	Endpoint  string
	Bucket    string
	Prefix    string
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

type objectPutter interface {
	FPutObject(ctx context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	EndpointURL() *url.URL
}

// Minio uploads outputs with minio-go.
type Minio struct {
	client objectPutter
	bucket string
	prefix string
	logger *slog.Logger
}

// NewMinio builds a client for opts. No network call is made until Publish.
func NewMinio(opts MinioOptions, logger *slog.Logger) (*Minio, error) {
	if strings.TrimSpace(opts.Endpoint) == "" || strings.TrimSpace(opts.Bucket) == "" {
		return nil, errors.New("artifacts: minio endpoint and bucket are required")
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, err
	}
	return newMinioWithClient(client, opts.Bucket, opts.Prefix, logger), nil
}

func newMinioWithClient(client objectPutter, bucket, prefix string, logger *slog.Logger) *Minio {
	return &Minio{
		client: client,
		bucket: bucket,
		prefix: prefix,
		logger: logging.NewComponentLogger(logger, "artifacts"),
	}
}

// Publish uploads localPath and returns the object URL.
func (m *Minio) Publish(ctx context.Context, jobID, localPath string) (string, error) {
	object := ObjectName(m.prefix, jobID)
	info, err := m.client.FPutObject(ctx, m.bucket, object, localPath, minio.PutObjectOptions{ContentType: "video/mp4"})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", services.Wrap(services.ErrCollaboratorFailed, stage, "publish", "upload to "+m.bucket, err)
	}
	objectURL := m.client.EndpointURL().JoinPath(m.bucket, object).String()
	m.logger.InfoContext(ctx, "published artifact",
		logging.String(logging.FieldJobID, jobID),
		logging.String("object", object),
		logging.Int64("size_bytes", info.Size),
	)
	return objectURL, nil
}
