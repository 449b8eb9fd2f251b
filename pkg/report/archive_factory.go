package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// NewArchiveFromEnv creates a report archive based on environment
// variables.
//
//   - REPORT_ARCHIVE: "" (disabled), "fs", "s3", or "gcs"
//   - DATA_DIR: base directory for the fs archive (default "data")
//   - REPORT_S3_BUCKET, REPORT_S3_REGION (or AWS_REGION),
//     REPORT_S3_ENDPOINT, REPORT_S3_PREFIX
//   - REPORT_GCS_BUCKET, REPORT_GCS_PREFIX
//
// A nil Archive with nil error means archival is disabled.
func NewArchiveFromEnv(ctx context.Context) (Archive, error) {
	backend := os.Getenv("REPORT_ARCHIVE")
	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = "data"
	}
	switch backend {
	case "fs":
		return NewArchive(ctx, backend, "", filepath.Join(dataDir, "archive"))
	case "s3":
		return NewArchive(ctx, backend, os.Getenv("REPORT_S3_BUCKET"), "")
	case "gcs":
		return NewArchive(ctx, backend, os.Getenv("REPORT_GCS_BUCKET"), "")
	default:
		return NewArchive(ctx, backend, "", "")
	}
}

// NewArchive opens a report archive for the named backend. An empty
// backend disables archival (nil Archive, nil error). S3 region/endpoint
// and object prefixes still come from the environment.
func NewArchive(ctx context.Context, backend, bucket, dir string) (Archive, error) {
	switch backend {
	case "":
		return nil, nil
	case "fs":
		if dir == "" {
			dir = filepath.Join("data", "archive")
		}
		return NewFileArchive(dir)
	case "s3":
		if bucket == "" {
			return nil, fmt.Errorf("report: a bucket is required for the s3 archive")
		}
		region := os.Getenv("REPORT_S3_REGION")
		if region == "" {
			region = os.Getenv("AWS_REGION")
		}
		if region == "" {
			region = "us-east-1"
		}
		return NewS3Archive(ctx, S3ArchiveConfig{
			Bucket:   bucket,
			Region:   region,
			Endpoint: os.Getenv("REPORT_S3_ENDPOINT"),
			Prefix:   os.Getenv("REPORT_S3_PREFIX"),
		})
	case "gcs":
		if bucket == "" {
			return nil, fmt.Errorf("report: a bucket is required for the gcs archive")
		}
		return NewGCSArchive(ctx, bucket, os.Getenv("REPORT_GCS_PREFIX"))
	default:
		return nil, fmt.Errorf("report: unsupported archive backend %q", backend)
	}
}
