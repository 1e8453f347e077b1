// Package archive keeps the raw XML of every stored report in an S3
// compatible bucket, keyed by scan id.
package archive

import (
	"bytes"
	"context"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/anstrom/scanvault/internal/errors"
)

// ContentType is the media type reports are stored and served with.
const ContentType = "application/xml"

// Config holds object storage settings.
type Config struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Endpoint  string `yaml:"endpoint" json:"endpoint"`
	Bucket    string `yaml:"bucket" json:"bucket"`
	AccessKey string `yaml:"access_key" json:"access_key"`
	SecretKey string `yaml:"secret_key" json:"-"`
	UseSSL    bool   `yaml:"use_ssl" json:"use_ssl"`
	Region    string `yaml:"region" json:"region"`
}

// DefaultConfig returns a disabled archive pointing at a local MinIO.
func DefaultConfig() Config {
	return Config{
		Endpoint: "localhost:9000",
		Bucket:   "scanvault-reports",
		Region:   "us-east-1",
	}
}

// Archive stores and retrieves raw reports.
type Archive struct {
	client *minio.Client
	bucket string
	region string
}

// New connects to the endpoint and creates the bucket when it is missing.
func New(ctx context.Context, cfg Config) (*Archive, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.WrapConfigError(errors.CodeConfiguration, "invalid archive endpoint", err)
	}

	a := &Archive{client: client, bucket: cfg.Bucket, region: cfg.Region}
	if err := a.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Archive) ensureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return unavailable("check bucket", err)
	}
	if exists {
		return nil
	}
	if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{Region: a.region}); err != nil {
		return unavailable("create bucket", err)
	}
	return nil
}

// Key returns the object name used for a scan.
func Key(scanID string) string {
	return "reports/" + scanID + ".xml"
}

// Put uploads the raw report of a scan and returns its object key.
func (a *Archive) Put(ctx context.Context, scanID string, document []byte) (string, error) {
	key := Key(scanID)
	_, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(document), int64(len(document)),
		minio.PutObjectOptions{
			ContentType:          ContentType,
			DisableContentSha256: true,
			UserMetadata:         map[string]string{"scan-id": scanID},
		})
	if err != nil {
		return "", unavailable("upload report", err)
	}
	return key, nil
}

// Get returns the raw report of a scan.
func (a *Archive) Get(ctx context.Context, scanID string) ([]byte, error) {
	obj, err := a.client.GetObject(ctx, a.bucket, Key(scanID), minio.GetObjectOptions{})
	if err != nil {
		return nil, unavailable("download report", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, errors.ErrNotFound("report", scanID)
		}
		return nil, unavailable("download report", err)
	}
	return data, nil
}

// Ping checks that the bucket is reachable.
func (a *Archive) Ping(ctx context.Context) error {
	if _, err := a.client.BucketExists(ctx, a.bucket); err != nil {
		return unavailable("check bucket", err)
	}
	return nil
}

func unavailable(operation string, err error) error {
	return errors.WrapServiceError(errors.CodeServiceUnavailable, "archive", operation+" failed", err)
}
