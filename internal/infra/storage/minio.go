package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Minio publishes rendered reports to an object store so they survive
// restarts and can be served without going through the backend.
type Minio struct {
	client     *minio.Client
	bucketName string
	region     string
}

func NewMinio(ctx context.Context, endpoint, region, bucket, accessKey, secretKey string, useSSL bool) (*Minio, error) {
	cli, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, err
	}

	exists, err := cli.BucketExists(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := cli.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
			return nil, err
		}
	}

	return &Minio{client: cli, bucketName: bucket, region: region}, nil
}

// Upload implements ArtifactStore.
func (s *Minio) Upload(ctx context.Context, localPath, key string) (string, error) {
	contentType := "application/octet-stream"
	switch filepath.Ext(localPath) {
	case ".html":
		contentType = "text/html"
	case ".json":
		contentType = "application/json"
	}

	_, err := s.client.FPutObject(ctx, s.bucketName, key, localPath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", err
	}

	// Object URL assumes a public-read bucket; a private bucket would need
	// presigned URLs instead.
	return fmt.Sprintf("%s/%s/%s", s.client.EndpointURL(), s.bucketName, key), nil
}

// UploadAndCleanup uploads the report and removes the local copy afterwards.
func (s *Minio) UploadAndCleanup(ctx context.Context, localPath, key string) (string, error) {
	url, err := s.Upload(ctx, localPath, key)
	if err != nil {
		return "", err
	}
	if err := os.Remove(localPath); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to remove local file %s: %v\n", localPath, err)
	}
	return url, nil
}
