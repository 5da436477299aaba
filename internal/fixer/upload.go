package fixer

import (
	"context"
	"fmt"
	"path/filepath"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config locates the bucket that receives backup archives.
type S3Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Prefix    string
}

// S3Uploader stores backup archives in an S3 compatible bucket.
type S3Uploader struct {
	mc     *minio.Client
	bucket string
	prefix string
}

func NewS3Uploader(cfg S3Config) (*S3Uploader, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}
	return &S3Uploader{mc: mc, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Upload puts the file under prefix + its base name and returns its s3 URL.
func (u *S3Uploader) Upload(ctx context.Context, path string) (string, error) {
	key := u.prefix + filepath.Base(path)
	_, err := u.mc.FPutObject(ctx, u.bucket, key, path, minio.PutObjectOptions{
		ContentType: "application/zip",
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("s3://%s/%s", u.bucket, key), nil
}
