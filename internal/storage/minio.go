/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package storage

import (
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

// MinIOUploader puts archives into a MinIO (or other S3-compatible) bucket.
type MinIOUploader struct {
	client *minio.Client
	bucket string
	prefix string
	logger zerolog.Logger
}

// NewMinIOUploader creates an uploader for the server at endpoint (host:port).
func NewMinIOUploader(endpoint, accessKey, secretKey, bucket string, useSSL bool, prefix string, logger zerolog.Logger) (*MinIOUploader, error) {
	if bucket == "" {
		return nil, fmt.Errorf("minio bucket is required")
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &MinIOUploader{
		client: client,
		bucket: bucket,
		prefix: prefix,
		logger: logger.With().Str("component", "storage_minio").Logger(),
	}, nil
}

func (u *MinIOUploader) ensureBucket(ctx context.Context) error {
	exists, err := u.client.BucketExists(ctx, u.bucket)
	if err != nil {
		return err
	}
	if !exists {
		return u.client.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{})
	}
	return nil
}

// Upload implements Uploader.
func (u *MinIOUploader) Upload(ctx context.Context, localPath string) (string, error) {
	if err := u.ensureBucket(ctx); err != nil {
		return "", fmt.Errorf("bucket %s: %w", u.bucket, err)
	}
	key := ObjectKey(u.prefix, localPath)
	info, err := u.client.FPutObject(ctx, u.bucket, key, localPath, minio.PutObjectOptions{
		ContentType: "application/zip",
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	u.logger.Info().Str("bucket", u.bucket).Str("key", key).Int64("bytes", info.Size).Msg("uploaded to minio")
	return fmt.Sprintf("%s/%s/%s", u.client.EndpointURL(), u.bucket, key), nil
}
