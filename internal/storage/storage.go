/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package storage moves packaged media off the camera.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// Uploader hands a local file to a remote store and returns its remote id.
type Uploader interface {
	Upload(ctx context.Context, localPath string) (string, error)
}

// ObjectKey places a file under the camera's prefix: <prefix>/<basename>.
func ObjectKey(prefix, localPath string) string {
	base := filepath.Base(localPath)
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return base
	}
	return path.Join(prefix, base)
}

// Config selects and configures a backend.
type Config struct {
	Backend string // s3, minio, fs or none
	Prefix  string

	S3Bucket       string
	S3Region       string
	S3Endpoint     string
	S3AccessKeyID  string
	S3SecretKey    string
	S3UsePathStyle bool

	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool

	FSDir string
}

// New builds the configured uploader.
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (Uploader, error) {
	switch cfg.Backend {
	case "s3":
		return NewS3Uploader(ctx, S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretKey,
			UsePathStyle:    cfg.S3UsePathStyle,
			Prefix:          cfg.Prefix,
		}, logger)
	case "minio":
		return NewMinIOUploader(cfg.MinIOEndpoint, cfg.MinIOAccessKey, cfg.MinIOSecretKey, cfg.MinIOBucket, cfg.MinIOUseSSL, cfg.Prefix, logger)
	case "fs":
		return NewFilesystemUploader(cfg.FSDir, cfg.Prefix, logger), nil
	case "", "none":
		return Disabled{}, nil
	default:
		return nil, fmt.Errorf("unknown upload backend %q", cfg.Backend)
	}
}

// ErrDisabled is returned by the Disabled uploader.
var ErrDisabled = errors.New("upload backend disabled")

// Disabled rejects every upload. Upload slots then only archive locally.
type Disabled struct{}

// Upload implements Uploader.
func (Disabled) Upload(context.Context, string) (string, error) {
	return "", ErrDisabled
}
