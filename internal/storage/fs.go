/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// FilesystemUploader copies archives into a directory, typically a mounted
// network share or a second removable drive.
type FilesystemUploader struct {
	rootDir string
	prefix  string
	logger  zerolog.Logger
}

// NewFilesystemUploader creates a directory-backed uploader.
func NewFilesystemUploader(rootDir, prefix string, logger zerolog.Logger) *FilesystemUploader {
	return &FilesystemUploader{
		rootDir: rootDir,
		prefix:  prefix,
		logger:  logger.With().Str("component", "storage_fs").Logger(),
	}
}

// Upload implements Uploader.
func (fs *FilesystemUploader) Upload(ctx context.Context, localPath string) (string, error) {
	if err := fs.checkAccess(); err != nil {
		return "", err
	}
	rel := ObjectKey(fs.prefix, localPath)
	fullPath := filepath.Join(fs.rootDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("create directories: %w", err)
	}

	src, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	tmp := fullPath + ".part"
	dest, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(dest, readerWithContext{ctx: ctx, r: src}); err != nil {
		dest.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("write file: %w", err)
	}
	if err := dest.Close(); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmp, fullPath); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("rename: %w", err)
	}

	fs.logger.Debug().Str("path", fullPath).Msg("archive copied")
	return rel, nil
}

func (fs *FilesystemUploader) checkAccess() error {
	info, err := os.Stat(fs.rootDir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("upload directory does not exist: %s", fs.rootDir)
		}
		return fmt.Errorf("cannot access upload directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("upload target is not a directory: %s", fs.rootDir)
	}
	return nil
}

type readerWithContext struct {
	ctx context.Context
	r   io.Reader
}

func (r readerWithContext) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}
