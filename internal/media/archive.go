/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package media

import (
	"archive/zip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

const archiveStampLayout = "2006-01-02_15-04-05"

// Archive describes a packaged upload.
type Archive struct {
	Path   string
	Files  int
	Bytes  int64
	SHA256 string
}

// ArchiveName is <camera>_<timestamp>.zip.
func ArchiveName(cameraName string, at time.Time) string {
	return fmt.Sprintf("%s_%s.zip", cameraName, at.Format(archiveStampLayout))
}

// WriteArchive packages files into a zip at dst. An empty file list yields a
// valid empty archive. A partial archive is removed on failure.
func WriteArchive(ctx context.Context, dst string, files []File) (Archive, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return Archive{}, fmt.Errorf("create archive dir: %w", err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return Archive{}, fmt.Errorf("create archive: %w", err)
	}

	if err := writeZip(ctx, out, files); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return Archive{}, err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return Archive{}, fmt.Errorf("close archive: %w", err)
	}

	sum, size, err := fileDigest(dst)
	if err != nil {
		return Archive{}, err
	}
	return Archive{Path: dst, Files: len(files), Bytes: size, SHA256: sum}, nil
}

func writeZip(ctx context.Context, w io.Writer, files []File) error {
	zw := zip.NewWriter(w)
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := addFile(zw, f); err != nil {
			return fmt.Errorf("add %s: %w", f.Rel, err)
		}
	}
	return zw.Close()
}

func addFile(zw *zip.Writer, f File) error {
	src, err := os.Open(f.Path)
	if err != nil {
		return err
	}
	defer src.Close()

	hdr := &zip.FileHeader{Name: f.Rel, Method: zip.Store, Modified: f.ModTime}
	// Images and h264 are already compressed; logs are not.
	if ext := filepath.Ext(f.Rel); ext == ".jsonl" || ext == ".txt" {
		hdr.Method = zip.Deflate
	}
	dst, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, src)
	return err
}

func fileDigest(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
