/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package media

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
)

// UploadExtensions are the file types packaged for upload: captured media
// plus the sensor log and video annotation sidecars.
var UploadExtensions = []string{".jpg", ".jpeg", ".png", ".h264", ".mp4", ".mjpeg", ".jsonl", ".txt"}

// File is one media file under the root.
type File struct {
	Path    string
	Rel     string
	Size    int64
	ModTime time.Time
}

// Enumerate walks root and returns regular files whose extension is in exts,
// sorted by relative path. Unreadable entries are skipped.
func Enumerate(ctx context.Context, root string, exts []string) ([]File, error) {
	var files []File
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if !lo.Contains(exts, strings.ToLower(filepath.Ext(d.Name()))) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		files = append(files, File{Path: path, Rel: filepath.ToSlash(rel), Size: info.Size(), ModTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Rel < files[j].Rel })
	return files, nil
}

// TotalSize sums file sizes.
func TotalSize(files []File) int64 {
	return lo.SumBy(files, func(f File) int64 { return f.Size })
}
