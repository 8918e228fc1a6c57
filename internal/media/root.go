/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package media owns the capture storage root: where frames and recordings
// are written and from where uploads are packaged.
package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"
)

// ErrNotMounted is returned when the storage root is missing or not mounted.
var ErrNotMounted = errors.New("media: storage root not mounted")

// Usage summarises free space on the storage root.
type Usage struct {
	Path        string  `json:"path"`
	Total       uint64  `json:"total_bytes"`
	Free        uint64  `json:"free_bytes"`
	UsedPercent float64 `json:"used_percent"`
	Low         bool    `json:"low"`
}

// Root is the capture storage location.
type Root struct {
	Dir string
	// RequireMount insists Dir lives on its own mounted volume (the external
	// drive), not on the SD card root filesystem.
	RequireMount bool
	// MinFreeBytes below which Check flags the volume as low.
	MinFreeBytes uint64

	logger zerolog.Logger
}

// NewRoot describes the storage root at dir.
func NewRoot(dir string, requireMount bool, minFree uint64, logger zerolog.Logger) *Root {
	return &Root{
		Dir:          dir,
		RequireMount: requireMount,
		MinFreeBytes: minFree,
		logger:       logger.With().Str("component", "media").Logger(),
	}
}

// Check verifies the root is usable and reports its free space. Low space is
// logged, not returned as an error.
func (r *Root) Check(ctx context.Context) (Usage, error) {
	info, err := os.Stat(r.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Usage{}, fmt.Errorf("%w: %s does not exist", ErrNotMounted, r.Dir)
		}
		return Usage{}, fmt.Errorf("%w: %v", ErrNotMounted, err)
	}
	if !info.IsDir() {
		return Usage{}, fmt.Errorf("%w: %s is not a directory", ErrNotMounted, r.Dir)
	}

	if r.RequireMount {
		mounted, err := r.onMountedVolume(ctx)
		if err != nil {
			return Usage{}, fmt.Errorf("list partitions: %w", err)
		}
		if !mounted {
			return Usage{}, fmt.Errorf("%w: %s is on the root filesystem", ErrNotMounted, r.Dir)
		}
	}

	stat, err := disk.UsageWithContext(ctx, r.Dir)
	if err != nil {
		return Usage{}, fmt.Errorf("disk usage: %w", err)
	}
	u := Usage{
		Path:        r.Dir,
		Total:       stat.Total,
		Free:        stat.Free,
		UsedPercent: stat.UsedPercent,
		Low:         r.MinFreeBytes > 0 && stat.Free < r.MinFreeBytes,
	}
	if u.Low {
		r.logger.Warn().
			Uint64("free_bytes", u.Free).
			Uint64("min_free_bytes", r.MinFreeBytes).
			Msg("media storage running low")
	}
	return u, nil
}

func (r *Root) onMountedVolume(ctx context.Context) (bool, error) {
	parts, err := disk.PartitionsWithContext(ctx, true)
	if err != nil {
		return false, err
	}
	dir := filepath.Clean(r.Dir)
	for _, p := range parts {
		mp := filepath.Clean(p.Mountpoint)
		if mp == "/" {
			continue
		}
		if dir == mp || strings.HasPrefix(dir, mp+string(filepath.Separator)) {
			return true, nil
		}
	}
	return false, nil
}
