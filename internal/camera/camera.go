/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package camera drives the image sensor. A Device is opened once per slot
// and the returned Handle is owned by a single capture session.
package camera

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/friendsincode/oceancam/internal/models"
)

// ErrBusy is returned when a second session tries to open a held device.
var ErrBusy = errors.New("camera: device busy")

// ErrNotRecording is returned by StopRecording without a recording.
var ErrNotRecording = errors.New("camera: not recording")

// ErrRecorderExited is returned when the video recorder stopped on its own.
var ErrRecorderExited = errors.New("camera: recorder exited")

// Device opens capture handles configured for a slot.
type Device interface {
	Open(ctx context.Context, params models.CaptureParams) (Handle, error)
}

// Handle is an opened, exclusively owned camera.
type Handle interface {
	// CaptureFrame writes one still to path with annotation embedded.
	CaptureFrame(ctx context.Context, path, annotation string) error
	StartRecording(ctx context.Context, path string) error
	SetAnnotation(text string) error
	StopRecording() error
	Close() error
}

// Media file name layouts.
const (
	photoStampLayout = "2006-01-02-15-04-05"
	videoStampLayout = "2006-01-02_15-04-05"
)

// PhotoPath names a burst frame: <camera>_img<timestamp>.jpg.
func PhotoPath(root, cameraName string, at time.Time) string {
	return filepath.Join(root, fmt.Sprintf("%s_img%s.jpg", cameraName, at.Format(photoStampLayout)))
}

// FramePath disambiguates the seq-th extra frame taken within the same
// second as the frame named base. seq 0 is base itself.
func FramePath(base string, seq int) string {
	if seq == 0 {
		return base
	}
	ext := filepath.Ext(base)
	return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(base, ext), seq, ext)
}

// VideoPath names a recording: <camera>_<start>_<stop>.h264.
func VideoPath(root, cameraName string, slot models.Slot) string {
	return filepath.Join(root, fmt.Sprintf("%s_%s_%s.h264",
		cameraName, slot.Start.Format(videoStampLayout), slot.Stop.Format(videoStampLayout)))
}

// SidecarPath is where per-second video annotations are kept.
func SidecarPath(videoPath string) string {
	return strings.TrimSuffix(videoPath, filepath.Ext(videoPath)) + ".txt"
}
