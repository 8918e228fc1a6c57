/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package sensorlog persists every sensor poll taken during a capture
// session so readings can be matched to frames afterwards.
package sensorlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/friendsincode/oceancam/internal/models"
)

// Recorder stores one reading.
type Recorder interface {
	Record(ctx context.Context, r models.SensorReading) error
}

// FileRecorder appends readings as JSON lines. The file lives on the media
// root so it ships with the next upload.
type FileRecorder struct {
	path string

	mu sync.Mutex
}

// NewFileRecorder appends to path, creating it on first write.
func NewFileRecorder(path string) *FileRecorder {
	return &FileRecorder{path: path}
}

// Path returns the log file location.
func (f *FileRecorder) Path() string { return f.path }

// Record implements Recorder.
func (f *FileRecorder) Record(_ context.Context, r models.SensorReading) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode reading: %w", err)
	}
	data = append(data, '\n')

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	fh, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open sensor log: %w", err)
	}
	if _, err := fh.Write(data); err != nil {
		fh.Close()
		return fmt.Errorf("write sensor log: %w", err)
	}
	return fh.Close()
}

// Multi fans a reading out to several recorders. Every recorder is tried.
type Multi []Recorder

// Record implements Recorder.
func (m Multi) Record(ctx context.Context, r models.SensorReading) error {
	var errs []error
	for _, rec := range m {
		if err := rec.Record(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards readings.
type Nop struct{}

// Record implements Recorder.
func (Nop) Record(context.Context, models.SensorReading) error { return nil }
