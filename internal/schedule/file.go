/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package schedule

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/friendsincode/oceancam/internal/models"
)

// ReadFile decodes a schedule.json document. A missing file yields an empty schedule.
func ReadFile(path string) ([]models.SlotDescriptor, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read schedule: %w", err)
	}
	return Decode(data)
}

// Decode parses a JSON array of slot descriptors.
func Decode(data []byte) ([]models.SlotDescriptor, error) {
	var descs []models.SlotDescriptor
	if len(data) == 0 {
		return descs, nil
	}
	if err := json.Unmarshal(data, &descs); err != nil {
		return nil, fmt.Errorf("decode schedule: %w", err)
	}
	return descs, nil
}

// WriteFile persists descriptors via a temp file and rename so a power cut
// never leaves a truncated schedule behind.
func WriteFile(path string, descs []models.SlotDescriptor) error {
	if descs == nil {
		descs = []models.SlotDescriptor{}
	}
	data, err := json.MarshalIndent(descs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode schedule: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create schedule dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".schedule-*.json")
	if err != nil {
		return fmt.Errorf("create temp schedule: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write schedule: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync schedule: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close schedule: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// LoadFile reads path and loads it into the store.
func (s *Store) LoadFile(path string) error {
	descs, err := ReadFile(path)
	if err != nil {
		return err
	}
	return s.Load(descs)
}

// Replace validates descs, persists them to path and only then swaps them
// in, so the active schedule is always the one a restart would load. On any
// error the previous schedule stays active.
func (s *Store) Replace(path string, descs []models.SlotDescriptor) error {
	slots, err := s.parse(descs)
	if err != nil {
		return err
	}
	if path != "" {
		if err := WriteFile(path, descs); err != nil {
			return fmt.Errorf("persist schedule: %w", err)
		}
	}
	s.install(slots, descs)
	return nil
}

// Reset persists an empty list and then clears the schedule.
func (s *Store) Reset(path string) error {
	if path != "" {
		if err := WriteFile(path, nil); err != nil {
			return fmt.Errorf("persist schedule: %w", err)
		}
	}
	s.Clear()
	return nil
}
