/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package camera

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/friendsincode/oceancam/internal/models"
)

// SimulatedDevice writes placeholder media so the whole pipeline can run on
// a bench machine without a sensor attached.
type SimulatedDevice struct {
	logger zerolog.Logger

	mu   sync.Mutex
	held bool
}

// NewSimulatedDevice creates a simulated camera.
func NewSimulatedDevice(logger zerolog.Logger) *SimulatedDevice {
	return &SimulatedDevice{logger: logger.With().Str("component", "camera_sim").Logger()}
}

// Open implements Device.
func (d *SimulatedDevice) Open(_ context.Context, params models.CaptureParams) (Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.held {
		return nil, ErrBusy
	}
	d.held = true
	return &simulatedHandle{dev: d, params: params}, nil
}

type simulatedHandle struct {
	dev    *SimulatedDevice
	params models.CaptureParams

	mu        sync.Mutex
	closed    bool
	recording *os.File
	sidecar   *os.File
}

func (h *simulatedHandle) CaptureFrame(_ context.Context, path, annotation string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return os.ErrClosed
	}
	body := fmt.Sprintf("simulated frame %s\n%s\n", h.params.Resolution, annotation)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	h.dev.logger.Debug().Str("path", path).Msg("frame captured")
	return nil
}

func (h *simulatedHandle) StartRecording(_ context.Context, path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return os.ErrClosed
	}
	if h.recording != nil {
		return fmt.Errorf("camera: already recording")
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create recording: %w", err)
	}
	sidecar, err := os.Create(SidecarPath(path))
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("create annotation sidecar: %w", err)
	}
	h.recording, h.sidecar = f, sidecar
	return nil
}

func (h *simulatedHandle) SetAnnotation(text string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sidecar == nil {
		return ErrNotRecording
	}
	_, err := fmt.Fprintln(h.sidecar, text)
	return err
}

func (h *simulatedHandle) StopRecording() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopLocked()
}

func (h *simulatedHandle) stopLocked() error {
	if h.recording == nil {
		return ErrNotRecording
	}
	err := h.recording.Close()
	if serr := h.sidecar.Close(); err == nil {
		err = serr
	}
	h.recording, h.sidecar = nil, nil
	return err
}

func (h *simulatedHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	var err error
	if h.recording != nil {
		err = h.stopLocked()
	}
	h.dev.mu.Lock()
	h.dev.held = false
	h.dev.mu.Unlock()
	return err
}
