/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package capture

import (
	"context"
	"fmt"

	"github.com/friendsincode/oceancam/internal/camera"
	"github.com/friendsincode/oceancam/internal/models"
)

// Shot is a single still taken on request.
type Shot struct {
	Path       string               `json:"path"`
	Annotation string               `json:"annotation"`
	Reading    models.SensorReading `json:"reading"`
}

// TestShot takes one annotated still into dir, outside the schedule, so an
// operator can check framing and light before deployment. It fails with
// camera.ErrBusy while a session holds the device and never requests a
// reboot.
func (o *Orchestrator) TestShot(ctx context.Context, params models.CaptureParams, duty int, dir string) (Shot, error) {
	logger := o.logger.With().Str("session", "test_shot").Logger()

	h, err := o.deps.Device.Open(ctx, params)
	if err != nil {
		return Shot{}, fmt.Errorf("open camera: %w", err)
	}
	defer func() {
		if cerr := h.Close(); cerr != nil {
			logger.Warn().Err(cerr).Msg("camera close failed")
		}
	}()

	reading := o.poll(ctx, logger)
	shot := Shot{
		Path:       camera.PhotoPath(dir, o.cfg.CameraName, o.deps.Clock.Now()),
		Annotation: Annotation(o.cfg.CameraName, reading),
		Reading:    reading,
	}

	o.lightOn(duty, logger)
	err = h.CaptureFrame(ctx, shot.Path, shot.Annotation)
	o.lightOff(logger)
	if err != nil {
		return Shot{}, fmt.Errorf("capture frame: %w", err)
	}
	logger.Info().Str("path", shot.Path).Msg("test shot taken")
	return shot, nil
}
