/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package upload packages captured media and hands it to the remote store
// during upload slots.
package upload

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/friendsincode/oceancam/internal/clock"
	"github.com/friendsincode/oceancam/internal/events"
	"github.com/friendsincode/oceancam/internal/media"
	"github.com/friendsincode/oceancam/internal/models"
	"github.com/friendsincode/oceancam/internal/storage"
	"github.com/friendsincode/oceancam/internal/telemetry"
)

// StorageChecker verifies the media root is mounted.
type StorageChecker interface {
	Check(ctx context.Context) (media.Usage, error)
}

// Config holds upload settings.
type Config struct {
	CameraName string
	MediaDir   string
	// ArchiveDir receives the zip before upload. Defaults to MediaDir.
	ArchiveDir string
	Extensions []string
}

// Result summarises one upload slot.
type Result struct {
	Archive  media.Archive
	Location string
	Uploaded bool
	Err      error
}

// Orchestrator runs upload slots.
type Orchestrator struct {
	cfg      Config
	storage  StorageChecker
	uploader storage.Uploader
	clock    clock.Clock
	bus      events.Publisher
	logger   zerolog.Logger
}

// New creates an upload orchestrator. A nil uploader disables the remote
// step; archives are still built.
func New(cfg Config, root StorageChecker, uploader storage.Uploader, clk clock.Clock, bus events.Publisher, logger zerolog.Logger) *Orchestrator {
	if cfg.ArchiveDir == "" {
		cfg.ArchiveDir = cfg.MediaDir
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = media.UploadExtensions
	}
	if uploader == nil {
		uploader = storage.Disabled{}
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if bus == nil {
		bus = events.Nop{}
	}
	return &Orchestrator{
		cfg:      cfg,
		storage:  root,
		uploader: uploader,
		clock:    clk,
		bus:      bus,
		logger:   logger.With().Str("component", "upload").Logger(),
	}
}

// Run uploads once, then idles in one second ticks until slot.Stop. Upload
// failures are logged and reported in the Result; the slot still counts as
// completed. Only ctx cancellation cuts the idle short.
func (o *Orchestrator) Run(ctx context.Context, slot models.Slot) Result {
	res := o.UploadOnce(ctx)

	for o.clock.Now().Before(slot.Stop) {
		if err := o.clock.Sleep(ctx, time.Second); err != nil {
			if res.Err == nil {
				res.Err = err
			}
			return res
		}
	}
	return res
}

// UploadOnce packages every recognised file under the media root and uploads
// the archive. The local archive is removed after a successful upload.
func (o *Orchestrator) UploadOnce(ctx context.Context) (res Result) {
	ctx, span := telemetry.StartSpan(ctx, "upload.run", attribute.String("camera", o.cfg.CameraName))
	defer func() {
		telemetry.EndSpan(span, res.Err)
		o.finish(res)
	}()

	if o.storage != nil {
		if _, err := o.storage.Check(ctx); err != nil {
			res.Err = fmt.Errorf("media storage: %w", err)
			return res
		}
	}

	files, err := media.Enumerate(ctx, o.cfg.MediaDir, o.cfg.Extensions)
	if err != nil {
		res.Err = fmt.Errorf("enumerate media: %w", err)
		return res
	}
	o.logger.Info().Int("files", len(files)).Int64("bytes", media.TotalSize(files)).Msg("packaging media")

	dst := filepath.Join(o.cfg.ArchiveDir, media.ArchiveName(o.cfg.CameraName, o.clock.Now()))
	archive, err := media.WriteArchive(ctx, dst, files)
	if err != nil {
		res.Err = fmt.Errorf("write archive: %w", err)
		return res
	}
	res.Archive = archive
	span.SetAttributes(attribute.Int("files", archive.Files), attribute.Int64("bytes", archive.Bytes))

	location, err := o.uploader.Upload(ctx, archive.Path)
	if err != nil {
		res.Err = fmt.Errorf("upload %s: %w", filepath.Base(archive.Path), err)
		return res
	}
	res.Location = location
	res.Uploaded = true
	telemetry.UploadBytesTotal.Add(float64(archive.Bytes))

	if err := os.Remove(archive.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		o.logger.Warn().Err(err).Str("path", archive.Path).Msg("remove uploaded archive")
	}
	return res
}

func (o *Orchestrator) finish(res Result) {
	result := "success"
	switch {
	case errors.Is(res.Err, storage.ErrDisabled):
		result = "disabled"
	case res.Err != nil:
		result = "failure"
	}
	telemetry.UploadsTotal.WithLabelValues(result).Inc()

	payload := events.Payload{
		"result":   result,
		"files":    res.Archive.Files,
		"bytes":    res.Archive.Bytes,
		"location": res.Location,
	}
	if res.Err != nil {
		payload["error"] = res.Err.Error()
		o.logger.Error().Err(res.Err).Str("archive", res.Archive.Path).Msg("upload failed")
	} else {
		o.logger.Info().
			Str("location", res.Location).
			Int("files", res.Archive.Files).
			Int64("bytes", res.Archive.Bytes).
			Str("sha256", res.Archive.SHA256).
			Msg("upload complete")
	}
	o.bus.Publish(events.EventUploadFinished, payload)
}
