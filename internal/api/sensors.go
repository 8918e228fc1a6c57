/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/samber/lo"

	"github.com/friendsincode/oceancam/internal/camera"
	"github.com/friendsincode/oceancam/internal/capture"
	"github.com/friendsincode/oceancam/internal/models"
)

const defaultHistoryLimit = 500

// handleSensors returns the cached reading, or a fresh one with ?fresh=true
// or when nothing has been polled yet.
func (a *API) handleSensors(w http.ResponseWriter, r *http.Request) {
	if a.deps.Sensors == nil {
		writeError(w, http.StatusServiceUnavailable, "sensors_unavailable")
		return
	}
	reading, ok := a.deps.Sensors.Latest()
	if !ok || r.URL.Query().Get("fresh") == "true" {
		reading = a.deps.Sensors.ReadAll(r.Context())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reading":    reading,
		"annotation": capture.Annotation(a.cfg.CameraName, reading),
	})
}

func (a *API) handleSensorHistory(w http.ResponseWriter, r *http.Request) {
	if a.deps.History == nil {
		writeError(w, http.StatusServiceUnavailable, "sensor_log_unavailable")
		return
	}

	since := a.deps.Clock.Now().Add(-24 * time.Hour)
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_since")
			return
		}
		since = t
	}
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit")
			return
		}
		limit = n
	}

	records, err := a.deps.History.Since(r.Context(), since, limit)
	if err != nil {
		a.logger.Error().Err(err).Msg("sensor history query failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	readings := lo.Map(records, func(rec models.SensorRecord, _ int) models.SensorReading {
		return rec.Reading()
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"readings": readings,
		"count":    len(readings),
	})
}

// handleTestShot takes one still with the capture settings of a slot
// descriptor. Its window fields are ignored.
func (a *API) handleTestShot(w http.ResponseWriter, r *http.Request) {
	if a.deps.Camera == nil {
		writeError(w, http.StatusServiceUnavailable, "camera_unavailable")
		return
	}

	var desc models.SlotDescriptor
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxScheduleBytes)).Decode(&desc); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	now := a.deps.Clock.Now().In(a.cfg.Location)
	desc.Start = now.Format(models.SlotTimeLayout)
	desc.Stop = now.Add(time.Minute).Format(models.SlotTimeLayout)
	desc.Upload = false
	slot, err := desc.ToSlot(a.cfg.Location)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "invalid_slot",
			"detail": err.Error(),
		})
		return
	}

	dir := a.cfg.PreviewDir
	if dir == "" {
		dir = os.TempDir()
	}
	shot, err := a.deps.Camera.TestShot(r.Context(), slot.Capture, slot.LightDutyCycle, dir)
	if errors.Is(err, camera.ErrBusy) {
		writeError(w, http.StatusConflict, "camera_busy")
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("test shot failed")
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":  "capture_failed",
			"detail": err.Error(),
		})
		return
	}

	data, err := os.ReadFile(shot.Path)
	if err != nil {
		a.logger.Error().Err(err).Str("path", shot.Path).Msg("read test shot failed")
		writeError(w, http.StatusInternalServerError, "read_failed")
		return
	}
	_ = os.Remove(shot.Path)

	writeJSON(w, http.StatusOK, map[string]any{
		"annotation": shot.Annotation,
		"sensors":    shot.Reading,
		"image":      base64.StdEncoding.EncodeToString(data),
	})
}
