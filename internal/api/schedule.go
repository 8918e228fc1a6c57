/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/friendsincode/oceancam/internal/events"
	"github.com/friendsincode/oceancam/internal/schedule"
)

func (a *API) handleScheduleGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"slots":       a.deps.Store.Descriptors(),
		"slot_count":  a.deps.Store.Len(),
		"schedule_at": a.cfg.SchedulePath,
	})
}

func (a *API) handleScheduleICal(w http.ResponseWriter, r *http.Request) {
	result := schedule.ExportToICal(a.cfg.CameraName, a.deps.Store.Slots(), a.deps.Clock.Now())

	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

// handleScheduleReplace swaps in a new schedule. Any invalid entry rejects
// the whole upload and the running schedule stays in place.
func (a *API) handleScheduleReplace(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxScheduleBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "schedule_too_large")
			return
		}
		writeError(w, http.StatusBadRequest, "read_failed")
		return
	}

	descs, err := schedule.Decode(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "invalid_json",
			"detail": err.Error(),
		})
		return
	}

	if err := a.deps.Store.Replace(a.cfg.SchedulePath, descs); err != nil {
		var verr *schedule.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "invalid_slot",
				"index":  verr.Index,
				"detail": verr.Err.Error(),
			})
			return
		}
		a.logger.Error().Err(err).Msg("persist schedule failed")
		writeError(w, http.StatusInternalServerError, "persist_failed")
		return
	}

	a.logger.Info().Int("slots", len(descs)).Msg("schedule replaced")
	a.publishScheduleUpdate("replaced", len(descs))
	writeJSON(w, http.StatusOK, map[string]any{"slot_count": len(descs)})
}

// handleScheduleClear empties the schedule and cancels any alarms already
// programmed on the power board.
func (a *API) handleScheduleClear(w http.ResponseWriter, r *http.Request) {
	if err := a.deps.Store.Reset(a.cfg.SchedulePath); err != nil {
		a.logger.Error().Err(err).Msg("clear schedule failed")
		writeError(w, http.StatusInternalServerError, "persist_failed")
		return
	}
	if a.deps.Power != nil {
		if err := a.deps.Power.ClearSchedule(r.Context()); err != nil {
			a.logger.Warn().Err(err).Msg("clear power schedule failed")
		}
	}

	a.logger.Info().Msg("schedule cleared")
	a.publishScheduleUpdate("cleared", 0)
	writeJSON(w, http.StatusOK, map[string]any{"slot_count": 0})
}

func (a *API) publishScheduleUpdate(action string, slots int) {
	if a.deps.Bus == nil {
		return
	}
	a.deps.Bus.Publish(events.EventScheduleUpdate, events.Payload{
		"action":     action,
		"slot_count": slots,
	})
}
