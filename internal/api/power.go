/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

const defaultRebootDelay = 5 * time.Second

type rebootRequest struct {
	AfterSeconds int `json:"after_seconds"`
}

// handleReboot schedules a reboot and answers before it happens. An empty
// body reboots after a short delay so the response can flush.
func (a *API) handleReboot(w http.ResponseWriter, r *http.Request) {
	if a.deps.Power == nil {
		writeError(w, http.StatusServiceUnavailable, "power_unavailable")
		return
	}

	var req rebootRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json")
			return
		}
	}
	if req.AfterSeconds < 0 {
		writeError(w, http.StatusBadRequest, "invalid_delay")
		return
	}
	after := defaultRebootDelay
	if req.AfterSeconds > 0 {
		after = time.Duration(req.AfterSeconds) * time.Second
	}

	a.logger.Warn().Dur("after", after).Msg("reboot requested over api")
	go func() {
		if err := a.deps.Power.Reboot(context.WithoutCancel(r.Context()), after); err != nil {
			a.logger.Error().Err(err).Msg("reboot failed")
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]any{"reboot_in_seconds": int(after.Seconds())})
}
