/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/friendsincode/oceancam/internal/logbuffer"
)

const defaultLogLines = 100

// handleLogs returns the newest ?lines=N entries, oldest first. Any of
// level, component, session_id, search or since switches to a filtered
// query, still bounded by lines.
func (a *API) handleLogs(w http.ResponseWriter, r *http.Request) {
	if a.deps.Logs == nil {
		writeError(w, http.StatusServiceUnavailable, "log_buffer_unavailable")
		return
	}

	q := r.URL.Query()
	lines := defaultLogLines
	if raw := q.Get("lines"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_lines")
			return
		}
		lines = n
	}

	params := logbuffer.QueryParams{
		Level:      q.Get("level"),
		Component:  q.Get("component"),
		SessionID:  q.Get("session_id"),
		Search:     q.Get("search"),
		Limit:      lines,
		Descending: true,
	}
	if since := q.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_since")
			return
		}
		params.Since = t
	}

	var entries []logbuffer.LogEntry
	if params.Level == "" && params.Component == "" && params.SessionID == "" && params.Search == "" && params.Since.IsZero() {
		entries = a.deps.Logs.Tail(lines)
	} else {
		entries = a.deps.Logs.Query(params)
		// Query pages from the newest end; the response reads oldest first.
		slices.Reverse(entries)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"logs":  entries,
		"count": len(entries),
	})
}

func (a *API) handleLogStats(w http.ResponseWriter, r *http.Request) {
	if a.deps.Logs == nil {
		writeError(w, http.StatusServiceUnavailable, "log_buffer_unavailable")
		return
	}
	writeJSON(w, http.StatusOK, a.deps.Logs.Stats())
}

func (a *API) handleClearLogs(w http.ResponseWriter, r *http.Request) {
	if a.deps.Logs == nil {
		writeError(w, http.StatusServiceUnavailable, "log_buffer_unavailable")
		return
	}
	a.deps.Logs.Clear()
	a.logger.Info().Msg("log buffer cleared")
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}
