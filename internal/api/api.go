/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package api serves the camera's field control surface over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/friendsincode/oceancam/internal/auth"
	"github.com/friendsincode/oceancam/internal/capture"
	"github.com/friendsincode/oceancam/internal/clock"
	"github.com/friendsincode/oceancam/internal/events"
	"github.com/friendsincode/oceancam/internal/logbuffer"
	"github.com/friendsincode/oceancam/internal/media"
	"github.com/friendsincode/oceancam/internal/models"
	"github.com/friendsincode/oceancam/internal/power"
	"github.com/friendsincode/oceancam/internal/schedule"
	"github.com/friendsincode/oceancam/internal/scheduler"
)

// maxScheduleBytes bounds a schedule upload.
const maxScheduleBytes = 1 << 20

// LoopStatus reports what the control loop is doing.
type LoopStatus interface {
	Status() scheduler.Status
}

// SensorSource serves cached and fresh readings.
type SensorSource interface {
	Latest() (models.SensorReading, bool)
	ReadAll(ctx context.Context) models.SensorReading
}

// SensorHistory serves persisted readings.
type SensorHistory interface {
	Since(ctx context.Context, t time.Time, limit int) ([]models.SensorRecord, error)
}

// StorageChecker reports capture storage health.
type StorageChecker interface {
	Check(ctx context.Context) (media.Usage, error)
}

// TestShooter takes an unscheduled still.
type TestShooter interface {
	TestShot(ctx context.Context, params models.CaptureParams, duty int, dir string) (capture.Shot, error)
}

// Config identifies the camera and the files the API manages.
type Config struct {
	CameraName   string
	CameraUID    string
	Location     *time.Location
	SchedulePath string
	PreviewDir   string
	JWTSecret    []byte
}

// Deps are the API's collaborators. Only Store is required; routes whose
// collaborator is missing answer 503.
type Deps struct {
	Store   *schedule.Store
	Loop    LoopStatus
	Sensors SensorSource
	History SensorHistory
	Storage StorageChecker
	Camera  TestShooter
	Power   power.Controller
	Bus     *events.Bus
	Logs    *logbuffer.Buffer
	Clock   clock.Clock
}

// API exposes HTTP handlers.
type API struct {
	cfg    Config
	deps   Deps
	logger zerolog.Logger
}

// New creates the API router wrapper.
func New(cfg Config, deps Deps, logger zerolog.Logger) *API {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	return &API{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With().Str("component", "api").Logger(),
	}
}

// Routes registers API routes.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)

		r.Group(func(pr chi.Router) {
			pr.Use(auth.Middleware(a.cfg.JWTSecret))

			pr.Get("/status", a.handleStatus)
			pr.Get("/events", a.handleEvents)
			pr.Get("/storage", a.handleStorage)

			pr.Route("/schedule", func(r chi.Router) {
				r.Get("/", a.handleScheduleGet)
				r.Get("/export/ical", a.handleScheduleICal)
				r.With(a.requireScope(auth.ScopeScheduleWrite)).Put("/", a.handleScheduleReplace)
				r.With(a.requireScope(auth.ScopeScheduleWrite)).Delete("/", a.handleScheduleClear)
			})

			pr.Route("/sensors", func(r chi.Router) {
				r.Get("/", a.handleSensors)
				r.Get("/history", a.handleSensorHistory)
			})

			pr.With(a.requireScope(auth.ScopeScheduleWrite)).Post("/camera/test-shot", a.handleTestShot)

			pr.Route("/logs", func(r chi.Router) {
				r.Get("/", a.handleLogs)
				r.Get("/stats", a.handleLogStats)
				r.With(a.requireScope(auth.ScopeLogsWrite)).Delete("/", a.handleClearLogs)
			})

			pr.With(a.requireScope(auth.ScopePower)).Post("/power/reboot", a.handleReboot)
		})
	})
}

func (a *API) requireScope(scope string) func(http.Handler) http.Handler {
	return auth.RequireScope(a.cfg.JWTSecret, scope)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	LocalTime     string                `json:"local_time"`
	LocalTimezone string                `json:"local_timezone"`
	CameraName    string                `json:"camera_name"`
	CameraUID     string                `json:"camera_uid,omitempty"`
	Slots         int                   `json:"slots"`
	Loop          *scheduler.Status     `json:"loop,omitempty"`
	Sensors       *models.SensorReading `json:"sensors,omitempty"`
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	now := a.deps.Clock.Now().In(a.cfg.Location)
	resp := statusResponse{
		LocalTime:     now.Format(time.RFC3339),
		LocalTimezone: a.cfg.Location.String(),
		CameraName:    a.cfg.CameraName,
		CameraUID:     a.cfg.CameraUID,
		Slots:         a.deps.Store.Len(),
	}
	if a.deps.Loop != nil {
		status := a.deps.Loop.Status()
		resp.Loop = &status
	}
	if a.deps.Sensors != nil {
		if reading, ok := a.deps.Sensors.Latest(); ok {
			resp.Sensors = &reading
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleStorage(w http.ResponseWriter, r *http.Request) {
	if a.deps.Storage == nil {
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable")
		return
	}
	usage, err := a.deps.Storage.Check(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error":  "storage_not_ready",
			"detail": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, usage)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
