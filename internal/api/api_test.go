/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	ws "nhooyr.io/websocket"

	"github.com/friendsincode/oceancam/internal/auth"
	"github.com/friendsincode/oceancam/internal/camera"
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

var t0 = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

type fakeLoop struct{ status scheduler.Status }

func (f fakeLoop) Status() scheduler.Status { return f.status }

type fakeSensors struct {
	latest   models.SensorReading
	have     bool
	freshHit int
}

func (f *fakeSensors) Latest() (models.SensorReading, bool) { return f.latest, f.have }

func (f *fakeSensors) ReadAll(context.Context) models.SensorReading {
	f.freshHit++
	r := models.NewSensorReading(t0)
	r.Depth = 12
	return r
}

type fakeHistory struct{ records []models.SensorRecord }

func (f fakeHistory) Since(_ context.Context, t time.Time, limit int) ([]models.SensorRecord, error) {
	var out []models.SensorRecord
	for _, rec := range f.records {
		if !rec.RecordedAt.Before(t) && len(out) < limit {
			out = append(out, rec)
		}
	}
	return out, nil
}

type fakeStorage struct{ err error }

func (f fakeStorage) Check(context.Context) (media.Usage, error) {
	return media.Usage{Path: "/media/cam", Total: 100, Free: 60, UsedPercent: 40}, f.err
}

type fakeCamera struct {
	err    error
	params models.CaptureParams
	duty   int
}

func (f *fakeCamera) TestShot(_ context.Context, params models.CaptureParams, duty int, dir string) (capture.Shot, error) {
	f.params, f.duty = params, duty
	if f.err != nil {
		return capture.Shot{}, f.err
	}
	path := filepath.Join(dir, "shot.jpg")
	if err := os.WriteFile(path, []byte("jpeg"), 0o644); err != nil {
		return capture.Shot{}, err
	}
	return capture.Shot{Path: path, Annotation: "Camera: reef-01 ", Reading: models.NewSensorReading(t0)}, nil
}

type harness struct {
	store   *schedule.Store
	path    string
	sensors *fakeSensors
	camera  *fakeCamera
	power   *power.DryRun
	bus     *events.Bus
	logs    *logbuffer.Buffer
	router  chi.Router
}

func newHarness(t *testing.T, secret []byte) *harness {
	t.Helper()
	h := &harness{
		store:   schedule.NewStore(time.UTC),
		path:    filepath.Join(t.TempDir(), "schedule.json"),
		sensors: &fakeSensors{},
		camera:  &fakeCamera{},
		power:   power.NewDryRun(zerolog.Nop()),
		bus:     events.NewBus(),
		logs:    logbuffer.New(10),
	}
	a := New(Config{
		CameraName:   "reef-01",
		CameraUID:    "cam-7",
		Location:     time.UTC,
		SchedulePath: h.path,
		PreviewDir:   t.TempDir(),
		JWTSecret:    secret,
	}, Deps{
		Store:   h.store,
		Loop:    fakeLoop{status: scheduler.Status{State: scheduler.StateIdle}},
		Sensors: h.sensors,
		History: fakeHistory{records: []models.SensorRecord{
			models.NewSensorRecord("cam-7", models.NewSensorReading(t0.Add(-2*time.Hour))),
			models.NewSensorRecord("cam-7", models.NewSensorReading(t0.Add(-time.Hour))),
		}},
		Storage: fakeStorage{},
		Camera:  h.camera,
		Power:   h.power,
		Bus:     h.bus,
		Logs:    h.logs,
		Clock:   clock.NewFake(t0),
	}, zerolog.Nop())
	h.router = chi.NewRouter()
	a.Routes(h.router)
	return h
}

func (h *harness) do(method, target, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.router.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return out
}

const twoSlots = `[
  {"start": "2026-03-14-10:00:00", "stop": "2026-03-14-11:00:00", "frequency": 30, "light": 40},
  {"start": "2026-03-14-12:00:00", "stop": "2026-03-14-12:30:00", "upload": true}
]`

func TestHealthIsPublic(t *testing.T) {
	h := newHarness(t, []byte("secret"))
	if rr := h.do(http.MethodGet, "/api/v1/health", "", ""); rr.Code != http.StatusOK {
		t.Fatalf("health = %d", rr.Code)
	}
}

func TestScheduleReplacePersistsAndPublishes(t *testing.T) {
	h := newHarness(t, nil)
	sub := h.bus.Subscribe(events.EventScheduleUpdate)
	defer h.bus.Unsubscribe(events.EventScheduleUpdate, sub)

	rr := h.do(http.MethodPut, "/api/v1/schedule", twoSlots, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	if h.store.Len() != 2 {
		t.Fatalf("store len = %d, want 2", h.store.Len())
	}

	persisted, err := schedule.ReadFile(h.path)
	if err != nil || len(persisted) != 2 {
		t.Fatalf("persisted = %d slots, err %v", len(persisted), err)
	}

	select {
	case payload := <-sub:
		if payload["action"] != "replaced" || payload["slot_count"] != 2 {
			t.Errorf("payload = %v", payload)
		}
	default:
		t.Error("expected schedule.update event")
	}

	got := decode(t, h.do(http.MethodGet, "/api/v1/schedule", "", ""))
	if got["slot_count"] != float64(2) {
		t.Errorf("GET slot_count = %v", got["slot_count"])
	}
}

func TestScheduleReplaceRejectsInvalidAndKeepsPrevious(t *testing.T) {
	h := newHarness(t, nil)
	if rr := h.do(http.MethodPut, "/api/v1/schedule", twoSlots, ""); rr.Code != http.StatusOK {
		t.Fatalf("seed = %d", rr.Code)
	}

	bad := `[
  {"start": "2026-03-15-10:00:00", "stop": "2026-03-15-11:00:00"},
  {"start": "2026-03-15-12:00:00", "stop": "2026-03-15-11:00:00"}
]`
	rr := h.do(http.MethodPut, "/api/v1/schedule", bad, "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	body := decode(t, rr)
	if body["error"] != "invalid_slot" || body["index"] != float64(1) {
		t.Errorf("body = %v", body)
	}
	if h.store.Len() != 2 {
		t.Errorf("store len = %d, previous schedule should remain", h.store.Len())
	}
	slot, _ := h.store.Slot(0)
	if slot.Start.Day() != 14 {
		t.Errorf("store was modified: %v", slot.Start)
	}

	if rr := h.do(http.MethodPut, "/api/v1/schedule", "{not json", ""); rr.Code != http.StatusBadRequest {
		t.Errorf("malformed json = %d, want 400", rr.Code)
	}
}

func TestSchedulePersistFailureKeepsActiveSchedule(t *testing.T) {
	h := newHarness(t, nil)
	if rr := h.do(http.MethodPut, "/api/v1/schedule", twoSlots, ""); rr.Code != http.StatusOK {
		t.Fatalf("seed = %d", rr.Code)
	}
	// A directory in place of the file makes the rename fail.
	if err := os.Remove(h.path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := os.Mkdir(h.path, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	one := `[{"start": "2026-03-15-10:00:00", "stop": "2026-03-15-11:00:00"}]`
	rr := h.do(http.MethodPut, "/api/v1/schedule", one, "")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
	if body := decode(t, rr); body["error"] != "persist_failed" {
		t.Errorf("body = %v", body)
	}
	if h.store.Len() != 2 {
		t.Errorf("store len = %d, unsaved schedule must not become active", h.store.Len())
	}
}

func TestScheduleClearResetsStoreAndPowerBoard(t *testing.T) {
	h := newHarness(t, nil)
	h.do(http.MethodPut, "/api/v1/schedule", twoSlots, "")

	rr := h.do(http.MethodDelete, "/api/v1/schedule", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if h.store.Len() != 0 {
		t.Errorf("store len = %d", h.store.Len())
	}
	persisted, _ := schedule.ReadFile(h.path)
	if len(persisted) != 0 {
		t.Errorf("persisted = %d slots", len(persisted))
	}
	calls := h.power.Calls()
	if len(calls) != 1 || calls[0].Op != "clear" {
		t.Errorf("power calls = %v", calls)
	}
}

func TestScheduleICalExport(t *testing.T) {
	h := newHarness(t, nil)
	h.do(http.MethodPut, "/api/v1/schedule", twoSlots, "")

	rr := h.do(http.MethodGet, "/api/v1/schedule/export/ical", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Errorf("content type = %q", ct)
	}
	if n := strings.Count(rr.Body.String(), "BEGIN:VEVENT"); n != 2 {
		t.Errorf("events = %d", n)
	}
}

func TestMutationsRequireScopedToken(t *testing.T) {
	secret := []byte("field-secret")
	h := newHarness(t, secret)

	if rr := h.do(http.MethodPut, "/api/v1/schedule", twoSlots, ""); rr.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", rr.Code)
	}

	readOnly, err := auth.Issue(secret, auth.Claims{Operator: "diver", Scopes: []string{auth.ScopeLogsWrite}}, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if rr := h.do(http.MethodGet, "/api/v1/schedule", "", readOnly); rr.Code != http.StatusOK {
		t.Errorf("read with token = %d, want 200", rr.Code)
	}
	if rr := h.do(http.MethodPut, "/api/v1/schedule", twoSlots, readOnly); rr.Code != http.StatusForbidden {
		t.Errorf("missing scope = %d, want 403", rr.Code)
	}

	writer, err := auth.Issue(secret, auth.Claims{Operator: "diver", Scopes: []string{auth.ScopeScheduleWrite}}, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if rr := h.do(http.MethodPut, "/api/v1/schedule", twoSlots, writer); rr.Code != http.StatusOK {
		t.Errorf("scoped token = %d, want 200 body=%s", rr.Code, rr.Body.String())
	}
}

func TestStatusReportsCameraAndLoop(t *testing.T) {
	h := newHarness(t, nil)
	h.sensors.latest, h.sensors.have = models.NewSensorReading(t0), true

	body := decode(t, h.do(http.MethodGet, "/api/v1/status", "", ""))
	if body["camera_name"] != "reef-01" || body["camera_uid"] != "cam-7" {
		t.Errorf("camera = %v/%v", body["camera_name"], body["camera_uid"])
	}
	if body["local_timezone"] != "UTC" || body["local_time"] != "2026-03-14T09:00:00Z" {
		t.Errorf("time = %v %v", body["local_time"], body["local_timezone"])
	}
	loop, _ := body["loop"].(map[string]any)
	if loop["state"] != string(scheduler.StateIdle) {
		t.Errorf("loop = %v", body["loop"])
	}
	if body["sensors"] == nil {
		t.Error("expected latest reading")
	}
}

func TestSensorsFallsBackToFreshRead(t *testing.T) {
	h := newHarness(t, nil)

	body := decode(t, h.do(http.MethodGet, "/api/v1/sensors", "", ""))
	if h.sensors.freshHit != 1 {
		t.Errorf("fresh reads = %d, want 1", h.sensors.freshHit)
	}
	if body["annotation"] != "Camera: reef-01 Depth: 12 " {
		t.Errorf("annotation = %q", body["annotation"])
	}

	h.sensors.latest, h.sensors.have = models.NewSensorReading(t0), true
	h.do(http.MethodGet, "/api/v1/sensors", "", "")
	if h.sensors.freshHit != 1 {
		t.Errorf("cached reading should be served, fresh reads = %d", h.sensors.freshHit)
	}
	h.do(http.MethodGet, "/api/v1/sensors?fresh=true", "", "")
	if h.sensors.freshHit != 2 {
		t.Errorf("fresh=true should read, fresh reads = %d", h.sensors.freshHit)
	}
}

func TestSensorHistory(t *testing.T) {
	h := newHarness(t, nil)

	body := decode(t, h.do(http.MethodGet, "/api/v1/sensors/history?since=2026-03-14T07:30:00Z", "", ""))
	if body["count"] != float64(1) {
		t.Errorf("count = %v, want 1", body["count"])
	}
	if rr := h.do(http.MethodGet, "/api/v1/sensors/history?limit=zero", "", ""); rr.Code != http.StatusBadRequest {
		t.Errorf("bad limit = %d", rr.Code)
	}
}

func TestTestShot(t *testing.T) {
	h := newHarness(t, nil)

	rr := h.do(http.MethodPost, "/api/v1/camera/test-shot", `{"iso": 400, "light": 30, "resolution": {"x": 640, "y": 480}}`, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	body := decode(t, rr)
	img, err := base64.StdEncoding.DecodeString(body["image"].(string))
	if err != nil || string(img) != "jpeg" {
		t.Errorf("image = %q, err %v", img, err)
	}
	if h.camera.params.ISO != 400 || h.camera.duty != 30 || h.camera.params.Resolution.Width != 640 {
		t.Errorf("params = %+v duty %d", h.camera.params, h.camera.duty)
	}

	h.camera.err = camera.ErrBusy
	if rr := h.do(http.MethodPost, "/api/v1/camera/test-shot", `{}`, ""); rr.Code != http.StatusConflict {
		t.Errorf("busy = %d, want 409", rr.Code)
	}
	h.camera.err = errors.New("mmal: timeout")
	if rr := h.do(http.MethodPost, "/api/v1/camera/test-shot", `{}`, ""); rr.Code != http.StatusInternalServerError {
		t.Errorf("failure = %d, want 500", rr.Code)
	}
}

func TestStorageReportsNotMounted(t *testing.T) {
	h := newHarness(t, nil)
	if rr := h.do(http.MethodGet, "/api/v1/storage", "", ""); rr.Code != http.StatusOK {
		t.Errorf("storage = %d", rr.Code)
	}

	a := New(Config{}, Deps{Store: schedule.NewStore(time.UTC), Storage: fakeStorage{err: media.ErrNotMounted}}, zerolog.Nop())
	r := chi.NewRouter()
	a.Routes(r)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/storage", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("unmounted = %d, want 503", rr.Code)
	}
}

func TestLogsTailAndClear(t *testing.T) {
	h := newHarness(t, nil)
	for i, msg := range []string{"boot", "schedule loaded", "capture started", "capture finished"} {
		h.logs.Add(logbuffer.LogEntry{Timestamp: t0.Add(time.Duration(i) * time.Second), Level: "info", Message: msg, Component: "capture"})
	}

	body := decode(t, h.do(http.MethodGet, "/api/v1/logs?lines=2", "", ""))
	logs, _ := body["logs"].([]any)
	if len(logs) != 2 {
		t.Fatalf("logs = %d, want 2", len(logs))
	}
	if first := logs[0].(map[string]any)["message"]; first != "capture started" {
		t.Errorf("first = %v, want oldest of the tail", first)
	}

	body = decode(t, h.do(http.MethodGet, "/api/v1/logs?search=capture&lines=1", "", ""))
	logs, _ = body["logs"].([]any)
	if len(logs) != 1 || logs[0].(map[string]any)["message"] != "capture finished" {
		t.Errorf("filtered = %v", logs)
	}

	if rr := h.do(http.MethodGet, "/api/v1/logs?lines=-1", "", ""); rr.Code != http.StatusBadRequest {
		t.Errorf("negative lines = %d", rr.Code)
	}

	if rr := h.do(http.MethodDelete, "/api/v1/logs", "", ""); rr.Code != http.StatusOK {
		t.Fatalf("clear = %d", rr.Code)
	}
	if n := len(h.logs.GetAll()); n != 0 {
		t.Errorf("entries after clear = %d", n)
	}
}

func TestRebootIsAcceptedAndDelegated(t *testing.T) {
	h := newHarness(t, nil)

	rr := h.do(http.MethodPost, "/api/v1/power/reboot", `{"after_seconds": 30}`, "")
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rr.Code)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if calls := h.power.Calls(); len(calls) == 1 {
			if calls[0].Op != "reboot" || calls[0].After != 30*time.Second {
				t.Errorf("call = %+v", calls[0])
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("reboot was not requested")
}

func TestEventsWebSocketStreamsBusEvents(t *testing.T) {
	h := newHarness(t, nil)
	srv := httptest.NewServer(h.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/events?types=loop.state"
	conn, _, err := ws.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(ws.StatusNormalClosure, "")

	// The handler subscribes after the handshake; keep publishing until
	// the first event arrives.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				h.bus.Publish(events.EventCaptureStarted, events.Payload{"session_id": "ignored"})
				h.bus.Publish(events.EventLoopState, events.Payload{"state": "capturing"})
			}
		}
	}()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Type != string(events.EventLoopState) || msg.Payload["state"] != "capturing" {
		t.Errorf("message = %+v", msg)
	}
}

func TestParseEventTypesDropsUnknown(t *testing.T) {
	got := parseEventTypes("loop.state, bogus,,capture.fault")
	if len(got) != 2 || got[0] != events.EventLoopState || got[1] != events.EventCaptureFault {
		t.Errorf("parseEventTypes = %v", got)
	}
}
