/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package capture

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/oceancam/internal/camera"
	"github.com/friendsincode/oceancam/internal/clock"
	"github.com/friendsincode/oceancam/internal/events"
	"github.com/friendsincode/oceancam/internal/media"
	"github.com/friendsincode/oceancam/internal/models"
	"github.com/friendsincode/oceancam/internal/power"
)

var t0 = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

type fakeHandle struct {
	clk       *clock.Fake
	failFrame int           // 1-based frame that errors, 0 = never
	frameTime time.Duration // clock advance per frame, 0 = one second
	panicked  bool

	recordErr   error
	annotateErr error
	stopErr     error

	mu          sync.Mutex
	frames      []string
	annotations []string
	recording   string
	stopped     bool
	closed      int
}

func (h *fakeHandle) CaptureFrame(_ context.Context, path, annotation string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.panicked {
		panic("driver crashed")
	}
	if h.failFrame == len(h.frames)+1 {
		return errors.New("mmal: no data received from sensor")
	}
	step := h.frameTime
	if step == 0 {
		step = time.Second
	}
	h.clk.Advance(step)
	h.frames = append(h.frames, path)
	h.annotations = append(h.annotations, annotation)
	return nil
}

func (h *fakeHandle) StartRecording(_ context.Context, path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.recordErr != nil {
		return h.recordErr
	}
	h.recording = path
	return nil
}

func (h *fakeHandle) SetAnnotation(text string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.annotateErr != nil && len(h.annotations) > 0 {
		return h.annotateErr
	}
	h.annotations = append(h.annotations, text)
	return nil
}

func (h *fakeHandle) StopRecording() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped = true
	return h.stopErr
}

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	h.closed++
	h.mu.Unlock()
	return nil
}

type fakeDevice struct {
	handle  *fakeHandle
	openErr error
	opened  []models.CaptureParams
}

func (d *fakeDevice) Open(_ context.Context, params models.CaptureParams) (camera.Handle, error) {
	d.opened = append(d.opened, params)
	if d.openErr != nil {
		return nil, d.openErr
	}
	return d.handle, nil
}

type fakeLight struct {
	mu    sync.Mutex
	calls []int // duty cycle, 0 for off
}

func (l *fakeLight) On(duty int) error {
	l.mu.Lock()
	l.calls = append(l.calls, duty)
	l.mu.Unlock()
	return nil
}

func (l *fakeLight) Off() error {
	l.mu.Lock()
	l.calls = append(l.calls, 0)
	l.mu.Unlock()
	return nil
}

func (l *fakeLight) isOff() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.calls) == 0 || l.calls[len(l.calls)-1] == 0
}

type fakeWiper struct {
	sweeps int
	err    error
}

func (w *fakeWiper) Sweep(_ context.Context, count int) error {
	if w.err != nil {
		return w.err
	}
	w.sweeps += count
	return nil
}

type fakeSensors struct{ clk clock.Clock }

func (s fakeSensors) ReadAll(context.Context) models.SensorReading {
	r := models.NewSensorReading(s.clk.Now())
	r.Temperature = 24.5
	return r
}

type countingRecorder struct{ n int }

func (c *countingRecorder) Record(context.Context, models.SensorReading) error {
	c.n++
	return nil
}

type fakeStorage struct{ err error }

func (f fakeStorage) Check(context.Context) (media.Usage, error) { return media.Usage{}, f.err }

type rig struct {
	clk      *clock.Fake
	handle   *fakeHandle
	device   *fakeDevice
	light    *fakeLight
	wiper    *fakeWiper
	recorder *countingRecorder
	power    *power.DryRun
	bus      *events.Bus
	orch     *Orchestrator
}

func newRig(start time.Time, storageErr error) *rig {
	clk := clock.NewFake(start)
	r := &rig{
		clk:      clk,
		handle:   &fakeHandle{clk: clk},
		light:    &fakeLight{},
		wiper:    &fakeWiper{},
		recorder: &countingRecorder{},
		power:    power.NewDryRun(zerolog.Nop()),
		bus:      events.NewBus(),
	}
	r.device = &fakeDevice{handle: r.handle}
	r.orch = New(Config{CameraName: "reef-01", MediaDir: "/media/cam"}, Deps{
		Device:   r.device,
		Light:    r.light,
		Wiper:    r.wiper,
		Sensors:  fakeSensors{clk: clk},
		Recorder: r.recorder,
		Power:    r.power,
		Storage:  fakeStorage{err: storageErr},
		Clock:    clk,
		Bus:      r.bus,
	}, zerolog.Nop())
	return r
}

func photoSlot(interval int) models.Slot {
	return models.Slot{
		Start:          t0,
		Stop:           t0.Add(10 * time.Second),
		Mode:           models.ModePhoto,
		Capture:        models.CaptureParams{ExposureMode: models.ExposureAuto, Resolution: models.Resolution{Width: 1920, Height: 1080}},
		PhotoInterval:  interval,
		LightDutyCycle: 40,
	}
}

func TestPhotoBurstCapturesUntilStop(t *testing.T) {
	r := newRig(t0.Add(time.Second), nil)

	res := r.orch.Run(context.Background(), photoSlot(5))

	if res.Final != StateIdle || res.Err != nil {
		t.Fatalf("result = %+v", res)
	}
	if res.Frames != 2 || len(r.handle.frames) != 2 {
		t.Fatalf("frames = %d (%d written), want 2", res.Frames, len(r.handle.frames))
	}
	if got := r.clk.Sleeps(); len(got) != 2 || got[0] != 4*time.Second || got[1] != 4*time.Second {
		t.Errorf("sleeps = %v, want [4s 4s]", got)
	}
	if want := "/media/cam/reef-01_img2026-03-14-09-00-01.jpg"; r.handle.frames[0] != want {
		t.Errorf("first frame = %q, want %q", r.handle.frames[0], want)
	}
	if r.handle.closed != 1 {
		t.Errorf("handle closed %d times, want 1", r.handle.closed)
	}
	if !r.light.isOff() {
		t.Errorf("light left on: %v", r.light.calls)
	}
	if got, want := r.light.calls, []int{40, 0, 40, 0}; !slices.Equal(got, want) {
		t.Errorf("light calls = %v, want %v", got, want)
	}
	// one initial poll plus one per frame
	if r.recorder.n != 3 {
		t.Errorf("recorded %d readings, want 3", r.recorder.n)
	}
	if len(r.power.Calls()) != 0 {
		t.Errorf("unexpected power calls %v", r.power.Calls())
	}
	if r.orch.State() != StateIdle {
		t.Errorf("state = %s", r.orch.State())
	}
}

func TestPhotoIntervalOneDoesNotSleep(t *testing.T) {
	r := newRig(t0, nil)
	slot := photoSlot(1)
	slot.Stop = t0.Add(3 * time.Second)

	res := r.orch.Run(context.Background(), slot)
	if res.Frames != 3 {
		t.Errorf("frames = %d, want 3", res.Frames)
	}
	for _, d := range r.clk.Sleeps() {
		if d != 0 {
			t.Errorf("sleep %v, want 0", d)
		}
	}
}

func TestPhotoWiperSweepsBeforeFirstFrame(t *testing.T) {
	r := newRig(t0, nil)
	slot := photoSlot(5)
	slot.WiperEnabled = true

	r.orch.Run(context.Background(), slot)
	if r.wiper.sweeps != 1 {
		t.Errorf("sweeps = %d, want 1", r.wiper.sweeps)
	}
}

func TestCaptureFailureFaultsAndReboots(t *testing.T) {
	r := newRig(t0, nil)
	r.handle.failFrame = 2
	faults := r.bus.Subscribe(events.EventCaptureFault)

	res := r.orch.Run(context.Background(), photoSlot(5))

	if res.Final != StateFault || res.FaultState != StatePhotoLoop {
		t.Fatalf("final = %s fault = %s, want fault in photo loop", res.Final, res.FaultState)
	}
	if res.Frames != 1 {
		t.Errorf("frames = %d, want 1", res.Frames)
	}
	if r.handle.closed != 1 {
		t.Errorf("handle closed %d times, want 1", r.handle.closed)
	}
	if !r.light.isOff() {
		t.Errorf("light left on: %v", r.light.calls)
	}
	calls := r.power.Calls()
	if len(calls) != 1 || calls[0].Op != "reboot" || calls[0].After != DefaultFaultCooldown {
		t.Errorf("power calls = %+v, want one reboot after %v", calls, DefaultFaultCooldown)
	}
	select {
	case p := <-faults:
		if p["state"] != string(StatePhotoLoop) {
			t.Errorf("fault payload = %v", p)
		}
	default:
		t.Error("no capture.fault event published")
	}
	if r.orch.State() != StateIdle {
		t.Errorf("state after fault = %s, want idle", r.orch.State())
	}
}

func TestOpenFailureFaults(t *testing.T) {
	r := newRig(t0, nil)
	r.device.openErr = errors.New("camera not detected")

	res := r.orch.Run(context.Background(), photoSlot(5))

	if res.Final != StateFault || res.FaultState != StateOpeningDevice {
		t.Fatalf("result = %+v", res)
	}
	if r.handle.closed != 0 {
		t.Errorf("closed a handle that was never opened")
	}
	if calls := r.power.Calls(); len(calls) != 1 || calls[0].Op != "reboot" {
		t.Errorf("power calls = %+v", calls)
	}
}

func TestMissingStorageFaultsBeforeOpen(t *testing.T) {
	r := newRig(t0, media.ErrNotMounted)

	res := r.orch.Run(context.Background(), photoSlot(5))

	if res.Final != StateFault || !errors.Is(res.Err, media.ErrNotMounted) {
		t.Fatalf("result = %+v", res)
	}
	if len(r.device.opened) != 0 {
		t.Error("device opened despite missing storage")
	}
}

func TestPanicReleasesDevice(t *testing.T) {
	r := newRig(t0, nil)
	r.handle.panicked = true

	res := r.orch.Run(context.Background(), photoSlot(5))

	if res.Final != StateFault {
		t.Fatalf("final = %s, want fault", res.Final)
	}
	if r.handle.closed != 1 {
		t.Errorf("handle closed %d times, want 1", r.handle.closed)
	}
	if !strings.Contains(res.Err.Error(), "panic") {
		t.Errorf("err = %v", res.Err)
	}
}

func TestCancelIsNotAFault(t *testing.T) {
	r := newRig(t0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	r.clk.OnSleep(func(time.Time) { cancel() })

	res := r.orch.Run(ctx, photoSlot(5))

	if res.Final != StateIdle || !errors.Is(res.Err, context.Canceled) {
		t.Fatalf("result = %+v", res)
	}
	if len(r.power.Calls()) != 0 {
		t.Errorf("cancel requested power ops: %+v", r.power.Calls())
	}
	if r.handle.closed != 1 || !r.light.isOff() {
		t.Errorf("closed = %d light = %v", r.handle.closed, r.light.calls)
	}
}

func videoSlot() models.Slot {
	return models.Slot{
		Start:          t0,
		Stop:           t0.Add(3 * time.Second),
		Mode:           models.ModeVideo,
		Capture:        models.CaptureParams{ExposureMode: models.ExposureAuto, Resolution: models.Resolution{Width: 1280, Height: 720}, Framerate: 30},
		LightDutyCycle: 70,
	}
}

func TestVideoSessionAnnotatesEverySecond(t *testing.T) {
	r := newRig(t0, nil)
	slot := videoSlot()

	res := r.orch.Run(context.Background(), slot)

	if res.Final != StateIdle || res.Err != nil {
		t.Fatalf("result = %+v", res)
	}
	if want := "/media/cam/reef-01_2026-03-14_09-00-00_2026-03-14_09-00-03.h264"; r.handle.recording != want {
		t.Errorf("recording = %q, want %q", r.handle.recording, want)
	}
	if len(r.handle.annotations) != 3 {
		t.Fatalf("annotations = %d, want 3", len(r.handle.annotations))
	}
	if want := "2026-03-14 09:00:00 @ 30 fps Camera: reef-01 Temperature: 24.5"; r.handle.annotations[0] != want {
		t.Errorf("annotation = %q, want %q", r.handle.annotations[0], want)
	}
	if !r.handle.stopped || r.handle.closed != 1 {
		t.Errorf("stopped = %v closed = %d", r.handle.stopped, r.handle.closed)
	}
	if got := r.light.calls; len(got) != 2 || got[0] != 70 || got[1] != 0 {
		t.Errorf("light calls = %v, want [70 0]", got)
	}
	if r.recorder.n != 3 {
		t.Errorf("recorded %d readings, want 3", r.recorder.n)
	}
}

func TestAnnotation(t *testing.T) {
	full := models.NewSensorReading(t0)
	full.Pressure = 1013.25
	full.Temperature = 24.5
	full.Depth = 12
	full.Luminosity = 300
	full.GPS = models.GPS{Lat: -16.5, Lng: 145.75}
	full.Conductivity = 53
	full.TotalDissolved = 35000
	full.Salinity = 35.1
	full.SpecificGravity = 1.025
	full.DissolvedOxygen = 6.8
	full.PercentageOxygen = 95
	full.PH = 8.1

	halfFix := models.NewSensorReading(t0)
	halfFix.GPS.Lat = -16.5
	halfFix.PH = 8.1

	tests := []struct {
		name    string
		camera  string
		reading models.SensorReading
		want    string
	}{
		{
			name:    "all fields in order",
			camera:  "reef-01",
			reading: full,
			want: "Camera: reef-01 Pressure: 1013.25 Temperature: 24.5 Depth: 12 Luminosity: 300 " +
				"GPS: -16.5,145.75 Conductivity: 53 TDS: 35000 Salinity: 35.1 Specific Gravity: 1.025 " +
				"Dissolved Oxygen: 6.8 Percentage Oxygen: 95 pH: 8.1 ",
		},
		{
			name:    "sentinels omitted",
			camera:  "reef-01",
			reading: models.NewSensorReading(t0),
			want:    "Camera: reef-01 ",
		},
		{
			name:    "half a fix is no fix",
			camera:  "",
			reading: halfFix,
			want:    "pH: 8.1 ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Annotation(tt.camera, tt.reading); got != tt.want {
				t.Errorf("Annotation() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTestShotTakesOneAnnotatedFrame(t *testing.T) {
	r := newRig(t0, nil)

	shot, err := r.orch.TestShot(context.Background(), photoSlot(5).Capture, 60, "/tmp/preview")
	if err != nil {
		t.Fatalf("test shot: %v", err)
	}
	if want := "/tmp/preview/reef-01_img2026-03-14-09-00-00.jpg"; shot.Path != want {
		t.Errorf("path = %q, want %q", shot.Path, want)
	}
	if shot.Annotation != "Camera: reef-01 Temperature: 24.5 " {
		t.Errorf("annotation = %q", shot.Annotation)
	}
	if len(r.handle.frames) != 1 || r.handle.closed != 1 {
		t.Errorf("frames = %d, closed = %d", len(r.handle.frames), r.handle.closed)
	}
	if got, want := r.light.calls, []int{60, 0}; !slices.Equal(got, want) {
		t.Errorf("light calls = %v, want %v", got, want)
	}
	if r.orch.State() != StateIdle {
		t.Errorf("state = %q", r.orch.State())
	}
}

func TestTestShotBusyDoesNotReboot(t *testing.T) {
	r := newRig(t0, nil)
	r.device.openErr = camera.ErrBusy

	_, err := r.orch.TestShot(context.Background(), photoSlot(5).Capture, 0, "/tmp/preview")
	if !errors.Is(err, camera.ErrBusy) {
		t.Fatalf("err = %v, want ErrBusy", err)
	}
	if len(r.power.Calls()) != 0 {
		t.Errorf("power calls = %v", r.power.Calls())
	}
}

func TestVideoDeviceFailuresFault(t *testing.T) {
	recorderDied := fmt.Errorf("%w: exit status 255", camera.ErrRecorderExited)
	tests := []struct {
		name   string
		breakH func(*fakeHandle)
	}{
		{"start recording", func(h *fakeHandle) { h.recordErr = errors.New("no cameras available") }},
		{"recorder dies mid slot", func(h *fakeHandle) { h.annotateErr = recorderDied }},
		{"stop recording", func(h *fakeHandle) { h.stopErr = recorderDied }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t0, nil)
			tt.breakH(r.handle)

			res := r.orch.Run(context.Background(), videoSlot())

			if res.Final != StateFault || res.FaultState != StateVideoRecording {
				t.Fatalf("final = %s fault = %s, want fault in video recording", res.Final, res.FaultState)
			}
			if r.handle.closed != 1 {
				t.Errorf("handle closed %d times, want 1", r.handle.closed)
			}
			if !r.light.isOff() {
				t.Errorf("light left on: %v", r.light.calls)
			}
			calls := r.power.Calls()
			if len(calls) != 1 || calls[0].Op != "reboot" {
				t.Errorf("power calls = %+v, want one reboot", calls)
			}
		})
	}
}

func TestWiperFailureDoesNotBlockCapture(t *testing.T) {
	r := newRig(t0, nil)
	r.wiper.err = errors.New("servo stalled")
	slot := photoSlot(5)
	slot.WiperEnabled = true

	res := r.orch.Run(context.Background(), slot)

	if res.Final != StateIdle || res.Err != nil {
		t.Fatalf("result = %+v", res)
	}
	if res.Frames != 2 {
		t.Errorf("frames = %d, want 2", res.Frames)
	}
	if len(r.power.Calls()) != 0 {
		t.Errorf("wiper failure requested power ops: %+v", r.power.Calls())
	}
}

func TestFramesWithinOneSecondGetDistinctNames(t *testing.T) {
	r := newRig(t0, nil)
	r.handle.frameTime = 400 * time.Millisecond
	slot := photoSlot(1)
	slot.Stop = t0.Add(time.Second)

	res := r.orch.Run(context.Background(), slot)

	if res.Frames != 3 {
		t.Fatalf("frames = %d, want 3", res.Frames)
	}
	want := []string{
		"/media/cam/reef-01_img2026-03-14-09-00-00.jpg",
		"/media/cam/reef-01_img2026-03-14-09-00-00_1.jpg",
		"/media/cam/reef-01_img2026-03-14-09-00-00_2.jpg",
	}
	if !slices.Equal(r.handle.frames, want) {
		t.Errorf("frames = %v, want %v", r.handle.frames, want)
	}
}
