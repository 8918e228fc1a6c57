/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package capture runs one photo burst or video recording for an active
// slot and owns the camera for the duration of the session.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/friendsincode/oceancam/internal/actuator"
	"github.com/friendsincode/oceancam/internal/camera"
	"github.com/friendsincode/oceancam/internal/clock"
	"github.com/friendsincode/oceancam/internal/events"
	"github.com/friendsincode/oceancam/internal/media"
	"github.com/friendsincode/oceancam/internal/models"
	"github.com/friendsincode/oceancam/internal/power"
	"github.com/friendsincode/oceancam/internal/sensorlog"
	"github.com/friendsincode/oceancam/internal/sensors"
	"github.com/friendsincode/oceancam/internal/telemetry"
)

// State is the session state machine position.
type State string

const (
	StateIdle           State = "idle"
	StateOpeningDevice  State = "opening_device"
	StatePhotoLoop      State = "photo_loop"
	StateVideoRecording State = "video_recording"
	StateClosingDevice  State = "closing_device"
	StateFault          State = "fault"
)

// DefaultFaultCooldown is the wait before a fault-triggered reboot.
const DefaultFaultCooldown = 5 * time.Minute

// StorageChecker verifies the media root before a session.
type StorageChecker interface {
	Check(ctx context.Context) (media.Usage, error)
}

// Config holds session settings.
type Config struct {
	CameraName    string
	MediaDir      string
	FaultCooldown time.Duration
	WiperSweeps   int
}

// Deps are the orchestrator's collaborators. Storage, Recorder and Bus are
// optional.
type Deps struct {
	Device   camera.Device
	Light    actuator.Light
	Wiper    actuator.Wiper
	Sensors  sensors.Reader
	Recorder sensorlog.Recorder
	Power    power.Controller
	Storage  StorageChecker
	Clock    clock.Clock
	Bus      events.Publisher
}

// Result summarises one session.
type Result struct {
	SessionID  string
	Mode       models.Mode
	Frames     int
	Final      State
	FaultState State
	Err        error
	Started    time.Time
	Finished   time.Time
}

// Orchestrator runs capture sessions one at a time.
type Orchestrator struct {
	cfg    Config
	deps   Deps
	logger zerolog.Logger

	mu    sync.RWMutex
	state State
}

// New creates an orchestrator.
func New(cfg Config, deps Deps, logger zerolog.Logger) *Orchestrator {
	if cfg.FaultCooldown <= 0 {
		cfg.FaultCooldown = DefaultFaultCooldown
	}
	if cfg.WiperSweeps <= 0 {
		cfg.WiperSweeps = 1
	}
	if deps.Recorder == nil {
		deps.Recorder = sensorlog.Nop{}
	}
	if deps.Bus == nil {
		deps.Bus = events.Nop{}
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	return &Orchestrator{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With().Str("component", "capture").Logger(),
		state:  StateIdle,
	}
}

// State reports the current session state.
func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// Run captures for slot until slot.Stop. It never returns an error to the
// caller: device failures end in FAULT with a reboot requested, and the
// Result carries the details.
func (o *Orchestrator) Run(ctx context.Context, slot models.Slot) Result {
	res := Result{
		SessionID: uuid.NewString(),
		Mode:      slot.Mode,
		Started:   o.deps.Clock.Now(),
	}
	logger := o.logger.With().Str("session_id", res.SessionID).Str("mode", string(slot.Mode)).Logger()

	ctx, span := telemetry.StartSpan(ctx, "capture.session",
		attribute.String("session_id", res.SessionID),
		attribute.String("mode", string(slot.Mode)),
	)
	defer func() { telemetry.EndSpan(span, res.Err) }()

	logger.Info().Time("stop", slot.Stop).Msg("capture session starting")
	o.deps.Bus.Publish(events.EventCaptureStarted, events.Payload{
		"session_id": res.SessionID,
		"mode":       string(slot.Mode),
		"stop":       slot.Stop,
	})

	failedAt, err := o.session(ctx, slot, &res, logger)
	res.Finished = o.deps.Clock.Now()
	telemetry.CaptureSessionDuration.WithLabelValues(string(slot.Mode)).Observe(res.Finished.Sub(res.Started).Seconds())

	switch {
	case err == nil:
		res.Final = StateIdle
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		// Shutdown, not a device fault.
		o.lightOff(logger)
		res.Final = StateIdle
		res.Err = err
	default:
		res.Err = err
		res.FaultState = failedAt
		res.Final = StateFault
		o.fault(ctx, res, logger)
	}
	o.setState(StateIdle)

	if res.Final != StateFault {
		o.deps.Bus.Publish(events.EventCaptureFinished, events.Payload{
			"session_id": res.SessionID,
			"mode":       string(slot.Mode),
			"frames":     res.Frames,
		})
		logger.Info().Int("frames", res.Frames).Msg("capture session finished")
	}
	return res
}

// session holds the camera for its whole body; the handle is closed on
// every path out, including panics.
func (o *Orchestrator) session(ctx context.Context, slot models.Slot, res *Result, logger zerolog.Logger) (failedAt State, err error) {
	o.setState(StateOpeningDevice)
	if o.deps.Storage != nil {
		if _, err := o.deps.Storage.Check(ctx); err != nil {
			return StateOpeningDevice, fmt.Errorf("media storage: %w", err)
		}
	}

	h, err := o.deps.Device.Open(ctx, slot.Capture)
	if err != nil {
		return StateOpeningDevice, fmt.Errorf("open camera: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			failedAt, err = o.State(), fmt.Errorf("panic during capture: %v", r)
		}
		o.setState(StateClosingDevice)
		if cerr := h.Close(); cerr != nil {
			logger.Warn().Err(cerr).Msg("camera close failed")
		}
	}()

	switch slot.Mode {
	case models.ModePhoto:
		o.setState(StatePhotoLoop)
		err = o.photoLoop(ctx, h, slot, res, logger)
		return StatePhotoLoop, err
	case models.ModeVideo:
		o.setState(StateVideoRecording)
		err = o.videoSession(ctx, h, slot, logger)
		return StateVideoRecording, err
	default:
		return StateOpeningDevice, fmt.Errorf("capture cannot run %q slots", slot.Mode)
	}
}

func (o *Orchestrator) photoLoop(ctx context.Context, h camera.Handle, slot models.Slot, res *Result, logger zerolog.Logger) error {
	o.preSweep(ctx, slot, logger)
	o.lightOn(slot.LightDutyCycle, logger)

	annotation := Annotation(o.cfg.CameraName, o.poll(ctx, logger))
	var lastBase string
	seq := 0
	for {
		base := camera.PhotoPath(o.cfg.MediaDir, o.cfg.CameraName, o.deps.Clock.Now())
		if base == lastBase {
			seq++
		} else {
			lastBase, seq = base, 0
		}
		path := camera.FramePath(base, seq)
		if err := h.CaptureFrame(ctx, path, annotation); err != nil {
			return fmt.Errorf("capture frame %d: %w", res.Frames+1, err)
		}
		res.Frames++
		telemetry.CaptureFramesTotal.Inc()
		o.lightOff(logger)

		annotation = Annotation(o.cfg.CameraName, o.poll(ctx, logger))

		if err := o.deps.Clock.Sleep(ctx, slot.InterShotSleep()); err != nil {
			return err
		}
		if !o.deps.Clock.Now().Before(slot.Stop) {
			return nil
		}
		o.lightOn(slot.LightDutyCycle, logger)
	}
}

func (o *Orchestrator) videoSession(ctx context.Context, h camera.Handle, slot models.Slot, logger zerolog.Logger) error {
	o.preSweep(ctx, slot, logger)
	o.lightOn(slot.LightDutyCycle, logger)
	defer o.lightOff(logger)

	path := camera.VideoPath(o.cfg.MediaDir, o.cfg.CameraName, slot)
	if err := h.StartRecording(ctx, path); err != nil {
		return fmt.Errorf("start recording: %w", err)
	}
	logger.Info().Str("path", path).Msg("recording started")

	for o.deps.Clock.Now().Before(slot.Stop) {
		reading := o.poll(ctx, logger)
		text := VideoAnnotation(o.deps.Clock.Now(), slot.Capture.Framerate, Annotation(o.cfg.CameraName, reading))
		if err := h.SetAnnotation(text); err != nil {
			return fmt.Errorf("set annotation: %w", err)
		}
		if err := o.deps.Clock.Sleep(ctx, time.Second); err != nil {
			return err
		}
	}

	if err := h.StopRecording(); err != nil {
		return fmt.Errorf("stop recording: %w", err)
	}
	return nil
}

// poll reads every sensor and records the reading. Recording failures are
// logged only.
func (o *Orchestrator) poll(ctx context.Context, logger zerolog.Logger) models.SensorReading {
	reading := o.deps.Sensors.ReadAll(ctx)
	if err := o.deps.Recorder.Record(ctx, reading); err != nil {
		logger.Warn().Err(err).Msg("sensor log write failed")
	}
	return reading
}

func (o *Orchestrator) preSweep(ctx context.Context, slot models.Slot, logger zerolog.Logger) {
	if !slot.WiperEnabled || o.deps.Wiper == nil {
		return
	}
	if err := o.deps.Wiper.Sweep(ctx, o.cfg.WiperSweeps); err != nil {
		logger.Warn().Err(err).Msg("wiper sweep failed")
	}
}

func (o *Orchestrator) lightOn(duty int, logger zerolog.Logger) {
	if o.deps.Light == nil || duty <= 0 {
		return
	}
	if err := o.deps.Light.On(duty); err != nil {
		logger.Warn().Err(err).Int("duty_cycle", duty).Msg("light on failed")
	}
}

func (o *Orchestrator) lightOff(logger zerolog.Logger) {
	if o.deps.Light == nil {
		return
	}
	if err := o.deps.Light.Off(); err != nil {
		logger.Warn().Err(err).Msg("light off failed")
	}
}

// fault handles a device failure: light off, then a delayed reboot. The
// camera has already been released by session.
func (o *Orchestrator) fault(ctx context.Context, res Result, logger zerolog.Logger) {
	o.setState(StateFault)
	logger.Error().Err(res.Err).Str("state", string(res.FaultState)).Int("frames", res.Frames).Msg("capture fault")
	telemetry.CaptureFaultsTotal.WithLabelValues(string(res.FaultState)).Inc()
	o.lightOff(logger)

	o.deps.Bus.Publish(events.EventCaptureFault, events.Payload{
		"session_id": res.SessionID,
		"state":      string(res.FaultState),
		"error":      res.Err.Error(),
	})

	if o.deps.Power == nil {
		return
	}
	if err := o.deps.Power.Reboot(ctx, o.cfg.FaultCooldown); err != nil {
		logger.Error().Err(err).Msg("reboot request failed")
	}
}
