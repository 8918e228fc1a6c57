/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package scheduler is the top-level control loop: it dispatches active
// slots and powers the camera down across long gaps.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/oceancam/internal/capture"
	"github.com/friendsincode/oceancam/internal/clock"
	"github.com/friendsincode/oceancam/internal/events"
	"github.com/friendsincode/oceancam/internal/models"
	"github.com/friendsincode/oceancam/internal/power"
	"github.com/friendsincode/oceancam/internal/schedule"
	"github.com/friendsincode/oceancam/internal/scheduler/state"
	"github.com/friendsincode/oceancam/internal/telemetry"
	"github.com/friendsincode/oceancam/internal/upload"
)

// ErrPoweredDown is returned by Run after a power-down has been requested.
// The power controller restarts the process at the programmed wake time.
var ErrPoweredDown = errors.New("scheduler: powered down until next slot")

// Loop defaults.
const (
	DefaultPollInterval      = time.Second
	DefaultShutdownThreshold = 10 * time.Minute
	DefaultWakeLead          = 2 * time.Minute
	DefaultShutdownDelay     = 2 * time.Minute
)

// LoopState is what the control loop is doing.
type LoopState string

const (
	StateIdle         LoopState = "idle"
	StateCapturing    LoopState = "capturing"
	StateUploading    LoopState = "uploading"
	StatePoweringDown LoopState = "powering_down"
)

// CaptureRunner runs photo and video slots.
type CaptureRunner interface {
	Run(ctx context.Context, slot models.Slot) capture.Result
}

// UploadRunner runs upload slots.
type UploadRunner interface {
	Run(ctx context.Context, slot models.Slot) upload.Result
}

// Config tunes the loop.
type Config struct {
	PollInterval      time.Duration
	ShutdownThreshold time.Duration
	WakeLead          time.Duration
	ShutdownDelay     time.Duration
	// DisablePowerDown keeps polling through long gaps, for bench runs.
	DisablePowerDown bool
}

// Status is a snapshot of the loop for the API.
type Status struct {
	State        LoopState    `json:"state"`
	ActiveSlot   *models.Slot `json:"active_slot,omitempty"`
	NextSlot     *models.Slot `json:"next_slot,omitempty"`
	LastDispatch time.Time    `json:"last_dispatch,omitempty"`
	LastTick     time.Time    `json:"last_tick"`
	Recent       []state.Run  `json:"recent,omitempty"`
}

// Service orchestrates the slot schedule.
type Service struct {
	cfg     Config
	store   *schedule.Store
	capture CaptureRunner
	upload  UploadRunner
	power   power.Controller
	clock   clock.Clock
	bus     events.Publisher
	history *state.Store
	logger  zerolog.Logger

	mu     sync.RWMutex
	status Status
}

// New constructs the control loop.
func New(cfg Config, store *schedule.Store, captureRunner CaptureRunner, uploadRunner UploadRunner, pwr power.Controller, clk clock.Clock, bus events.Publisher, history *state.Store, logger zerolog.Logger) *Service {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.ShutdownThreshold <= 0 {
		cfg.ShutdownThreshold = DefaultShutdownThreshold
	}
	if cfg.WakeLead <= 0 {
		cfg.WakeLead = DefaultWakeLead
	}
	if cfg.ShutdownDelay <= 0 {
		cfg.ShutdownDelay = DefaultShutdownDelay
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if bus == nil {
		bus = events.Nop{}
	}
	if history == nil {
		history = state.NewStore(state.DefaultCapacity)
	}
	return &Service{
		cfg:     cfg,
		store:   store,
		capture: captureRunner,
		upload:  uploadRunner,
		power:   pwr,
		clock:   clk,
		bus:     bus,
		history: history,
		logger:  logger.With().Str("component", "scheduler").Logger(),
		status:  Status{State: StateIdle},
	}
}

// Status returns the current loop status.
func (s *Service) Status() Status {
	s.mu.RLock()
	st := s.status
	s.mu.RUnlock()
	st.Recent = s.history.Recent()
	return st
}

// History exposes the run history.
func (s *Service) History() *state.Store {
	return s.history
}

// Run executes the control loop until ctx is cancelled or the camera is
// powered down, in which case ErrPoweredDown is returned.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info().
		Dur("poll_interval", s.cfg.PollInterval).
		Dur("shutdown_threshold", s.cfg.ShutdownThreshold).
		Int("slots", s.store.Len()).
		Msg("scheduler loop started")

	for {
		if err := ctx.Err(); err != nil {
			s.logger.Info().Msg("scheduler loop stopped")
			return err
		}
		dispatched, err := s.tick(ctx)
		if err != nil {
			return err
		}
		if dispatched {
			continue
		}
		if err := s.clock.Sleep(ctx, s.cfg.PollInterval); err != nil {
			s.logger.Info().Msg("scheduler loop stopped")
			return err
		}
	}
}

// tick runs one iteration. It reports whether a slot was dispatched.
func (s *Service) tick(ctx context.Context) (bool, error) {
	telemetry.SchedulerTicksTotal.Inc()
	telemetry.SchedulerSlots.Set(float64(s.store.Len()))
	now := s.clock.Now()

	s.mu.Lock()
	s.status.LastTick = now
	s.mu.Unlock()

	if slot, ok := s.activeSlot(now); ok {
		s.dispatch(ctx, slot)
		return true, nil
	}

	next, ok := s.store.NextFutureSlot(now)
	s.mu.Lock()
	s.status.NextSlot = nil
	if ok {
		s.status.NextSlot = &next
	}
	s.mu.Unlock()
	if !ok {
		return false, nil
	}

	minutes := schedule.SecondsUntil(next, now) / 60
	threshold := int(s.cfg.ShutdownThreshold / time.Minute)
	if minutes <= threshold || s.cfg.DisablePowerDown {
		return false, nil
	}
	if err := s.powerDown(ctx, next, now, minutes); err != nil {
		return false, err
	}
	return false, ErrPoweredDown
}

// activeSlot returns the first active slot unless it is the one that just
// finished; a session ending exactly on its stop second must not restart.
func (s *Service) activeSlot(now time.Time) (models.Slot, bool) {
	idx, ok := s.store.ActiveSlot(now)
	if !ok {
		return models.Slot{}, false
	}
	slot, ok := s.store.Slot(idx)
	if !ok {
		// Replaced between the two reads; next tick sees the new schedule.
		return models.Slot{}, false
	}
	if last, ok := s.history.Last(); ok && last.Matches(slot) {
		return models.Slot{}, false
	}
	return slot, true
}

func (s *Service) dispatch(ctx context.Context, slot models.Slot) {
	started := s.clock.Now()
	loopState := StateCapturing
	if slot.Mode == models.ModeUpload {
		loopState = StateUploading
	}
	s.setState(loopState, &slot)
	s.mu.Lock()
	s.status.LastDispatch = started
	s.mu.Unlock()

	telemetry.SchedulerDispatchesTotal.WithLabelValues(string(slot.Mode)).Inc()
	s.logger.Info().
		Str("mode", string(slot.Mode)).
		Time("start", slot.Start).
		Time("stop", slot.Stop).
		Msg("dispatching slot")

	run := state.Run{
		SlotStart: slot.Start,
		SlotStop:  slot.Stop,
		Mode:      slot.Mode,
		StartedAt: started,
		Outcome:   state.OutcomeCompleted,
	}

	switch slot.Mode {
	case models.ModeUpload:
		res := s.upload.Run(ctx, slot)
		run.Location = res.Location
		if res.Err != nil {
			run.Outcome = state.OutcomeFailed
			run.Error = res.Err.Error()
		}
	default:
		res := s.capture.Run(ctx, slot)
		run.Frames = res.Frames
		if res.Final == capture.StateFault {
			run.Outcome = state.OutcomeFault
		}
		if res.Err != nil {
			run.Error = res.Err.Error()
		}
	}
	if ctx.Err() != nil {
		run.Outcome = state.OutcomeCancelled
	}
	run.FinishedAt = s.clock.Now()
	s.history.Add(run)
	s.history.Prune(run.FinishedAt.Add(-7 * 24 * time.Hour))

	s.setState(StateIdle, nil)
}

func (s *Service) powerDown(ctx context.Context, next models.Slot, now time.Time, minutes int) error {
	s.setState(StatePoweringDown, nil)
	wake := next.Start.Add(-s.cfg.WakeLead)
	shutdown := now.Add(s.cfg.ShutdownDelay)

	s.logger.Info().
		Int("minutes_until_next", minutes).
		Time("wake", wake).
		Time("shutdown", shutdown).
		Msg("next slot is far away, powering down")

	if err := s.power.ScheduleWake(ctx, wake); err != nil {
		s.setState(StateIdle, nil)
		return fmt.Errorf("schedule wake: %w", err)
	}
	if err := s.power.PowerDown(ctx, shutdown); err != nil {
		s.setState(StateIdle, nil)
		return fmt.Errorf("power down: %w", err)
	}
	telemetry.SchedulerShutdownsTotal.Inc()
	s.bus.Publish(events.EventPowerDown, events.Payload{
		"wake":     wake,
		"shutdown": shutdown,
		"next":     next.Start,
	})
	return nil
}

func (s *Service) setState(st LoopState, active *models.Slot) {
	s.mu.Lock()
	changed := s.status.State != st
	s.status.State = st
	s.status.ActiveSlot = active
	s.mu.Unlock()
	if changed {
		s.bus.Publish(events.EventLoopState, events.Payload{"state": string(st)})
	}
}
