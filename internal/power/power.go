/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package power programs the RTC power board that wakes and cuts the camera.
package power

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/oceancam/internal/clock"
)

// Controller is the external power hardware. Calls are fire-and-forget from
// the caller's point of view; errors are for logging.
type Controller interface {
	ScheduleWake(ctx context.Context, at time.Time) error
	PowerDown(ctx context.Context, at time.Time) error
	// Reboot restarts the host after the cooldown.
	Reboot(ctx context.Context, after time.Duration) error
	// ClearSchedule drops any programmed wake/shutdown.
	ClearSchedule(ctx context.Context) error
}

// Runner executes a command line. Swappable for tests.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs the command on the host.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// WittyPi command codes understood by the board helper script.
const (
	wittyPiShutdown = "4"
	wittyPiStartup  = "5"
	wittyPiClear    = "10"
)

// WittyPi drives a WittyPi board through its helper script.
type WittyPi struct {
	Script       string
	RebootBinary string
	Run          Runner
	Clock        clock.Clock
	logger       zerolog.Logger
}

// NewWittyPi creates a controller using script (usually run under sudo).
func NewWittyPi(script string, clk clock.Clock, logger zerolog.Logger) *WittyPi {
	return &WittyPi{
		Script:       script,
		RebootBinary: "reboot",
		Run:          ExecRunner,
		Clock:        clk,
		logger:       logger.With().Str("component", "power").Logger(),
	}
}

func (w *WittyPi) script(ctx context.Context, args ...string) error {
	out, err := w.Run(ctx, "sh", append([]string{w.Script}, args...)...)
	if err != nil {
		return fmt.Errorf("wittypi %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}

// ScheduleWake programs the startup alarm; the board takes day-of-month and
// wall time.
func (w *WittyPi) ScheduleWake(ctx context.Context, at time.Time) error {
	w.logger.Info().Time("at", at).Msg("scheduling wake")
	return w.script(ctx, wittyPiStartup, at.Format("02 15:04:05"))
}

// PowerDown programs the shutdown alarm. The board resolves to the minute.
func (w *WittyPi) PowerDown(ctx context.Context, at time.Time) error {
	w.logger.Info().Time("at", at).Msg("scheduling shutdown")
	return w.script(ctx, wittyPiShutdown, at.Format("02 15:04"))
}

// ClearSchedule implements Controller.
func (w *WittyPi) ClearSchedule(ctx context.Context) error {
	return w.script(ctx, wittyPiClear, "6")
}

// Reboot implements Controller.
func (w *WittyPi) Reboot(ctx context.Context, after time.Duration) error {
	w.logger.Warn().Dur("after", after).Msg("reboot requested")
	if err := w.Clock.Sleep(ctx, after); err != nil {
		return err
	}
	out, err := w.Run(ctx, w.RebootBinary)
	if err != nil {
		return fmt.Errorf("reboot: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Call is one recorded DryRun request.
type Call struct {
	Op    string
	At    time.Time
	After time.Duration
}

// DryRun records and logs requests without touching hardware.
type DryRun struct {
	logger zerolog.Logger

	mu    sync.Mutex
	calls []Call
}

// NewDryRun creates a logging controller.
func NewDryRun(logger zerolog.Logger) *DryRun {
	return &DryRun{logger: logger.With().Str("component", "power").Logger()}
}

func (d *DryRun) record(c Call) {
	d.mu.Lock()
	d.calls = append(d.calls, c)
	d.mu.Unlock()
	d.logger.Info().Str("op", c.Op).Time("at", c.At).Dur("after", c.After).Msg("power request (dry run)")
}

// ScheduleWake implements Controller.
func (d *DryRun) ScheduleWake(_ context.Context, at time.Time) error {
	d.record(Call{Op: "wake", At: at})
	return nil
}

// PowerDown implements Controller.
func (d *DryRun) PowerDown(_ context.Context, at time.Time) error {
	d.record(Call{Op: "power_down", At: at})
	return nil
}

// Reboot implements Controller.
func (d *DryRun) Reboot(_ context.Context, after time.Duration) error {
	d.record(Call{Op: "reboot", After: after})
	return nil
}

// ClearSchedule implements Controller.
func (d *DryRun) ClearSchedule(context.Context) error {
	d.record(Call{Op: "clear"})
	return nil
}

// Calls returns the recorded requests in order.
func (d *DryRun) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Call(nil), d.calls...)
}
