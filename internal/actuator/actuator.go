/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package actuator drives the subsea light and the lens wiper.
package actuator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/oceancam/internal/clock"
)

// Light is the auxiliary lamp.
type Light interface {
	On(dutyCycle int) error
	Off() error
}

// Wiper clears the lens port.
type Wiper interface {
	Sweep(ctx context.Context, count int) error
}

// Wiper geometry.
const (
	WiperRestAngle  = 0
	WiperSweepAngle = 50
	WiperDwell      = 5 * time.Second
)

// PWMLight dims the lamp through a hardware PWM channel.
type PWMLight struct {
	ch *PWMChannel
}

// NewPWMLight drives the lamp at 500 Hz.
func NewPWMLight(ch *PWMChannel) *PWMLight {
	return &PWMLight{ch: ch}
}

// On implements Light.
func (l *PWMLight) On(dutyCycle int) error {
	if dutyCycle < 0 || dutyCycle > 100 {
		return fmt.Errorf("light duty cycle %d out of range", dutyCycle)
	}
	if err := l.ch.Configure(2*time.Millisecond, dutyCycle); err != nil {
		return fmt.Errorf("light on: %w", err)
	}
	return l.ch.Enable(dutyCycle > 0)
}

// Off implements Light.
func (l *PWMLight) Off() error {
	if err := l.ch.Configure(2*time.Millisecond, 0); err != nil {
		return fmt.Errorf("light off: %w", err)
	}
	return l.ch.Enable(false)
}

// ServoWiper moves a hobby servo between rest and sweep angles.
type ServoWiper struct {
	ch    *PWMChannel
	clock clock.Clock
}

// NewServoWiper drives a 50 Hz servo.
func NewServoWiper(ch *PWMChannel, clk clock.Clock) *ServoWiper {
	return &ServoWiper{ch: ch, clock: clk}
}

// Sweep implements Wiper.
func (w *ServoWiper) Sweep(ctx context.Context, count int) error {
	if err := w.setAngle(WiperRestAngle); err != nil {
		return err
	}
	defer func() { _ = w.ch.Enable(false) }()
	for i := 0; i < count; i++ {
		if err := w.setAngle(WiperSweepAngle); err != nil {
			return err
		}
		if err := w.clock.Sleep(ctx, WiperDwell); err != nil {
			return err
		}
		if err := w.setAngle(WiperRestAngle); err != nil {
			return err
		}
	}
	return nil
}

// setAngle maps 0-180 degrees onto a 1-2 ms pulse in a 20 ms frame.
func (w *ServoWiper) setAngle(deg int) error {
	pulse := time.Millisecond + time.Duration(deg)*time.Millisecond/180
	if err := w.ch.ConfigurePulse(20*time.Millisecond, pulse); err != nil {
		return fmt.Errorf("wiper angle %d: %w", deg, err)
	}
	return w.ch.Enable(true)
}

// NopLight logs instead of switching a lamp.
type NopLight struct{ Logger zerolog.Logger }

// On implements Light.
func (n NopLight) On(dutyCycle int) error {
	n.Logger.Debug().Int("duty_cycle", dutyCycle).Msg("light on")
	return nil
}

// Off implements Light.
func (n NopLight) Off() error {
	n.Logger.Debug().Msg("light off")
	return nil
}

// NopWiper logs instead of sweeping.
type NopWiper struct{ Logger zerolog.Logger }

// Sweep implements Wiper.
func (n NopWiper) Sweep(_ context.Context, count int) error {
	n.Logger.Debug().Int("count", count).Msg("wiper sweep")
	return nil
}
