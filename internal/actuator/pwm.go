/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package actuator

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// PWMChannel is one channel of a Linux sysfs PWM chip.
type PWMChannel struct {
	root    string // e.g. /sys/class/pwm/pwmchip0
	channel int
}

// NewPWMChannel addresses channel on the chip under root.
func NewPWMChannel(root string, channel int) *PWMChannel {
	return &PWMChannel{root: root, channel: channel}
}

func (p *PWMChannel) dir() string {
	return filepath.Join(p.root, "pwm"+strconv.Itoa(p.channel))
}

func (p *PWMChannel) export() error {
	if _, err := os.Stat(p.dir()); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := os.WriteFile(filepath.Join(p.root, "export"), []byte(strconv.Itoa(p.channel)), 0o200); err != nil {
		return fmt.Errorf("export pwm%d: %w", p.channel, err)
	}
	return nil
}

func (p *PWMChannel) write(attr string, v int64) error {
	return os.WriteFile(filepath.Join(p.dir(), attr), []byte(strconv.FormatInt(v, 10)), 0o644)
}

// Configure sets period and a duty cycle in percent.
func (p *PWMChannel) Configure(period time.Duration, dutyPercent int) error {
	return p.ConfigurePulse(period, period*time.Duration(dutyPercent)/100)
}

// ConfigurePulse sets period and pulse width. The duty cycle is reset first
// so a shorter period is never rejected by the kernel.
func (p *PWMChannel) ConfigurePulse(period, pulse time.Duration) error {
	if err := p.export(); err != nil {
		return err
	}
	if err := p.write("duty_cycle", 0); err != nil {
		return err
	}
	if err := p.write("period", period.Nanoseconds()); err != nil {
		return err
	}
	return p.write("duty_cycle", pulse.Nanoseconds())
}

// Enable turns the output on or off.
func (p *PWMChannel) Enable(on bool) error {
	v := int64(0)
	if on {
		v = 1
	}
	return p.write("enable", v)
}
