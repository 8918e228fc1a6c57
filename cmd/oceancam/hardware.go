/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/friendsincode/oceancam/internal/actuator"
	"github.com/friendsincode/oceancam/internal/camera"
	"github.com/friendsincode/oceancam/internal/clock"
	"github.com/friendsincode/oceancam/internal/config"
	"github.com/friendsincode/oceancam/internal/power"
	"github.com/friendsincode/oceancam/internal/sensors"
)

// hardware is the set of device adapters selected by the hardware mode.
type hardware struct {
	device camera.Device
	light  actuator.Light
	wiper  actuator.Wiper
	power  power.Controller
	gps    *sensors.NMEAReceiver
	reader *sensors.Aggregator
}

func buildHardware(c *config.Config, clk clock.Clock, log zerolog.Logger) (*hardware, error) {
	sources, err := sensorSources(c, clk)
	if err != nil {
		return nil, err
	}

	hw := &hardware{}
	if c.Hardware.GPSDevice != "" {
		hw.gps = sensors.NewNMEAReceiver()
		sources = append(sources, sensors.GPSSource("gps", hw.gps))
	}

	switch c.Hardware.Mode {
	case config.HardwarePi:
		dev := camera.NewLibcameraDevice(log)
		dev.StillBinary = c.Hardware.StillBinary
		dev.VideoBinary = c.Hardware.VideoBinary
		hw.device = dev
		hw.light = actuator.NewPWMLight(actuator.NewPWMChannel(c.Hardware.PWMChip, c.Hardware.LightChannel))
		hw.wiper = actuator.NewServoWiper(actuator.NewPWMChannel(c.Hardware.PWMChip, c.Hardware.WiperChannel), clk)
		hw.power = power.NewWittyPi(c.Hardware.PowerScript, clk, log)
	default:
		hw.device = camera.NewSimulatedDevice(log)
		hw.light = actuator.NopLight{Logger: log.With().Str("component", "light").Logger()}
		hw.wiper = actuator.NopWiper{Logger: log.With().Str("component", "wiper").Logger()}
		hw.power = power.NewDryRun(log)
		if len(sources) == 0 {
			sources = append(sources, sensors.NewSimulatedSource("simulated", clk))
		}
	}

	hw.reader = sensors.NewAggregator(clk, log, sources...)
	return hw, nil
}

// sensorSources maps configured helper programs to command sources.
func sensorSources(c *config.Config, clk clock.Clock) ([]sensors.Source, error) {
	sources := make([]sensors.Source, 0, len(c.Hardware.Sensors))
	for _, sc := range c.Hardware.Sensors {
		unknown := lo.Filter(sc.Fields, func(name string, _ int) bool {
			_, ok := sensors.ParseField(strings.TrimSpace(name))
			return !ok
		})
		if len(unknown) > 0 {
			return nil, fmt.Errorf("sensor %q: unknown fields %s", sc.Name, strings.Join(unknown, ", "))
		}
		fields := lo.FilterMap(sc.Fields, func(name string, _ int) (sensors.Field, bool) {
			return sensors.ParseField(strings.TrimSpace(name))
		})
		if len(sc.Command) == 0 {
			// A sensor with no helper program is simulated, which lets a
			// bench rig mix real and fake sources.
			sources = append(sources, sensors.NewSimulatedSource(sc.Name, clk, fields...))
			continue
		}
		sources = append(sources, sensors.NewCommandSource(sc.Name, fields, sc.Command, sc.Timeout))
	}
	return sources, nil
}
