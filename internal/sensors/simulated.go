/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package sensors

import (
	"context"
	"math"

	"github.com/friendsincode/oceancam/internal/clock"
)

// Simulated baselines for a shallow reef deployment.
var simulatedBaseline = Values{
	FieldPressure:         1215.0,
	FieldTemperature:      24.5,
	FieldDepth:            2.1,
	FieldLuminosity:       800,
	FieldConductivity:     52000,
	FieldTotalDissolved:   28080,
	FieldSalinity:         34.5,
	FieldSpecificGravity:  1.025,
	FieldDissolvedOxygen:  6.8,
	FieldPercentageOxygen: 98,
	FieldPH:               8.1,
	FieldLatitude:         -16.9186,
	FieldLongitude:        145.7781,
}

// SimulatedSource produces plausible values that drift over a tidal period.
// It backs bench runs without hardware.
type SimulatedSource struct {
	name   string
	fields []Field
	clock  clock.Clock
}

// NewSimulatedSource simulates fields; nil means every field.
func NewSimulatedSource(name string, clk clock.Clock, fields ...Field) *SimulatedSource {
	if len(fields) == 0 {
		fields = AllFields
	}
	return &SimulatedSource{name: name, fields: fields, clock: clk}
}

// Name implements Source.
func (s *SimulatedSource) Name() string { return s.name }

// Fields implements Source.
func (s *SimulatedSource) Fields() []Field { return s.fields }

// Read implements Source.
func (s *SimulatedSource) Read(context.Context) (Values, error) {
	const tide = 12*3600 + 25*60 // seconds
	phase := math.Sin(2 * math.Pi * float64(s.clock.Now().Unix()%tide) / tide)

	out := make(Values, len(s.fields))
	for _, f := range s.fields {
		v := simulatedBaseline[f]
		switch f {
		case FieldDepth:
			v += 0.8 * phase
		case FieldPressure:
			v += 80 * phase
		case FieldTemperature:
			v += 0.6 * phase
		case FieldLuminosity:
			v = math.Max(0, v+700*phase)
		}
		out[f] = v
	}
	return out, nil
}
