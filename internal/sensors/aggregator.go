/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package sensors

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/friendsincode/oceancam/internal/clock"
	"github.com/friendsincode/oceancam/internal/models"
	"github.com/friendsincode/oceancam/internal/telemetry"
)

// Aggregator polls every source once and merges the results.
type Aggregator struct {
	sources []Source
	clock   clock.Clock
	logger  zerolog.Logger
}

// NewAggregator creates an aggregator over sources. Earlier sources win when
// two report the same field.
func NewAggregator(clk clock.Clock, logger zerolog.Logger, sources ...Source) *Aggregator {
	return &Aggregator{
		sources: sources,
		clock:   clk,
		logger:  logger.With().Str("component", "sensors").Logger(),
	}
}

// Fields reports the distinct fields the configured sources can provide.
func (a *Aggregator) Fields() []Field {
	return lo.Uniq(lo.FlatMap(a.sources, func(s Source, _ int) []Field {
		return s.Fields()
	}))
}

// ReadAll makes one attempt per source. A failed or panicking source leaves
// its fields at the sentinel.
func (a *Aggregator) ReadAll(ctx context.Context) models.SensorReading {
	reading := models.NewSensorReading(a.clock.Now())
	filled := make(map[Field]bool, len(AllFields))

	for _, src := range a.sources {
		values, err := a.readOne(ctx, src)
		if err != nil {
			telemetry.SensorReadFailuresTotal.WithLabelValues(src.Name()).Inc()
			a.logger.Warn().Err(err).Str("source", src.Name()).Msg("sensor read failed")
			continue
		}
		for _, field := range src.Fields() {
			v, ok := values[field]
			if !ok || filled[field] {
				continue
			}
			if target := field.target(&reading); target != nil {
				*target = v
				filled[field] = true
			}
		}
	}

	// A half-present fix is no fix.
	if !reading.GPS.Valid() {
		reading.GPS = models.GPS{Lat: models.Sentinel, Lng: models.Sentinel}
	}

	telemetry.SensorReadsTotal.Inc()
	return reading
}

func (a *Aggregator) readOne(ctx context.Context, src Source) (values Values, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return src.Read(ctx)
}
