/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package sensors

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/oceancam/internal/events"
	"github.com/friendsincode/oceancam/internal/models"
)

// Poller refreshes readings on a fixed interval and keeps the latest one for
// the API and event stream. Reads are serialized so devices never see two
// concurrent transactions.
type Poller struct {
	reader   Reader
	bus      events.Publisher
	interval time.Duration
	logger   zerolog.Logger

	readMu sync.Mutex

	mu     sync.RWMutex
	latest models.SensorReading
	have   bool
}

// NewPoller wraps reader.
func NewPoller(reader Reader, bus events.Publisher, interval time.Duration, logger zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if bus == nil {
		bus = events.Nop{}
	}
	return &Poller{
		reader:   reader,
		bus:      bus,
		interval: interval,
		logger:   logger.With().Str("component", "sensor_poller").Logger(),
	}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info().Dur("interval", p.interval).Msg("sensor poller started")
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.ReadAll(ctx)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("sensor poller stopping")
			return ctx.Err()
		case <-ticker.C:
			p.ReadAll(ctx)
		}
	}
}

// ReadAll takes a fresh reading, caches it and publishes it.
func (p *Poller) ReadAll(ctx context.Context) models.SensorReading {
	p.readMu.Lock()
	reading := p.reader.ReadAll(ctx)
	p.readMu.Unlock()

	p.mu.Lock()
	p.latest = reading
	p.have = true
	p.mu.Unlock()

	p.bus.Publish(events.EventSensorReading, events.Payload{"reading": reading})
	return reading
}

// Latest returns the most recent reading, if any.
func (p *Poller) Latest() (models.SensorReading, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest, p.have
}
