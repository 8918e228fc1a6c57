/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/oceancam/internal/events"
)

// Forwarder relays bus events to sinks. A failing sink is logged and never
// blocks the others or the publisher.
type Forwarder struct {
	bus       *events.Bus
	sinks     []Sink
	types     []events.EventType
	cameraUID string
	now       func() time.Time
	logger    zerolog.Logger
}

// NewForwarder relays the given event types; none means all.
func NewForwarder(bus *events.Bus, cameraUID string, sinks []Sink, types []events.EventType, logger zerolog.Logger) *Forwarder {
	if len(types) == 0 {
		types = events.AllTypes
	}
	return &Forwarder{
		bus:       bus,
		sinks:     sinks,
		types:     types,
		cameraUID: cameraUID,
		now:       time.Now,
		logger:    logger.With().Str("component", "eventbus").Logger(),
	}
}

// Run forwards until ctx is cancelled, then closes the sinks.
func (f *Forwarder) Run(ctx context.Context) error {
	if len(f.sinks) == 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	var wg sync.WaitGroup
	for _, et := range f.types {
		sub := f.bus.Subscribe(et)
		wg.Add(1)
		go func(et events.EventType, sub events.Subscriber) {
			defer wg.Done()
			defer f.bus.Unsubscribe(et, sub)
			for {
				select {
				case <-ctx.Done():
					return
				case payload, ok := <-sub:
					if !ok {
						return
					}
					f.forward(ctx, NewEnvelope(f.cameraUID, et, payload, f.now()))
				}
			}
		}(et, sub)
	}
	wg.Wait()

	for _, s := range f.sinks {
		if err := s.Close(); err != nil {
			f.logger.Warn().Err(err).Str("sink", s.Name()).Msg("close sink")
		}
	}
	return ctx.Err()
}

func (f *Forwarder) forward(ctx context.Context, env Envelope) {
	for _, s := range f.sinks {
		sendCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := s.Send(sendCtx, env)
		cancel()
		if err != nil {
			f.logger.Debug().Err(err).Str("sink", s.Name()).Str("event_type", string(env.EventType)).Msg("forward failed")
		}
	}
}
