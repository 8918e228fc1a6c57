/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"time"

	ws "nhooyr.io/websocket"

	"github.com/friendsincode/oceancam/internal/events"
	"github.com/friendsincode/oceancam/internal/telemetry"
)

const eventPingInterval = 15 * time.Second

type typedPayload struct {
	eventType events.EventType
	payload   events.Payload
}

// handleEvents streams bus events to a websocket client. ?types=a,b narrows
// the stream; the default is every event type.
func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	if a.deps.Bus == nil {
		writeError(w, http.StatusServiceUnavailable, "events_unavailable")
		return
	}

	eventTypes := parseEventTypes(r.URL.Query().Get("types"))
	if len(eventTypes) == 0 {
		eventTypes = events.AllTypes
	}

	conn, err := ws.Accept(w, r, &ws.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		a.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	telemetry.APIWebSocketConnections.Inc()
	defer telemetry.APIWebSocketConnections.Dec()

	// The client never sends; CloseRead handles control frames and cancels
	// ctx when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	merged := make(chan typedPayload, 16)
	for _, eventType := range eventTypes {
		sub := a.deps.Bus.Subscribe(eventType)
		defer a.deps.Bus.Unsubscribe(eventType, sub)
		go forward(ctx, eventType, sub, merged)
	}

	ticker := time.NewTicker(eventPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "context cancelled")
			return
		case <-ticker.C:
			if err := conn.Write(ctx, ws.MessageText, []byte(`{"type":"ping"}`)); err != nil {
				a.logger.Debug().Err(err).Msg("websocket ping failed")
				return
			}
		case ev := <-merged:
			if err := writeEvent(ctx, conn, ev.eventType, ev.payload); err != nil {
				a.logger.Debug().Err(err).Msg("websocket write failed")
				return
			}
		}
	}
}

// forward copies one subscription into the merged stream until ctx ends or
// the subscription is closed.
func forward(ctx context.Context, eventType events.EventType, sub events.Subscriber, out chan<- typedPayload) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-sub:
			if !ok {
				return
			}
			select {
			case out <- typedPayload{eventType: eventType, payload: payload}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *ws.Conn, eventType events.EventType, payload events.Payload) error {
	data, err := json.Marshal(map[string]any{
		"type":    eventType,
		"payload": payload,
	})
	if err != nil {
		return err
	}
	return conn.Write(ctx, ws.MessageText, data)
}

// parseEventTypes splits a comma list, dropping unknown types.
func parseEventTypes(raw string) []events.EventType {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]events.EventType, 0, len(parts))
	for _, part := range parts {
		t := events.EventType(strings.TrimSpace(part))
		if t == "" || !slices.Contains(events.AllTypes, t) {
			continue
		}
		out = append(out, t)
	}
	return out
}
