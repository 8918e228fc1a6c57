/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus forwards in-process events to external brokers so a
// surface buoy or shore station can follow the camera live.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/friendsincode/oceancam/internal/events"
)

// Envelope is the wire form of a forwarded event.
type Envelope struct {
	MessageID string           `json:"message_id"`
	CameraUID string           `json:"camera_uid"`
	EventType events.EventType `json:"event_type"`
	Timestamp time.Time        `json:"timestamp"`
	Payload   events.Payload   `json:"payload"`
}

// NewEnvelope wraps payload for cameraUID.
func NewEnvelope(cameraUID string, eventType events.EventType, payload events.Payload, at time.Time) Envelope {
	return Envelope{
		MessageID: uuid.NewString(),
		CameraUID: cameraUID,
		EventType: eventType,
		Timestamp: at.UTC(),
		Payload:   payload,
	}
}

// Marshal encodes the envelope as JSON.
func (e Envelope) Marshal() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", e.EventType, err)
	}
	return data, nil
}

// Sink delivers envelopes to one broker.
type Sink interface {
	Name() string
	Send(ctx context.Context, env Envelope) error
	Close() error
}
