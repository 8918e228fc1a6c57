/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL           string
	Token         string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: "oceancam",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// NATSSink publishes to <prefix>.<camera>.<event_type>.
type NATSSink struct {
	conn   *nats.Conn
	prefix string
	logger zerolog.Logger
}

// NewNATSSink connects to NATS. The client keeps reconnecting in the
// background while the camera is out of range.
func NewNATSSink(cfg NATSConfig, logger zerolog.Logger) (*NATSSink, error) {
	logger = logger.With().Str("component", "eventbus_nats").Logger()
	opts := []nats.Option{
		nats.Name("oceancam"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}
	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = "oceancam"
	}
	return &NATSSink{conn: nc, prefix: prefix, logger: logger}, nil
}

// Subject returns the NATS subject for env.
func (s *NATSSink) Subject(env Envelope) string {
	return fmt.Sprintf("%s.%s.%s", s.prefix, env.CameraUID, env.EventType)
}

// Name implements Sink.
func (s *NATSSink) Name() string { return "nats" }

// Send implements Sink.
func (s *NATSSink) Send(_ context.Context, env Envelope) error {
	data, err := env.Marshal()
	if err != nil {
		return err
	}
	return s.conn.Publish(s.Subject(env), data)
}

// Close drains pending messages.
func (s *NATSSink) Close() error {
	return s.conn.Drain()
}
