/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/friendsincode/oceancam/internal/events"
)

// MQTTConfig contains broker settings.
type MQTTConfig struct {
	Broker      string // e.g. tcp://buoy.local:1883
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
}

// MQTTSink publishes to <prefix>/<camera>/<event_type>; the latest loop
// state is retained so late subscribers see it.
type MQTTSink struct {
	client mqtt.Client
	prefix string
	qos    byte
	logger zerolog.Logger
}

// NewMQTTSink connects to the broker. Auto-reconnect stays on after the
// first connection succeeds.
func NewMQTTSink(cfg MQTTConfig, logger zerolog.Logger) (*MQTTSink, error) {
	logger = logger.With().Str("component", "eventbus_mqtt").Logger()

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn().Err(err).Msg("mqtt connection lost")
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect mqtt broker: %w", token.Error())
	}

	prefix := cfg.TopicPrefix
	if prefix == "" {
		prefix = "oceancam"
	}
	return &MQTTSink{client: client, prefix: prefix, qos: cfg.QoS, logger: logger}, nil
}

// Topic returns the MQTT topic for env.
func (s *MQTTSink) Topic(env Envelope) string {
	return fmt.Sprintf("%s/%s/%s", s.prefix, env.CameraUID, env.EventType)
}

// Name implements Sink.
func (s *MQTTSink) Name() string { return "mqtt" }

// Send implements Sink.
func (s *MQTTSink) Send(ctx context.Context, env Envelope) error {
	data, err := env.Marshal()
	if err != nil {
		return err
	}
	retained := env.EventType == events.EventLoopState
	token := s.client.Publish(s.Topic(env), s.qos, retained, data)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements Sink.
func (s *MQTTSink) Close() error {
	s.client.Disconnect(250)
	return nil
}
