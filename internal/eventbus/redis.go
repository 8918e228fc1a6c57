/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrCircuitOpen is returned while the Redis sink is backing off.
var ErrCircuitOpen = errors.New("redis sink: circuit open")

// RedisConfig contains Redis connection configuration.
type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	ChannelPrefix string

	DialTimeout  time.Duration
	WriteTimeout time.Duration

	// Circuit breaker
	MaxFailures   int
	RetryInterval time.Duration
}

// DefaultRedisConfig returns default Redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:          "localhost:6379",
		ChannelPrefix: "oceancam",
		DialTimeout:   5 * time.Second,
		WriteTimeout:  3 * time.Second,
		MaxFailures:   5,
		RetryInterval: 30 * time.Second,
	}
}

// RedisSink publishes to the <prefix>:<camera>:<event_type> channel. After
// MaxFailures consecutive errors it stops trying for RetryInterval.
type RedisSink struct {
	client *redis.Client
	prefix string
	logger zerolog.Logger
	now    func() time.Time

	mu        sync.Mutex
	failCount int
	maxFails  int
	retry     time.Duration
	openUntil time.Time
}

// NewRedisSink creates the sink. No connection is made until the first send.
func NewRedisSink(cfg RedisConfig, logger zerolog.Logger) *RedisSink {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     2,
		DialTimeout:  cfg.DialTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	return newRedisSink(client, cfg, logger)
}

func newRedisSink(client *redis.Client, cfg RedisConfig, logger zerolog.Logger) *RedisSink {
	prefix := cfg.ChannelPrefix
	if prefix == "" {
		prefix = "oceancam"
	}
	maxFails := cfg.MaxFailures
	if maxFails <= 0 {
		maxFails = 5
	}
	return &RedisSink{
		client:   client,
		prefix:   prefix,
		logger:   logger.With().Str("component", "eventbus_redis").Logger(),
		now:      time.Now,
		maxFails: maxFails,
		retry:    cfg.RetryInterval,
	}
}

// Channel returns the pub/sub channel for env.
func (s *RedisSink) Channel(env Envelope) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, env.CameraUID, env.EventType)
}

// Name implements Sink.
func (s *RedisSink) Name() string { return "redis" }

// Send implements Sink.
func (s *RedisSink) Send(ctx context.Context, env Envelope) error {
	if !s.allow() {
		return ErrCircuitOpen
	}
	data, err := env.Marshal()
	if err != nil {
		return err
	}
	if err := s.client.Publish(ctx, s.Channel(env), data).Err(); err != nil {
		s.recordFailure()
		return fmt.Errorf("publish: %w", err)
	}
	s.mu.Lock()
	s.failCount = 0
	s.mu.Unlock()
	return nil
}

func (s *RedisSink) allow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.now().Before(s.openUntil)
}

func (s *RedisSink) recordFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCount++
	if s.failCount >= s.maxFails {
		s.openUntil = s.now().Add(s.retry)
		s.failCount = 0
		s.logger.Warn().Dur("retry_in", s.retry).Msg("redis failure threshold reached, backing off")
	}
}

// Close implements Sink.
func (s *RedisSink) Close() error {
	return s.client.Close()
}
