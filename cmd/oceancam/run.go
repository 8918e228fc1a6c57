/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/friendsincode/oceancam/internal/logbuffer"
	"github.com/friendsincode/oceancam/internal/scheduler"
	"github.com/friendsincode/oceancam/internal/telemetry"
	"github.com/friendsincode/oceancam/internal/version"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the camera",
	Long:  "Start the control loop, sensor poller, HTTP API and event forwarders. The process exits after scheduling a power-down.",
	RunE:  runCamera,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runCamera(cmd *cobra.Command, args []string) error {
	logs := logbuffer.New(logbuffer.DefaultCapacity)
	if err := loadConfigWithBuffer(logs); err != nil {
		return err
	}

	logger.Info().
		Str("version", version.Version).
		Str("camera", cfg.Camera.Name).
		Str("hardware", cfg.Hardware.Mode).
		Msg("oceancam starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracerProvider, err := telemetry.InitTracer(ctx, telemetry.TracerConfig{
		ServiceName:    "oceancam",
		ServiceVersion: version.Version,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		Enabled:        cfg.Tracing.Enabled,
		SampleRate:     cfg.Tracing.SampleRate,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown tracer provider")
		}
	}()

	rt, err := buildRuntime(ctx, cfg, logs, logger)
	if err != nil {
		return fmt.Errorf("initialize camera: %w", err)
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Error().Err(err).Msg("shutdown cleanup failed")
		}
	}()

	err = rt.Run(ctx)
	switch {
	case errors.Is(err, scheduler.ErrPoweredDown):
		logger.Info().Msg("power-down scheduled, exiting")
		return nil
	case err != nil:
		return err
	}
	logger.Info().Msg("oceancam stopped")
	return nil
}

// Run starts every component and blocks until one fails, the loop powers
// down, or ctx is cancelled. Cancellation is not an error.
func (rt *runtime) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return ignoreCancel(rt.poller.Run(ctx)) })
	g.Go(func() error { return ignoreCancel(rt.scheduler.Run(ctx)) })
	// The API and forwarders serve operators; losing them must not stop capture.
	g.Go(bestEffort("http", rt.logger, func() error { return rt.server.Run(ctx) }))
	g.Go(bestEffort("forwarder", rt.logger, func() error { return rt.forwarder.Run(ctx) }))

	if rt.hw.gps != nil {
		g.Go(func() error {
			f, err := os.Open(rt.cfg.Hardware.GPSDevice)
			if err != nil {
				// GPS is optional; readings carry the sentinel without it.
				rt.logger.Warn().Err(err).Str("device", rt.cfg.Hardware.GPSDevice).Msg("gps unavailable")
				return nil
			}
			go func() {
				<-ctx.Done()
				f.Close()
			}()
			if err := rt.hw.gps.Consume(ctx, f); err != nil && ctx.Err() == nil {
				rt.logger.Warn().Err(err).Msg("gps stream ended")
			}
			return nil
		})
	}

	return g.Wait()
}

// bestEffort wraps a component whose failure is logged and swallowed.
func bestEffort(name string, log zerolog.Logger, run func() error) func() error {
	return func() error {
		if err := ignoreCancel(run()); err != nil {
			log.Error().Err(err).Str("component", name).Msg("component stopped, capture continues")
		}
		return nil
	}
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
