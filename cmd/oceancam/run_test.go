/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/oceancam/internal/config"
	"github.com/friendsincode/oceancam/internal/logbuffer"
)

func TestBusyHTTPPortDoesNotStopControlLoop(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer busy.Close()

	dir := t.TempDir()
	c := config.Defaults()
	c.Paths.MediaDir = dir
	c.Paths.SchedulePath = filepath.Join(dir, "schedule.json")
	c.Paths.SensorLogPath = ""
	c.Database.Backend = "none"
	c.HTTP.Bind = "127.0.0.1"
	c.HTTP.Port = busy.Addr().(*net.TCPAddr).Port
	c.Loop.PollInterval = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rt, err := buildRuntime(ctx, c, logbuffer.New(16), zerolog.Nop())
	if err != nil {
		t.Fatalf("buildRuntime: %v", err)
	}
	defer rt.Close()

	const runFor = 300 * time.Millisecond
	time.AfterFunc(runFor, cancel)
	started := time.Now()
	if err := rt.Run(ctx); err != nil {
		t.Fatalf("Run = %v, want nil after cancel", err)
	}
	if elapsed := time.Since(started); elapsed < runFor {
		t.Fatalf("Run returned after %v, before cancellation", elapsed)
	}
	if rt.scheduler.Status().LastTick.IsZero() {
		t.Error("control loop never ticked")
	}
}

func TestBestEffortSwallowsFailures(t *testing.T) {
	run := bestEffort("http", zerolog.Nop(), func() error { return net.ErrClosed })
	if err := run(); err != nil {
		t.Fatalf("bestEffort returned %v", err)
	}
}
