/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package power

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/oceancam/internal/clock"
)

func TestWittyPiCommands(t *testing.T) {
	at := time.Date(2026, 3, 14, 6, 58, 30, 0, time.UTC)
	clk := clock.NewFake(at)

	var got []string
	w := NewWittyPi("/opt/wittypi/wittycam.sh", clk, zerolog.Nop())
	w.Run = func(_ context.Context, name string, args ...string) ([]byte, error) {
		got = append(got, name+" "+strings.Join(args, " "))
		return nil, nil
	}

	ctx := context.Background()
	if err := w.ScheduleWake(ctx, at); err != nil {
		t.Fatal(err)
	}
	if err := w.PowerDown(ctx, at); err != nil {
		t.Fatal(err)
	}
	if err := w.ClearSchedule(ctx); err != nil {
		t.Fatal(err)
	}
	if err := w.Reboot(ctx, 5*time.Minute); err != nil {
		t.Fatal(err)
	}

	want := []string{
		"sh /opt/wittypi/wittycam.sh 5 14 06:58:30",
		"sh /opt/wittypi/wittycam.sh 4 14 06:58",
		"sh /opt/wittypi/wittycam.sh 10 6",
		"reboot ",
	}
	if len(got) != len(want) {
		t.Fatalf("commands = %q", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("command %d = %q, want %q", i, got[i], want[i])
		}
	}
	if sleeps := clk.Sleeps(); len(sleeps) != 1 || sleeps[0] != 5*time.Minute {
		t.Errorf("reboot cooldown sleeps = %v", sleeps)
	}
}

func TestWittyPiReportsScriptOutput(t *testing.T) {
	w := NewWittyPi("wittycam.sh", clock.NewFake(time.Now()), zerolog.Nop())
	w.Run = func(context.Context, string, ...string) ([]byte, error) {
		return []byte("RTC not found\n"), errors.New("exit status 1")
	}
	err := w.PowerDown(context.Background(), time.Now())
	if err == nil || !strings.Contains(err.Error(), "RTC not found") {
		t.Errorf("err = %v", err)
	}
}

func TestRebootHonoursCancel(t *testing.T) {
	w := NewWittyPi("wittycam.sh", clock.NewFake(time.Now()), zerolog.Nop())
	called := false
	w.Run = func(context.Context, string, ...string) ([]byte, error) {
		called = true
		return nil, nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Reboot(ctx, time.Minute); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
	if called {
		t.Error("reboot ran after cancel")
	}
}
