/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package sensorlog

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/oceancam/internal/models"
)

var t0 = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func reading(at time.Time, depth float64) models.SensorReading {
	r := models.NewSensorReading(at)
	r.Depth = depth
	return r
}

func TestFileRecorderAppendsLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "sensor_log.jsonl")
	rec := NewFileRecorder(path)

	for i := 0; i < 3; i++ {
		if err := rec.Record(context.Background(), reading(t0.Add(time.Duration(i)*time.Second), float64(i))); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var got []models.SensorReading
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r models.SensorReading
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		got = append(got, r)
	}
	if len(got) != 3 {
		t.Fatalf("lines = %d, want 3", len(got))
	}
	if got[2].Depth != 2 || got[2].Pressure != models.Sentinel {
		t.Errorf("last line = %+v", got[2])
	}
}

type failing struct{ calls int }

func (f *failing) Record(context.Context, models.SensorReading) error {
	f.calls++
	return errors.New("disk full")
}

func TestMultiTriesEveryRecorder(t *testing.T) {
	a, b := &failing{}, &failing{}
	err := Multi{a, Nop{}, b}.Record(context.Background(), reading(t0, 1))
	if err == nil {
		t.Fatal("expected joined error")
	}
	if a.calls != 1 || b.calls != 1 {
		t.Errorf("calls = %d, %d", a.calls, b.calls)
	}
}

func TestDBRecorder(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatal(err)
	}
	sqlDB.SetMaxOpenConns(1) // keep the in-memory database on one connection
	if err := db.AutoMigrate(&models.SensorRecord{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	rec := NewDBRecorder(db, "reef-01")
	other := NewDBRecorder(db, "reef-02")
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := rec.Record(ctx, reading(t0.Add(time.Duration(i)*time.Minute), float64(i))); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if err := other.Record(ctx, reading(t0, 9)); err != nil {
		t.Fatal(err)
	}

	rows, err := rec.Since(ctx, t0.Add(time.Minute), 10)
	if err != nil {
		t.Fatalf("since: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0].Depth != 1 || rows[1].Depth != 2 || rows[0].CameraUID != "reef-01" {
		t.Errorf("rows = %+v", rows)
	}
}
