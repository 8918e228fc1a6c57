/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package upload

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/oceancam/internal/clock"
	"github.com/friendsincode/oceancam/internal/events"
	"github.com/friendsincode/oceancam/internal/media"
	"github.com/friendsincode/oceancam/internal/models"
	"github.com/friendsincode/oceancam/internal/storage"
)

var t0 = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

type recordingUploader struct {
	t       *testing.T
	err     error
	paths   []string
	entries [][]string
}

func (u *recordingUploader) Upload(_ context.Context, path string) (string, error) {
	u.paths = append(u.paths, path)
	zr, err := zip.OpenReader(path)
	if err != nil {
		u.t.Errorf("uploaded file is not a zip: %v", err)
		return "", err
	}
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	zr.Close()
	u.entries = append(u.entries, names)
	if u.err != nil {
		return "", u.err
	}
	return "s3://oocam-store/reef-01/" + filepath.Base(path), nil
}

type fakeStorage struct{ err error }

func (f fakeStorage) Check(context.Context) (media.Usage, error) { return media.Usage{}, f.err }

func uploadSlot(stop time.Time) models.Slot {
	return models.Slot{Start: t0, Stop: stop, Mode: models.ModeUpload}
}

func newOrchestrator(t *testing.T, mediaDir string, root StorageChecker, up storage.Uploader, clk clock.Clock, bus events.Publisher) *Orchestrator {
	t.Helper()
	return New(Config{
		CameraName: "reef-01",
		MediaDir:   mediaDir,
		ArchiveDir: filepath.Join(t.TempDir(), "archives"),
	}, root, up, clk, bus, zerolog.Nop())
}

func TestEmptyMediaUploadsOnceThenIdles(t *testing.T) {
	clk := clock.NewFake(t0)
	up := &recordingUploader{t: t}
	o := newOrchestrator(t, t.TempDir(), fakeStorage{}, up, clk, nil)

	res := o.Run(context.Background(), uploadSlot(t0.Add(5*time.Second)))

	if res.Err != nil || !res.Uploaded {
		t.Fatalf("result = %+v", res)
	}
	if len(up.paths) != 1 {
		t.Fatalf("uploads = %d, want 1", len(up.paths))
	}
	if len(up.entries[0]) != 0 {
		t.Errorf("archive entries = %v, want none", up.entries[0])
	}
	if got := filepath.Base(up.paths[0]); got != "reef-01_2026-03-14_09-00-00.zip" {
		t.Errorf("archive name = %q", got)
	}
	if !clk.Now().Equal(t0.Add(5 * time.Second)) {
		t.Errorf("returned at %v, want stop", clk.Now())
	}
	for _, d := range clk.Sleeps() {
		if d != time.Second {
			t.Errorf("idle sleep %v, want 1s ticks", d)
		}
	}
	if _, err := os.Stat(up.paths[0]); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("archive kept after successful upload: %v", err)
	}
}

func TestArchiveContainsRecognisedMedia(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"reef-01_img2026-03-14-09-00-01.jpg", "clip.h264", "sensors.jsonl", "notes.doc"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.MkdirAll(filepath.Join(dir, "day2"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "day2", "b.mp4"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	up := &recordingUploader{t: t}
	o := newOrchestrator(t, dir, fakeStorage{}, up, clock.NewFake(t0), nil)
	res := o.UploadOnce(context.Background())

	if res.Err != nil {
		t.Fatalf("upload: %v", res.Err)
	}
	want := []string{"clip.h264", "day2/b.mp4", "reef-01_img2026-03-14-09-00-01.jpg", "sensors.jsonl"}
	got := up.entries[0]
	if len(got) != len(want) {
		t.Fatalf("entries = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d = %q, want %q", i, got[i], want[i])
		}
	}
	if res.Archive.Files != 4 {
		t.Errorf("files = %d", res.Archive.Files)
	}
	if res.Location != "s3://oocam-store/reef-01/reef-01_2026-03-14_09-00-00.zip" {
		t.Errorf("location = %q", res.Location)
	}
}

func TestUnmountedStorageSkipsUploadButCompletesSlot(t *testing.T) {
	clk := clock.NewFake(t0)
	up := &recordingUploader{t: t}
	bus := events.NewBus()
	finished := bus.Subscribe(events.EventUploadFinished)
	o := newOrchestrator(t, t.TempDir(), fakeStorage{err: media.ErrNotMounted}, up, clk, bus)

	res := o.Run(context.Background(), uploadSlot(t0.Add(3*time.Second)))

	if !errors.Is(res.Err, media.ErrNotMounted) {
		t.Fatalf("err = %v, want ErrNotMounted", res.Err)
	}
	if len(up.paths) != 0 {
		t.Errorf("uploaded despite missing storage")
	}
	if !clk.Now().Equal(t0.Add(3 * time.Second)) {
		t.Errorf("did not idle until stop, now = %v", clk.Now())
	}
	select {
	case p := <-finished:
		if p["result"] != "failure" {
			t.Errorf("payload = %v", p)
		}
	default:
		t.Error("no upload.finished event")
	}
}

func TestFailedUploadKeepsArchive(t *testing.T) {
	up := &recordingUploader{t: t, err: errors.New("connection reset")}
	o := newOrchestrator(t, t.TempDir(), fakeStorage{}, up, clock.NewFake(t0), nil)

	res := o.UploadOnce(context.Background())

	if res.Err == nil || res.Uploaded {
		t.Fatalf("result = %+v", res)
	}
	if _, err := os.Stat(res.Archive.Path); err != nil {
		t.Errorf("archive removed after failed upload: %v", err)
	}
}

func TestDisabledBackend(t *testing.T) {
	o := newOrchestrator(t, t.TempDir(), nil, nil, clock.NewFake(t0), nil)

	res := o.UploadOnce(context.Background())
	if !errors.Is(res.Err, storage.ErrDisabled) {
		t.Errorf("err = %v, want ErrDisabled", res.Err)
	}
}

func TestCancelStopsIdle(t *testing.T) {
	clk := clock.NewFake(t0)
	ctx, cancel := context.WithCancel(context.Background())
	clk.OnSleep(func(time.Time) { cancel() })
	o := newOrchestrator(t, t.TempDir(), fakeStorage{}, &recordingUploader{t: t}, clk, nil)

	res := o.Run(ctx, uploadSlot(t0.Add(time.Hour)))

	if !errors.Is(res.Err, context.Canceled) {
		t.Errorf("err = %v", res.Err)
	}
	if len(clk.Sleeps()) != 1 {
		t.Errorf("sleeps = %d, want 1", len(clk.Sleeps()))
	}
}
