/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/oceancam/internal/models"
)

// libcamera exposure profiles for the picamera-era modes.
var exposureProfiles = map[models.ExposureMode]string{
	models.ExposureSports:    "sport",
	models.ExposureAntishake: "short",
	models.ExposureFireworks: "long",
	models.ExposureNight:     "long",
	models.ExposureVeryLong:  "long",
}

const stopTimeout = 10 * time.Second

// LibcameraDevice shells out to libcamera-still and libcamera-vid.
type LibcameraDevice struct {
	StillBinary string
	VideoBinary string

	logger zerolog.Logger

	mu   sync.Mutex
	held bool
}

// NewLibcameraDevice returns a device using the standard binaries on PATH.
func NewLibcameraDevice(logger zerolog.Logger) *LibcameraDevice {
	return &LibcameraDevice{
		StillBinary: "libcamera-still",
		VideoBinary: "libcamera-vid",
		logger:      logger.With().Str("component", "camera").Logger(),
	}
}

// Open implements Device. Both binaries must be present since the handle
// may be used for stills or video.
func (d *LibcameraDevice) Open(_ context.Context, params models.CaptureParams) (Handle, error) {
	for _, bin := range []string{d.StillBinary, d.VideoBinary} {
		if _, err := exec.LookPath(bin); err != nil {
			return nil, fmt.Errorf("camera: %w", err)
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.held {
		return nil, ErrBusy
	}
	d.held = true
	d.logger.Debug().Str("resolution", params.Resolution.String()).Msg("camera opened")
	return &libcameraHandle{dev: d, params: params}, nil
}

func (d *LibcameraDevice) release() {
	d.mu.Lock()
	d.held = false
	d.mu.Unlock()
}

type libcameraHandle struct {
	dev    *LibcameraDevice
	params models.CaptureParams

	mu      sync.Mutex
	closed  bool
	rec     *recorder
	sidecar *os.File
}

// recorder is a running libcamera-vid process. done is closed once the
// process has exited and err holds its wait result.
type recorder struct {
	cmd    *exec.Cmd
	stderr bytes.Buffer
	done   chan struct{}
	err    error
}

func (r *recorder) exited() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// failure describes an exit the session did not ask for.
func (r *recorder) failure() error {
	msg := bytes.TrimSpace(r.stderr.Bytes())
	if r.err != nil {
		return fmt.Errorf("%w: %v: %s", ErrRecorderExited, r.err, msg)
	}
	return fmt.Errorf("%w: %s", ErrRecorderExited, msg)
}

// interrupted reports whether err is the exit caused by our SIGINT.
func interrupted(err error) bool {
	if err == nil {
		return true
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	return ok && status.Signaled() && status.Signal() == syscall.SIGINT
}

func (h *libcameraHandle) commonArgs() []string {
	p := h.params
	args := []string{
		"--nopreview",
		"--width", strconv.Itoa(p.Resolution.Width),
		"--height", strconv.Itoa(p.Resolution.Height),
	}
	if p.ISO > 0 {
		args = append(args, "--gain", strconv.FormatFloat(float64(p.ISO)/100, 'f', 2, 64))
	}
	if p.ShutterSpeed > 0 {
		args = append(args, "--shutter", strconv.Itoa(p.ShutterSpeed))
	}
	if p.ExposureCompensation != 0 {
		// picamera steps are 1/6 stop.
		args = append(args, "--ev", strconv.FormatFloat(float64(p.ExposureCompensation)/6, 'f', 2, 64))
	}
	if profile, ok := exposureProfiles[p.ExposureMode]; ok {
		args = append(args, "--exposure", profile)
	}
	return args
}

func (h *libcameraHandle) CaptureFrame(ctx context.Context, path, annotation string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return os.ErrClosed
	}
	args := append(h.commonArgs(), "--immediate", "-t", "1", "-o", path)
	if annotation != "" {
		args = append(args, "--exif", "IFD0.ImageDescription="+annotation)
	}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, h.dev.StillBinary, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("capture still: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}
	return nil
}

func (h *libcameraHandle) StartRecording(_ context.Context, path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return os.ErrClosed
	}
	if h.rec != nil {
		return fmt.Errorf("camera: already recording")
	}
	sidecar, err := os.OpenFile(SidecarPath(path), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open annotation sidecar: %w", err)
	}

	args := h.commonArgs()
	if h.params.Framerate > 0 {
		args = append(args, "--framerate", strconv.Itoa(h.params.Framerate))
	}
	args = append(args, "-t", "0", "--codec", "h264", "-o", path)
	rec := &recorder{done: make(chan struct{})}
	// Not bound to a request context: the recording outlives the call.
	rec.cmd = exec.Command(h.dev.VideoBinary, args...)
	rec.cmd.Stderr = &rec.stderr
	if err := rec.cmd.Start(); err != nil {
		_ = sidecar.Close()
		return fmt.Errorf("start recording: %w", err)
	}
	go func() {
		rec.err = rec.cmd.Wait()
		close(rec.done)
	}()
	h.rec = rec
	h.sidecar = sidecar
	return nil
}

// SetAnnotation appends to the sidecar. It fails once the recorder has
// exited, which is how a mid-slot crash reaches the session.
func (h *libcameraHandle) SetAnnotation(text string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rec == nil || h.sidecar == nil {
		return ErrNotRecording
	}
	if h.rec.exited() {
		return h.rec.failure()
	}
	_, err := fmt.Fprintln(h.sidecar, text)
	return err
}

func (h *libcameraHandle) StopRecording() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopLocked()
}

func (h *libcameraHandle) stopLocked() error {
	if h.rec == nil {
		return ErrNotRecording
	}
	rec := h.rec
	h.rec = nil
	defer func() {
		if h.sidecar != nil {
			_ = h.sidecar.Close()
			h.sidecar = nil
		}
	}()

	// -t 0 records until interrupted, so any earlier exit is a failure.
	if rec.exited() {
		return rec.failure()
	}

	// libcamera-vid finalises the stream on SIGINT.
	_ = rec.cmd.Process.Signal(syscall.SIGINT)
	select {
	case <-rec.done:
	case <-time.After(stopTimeout):
		_ = rec.cmd.Process.Kill()
		<-rec.done
		return fmt.Errorf("%w: no exit within %s of interrupt", ErrRecorderExited, stopTimeout)
	}
	if !interrupted(rec.err) {
		return rec.failure()
	}
	return nil
}

func (h *libcameraHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	var err error
	if h.rec != nil {
		err = h.stopLocked()
	}
	h.dev.release()
	return err
}
