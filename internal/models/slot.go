/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// SlotTimeLayout is the timestamp layout used by persisted schedules.
const SlotTimeLayout = "2006-01-02-15:04:05"

// Mode enumerates what a slot does while it is active.
type Mode string

const (
	ModePhoto  Mode = "photo"
	ModeVideo  Mode = "video"
	ModeUpload Mode = "upload"
)

// ExposureMode mirrors the camera exposure programs.
type ExposureMode string

const (
	ExposureAuto      ExposureMode = "auto"
	ExposureOff       ExposureMode = "off" // manual
	ExposureNight     ExposureMode = "night"
	ExposureBacklight ExposureMode = "backlight"
	ExposureSpotlight ExposureMode = "spotlight"
	ExposureSports    ExposureMode = "sports"
	ExposureSnow      ExposureMode = "snow"
	ExposureBeach     ExposureMode = "beach"
	ExposureVeryLong  ExposureMode = "verylong"
	ExposureFixedFPS  ExposureMode = "fixedfps"
	ExposureAntishake ExposureMode = "antishake"
	ExposureFireworks ExposureMode = "fireworks"
)

var exposureModes = map[ExposureMode]struct{}{
	ExposureAuto: {}, ExposureOff: {}, ExposureNight: {}, ExposureBacklight: {},
	ExposureSpotlight: {}, ExposureSports: {}, ExposureSnow: {}, ExposureBeach: {},
	ExposureVeryLong: {}, ExposureFixedFPS: {}, ExposureAntishake: {}, ExposureFireworks: {},
}

// Valid reports whether m is a known exposure mode.
func (m ExposureMode) Valid() bool {
	_, ok := exposureModes[m]
	return ok
}

// Resolution is a capture size in pixels.
type Resolution struct {
	Width  int `json:"x"`
	Height int `json:"y"`
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// CaptureParams holds the camera settings applied when a slot opens the device.
type CaptureParams struct {
	ISO                  int
	ShutterSpeed         int // microseconds, 0 = auto
	ExposureMode         ExposureMode
	ExposureCompensation int
	Resolution           Resolution
	Framerate            int // video only, 0 = driver default
}

// Slot is one scheduled activity window. Slots are built once by the schedule
// store and never modified afterwards.
type Slot struct {
	Start          time.Time
	Stop           time.Time
	Mode           Mode
	Capture        CaptureParams
	PhotoInterval  int // seconds
	LightDutyCycle int // 0-100
	WiperEnabled   bool
}

// Duration returns the length of the window.
func (s Slot) Duration() time.Duration {
	return s.Stop.Sub(s.Start)
}

// Contains reports whether t falls within [Start, Stop].
func (s Slot) Contains(t time.Time) bool {
	return !t.Before(s.Start) && !t.After(s.Stop)
}

// InterShotSleep is the pause between two photo captures.
// The capture itself accounts for roughly one second of the interval, so an
// interval of 1 can put several frames in the same second; their file names
// then carry a sequence suffix.
func (s Slot) InterShotSleep() time.Duration {
	if s.PhotoInterval <= 1 {
		return 0
	}
	return time.Duration(s.PhotoInterval-1) * time.Second
}

// Validation errors.
var (
	ErrSlotWindow     = errors.New("slot start must be before stop")
	ErrSlotMode       = errors.New("slot cannot be both video and upload")
	ErrSlotResolution = errors.New("resolution must be positive")
	ErrSlotFramerate  = errors.New("framerate must not be negative")
	ErrSlotInterval   = errors.New("photo interval must be at least 1 second")
	ErrSlotLight      = errors.New("light duty cycle must be within 0-100")
	ErrSlotISO        = errors.New("iso must not be negative")
	ErrSlotShutter    = errors.New("shutter speed must not be negative")
	ErrSlotExposure   = errors.New("unknown exposure mode")
	ErrSlotExpComp    = errors.New("exposure compensation must be within -25..25")
)

// Validate checks the slot invariants.
func (s Slot) Validate() error {
	if !s.Start.Before(s.Stop) {
		return ErrSlotWindow
	}
	switch s.Mode {
	case ModePhoto:
		if s.PhotoInterval < 1 {
			return ErrSlotInterval
		}
	case ModeVideo, ModeUpload:
	default:
		return fmt.Errorf("unknown mode %q", s.Mode)
	}
	if s.Mode == ModeUpload {
		// Camera settings are unused when uploading.
		return nil
	}
	c := s.Capture
	if c.Resolution.Width <= 0 || c.Resolution.Height <= 0 {
		return ErrSlotResolution
	}
	if c.Framerate < 0 {
		return ErrSlotFramerate
	}
	if c.ISO < 0 {
		return ErrSlotISO
	}
	if c.ShutterSpeed < 0 {
		return ErrSlotShutter
	}
	if !c.ExposureMode.Valid() {
		return fmt.Errorf("%w: %q", ErrSlotExposure, c.ExposureMode)
	}
	if c.ExposureCompensation < -25 || c.ExposureCompensation > 25 {
		return ErrSlotExpComp
	}
	if s.LightDutyCycle < 0 || s.LightDutyCycle > 100 {
		return ErrSlotLight
	}
	return nil
}

// SlotDescriptor is the persisted form of a slot, as pushed by the companion app
// and stored in schedule.json.
type SlotDescriptor struct {
	Start                string      `json:"start"`
	Stop                 string      `json:"stop"`
	ISO                  *int        `json:"iso,omitempty"`
	Frequency            *int        `json:"frequency,omitempty"`
	ShutterSpeed         *int        `json:"shutter_speed,omitempty"`
	Video                bool        `json:"video,omitempty"`
	Upload               bool        `json:"upload,omitempty"`
	Light                int         `json:"light,omitempty"`
	Wiper                bool        `json:"wiper,omitempty"`
	ExposureMode         string      `json:"exposure_mode,omitempty"`
	ExposureCompensation int         `json:"exposure_compensation,omitempty"`
	Framerate            int         `json:"framerate,omitempty"`
	Resolution           *Resolution `json:"resolution,omitempty"`

	// Set by the app alongside the first slot; not used by the scheduler.
	Date     string `json:"date,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

// Descriptor defaults.
const (
	DefaultISO           = 0
	DefaultPhotoInterval = 10
	DefaultShutterSpeed  = 0
	DefaultWidth         = 1920
	DefaultHeight        = 1080
)

// ToSlot parses and validates the descriptor. Timestamps are interpreted in loc.
func (d SlotDescriptor) ToSlot(loc *time.Location) (Slot, error) {
	if loc == nil {
		loc = time.Local
	}
	start, err := time.ParseInLocation(SlotTimeLayout, strings.TrimSpace(d.Start), loc)
	if err != nil {
		return Slot{}, fmt.Errorf("parse start: %w", err)
	}
	stop, err := time.ParseInLocation(SlotTimeLayout, strings.TrimSpace(d.Stop), loc)
	if err != nil {
		return Slot{}, fmt.Errorf("parse stop: %w", err)
	}
	if d.Video && d.Upload {
		return Slot{}, ErrSlotMode
	}

	mode := ModePhoto
	switch {
	case d.Video:
		mode = ModeVideo
	case d.Upload:
		mode = ModeUpload
	}

	exposure := ExposureMode(strings.ToLower(strings.TrimSpace(d.ExposureMode)))
	if exposure == "" {
		exposure = ExposureAuto
	}
	res := Resolution{Width: DefaultWidth, Height: DefaultHeight}
	if d.Resolution != nil {
		res = *d.Resolution
	}

	slot := Slot{
		Start: start,
		Stop:  stop,
		Mode:  mode,
		Capture: CaptureParams{
			ISO:                  intOr(d.ISO, DefaultISO),
			ShutterSpeed:         intOr(d.ShutterSpeed, DefaultShutterSpeed),
			ExposureMode:         exposure,
			ExposureCompensation: d.ExposureCompensation,
			Resolution:           res,
			Framerate:            d.Framerate,
		},
		PhotoInterval:  intOr(d.Frequency, DefaultPhotoInterval),
		LightDutyCycle: d.Light,
		WiperEnabled:   d.Wiper,
	}
	if err := slot.Validate(); err != nil {
		return Slot{}, err
	}
	return slot, nil
}

// Descriptor converts a slot back into its persisted form.
func (s Slot) Descriptor() SlotDescriptor {
	iso := s.Capture.ISO
	freq := s.PhotoInterval
	shutter := s.Capture.ShutterSpeed
	res := s.Capture.Resolution
	return SlotDescriptor{
		Start:                s.Start.Format(SlotTimeLayout),
		Stop:                 s.Stop.Format(SlotTimeLayout),
		ISO:                  &iso,
		Frequency:            &freq,
		ShutterSpeed:         &shutter,
		Video:                s.Mode == ModeVideo,
		Upload:               s.Mode == ModeUpload,
		Light:                s.LightDutyCycle,
		Wiper:                s.WiperEnabled,
		ExposureMode:         string(s.Capture.ExposureMode),
		ExposureCompensation: s.Capture.ExposureCompensation,
		Framerate:            s.Capture.Framerate,
		Resolution:           &res,
	}
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}
