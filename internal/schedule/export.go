/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package schedule

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/friendsincode/oceancam/internal/models"
)

// ExportICalResult contains the iCal export data.
type ExportICalResult struct {
	Data        []byte
	Filename    string
	ContentType string
}

// ExportToICal renders the schedule as a calendar so field crews can see the
// deployment plan on their phones.
func ExportToICal(cameraName string, slots []models.Slot, now time.Time) *ExportICalResult {
	var buf bytes.Buffer
	buf.WriteString("BEGIN:VCALENDAR\r\n")
	buf.WriteString("VERSION:2.0\r\n")
	buf.WriteString("PRODID:-//Oceancam//Schedule Export//EN\r\n")
	buf.WriteString(fmt.Sprintf("X-WR-CALNAME:%s Schedule\r\n", escapeICalText(cameraName)))
	buf.WriteString("CALSCALE:GREGORIAN\r\n")
	buf.WriteString("METHOD:PUBLISH\r\n")

	for i, slot := range slots {
		buf.WriteString("BEGIN:VEVENT\r\n")
		buf.WriteString(fmt.Sprintf("UID:%s-%d-%s@oceancam\r\n", slugify(cameraName), i, formatICalTime(slot.Start)))
		buf.WriteString(fmt.Sprintf("DTSTAMP:%s\r\n", formatICalTime(now)))
		buf.WriteString(fmt.Sprintf("DTSTART:%s\r\n", formatICalTime(slot.Start)))
		buf.WriteString(fmt.Sprintf("DTEND:%s\r\n", formatICalTime(slot.Stop)))
		buf.WriteString(fmt.Sprintf("SUMMARY:%s\r\n", escapeICalText(slotSummary(slot))))
		buf.WriteString(fmt.Sprintf("DESCRIPTION:%s\r\n", escapeICalText(slotDescription(slot))))
		buf.WriteString("END:VEVENT\r\n")
	}

	buf.WriteString("END:VCALENDAR\r\n")

	return &ExportICalResult{
		Data:        buf.Bytes(),
		Filename:    fmt.Sprintf("%s-schedule.ics", slugify(cameraName)),
		ContentType: "text/calendar; charset=utf-8",
	}
}

func slotSummary(slot models.Slot) string {
	switch slot.Mode {
	case models.ModeVideo:
		return "Video recording"
	case models.ModeUpload:
		return "Media upload"
	default:
		return fmt.Sprintf("Photos every %ds", slot.PhotoInterval)
	}
}

func slotDescription(slot models.Slot) string {
	if slot.Mode == models.ModeUpload {
		return "Upload captured media"
	}
	c := slot.Capture
	parts := []string{
		"resolution " + c.Resolution.String(),
		fmt.Sprintf("iso %d", c.ISO),
		"exposure " + string(c.ExposureMode),
		fmt.Sprintf("light %d%%", slot.LightDutyCycle),
	}
	if slot.Mode == models.ModeVideo && c.Framerate > 0 {
		parts = append(parts, fmt.Sprintf("%d fps", c.Framerate))
	}
	if slot.WiperEnabled {
		parts = append(parts, "wiper")
	}
	return strings.Join(parts, ", ")
}

func formatICalTime(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}

func escapeICalText(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, ";", "\\;")
	s = strings.ReplaceAll(s, ",", "\\,")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

func slugify(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, " ", "-")
	var result strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			result.WriteRune(r)
		}
	}
	return result.String()
}
