/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package capture

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/friendsincode/oceancam/internal/models"
)

const videoStampLayout = "2006-01-02 15:04:05"

type labelled struct {
	label string
	value float64
}

// Annotation renders the on-frame text for a reading. Fields appear in a
// fixed order and a field is omitted exactly when it holds the sentinel.
func Annotation(cameraName string, r models.SensorReading) string {
	var b strings.Builder
	if cameraName != "" {
		fmt.Fprintf(&b, "Camera: %s ", cameraName)
	}
	write := func(fields ...labelled) {
		for _, f := range fields {
			if f.value == models.Sentinel {
				continue
			}
			fmt.Fprintf(&b, "%s: %s ", f.label, formatValue(f.value))
		}
	}

	write(
		labelled{"Pressure", r.Pressure},
		labelled{"Temperature", r.Temperature},
		labelled{"Depth", r.Depth},
		labelled{"Luminosity", r.Luminosity},
	)
	if r.GPS.Valid() {
		fmt.Fprintf(&b, "GPS: %s,%s ", formatValue(r.GPS.Lat), formatValue(r.GPS.Lng))
	}
	write(
		labelled{"Conductivity", r.Conductivity},
		labelled{"TDS", r.TotalDissolved},
		labelled{"Salinity", r.Salinity},
		labelled{"Specific Gravity", r.SpecificGravity},
		labelled{"Dissolved Oxygen", r.DissolvedOxygen},
		labelled{"Percentage Oxygen", r.PercentageOxygen},
		labelled{"pH", r.PH},
	)
	return b.String()
}

// VideoAnnotation is the per-second overlay: timestamp and framerate
// followed by the sensor annotation.
func VideoAnnotation(at time.Time, framerate int, sensorText string) string {
	return strings.TrimSpace(fmt.Sprintf("%s @ %d fps %s", at.Format(videoStampLayout), framerate, sensorText))
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
