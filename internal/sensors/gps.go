/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package sensors

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// ErrNoFix is returned when the receiver has no position.
var ErrNoFix = errors.New("gps: no fix")

// GPSReceiver is a positioning device.
type GPSReceiver interface {
	HasFix() bool
	Position() (lat, lng float64, err error)
}

type gpsSource struct {
	name     string
	receiver GPSReceiver
}

// GPSSource adapts a receiver into a Source reporting latitude and longitude.
func GPSSource(name string, receiver GPSReceiver) Source {
	return &gpsSource{name: name, receiver: receiver}
}

func (g *gpsSource) Name() string    { return g.name }
func (g *gpsSource) Fields() []Field { return []Field{FieldLatitude, FieldLongitude} }

func (g *gpsSource) Read(context.Context) (Values, error) {
	if !g.receiver.HasFix() {
		return nil, ErrNoFix
	}
	lat, lng, err := g.receiver.Position()
	if err != nil {
		return nil, err
	}
	return Values{FieldLatitude: lat, FieldLongitude: lng}, nil
}

// NMEAReceiver tracks the latest RMC fix from an NMEA 0183 sentence stream,
// such as a GPS serial device.
type NMEAReceiver struct {
	mu  sync.RWMutex
	fix bool
	lat float64
	lng float64
}

// NewNMEAReceiver returns a receiver with no fix.
func NewNMEAReceiver() *NMEAReceiver {
	return &NMEAReceiver{}
}

// HasFix implements GPSReceiver.
func (n *NMEAReceiver) HasFix() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.fix
}

// Position implements GPSReceiver.
func (n *NMEAReceiver) Position() (float64, float64, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if !n.fix {
		return 0, 0, ErrNoFix
	}
	return n.lat, n.lng, nil
}

// Consume reads sentences until r is exhausted or ctx is cancelled.
// Malformed sentences are skipped.
func (n *NMEAReceiver) Consume(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n.Feed(scanner.Text())
	}
	return scanner.Err()
}

// Feed applies one sentence. Only RMC sentences change state.
func (n *NMEAReceiver) Feed(sentence string) {
	lat, lng, valid, err := parseRMC(sentence)
	if err != nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fix = valid
	if valid {
		n.lat, n.lng = lat, lng
	}
}

// parseRMC decodes $xxRMC,time,status,lat,N/S,lng,E/W,... into decimal
// degrees. The checksum, when present, is verified.
func parseRMC(sentence string) (lat, lng float64, valid bool, err error) {
	sentence = strings.TrimSpace(sentence)
	if !strings.HasPrefix(sentence, "$") {
		return 0, 0, false, errors.New("not a sentence")
	}
	body := sentence[1:]
	if i := strings.IndexByte(body, '*'); i >= 0 {
		want, perr := strconv.ParseUint(body[i+1:], 16, 8)
		if perr != nil {
			return 0, 0, false, fmt.Errorf("bad checksum: %w", perr)
		}
		body = body[:i]
		var sum byte
		for j := 0; j < len(body); j++ {
			sum ^= body[j]
		}
		if uint64(sum) != want {
			return 0, 0, false, errors.New("checksum mismatch")
		}
	}

	parts := strings.Split(body, ",")
	if len(parts) < 7 || len(parts[0]) < 5 || parts[0][2:] != "RMC" {
		return 0, 0, false, errors.New("not an RMC sentence")
	}
	if parts[2] != "A" {
		return 0, 0, false, nil
	}
	lat, err = parseCoord(parts[3], parts[4], 2)
	if err != nil {
		return 0, 0, false, err
	}
	lng, err = parseCoord(parts[5], parts[6], 3)
	if err != nil {
		return 0, 0, false, err
	}
	return lat, lng, true, nil
}

// parseCoord converts ddmm.mmmm (or dddmm.mmmm) with a hemisphere letter.
func parseCoord(value, hemi string, degDigits int) (float64, error) {
	if len(value) < degDigits+2 {
		return 0, fmt.Errorf("coordinate %q too short", value)
	}
	deg, err := strconv.ParseFloat(value[:degDigits], 64)
	if err != nil {
		return 0, err
	}
	minutes, err := strconv.ParseFloat(value[degDigits:], 64)
	if err != nil {
		return 0, err
	}
	out := deg + minutes/60
	switch hemi {
	case "N", "E":
	case "S", "W":
		out = -out
	default:
		return 0, fmt.Errorf("bad hemisphere %q", hemi)
	}
	return out, nil
}
