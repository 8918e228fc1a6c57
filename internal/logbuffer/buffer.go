/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package logbuffer keeps recent log lines in memory for the control API.
package logbuffer

import (
	"encoding/json"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
)

// DefaultCapacity is used when New is given a non-positive size.
const DefaultCapacity = 5000

// LogEntry represents a single log entry.
type LogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Component string         `json:"component,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Buffer is a thread-safe ring buffer for log entries.
type Buffer struct {
	mu       sync.RWMutex
	entries  []LogEntry
	capacity int
	head     int
	count    int
}

// New creates a log buffer with the given capacity.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		entries:  make([]LogEntry, capacity),
		capacity: capacity,
	}
}

// Add adds a log entry to the buffer.
func (b *Buffer) Add(entry LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[b.head] = entry
	b.head = (b.head + 1) % b.capacity
	if b.count < b.capacity {
		b.count++
	}
}

// GetAll returns all log entries in chronological order.
func (b *Buffer) GetAll() []LogEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]LogEntry, b.count)
	start := 0
	if b.count == b.capacity {
		start = b.head
	}
	for i := 0; i < b.count; i++ {
		result[i] = b.entries[(start+i)%b.capacity]
	}
	return result
}

// Tail returns the newest n entries, oldest first. n <= 0 returns everything.
func (b *Buffer) Tail(n int) []LogEntry {
	all := b.GetAll()
	if n <= 0 || n >= len(all) {
		return all
	}
	return all[len(all)-n:]
}

// QueryParams filters Query results.
type QueryParams struct {
	Level      string    // exact level (debug, info, warn, error)
	Component  string    // exact component
	SessionID  string    // capture session_id field
	Search     string    // case-insensitive match in message, component and string fields
	Since      time.Time // only entries at or after this time
	Limit      int       // max entries (0 = all)
	Descending bool      // newest first
}

// Query returns log entries matching the filter criteria.
func (b *Buffer) Query(params QueryParams) []LogEntry {
	search := strings.ToLower(params.Search)
	filtered := lo.Filter(b.GetAll(), func(e LogEntry, _ int) bool {
		if params.Level != "" && e.Level != params.Level {
			return false
		}
		if params.Component != "" && e.Component != params.Component {
			return false
		}
		if params.SessionID != "" {
			if id, _ := e.Fields["session_id"].(string); id != params.SessionID {
				return false
			}
		}
		if !params.Since.IsZero() && e.Timestamp.Before(params.Since) {
			return false
		}
		if search != "" && !e.matches(search) {
			return false
		}
		return true
	})

	if params.Descending {
		slices.Reverse(filtered)
	}
	if params.Limit > 0 && len(filtered) > params.Limit {
		filtered = filtered[:params.Limit]
	}
	return filtered
}

func (e LogEntry) matches(lowerNeedle string) bool {
	if strings.Contains(strings.ToLower(e.Message), lowerNeedle) ||
		strings.Contains(strings.ToLower(e.Component), lowerNeedle) {
		return true
	}
	for _, v := range e.Fields {
		if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), lowerNeedle) {
			return true
		}
	}
	return false
}

// Stats returns buffer statistics.
type Stats struct {
	Capacity   int            `json:"capacity"`
	Count      int            `json:"count"`
	LevelCount map[string]int `json:"level_count"`
	Components []string       `json:"components"`
}

// Stats summarises the buffer contents.
func (b *Buffer) Stats() Stats {
	all := b.GetAll()
	components := lo.Uniq(lo.FilterMap(all, func(e LogEntry, _ int) (string, bool) {
		return e.Component, e.Component != ""
	}))
	slices.Sort(components)
	return Stats{
		Capacity:   b.capacity,
		Count:      len(all),
		LevelCount: lo.CountValuesBy(all, func(e LogEntry) string { return e.Level }),
		Components: components,
	}
}

// Clear empties the buffer.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.head = 0
	b.count = 0
}

// Writer wraps the buffer to implement io.Writer for zerolog.
type Writer struct {
	buffer   *Buffer
	fallback io.Writer
}

// NewWriter creates a writer that captures JSON log lines to the buffer.
func NewWriter(buffer *Buffer, fallback io.Writer) *Writer {
	return &Writer{buffer: buffer, fallback: fallback}
}

// Write implements io.Writer.
func (w *Writer) Write(p []byte) (n int, err error) {
	var raw map[string]any
	if err := json.Unmarshal(p, &raw); err == nil {
		w.buffer.Add(entryFrom(raw))
	}
	if w.fallback != nil {
		return w.fallback.Write(p)
	}
	return len(p), nil
}

func entryFrom(raw map[string]any) LogEntry {
	entry := LogEntry{Timestamp: time.Now(), Fields: make(map[string]any)}
	if lvl, ok := raw["level"].(string); ok {
		entry.Level = lvl
		delete(raw, "level")
	}
	if msg, ok := raw["message"].(string); ok {
		entry.Message = msg
		delete(raw, "message")
	}
	if comp, ok := raw["component"].(string); ok {
		entry.Component = comp
		delete(raw, "component")
	}
	switch ts := raw["time"].(type) {
	case float64:
		entry.Timestamp = time.Unix(int64(ts), 0)
	case string:
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			entry.Timestamp = t
		}
	}
	delete(raw, "time")
	for k, v := range raw {
		entry.Fields[k] = v
	}
	return entry
}
