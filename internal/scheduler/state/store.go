/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package state keeps the control loop's recent run history in memory.
package state

import (
	"sync"
	"time"

	"github.com/friendsincode/oceancam/internal/models"
)

// DefaultCapacity bounds the history.
const DefaultCapacity = 128

// Outcome is how a dispatched run ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFault     Outcome = "fault"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// Run records one dispatched slot.
type Run struct {
	SlotStart  time.Time   `json:"slot_start"`
	SlotStop   time.Time   `json:"slot_stop"`
	Mode       models.Mode `json:"mode"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	Outcome    Outcome     `json:"outcome"`
	Frames     int         `json:"frames,omitempty"`
	Location   string      `json:"location,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// Matches reports whether the run was for slot.
func (r Run) Matches(slot models.Slot) bool {
	return r.SlotStart.Equal(slot.Start) && r.SlotStop.Equal(slot.Stop) && r.Mode == slot.Mode
}

// Store is a bounded, concurrency-safe run history.
type Store struct {
	mu       sync.RWMutex
	recent   []Run
	capacity int
}

// NewStore creates a history holding at most capacity runs.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{recent: make([]Run, 0, capacity), capacity: capacity}
}

// Add appends a run, dropping the oldest when full.
func (s *Store) Add(run Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.recent) == s.capacity {
		copy(s.recent, s.recent[1:])
		s.recent = s.recent[:len(s.recent)-1]
	}
	s.recent = append(s.recent, run)
}

// Recent returns a snapshot, oldest first.
func (s *Store) Recent() []Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Run, len(s.recent))
	copy(out, s.recent)
	return out
}

// Last returns the newest run.
func (s *Store) Last() (Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.recent) == 0 {
		return Run{}, false
	}
	return s.recent[len(s.recent)-1], true
}

// Prune removes runs that finished before cutoff.
func (s *Store) Prune(cutoff time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	filtered := s.recent[:0]
	for _, r := range s.recent {
		if r.FinishedAt.After(cutoff) {
			filtered = append(filtered, r)
		}
	}
	s.recent = filtered
}
