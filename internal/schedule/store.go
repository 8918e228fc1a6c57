/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package schedule holds the validated list of capture windows.
package schedule

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/friendsincode/oceancam/internal/models"
)

// ValidationError reports the first descriptor that failed to load.
type ValidationError struct {
	Index int
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("slot %d: %v", e.Index, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Store is an ordered, wholesale-replaceable collection of slots. Readers
// always observe either the previous or the new schedule, never a mix.
type Store struct {
	mu    sync.RWMutex
	slots []models.Slot
	raw   []models.SlotDescriptor
	loc   *time.Location
}

// NewStore creates an empty store. Descriptor timestamps are parsed in loc
// (time.Local when nil).
func NewStore(loc *time.Location) *Store {
	if loc == nil {
		loc = time.Local
	}
	return &Store{loc: loc}
}

// Load parses and validates every descriptor. If any entry is invalid the
// store keeps its previous contents.
func (s *Store) Load(descs []models.SlotDescriptor) error {
	slots, err := s.parse(descs)
	if err != nil {
		return err
	}
	s.install(slots, descs)
	return nil
}

func (s *Store) parse(descs []models.SlotDescriptor) ([]models.Slot, error) {
	slots := make([]models.Slot, 0, len(descs))
	for i, d := range descs {
		slot, err := d.ToSlot(s.loc)
		if err != nil {
			return nil, &ValidationError{Index: i, Err: err}
		}
		slots = append(slots, slot)
	}
	return slots, nil
}

func (s *Store) install(slots []models.Slot, descs []models.SlotDescriptor) {
	raw := make([]models.SlotDescriptor, len(descs))
	copy(raw, descs)

	s.mu.Lock()
	s.slots = slots
	s.raw = raw
	s.mu.Unlock()
}

// Clear drops every slot.
func (s *Store) Clear() {
	s.mu.Lock()
	s.slots = nil
	s.raw = nil
	s.mu.Unlock()
}

// Len returns the number of slots.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.slots)
}

// Slots returns a snapshot of the schedule in store order.
func (s *Store) Slots() []models.Slot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Slot, len(s.slots))
	copy(out, s.slots)
	return out
}

// Descriptors returns the descriptors the current schedule was loaded from.
func (s *Store) Descriptors() []models.SlotDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.SlotDescriptor, len(s.raw))
	copy(out, s.raw)
	return out
}

// Slot returns the slot at index i.
func (s *Store) Slot(i int) (models.Slot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.slots) {
		return models.Slot{}, false
	}
	return s.slots[i], true
}

// ActiveSlot returns the index of the first slot, in store order, whose
// window contains now.
func (s *Store) ActiveSlot(now time.Time) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i, slot := range s.slots {
		if slot.Contains(now) {
			return i, true
		}
	}
	return -1, false
}

// NextFutureSlot returns the slot with the earliest start at or after now.
// Equal starts resolve to the earlier slot in store order.
func (s *Store) NextFutureSlot(now time.Time) (models.Slot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	best := -1
	for i, slot := range s.slots {
		if slot.Start.Before(now) {
			continue
		}
		if best == -1 || slot.Start.Before(s.slots[best].Start) {
			best = i
		}
	}
	if best == -1 {
		return models.Slot{}, false
	}
	return s.slots[best], true
}

// SecondsUntil returns the whole seconds from now until the slot starts,
// rounded down. It is negative once the start has passed.
func SecondsUntil(slot models.Slot, now time.Time) int {
	return int(math.Floor(slot.Start.Sub(now).Seconds()))
}
