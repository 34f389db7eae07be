// Package store keeps the latest snapshot of every polled instrument.
package store

import (
	"dataweb-backend/internal/snapshot"
	"slices"
	"strings"
	"sync"
)

const unknownRunState = "UNKNOWN"

// Entry is what is known about an instrument. Snapshot is nil while the instrument is
// unavailable.
type Entry struct {
	Snapshot *snapshot.InstrumentSnapshot
}

func (e Entry) Available() bool {
	return e.Snapshot != nil
}

// Store is safe for concurrent use, each instrument has a single writer: its poller.
type Store struct {
	mutex   sync.RWMutex
	entries map[string]Entry
}

func New() *Store {
	return &Store{entries: make(map[string]Entry)}
}

func (s *Store) Put(name string, snap *snapshot.InstrumentSnapshot) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.entries[name] = Entry{Snapshot: snap}
}

// MarkUnavailable replaces whatever is known about an instrument with the unavailable marker.
func (s *Store) MarkUnavailable(name string) {
	s.Put(name, nil)
}

// Remove forgets an instrument that left the roster.
func (s *Store) Remove(name string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.entries, name)
}

// Get returns the entry of an instrument, ok is false when the instrument was never polled.
func (s *Store) Get(name string) (entry Entry, ok bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	entry, ok = s.entries[name]
	return entry, ok
}

// Names lists every known instrument in case-insensitive order.
func (s *Store) Names() []string {
	s.mutex.RLock()
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	s.mutex.RUnlock()

	slices.SortFunc(names, func(a, b string) int {
		if c := strings.Compare(strings.ToLower(a), strings.ToLower(b)); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	return names
}

type SummaryItem struct {
	Name     string
	IsUp     bool
	RunState string
}

// Summary reports whether every instrument is up and its run state, in case-insensitive name
// order.
func (s *Store) Summary() []SummaryItem {
	names := s.Names()

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	out := make([]SummaryItem, 0, len(names))
	for _, name := range names {
		entry, ok := s.entries[name]
		if !ok {
			continue
		}
		item := SummaryItem{
			Name:     name,
			IsUp:     entry.Available(),
			RunState: unknownRunState,
		}
		runState, ok := entry.Snapshot.Status("RUNSTATE")
		if ok {
			item.RunState = runState.Display
		}
		out = append(out, item)
	}
	return out
}
