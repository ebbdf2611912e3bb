// Package store keeps dashboard events in memory and persists them to a
// single JSON file.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	appLog "dealercal/internal/log"
	"dealercal/internal/model"
)

var (
	ErrNotFound     = errors.New("store: event not found")
	ErrInvalidEvent = errors.New("store: invalid event")
)

// snapshotVersion is bumped when the on-disk shape changes.
const snapshotVersion = 1

// Snapshot is the full serialisable state of the store. It is what gets
// written to disk and what backups carry.
type Snapshot struct {
	Version int           `json:"version"`
	SavedAt time.Time     `json:"saved_at"`
	Events  []model.Event `json:"events"`
}

// Store is safe for concurrent use.
type Store struct {
	path string

	mu     sync.RWMutex
	events map[string]model.Event
}

// Open loads the store from path. A missing file yields an empty store.
// An empty path keeps everything in memory.
func Open(path string) (*Store, error) {
	s := &Store{
		path:   path,
		events: make(map[string]model.Event),
	}
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("store: read %s: %w", path, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("store: decode %s: %w", path, err)
	}
	for _, ev := range snap.Events {
		if ev.ID == "" {
			continue
		}
		s.events[ev.ID] = ev
	}

	appLog.Info("store loaded", "path", path, "events", len(s.events))
	return s, nil
}

// Validate checks the fields the layout relies on.
func Validate(ev model.Event) error {
	start, err := time.Parse(model.DateLayout, ev.StartDate)
	if err != nil {
		return fmt.Errorf("%w: start_date %q", ErrInvalidEvent, ev.StartDate)
	}
	end, err := time.Parse(model.DateLayout, ev.EndDate)
	if err != nil {
		return fmt.Errorf("%w: end_date %q", ErrInvalidEvent, ev.EndDate)
	}
	if end.Before(start) {
		return fmt.Errorf("%w: end_date before start_date", ErrInvalidEvent)
	}
	if ev.AllDay {
		return nil
	}
	if ev.StartTime != "" {
		if _, err := time.Parse(model.TimeLayout, ev.StartTime); err != nil {
			return fmt.Errorf("%w: start_time %q", ErrInvalidEvent, ev.StartTime)
		}
	}
	return nil
}

// Create stores a new local event under a fresh ID.
func (s *Store) Create(ev model.Event) (model.Event, error) {
	if err := Validate(ev); err != nil {
		return model.Event{}, err
	}
	ev.ID = uuid.NewString()
	if ev.AllDay {
		ev.StartTime = ""
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	next := maps.Clone(s.events)
	next[ev.ID] = ev
	if err := s.commitLocked(next); err != nil {
		return model.Event{}, err
	}
	return ev, nil
}

// Update replaces an existing event and returns it as stored.
func (s *Store) Update(ev model.Event) (model.Event, error) {
	if err := Validate(ev); err != nil {
		return model.Event{}, err
	}
	if ev.AllDay {
		ev.StartTime = ""
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[ev.ID]; !ok {
		return model.Event{}, ErrNotFound
	}
	next := maps.Clone(s.events)
	next[ev.ID] = ev
	if err := s.commitLocked(next); err != nil {
		return model.Event{}, err
	}
	return ev, nil
}

func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[id]; !ok {
		return ErrNotFound
	}
	next := maps.Clone(s.events)
	delete(next, id)
	return s.commitLocked(next)
}

func (s *Store) Get(id string) (model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.events[id]
	if !ok {
		return model.Event{}, ErrNotFound
	}
	return ev, nil
}

// List returns all events ordered by start date, start time and ID.
func (s *Store) List() []model.Event {
	s.mu.RLock()
	out := make([]model.Event, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev)
	}
	s.mu.RUnlock()

	sortEvents(out)
	return out
}

// InRange returns the events intersecting the inclusive [from, to] window.
// An empty bound is open.
func (s *Store) InRange(from, to string) []model.Event {
	all := s.List()
	out := make([]model.Event, 0, len(all))
	for _, ev := range all {
		if from != "" && ev.EndDate < from {
			continue
		}
		if to != "" && ev.StartDate > to {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// ImportedID derives the ID of an imported event from its source and
// instance key, so re-imports keep IDs stable.
func ImportedID(sourceID, instanceKey string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(sourceID+"\x00"+instanceKey)).String()
}

// ReplaceSource swaps every imported event of sourceID for events.
func (s *Store) ReplaceSource(sourceID string, events []model.Event) error {
	if sourceID == "" {
		return fmt.Errorf("%w: empty source id", ErrInvalidEvent)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]model.Event, len(s.events)+len(events))
	for id, ev := range s.events {
		if ev.SourceID != sourceID {
			next[id] = ev
		}
	}
	for _, ev := range events {
		if err := Validate(ev); err != nil {
			appLog.Error("store: skipping invalid imported event", err, "source", sourceID, "instance", ev.InstanceKey)
			continue
		}
		ev.SourceID = sourceID
		ev.ID = ImportedID(sourceID, ev.InstanceKey)
		next[ev.ID] = ev
	}
	return s.commitLocked(next)
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	return Snapshot{
		Version: snapshotVersion,
		SavedAt: time.Now().UTC(),
		Events:  s.List(),
	}
}

// Restore replaces the whole state with snap.
func (s *Store) Restore(snap Snapshot) error {
	if snap.Version > snapshotVersion {
		return fmt.Errorf("store: snapshot version %d is newer than supported %d", snap.Version, snapshotVersion)
	}

	next := make(map[string]model.Event, len(snap.Events))
	for _, ev := range snap.Events {
		if ev.ID == "" {
			return fmt.Errorf("%w: event without id in snapshot", ErrInvalidEvent)
		}
		if err := Validate(ev); err != nil {
			return err
		}
		next[ev.ID] = ev
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked(next)
}

// commitLocked writes next to disk and only then makes it the current
// state, so a failed write leaves the store unchanged. Caller must hold s.mu.
func (s *Store) commitLocked(next map[string]model.Event) error {
	if err := s.persist(next); err != nil {
		return fmt.Errorf("store: persist: %w", err)
	}
	s.events = next
	return nil
}

func (s *Store) persist(state map[string]model.Event) error {
	if s.path == "" {
		return nil
	}

	events := make([]model.Event, 0, len(state))
	for _, ev := range state {
		events = append(events, ev)
	}
	sortEvents(events)

	data, err := json.MarshalIndent(Snapshot{
		Version: snapshotVersion,
		SavedAt: time.Now().UTC(),
		Events:  events,
	}, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(s.path, data)
}

// writeFileAtomic writes via a temp file in the same directory and renames
// it over path, leaving the result with 0600 permissions.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".dealercal-store-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func sortEvents(events []model.Event) {
	sort.Slice(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if a.StartDate != b.StartDate {
			return a.StartDate < b.StartDate
		}
		if a.StartTime != b.StartTime {
			return a.StartTime < b.StartTime
		}
		return a.ID < b.ID
	})
}
