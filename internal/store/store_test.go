package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealercal/internal/model"
)

func TestCreateGetUpdateDelete(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)

	created, err := s.Create(model.Event{
		Title:     "Test drive",
		Customer:  "J. Doe",
		StartDate: "2024-01-09",
		EndDate:   "2024-01-09",
		StartTime: "10:00",
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	got, err := s.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	got.AllDay = true
	got.EndDate = "2024-01-10"
	got.StartTime = "10:00"
	updated, err := s.Update(got)
	require.NoError(t, err)
	assert.Empty(t, updated.StartTime)
	got, err = s.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, updated, got)
	assert.Equal(t, "2024-01-10", got.EndDate)

	require.NoError(t, s.Delete(created.ID))
	_, err = s.Get(created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(created.ID), ErrNotFound)
	_, err = s.Update(got)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		ev      model.Event
		wantErr bool
	}{
		{"ok all day", model.Event{StartDate: "2024-01-01", EndDate: "2024-01-03", AllDay: true}, false},
		{"ok timed", model.Event{StartDate: "2024-01-01", EndDate: "2024-01-01", StartTime: "09:15"}, false},
		{"bad start", model.Event{StartDate: "2024/01/01", EndDate: "2024-01-01"}, true},
		{"bad end", model.Event{StartDate: "2024-01-01", EndDate: ""}, true},
		{"end before start", model.Event{StartDate: "2024-01-02", EndDate: "2024-01-01"}, true},
		{"bad time", model.Event{StartDate: "2024-01-01", EndDate: "2024-01-01", StartTime: "9am"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.ev)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidEvent), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestListAndInRange(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)

	mk := func(start, end, at string) {
		_, err := s.Create(model.Event{StartDate: start, EndDate: end, StartTime: at, AllDay: at == ""})
		require.NoError(t, err)
	}
	mk("2024-01-10", "2024-01-10", "14:00")
	mk("2024-01-10", "2024-01-10", "09:00")
	mk("2024-01-01", "2024-01-08", "")
	mk("2024-01-20", "2024-01-22", "")

	all := s.List()
	require.Len(t, all, 4)
	assert.Equal(t, "2024-01-01", all[0].StartDate)
	assert.Equal(t, "09:00", all[1].StartTime)
	assert.Equal(t, "14:00", all[2].StartTime)

	week := s.InRange("2024-01-08", "2024-01-14")
	assert.Len(t, week, 3)

	assert.Len(t, s.InRange("", "2024-01-05"), 1)
	assert.Len(t, s.InRange("2024-01-21", ""), 1)
}

func TestReplaceSource(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)

	local, err := s.Create(model.Event{StartDate: "2024-01-10", EndDate: "2024-01-10", AllDay: true})
	require.NoError(t, err)

	require.NoError(t, s.ReplaceSource("holidays", []model.Event{
		{InstanceKey: "a", StartDate: "2024-01-01", EndDate: "2024-01-01", AllDay: true},
		{InstanceKey: "b", StartDate: "2024-01-15", EndDate: "2024-01-15", AllDay: true},
		{InstanceKey: "bad", StartDate: "nope", EndDate: "2024-01-15"},
	}))
	assert.Len(t, s.List(), 3)

	ev, err := s.Get(ImportedID("holidays", "a"))
	require.NoError(t, err)
	assert.Equal(t, "holidays", ev.SourceID)

	require.NoError(t, s.ReplaceSource("holidays", []model.Event{
		{InstanceKey: "c", StartDate: "2024-02-01", EndDate: "2024-02-01", AllDay: true},
	}))
	all := s.List()
	require.Len(t, all, 2)
	_, err = s.Get(ImportedID("holidays", "a"))
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(local.ID)
	assert.NoError(t, err)

	assert.ErrorIs(t, s.ReplaceSource("", nil), ErrInvalidEvent)
}

func TestPersistAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "events.json")

	s, err := Open(path)
	require.NoError(t, err)
	created, err := s.Create(model.Event{Title: "Tent sale", StartDate: "2024-03-01", EndDate: "2024-03-03", AllDay: true})
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	reopened, err := Open(path)
	require.NoError(t, err)
	got, err := reopened.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)
}

func TestFailedWriteLeavesStateUnchanged(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	s, err := Open(filepath.Join(dir, "events.json"))
	require.NoError(t, err)

	kept, err := s.Create(model.Event{Title: "Tent sale", StartDate: "2024-03-01", EndDate: "2024-03-03", AllDay: true})
	require.NoError(t, err)
	before := s.List()

	// Replace the data directory with a plain file so every write fails.
	require.NoError(t, os.RemoveAll(dir))
	require.NoError(t, os.WriteFile(dir, []byte("x"), 0o600))

	_, err = s.Create(model.Event{StartDate: "2024-03-05", EndDate: "2024-03-05", AllDay: true})
	assert.Error(t, err)
	assert.Equal(t, before, s.List())

	changed := kept
	changed.Title = "Tent sale (extended)"
	_, err = s.Update(changed)
	assert.Error(t, err)
	assert.Equal(t, before, s.List())

	assert.Error(t, s.Delete(kept.ID))
	assert.Equal(t, before, s.List())

	assert.Error(t, s.ReplaceSource("holidays", []model.Event{
		{InstanceKey: "a", StartDate: "2024-01-01", EndDate: "2024-01-01", AllDay: true},
	}))
	assert.Equal(t, before, s.List())

	assert.Error(t, s.Restore(Snapshot{}))
	assert.Equal(t, before, s.List())
}

func TestOpenCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	_, err := Open(path)
	assert.Error(t, err)
}

func TestSnapshotRestore(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)
	_, err = s.Create(model.Event{StartDate: "2024-01-10", EndDate: "2024-01-12", AllDay: true})
	require.NoError(t, err)

	snap := s.Snapshot()
	require.Len(t, snap.Events, 1)
	assert.Equal(t, snapshotVersion, snap.Version)

	_, err = s.Create(model.Event{StartDate: "2024-02-10", EndDate: "2024-02-12", AllDay: true})
	require.NoError(t, err)
	require.Len(t, s.List(), 2)

	require.NoError(t, s.Restore(snap))
	assert.Equal(t, snap.Events, s.List())

	assert.Error(t, s.Restore(Snapshot{Version: snapshotVersion + 1}))
	assert.ErrorIs(t, s.Restore(Snapshot{Events: []model.Event{{StartDate: "2024-01-01", EndDate: "2024-01-01"}}}), ErrInvalidEvent)
	assert.Len(t, s.List(), 1)
}
