package web

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"dealercal/internal/backup"
	appLog "dealercal/internal/log"
	"dealercal/internal/store"
)

// POST /api/import runs an ICS import synchronously and returns its report.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if s.importer == nil {
		writeError(w, http.StatusServiceUnavailable, "no calendar sources configured")
		return
	}

	rep, err := s.importer.Run(r.Context(), s.now())
	s.importMu.Lock()
	s.lastImport = &rep
	s.importMu.Unlock()

	if err != nil {
		appLog.Error("manual import failed", err)
		writeJSON(w, http.StatusBadGateway, rep)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// GET /api/import returns the report of the last manual import.
func (s *Server) handleLastImport(w http.ResponseWriter, _ *http.Request) {
	s.importMu.RLock()
	rep := s.lastImport
	s.importMu.RUnlock()

	if rep == nil {
		writeError(w, http.StatusNotFound, "no import has run yet")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// GET /api/backups?limit=N
func (s *Server) handleListBackups(w http.ResponseWriter, r *http.Request) {
	if !s.backupsEnabled(w) {
		return
	}
	limit := parseIntDefault(r.URL.Query().Get("limit"), 20)

	list, err := s.backups.List(r.Context(), limit)
	if err != nil {
		appLog.Error("backup list failed", err)
		writeError(w, http.StatusInternalServerError, "failed to list backups")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// POST /api/backups?label=...
func (s *Server) handleCreateBackup(w http.ResponseWriter, r *http.Request) {
	if !s.backupsEnabled(w) {
		return
	}
	label := r.URL.Query().Get("label")
	if label == "" {
		label = "manual " + s.now().UTC().Format(time.RFC3339)
	}

	meta, err := s.backups.Save(r.Context(), label, s.store.Snapshot())
	if err != nil {
		appLog.Error("backup save failed", err)
		writeError(w, http.StatusInternalServerError, "failed to save backup")
		return
	}
	appLog.Info("backup saved", "id", meta.ID, "events", meta.Events)
	writeJSON(w, http.StatusCreated, meta)
}

// POST /api/backups/{id}/restore replaces the store with the backup.
func (s *Server) handleRestoreBackup(w http.ResponseWriter, r *http.Request) {
	if !s.backupsEnabled(w) {
		return
	}
	id, ok := backupID(w, r)
	if !ok {
		return
	}

	snap, err := s.backups.Load(r.Context(), id)
	if err != nil {
		writeBackupError(w, err)
		return
	}
	if err := s.store.Restore(snap); err != nil {
		if errors.Is(err, store.ErrInvalidEvent) {
			writeError(w, http.StatusUnprocessableEntity, "backup contains invalid events")
			return
		}
		appLog.Error("restore failed", err, "id", id)
		writeError(w, http.StatusInternalServerError, "failed to restore backup")
		return
	}

	appLog.Info("backup restored", "id", id, "events", len(snap.Events))
	writeJSON(w, http.StatusOK, restoreResponse{ID: id, Events: len(snap.Events)})
}

// DELETE /api/backups/{id}
func (s *Server) handleDeleteBackup(w http.ResponseWriter, r *http.Request) {
	if !s.backupsEnabled(w) {
		return
	}
	id, ok := backupID(w, r)
	if !ok {
		return
	}
	if err := s.backups.Delete(r.Context(), id); err != nil {
		writeBackupError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) backupsEnabled(w http.ResponseWriter) bool {
	if s.backups == nil {
		writeError(w, http.StatusServiceUnavailable, "backups require a database")
		return false
	}
	return true
}

func backupID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid backup id")
		return 0, false
	}
	return id, true
}

func writeBackupError(w http.ResponseWriter, err error) {
	if errors.Is(err, backup.ErrNotFound) {
		writeError(w, http.StatusNotFound, "backup not found")
		return
	}
	appLog.Error("backup operation failed", err)
	writeError(w, http.StatusInternalServerError, "backup failure")
}

type restoreResponse struct {
	ID     int64 `json:"id"`
	Events int   `json:"events"`
}
