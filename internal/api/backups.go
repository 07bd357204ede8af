package api

import (
	"errors"
	"net/http"

	"arkmanager/internal/backup"
	"arkmanager/internal/lock"
)

func (api *Server) handleListBackups(w http.ResponseWriter, r *http.Request) {
	s, ok := api.snapshot(w, r)
	if !ok {
		return
	}
	backups, err := api.BackupManager.ListBackups(s)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, backups)
}

func (api *Server) handleDeleteBackup(w http.ResponseWriter, r *http.Request) {
	s, ok := api.snapshot(w, r)
	if !ok {
		return
	}
	err := api.BackupManager.DeleteBackup(s, r.PathValue("name"))
	switch {
	case errors.Is(err, backup.ErrBackupNotFound):
		writeError(w, http.StatusNotFound, "backup not found")
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRestoreBackup unpacks an archive over the install. It takes the
// profile lock without waiting so it never races an orchestration run.
func (api *Server) handleRestoreBackup(w http.ResponseWriter, r *http.Request) {
	s, ok := api.snapshot(w, r)
	if !ok {
		return
	}

	m := lock.ForPath(api.Container.Config.LocksPath, s.InstallDir)
	owned, err := m.Acquire(r.Context(), 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !owned {
		writeError(w, http.StatusConflict, "another operation is running on this profile")
		return
	}
	defer m.Release()

	if proc, err := api.Container.Supervisor.FindProcess(r.Context(), s); err == nil && proc != nil {
		writeError(w, http.StatusConflict, "stop the server before restoring a backup")
		return
	}

	err = api.BackupManager.RestoreBackup(s, r.PathValue("name"))
	switch {
	case errors.Is(err, backup.ErrBackupNotFound):
		writeError(w, http.StatusNotFound, "backup not found")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	api.log.Info().Str("profile", s.Name).Str("backup", r.PathValue("name")).Msg("Backup restored")
	w.WriteHeader(http.StatusNoContent)
}
