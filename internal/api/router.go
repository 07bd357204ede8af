// Package api is the daemon's HTTP surface: profile management, asynchronous
// orchestration runs, the RCON console and per-profile event streams.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"arkmanager/internal/app"
	"arkmanager/internal/backup"
	"arkmanager/internal/domain"
	"arkmanager/internal/lifecycle"
	"arkmanager/internal/profile"
	"arkmanager/internal/rcon"
	"arkmanager/internal/status"
	"arkmanager/internal/storage"
	"arkmanager/internal/ws"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Server struct {
	Container     *app.Container
	Registry      *profile.Registry
	Orchestrator  *lifecycle.Orchestrator
	Store         *storage.GormStore
	BackupManager *backup.Manager
	HubManager    *ws.HubManager
	Rcon          *rcon.Manager
	Board         *status.Board
	Runs          *RunTracker

	log zerolog.Logger
}

func NewAPIServer(ctx context.Context, container *app.Container) *Server {
	return &Server{
		Container:     container,
		Registry:      container.Registry,
		Orchestrator:  container.Orchestrator,
		Store:         container.Store,
		BackupManager: container.BackupManager,
		HubManager:    container.HubManager,
		Rcon:          container.Rcon,
		Board:         container.Board,
		Runs:          NewRunTracker(ctx),
		log:           log.With().Str("component", "api").Logger(),
	}
}

func (api *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /profiles", api.handleListProfiles)
	mux.HandleFunc("POST /profiles", api.handleCreateProfile)
	mux.HandleFunc("GET /profiles/{id}", api.handleGetProfile)
	mux.HandleFunc("PUT /profiles/{id}", api.handleUpdateProfile)
	mux.HandleFunc("DELETE /profiles/{id}", api.handleDeleteProfile)

	mux.HandleFunc("GET /profiles/{id}/status", api.handleGetStatus)
	mux.HandleFunc("GET /profiles/{id}/players", api.handleGetPlayers)
	mux.HandleFunc("POST /profiles/{id}/rcon", api.handleRcon)

	mux.HandleFunc("POST /profiles/{id}/backup", api.handleBackup)
	mux.HandleFunc("POST /profiles/{id}/shutdown", api.handleShutdown)
	mux.HandleFunc("POST /profiles/{id}/stop", api.handleStop)
	mux.HandleFunc("POST /profiles/{id}/start", api.handleStart)
	mux.HandleFunc("POST /profiles/{id}/update", api.handleUpdateProfileFiles)

	mux.HandleFunc("GET /profiles/{id}/backups", api.handleListBackups)
	mux.HandleFunc("POST /profiles/{id}/backups/{name}/restore", api.handleRestoreBackup)
	mux.HandleFunc("DELETE /profiles/{id}/backups/{name}", api.handleDeleteBackup)

	mux.HandleFunc("GET /profiles/{id}/config/{file}", api.handleGetConfigFile)
	mux.HandleFunc("PUT /profiles/{id}/config/{file}", api.handleSaveConfigFile)

	mux.HandleFunc("GET /branches", api.handleListBranches)
	mux.HandleFunc("POST /branches/update", api.handleUpdateBranch)

	mux.HandleFunc("GET /runs", api.handleListRuns)
	mux.HandleFunc("GET /runs/{id}", api.handleGetRun)
	mux.HandleFunc("POST /runs/{id}/cancel", api.handleCancelRun)

	mux.HandleFunc("GET /settings/{key}", api.handleGetSetting)
	mux.HandleFunc("PUT /settings/{key}", api.handleSetSetting)

	mux.HandleFunc("GET /ws/profiles/{id}/events", api.handleEvents)

	return logMiddleware(api.log, api.corsMiddleware(mux))
}

// Start serves until ctx is done, then stops accepting requests and cancels
// in-flight runs.
func (api *Server) Start(ctx context.Context, listenAddr string) error {
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		api.log.Info().Str("addr", listenAddr).Msg("API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	api.Runs.Shutdown()
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// snapshot resolves the {id} path value, writing a 404 when it is unknown.
func (api *Server) snapshot(w http.ResponseWriter, r *http.Request) (domain.ProfileSnapshot, bool) {
	id := r.PathValue("id")
	s, ok := api.Registry.Snapshot(id)
	if !ok {
		writeError(w, http.StatusNotFound, "profile not found")
	}
	return s, ok
}

func (api *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	s, ok := api.snapshot(w, r)
	if !ok {
		return
	}
	u, ok := api.Board.Get(s.ID)
	if !ok {
		u = domain.ServerStatusUpdate{Status: domain.StatusUnknown}
	}
	writeJSON(w, http.StatusOK, u)
}

func (api *Server) handleGetPlayers(w http.ResponseWriter, r *http.Request) {
	s, ok := api.snapshot(w, r)
	if !ok {
		return
	}
	session, ok := api.Rcon.Lookup(s.ID)
	if !ok {
		writeJSON(w, http.StatusOK, []domain.PlayerInfo{})
		return
	}
	writeJSON(w, http.StatusOK, session.Players())
}

func (api *Server) handleRcon(w http.ResponseWriter, r *http.Request) {
	s, ok := api.snapshot(w, r)
	if !ok {
		return
	}
	var req struct {
		Command string `json:"command"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Command == "" {
		writeError(w, http.StatusBadRequest, "command is required")
		return
	}

	session, ok := api.Rcon.GetSession(s)
	if !ok {
		writeError(w, http.StatusConflict, "rcon is disabled for this profile")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	lines, err := session.IssueCommand(ctx, req.Command)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if lines == nil {
		lines = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"lines": lines})
}

func (api *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	s, ok := api.snapshot(w, r)
	if !ok {
		return
	}
	api.HubManager.GetHub(s.ID).ServeWs(w, r)
}

func (api *Server) handleGetSetting(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	value, err := api.Store.GetSetting(key)
	if errors.Is(err, storage.ErrSettingNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": value})
}

func (api *Server) handleSetSetting(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := api.Store.SetSetting(r.PathValue("key"), req.Value); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
