package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"arkmanager/internal/domain"
)

// decodeOptional decodes a JSON body that may be empty.
func decodeOptional(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (api *Server) accepted(w http.ResponseWriter, run Run) {
	writeJSON(w, http.StatusAccepted, run)
}

func (api *Server) handleBackup(w http.ResponseWriter, r *http.Request) {
	s, ok := api.snapshot(w, r)
	if !ok {
		return
	}
	api.accepted(w, api.Runs.Start("backup", s.ID, func(ctx context.Context) domain.ExitCode {
		return api.Orchestrator.PerformBackup(ctx, s)
	}))
}

func (api *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	s, ok := api.snapshot(w, r)
	if !ok {
		return
	}
	var req struct {
		Restart bool   `json:"restart"`
		Update  string `json:"update"`
		NoGrace bool   `json:"noGrace"`
	}
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	updateType, ok := domain.ParseUpdateType(req.Update)
	if !ok {
		writeError(w, http.StatusBadRequest, "update must be one of none, server, mods, all")
		return
	}

	op := "shutdown"
	if req.Restart {
		op = "restart"
	}
	api.accepted(w, api.Runs.Start(op, s.ID, func(ctx context.Context) domain.ExitCode {
		return api.Orchestrator.PerformShutdown(ctx, s, req.Restart, updateType, !req.NoGrace)
	}))
}

func (api *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s, ok := api.snapshot(w, r)
	if !ok {
		return
	}
	api.accepted(w, api.Runs.Start("stop", s.ID, func(ctx context.Context) domain.ExitCode {
		return api.Orchestrator.PerformStop(ctx, s)
	}))
}

func (api *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s, ok := api.snapshot(w, r)
	if !ok {
		return
	}
	api.accepted(w, api.Runs.Start("start", s.ID, func(ctx context.Context) domain.ExitCode {
		return api.Orchestrator.PerformStart(ctx, s)
	}))
}

func (api *Server) handleUpdateProfileFiles(w http.ResponseWriter, r *http.Request) {
	s, ok := api.snapshot(w, r)
	if !ok {
		return
	}
	var req struct {
		Update   string `json:"update"`
		Validate bool   `json:"validate"`
	}
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Update == "" {
		req.Update = "all"
	}
	updateType, ok := domain.ParseUpdateType(req.Update)
	if !ok || updateType == domain.UpdateNone {
		writeError(w, http.StatusBadRequest, "update must be one of server, mods, all")
		return
	}
	api.accepted(w, api.Runs.Start("update", s.ID, func(ctx context.Context) domain.ExitCode {
		return api.Orchestrator.PerformUpdateFiles(ctx, s, updateType, req.Validate)
	}))
}

func (api *Server) handleListBranches(w http.ResponseWriter, r *http.Request) {
	type branch struct {
		AppID    string `json:"appId"`
		Branch   string `json:"branch"`
		Profiles int    `json:"profiles"`
	}
	out := []branch{}
	for _, k := range api.Registry.Branches() {
		out = append(out, branch{AppID: k.AppID, Branch: k.Branch, Profiles: len(api.Registry.ForBranch(k))})
	}
	writeJSON(w, http.StatusOK, out)
}

func (api *Server) handleUpdateBranch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AppID  string `json:"appId"`
		Branch string `json:"branch"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AppID == "" {
		writeError(w, http.StatusBadRequest, "appId is required")
		return
	}

	key := domain.BranchKey{AppID: req.AppID, Branch: req.Branch}
	for _, s := range api.Registry.ForBranch(key) {
		if s.BranchPassword != "" {
			key.Password = s.BranchPassword
			break
		}
	}
	api.accepted(w, api.Runs.Start("update-branch", key.String(), func(ctx context.Context) domain.ExitCode {
		return api.Orchestrator.PerformUpdate(ctx, key)
	}))
}

func (api *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.Runs.List())
}

// handleGetRun returns the run; with ?wait=true it blocks until the run ends
// or the client goes away.
func (api *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var (
		run Run
		ok  bool
	)
	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		run, ok = api.Runs.Wait(r.Context(), id)
	} else {
		run, ok = api.Runs.Get(id)
	}
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (api *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !api.Runs.Cancel(id) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	run, _ := api.Runs.Get(id)
	writeJSON(w, http.StatusAccepted, run)
}
