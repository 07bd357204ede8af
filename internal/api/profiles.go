package api

import (
	"encoding/json"
	"net/http"

	"arkmanager/internal/domain"
	"arkmanager/internal/server"
)

// profileRequest carries the secrets that domain.Profile never serializes.
type profileRequest struct {
	domain.Profile
	AdminPassword  string `json:"adminPassword"`
	BranchPassword string `json:"branchPassword"`
}

func (api *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	snaps := api.Registry.Snapshots()
	out := make([]domain.Profile, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, s.Profile)
	}
	writeJSON(w, http.StatusOK, out)
}

func (api *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	s, ok := api.snapshot(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Profile)
}

func (api *Server) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	p := req.Profile
	p.ID = ""
	p.AdminPassword = req.AdminPassword
	p.BranchPassword = req.BranchPassword

	others := api.Registry.Snapshots()
	if err := server.AssignPorts(&p, others); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err := server.CheckPorts(p.Snapshot(), others); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	if err := api.Registry.Create(&p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	api.log.Info().Str("profile", p.Name).Str("profile_id", p.ID).Msg("Profile created")

	s, _ := api.Registry.Snapshot(p.ID)
	api.Container.Watch(s)
	writeJSON(w, http.StatusCreated, s.Profile)
}

// handleUpdateProfile replaces the editable fields. Values owned by
// orchestration runs and blank secrets keep their stored value.
func (api *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	current, ok := api.snapshot(w, r)
	if !ok {
		return
	}
	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	p := req.Profile
	p.ID = current.ID
	p.CreatedAt = current.CreatedAt
	p.LastStarted = current.LastStarted
	p.LastInstalledVersion = current.LastInstalledVersion
	p.ServerUpdated = current.ServerUpdated
	p.AdminPassword = current.AdminPassword
	if req.AdminPassword != "" {
		p.AdminPassword = req.AdminPassword
	}
	p.BranchPassword = current.BranchPassword
	if req.BranchPassword != "" {
		p.BranchPassword = req.BranchPassword
	}

	if err := server.CheckPorts(p.Snapshot(), api.Registry.Snapshots()); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	if err := api.Registry.Put(&p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s, _ := api.Registry.Snapshot(p.ID)
	api.Container.Watch(s)
	writeJSON(w, http.StatusOK, s.Profile)
}

func (api *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	s, ok := api.snapshot(w, r)
	if !ok {
		return
	}
	if err := api.Registry.Delete(s.ID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	api.Container.Unwatch(s.ID)
	api.HubManager.RemoveHub(s.ID)
	api.log.Info().Str("profile", s.Name).Msg("Profile deleted")
	w.WriteHeader(http.StatusNoContent)
}
