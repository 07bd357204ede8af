package api

import (
	"errors"
	"io"
	"net/http"
	"os"

	"arkmanager/internal/server"
)

const maxConfigUpload = 10 << 20

func (api *Server) handleGetConfigFile(w http.ResponseWriter, r *http.Request) {
	s, ok := api.snapshot(w, r)
	if !ok {
		return
	}

	content, err := server.ReadConfigFile(s, r.PathValue("file"))
	switch {
	case errors.Is(err, server.ErrUnknownConfigFile), errors.Is(err, os.ErrNotExist):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write(content)
}

func (api *Server) handleSaveConfigFile(w http.ResponseWriter, r *http.Request) {
	s, ok := api.snapshot(w, r)
	if !ok {
		return
	}

	content, err := io.ReadAll(io.LimitReader(r.Body, maxConfigUpload))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	err = server.WriteConfigFile(s, r.PathValue("file"), content)
	switch {
	case errors.Is(err, server.ErrUnknownConfigFile):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
