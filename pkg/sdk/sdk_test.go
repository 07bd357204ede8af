package sdk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIErrorCarriesMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "rcon is disabled for this profile"})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Rcon(context.Background(), "p1", "listplayers")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Equal(t, "rcon is disabled for this profile", apiErr.Message)
}

func TestWaitRunPollsUntilFinished(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/runs/r1", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("wait"))
		calls++
		state := "running"
		if calls == 2 {
			state = "finished"
		}
		_ = json.NewEncoder(w).Encode(Run{ID: "r1", State: state, ExitCode: 99, Result: "cancelled"})
	}))
	defer srv.Close()

	run, err := NewClient(srv.URL).WaitRun(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 99, run.ExitCode)
}

func TestFindProfileByName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]Profile{{ID: "a1", Name: "The Island"}, {ID: "b2", Name: "Ragnarok"}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	p, err := c.FindProfile(context.Background(), "ragnarok")
	require.NoError(t, err)
	assert.Equal(t, "b2", p.ID)

	_, err = c.FindProfile(context.Background(), "Valguero")
	assert.Error(t, err)
}

func TestWebSocketURL(t *testing.T) {
	u, err := NewClient("http://localhost:23010/").GetWebSocketURL("/ws/profiles/a1/events")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:23010/ws/profiles/a1/events", u)
}
