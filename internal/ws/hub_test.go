package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"arkmanager/internal/domain"
	"arkmanager/internal/notify"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(raw, &msg))
	return msg
}

func TestHubReplaysHistoryAndBroadcasts(t *testing.T) {
	m := NewHubManager(10)
	defer m.StopAll()

	m.Publish("p1", "output", []string{"before"})

	srv := httptest.NewServer(m.GetHub("p1"))
	defer srv.Close()
	conn := dial(t, srv)

	first := readMessage(t, conn)
	assert.Equal(t, "output", first.Type)
	assert.Equal(t, "p1", first.ProfileID)

	m.Send(context.Background(), notify.NewAlert(domain.AlertBackup, domain.ProfileSnapshot{Profile: domain.Profile{ID: "p1", Name: "Island"}}, "done"))
	second := readMessage(t, conn)
	assert.Equal(t, "alert", second.Type)
}

func TestHubRoutesCommands(t *testing.T) {
	m := NewHubManager(0)
	defer m.StopAll()

	var mu sync.Mutex
	var got []string
	hub := m.GetHub("p1")
	hub.SetCommandHandler(func(text string) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, text)
	})

	srv := httptest.NewServer(hub)
	defer srv.Close()
	conn := dial(t, srv)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("  listplayers \n")))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1 && got[0] == "listplayers"
	}, 5*time.Second, 10*time.Millisecond)
}
