package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"arkmanager/internal/notify"

	"github.com/rs/zerolog/log"
)

// Message is the envelope of every frame sent to clients.
type Message struct {
	Type      string    `json:"type"`
	ProfileID string    `json:"profileId"`
	At        time.Time `json:"at"`
	Data      any       `json:"data,omitempty"`
}

// HubManager keeps one hub per profile.
type HubManager struct {
	hubs               map[string]*Hub
	mu                 sync.Mutex
	defaultHistorySize int
}

func NewHubManager(defaultHistorySize int) *HubManager {
	return &HubManager{
		hubs:               make(map[string]*Hub),
		defaultHistorySize: defaultHistorySize,
	}
}

func (m *HubManager) GetHub(profileID string) *Hub {
	m.mu.Lock()
	defer m.mu.Unlock()

	if hub, ok := m.hubs[profileID]; ok {
		return hub
	}

	hub := NewHubWithHistorySize(m.defaultHistorySize)
	go hub.Run()
	m.hubs[profileID] = hub
	return hub
}

func (m *HubManager) RemoveHub(profileID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if hub, ok := m.hubs[profileID]; ok {
		hub.Stop()
		delete(m.hubs, profileID)
	}
}

func (m *HubManager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, hub := range m.hubs {
		hub.Stop()
		delete(m.hubs, id)
	}
}

// Publish sends a typed event to everyone watching the profile.
func (m *HubManager) Publish(profileID, kind string, data any) {
	msg, err := json.Marshal(Message{Type: kind, ProfileID: profileID, At: time.Now(), Data: data})
	if err != nil {
		log.Warn().Err(err).Str("type", kind).Msg("Could not encode event")
		return
	}
	m.GetHub(profileID).Broadcast(msg)
}

// Send lets the hub manager act as an alert channel.
func (m *HubManager) Send(_ context.Context, a notify.Alert) {
	if a.ProfileID == "" {
		return
	}
	m.Publish(a.ProfileID, "alert", a)
}
