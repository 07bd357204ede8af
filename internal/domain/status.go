package domain

import "time"

// ServerStatus values are ordered: a later value means the watcher got further
// through its checks.
type ServerStatus int

const (
	StatusNotInstalled ServerStatus = iota
	StatusStopped
	StatusUnknown
	StatusInitializing
	StatusRunningLocalCheck
	StatusRunningExternalCheck
	StatusPublished
)

func (s ServerStatus) String() string {
	return [...]string{"NotInstalled", "Stopped", "Unknown", "Initializing", "RunningLocalCheck", "RunningExternalCheck", "Published"}[s]
}

func (s ServerStatus) Running() bool { return s >= StatusInitializing }

type NetworkInfo struct {
	Name       string `json:"name"`
	Map        string `json:"map"`
	Version    string `json:"version"`
	Players    int    `json:"players"`
	MaxPlayers int    `json:"maxPlayers"`
}

// ServerStatusUpdate is produced once per polling cycle per registration.
type ServerStatusUpdate struct {
	PID               int32        `json:"pid,omitempty"`
	Status            ServerStatus `json:"status"`
	NetworkInfo       *NetworkInfo `json:"networkInfo,omitempty"`
	OnlinePlayerCount int          `json:"onlinePlayerCount"`
	CheckedAt         time.Time    `json:"checkedAt"`
}
