package domain

import "time"

type PlayerInfo struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Online      bool      `json:"online"`
	Valid       bool      `json:"valid"`
	LastUpdated time.Time `json:"lastUpdated"`
}

type PlayerEventKind string

const (
	PlayerJoined PlayerEventKind = "joined"
	PlayerLeft   PlayerEventKind = "left"
)

type PlayerEvent struct {
	Kind   PlayerEventKind `json:"kind"`
	Player PlayerInfo      `json:"player"`
	At     time.Time       `json:"at"`
}
