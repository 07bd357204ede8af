package status

import (
	"sync"

	"arkmanager/internal/domain"
)

// Board keeps the latest update per profile for readers outside the watcher.
type Board struct {
	mu     sync.RWMutex
	latest map[string]domain.ServerStatusUpdate
}

func NewBoard() *Board {
	return &Board{latest: make(map[string]domain.ServerStatusUpdate)}
}

func (b *Board) Set(profileID string, u domain.ServerStatusUpdate) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.latest[profileID] = u
}

func (b *Board) Get(profileID string) (domain.ServerStatusUpdate, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	u, ok := b.latest[profileID]
	return u, ok
}

func (b *Board) Delete(profileID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.latest, profileID)
}
