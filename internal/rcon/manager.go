package rcon

import (
	"sync"

	"arkmanager/internal/domain"

	"github.com/rs/zerolog"
)

// Manager keeps one running Session per profile.
type Manager struct {
	Dialer   Dialer
	Defaults Options

	sessions map[string]*Session
	mu       sync.Mutex
	newLog   func(s domain.ProfileSnapshot) zerolog.Logger
}

// NewManager returns a manager whose sessions use defaults for every timing
// option; address, password and save dir come from the profile.
func NewManager(dialer Dialer, defaults Options, newLog func(s domain.ProfileSnapshot) zerolog.Logger) *Manager {
	if newLog == nil {
		newLog = func(domain.ProfileSnapshot) zerolog.Logger { return zerolog.Nop() }
	}
	return &Manager{
		Dialer:   dialer,
		Defaults: defaults,
		sessions: make(map[string]*Session),
		newLog:   newLog,
	}
}

func (m *Manager) OptionsFor(s domain.ProfileSnapshot) Options {
	opts := m.Defaults
	opts.Address = s.RconAddress()
	opts.Password = s.AdminPassword
	opts.SaveDir = s.SaveDir()
	return opts
}

// GetSession returns the profile's session, starting one if needed. ok is
// false when RCON is disabled for the profile.
func (m *Manager) GetSession(s domain.ProfileSnapshot) (session *Session, ok bool) {
	if !s.RconEnabled {
		return nil, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if session, ok := m.sessions[s.ID]; ok {
		return session, true
	}

	session = NewSession(m.OptionsFor(s), m.Dialer, m.newLog(s))
	go session.Run()
	m.sessions[s.ID] = session
	return session, true
}

// Lookup returns an existing session without starting one.
func (m *Manager) Lookup(profileID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[profileID]
	return s, ok
}

func (m *Manager) RemoveSession(profileID string) {
	m.mu.Lock()
	session, ok := m.sessions[profileID]
	delete(m.sessions, profileID)
	m.mu.Unlock()

	if ok {
		session.Stop()
	}
}

func (m *Manager) StopAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Stop()
	}
}
