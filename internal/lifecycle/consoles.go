package lifecycle

import (
	"arkmanager/internal/domain"
	"arkmanager/internal/rcon"

	"github.com/rs/zerolog"
)

// SessionConsoles shares the daemon's long-lived RCON sessions with
// orchestration runs. Release is a no-op since the session outlives the run.
type SessionConsoles struct {
	Manager *rcon.Manager
}

func (c SessionConsoles) Console(s domain.ProfileSnapshot) (Console, func(), bool) {
	session, ok := c.Manager.GetSession(s)
	if !ok {
		return nil, nil, false
	}
	return session, func() {}, true
}

// AdHocConsoles opens a session for one run and stops it on release. The
// CLI uses it when no daemon is around to own sessions.
type AdHocConsoles struct {
	Dialer   rcon.Dialer
	Defaults rcon.Options
	Log      zerolog.Logger
}

func (c AdHocConsoles) Console(s domain.ProfileSnapshot) (Console, func(), bool) {
	if !s.RconEnabled {
		return nil, nil, false
	}
	opts := c.Defaults
	opts.Address = s.RconAddress()
	opts.Password = s.AdminPassword
	opts.SaveDir = s.SaveDir()

	session := rcon.NewSession(opts, c.Dialer, c.Log.With().Str("profile", s.Name).Logger())
	go session.Run()
	return session, session.Stop, true
}
