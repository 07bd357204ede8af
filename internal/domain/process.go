package domain

// UpdateType selects what an update step touches.
type UpdateType int

const (
	UpdateNone UpdateType = iota
	UpdateServer
	UpdateMods
	UpdateServerAndMods
)

func (u UpdateType) HasServer() bool { return u == UpdateServer || u == UpdateServerAndMods }
func (u UpdateType) HasMods() bool   { return u == UpdateMods || u == UpdateServerAndMods }

func (u UpdateType) String() string {
	switch u {
	case UpdateServer:
		return "server"
	case UpdateMods:
		return "mods"
	case UpdateServerAndMods:
		return "all"
	default:
		return "none"
	}
}

func ParseUpdateType(s string) (UpdateType, bool) {
	switch s {
	case "", "none":
		return UpdateNone, true
	case "server":
		return UpdateServer, true
	case "mods":
		return UpdateMods, true
	case "all":
		return UpdateServerAndMods, true
	}
	return UpdateNone, false
}

// ServerProcess names the reason the server is being stopped. It drives the
// wording of in-game messages and whether a countdown is run at all.
type ServerProcess int

const (
	ProcessShutdown ServerProcess = iota
	ProcessRestart
	ProcessUpdate
	ProcessStop
)

func (p ServerProcess) Verb() string {
	switch p {
	case ProcessRestart:
		return "restarting"
	case ProcessUpdate:
		return "updating"
	default:
		return "shutting down"
	}
}

type AlertType int

const (
	AlertStartup AlertType = iota
	AlertShutdown
	AlertShutdownMessage
	AlertShutdownReason
	AlertBackup
	AlertError
	AlertUpdateResults
)

func (a AlertType) String() string {
	return [...]string{"Startup", "Shutdown", "ShutdownMessage", "ShutdownReason", "Backup", "Error", "UpdateResults"}[a]
}
