package sdk

import (
	"encoding/json"
	"time"
)

type Profile struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	InstallDir string   `json:"installDir"`
	ServerMap  string   `json:"serverMap"`
	ServerIP   string   `json:"serverIp,omitempty"`
	PublicIP   string   `json:"publicIp,omitempty"`
	ServerPort int      `json:"serverPort"`
	QueryPort  int      `json:"queryPort"`
	MaxPlayers int      `json:"maxPlayers"`
	RconPort   int      `json:"rconPort"`
	AppID      string   `json:"appId"`
	BranchName string   `json:"branchName"`
	ModIDs     []string `json:"modIds"`
	ExtraArgs  string   `json:"extraArgs"`

	RconEnabled           bool   `json:"rconEnabled"`
	GracePeriodMinutes    int    `json:"gracePeriodMinutes"`
	CheckForOnlinePlayers bool   `json:"checkForOnlinePlayers"`
	SendShutdownMessages  bool   `json:"sendShutdownMessages"`
	ShutdownReason        string `json:"shutdownReason"`
	BackupOnShutdown      bool   `json:"backupOnShutdown"`
	AutoUpdateEnabled     bool   `json:"autoUpdateEnabled"`
	AutoBackupEnabled     bool   `json:"autoBackupEnabled"`

	LastStarted          time.Time `json:"lastStarted"`
	LastInstalledVersion string    `json:"lastInstalledVersion"`
	ServerUpdated        bool      `json:"serverUpdated"`

	// Write-only.
	AdminPassword  string `json:"adminPassword,omitempty"`
	BranchPassword string `json:"branchPassword,omitempty"`
}

type NetworkInfo struct {
	Name       string `json:"name"`
	Map        string `json:"map"`
	Version    string `json:"version"`
	Players    int    `json:"players"`
	MaxPlayers int    `json:"maxPlayers"`
}

type Status struct {
	PID               int32        `json:"pid,omitempty"`
	Status            int          `json:"status"`
	NetworkInfo       *NetworkInfo `json:"networkInfo,omitempty"`
	OnlinePlayerCount int          `json:"onlinePlayerCount"`
	CheckedAt         time.Time    `json:"checkedAt"`
}

var statusNames = []string{"NotInstalled", "Stopped", "Unknown", "Initializing", "RunningLocalCheck", "RunningExternalCheck", "Published"}

func (s Status) StatusName() string {
	if s.Status >= 0 && s.Status < len(statusNames) {
		return statusNames[s.Status]
	}
	return "Unknown"
}

type Player struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Online      bool      `json:"online"`
	Valid       bool      `json:"valid"`
	LastUpdated time.Time `json:"lastUpdated"`
}

type Run struct {
	ID         string     `json:"id"`
	Op         string     `json:"op"`
	Target     string     `json:"target"`
	State      string     `json:"state"`
	ExitCode   int        `json:"exitCode"`
	Result     string     `json:"result,omitempty"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

func (r Run) Finished() bool { return r.State == "finished" }

type ShutdownRequest struct {
	Restart bool   `json:"restart"`
	Update  string `json:"update,omitempty"`
	NoGrace bool   `json:"noGrace"`
}

type UpdateRequest struct {
	Update   string `json:"update,omitempty"`
	Validate bool   `json:"validate"`
}

type Branch struct {
	AppID    string `json:"appId"`
	Branch   string `json:"branch"`
	Profiles int    `json:"profiles,omitempty"`
}

type BackupInfo struct {
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

// Event is one frame of a profile's event stream. Data depends on Type.
type Event struct {
	Type      string          `json:"type"`
	ProfileID string          `json:"profileId"`
	At        time.Time       `json:"at"`
	Data      json.RawMessage `json:"data,omitempty"`
}
