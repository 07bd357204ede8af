package domain

import (
	"fmt"
	"net"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"time"
)

type Profile struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	InstallDir string `json:"installDir"`
	ServerMap  string `json:"serverMap"`

	ServerIP   string `json:"serverIp"`
	PublicIP   string `json:"publicIp"`
	ServerPort int    `json:"serverPort"`
	QueryPort  int    `json:"queryPort"`
	MaxPlayers int    `json:"maxPlayers"`

	RconEnabled   bool   `json:"rconEnabled"`
	RconPort      int    `json:"rconPort"`
	AdminPassword string `json:"-"`

	AppID          string   `json:"appId"`
	BranchName     string   `json:"branchName"`
	BranchPassword string   `json:"-"`
	ModIDs         []string `json:"modIds"`
	ExtraArgs      string   `json:"extraArgs"`

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
	CreatedAt            time.Time `json:"created_at"`
}

// ProfileSnapshot is a point-in-time copy of a Profile owned by a single
// orchestration call. Edits to the live profile never reach it.
type ProfileSnapshot struct {
	Profile
	TakenAt time.Time
}

func (p *Profile) Snapshot() ProfileSnapshot {
	cp := *p
	cp.ModIDs = slices.Clone(p.ModIDs)
	return ProfileSnapshot{Profile: cp, TakenAt: time.Now()}
}

// MergeFields are the only values an orchestration run may write back to the
// long-lived profile.
type MergeFields struct {
	LastInstalledVersion *string
	LastStarted          *time.Time
	ServerUpdated        *bool
}

func (m MergeFields) Empty() bool {
	return m.LastInstalledVersion == nil && m.LastStarted == nil && m.ServerUpdated == nil
}

func (s ProfileSnapshot) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("profile has no id")
	}
	if s.InstallDir == "" {
		return fmt.Errorf("profile %s has no install directory", s.Name)
	}
	if s.ServerPort <= 0 || s.ServerPort > 65535 {
		return fmt.Errorf("profile %s has invalid server port %d", s.Name, s.ServerPort)
	}
	if s.AppID == "" {
		return fmt.Errorf("profile %s has no server app id", s.Name)
	}
	return nil
}

func (s ProfileSnapshot) Branch() BranchKey {
	return BranchKey{AppID: s.AppID, Branch: s.BranchName, Password: s.BranchPassword}
}

func platformDirs() (binDir, configDir, exe string) {
	if runtime.GOOS == "windows" {
		return "Win64", "WindowsServer", "ShooterGameServer.exe"
	}
	return "Linux", "LinuxServer", "ShooterGameServer"
}

func (s ProfileSnapshot) ExecutablePath() string {
	binDir, _, exe := platformDirs()
	return filepath.Join(s.InstallDir, "ShooterGame", "Binaries", binDir, exe)
}

func (s ProfileSnapshot) SaveDir() string {
	return filepath.Join(s.InstallDir, "ShooterGame", "Saved", "SavedArks")
}

func (s ProfileSnapshot) WorldSaveFile() string {
	return filepath.Join(s.SaveDir(), s.ServerMap+".ark")
}

func (s ProfileSnapshot) ConfigDir() string {
	_, configDir, _ := platformDirs()
	return filepath.Join(s.InstallDir, "ShooterGame", "Saved", "Config", configDir)
}

func (s ProfileSnapshot) ConfigFiles() []string {
	return []string{
		filepath.Join(s.ConfigDir(), "GameUserSettings.ini"),
		filepath.Join(s.ConfigDir(), "Game.ini"),
	}
}

func (s ProfileSnapshot) ModsDir() string {
	return filepath.Join(s.InstallDir, "ShooterGame", "Content", "Mods")
}

func (s ProfileSnapshot) LocalQueryEndpoint() (string, int) {
	ip := s.ServerIP
	if ip == "" {
		ip = "127.0.0.1"
	}
	return ip, s.QueryPort
}

func (s ProfileSnapshot) PublicQueryEndpoint() (string, int) {
	return s.PublicIP, s.QueryPort
}

func (s ProfileSnapshot) RconAddress() string {
	ip, _ := s.LocalQueryEndpoint()
	return net.JoinHostPort(ip, strconv.Itoa(s.RconPort))
}
