package strategy

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"arkmanager/internal/domain"
)

// ShooterGameRunner launches ShooterGameServer with the travel URL and flags
// derived from a profile.
type ShooterGameRunner struct{}

func (r *ShooterGameRunner) BuildCommand(s domain.ProfileSnapshot) (*exec.Cmd, error) {
	exe := s.ExecutablePath()
	if _, err := os.Stat(exe); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("server executable not found at %s", exe)
		}
		return nil, fmt.Errorf("error accessing %s: %w", exe, err)
	}

	cmd := exec.Command(exe, r.Args(s)...)
	cmd.Dir = filepath.Dir(exe)
	return cmd, nil
}

func (r *ShooterGameRunner) Args(s domain.ProfileSnapshot) []string {
	var url strings.Builder
	url.WriteString(s.ServerMap)
	url.WriteString("?listen")
	if s.Name != "" {
		url.WriteString("?SessionName=" + strings.ReplaceAll(s.Name, " ", "_"))
	}
	if s.ServerIP != "" {
		url.WriteString("?MultiHome=" + s.ServerIP)
	}
	url.WriteString("?Port=" + strconv.Itoa(s.ServerPort))
	if s.QueryPort > 0 {
		url.WriteString("?QueryPort=" + strconv.Itoa(s.QueryPort))
	}
	if s.MaxPlayers > 0 {
		url.WriteString("?MaxPlayers=" + strconv.Itoa(s.MaxPlayers))
	}
	if s.RconEnabled {
		url.WriteString("?RCONEnabled=True?RCONPort=" + strconv.Itoa(s.RconPort))
	}
	if s.AdminPassword != "" {
		url.WriteString("?ServerAdminPassword=" + s.AdminPassword)
	}
	if len(s.ModIDs) > 0 {
		url.WriteString("?GameModIds=" + strings.Join(s.ModIDs, ","))
	}

	args := []string{url.String(), "-server", "-log"}
	if s.ExtraArgs != "" {
		args = append(args, strings.Fields(s.ExtraArgs)...)
	}
	return args
}
