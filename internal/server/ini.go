package server

import (
	"bufio"
	"bytes"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"arkmanager/internal/domain"
)

const (
	serverSettingsSection  = "ServerSettings"
	sessionSettingsSection = "SessionSettings"
	gameSessionSection     = "/Script/Engine.GameSession"
)

// UpdateIni sets keys in the named sections of an INI file, keeping every
// other line, comment and ordering as it was. Missing sections are appended.
func UpdateIni(path string, sections map[string]map[string]string) error {
	var lines []string
	if data, err := os.ReadFile(path); err == nil {
		scanner := bufio.NewScanner(bytes.NewReader(data))
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return err
	}

	pending := make(map[string]map[string]string, len(sections))
	for name, values := range sections {
		cp := make(map[string]string, len(values))
		for k, v := range values {
			cp[k] = v
		}
		pending[name] = cp
	}

	var out []string
	current := ""
	flush := func() {
		for _, key := range sortedKeys(pending[current]) {
			out = append(out, key+"="+pending[current][key])
		}
		delete(pending, current)
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			flush()
			current = trimmed[1 : len(trimmed)-1]
			out = append(out, line)
			continue
		}
		if values, ok := pending[current]; ok && !strings.HasPrefix(trimmed, ";") {
			if key, _, found := strings.Cut(trimmed, "="); found {
				key = strings.TrimSpace(key)
				if v, ok := values[key]; ok {
					out = append(out, key+"="+v)
					delete(values, key)
					continue
				}
			}
		}
		out = append(out, line)
	}
	flush()

	for _, name := range sortedKeys(pending) {
		if len(out) > 0 && out[len(out)-1] != "" {
			out = append(out, "")
		}
		out = append(out, "["+name+"]")
		for _, key := range sortedKeys(pending[name]) {
			out = append(out, key+"="+pending[name][key])
		}
	}

	return writeAtomic(path, []byte(strings.Join(out, "\n")+"\n"))
}

// WriteServerSettings pushes the profile's session name, player cap and RCON
// settings into GameUserSettings.ini before a start.
func WriteServerSettings(s domain.ProfileSnapshot) error {
	path := filepath.Join(s.ConfigDir(), "GameUserSettings.ini")

	server := map[string]string{
		"RCONEnabled": boolValue(s.RconEnabled),
	}
	if s.RconEnabled {
		server["RCONPort"] = strconv.Itoa(s.RconPort)
	}
	if s.AdminPassword != "" {
		server["ServerAdminPassword"] = s.AdminPassword
	}

	sections := map[string]map[string]string{
		serverSettingsSection:  server,
		sessionSettingsSection: {"SessionName": s.Name},
	}
	if s.MaxPlayers > 0 {
		sections[gameSessionSection] = map[string]string{"MaxPlayers": strconv.Itoa(s.MaxPlayers)}
	}
	return UpdateIni(path, sections)
}

func boolValue(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
