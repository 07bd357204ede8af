package ui

import (
	"fmt"
	"strings"
	"time"

	"arkmanager/pkg/sdk"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(accent)).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

// Profiles renders one row per profile. statuses may be missing entries.
func Profiles(profiles []sdk.Profile, statuses map[string]*sdk.Status) string {
	t := newTable("ID", "NAME", "MAP", "PORT", "BRANCH", "STATUS", "PLAYERS")
	for _, p := range profiles {
		branch := p.AppID
		if p.BranchName != "" {
			branch += "/" + p.BranchName
		}
		state, players := "-", "-"
		if st, ok := statuses[p.ID]; ok && st != nil {
			state = statusText(*st)
			players = fmt.Sprintf("%d/%d", st.OnlinePlayerCount, p.MaxPlayers)
		}
		t.Row(shortID(p.ID), p.Name, p.ServerMap, fmt.Sprint(p.ServerPort), branch, state, players)
	}
	return t.String()
}

// Status renders a detail box for one profile.
func Status(p sdk.Profile, st sdk.Status) string {
	lines := []string{
		titleStyle.Render(p.Name),
		"",
		kv("Status", statusText(st)),
		kv("Checked", st.CheckedAt.Local().Format(time.DateTime)),
	}
	if st.PID != 0 {
		lines = append(lines, kv("PID", fmt.Sprint(st.PID)))
	}
	if ni := st.NetworkInfo; ni != nil {
		lines = append(lines,
			kv("Server", ni.Name),
			kv("Map", ni.Map),
			kv("Version", ni.Version),
			kv("Players", fmt.Sprintf("%d/%d", ni.Players, ni.MaxPlayers)),
		)
	}
	lines = append(lines, kv("RCON players", fmt.Sprint(st.OnlinePlayerCount)))
	if p.LastInstalledVersion != "" {
		lines = append(lines, kv("Build", p.LastInstalledVersion))
	}
	if !p.LastStarted.IsZero() {
		lines = append(lines, kv("Last started", p.LastStarted.Local().Format(time.DateTime)))
	}
	return baseStyle.Render(strings.Join(lines, "\n"))
}

func Players(players []sdk.Player) string {
	t := newTable("STEAM ID", "NAME", "ONLINE", "LAST SEEN")
	for _, p := range players {
		online := descStyle.Render("no")
		if p.Online {
			online = okStyle.Render("yes")
		}
		t.Row(p.ID, p.Name, online, p.LastUpdated.Local().Format(time.DateTime))
	}
	return t.String()
}

func Runs(runs []sdk.Run) string {
	t := newTable("ID", "OP", "TARGET", "STATE", "RESULT", "STARTED")
	for _, r := range runs {
		t.Row(shortID(r.ID), r.Op, r.Target, r.State, ExitCode(r.ExitCode, r.Result), r.StartedAt.Local().Format(time.DateTime))
	}
	return t.String()
}

func Backups(backups []sdk.BackupInfo) string {
	t := newTable("NAME", "SIZE", "CREATED")
	for _, b := range backups {
		t.Row(b.Name, fmt.Sprintf("%.1f MB", float64(b.Size)/(1024*1024)), b.CreatedAt.Local().Format(time.DateTime))
	}
	return t.String()
}

func Branches(branches []sdk.Branch) string {
	t := newTable("APP ID", "BRANCH", "PROFILES")
	for _, b := range branches {
		name := b.Branch
		if name == "" {
			name = descStyle.Render("public")
		}
		t.Row(b.AppID, name, fmt.Sprint(b.Profiles))
	}
	return t.String()
}

// ExitCode colours a numeric exit code with its name.
func ExitCode(code int, name string) string {
	text := fmt.Sprintf("%d %s", code, name)
	switch code {
	case 0:
		return okStyle.Render(text)
	case 3, 99:
		return warnStyle.Render(text)
	default:
		return errStyle.Render(text)
	}
}

// Event formats one websocket event line.
func Event(at time.Time, kind, body string) string {
	return fmt.Sprintf("%s %s %s", descStyle.Render(at.Local().Format(time.TimeOnly)), keyStyle.Render(kind), body)
}

func kv(k, v string) string {
	return keyStyle.Render(fmt.Sprintf("%-14s", k)) + " " + v
}

func statusText(st sdk.Status) string {
	name := st.StatusName()
	switch name {
	case "Published", "RunningExternalCheck", "RunningLocalCheck":
		return okStyle.Render(name)
	case "Initializing", "Unknown":
		return warnStyle.Render(name)
	default:
		return descStyle.Render(name)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
