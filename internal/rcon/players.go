package rcon

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"arkmanager/internal/domain"
)

const noPlayersConnected = "no players connected"

type onlinePlayer struct {
	ID   string
	Name string
}

// parsePlayerList reads listplayers output. Each player line looks like
// "0. Some Name, 76561198000000000"; the name may itself contain commas.
func parsePlayerList(lines []string) []onlinePlayer {
	var out []onlinePlayer
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.EqualFold(line, noPlayersConnected) {
			continue
		}

		dot := strings.Index(line, ". ")
		comma := strings.LastIndex(line, ",")
		if dot < 0 || comma < dot {
			continue
		}
		name := strings.TrimSpace(line[dot+2 : comma])
		id := strings.TrimSpace(line[comma+1:])
		if id == "" {
			continue
		}
		out = append(out, onlinePlayer{ID: id, Name: name})
	}
	return out
}

// diffPlayers applies one authoritative online list to the known players and
// returns the join and leave events it implies. A player joins only if new or
// previously offline, and leaves only if previously online and now absent.
// known is updated in place.
func diffPlayers(known map[string]*domain.PlayerInfo, online []onlinePlayer, now time.Time) []domain.PlayerEvent {
	var events []domain.PlayerEvent
	seen := make(map[string]bool, len(online))

	for _, op := range online {
		seen[op.ID] = true
		p, ok := known[op.ID]
		if !ok {
			p = &domain.PlayerInfo{ID: op.ID}
			known[op.ID] = p
		}
		wasOnline := ok && p.Online
		p.Name = op.Name
		p.Online = true
		p.LastUpdated = now
		if !wasOnline {
			events = append(events, domain.PlayerEvent{Kind: domain.PlayerJoined, Player: *p, At: now})
		}
	}

	ids := make([]string, 0, len(known))
	for id := range known {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		p := known[id]
		if p.Online && !seen[id] {
			p.Online = false
			p.LastUpdated = now
			events = append(events, domain.PlayerEvent{Kind: domain.PlayerLeft, Player: *p, At: now})
		}
	}

	return events
}

// prunePlayers drops players that are neither online nor backed by a stored
// player file, and refreshes the validity flag of the rest.
func prunePlayers(known map[string]*domain.PlayerInfo, stored map[string]bool) {
	for id, p := range known {
		p.Valid = stored[id]
		if !p.Online && !p.Valid {
			delete(known, id)
		}
	}
}

// scanPlayerFiles lists the player ids that have a <id>.arkprofile file.
func scanPlayerFiles(dir string) (map[string]bool, error) {
	stored := make(map[string]bool)
	if dir == "" {
		return stored, nil
	}
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return stored, nil
	}
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".arkprofile" {
			continue
		}
		stored[strings.TrimSuffix(e.Name(), ".arkprofile")] = true
	}
	return stored, nil
}

func sortedPlayers(known map[string]*domain.PlayerInfo) []domain.PlayerInfo {
	out := make([]domain.PlayerInfo, 0, len(known))
	for _, p := range known {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Online != out[j].Online {
			return out[i].Online
		}
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}
