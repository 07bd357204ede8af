package server

import (
	"fmt"
	"net"
	"slices"
	"strconv"

	"arkmanager/internal/domain"
)

const (
	firstGamePort  = 7777
	firstQueryPort = 27015
	firstRconPort  = 32330
	maxPortProbes  = 200
)

// usedPorts lists every port a profile binds. The game also opens the raw
// UDP socket at ServerPort+1.
func usedPorts(s domain.ProfileSnapshot) []int {
	ports := []int{s.ServerPort, s.ServerPort + 1, s.QueryPort}
	if s.RconEnabled {
		ports = append(ports, s.RconPort)
	}
	return ports
}

// CheckPorts reports the first port s shares with itself or another profile.
func CheckPorts(s domain.ProfileSnapshot, others []domain.ProfileSnapshot) error {
	own := usedPorts(s)
	for i, p := range own {
		if p <= 0 {
			continue
		}
		if slices.Contains(own[i+1:], p) {
			return fmt.Errorf("port %d is used twice by profile %s", p, s.Name)
		}
	}

	for _, o := range others {
		if o.ID == s.ID {
			continue
		}
		theirs := usedPorts(o)
		for _, p := range own {
			if p > 0 && slices.Contains(theirs, p) {
				return fmt.Errorf("port %d is already used by profile %s", p, o.Name)
			}
		}
	}
	return nil
}

// AssignPorts fills in any zero port on p with the first free value that no
// other profile uses and that can be bound right now.
func AssignPorts(p *domain.Profile, others []domain.ProfileSnapshot) error {
	taken := make(map[int]bool)
	for _, o := range others {
		for _, port := range usedPorts(o) {
			taken[port] = true
		}
	}

	if p.ServerPort == 0 {
		port, err := allocate(firstGamePort, 2, taken)
		if err != nil {
			return err
		}
		p.ServerPort = port
	}
	taken[p.ServerPort], taken[p.ServerPort+1] = true, true

	if p.QueryPort == 0 {
		port, err := allocate(firstQueryPort, 1, taken)
		if err != nil {
			return err
		}
		p.QueryPort = port
	}
	taken[p.QueryPort] = true

	if p.RconEnabled && p.RconPort == 0 {
		port, err := allocate(firstRconPort, 1, taken)
		if err != nil {
			return err
		}
		p.RconPort = port
	}
	return nil
}

func allocate(start, step int, taken map[int]bool) (int, error) {
	for i := 0; i < maxPortProbes; i++ {
		port := start + i*step
		if taken[port] || (step == 2 && taken[port+1]) {
			continue
		}
		if isPortAvailable(port) {
			return port, nil
		}
	}
	return 0, fmt.Errorf("no free ports from %d", start)
}

func isPortAvailable(port int) bool {
	conn, err := net.ListenPacket("udp", net.JoinHostPort("", strconv.Itoa(port)))
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
