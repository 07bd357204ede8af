package runner

import (
	"context"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"

	"arkmanager/internal/domain"

	"github.com/shirou/gopsutil/v3/process"
)

// Process is a running server process.
type Process interface {
	PID() int32
	Interrupt() error
	Kill() error
	IsRunning() (bool, error)
}

// Finder locates the process serving a profile. It returns nil, nil when no
// such process exists.
type Finder interface {
	Find(ctx context.Context, s domain.ProfileSnapshot) (Process, error)
}

type psProcess struct {
	p *process.Process
}

func (p *psProcess) PID() int32 { return p.p.Pid }

func (p *psProcess) Interrupt() error {
	err := p.p.SendSignal(syscall.SIGINT)
	if err != nil && runtime.GOOS == "windows" {
		return p.p.Terminate()
	}
	return err
}

func (p *psProcess) Kill() error { return p.p.Kill() }

func (p *psProcess) IsRunning() (bool, error) { return p.p.IsRunning() }

// ProcessFinder scans the OS process table with gopsutil.
type ProcessFinder struct{}

func (ProcessFinder) Find(ctx context.Context, s domain.ProfileSnapshot) (Process, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	want := s.ExecutablePath()
	for _, p := range procs {
		exe, err := p.ExeWithContext(ctx)
		if err != nil || !samePath(exe, want) {
			continue
		}
		cmdline, err := p.CmdlineWithContext(ctx)
		if err != nil {
			continue
		}
		if matchesPort(cmdline, s.ServerPort) {
			return &psProcess{p: p}, nil
		}
	}
	return nil, nil
}

func samePath(a, b string) bool {
	a, b = filepath.Clean(a), filepath.Clean(b)
	if runtime.GOOS == "windows" {
		return strings.EqualFold(a, b)
	}
	return a == b
}

// matchesPort reports whether a ShooterGame command line serves port. Port
// zero matches any command line.
func matchesPort(cmdline string, port int) bool {
	if port == 0 {
		return true
	}
	lower := strings.ToLower(cmdline)
	needle := "?port=" + strconv.Itoa(port)
	idx := strings.Index(lower, needle)
	if idx < 0 {
		return false
	}
	rest := lower[idx+len(needle):]
	return rest == "" || !('0' <= rest[0] && rest[0] <= '9')
}
