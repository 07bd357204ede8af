package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"arkmanager/internal/domain"
	"arkmanager/internal/runner/strategy"

	"github.com/rs/zerolog/log"
)

var ErrShutdownTimeout = errors.New("process did not exit")

const defaultExitWait = 60 * time.Second

// Supervisor finds, starts and stops server processes. Servers it starts are
// detached and keep running when the manager exits.
type Supervisor struct {
	Finder   Finder
	Runner   strategy.ServerRunner
	ExitWait time.Duration
	Output   io.Writer

	pollInterval time.Duration
	processes    map[string]*exec.Cmd
	mu           sync.Mutex
}

func NewSupervisor(exitWait time.Duration) *Supervisor {
	if exitWait <= 0 {
		exitWait = defaultExitWait
	}
	return &Supervisor{
		Finder:       ProcessFinder{},
		Runner:       &strategy.ShooterGameRunner{},
		ExitWait:     exitWait,
		pollInterval: time.Second,
		processes:    make(map[string]*exec.Cmd),
	}
}

func (s *Supervisor) FindProcess(ctx context.Context, p domain.ProfileSnapshot) (Process, error) {
	return s.Finder.Find(ctx, p)
}

// StartServer launches the profile's server and returns its pid.
func (s *Supervisor) StartServer(p domain.ProfileSnapshot) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.processes[p.ID]; exists {
		return 0, fmt.Errorf("server is already running")
	}

	cmd, err := s.Runner.BuildCommand(p)
	if err != nil {
		return 0, err
	}
	prepareCommand(cmd)
	cmd.Stdout = s.Output
	cmd.Stderr = s.Output

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start: %w", err)
	}

	s.processes[p.ID] = cmd
	pid := cmd.Process.Pid

	go func(id string, c *exec.Cmd) {
		err := c.Wait()

		s.mu.Lock()
		delete(s.processes, id)
		s.mu.Unlock()

		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			log.Warn().Err(err).Str("profile_id", id).Msg("Error waiting for server process")
			return
		}
		log.Info().Str("profile_id", id).Int("pid", c.ProcessState.Pid()).Int("exit_code", c.ProcessState.ExitCode()).Msg("Server process exited")
	}(p.ID, cmd)

	return pid, nil
}

// Terminate asks the process to stop with an interrupt and waits up to
// ExitWait. If it is still alive it is killed and waited for again. Failing
// both is ErrShutdownTimeout; there is nothing left to try after that.
func (s *Supervisor) Terminate(proc Process) error {
	if err := proc.Interrupt(); err != nil {
		log.Warn().Err(err).Int32("pid", proc.PID()).Msg("Could not interrupt server process")
	}
	if s.waitForExit(proc) {
		return nil
	}

	log.Warn().Int32("pid", proc.PID()).Dur("waited", s.ExitWait).Msg("Server did not exit, killing it")
	if err := proc.Kill(); err != nil {
		log.Warn().Err(err).Int32("pid", proc.PID()).Msg("Could not kill server process")
	}
	if s.waitForExit(proc) {
		return nil
	}
	return fmt.Errorf("%w: pid %d", ErrShutdownTimeout, proc.PID())
}

func (s *Supervisor) waitForExit(proc Process) bool {
	deadline := time.Now().Add(s.ExitWait)
	for {
		running, err := proc.IsRunning()
		if err == nil && !running {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(s.pollInterval)
	}
}
