package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"arkmanager/internal/domain"
	"arkmanager/internal/runner"
)

const (
	countdownStep  = time.Minute
	consoleTimeout = 30 * time.Second
)

// warningInterval is the checkpoint table for countdown messages.
func warningInterval(minutesLeft int) int {
	switch {
	case minutesLeft > 30:
		return 30
	case minutesLeft > 15:
		return 15
	case minutesLeft > 5:
		return 5
	default:
		return 1
	}
}

func warningMessage(minutesLeft int, verb, suffix string) string {
	switch {
	case minutesLeft > 5:
		return fmt.Sprintf("Server %s in %d minutes%s.", verb, minutesLeft, suffix)
	case minutesLeft > 1:
		return fmt.Sprintf("Server %s in %d minutes%s, please get to a safe place.", verb, minutesLeft, suffix)
	default:
		return fmt.Sprintf("Server %s in 1 minute%s, log off now to avoid losing progress.", verb, suffix)
	}
}

func phrasing(process domain.ServerProcess, restart bool) (verb, suffix string) {
	if process != domain.ProcessUpdate {
		return process.Verb(), ""
	}
	if restart {
		return domain.ProcessRestart.Verb(), " for an update"
	}
	return domain.ProcessShutdown.Verb(), " for an update"
}

// broadcast sends text to the game chat when the profile wants shutdown
// messages. Errors are logged and swallowed.
func (o *Orchestrator) broadcast(r *run, console Console, text string) {
	if console == nil || !r.snap.SendShutdownMessages {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.ctx), consoleTimeout)
	defer cancel()
	if _, err := console.IssueCommand(ctx, "broadcast "+text); err != nil {
		r.log.Warn().Err(err).Msg("Could not send in-game message")
	}
}

func (o *Orchestrator) console(r *run) (Console, func()) {
	if o.consoles == nil {
		return nil, func() {}
	}
	c, release, ok := o.consoles.Console(r.snap)
	if !ok {
		return nil, func() {}
	}
	return c, release
}

// stop warns players, counts down and terminates the server process. A
// missing process is not an error.
func (o *Orchestrator) stop(r *run, process domain.ServerProcess, restart, checkGracePeriod bool) domain.ExitCode {
	proc, err := o.processes.FindProcess(r.ctx, r.snap)
	if err != nil {
		r.log.Error().Err(err).Msg("Could not look up server process")
		return domain.ExitShutdownFailed
	}
	if proc == nil {
		r.log.Info().Msg("Server is not running")
		return domain.ExitNormal
	}

	console, release := o.console(r)
	defer release()

	if r.cancelled() {
		return o.cancelCountdown(r, console)
	}

	verb, suffix := phrasing(process, restart)

	if r.snap.ShutdownReason != "" && process != domain.ProcessStop {
		o.broadcast(r, console, r.snap.ShutdownReason)
		o.alert(r, domain.AlertShutdownReason, "%s", r.snap.ShutdownReason)
	}

	minutesLeft := 0
	if checkGracePeriod && process != domain.ProcessStop && console != nil {
		minutesLeft = r.snap.GracePeriodMinutes
	}

	if code := o.countdown(r, console, minutesLeft, verb, suffix); code != domain.ExitNormal {
		return code
	}
	if r.cancelled() {
		return o.cancelCountdown(r, console)
	}

	final := fmt.Sprintf("Server %s now%s.", verb, suffix)
	o.broadcast(r, console, final)
	o.alert(r, domain.AlertShutdownMessage, "%s", final)

	if console != nil {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.ctx), consoleTimeout)
		if _, err := console.IssueCommand(ctx, "saveworld"); err != nil {
			r.log.Warn().Err(err).Msg("Could not save world before shutdown")
		}
		cancel()
	}

	r.log.Info().Int32("pid", proc.PID()).Msg("Stopping server process")
	if err := o.processes.Terminate(proc); err != nil {
		r.log.Error().Err(err).Msg("Server process did not exit")
		if errors.Is(err, runner.ErrShutdownTimeout) {
			return domain.ExitShutdownTimeout
		}
		return domain.ExitShutdownFailed
	}

	o.alert(r, domain.AlertShutdown, "Server %s has stopped", r.snap.Name)
	return domain.ExitNormal
}

// countdown runs the per-minute warning loop. It ends early once the
// console reports zero online players.
func (o *Orchestrator) countdown(r *run, console Console, minutesLeft int, verb, suffix string) domain.ExitCode {
	first := true
	for minutesLeft > 0 {
		if r.cancelled() {
			return o.cancelCountdown(r, console)
		}

		if r.snap.CheckForOnlinePlayers {
			ctx, cancel := context.WithTimeout(r.ctx, consoleTimeout)
			n, err := console.OnlinePlayerCount(ctx)
			cancel()
			switch {
			case err != nil:
				r.log.Warn().Err(err).Msg("Could not check online players")
			case n == 0:
				r.log.Info().Int("minutes_left", minutesLeft).Msg("No players online, ending countdown")
				return domain.ExitNormal
			default:
				r.log.Debug().Int("players", n).Msg("Players online")
			}
		}

		if first || minutesLeft%warningInterval(minutesLeft) == 0 {
			msg := warningMessage(minutesLeft, verb, suffix)
			o.broadcast(r, console, msg)
			r.log.Info().Int("minutes_left", minutesLeft).Msg(msg)
			first = false
		}

		if err := o.clock.Sleep(r.ctx, countdownStep); err != nil {
			return o.cancelCountdown(r, console)
		}
		minutesLeft--
	}
	return domain.ExitNormal
}

func (o *Orchestrator) cancelCountdown(r *run, console Console) domain.ExitCode {
	r.log.Warn().Msg("Shutdown cancelled")
	o.broadcast(r, console, "Server shutdown has been cancelled.")
	return domain.ExitCancelled
}
