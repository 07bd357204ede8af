package lifecycle

import (
	"time"

	"arkmanager/internal/domain"
)

const startPollInterval = 2 * time.Second

// start launches the server unless it is already running and waits until
// the process can be found.
func (o *Orchestrator) start(r *run) domain.ExitCode {
	if proc, err := o.processes.FindProcess(r.ctx, r.snap); err == nil && proc != nil {
		r.log.Info().Int32("pid", proc.PID()).Msg("Server already running")
		return domain.ExitNormal
	}

	if o.writeSettings != nil {
		if err := o.writeSettings(r.snap); err != nil {
			r.log.Warn().Err(err).Msg("Could not write server settings")
		}
	}

	pid, err := o.processes.StartServer(r.snap)
	if err != nil {
		r.log.Error().Err(err).Msg("Could not start server")
		return domain.ExitRestartFailed
	}
	r.log.Info().Int("pid", pid).Msg("Server process launched")

	polls := int(o.opts.StartVerifyTimeout / startPollInterval)
	for i := 0; ; i++ {
		proc, err := o.processes.FindProcess(r.ctx, r.snap)
		if err == nil && proc != nil {
			break
		}
		if i >= polls {
			r.log.Error().Msg("Server process did not appear after start")
			return domain.ExitRestartFailed
		}
		if err := o.clock.Sleep(r.ctx, startPollInterval); err != nil {
			return domain.ExitCancelled
		}
	}

	now := o.clock.Now()
	r.merge.LastStarted = &now
	o.alert(r, domain.AlertStartup, "Server %s started", r.snap.Name)
	return domain.ExitNormal
}
