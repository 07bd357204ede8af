package lifecycle

import (
	"context"
	"errors"
	"time"

	"arkmanager/internal/backup"
	"arkmanager/internal/domain"
)

// backup archives config and world files. When the server is still running
// it first asks it to save, best effort.
func (o *Orchestrator) backup(r *run, saveIfRunning bool) domain.ExitCode {
	if saveIfRunning {
		o.saveWorld(r)
	}
	if r.cancelled() {
		return domain.ExitCancelled
	}

	res, err := o.backups.CreateBackup(r.ctx, r.snap)
	switch {
	case errors.Is(err, backup.ErrNothingToBackup):
		r.log.Warn().Msg("Nothing to back up")
		return domain.ExitNormal
	case err != nil && r.cancelled():
		return domain.ExitCancelled
	case err != nil:
		r.log.Error().Err(err).Msg("Backup failed")
		return domain.ExitBackupFailed
	}
	r.log.Info().Str("archive", res.Path).Int("files", res.Files).Msg("Backup created")

	if n, err := o.backups.PurgeOld(r.snap, o.clock.Now()); err != nil {
		r.log.Warn().Err(err).Msg("Could not purge old backups")
	} else if n > 0 {
		r.log.Info().Int("removed", n).Msg("Purged old backups")
	}

	o.alert(r, domain.AlertBackup, "Backup of %s created", r.snap.Name)
	return domain.ExitNormal
}

func (o *Orchestrator) saveWorld(r *run) {
	proc, err := o.processes.FindProcess(r.ctx, r.snap)
	if err != nil || proc == nil {
		return
	}
	console, release := o.console(r)
	defer release()
	if console == nil {
		r.log.Warn().Msg("Server is running without RCON, backing up without a save")
		return
	}

	ctx, cancel := context.WithTimeout(r.ctx, 30*time.Second)
	defer cancel()
	if _, err := console.IssueCommand(ctx, "broadcast Saving the world, expect a short pause."); err != nil {
		r.log.Warn().Err(err).Msg("Could not send save message")
	}
	if _, err := console.IssueCommand(ctx, "saveworld"); err != nil {
		r.log.Warn().Err(err).Msg("World save failed, backing up last saved files")
		return
	}
	if o.opts.BackupSaveDelay > 0 {
		_ = o.clock.Sleep(r.ctx, o.opts.BackupSaveDelay)
	}
}
