// Package lifecycle sequences backup, shutdown, update and start of server
// profiles. Every entry point holds the profile's install lock for its whole
// duration and ends with exactly one domain.ExitCode.
package lifecycle

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"arkmanager/internal/backup"
	"arkmanager/internal/cache"
	"arkmanager/internal/domain"
	"arkmanager/internal/filesync"
	"arkmanager/internal/lock"
	"arkmanager/internal/logger"
	"arkmanager/internal/notify"
	"arkmanager/internal/runner"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Console is the part of an RCON session the orchestrator talks to.
type Console interface {
	IssueCommand(ctx context.Context, text string) ([]string, error)
	OnlinePlayerCount(ctx context.Context) (int, error)
}

// Consoles hands out a console for a profile. release must be called when
// the run is done with it.
type Consoles interface {
	Console(s domain.ProfileSnapshot) (c Console, release func(), ok bool)
}

type Processes interface {
	FindProcess(ctx context.Context, s domain.ProfileSnapshot) (runner.Process, error)
	StartServer(s domain.ProfileSnapshot) (int, error)
	Terminate(p runner.Process) error
}

type Backups interface {
	CreateBackup(ctx context.Context, s domain.ProfileSnapshot) (backup.Result, error)
	PurgeOld(s domain.ProfileSnapshot, now time.Time) (int, error)
}

type Cache interface {
	UpdateBranch(ctx context.Context, key domain.BranchKey, validate bool, log zerolog.Logger) cache.Result
	UpdateMod(ctx context.Context, modID string, log zerolog.Logger) cache.Result
	BranchDir(key domain.BranchKey) string
	ModDir(modID string) string
	BuildID(key domain.BranchKey) string
}

type Syncer interface {
	Sync(ctx context.Context, cacheDir, installDir string) (filesync.Stats, bool, error)
}

type Registry interface {
	ForBranch(key domain.BranchKey) []domain.ProfileSnapshot
	Merge(id string, fields domain.MergeFields) error
}

type Options struct {
	LocksPath string
	LogsPath  string

	LockTimeout          time.Duration
	BackupSaveDelay      time.Duration
	InterProfileDelay    time.Duration
	StartVerifyTimeout   time.Duration
	ParallelBranchUpdate bool
}

type Orchestrator struct {
	opts      Options
	registry  Registry
	processes Processes
	consoles  Consoles
	backups   Backups
	cache     Cache
	syncer    Syncer
	notifier  notify.Notifier
	clock     Clock

	writeSettings func(s domain.ProfileSnapshot) error
}

type Deps struct {
	Registry  Registry
	Processes Processes
	Consoles  Consoles
	Backups   Backups
	Cache     Cache
	Syncer    Syncer
	Notifier  notify.Notifier
	Clock     Clock

	// WriteSettings, when set, pushes profile values into the server's
	// config files before each start.
	WriteSettings func(s domain.ProfileSnapshot) error
}

func New(opts Options, deps Deps) *Orchestrator {
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = lock.DefaultTimeout
	}
	if opts.StartVerifyTimeout <= 0 {
		opts.StartVerifyTimeout = 2 * time.Minute
	}
	if deps.Clock == nil {
		deps.Clock = realClock{}
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Multi{}
	}
	return &Orchestrator{
		opts:      opts,
		registry:  deps.Registry,
		processes: deps.Processes,
		consoles:  deps.Consoles,
		backups:   deps.Backups,
		cache:     deps.Cache,
		syncer:    deps.Syncer,
		notifier:  deps.Notifier,
		clock:     deps.Clock,

		writeSettings: deps.WriteSettings,
	}
}

// run is the state of one orchestration call on one profile.
type run struct {
	ctx   context.Context
	id    string
	op    string
	snap  domain.ProfileSnapshot
	log   zerolog.Logger
	merge domain.MergeFields
}

func (o *Orchestrator) alert(r *run, t domain.AlertType, format string, args ...any) {
	o.notifier.Send(r.ctx, notify.NewAlert(t, r.snap, fmt.Sprintf(format, args...)))
}

// PerformBackup saves and archives the profile's world and config.
func (o *Orchestrator) PerformBackup(ctx context.Context, s domain.ProfileSnapshot) domain.ExitCode {
	return o.execute(ctx, "backup", s, func(r *run) domain.ExitCode {
		return o.backup(r, true)
	})
}

// PerformShutdown stops the server, then optionally backs up, updates and
// starts it again.
func (o *Orchestrator) PerformShutdown(ctx context.Context, s domain.ProfileSnapshot, restart bool, updateType domain.UpdateType, checkGracePeriod bool) domain.ExitCode {
	op := "shutdown"
	if restart {
		op = "restart"
	}
	return o.execute(ctx, op, s, func(r *run) domain.ExitCode {
		return o.shutdown(r, restart, updateType, checkGracePeriod)
	})
}

// PerformStop terminates the server right away: no reason message, no
// countdown and no backup.
func (o *Orchestrator) PerformStop(ctx context.Context, s domain.ProfileSnapshot) domain.ExitCode {
	return o.execute(ctx, "stop", s, func(r *run) domain.ExitCode {
		return o.stop(r, domain.ProcessStop, false, false)
	})
}

// PerformStart launches a stopped server.
func (o *Orchestrator) PerformStart(ctx context.Context, s domain.ProfileSnapshot) domain.ExitCode {
	return o.execute(ctx, "start", s, func(r *run) domain.ExitCode {
		return o.start(r)
	})
}

// execute wraps one profile operation: validation, the install lock, panic
// recovery, alerting, merge-back and the final exit code log line.
func (o *Orchestrator) execute(ctx context.Context, op string, s domain.ProfileSnapshot, fn func(r *run) domain.ExitCode) (code domain.ExitCode) {
	scoped := logger.ProfileLogger(o.opts.LogsPath, s.ID, s.Name)
	defer scoped.Close()

	r := &run{
		ctx:  ctx,
		id:   uuid.New().String(),
		op:   op,
		snap: s,
	}
	r.log = scoped.With().Str("run_id", r.id).Str("op", op).Logger()

	defer func() {
		if p := recover(); p != nil {
			r.log.Error().Interface("panic", p).Str("stack", string(debug.Stack())).Msg("Operation crashed")
			code = domain.ExitUnknownError
		}
		if code.IsError() {
			o.alert(r, domain.AlertError, "%s of %s failed: %s", op, s.Name, code)
		}
		r.log.Info().Str("exit_code", code.String()).Int("code", int(code)).Msg("Operation finished")
	}()

	r.log.Info().Msg("Operation started")

	if err := s.Validate(); err != nil {
		r.log.Error().Err(err).Msg("Invalid profile")
		return domain.ExitBadProfile
	}

	m := lock.ForPath(o.opts.LocksPath, s.InstallDir)
	owned, err := m.Acquire(ctx, o.opts.LockTimeout)
	if err != nil {
		r.log.Error().Err(err).Msg("Could not use profile lock")
		return domain.ExitUnknownError
	}
	if !owned {
		if ctx.Err() != nil {
			return domain.ExitCancelled
		}
		r.log.Warn().Str("lock", m.Name()).Msg("Another operation holds this profile")
		return domain.ExitProcessAlreadyRunning
	}
	defer m.Release()

	code = fn(r)
	o.mergeBack(r)
	return code
}

func (o *Orchestrator) mergeBack(r *run) {
	if r.merge.Empty() || o.registry == nil {
		return
	}
	if err := o.registry.Merge(r.snap.ID, r.merge); err != nil {
		r.log.Warn().Err(err).Msg("Could not save profile changes")
	}
}

// cancelled reports whether the run's context is done.
func (r *run) cancelled() bool { return r.ctx.Err() != nil }

func (o *Orchestrator) shutdown(r *run, restart bool, updateType domain.UpdateType, checkGracePeriod bool) domain.ExitCode {
	process := domain.ProcessShutdown
	switch {
	case updateType != domain.UpdateNone:
		process = domain.ProcessUpdate
	case restart:
		process = domain.ProcessRestart
	}

	if code := o.stop(r, process, restart, checkGracePeriod); code != domain.ExitNormal {
		return code
	}

	if r.snap.BackupOnShutdown {
		if r.cancelled() {
			return domain.ExitCancelled
		}
		if code := o.backup(r, false); code != domain.ExitNormal {
			return code
		}
	}

	if updateType != domain.UpdateNone {
		if r.cancelled() {
			return domain.ExitCancelled
		}
		if code := o.upgradeLocal(r, updateType, false, false, nil); code != domain.ExitNormal {
			return code
		}
	}

	if restart {
		if r.cancelled() {
			return domain.ExitCancelled
		}
		return o.start(r)
	}
	return domain.ExitNormal
}
