package lifecycle

import (
	"context"
	"errors"
	"path/filepath"
	"runtime/debug"
	"slices"
	"strings"

	"arkmanager/internal/domain"
	"arkmanager/internal/filesync"
	"arkmanager/internal/logger"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// PerformUpdateFiles brings one profile up to date from the cache, stopping
// and restarting it around the copy when it is running.
func (o *Orchestrator) PerformUpdateFiles(ctx context.Context, s domain.ProfileSnapshot, updateType domain.UpdateType, validate bool) domain.ExitCode {
	return o.execute(ctx, "update", s, func(r *run) domain.ExitCode {
		return o.updateProfile(r, updateType, validate, false, nil)
	})
}

func (o *Orchestrator) updateProfile(r *run, updateType domain.UpdateType, validate, cacheFresh bool, failedMods map[string]bool) domain.ExitCode {
	proc, err := o.processes.FindProcess(r.ctx, r.snap)
	if err != nil {
		r.log.Error().Err(err).Msg("Could not look up server process")
		return domain.ExitShutdownFailed
	}
	if proc == nil {
		return o.upgradeLocal(r, updateType, validate, cacheFresh, failedMods)
	}

	if code := o.stop(r, domain.ProcessUpdate, true, true); code != domain.ExitNormal {
		return code
	}
	if r.snap.BackupOnShutdown {
		if code := o.backup(r, false); code != domain.ExitNormal {
			return code
		}
	}
	if r.cancelled() {
		return domain.ExitCancelled
	}
	if code := o.upgradeLocal(r, updateType, validate, cacheFresh, failedMods); code != domain.ExitNormal {
		return code
	}
	if r.cancelled() {
		return domain.ExitCancelled
	}
	return o.start(r)
}

// upgradeLocal refreshes the cache (unless cacheFresh) and copies server
// files and each mod into the install. Mods are isolated from each other: a
// failing mod is recorded and the rest still run.
func (o *Orchestrator) upgradeLocal(r *run, updateType domain.UpdateType, validate, cacheFresh bool, failedMods map[string]bool) domain.ExitCode {
	var summary []string

	if updateType.HasServer() {
		key := r.snap.Branch()
		if !cacheFresh {
			if res := o.cache.UpdateBranch(r.ctx, key, validate, r.log); res.Code != domain.ExitNormal {
				return res.Code
			}
		}
		if r.cancelled() {
			return domain.ExitCancelled
		}

		_, copied, err := o.syncer.Sync(r.ctx, o.cache.BranchDir(key), r.snap.InstallDir)
		if code := syncCode(r, err, domain.ExitServerUpdateFailed); code != domain.ExitNormal {
			return code
		}
		if copied {
			updated := true
			version := o.cache.BuildID(key)
			r.merge.ServerUpdated = &updated
			if version != "" {
				r.merge.LastInstalledVersion = &version
			}
			r.log.Info().Str("build", version).Msg("Server files updated")
			summary = append(summary, "server updated")
		} else {
			summary = append(summary, "server up to date")
		}
	}

	var failed []string
	if updateType.HasMods() {
		for _, id := range r.snap.ModIDs {
			if r.cancelled() {
				return domain.ExitCancelled
			}
			mlog := r.log.With().Str("mod", id).Logger()

			if failedMods[id] {
				failed = append(failed, id)
				continue
			}
			if !cacheFresh {
				if res := o.cache.UpdateMod(r.ctx, id, mlog); res.Code != domain.ExitNormal {
					if res.Code == domain.ExitCancelled {
						return res.Code
					}
					mlog.Error().Str("exit_code", res.Code.String()).Msg("Mod download failed")
					failed = append(failed, id)
					continue
				}
			}

			_, copied, err := o.syncer.Sync(r.ctx, o.cache.ModDir(id), filepath.Join(r.snap.ModsDir(), id))
			if err != nil {
				if r.cancelled() {
					return domain.ExitCancelled
				}
				mlog.Error().Err(err).Msg("Mod copy failed")
				failed = append(failed, id)
				continue
			}
			if copied {
				summary = append(summary, "mod "+id+" updated")
			}
		}
	}

	if len(failed) > 0 {
		r.log.Error().Strs("failed_mods", failed).Msg("Some mods could not be updated")
		summary = append(summary, "failed mods: "+strings.Join(failed, ", "))
	}
	if len(summary) > 0 {
		o.alert(r, domain.AlertUpdateResults, "%s", strings.Join(summary, "; "))
	}
	if len(failed) > 0 {
		return domain.ExitModUpdateFailed
	}
	return domain.ExitNormal
}

func syncCode(r *run, err error, failed domain.ExitCode) domain.ExitCode {
	switch {
	case err == nil:
		return domain.ExitNormal
	case errors.Is(err, filesync.ErrCacheNotFound):
		r.log.Error().Err(err).Msg("Cache not found")
		return domain.ExitCacheNotFound
	case r.cancelled():
		return domain.ExitCancelled
	default:
		r.log.Error().Err(err).Msg("Copy from cache failed")
		return failed
	}
}

// PerformUpdate refreshes one branch cache and its mods once, then updates
// every auto-update profile bound to the branch that is behind the cache.
func (o *Orchestrator) PerformUpdate(ctx context.Context, key domain.BranchKey) (code domain.ExitCode) {
	scoped := logger.BranchLogger(o.opts.LogsPath, key.String())
	defer scoped.Close()
	log := scoped.With().Str("run_id", uuid.New().String()).Str("op", "update-branch").Logger()

	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Str("stack", string(debug.Stack())).Msg("Branch update crashed")
			code = domain.ExitUnknownError
		}
		log.Info().Str("exit_code", code.String()).Int("code", int(code)).Msg("Branch update finished")
	}()

	var profiles []domain.ProfileSnapshot
	for _, s := range o.registry.ForBranch(key) {
		if s.AutoUpdateEnabled {
			profiles = append(profiles, s)
		}
	}
	if len(profiles) == 0 {
		log.Info().Msg("No auto-update profiles on this branch")
		return domain.ExitNormal
	}

	if res := o.cache.UpdateBranch(ctx, key, false, log); res.Code != domain.ExitNormal {
		return res.Code
	}

	failedMods := o.updateModCache(ctx, log, profiles)
	if ctx.Err() != nil {
		return domain.ExitCancelled
	}

	var due []domain.ProfileSnapshot
	for _, s := range profiles {
		if o.behindCache(log, s) {
			due = append(due, s)
		}
	}
	log.Info().Int("profiles", len(profiles)).Int("due", len(due)).Msg("Branch cache ready")

	codes := o.fanOut(ctx, log, due, func(ctx context.Context, s domain.ProfileSnapshot) domain.ExitCode {
		return o.execute(ctx, "update", s, func(r *run) domain.ExitCode {
			updateType := domain.UpdateServer
			if len(s.ModIDs) > 0 {
				updateType = domain.UpdateServerAndMods
			}
			return o.updateProfile(r, updateType, false, true, failedMods)
		})
	})

	var busy []string
	for i, c := range codes {
		if c == domain.ExitProcessAlreadyRunning {
			busy = append(busy, due[i].Name)
		}
	}
	if len(busy) > 0 {
		log.Warn().Strs("profiles", busy).Msg("Profiles were busy and are still behind the cache")
	}
	return aggregate(codes)
}

// updateModCache downloads each mod used by profiles once. The returned set
// holds the mods that failed.
func (o *Orchestrator) updateModCache(ctx context.Context, log zerolog.Logger, profiles []domain.ProfileSnapshot) map[string]bool {
	var ids []string
	for _, s := range profiles {
		ids = append(ids, s.ModIDs...)
	}
	slices.Sort(ids)
	ids = slices.Compact(ids)

	failed := make(map[string]bool)
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		if res := o.cache.UpdateMod(ctx, id, log.With().Str("mod", id).Logger()); res.Code != domain.ExitNormal {
			failed[id] = true
		}
	}
	return failed
}

func (o *Orchestrator) behindCache(log zerolog.Logger, s domain.ProfileSnapshot) bool {
	need, err := filesync.NeedsCopy(o.cache.BranchDir(s.Branch()), s.InstallDir)
	if err != nil {
		log.Warn().Err(err).Str("profile", s.Name).Msg("Could not compare version stamps")
		return true
	}
	if need {
		return true
	}
	for _, id := range s.ModIDs {
		if need, err := filesync.NeedsCopy(o.cache.ModDir(id), filepath.Join(s.ModsDir(), id)); err != nil || need {
			return true
		}
	}
	return false
}

// fanOut runs fn for every profile, in parallel or one after another with
// InterProfileDelay between them.
func (o *Orchestrator) fanOut(ctx context.Context, log zerolog.Logger, profiles []domain.ProfileSnapshot, fn func(context.Context, domain.ProfileSnapshot) domain.ExitCode) []domain.ExitCode {
	codes := make([]domain.ExitCode, len(profiles))

	if o.opts.ParallelBranchUpdate {
		var g errgroup.Group
		for i, s := range profiles {
			g.Go(func() error {
				codes[i] = fn(ctx, s)
				return nil
			})
		}
		_ = g.Wait()
		return codes
	}

	for i, s := range profiles {
		if i > 0 && o.opts.InterProfileDelay > 0 {
			if err := o.clock.Sleep(ctx, o.opts.InterProfileDelay); err != nil {
				for j := i; j < len(codes); j++ {
					codes[j] = domain.ExitCancelled
				}
				log.Warn().Msg("Branch update cancelled between profiles")
				return codes
			}
		}
		codes[i] = fn(ctx, s)
	}
	return codes
}

// aggregate folds per-profile codes into the branch result. A profile
// skipped for lock contention was left behind the cache, so it counts as a
// failure here even though it is not an error for a single run.
func aggregate(codes []domain.ExitCode) domain.ExitCode {
	cancelled := false
	for _, c := range codes {
		if c.IsError() || c == domain.ExitProcessAlreadyRunning {
			return domain.ExitExitWithErrors
		}
		if c == domain.ExitCancelled {
			cancelled = true
		}
	}
	if cancelled {
		return domain.ExitCancelled
	}
	return domain.ExitNormal
}
