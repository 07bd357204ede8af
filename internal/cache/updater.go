// Package cache keeps the shared per-branch download caches up to date.
// Profiles on the same branch copy from one cache instead of each running
// their own download.
package cache

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"arkmanager/internal/domain"
	"arkmanager/internal/filesync"
	"arkmanager/internal/lock"
	"arkmanager/internal/retry"
	"arkmanager/internal/steamcmd"

	"github.com/rs/zerolog"
)

// SteamCmd is the part of steamcmd.Client the updater needs.
type SteamCmd interface {
	UpdateBranch(ctx context.Context, dir string, key domain.BranchKey, validate bool, log zerolog.Logger) (steamcmd.Result, error)
	DownloadWorkshopItem(ctx context.Context, req steamcmd.WorkshopRequest, log zerolog.Logger) (steamcmd.Result, error)
	Succeeded(r steamcmd.Result, err error) bool
}

// SteamAppsDir holds steamcmd bookkeeping inside a cache directory. It is
// never copied into an install.
const SteamAppsDir = "steamapps"

type Updater struct {
	Root        string
	LocksPath   string
	LockTimeout time.Duration
	ModAppID    string
	Retry       retry.Policy
	Steam       SteamCmd

	now func() time.Time
}

func NewUpdater(root, locksPath string, lockTimeout time.Duration, modAppID string, policy retry.Policy, steam SteamCmd) *Updater {
	return &Updater{
		Root:        root,
		LocksPath:   locksPath,
		LockTimeout: lockTimeout,
		ModAppID:    modAppID,
		Retry:       policy,
		Steam:       steam,
		now:         time.Now,
	}
}

type Result struct {
	Code          domain.ExitCode
	GotNewVersion bool
	Dir           string
}

func (u *Updater) BranchDir(key domain.BranchKey) string {
	return filepath.Join(u.Root, key.String())
}

func (u *Updater) workshopRoot() string {
	return filepath.Join(u.Root, "workshop")
}

func (u *Updater) ModDir(modID string) string {
	return filepath.Join(u.workshopRoot(), "steamapps", "workshop", "content", u.ModAppID, modID)
}

// UpdateBranch downloads the branch into its cache directory while holding
// the branch's own lock. When any file changed, the cache stamp is written
// before returning, so a following sync sees the new version.
func (u *Updater) UpdateBranch(ctx context.Context, key domain.BranchKey, validate bool, log zerolog.Logger) Result {
	dir := u.BranchDir(key)
	return u.withLock(ctx, dir, log, func() Result {
		return u.download(ctx, dir, log, func(ctx context.Context) (steamcmd.Result, error) {
			return u.Steam.UpdateBranch(ctx, dir, key, validate, log)
		}, domain.ExitCacheUpdateFailed)
	})
}

// UpdateMod downloads one workshop item into the shared mod cache.
func (u *Updater) UpdateMod(ctx context.Context, modID string, log zerolog.Logger) Result {
	root := u.workshopRoot()
	modDir := u.ModDir(modID)
	return u.withLock(ctx, root, log, func() Result {
		return u.download(ctx, modDir, log, func(ctx context.Context) (steamcmd.Result, error) {
			return u.Steam.DownloadWorkshopItem(ctx, steamcmd.WorkshopRequest{Dir: root, AppID: u.ModAppID, ItemID: modID}, log)
		}, domain.ExitModUpdateFailed)
	})
}

func (u *Updater) withLock(ctx context.Context, dir string, log zerolog.Logger, fn func() Result) Result {
	m := lock.New(u.LocksPath, "cache-"+lock.KeyForPath(dir))
	owned, err := m.Acquire(ctx, u.LockTimeout)
	if err != nil {
		log.Error().Err(err).Str("dir", dir).Msg("Could not use cache lock")
		return Result{Code: domain.ExitUnknownError, Dir: dir}
	}
	if !owned {
		if ctx.Err() != nil {
			return Result{Code: domain.ExitCancelled, Dir: dir}
		}
		log.Warn().Str("dir", dir).Msg("Cache is being updated by another process")
		return Result{Code: domain.ExitProcessAlreadyRunning, Dir: dir}
	}
	defer m.Release()
	return fn()
}

func (u *Updater) download(ctx context.Context, dir string, log zerolog.Logger, run func(context.Context) (steamcmd.Result, error), failCode domain.ExitCode) Result {
	res := Result{Dir: dir}
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Error().Err(err).Str("dir", dir).Msg("Could not create cache directory")
		res.Code = failCode
		return res
	}

	start := u.now().Truncate(time.Second)
	var lastErr error
	_, ok := retry.Run(ctx, u.Retry, func(ctx context.Context, attempt int) (steamcmd.Result, error) {
		r, err := run(ctx)
		if err != nil {
			lastErr = err
			if errors.Is(err, steamcmd.ErrNotFound) {
				return r, retry.Permanent(err)
			}
		}
		if !u.Steam.Succeeded(r, err) {
			log.Warn().Err(err).Int("attempt", attempt).Int("exit_code", r.ExitCode).Msg("steamcmd attempt failed")
		}
		return r, err
	}, u.Steam.Succeeded)

	switch {
	case ctx.Err() != nil:
		res.Code = domain.ExitCancelled
		return res
	case !ok && errors.Is(lastErr, steamcmd.ErrNotFound):
		log.Error().Err(lastErr).Msg("steamcmd is not installed")
		res.Code = domain.ExitSteamCmdNotFound
		return res
	case !ok:
		log.Error().Err(lastErr).Int("attempts", u.Retry.MaxAttempts).Str("dir", dir).Msg("Cache update failed")
		res.Code = failCode
		return res
	}

	changed, err := changedSince(dir, start)
	if err != nil {
		log.Error().Err(err).Str("dir", dir).Msg("Could not inspect cache")
		res.Code = failCode
		return res
	}
	_, hasStamp, _ := filesync.ReadStamp(dir)
	res.GotNewVersion = changed

	if changed || !hasStamp {
		if err := filesync.WriteStamp(dir, u.now()); err != nil {
			log.Error().Err(err).Str("dir", dir).Msg("Could not write cache stamp")
			res.Code = failCode
			return res
		}
	}

	log.Info().Bool("new_version", changed).Str("dir", dir).Msg("Cache is up to date")
	res.Code = domain.ExitNormal
	return res
}

var buildIDPattern = regexp.MustCompile(`"buildid"\s+"(\d+)"`)

// BuildID reads the installed build id from the branch's app manifest. It
// returns "" when the manifest is missing or has no build id.
func (u *Updater) BuildID(key domain.BranchKey) string {
	path := filepath.Join(u.BranchDir(key), SteamAppsDir, "appmanifest_"+key.AppID+".acf")
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	m := buildIDPattern.FindSubmatch(data)
	if m == nil {
		return ""
	}
	return string(m[1])
}

var errFound = errors.New("found")

// changedSince reports whether any file under dir, outside the steamapps
// bookkeeping directory, was modified at or after start.
func changedSince(dir string, start time.Time) (bool, error) {
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(dir, path)
		if d.IsDir() {
			if strings.EqualFold(rel, SteamAppsDir) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() == filesync.StampFile {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.ModTime().Before(start) {
			return errFound
		}
		return nil
	})
	if errors.Is(err, errFound) {
		return true, nil
	}
	return false, err
}
