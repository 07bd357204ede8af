package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"arkmanager/internal/domain"
	"arkmanager/internal/filesync"
	"arkmanager/internal/lock"
	"arkmanager/internal/retry"
	"arkmanager/internal/steamcmd"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSteam struct {
	calls     int
	failFirst int
	notFound  bool
	writeFile bool
}

func (f *fakeSteam) UpdateBranch(_ context.Context, dir string, _ domain.BranchKey, _ bool, _ zerolog.Logger) (steamcmd.Result, error) {
	return f.run(dir)
}

func (f *fakeSteam) DownloadWorkshopItem(_ context.Context, req steamcmd.WorkshopRequest, _ zerolog.Logger) (steamcmd.Result, error) {
	return f.run(filepath.Join(req.Dir, "steamapps", "workshop", "content", req.AppID, req.ItemID))
}

func (f *fakeSteam) run(dir string) (steamcmd.Result, error) {
	f.calls++
	if f.notFound {
		return steamcmd.Result{}, fmt.Errorf("%w: /x", steamcmd.ErrNotFound)
	}
	if f.calls <= f.failFirst {
		return steamcmd.Result{ExitCode: 8}, nil
	}
	if f.writeFile {
		if err := os.MkdirAll(filepath.Join(dir, "ShooterGame"), 0755); err != nil {
			return steamcmd.Result{}, err
		}
		if err := os.WriteFile(filepath.Join(dir, "ShooterGame", fmt.Sprintf("build-%d", f.calls)), []byte("x"), 0644); err != nil {
			return steamcmd.Result{}, err
		}
	}
	return steamcmd.Result{ExitCode: 0, SuccessSeen: true}, nil
}

func (f *fakeSteam) Succeeded(r steamcmd.Result, err error) bool {
	return err == nil && r.ExitCode == 0 && r.SuccessSeen
}

func newUpdater(t *testing.T, steam SteamCmd) *Updater {
	t.Helper()
	return NewUpdater(t.TempDir(), t.TempDir(), 50*time.Millisecond, "346110", retry.Policy{MaxAttempts: 3}, steam)
}

var key = domain.BranchKey{AppID: "376030"}

func TestUpdateBranchNewVersion(t *testing.T) {
	steam := &fakeSteam{writeFile: true, failFirst: 2}
	u := newUpdater(t, steam)

	res := u.UpdateBranch(context.Background(), key, false, zerolog.Nop())
	assert.Equal(t, domain.ExitNormal, res.Code)
	assert.True(t, res.GotNewVersion)
	assert.Equal(t, 3, steam.calls)

	_, ok, err := filesync.ReadStamp(u.BranchDir(key))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUpdateBranchNothingNew(t *testing.T) {
	u := newUpdater(t, &fakeSteam{})
	dir := u.BranchDir(key)
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "steamapps"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "steamapps", "appmanifest_376030.acf"), nil, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "server.bin"), nil, 0644))
	require.NoError(t, os.Chtimes(filepath.Join(dir, "server.bin"), old, old))
	require.NoError(t, filesync.WriteStamp(dir, old))

	res := u.UpdateBranch(context.Background(), key, false, zerolog.Nop())
	assert.Equal(t, domain.ExitNormal, res.Code)
	assert.False(t, res.GotNewVersion)

	stamp, _, _ := filesync.ReadStamp(dir)
	assert.Equal(t, old.Unix(), stamp.Unix())
}

func TestUpdateBranchExhaustsRetries(t *testing.T) {
	steam := &fakeSteam{failFirst: 100}
	res := newUpdater(t, steam).UpdateBranch(context.Background(), key, false, zerolog.Nop())
	assert.Equal(t, domain.ExitCacheUpdateFailed, res.Code)
	assert.Equal(t, 3, steam.calls)
}

func TestUpdateBranchSteamCmdMissing(t *testing.T) {
	steam := &fakeSteam{notFound: true}
	res := newUpdater(t, steam).UpdateBranch(context.Background(), key, false, zerolog.Nop())
	assert.Equal(t, domain.ExitSteamCmdNotFound, res.Code)
	assert.Equal(t, 1, steam.calls)
}

func TestUpdateBranchLockedElsewhere(t *testing.T) {
	steam := &fakeSteam{writeFile: true}
	u := newUpdater(t, steam)

	other := lock.New(u.LocksPath, "cache-"+lock.KeyForPath(u.BranchDir(key)))
	owned, err := other.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	require.True(t, owned)
	defer other.Release()

	res := u.UpdateBranch(context.Background(), key, false, zerolog.Nop())
	assert.Equal(t, domain.ExitProcessAlreadyRunning, res.Code)
	assert.Equal(t, 0, steam.calls)
}

func TestUpdateMod(t *testing.T) {
	steam := &fakeSteam{writeFile: true}
	u := newUpdater(t, steam)

	res := u.UpdateMod(context.Background(), "731604991", zerolog.Nop())
	assert.Equal(t, domain.ExitNormal, res.Code)
	assert.True(t, res.GotNewVersion)
	assert.Equal(t, u.ModDir("731604991"), res.Dir)
	assert.FileExists(t, filepath.Join(res.Dir, filesync.StampFile))
}

func TestBuildID(t *testing.T) {
	u := newUpdater(t, &fakeSteam{})
	assert.Equal(t, "", u.BuildID(key))

	manifest := "\"AppState\"\n{\n\t\"appid\"\t\t\"376030\"\n\t\"buildid\"\t\t\"16803393\"\n}\n"
	dir := filepath.Join(u.BranchDir(key), "steamapps")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "appmanifest_376030.acf"), []byte(manifest), 0644))
	assert.Equal(t, "16803393", u.BuildID(key))
}
