package filesync

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"arkmanager/internal/retry"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCopier(exclude ...string) *Copier {
	return NewCopier(retry.Policy{MaxAttempts: 2}, zerolog.Nop(), exclude...)
}

func writeFile(t *testing.T, path, content string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestCopyDirLeavesUpToDateFileAlone(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	base := time.Now().Add(-time.Hour).Truncate(time.Second)

	writeFile(t, filepath.Join(src, "a.bin"), "AAAA", base)
	newer := base.Add(10 * time.Minute)
	writeFile(t, filepath.Join(dst, "a.bin"), "BBBB", newer)

	stats, err := newCopier().CopyDir(context.Background(), src, dst)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Copied)
	assert.Equal(t, 1, stats.Skipped)

	data, _ := os.ReadFile(filepath.Join(dst, "a.bin"))
	assert.Equal(t, "BBBB", string(data))
	fi, _ := os.Stat(filepath.Join(dst, "a.bin"))
	assert.True(t, fi.ModTime().Equal(newer))
}

func TestCopyDirOverwrites(t *testing.T) {
	base := time.Now().Add(-time.Hour).Truncate(time.Second)

	tests := []struct {
		name  string
		setup func(t *testing.T, dst string)
	}{
		{name: "missing", setup: func(*testing.T, string) {}},
		{name: "older", setup: func(t *testing.T, dst string) {
			writeFile(t, filepath.Join(dst, "sub", "a.bin"), "BBBB", base.Add(-time.Minute))
		}},
		{name: "smaller", setup: func(t *testing.T, dst string) {
			writeFile(t, filepath.Join(dst, "sub", "a.bin"), "B", base.Add(time.Minute))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, dst := t.TempDir(), t.TempDir()
			writeFile(t, filepath.Join(src, "sub", "a.bin"), "AAAA", base)
			tt.setup(t, dst)

			stats, err := newCopier().CopyDir(context.Background(), src, dst)
			require.NoError(t, err)
			assert.Equal(t, 1, stats.Copied)

			data, err := os.ReadFile(filepath.Join(dst, "sub", "a.bin"))
			require.NoError(t, err)
			assert.Equal(t, "AAAA", string(data))
			fi, _ := os.Stat(filepath.Join(dst, "sub", "a.bin"))
			assert.True(t, fi.ModTime().Equal(base))
		})
	}
}

func TestCopyDirIsIdempotent(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	base := time.Now().Add(-time.Hour).Truncate(time.Second)
	writeFile(t, filepath.Join(src, "x", "1.pak"), "one", base)
	writeFile(t, filepath.Join(src, "2.pak"), "two", base)

	c := newCopier()
	first, err := c.CopyDir(context.Background(), src, dst)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Copied)

	second, err := c.CopyDir(context.Background(), src, dst)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Copied)
	assert.Equal(t, 2, second.Skipped)
}

func TestCopyDirExcludes(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	base := time.Now().Truncate(time.Second)
	writeFile(t, filepath.Join(src, "steamapps", "appmanifest_376030.acf"), "m", base)
	writeFile(t, filepath.Join(src, StampFile), "1", base)
	writeFile(t, filepath.Join(src, "ShooterGame", "x.bin"), "x", base)

	stats, err := newCopier("steamapps").CopyDir(context.Background(), src, dst)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Copied)
	assert.NoDirExists(t, filepath.Join(dst, "steamapps"))
	assert.NoFileExists(t, filepath.Join(dst, StampFile))
}

func TestCopyDirStopsWhenCancelled(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(src, "a"), "a", time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newCopier().CopyDir(ctx, src, dst)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, filepath.Join(dst, "a"))
}

func TestStampRoundTrip(t *testing.T) {
	dir := t.TempDir()
	_, ok, err := ReadStamp(dir)
	require.NoError(t, err)
	assert.False(t, ok)

	now := time.Unix(1767225600, 0)
	require.NoError(t, WriteStamp(dir, now))
	got, ok, err := ReadStamp(dir)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, got.Equal(now))
}

func TestSyncMonotonicSkipRule(t *testing.T) {
	t0 := time.Unix(1767225600, 0)

	tests := []struct {
		name       string
		cache      time.Time
		install    *time.Time
		wantCopied bool
	}{
		{name: "cache newer", cache: t0.Add(time.Hour), install: &t0, wantCopied: true},
		{name: "equal", cache: t0, install: &t0, wantCopied: false},
		{name: "cache older", cache: t0.Add(-time.Hour), install: &t0, wantCopied: false},
		{name: "install unknown", cache: t0, install: nil, wantCopied: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache, install := t.TempDir(), t.TempDir()
			writeFile(t, filepath.Join(cache, "ShooterGame", "server.bin"), "new-build", time.Now())
			require.NoError(t, WriteStamp(cache, tt.cache))
			if tt.install != nil {
				require.NoError(t, WriteStamp(install, *tt.install))
			}

			stats, copied, err := newCopier().Sync(context.Background(), cache, install)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCopied, copied)
			if tt.wantCopied {
				assert.Equal(t, 1, stats.Copied)
				got, _, _ := ReadStamp(install)
				assert.True(t, got.Equal(tt.cache))
			} else {
				assert.Equal(t, 0, stats.Copied)
				assert.NoFileExists(t, filepath.Join(install, "ShooterGame", "server.bin"))
			}
		})
	}
}

func TestSyncMissingCache(t *testing.T) {
	_, _, err := newCopier().Sync(context.Background(), filepath.Join(t.TempDir(), "none"), t.TempDir())
	assert.True(t, errors.Is(err, ErrCacheNotFound))
}
