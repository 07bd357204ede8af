// Package filesync mirrors a branch cache into a profile's install directory,
// copying only what changed.
package filesync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"arkmanager/internal/retry"

	"github.com/rs/zerolog"
)

var ErrCacheNotFound = errors.New("cache directory not found")

type Stats struct {
	Copied  int
	Skipped int
	Bytes   int64
}

type Copier struct {
	// Retry bounds the attempts for each individual file copy.
	Retry retry.Policy
	// Exclude lists top level entries of the source that are never copied.
	Exclude []string
	Log     zerolog.Logger
}

func NewCopier(p retry.Policy, log zerolog.Logger, exclude ...string) *Copier {
	return &Copier{Retry: p, Exclude: exclude, Log: log}
}

func (c *Copier) excluded(rel string) bool {
	top := strings.SplitN(filepath.ToSlash(rel), "/", 2)[0]
	if rel == StampFile || strings.HasSuffix(rel, ".temp") {
		return true
	}
	for _, e := range c.Exclude {
		if strings.EqualFold(top, e) {
			return true
		}
	}
	return false
}

// upToDate reports whether dst can be left alone: it exists, is not older
// than src, and has the same size.
func upToDate(src os.FileInfo, dstPath string) bool {
	dst, err := os.Stat(dstPath)
	if err != nil {
		return false
	}
	return !dst.ModTime().Before(src.ModTime()) && dst.Size() == src.Size()
}

// CopyDir copies every file of src into dst that is missing, older or of a
// different size there. Copied files take the source modification time.
// ctx is checked between files; a file that has started copying is finished.
func (c *Copier) CopyDir(ctx context.Context, src, dst string) (Stats, error) {
	var stats Stats

	info, err := os.Stat(src)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return stats, fmt.Errorf("%w: %s", ErrCacheNotFound, src)
		}
		return stats, err
	}
	if !info.IsDir() {
		return stats, fmt.Errorf("%s is not a directory", src)
	}

	err = filepath.Walk(src, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil || rel == "." {
			return err
		}
		if c.excluded(rel) {
			if fi.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		target := filepath.Join(dst, rel)
		if fi.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if upToDate(fi, target) {
			stats.Skipped++
			return nil
		}

		ok := retry.Do(ctx, c.Retry, func(_ context.Context, attempt int) error {
			err := copyFile(path, target, fi)
			if err != nil {
				c.Log.Warn().Err(err).Str("file", rel).Int("attempt", attempt).Msg("File copy failed")
			}
			return err
		})
		if !ok {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("could not copy %s", rel)
		}

		stats.Copied++
		stats.Bytes += fi.Size()
		return nil
	})

	return stats, err
}

func copyFile(src, dst string, fi os.FileInfo) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	tmp := dst + ".temp"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, fi.Mode().Perm()|0200)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Chtimes(dst, fi.ModTime(), fi.ModTime())
}

// Sync copies cacheDir into installDir when NeedsCopy says so, then gives the
// install the cache's stamp. copied is false when the install was current.
func (c *Copier) Sync(ctx context.Context, cacheDir, installDir string) (stats Stats, copied bool, err error) {
	if _, err := os.Stat(cacheDir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return stats, false, fmt.Errorf("%w: %s", ErrCacheNotFound, cacheDir)
		}
		return stats, false, err
	}

	need, err := NeedsCopy(cacheDir, installDir)
	if err != nil {
		return stats, false, err
	}
	if !need {
		c.Log.Info().Str("cache", cacheDir).Msg("Install is up to date with cache, skipping copy")
		return stats, false, nil
	}

	stats, err = c.CopyDir(ctx, cacheDir, installDir)
	if err != nil {
		return stats, false, err
	}

	stamp, ok, err := ReadStamp(cacheDir)
	if err != nil {
		return stats, true, err
	}
	if ok {
		if err := WriteStamp(installDir, stamp); err != nil {
			return stats, true, fmt.Errorf("could not write install stamp: %w", err)
		}
	}

	c.Log.Info().Int("copied", stats.Copied).Int("skipped", stats.Skipped).Int64("bytes", stats.Bytes).Msg("Synchronized install from cache")
	return stats, true, nil
}
