package filesync

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// StampFile holds the unix time at which a directory's content was last
// updated, in seconds.
const StampFile = "LastUpdated.txt"

// ReadStamp returns the stamp of dir. ok is false when there is no stamp.
func ReadStamp(dir string) (t time.Time, ok bool, err error) {
	data, err := os.ReadFile(filepath.Join(dir, StampFile))
	if errors.Is(err, os.ErrNotExist) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}

	secs, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid stamp in %s: %w", dir, err)
	}
	return time.Unix(secs, 0), true, nil
}

// WriteStamp persists t for dir. The file is replaced atomically and synced
// so a reader never sees a half-written stamp.
func WriteStamp(dir string, t time.Time) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	path := filepath.Join(dir, StampFile)
	tmp := path + ".temp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(strconv.FormatInt(t.Unix(), 10)); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// NeedsCopy applies the version rule between a cache and an install: copy
// when the cache stamp is strictly newer, or when the install has no stamp
// at all. An equal or older cache stamp means nothing to do.
func NeedsCopy(cacheDir, installDir string) (bool, error) {
	installStamp, ok, err := ReadStamp(installDir)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}

	cacheStamp, ok, err := ReadStamp(cacheDir)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return cacheStamp.After(installStamp), nil
}
