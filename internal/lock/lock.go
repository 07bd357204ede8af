// Package lock provides named cross-process mutexes backed by lock files.
//
// Two processes that build a Mutex for the same installation directory contend
// on the same file, so at most one of them runs a critical operation on it at a
// time. The kernel drops the lock when the holder exits, including on a crash.
package lock

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

const DefaultTimeout = 5 * time.Minute

var pollInterval = 250 * time.Millisecond

// KeyForPath derives a stable lock name from a filesystem path. The same
// directory always yields the same key, across processes and restarts. Case
// is folded only on Windows, where paths are case-insensitive.
func KeyForPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	abs = filepath.Clean(abs)
	if runtime.GOOS == "windows" {
		abs = strings.ToLower(abs)
	}

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], xxhash.Sum64String(abs))
	return "arkmanager-" + hex.EncodeToString(buf[:])
}

type Mutex struct {
	name string
	path string

	mu   sync.Mutex
	file *os.File
}

// New returns a mutex named key whose lock file lives in dir.
func New(dir, key string) *Mutex {
	return &Mutex{
		name: key,
		path: filepath.Join(dir, key+".lock"),
	}
}

// ForPath returns the mutex guarding the given directory.
func ForPath(dir, target string) *Mutex {
	return New(dir, KeyForPath(target))
}

func (m *Mutex) Name() string { return m.name }

// Acquire claims the lock without blocking and, if it is held elsewhere,
// keeps trying until timeout elapses or ctx is done. Contention is not an
// error: owned is false and err is nil. err reports only failures to use the
// lock file itself.
func (m *Mutex) Acquire(ctx context.Context, timeout time.Duration) (owned bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.file != nil {
		return false, fmt.Errorf("lock %s already held by this handle", m.name)
	}

	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return false, fmt.Errorf("create lock directory: %w", err)
	}
	f, err := os.OpenFile(m.path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return false, fmt.Errorf("open lock file %s: %w", m.path, err)
	}

	ok, err := tryLock(f)
	if err != nil {
		f.Close()
		return false, fmt.Errorf("lock %s: %w", m.path, err)
	}
	if ok {
		m.file = f
		return true, nil
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.Close()
			return false, nil
		case <-deadline.C:
			f.Close()
			return false, nil
		case <-ticker.C:
			ok, err := tryLock(f)
			if err != nil {
				f.Close()
				return false, fmt.Errorf("lock %s: %w", m.path, err)
			}
			if ok {
				m.file = f
				return true, nil
			}
		}
	}
}

// Release unlocks and closes the lock file. Safe to call more than once and
// on a mutex that was never acquired.
func (m *Mutex) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.file == nil {
		return
	}
	_ = unlock(m.file)
	_ = m.file.Close()
	m.file = nil
}

// Held reports whether this handle currently owns the lock.
func (m *Mutex) Held() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.file != nil
}
