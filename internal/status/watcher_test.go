package status

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"arkmanager/internal/domain"
	"arkmanager/internal/runner"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProc struct{}

func (fakeProc) PID() int32               { return 99 }
func (fakeProc) Interrupt() error         { return nil }
func (fakeProc) Kill() error              { return nil }
func (fakeProc) IsRunning() (bool, error) { return true, nil }

type fakeFinder struct {
	running bool
	err     error
}

func (f fakeFinder) Find(context.Context, domain.ProfileSnapshot) (runner.Process, error) {
	if f.err != nil {
		return nil, f.err
	}
	if !f.running {
		return nil, nil
	}
	return fakeProc{}, nil
}

type fakeQuerier struct {
	ok map[string]bool
}

func (q fakeQuerier) Query(ip string, port int) (*domain.NetworkInfo, error) {
	if !q.ok[ip] {
		return nil, errors.New("timeout")
	}
	return &domain.NetworkInfo{Name: "srv", Players: 3, MaxPlayers: 70}, nil
}

type countingChecker struct {
	calls   atomic.Int32
	visible bool
}

func (c *countingChecker) Check(context.Context, string, int) (bool, error) {
	c.calls.Add(1)
	return c.visible, nil
}

func installed(t *testing.T, publicIP string) domain.ProfileSnapshot {
	t.Helper()
	p := &domain.Profile{ID: "p", Name: "p", InstallDir: t.TempDir(), ServerPort: 7777, QueryPort: 27015, PublicIP: publicIP}
	s := p.Snapshot()
	require.NoError(t, os.MkdirAll(filepath.Dir(s.ExecutablePath()), 0755))
	require.NoError(t, os.WriteFile(s.ExecutablePath(), nil, 0755))
	return s
}

func TestCheckStages(t *testing.T) {
	notInstalled := (&domain.Profile{InstallDir: "/does/not/exist"}).Snapshot()

	tests := []struct {
		name    string
		snap    func(t *testing.T) domain.ProfileSnapshot
		finder  fakeFinder
		querier fakeQuerier
		checker *countingChecker
		want    domain.ServerStatus
	}{
		{name: "not installed", snap: func(*testing.T) domain.ProfileSnapshot { return notInstalled }, want: domain.StatusNotInstalled},
		{name: "stopped", snap: func(t *testing.T) domain.ProfileSnapshot { return installed(t, "") }, want: domain.StatusStopped},
		{name: "process check error", snap: func(t *testing.T) domain.ProfileSnapshot { return installed(t, "") },
			finder: fakeFinder{err: errors.New("denied")}, want: domain.StatusUnknown},
		{name: "initializing", snap: func(t *testing.T) domain.ProfileSnapshot { return installed(t, "") },
			finder: fakeFinder{running: true}, want: domain.StatusInitializing},
		{name: "local only", snap: func(t *testing.T) domain.ProfileSnapshot { return installed(t, "") },
			finder: fakeFinder{running: true}, querier: fakeQuerier{ok: map[string]bool{"127.0.0.1": true}},
			want: domain.StatusRunningLocalCheck},
		{name: "public unconfirmed", snap: func(t *testing.T) domain.ProfileSnapshot { return installed(t, "203.0.113.7") },
			finder: fakeFinder{running: true}, querier: fakeQuerier{ok: map[string]bool{"127.0.0.1": true}},
			checker: &countingChecker{}, want: domain.StatusRunningExternalCheck},
		{name: "public by query", snap: func(t *testing.T) domain.ProfileSnapshot { return installed(t, "203.0.113.7") },
			finder: fakeFinder{running: true}, querier: fakeQuerier{ok: map[string]bool{"127.0.0.1": true, "203.0.113.7": true}},
			want: domain.StatusPublished},
		{name: "public by external check", snap: func(t *testing.T) domain.ProfileSnapshot { return installed(t, "203.0.113.7") },
			finder: fakeFinder{running: true}, querier: fakeQuerier{ok: map[string]bool{"127.0.0.1": true}},
			checker: &countingChecker{visible: true}, want: domain.StatusPublished},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var checker ExternalChecker
			if tt.checker != nil {
				checker = tt.checker
			}
			w := NewWatcher(tt.finder, tt.querier, checker, time.Hour, time.Hour, zerolog.Nop())
			got := w.check(context.Background(), tt.snap(t))
			assert.Equal(t, tt.want, got.Status)
			if tt.want >= domain.StatusRunningLocalCheck {
				assert.Equal(t, 3, got.OnlinePlayerCount)
				assert.Equal(t, int32(99), got.PID)
			}
		})
	}
}

func TestExternalCheckCooldown(t *testing.T) {
	checker := &countingChecker{visible: true}
	w := NewWatcher(fakeFinder{running: true}, fakeQuerier{ok: map[string]bool{"127.0.0.1": true}}, checker,
		time.Hour, time.Hour, zerolog.Nop())
	s := installed(t, "203.0.113.7")

	for i := 0; i < 5; i++ {
		got := w.check(context.Background(), s)
		assert.Equal(t, domain.StatusPublished, got.Status)
	}
	assert.Equal(t, int32(1), checker.calls.Load())
}

func TestWatcherDispatchesSerially(t *testing.T) {
	w := NewWatcher(fakeFinder{}, fakeQuerier{}, nil, time.Millisecond, time.Hour, zerolog.Nop())
	go w.Run()
	defer w.Stop()

	var inFlight, maxInFlight, calls atomic.Int32
	cb := func(u domain.ServerStatusUpdate) {
		n := inFlight.Add(1)
		if n > maxInFlight.Load() {
			maxInFlight.Store(n)
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		calls.Add(1)
	}

	regs := []*Registration{
		w.Register(installed(t, ""), cb),
		w.Register(installed(t, ""), cb),
	}

	assert.Eventually(t, func() bool { return calls.Load() >= 10 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, int32(1), maxInFlight.Load())

	for _, r := range regs {
		r.Unregister()
		r.Unregister()
	}
	settled := calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.LessOrEqual(t, calls.Load(), settled+1)
}

func TestNonPositiveIntervalFallsBack(t *testing.T) {
	for _, d := range []time.Duration{0, -time.Second} {
		w := NewWatcher(fakeFinder{}, fakeQuerier{}, nil, d, time.Hour, zerolog.Nop())
		assert.Equal(t, defaultInterval, w.interval)
		go w.Run()
		w.Stop()
	}
}

func TestUnregisteredGetsNoUpdates(t *testing.T) {
	w := NewWatcher(fakeFinder{}, fakeQuerier{}, nil, time.Millisecond, time.Hour, zerolog.Nop())
	go w.Run()
	defer w.Stop()

	var mu sync.Mutex
	var got []domain.ServerStatus
	reg := w.Register(installed(t, ""), func(u domain.ServerStatusUpdate) {
		mu.Lock()
		got = append(got, u.Status)
		mu.Unlock()
	})

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) > 0
	}, time.Second, time.Millisecond)
	mu.Lock()
	assert.Equal(t, domain.StatusStopped, got[0])
	mu.Unlock()

	reg.Unregister()
	mu.Lock()
	n := len(got)
	mu.Unlock()
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, n, len(got))
	mu.Unlock()
}

func TestHTTPChecker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "203.0.113.7:27015", r.URL.Query().Get("addr"))
		_, _ = w.Write([]byte(`{"response":{"success":true,"servers":[{"addr":"203.0.113.7:27015"}]}}`))
	}))
	defer srv.Close()

	c := HTTPChecker{URLTemplate: srv.URL + "/?addr=%s:%d"}
	ok, err := c.Check(context.Background(), "203.0.113.7", 27015)
	require.NoError(t, err)
	assert.True(t, ok)
}
