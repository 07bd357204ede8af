// Package status polls the servers of registered profiles and reports how far
// each one got: installed, running, answering locally, visible publicly.
package status

import (
	"context"
	"errors"
	"net"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"arkmanager/internal/domain"
	"arkmanager/internal/runner"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const defaultInterval = 5 * time.Second

type Callback func(domain.ServerStatusUpdate)

type registration struct {
	id       int
	snapshot domain.ProfileSnapshot
	callback Callback
}

// Registration is the handle returned by Register.
type Registration struct {
	id   int
	w    *Watcher
	once sync.Once
}

// Unregister removes the registration. It is posted to the watcher's queue,
// so it never races a tick in progress. Safe to call more than once.
func (r *Registration) Unregister() {
	r.once.Do(func() {
		select {
		case r.w.unregister <- r.id:
		case <-r.w.done:
		}
	})
}

type Watcher struct {
	finder   runner.Finder
	querier  Querier
	external ExternalChecker
	interval time.Duration
	cooldown time.Duration
	log      zerolog.Logger

	register   chan registration
	unregister chan int
	stop       chan struct{}
	done       chan struct{}
	stopOnce   sync.Once
	nextID     int
	idMu       sync.Mutex

	// owned by the worker
	regs         map[int]registration
	limiters     map[string]*rate.Limiter
	lastExternal map[string]bool
}

func NewWatcher(finder runner.Finder, querier Querier, external ExternalChecker, interval, cooldown time.Duration, log zerolog.Logger) *Watcher {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Watcher{
		finder:       finder,
		querier:      querier,
		external:     external,
		interval:     interval,
		cooldown:     cooldown,
		log:          log,
		register:     make(chan registration),
		unregister:   make(chan int),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
		regs:         make(map[int]registration),
		limiters:     make(map[string]*rate.Limiter),
		lastExternal: make(map[string]bool),
	}
}

// Register adds a profile to the poll loop. cb runs on the watcher's worker
// once per tick and must not block for long.
func (w *Watcher) Register(s domain.ProfileSnapshot, cb Callback) *Registration {
	w.idMu.Lock()
	w.nextID++
	id := w.nextID
	w.idMu.Unlock()

	select {
	case w.register <- registration{id: id, snapshot: s, callback: cb}:
	case <-w.done:
	}
	return &Registration{id: id, w: w}
}

// Run is the single worker. Ticks are handled inline, so a slow tick delays
// the next one instead of overlapping it.
func (w *Watcher) Run() {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for {
		select {
		case reg := <-w.register:
			w.regs[reg.id] = reg

		case id := <-w.unregister:
			delete(w.regs, id)

		case <-ticker.C:
			w.tick(ctx)

		case <-w.stop:
			return
		}
	}
}

func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	<-w.done
}

func (w *Watcher) tick(ctx context.Context) {
	ids := make([]int, 0, len(w.regs))
	for id := range w.regs {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for _, id := range ids {
		reg := w.regs[id]
		update := w.check(ctx, reg.snapshot)
		reg.callback(update)
	}
}

// check runs every stage for one profile and returns the furthest reached.
func (w *Watcher) check(ctx context.Context, s domain.ProfileSnapshot) domain.ServerStatusUpdate {
	update := domain.ServerStatusUpdate{Status: domain.StatusNotInstalled, CheckedAt: time.Now()}

	if _, err := os.Stat(s.ExecutablePath()); err != nil {
		return update
	}

	proc, err := w.finder.Find(ctx, s)
	if err != nil {
		w.log.Debug().Err(err).Str("profile", s.Name).Msg("Process check failed")
		update.Status = domain.StatusUnknown
		return update
	}
	if proc == nil {
		update.Status = domain.StatusStopped
		return update
	}
	update.PID = proc.PID()
	update.Status = domain.StatusInitializing

	ip, port := s.LocalQueryEndpoint()
	info, err := w.querier.Query(ip, port)
	if err != nil {
		return update
	}
	update.NetworkInfo = info
	update.OnlinePlayerCount = info.Players
	update.Status = domain.StatusRunningLocalCheck

	publicIP, publicPort := s.PublicQueryEndpoint()
	if publicIP == "" {
		return update
	}
	update.Status = domain.StatusRunningExternalCheck

	if _, err := w.querier.Query(publicIP, publicPort); err == nil {
		update.Status = domain.StatusPublished
		return update
	}

	if w.externallyVisible(ctx, publicIP, publicPort) {
		update.Status = domain.StatusPublished
	}
	return update
}

// externallyVisible asks the external checker at most once per cooldown per
// endpoint and reuses the last answer in between.
func (w *Watcher) externallyVisible(ctx context.Context, ip string, port int) bool {
	if w.external == nil {
		return false
	}
	key := net.JoinHostPort(ip, strconv.Itoa(port))

	lim, ok := w.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(w.cooldown), 1)
		w.limiters[key] = lim
	}
	if !lim.Allow() {
		return w.lastExternal[key]
	}

	visible, err := w.external.Check(ctx, ip, port)
	if err != nil && !errors.Is(err, context.Canceled) {
		w.log.Debug().Err(err).Str("endpoint", key).Msg("External status check failed")
	}
	w.lastExternal[key] = visible && err == nil
	return w.lastExternal[key]
}
