package api

import (
	"context"
	"sort"
	"sync"
	"time"

	"arkmanager/internal/domain"

	"github.com/google/uuid"
)

type RunState string

const (
	RunRunning  RunState = "running"
	RunFinished RunState = "finished"
)

// Run is one asynchronous orchestration call started through the API.
type Run struct {
	ID         string          `json:"id"`
	Op         string          `json:"op"`
	Target     string          `json:"target"`
	State      RunState        `json:"state"`
	ExitCode   domain.ExitCode `json:"exitCode"`
	Result     string          `json:"result,omitempty"`
	StartedAt  time.Time       `json:"startedAt"`
	FinishedAt *time.Time      `json:"finishedAt,omitempty"`

	cancel context.CancelFunc
	done   chan struct{}
}

const (
	defaultRunRetention = 24 * time.Hour
	defaultMaxRuns      = 500
)

// RunTracker starts runs detached from the HTTP request and keeps their
// outcome for later polling. Finished runs are dropped once they are older
// than retention, or oldest first when more than maxRuns are kept.
type RunTracker struct {
	base      context.Context
	mu        sync.Mutex
	runs      map[string]*Run
	wg        sync.WaitGroup
	retention time.Duration
	maxRuns   int
	now       func() time.Time
}

func NewRunTracker(base context.Context) *RunTracker {
	return &RunTracker{
		base:      base,
		runs:      make(map[string]*Run),
		retention: defaultRunRetention,
		maxRuns:   defaultMaxRuns,
		now:       time.Now,
	}
}

// prune makes room for one more run. It must be called with t.mu held.
// Running runs are never dropped.
func (t *RunTracker) prune() {
	now := t.now()
	var finished []*Run
	for id, r := range t.runs {
		if r.FinishedAt == nil {
			continue
		}
		if now.Sub(*r.FinishedAt) > t.retention {
			delete(t.runs, id)
			continue
		}
		finished = append(finished, r)
	}

	excess := len(t.runs) + 1 - t.maxRuns
	if excess <= 0 {
		return
	}
	sort.Slice(finished, func(i, j int) bool { return finished[i].FinishedAt.Before(*finished[j].FinishedAt) })
	for _, r := range finished[:min(excess, len(finished))] {
		delete(t.runs, r.ID)
	}
}

func (t *RunTracker) Start(op, target string, fn func(ctx context.Context) domain.ExitCode) Run {
	ctx, cancel := context.WithCancel(t.base)
	run := &Run{
		ID:        uuid.New().String(),
		Op:        op,
		Target:    target,
		State:     RunRunning,
		StartedAt: t.now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	t.mu.Lock()
	t.prune()
	t.runs[run.ID] = run
	snapshot := *run
	t.mu.Unlock()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer cancel()
		code := fn(ctx)

		t.mu.Lock()
		now := t.now()
		run.State = RunFinished
		run.ExitCode = code
		run.Result = code.String()
		run.FinishedAt = &now
		t.mu.Unlock()
		close(run.done)
	}()

	return snapshot
}

func (t *RunTracker) Get(id string) (Run, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	run, ok := t.runs[id]
	if !ok {
		return Run{}, false
	}
	return *run, true
}

func (t *RunTracker) List() []Run {
	t.mu.Lock()
	out := make([]Run, 0, len(t.runs))
	for _, r := range t.runs {
		out = append(out, *r)
	}
	t.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

// Cancel asks a running run to stop. It returns false for unknown runs.
func (t *RunTracker) Cancel(id string) bool {
	t.mu.Lock()
	run, ok := t.runs[id]
	t.mu.Unlock()
	if ok {
		run.cancel()
	}
	return ok
}

// Wait blocks until the run finishes or ctx is done.
func (t *RunTracker) Wait(ctx context.Context, id string) (Run, bool) {
	t.mu.Lock()
	run, ok := t.runs[id]
	t.mu.Unlock()
	if !ok {
		return Run{}, false
	}
	select {
	case <-run.done:
	case <-ctx.Done():
	}
	return t.Get(id)
}

// Shutdown cancels every run and waits for them to return.
func (t *RunTracker) Shutdown() {
	t.mu.Lock()
	for _, r := range t.runs {
		r.cancel()
	}
	t.mu.Unlock()
	t.wg.Wait()
}
