package rcon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"arkmanager/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	d *fakeDialer
}

func (c *fakeConn) Execute(cmd string) (string, error) {
	return c.d.respond(cmd)
}

func (c *fakeConn) Close() error { return nil }

type fakeDialer struct {
	mu        sync.Mutex
	dials     int
	dialErr   error
	failExecs int
	executed  []string
	responses map[string][]string
}

func (d *fakeDialer) Dial(context.Context, string, string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	return &fakeConn{d: d}, nil
}

func (d *fakeDialer) respond(cmd string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.executed = append(d.executed, cmd)
	if d.failExecs > 0 {
		d.failExecs--
		return "", errors.New("connection reset")
	}
	queue := d.responses[cmd]
	if len(queue) == 0 {
		return NoResponse, nil
	}
	resp := queue[0]
	if len(queue) > 1 {
		d.responses[cmd] = queue[1:]
	}
	return resp, nil
}

func startSession(t *testing.T, d *fakeDialer, opts Options) *Session {
	t.Helper()
	if opts.MaxConnectionRetries == 0 {
		opts.MaxConnectionRetries = 2
	}
	s := NewSession(opts, d, zerolog.Nop())
	go s.Run()
	t.Cleanup(s.Stop)
	return s
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) listen(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func TestIssueCommand(t *testing.T) {
	d := &fakeDialer{responses: map[string][]string{"getchat": {"Bob: hi\nAlice: hello\n"}}}
	s := startSession(t, d, Options{})

	lines, err := s.IssueCommand(context.Background(), "getchat")
	require.NoError(t, err)
	assert.Equal(t, []string{"Bob: hi", "Alice: hello"}, lines)

	lines, err = s.IssueCommand(context.Background(), "saveworld")
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestPlayerDiffJoinAndLeave(t *testing.T) {
	d := &fakeDialer{responses: map[string][]string{"listplayers": {
		"0. Alice, 111\n1. Bob, 222\n",
		"0. Bob, 222\n1. Carol, 333\n",
	}}}
	s := startSession(t, d, Options{})
	rec := &recorder{}
	remove := s.AddListener(rec.listen)
	defer remove()

	n, err := s.OnlinePlayerCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	rec.reset()

	n, err = s.OnlinePlayerCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	events := rec.snapshot()
	require.Len(t, events, 2)
	var joined, left []string
	for _, ev := range events {
		switch ev.Kind {
		case EventPlayerJoined:
			joined = append(joined, ev.Player.Name)
		case EventPlayerLeft:
			left = append(left, ev.Player.Name)
		default:
			t.Fatalf("unexpected event %s", ev.Kind)
		}
	}
	assert.Equal(t, []string{"Carol"}, joined)
	assert.Equal(t, []string{"Alice"}, left)

	var online []string
	for _, p := range s.Players() {
		if p.Online {
			online = append(online, p.Name)
		}
	}
	assert.ElementsMatch(t, []string{"Bob", "Carol"}, online)
}

func TestPlayerListIsNotForwardedAsOutput(t *testing.T) {
	d := &fakeDialer{responses: map[string][]string{
		"listplayers":  {"No Players Connected"},
		"broadcast hi": {"Server received, But no response!!"},
	}}
	s := startSession(t, d, Options{})
	rec := &recorder{}
	s.AddListener(rec.listen)

	_, err := s.IssueCommand(context.Background(), "listplayers")
	require.NoError(t, err)
	_, err = s.IssueCommand(context.Background(), "broadcast hi")
	require.NoError(t, err)

	events := rec.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, EventChat, events[0].Kind)
}

func TestRemovedListenerGetsNothing(t *testing.T) {
	d := &fakeDialer{}
	s := startSession(t, d, Options{})
	rec := &recorder{}
	remove := s.AddListener(rec.listen)
	remove()
	remove()

	_, err := s.IssueCommand(context.Background(), "saveworld")
	require.NoError(t, err)
	assert.Empty(t, rec.snapshot())
}

func TestReconnectThenRetry(t *testing.T) {
	d := &fakeDialer{failExecs: 2}
	s := startSession(t, d, Options{})

	_, err := s.IssueCommand(context.Background(), "saveworld")
	require.NoError(t, err)
	assert.Equal(t, 3, d.dials)
	assert.Equal(t, escalatedCommandRetries, s.commandRetries)
}

func TestCommandFailureLeavesSessionUsable(t *testing.T) {
	d := &fakeDialer{failExecs: 100}
	s := startSession(t, d, Options{})

	_, err := s.IssueCommand(context.Background(), "saveworld")
	assert.True(t, errors.Is(err, ErrCommandFailed))
	d.mu.Lock()
	assert.Len(t, d.executed, initialCommandRetries+1)
	d.executed = nil
	d.mu.Unlock()

	_, err = s.IssueCommand(context.Background(), "saveworld")
	assert.True(t, errors.Is(err, ErrCommandFailed))
	d.mu.Lock()
	assert.Len(t, d.executed, escalatedCommandRetries+1)
	d.mu.Unlock()

	d.mu.Lock()
	d.failExecs = 0
	d.mu.Unlock()
	_, err = s.IssueCommand(context.Background(), "saveworld")
	assert.NoError(t, err)
}

func TestAbandonedCommandStopsRetrying(t *testing.T) {
	d := &fakeDialer{dialErr: errors.New("refused")}
	s := startSession(t, d, Options{MaxConnectionRetries: 2, ReconnectDelay: 20 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := s.IssueCommand(ctx, "saveworld")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	time.Sleep(50 * time.Millisecond)
	d.mu.Lock()
	settled := d.dials
	d.dialErr = nil
	d.mu.Unlock()

	next, cancelNext := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancelNext()
	_, err = s.IssueCommand(next, "saveworld")
	require.NoError(t, err)

	d.mu.Lock()
	assert.Equal(t, settled+1, d.dials)
	d.mu.Unlock()
}

func TestExpiredRequestIsDropped(t *testing.T) {
	d := &fakeDialer{}
	s := startSession(t, d, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.IssueCommand(ctx, "saveworld")
	require.ErrorIs(t, err, context.Canceled)

	d.mu.Lock()
	assert.Empty(t, d.executed)
	d.mu.Unlock()
}

func TestConnectFailure(t *testing.T) {
	d := &fakeDialer{dialErr: errors.New("refused")}
	s := startSession(t, d, Options{MaxConnectionRetries: 1})

	_, err := s.OnlinePlayerCount(context.Background())
	assert.True(t, errors.Is(err, ErrCommandFailed))
}

func TestIssueAfterStop(t *testing.T) {
	s := NewSession(Options{}, &fakeDialer{}, zerolog.Nop())
	go s.Run()
	s.Stop()
	s.Stop()

	_, err := s.IssueCommand(context.Background(), "saveworld")
	assert.True(t, errors.Is(err, ErrSessionClosed))
}

func TestHeartbeatPollsPlayers(t *testing.T) {
	d := &fakeDialer{responses: map[string][]string{"listplayers": {"0. Alice, 111"}}}
	s := startSession(t, d, Options{HeartbeatInterval: 5 * time.Millisecond})

	assert.Eventually(t, func() bool {
		for _, p := range s.Players() {
			if p.Name == "Alice" && p.Online {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestStoredPlayersKeptWhenOffline(t *testing.T) {
	saveDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(saveDir, "111.arkprofile"), nil, 0644))

	d := &fakeDialer{responses: map[string][]string{"listplayers": {
		"0. Alice, 111\n1. Bob, 222",
		"No Players Connected",
	}}}
	s := startSession(t, d, Options{SaveDir: saveDir})

	_, err := s.IssueCommand(context.Background(), "listplayers")
	require.NoError(t, err)
	_, err = s.IssueCommand(context.Background(), "listplayers")
	require.NoError(t, err)

	players := s.Players()
	require.Len(t, players, 1)
	assert.Equal(t, "111", players[0].ID)
	assert.False(t, players[0].Online)
	assert.True(t, players[0].Valid)
}

func TestParsePlayerList(t *testing.T) {
	got := parsePlayerList(strings.Split("0. Some, Name, 76561198000000001\n\n1. Bob, 76561198000000002\ngarbage", "\n"))
	assert.Equal(t, []onlinePlayer{
		{ID: "76561198000000001", Name: "Some, Name"},
		{ID: "76561198000000002", Name: "Bob"},
	}, got)
	assert.Empty(t, parsePlayerList([]string{"No Players Connected"}))
}

func TestDiffPlayersRejoin(t *testing.T) {
	known := map[string]*domain.PlayerInfo{"1": {ID: "1", Name: "A", Online: false}}
	events := diffPlayers(known, []onlinePlayer{{ID: "1", Name: "A"}}, time.Now())
	require.Len(t, events, 1)
	assert.Equal(t, domain.PlayerJoined, events[0].Kind)

	events = diffPlayers(known, []onlinePlayer{{ID: "1", Name: "A"}}, time.Now())
	assert.Empty(t, events)
}
