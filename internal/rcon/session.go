// Package rcon keeps a live remote console session to one game server.
//
// All traffic to the server goes through a single worker goroutine, so only
// one command is ever in flight. The worker also runs the listplayers
// heartbeat and turns its output into join and leave events.
package rcon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"arkmanager/internal/domain"
	"arkmanager/internal/retry"

	"github.com/rs/zerolog"
)

var (
	ErrSessionClosed = errors.New("rcon session closed")
	ErrCommandFailed = errors.New("rcon command failed")
)

// NoResponse is what the server answers to a command that produced no output.
const NoResponse = "Server received, But no response!!"

const (
	initialCommandRetries   = 3
	escalatedCommandRetries = 10
)

type EventKind string

const (
	EventOutput       EventKind = "output"
	EventChat         EventKind = "chat"
	EventPlayerJoined EventKind = "player_joined"
	EventPlayerLeft   EventKind = "player_left"
)

type Event struct {
	Kind    EventKind          `json:"kind"`
	Command string             `json:"command,omitempty"`
	Lines   []string           `json:"lines,omitempty"`
	Player  *domain.PlayerInfo `json:"player,omitempty"`
	At      time.Time          `json:"at"`
}

type Listener func(Event)

type Options struct {
	Address  string
	Password string

	HeartbeatInterval     time.Duration
	PlayerRefreshInterval time.Duration
	MaxConnectionRetries  int
	ReconnectDelay        time.Duration

	// SaveDir holds the <playerId>.arkprofile files that back the player list.
	SaveDir string
}

type commandRequest struct {
	ctx        context.Context
	text       string
	background bool
	reply      chan commandResult
}

type commandResult struct {
	lines []string
	err   error
}

type listenerReg struct {
	id int
	fn Listener
}

type Session struct {
	opts    Options
	dialer  Dialer
	log     zerolog.Logger
	chatLog zerolog.Logger

	commands       chan commandRequest
	addListener    chan listenerReg
	removeListener chan int
	stop           chan struct{}
	done           chan struct{}
	stopOnce       sync.Once
	nextListener   atomic.Int64

	// owned by the worker
	conn           Conn
	commandRetries int
	listeners      map[int]Listener
	known          map[string]*domain.PlayerInfo
	stored         map[string]bool

	players atomic.Pointer[[]domain.PlayerInfo]
}

func NewSession(opts Options, dialer Dialer, log zerolog.Logger) *Session {
	s := &Session{
		opts:           opts,
		dialer:         dialer,
		log:            log,
		chatLog:        log.With().Str("channel", "chat").Logger(),
		commands:       make(chan commandRequest),
		addListener:    make(chan listenerReg),
		removeListener: make(chan int),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
		commandRetries: initialCommandRetries,
		listeners:      make(map[int]Listener),
		known:          make(map[string]*domain.PlayerInfo),
		stored:         make(map[string]bool),
	}
	empty := []domain.PlayerInfo{}
	s.players.Store(&empty)
	return s
}

// Run is the session worker. It returns after Stop.
func (s *Session) Run() {
	defer close(s.done)

	heartbeat := newTicker(s.opts.HeartbeatInterval)
	defer heartbeat.Stop()
	refresh := newTicker(s.opts.PlayerRefreshInterval)
	defer refresh.Stop()

	s.refreshPlayerData()

	for {
		select {
		case req := <-s.commands:
			if err := req.ctx.Err(); err != nil {
				req.reply <- commandResult{err: err}
				continue
			}
			lines, err := s.handle(req.ctx, req.text, req.background)
			req.reply <- commandResult{lines: lines, err: err}

		case reg := <-s.addListener:
			s.listeners[reg.id] = reg.fn

		case id := <-s.removeListener:
			delete(s.listeners, id)

		case <-heartbeat.C:
			if _, err := s.handle(context.Background(), "listplayers", true); err != nil {
				s.log.Debug().Err(err).Msg("Player list heartbeat failed")
			}

		case <-refresh.C:
			s.refreshPlayerData()

		case <-s.stop:
			s.disconnect()
			return
		}
	}
}

// Stop ends the worker and closes the connection. Pending and future
// commands fail with ErrSessionClosed.
func (s *Session) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

// IssueCommand sends text to the server and waits for its response lines.
// A failed command does not end the session.
func (s *Session) IssueCommand(ctx context.Context, text string) ([]string, error) {
	req := commandRequest{ctx: ctx, text: strings.TrimSpace(text), reply: make(chan commandResult, 1)}

	select {
	case s.commands <- req:
	case <-s.done:
		return nil, ErrSessionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-req.reply:
		return res.lines, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// OnlinePlayerCount asks the server for its player list. The count is only
// meaningful when err is nil.
func (s *Session) OnlinePlayerCount(ctx context.Context) (int, error) {
	lines, err := s.IssueCommand(ctx, "listplayers")
	if err != nil {
		return 0, err
	}
	return len(parsePlayerList(lines)), nil
}

// Players returns the current player collection. The slice is shared and
// must not be modified; it is replaced as a whole on every change.
func (s *Session) Players() []domain.PlayerInfo {
	return *s.players.Load()
}

// AddListener registers fn for console, chat and player events. fn runs on
// the session worker and must not block. The returned function unregisters it.
func (s *Session) AddListener(fn Listener) (remove func()) {
	id := int(s.nextListener.Add(1))
	select {
	case s.addListener <- listenerReg{id: id, fn: fn}:
	case <-s.done:
		return func() {}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			select {
			case s.removeListener <- id:
			case <-s.done:
			}
		})
	}
}

func (s *Session) handle(ctx context.Context, text string, background bool) ([]string, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: empty command", ErrCommandFailed)
	}

	var (
		raw string
		err error
	)
	if background {
		raw, err = s.executeOnce(ctx, text)
	} else {
		raw, err = s.execute(ctx, text)
	}
	if err != nil {
		return nil, err
	}

	lines := splitLines(raw)
	now := time.Now()
	verb := strings.ToLower(strings.Fields(text)[0])

	switch {
	case verb == "listplayers":
		s.applyPlayerList(parsePlayerList(lines), now)
	case isChatCommand(verb):
		s.chatLog.Info().Str("command", text).Msg(strings.Join(lines, " "))
		s.emit(Event{Kind: EventChat, Command: text, Lines: lines, At: now})
	default:
		s.log.Debug().Str("command", text).Strs("response", lines).Msg("RCON command")
		s.emit(Event{Kind: EventOutput, Command: text, Lines: lines, At: now})
	}
	return lines, nil
}

// execute runs a caller command, reconnecting and retrying on failure until
// the caller's ctx is done. The retry budget grows after the first failure
// and stays grown for later commands.
func (s *Session) execute(ctx context.Context, text string) (string, error) {
	var lastErr error
	retries := s.commandRetries
	for attempt := 0; attempt <= retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if attempt > 0 {
			s.commandRetries = escalatedCommandRetries
			s.log.Debug().Err(lastErr).Int("attempt", attempt).Str("command", text).Msg("Retrying RCON command")
		}

		raw, err := s.executeOnce(ctx, text)
		if err == nil {
			return raw, nil
		}
		lastErr = err
		if errors.Is(err, ErrSessionClosed) {
			break
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
	}
	s.log.Warn().Err(lastErr).Str("command", text).Msg("RCON command failed")
	return "", fmt.Errorf("%w: %s: %v", ErrCommandFailed, text, lastErr)
}

func (s *Session) executeOnce(ctx context.Context, text string) (string, error) {
	if s.conn == nil {
		if err := s.connect(ctx); err != nil {
			return "", err
		}
	}

	raw, err := s.conn.Execute(text)
	if err != nil {
		s.disconnect()
		return "", err
	}
	return raw, nil
}

// connect dials with the reconnect policy. It gives up when parent is done
// or the session is stopped.
func (s *Session) connect(parent context.Context) error {
	policy := retry.Policy{MaxAttempts: s.opts.MaxConnectionRetries, Delay: s.opts.ReconnectDelay}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	go func() {
		select {
		case <-s.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	var lastErr error
	conn, ok := retry.Run(ctx, policy, func(ctx context.Context, attempt int) (Conn, error) {
		c, err := s.dialer.Dial(ctx, s.opts.Address, s.opts.Password)
		if err != nil {
			lastErr = err
			s.log.Debug().Err(err).Int("attempt", attempt).Str("address", s.opts.Address).Msg("RCON connect failed")
		}
		return c, err
	}, func(c Conn, err error) bool { return err == nil && c != nil })

	if !ok {
		if ctx.Err() != nil {
			select {
			case <-s.stop:
				return ErrSessionClosed
			default:
			}
			if err := parent.Err(); err != nil {
				return err
			}
			return ErrSessionClosed
		}
		return fmt.Errorf("could not connect to %s: %w", s.opts.Address, lastErr)
	}
	s.conn = conn
	s.log.Debug().Str("address", s.opts.Address).Msg("RCON connected")
	return nil
}

func (s *Session) disconnect() {
	if s.conn == nil {
		return
	}
	_ = s.conn.Close()
	s.conn = nil
}

func (s *Session) applyPlayerList(online []onlinePlayer, now time.Time) {
	events := diffPlayers(s.known, online, now)
	prunePlayers(s.known, s.stored)
	s.publishPlayers()

	for _, ev := range events {
		p := ev.Player
		kind := EventPlayerJoined
		if ev.Kind == domain.PlayerLeft {
			kind = EventPlayerLeft
		}
		s.log.Info().Str("player_id", p.ID).Str("player", p.Name).Str("event", string(ev.Kind)).Msg("Player activity")
		s.emit(Event{Kind: kind, Player: &p, At: ev.At})
	}
}

func (s *Session) refreshPlayerData() {
	stored, err := scanPlayerFiles(s.opts.SaveDir)
	if err != nil {
		s.log.Warn().Err(err).Str("dir", s.opts.SaveDir).Msg("Could not scan player files")
		return
	}
	s.stored = stored
	for id := range stored {
		if _, ok := s.known[id]; !ok {
			s.known[id] = &domain.PlayerInfo{ID: id, LastUpdated: time.Now()}
		}
	}
	prunePlayers(s.known, s.stored)
	s.publishPlayers()
}

func (s *Session) publishPlayers() {
	list := sortedPlayers(s.known)
	s.players.Store(&list)
}

func (s *Session) emit(ev Event) {
	for _, fn := range s.listeners {
		fn(ev)
	}
}

func splitLines(raw string) []string {
	if strings.TrimSpace(raw) == NoResponse {
		return nil
	}
	var lines []string
	for _, l := range strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

func isChatCommand(verb string) bool {
	switch verb {
	case "broadcast", "serverchat", "serverchatto", "serverchattoplayer":
		return true
	}
	return false
}

// newTicker returns a ticker that never fires when d is not positive.
func newTicker(d time.Duration) *time.Ticker {
	if d <= 0 {
		t := time.NewTicker(time.Hour)
		t.Stop()
		return t
	}
	return time.NewTicker(d)
}
