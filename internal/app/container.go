// Package app wires the managers together for the daemon and the CLI.
package app

import (
	"context"
	"sync"
	"time"

	"arkmanager/internal/backup"
	"arkmanager/internal/cache"
	"arkmanager/internal/config"
	"arkmanager/internal/domain"
	"arkmanager/internal/filesync"
	"arkmanager/internal/lifecycle"
	"arkmanager/internal/notify"
	"arkmanager/internal/profile"
	"arkmanager/internal/rcon"
	"arkmanager/internal/retry"
	"arkmanager/internal/runner"
	"arkmanager/internal/server"
	"arkmanager/internal/status"
	"arkmanager/internal/steamcmd"
	"arkmanager/internal/storage"
	"arkmanager/internal/ws"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Mode selects how long-lived pieces are built. The daemon keeps RCON
// sessions, hubs and the status watcher; a one-shot CLI run does not.
type Mode int

const (
	ModeOneShot Mode = iota
	ModeDaemon
)

const hubHistorySize = 200

type Container struct {
	Config        *config.Config
	Store         *storage.GormStore
	Registry      *profile.Registry
	SteamCmd      *steamcmd.Client
	Cache         *cache.Updater
	Copier        *filesync.Copier
	BackupManager *backup.Manager
	Supervisor    *runner.Supervisor
	Orchestrator  *lifecycle.Orchestrator
	Notifier      notify.Notifier

	// Daemon only.
	Rcon       *rcon.Manager
	HubManager *ws.HubManager
	Watcher    *status.Watcher
	Board      *status.Board

	mode    Mode
	mu      sync.Mutex
	watches map[string]func()
}

func New(cfg *config.Config, mode Mode) (*Container, error) {
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}

	store, err := storage.NewGormStore(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	registry := profile.NewRegistry(store)
	if err := registry.Load(); err != nil {
		_ = store.Close()
		return nil, err
	}

	steam := steamcmd.NewClient(cfg.SteamCmd.Path, steamcmd.Login{
		Username: cfg.SteamCmd.Username,
		Password: cfg.SteamCmd.Password,
	}, cfg.SteamCmd.CaptureOutput)

	appLog := log.Logger
	c := &Container{
		Config:   cfg,
		Store:    store,
		Registry: registry,
		SteamCmd: steam,
		Cache: cache.NewUpdater(cfg.CachePath, cfg.LocksPath, cfg.Lifecycle.LockTimeout, cfg.SteamCmd.ModAppID,
			retry.Policy{MaxAttempts: cfg.SteamCmd.MaxAttempts, Delay: cfg.SteamCmd.RetryDelay}, steam),
		Copier: filesync.NewCopier(retry.Policy{MaxAttempts: cfg.Lifecycle.FileCopyAttempts, Delay: cfg.Lifecycle.FileCopyDelay},
			appLog.With().Str("component", "filesync").Logger(), cache.SteamAppsDir),
		BackupManager: backup.NewManager(cfg.BackupsPath, cfg.Lifecycle.BackupRetentionDays),
		Supervisor:    runner.NewSupervisor(cfg.Lifecycle.ExitWaitTimeout),
		mode:          mode,
		watches:       make(map[string]func()),
	}

	dialer := rcon.NetDialer{DialTimeout: cfg.Rcon.CommandTimeout, CommandTimeout: cfg.Rcon.CommandTimeout}
	rconDefaults := rcon.Options{
		HeartbeatInterval:     cfg.Rcon.HeartbeatInterval,
		PlayerRefreshInterval: cfg.Rcon.PlayerRefreshInterval,
		MaxConnectionRetries:  cfg.Rcon.MaxConnectionRetries,
		ReconnectDelay:        cfg.Rcon.ReconnectDelay,
	}

	var consoles lifecycle.Consoles
	channels := notify.Multi{notify.LogNotifier{Log: appLog.With().Str("component", "alerts").Logger()}}

	if mode == ModeDaemon {
		c.Rcon = rcon.NewManager(dialer, rconDefaults, func(s domain.ProfileSnapshot) zerolog.Logger {
			return appLog.With().Str("component", "rcon").Str("profile", s.Name).Logger()
		})
		c.HubManager = ws.NewHubManager(hubHistorySize)
		c.Board = status.NewBoard()
		c.Watcher = status.NewWatcher(
			c.Supervisor.Finder,
			status.A2SQuerier{Timeout: cfg.Status.QueryTimeout},
			status.HTTPChecker{URLTemplate: cfg.Status.ExternalCheckURL},
			cfg.Status.Interval,
			cfg.Status.ExternalCheckCooldown,
			appLog.With().Str("component", "status").Logger(),
		)
		consoles = lifecycle.SessionConsoles{Manager: c.Rcon}
		channels = append(channels, c.HubManager)
	} else {
		rconDefaults.HeartbeatInterval = 0
		rconDefaults.PlayerRefreshInterval = 0
		consoles = lifecycle.AdHocConsoles{
			Dialer:   dialer,
			Defaults: rconDefaults,
			Log:      appLog.With().Str("component", "rcon").Logger(),
		}
	}

	c.Notifier = notify.Filtered{Next: channels, Enabled: cfg.AlertEnabled}
	c.Orchestrator = lifecycle.New(lifecycle.Options{
		LocksPath:            cfg.LocksPath,
		LogsPath:             cfg.LogsPath,
		LockTimeout:          cfg.Lifecycle.LockTimeout,
		BackupSaveDelay:      cfg.Lifecycle.BackupSaveDelay,
		InterProfileDelay:    cfg.Lifecycle.InterProfileDelay,
		ParallelBranchUpdate: cfg.Lifecycle.ParallelBranchUpdate,
	}, lifecycle.Deps{
		Registry:  registry,
		Processes: c.Supervisor,
		Consoles:  consoles,
		Backups:   c.BackupManager,
		Cache:     c.Cache,
		Syncer:    c.Copier,
		Notifier:  c.Notifier,

		WriteSettings: server.WriteServerSettings,
	})

	return c, nil
}

// Start runs the daemon's background actors and watches every profile.
func (c *Container) Start() {
	if c.mode != ModeDaemon {
		return
	}
	go c.Watcher.Run()
	for _, s := range c.Registry.Snapshots() {
		c.Watch(s)
	}
}

// Watch registers the profile with the status watcher and, when RCON is
// enabled, bridges its session events and console input to the profile hub.
// Watching a profile again replaces the previous registration.
func (c *Container) Watch(s domain.ProfileSnapshot) {
	if c.mode != ModeDaemon {
		return
	}
	c.Unwatch(s.ID)

	reg := c.Watcher.Register(s, func(u domain.ServerStatusUpdate) {
		c.Board.Set(s.ID, u)
		c.HubManager.Publish(s.ID, "status", u)
	})
	stops := []func(){reg.Unregister}

	hub := c.HubManager.GetHub(s.ID)
	if session, ok := c.Rcon.GetSession(s); ok {
		remove := session.AddListener(func(ev rcon.Event) {
			c.HubManager.Publish(s.ID, string(ev.Kind), ev)
		})
		hub.SetCommandHandler(func(text string) {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if _, err := session.IssueCommand(ctx, text); err != nil {
					c.HubManager.Publish(s.ID, "error", err.Error())
				}
			}()
		})
		stops = append(stops, remove, func() { c.Rcon.RemoveSession(s.ID) })
	} else {
		hub.SetCommandHandler(nil)
	}

	c.mu.Lock()
	c.watches[s.ID] = func() {
		for _, stop := range stops {
			stop()
		}
	}
	c.mu.Unlock()
}

func (c *Container) Unwatch(profileID string) {
	c.mu.Lock()
	stop, ok := c.watches[profileID]
	delete(c.watches, profileID)
	c.mu.Unlock()
	if ok {
		stop()
	}
	if c.Board != nil {
		c.Board.Delete(profileID)
	}
}

func (c *Container) Close() {
	if c.mode == ModeDaemon {
		c.mu.Lock()
		ids := make([]string, 0, len(c.watches))
		for id := range c.watches {
			ids = append(ids, id)
		}
		c.mu.Unlock()
		for _, id := range ids {
			c.Unwatch(id)
		}
		c.Watcher.Stop()
		c.Rcon.StopAll()
		c.HubManager.StopAll()
	}
	if err := c.Store.Close(); err != nil {
		log.Warn().Err(err).Msg("Could not close database")
	}
}
