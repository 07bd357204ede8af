package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"arkmanager/internal/logger"

	"github.com/spf13/viper"
)

const (
	defaultConfigName   = "config.json"
	defaultBackupsDir   = "backups"
	defaultLogsDir      = "logs"
	defaultCacheDir     = "cache"
	defaultLocksDir     = "locks"
	defaultDatabaseFile = "profiles.db"
	defaultPort         = 23010
	minStatusInterval   = time.Second
	envPrefix           = "ARKMANAGER"
)

type Config struct {
	DatabasePath string `mapstructure:"database_path"`
	BackupsPath  string `mapstructure:"backups_path"`
	LogsPath     string `mapstructure:"logs_path"`
	CachePath    string `mapstructure:"cache_path"`
	LocksPath    string `mapstructure:"locks_path"`
	Port         int    `mapstructure:"port"`

	Log       logger.Config   `mapstructure:"log"`
	SteamCmd  SteamCmd        `mapstructure:"steamcmd"`
	Lifecycle Lifecycle       `mapstructure:"lifecycle"`
	Rcon      Rcon            `mapstructure:"rcon"`
	Status    Status          `mapstructure:"status"`
	Alerts    map[string]bool `mapstructure:"alerts"`
}

type SteamCmd struct {
	Path          string        `mapstructure:"path"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	CaptureOutput bool          `mapstructure:"capture_output"`
	Username      string        `mapstructure:"username"`
	Password      string        `mapstructure:"password"`
	ModAppID      string        `mapstructure:"mod_app_id"`
}

type Lifecycle struct {
	LockTimeout          time.Duration `mapstructure:"lock_timeout"`
	BackupSaveDelay      time.Duration `mapstructure:"backup_save_delay"`
	BackupRetentionDays  int           `mapstructure:"backup_retention_days"`
	ExitWaitTimeout      time.Duration `mapstructure:"exit_wait_timeout"`
	ParallelBranchUpdate bool          `mapstructure:"parallel_branch_update"`
	InterProfileDelay    time.Duration `mapstructure:"inter_profile_delay"`
	FileCopyAttempts     int           `mapstructure:"file_copy_attempts"`
	FileCopyDelay        time.Duration `mapstructure:"file_copy_delay"`
}

type Rcon struct {
	HeartbeatInterval     time.Duration `mapstructure:"heartbeat_interval"`
	PlayerRefreshInterval time.Duration `mapstructure:"player_refresh_interval"`
	MaxConnectionRetries  int           `mapstructure:"max_connection_retries"`
	ReconnectDelay        time.Duration `mapstructure:"reconnect_delay"`
	CommandTimeout        time.Duration `mapstructure:"command_timeout"`
}

type Status struct {
	Interval              time.Duration `mapstructure:"interval"`
	QueryTimeout          time.Duration `mapstructure:"query_timeout"`
	ExternalCheckURL      string        `mapstructure:"external_check_url"`
	ExternalCheckCooldown time.Duration `mapstructure:"external_check_cooldown"`
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("database_path", filepath.Join(configDir, defaultDatabaseFile))
	v.SetDefault("backups_path", filepath.Join(configDir, defaultBackupsDir))
	v.SetDefault("logs_path", filepath.Join(configDir, defaultLogsDir))
	v.SetDefault("cache_path", filepath.Join(configDir, defaultCacheDir))
	v.SetDefault("locks_path", filepath.Join(configDir, defaultLocksDir))
	v.SetDefault("port", defaultPort)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stderr")

	v.SetDefault("steamcmd.path", filepath.Join(configDir, "steamcmd", steamCmdBinary()))
	v.SetDefault("steamcmd.max_attempts", 10)
	v.SetDefault("steamcmd.retry_delay", "5s")
	v.SetDefault("steamcmd.capture_output", true)
	v.SetDefault("steamcmd.username", "")
	v.SetDefault("steamcmd.password", "")
	v.SetDefault("steamcmd.mod_app_id", "346110")

	v.SetDefault("lifecycle.lock_timeout", "5m")
	v.SetDefault("lifecycle.backup_save_delay", "30s")
	v.SetDefault("lifecycle.backup_retention_days", 7)
	v.SetDefault("lifecycle.exit_wait_timeout", "60s")
	v.SetDefault("lifecycle.parallel_branch_update", false)
	v.SetDefault("lifecycle.inter_profile_delay", "10s")
	v.SetDefault("lifecycle.file_copy_attempts", 3)
	v.SetDefault("lifecycle.file_copy_delay", "1s")

	v.SetDefault("rcon.heartbeat_interval", "5s")
	v.SetDefault("rcon.player_refresh_interval", "30s")
	v.SetDefault("rcon.max_connection_retries", 3)
	v.SetDefault("rcon.reconnect_delay", "1s")
	v.SetDefault("rcon.command_timeout", "10s")

	v.SetDefault("status.interval", "5s")
	v.SetDefault("status.query_timeout", "3s")
	v.SetDefault("status.external_check_url", "https://api.steampowered.com/ISteamApps/GetServersAtAddress/v1/?addr=%s:%d")
	v.SetDefault("status.external_check_cooldown", "5m")

	v.SetDefault("alerts", map[string]bool{
		"Startup":         true,
		"Shutdown":        true,
		"ShutdownMessage": false,
		"ShutdownReason":  true,
		"Backup":          false,
		"Error":           true,
		"UpdateResults":   true,
	})
}

// Load reads <configDir>/config.json, writing one with defaults on first run.
// ARKMANAGER_* environment variables override file values, e.g.
// ARKMANAGER_STEAMCMD_PATH or ARKMANAGER_LIFECYCLE_LOCK_TIMEOUT.
func Load(configDir string) (*Config, error) {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v, configDir)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath := filepath.Join(configDir, defaultConfigName)
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := v.WriteConfigAs(configPath); err != nil {
			return nil, fmt.Errorf("error writing default config: %w", err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}

	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.SteamCmd.MaxAttempts < 1 {
		cfg.SteamCmd.MaxAttempts = 1
	}
	if cfg.Status.Interval < minStatusInterval {
		cfg.Status.Interval = minStatusInterval
	}

	return &cfg, nil
}

// AlertEnabled reports whether the named alert type should be sent.
// Unknown names are enabled.
func (c *Config) AlertEnabled(name string) bool {
	enabled, ok := c.Alerts[strings.ToLower(name)]
	if !ok {
		return true
	}
	return enabled
}

// DefaultDir is the per-user config directory used by both binaries.
func DefaultDir() (string, error) {
	if dir := os.Getenv(envPrefix + "_HOME"); dir != "" {
		return dir, nil
	}
	userConfigDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(userConfigDir, "arkmanager"), nil
}

// EnsureDirs creates every directory the managers write into.
func (c *Config) EnsureDirs() error {
	for _, path := range []string{c.BackupsPath, c.LogsPath, c.CachePath, c.LocksPath} {
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("could not create directory '%s': %w", path, err)
		}
	}
	return nil
}
