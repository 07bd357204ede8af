package domain

import "fmt"

// ExitCode is the only failure signal that crosses an orchestration boundary.
// Values double as process exit statuses for unattended runs.
type ExitCode int

const (
	ExitNormal                ExitCode = 0
	ExitBadProfile            ExitCode = 1
	ExitProfileNotFound       ExitCode = 2
	ExitProcessAlreadyRunning ExitCode = 3
	ExitInvalidDataDirectory  ExitCode = 4
	ExitCacheNotFound         ExitCode = 5
	ExitSteamCmdNotFound      ExitCode = 6
	ExitServerUpdateFailed    ExitCode = 10
	ExitModUpdateFailed       ExitCode = 11
	ExitCacheUpdateFailed     ExitCode = 12
	ExitShutdownTimeout       ExitCode = 20
	ExitShutdownFailed        ExitCode = 21
	ExitRestartFailed         ExitCode = 22
	ExitBackupFailed          ExitCode = 30
	ExitExitWithErrors        ExitCode = 98
	ExitCancelled             ExitCode = 99
	ExitUnknownError          ExitCode = 100
)

var exitCodeNames = map[ExitCode]string{
	ExitNormal:                "normal",
	ExitBadProfile:            "bad-profile",
	ExitProfileNotFound:       "profile-not-found",
	ExitProcessAlreadyRunning: "process-already-running",
	ExitInvalidDataDirectory:  "invalid-data-directory",
	ExitCacheNotFound:         "cache-not-found",
	ExitSteamCmdNotFound:      "steamcmd-not-found",
	ExitServerUpdateFailed:    "server-update-failed",
	ExitModUpdateFailed:       "mod-update-failed",
	ExitCacheUpdateFailed:     "cache-update-failed",
	ExitShutdownTimeout:       "shutdown-timeout",
	ExitShutdownFailed:        "shutdown-failed",
	ExitRestartFailed:         "restart-failed",
	ExitBackupFailed:          "backup-failed",
	ExitExitWithErrors:        "exit-with-errors",
	ExitCancelled:             "cancelled",
	ExitUnknownError:          "unknown-error",
}

func (c ExitCode) String() string {
	if name, ok := exitCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("exit-code(%d)", int(c))
}

func (c ExitCode) OK() bool { return c == ExitNormal }

// IsError reports whether the code should be alerted as a failure.
// Cancellation and lock contention are terminal but not errors.
func (c ExitCode) IsError() bool {
	return c != ExitNormal && c != ExitCancelled && c != ExitProcessAlreadyRunning
}
