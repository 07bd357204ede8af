package logger

import (
	"io"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/rs/zerolog"
)

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_.-]`)

// Scoped is a logger tied to one profile or branch. Close releases its file.
type Scoped struct {
	zerolog.Logger
	file *os.File
}

func (s *Scoped) Close() error {
	if s == nil || s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// ProfileLogger writes to the global sink and to <logsDir>/<profile>/<date>.log.
func ProfileLogger(logsDir, profileID, profileName string) *Scoped {
	s := open(filepath.Join(logsDir, "profiles", safeName(profileName+"-"+shortID(profileID))))
	s.Logger = s.Logger.With().Str("profile", profileName).Str("profile_id", profileID).Logger()
	return s
}

// BranchLogger writes to the global sink and to <logsDir>/branches/<key>/<date>.log.
func BranchLogger(logsDir, branchKey string) *Scoped {
	s := open(filepath.Join(logsDir, "branches", safeName(branchKey)))
	s.Logger = s.Logger.With().Str("branch", branchKey).Logger()
	return s
}

func open(dir string) *Scoped {
	var writer io.Writer = currentSink()
	var file *os.File

	if err := os.MkdirAll(dir, 0755); err == nil {
		path := filepath.Join(dir, time.Now().Format("20060102")+".log")
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err == nil {
			file = f
			writer = zerolog.MultiLevelWriter(writer, f)
		}
	}

	return &Scoped{
		Logger: zerolog.New(writer).With().Timestamp().Logger(),
		file:   file,
	}
}

func safeName(name string) string {
	name = unsafeChars.ReplaceAllString(name, "_")
	if name == "" {
		return "unnamed"
	}
	return name
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
