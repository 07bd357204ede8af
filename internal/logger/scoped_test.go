package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileLoggerWritesFile(t *testing.T) {
	dir := t.TempDir()

	l := ProfileLogger(dir, "0123456789abcdef", "My Island")
	l.Info().Msg("hello from profile")
	require.NoError(t, l.Close())

	matches, err := filepath.Glob(filepath.Join(dir, "profiles", "My_Island-01234567", "*.log"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello from profile")
	assert.Contains(t, string(data), `"profile":"My Island"`)
}

func TestBranchLoggerWritesFile(t *testing.T) {
	dir := t.TempDir()

	l := BranchLogger(dir, "376030_beta")
	l.Warn().Msg("branch message")
	require.NoError(t, l.Close())
	require.NoError(t, l.Close(), "close is idempotent")

	matches, err := filepath.Glob(filepath.Join(dir, "branches", "376030_beta", "*.log"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
}
