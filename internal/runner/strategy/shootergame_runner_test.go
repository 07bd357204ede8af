package strategy

import (
	"os"
	"path/filepath"
	"testing"

	"arkmanager/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArgs(t *testing.T) {
	p := &domain.Profile{
		Name:          "My Island",
		ServerMap:     "TheIsland",
		ServerIP:      "10.0.0.5",
		ServerPort:    7777,
		QueryPort:     27015,
		MaxPlayers:    20,
		RconEnabled:   true,
		RconPort:      32330,
		AdminPassword: "pw",
		ModIDs:        []string{"1", "2"},
		ExtraArgs:     "-NoBattlEye  -UseBattlEye=false",
	}

	got := (&ShooterGameRunner{}).Args(p.Snapshot())
	assert.Equal(t, []string{
		"TheIsland?listen?SessionName=My_Island?MultiHome=10.0.0.5?Port=7777?QueryPort=27015?MaxPlayers=20" +
			"?RCONEnabled=True?RCONPort=32330?ServerAdminPassword=pw?GameModIds=1,2",
		"-server", "-log", "-NoBattlEye", "-UseBattlEye=false",
	}, got)
}

func TestBuildCommandNeedsExecutable(t *testing.T) {
	p := &domain.Profile{InstallDir: t.TempDir(), ServerMap: "TheIsland", ServerPort: 7777}
	s := p.Snapshot()

	_, err := (&ShooterGameRunner{}).BuildCommand(s)
	assert.Error(t, err)

	require.NoError(t, os.MkdirAll(filepath.Dir(s.ExecutablePath()), 0755))
	require.NoError(t, os.WriteFile(s.ExecutablePath(), []byte("bin"), 0755))

	cmd, err := (&ShooterGameRunner{}).BuildCommand(s)
	require.NoError(t, err)
	assert.Equal(t, filepath.Dir(s.ExecutablePath()), cmd.Dir)
}
