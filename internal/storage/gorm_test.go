package storage

import (
	"path/filepath"
	"testing"
	"time"

	"arkmanager/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	store, err := NewGormStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleProfile() *domain.Profile {
	return &domain.Profile{
		ID:                 "p-1",
		Name:               "The Island",
		InstallDir:         "/srv/ark/island",
		ServerMap:          "TheIsland",
		ServerPort:         7777,
		QueryPort:          27015,
		RconEnabled:        true,
		RconPort:           32330,
		AdminPassword:      "secret",
		AppID:              "376030",
		ModIDs:             []string{"731604991", "889745138"},
		GracePeriodMinutes: 15,
		CreatedAt:          time.Now(),
	}
}

func TestSaveAndGetProfile(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.SaveProfile(sampleProfile()))

	got, err := store.GetProfileByID("p-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "The Island", got.Name)
	assert.Equal(t, []string{"731604991", "889745138"}, got.ModIDs)
	assert.Equal(t, "secret", got.AdminPassword)

	missing, err := store.GetProfileByID("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMergeProfileOnlyTouchesWhitelist(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.SaveProfile(sampleProfile()))

	version := "1234567"
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	updated := true
	require.NoError(t, store.MergeProfile("p-1", domain.MergeFields{
		LastInstalledVersion: &version,
		LastStarted:          &started,
		ServerUpdated:        &updated,
	}))

	got, err := store.GetProfileByID("p-1")
	require.NoError(t, err)
	assert.Equal(t, "1234567", got.LastInstalledVersion)
	assert.True(t, got.LastStarted.Equal(started))
	assert.True(t, got.ServerUpdated)
	assert.Equal(t, 15, got.GracePeriodMinutes)

	assert.Error(t, store.MergeProfile("p-1", domain.MergeFields{}))
}

func TestSettings(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetSetting("missing")
	assert.Error(t, err)

	require.NoError(t, store.SetSetting("k", "v1"))
	require.NoError(t, store.SetSetting("k", "v2"))
	v, err := store.GetSetting("k")
	require.NoError(t, err)
	assert.Equal(t, "v2", v)
}
