package web

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convault/convault/internal/vault"
)

func TestEnsurePushVAPIDKeysCreatesAndReuses(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	pub1, priv1, generated1, err := EnsurePushVAPIDKeys("test-profile", "mailto:test@example.com")
	require.NoError(t, err)
	assert.True(t, generated1, "first call generates the keypair")
	require.NotEmpty(t, pub1)
	require.NotEmpty(t, priv1)

	pub2, priv2, generated2, err := EnsurePushVAPIDKeys("test-profile", "mailto:test@example.com")
	require.NoError(t, err)
	assert.False(t, generated2, "second call reuses the persisted keypair")
	assert.Equal(t, pub1, pub2)
	assert.Equal(t, priv1, priv2)

	path := filepath.Join(home, ".convault", "profiles", "test-profile", vapidKeysFileName)
	assert.FileExists(t, path)
}

func TestEnsurePushVAPIDKeysUpdatesSubject(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	pub1, _, _, err := EnsurePushVAPIDKeys("test-profile", "mailto:old@example.com")
	require.NoError(t, err)

	// A new subject rewrites the file but never rotates the keys.
	pub2, _, generated, err := EnsurePushVAPIDKeys("test-profile", "mailto:new@example.com")
	require.NoError(t, err)
	assert.False(t, generated)
	assert.Equal(t, pub1, pub2)

	profileDir, err := vault.GetProfileDir("test-profile")
	require.NoError(t, err)
	keys, err := readVAPIDKeys(filepath.Join(profileDir, vapidKeysFileName))
	require.NoError(t, err)
	assert.Equal(t, "mailto:new@example.com", keys.Subject)
}
