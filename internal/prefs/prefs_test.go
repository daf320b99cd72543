package prefs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStore_DefaultsWhenNoFile(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, Preferences{}, s.Get())
}

func TestStore_SetPersistsAndReloads(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, s.Set(Preferences{NotificationsEnabled: true}))
	require.True(t, s.Get().NotificationsEnabled)

	reloaded, err := New(dir)
	require.NoError(t, err)
	require.True(t, reloaded.Get().NotificationsEnabled)
}

func TestStore_RejectsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, fileName), []byte("not json"), 0o644))
	_, err := New(dir)
	require.Error(t, err)
}
