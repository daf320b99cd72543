package homeexpand

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExpand_TildeOnly(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	got, err := Expand("~")
	require.NoError(t, err)
	require.Equal(t, home, got)
}

func TestExpand_TildeSlashPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	got, err := Expand("~/projects/app")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, "projects", "app"), got)
}

func TestExpand_LeavesAbsolutePathAlone(t *testing.T) {
	got, err := Expand("/repo/app")
	require.NoError(t, err)
	require.Equal(t, "/repo/app", got)
}

func TestExpand_LeavesUnrelatedTildeAlone(t *testing.T) {
	got, err := Expand("~user/app")
	require.NoError(t, err)
	require.Equal(t, "~user/app", got)
}
