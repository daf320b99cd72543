// Package homeexpand expands a leading "~" in user-supplied paths
// before they are handed to a spawned child, which inherits no shell to
// do that expansion itself.
package homeexpand

import (
	"os"
	"path/filepath"
	"strings"
)

// Expand rewrites a path beginning with "~" or "~/..." against the
// current user's home directory. Paths not starting with "~" are
// returned unchanged.
func Expand(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
}
