package activity

import (
	"os"
	"path/filepath"
	"strings"
)

// DotDirLocator finds state files under a well-known dot-directory in
// the user's home, keyed by a sanitized form of the session's cwd. The
// exact encoding is the target CLI's own convention; this mirrors the
// common pattern of replacing path separators with a single safe
// character to form a flat per-project directory name.
type DotDirLocator struct {
	// Home is the user's home directory; if empty, os.UserHomeDir is used.
	Home string
	// DotDir is the dot-directory name under Home, e.g. ".claude".
	DotDir string
	// ProjectsSubdir is the subdirectory holding per-cwd state, e.g. "projects".
	ProjectsSubdir string
}

// StateFiles returns every regular file under the dot-directory's
// per-project directory for cwd. A missing or unreadable directory
// yields an empty slice, which Detector.Status treats as Unknown.
func (l DotDirLocator) StateFiles(cwd string) []string {
	home := l.Home
	if home == "" {
		h, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		home = h
	}

	projectKey := sanitizeProjectKey(cwd)
	dir := filepath.Join(home, l.DotDir, l.ProjectsSubdir, projectKey)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	return files
}

// sanitizeProjectKey flattens a cwd into the dash-joined form the target
// CLI uses for its per-project state directory names.
func sanitizeProjectKey(cwd string) string {
	trimmed := strings.Trim(cwd, string(filepath.Separator))
	return strings.ReplaceAll(trimmed, string(filepath.Separator), "-")
}
