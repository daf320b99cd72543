// Package binresolve locates the target CLI binary on the host: an
// explicit override first, then PATH, then a fixed list of well-known
// install locations.
package binresolve

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// Resolve finds the executable for name. overrideEnv, when non-empty in
// the environment, is treated as authoritative: a missing file at that
// path is a hard failure rather than a silent fall-through, since a
// misconfigured override almost always means the operator made a typo
// and wants to know.
func Resolve(name, overrideEnv string) (string, error) {
	if override := os.Getenv(overrideEnv); override != "" {
		if _, err := os.Stat(override); err != nil {
			return "", fmt.Errorf("%s points to %q but it does not exist: %w", overrideEnv, override, err)
		}
		return override, nil
	}

	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}

	for _, candidate := range fallbackLocations(name) {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("could not locate %q: not on PATH and not found in any fallback location; set %s to its absolute path", name, overrideEnv)
}

func fallbackLocations(name string) []string {
	home, _ := os.UserHomeDir()
	var locs []string
	if home != "" {
		locs = append(locs, filepath.Join(home, ".local", "bin", name))
	}
	locs = append(locs,
		filepath.Join("/usr/local/bin", name),
		filepath.Join("/opt/homebrew/bin", name),
		filepath.Join("/usr/bin", name),
	)
	return locs
}
