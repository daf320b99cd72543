// Package detector enumerates foreign, unmanaged instances of the target
// CLI running on the local machine and provides graceful-then-forceful
// termination of a discovered PID.
package detector

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"
	"golang.org/x/sys/unix"
)

// ExternalSession is a snapshot of a foreign process believed to be
// running the target binary. It carries no ownership: nothing in this
// package keeps a reference to it once Discover returns.
type ExternalSession struct {
	PID     int      `json:"pid"`
	Cwd     string   `json:"cwd"`
	Command string   `json:"command"`
	Args    []string `json:"args"`
}

// Detector enumerates and terminates foreign instances of one named
// binary belonging to the current OS user.
type Detector struct {
	BinaryName string
}

// New constructs a Detector for the given binary name (argv[0] basename).
func New(binaryName string) *Detector {
	return &Detector{BinaryName: binaryName}
}

// Discover lists processes owned by the current user whose argv[0]
// matches d.BinaryName exactly or as a path ending in "/<name>" (with no
// ".app" component), excluding the given PIDs and the current process,
// skipping zombies, and discarding any entry whose cwd cannot be
// resolved.
func (d *Detector) Discover(excludePIDs map[int]bool) ([]ExternalSession, error) {
	me := os.Getpid()
	currentUser, err := user.Current()
	if err != nil {
		return nil, fmt.Errorf("resolve current user: %w", err)
	}

	procs, err := gopsproc.Processes()
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	var out []ExternalSession
	for _, p := range procs {
		pid := int(p.Pid)
		if pid == me || excludePIDs[pid] {
			continue
		}

		statuses, err := p.Status()
		if err == nil && containsZombie(statuses) {
			continue
		}

		owner, err := p.Username()
		if err != nil || owner != currentUser.Username {
			continue
		}

		args, err := p.CmdlineSlice()
		if err != nil || len(args) == 0 {
			continue
		}
		if !matchesBinary(args[0], d.BinaryName) {
			continue
		}

		cwd, ok := resolveCwd(pid)
		if !ok {
			continue
		}

		out = append(out, ExternalSession{
			PID:     pid,
			Cwd:     cwd,
			Command: args[0],
			Args:    args[1:],
		})
	}
	return out, nil
}

func containsZombie(statuses []string) bool {
	for _, s := range statuses {
		if s == "Z" || strings.EqualFold(s, "zombie") {
			return true
		}
	}
	return false
}

// matchesBinary accepts an exact basename match or a path ending in
// "/<name>", rejecting anything that looks like a macOS .app bundle
// (e.g. an unrelated Electron shell sharing the binary's name).
func matchesBinary(argv0, name string) bool {
	if strings.Contains(argv0, ".app") {
		return false
	}
	base := filepath.Base(argv0)
	return base == name
}

// pidAlive reports whether a process with the given pid exists, treating
// a permission-denied signal delivery as evidence the process exists.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// IsAlive reports whether pid currently exists.
func IsAlive(pid int) bool { return pidAlive(pid) }

// Kill sends a graceful terminate, polls liveness every 50ms, and
// escalates to an unconditional kill if the process is still alive after
// timeoutMs. Returns whether the process is confirmed gone.
func Kill(pid int, timeoutMs int) (bool, error) {
	if !pidAlive(pid) {
		return true, nil
	}
	if err := unix.Kill(pid, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
		return false, fmt.Errorf("signal pid %d: %w", pid, err)
	}

	deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
	for time.Now().Before(deadline) {
		if !pidAlive(pid) {
			return true, nil
		}
		time.Sleep(50 * time.Millisecond)
	}

	if !pidAlive(pid) {
		return true, nil
	}
	if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return false, fmt.Errorf("force-kill pid %d: %w", pid, err)
	}
	time.Sleep(50 * time.Millisecond)
	return !pidAlive(pid), nil
}
