// Package sessionmgr is the registry of live PTY sessions: creation,
// lookup, destruction, and safe adoption of foreign CLI instances
// discovered on the host.
package sessionmgr

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/yazinsai/claude-code-remote/internal/activity"
	"github.com/yazinsai/claude-code-remote/internal/detector"
	"github.com/yazinsai/claude-code-remote/internal/homeexpand"
	"github.com/yazinsai/claude-code-remote/internal/ptysession"
	"github.com/yazinsai/claude-code-remote/internal/shortid"
)

// softTerminateBudgetMs is how long Adopt waits for a graceful terminate
// before Kill escalates to an unconditional one.
const softTerminateBudgetMs = 200

// adoptRecheckDelay is the extra grace period Adopt waits after Kill
// returns before declaring adoption failed.
const adoptRecheckDelay = 150 * time.Millisecond

// ExternalSession is a Process-Detector snapshot enriched with an
// advisory activity classification.
type ExternalSession struct {
	detector.ExternalSession
	ActivityStatus activity.Status `json:"activityStatus"`
}

// Manager is the registry of Sessions this server owns.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*ptysession.Session

	binaryName  string
	overrideEnv string
	detector    *detector.Detector
	activity    *activity.Detector
	log         *slog.Logger
}

// New constructs a Manager for the given target binary.
func New(binaryName, overrideEnv string, det *detector.Detector, act *activity.Detector, log *slog.Logger) *Manager {
	return &Manager{
		sessions:    make(map[string]*ptysession.Session),
		binaryName:  binaryName,
		overrideEnv: overrideEnv,
		detector:    det,
		activity:    act,
		log:         log,
	}
}

// Create generates a new session id, starts a Session in cwd, and
// registers it only on success. An empty cwd defaults to the caller's
// home directory. A "~"-prefixed cwd is expanded first.
func (m *Manager) Create(cwd string, args []string) (*ptysession.Session, error) {
	if cwd == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve default cwd: %w", err)
		}
		cwd = home
	}
	expanded, err := homeexpand.Expand(cwd)
	if err != nil {
		return nil, fmt.Errorf("expand cwd: %w", err)
	}

	id := shortid.New()
	sess := ptysession.New(id, expanded, args, m.binaryName, m.overrideEnv, m.log)
	if err := sess.Start(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[id] = sess
	m.mu.Unlock()
	return sess, nil
}

// Get returns a session by id.
func (m *Manager) Get(id string) (*ptysession.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// List returns a snapshot of every managed session's Info.
func (m *Manager) List() []ptysession.Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ptysession.Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.GetInfo())
	}
	return out
}

// Destroy stops and unregisters a session. Idempotent: destroying an
// unknown or already-destroyed id is a no-op.
func (m *Manager) Destroy(id string) {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if ok {
		sess.Stop()
	}
}

// DestroyAll stops every managed session; used as a shutdown hook.
func (m *Manager) DestroyAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*ptysession.Session)
	m.mu.Unlock()
	for _, s := range sessions {
		s.Stop()
	}
}

// managedPIDs returns the PIDs of currently managed sessions for
// exclusion from discovery; the Detector excludes the server's own PID
// itself.
func (m *Manager) managedPIDs() map[int]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	excl := make(map[int]bool, len(m.sessions)+1)
	for _, s := range m.sessions {
		if info := s.GetInfo(); info.PID != 0 {
			excl[info.PID] = true
		}
	}
	return excl
}

// DiscoverExternal delegates to the Process Detector, excluding managed
// PIDs and the server's own process, and enriches each result with an
// advisory activity status.
func (m *Manager) DiscoverExternal() ([]ExternalSession, error) {
	if m.detector == nil {
		return nil, nil
	}
	found, err := m.detector.Discover(m.managedPIDs())
	if err != nil {
		return nil, err
	}
	out := make([]ExternalSession, 0, len(found))
	for _, f := range found {
		status := activity.Unknown
		if m.activity != nil {
			status = m.activity.Status(f.Cwd)
		}
		out = append(out, ExternalSession{ExternalSession: f, ActivityStatus: status})
	}
	return out, nil
}

// Adopt terminates a foreign process and starts a managed replacement in
// its former working directory. It only proceeds when (pid, cwd) appear
// together in a freshly computed discovery snapshot, which prevents the
// multiplexer from being used as an arbitrary kill primitive.
func (m *Manager) Adopt(pid int, cwd string) (*ptysession.Session, error) {
	snapshot, err := m.DiscoverExternal()
	if err != nil {
		return nil, fmt.Errorf("discover external sessions: %w", err)
	}

	found := false
	for _, s := range snapshot {
		if s.PID == pid && s.Cwd == cwd {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("process %d is not running or already terminated", pid)
	}

	if _, err := detector.Kill(pid, softTerminateBudgetMs); err != nil {
		return nil, fmt.Errorf("terminate process %d: %w", pid, err)
	}
	time.Sleep(adoptRecheckDelay)
	if detector.IsAlive(pid) {
		return nil, fmt.Errorf("process %d is not running or already terminated", pid)
	}

	return m.Create(cwd, []string{"--continue"})
}
