// Package ptysession implements the PTY Session Engine: one child process
// attached to a pseudo-terminal, its bounded replay history, activity
// classification, and best-effort output parsing.
package ptysession

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/creack/pty"

	"github.com/yazinsai/claude-code-remote/internal/binresolve"
)

const (
	initialCols = 120
	initialRows = 40
)

// Session owns one child process running the target CLI inside a
// pseudo-terminal. Its public methods are safe for concurrent use: the
// read loop runs on its own goroutine and only ever appends to history
// and publishes to the emitter, while Write/Resize/Stop may be called
// from any client-handling goroutine.
type Session struct {
	id          string
	cwd         string
	args        []string
	binaryName  string
	overrideEnv string
	log         *slog.Logger

	mu        sync.RWMutex
	status    Status
	pid       int
	createdAt time.Time
	lastSeen  time.Time

	ptmx io.ReadWriteCloser
	cmd  *exec.Cmd

	hist *history
	em   *emitter
}

// New constructs a Session. It does not spawn anything; call Start.
func New(id, cwd string, args []string, binaryName, overrideEnv string, log *slog.Logger) *Session {
	return &Session{
		id:          id,
		cwd:         cwd,
		args:        args,
		binaryName:  binaryName,
		overrideEnv: overrideEnv,
		log:         log.With("session", id),
		status:      StatusStopped,
		createdAt:   time.Now(),
		hist:        &history{},
		em:          newEmitter(),
	}
}

// ID returns the session's opaque identifier.
func (s *Session) ID() string { return s.id }

// Cwd returns the session's working directory.
func (s *Session) Cwd() string { return s.cwd }

// Start resolves the binary and spawns it attached to a new pseudo
// terminal in s.cwd. It fails synchronously if the binary cannot be
// resolved or cwd is not an existing directory.
func (s *Session) Start() error {
	info, err := os.Stat(s.cwd)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("cwd %q is not an existing directory", s.cwd)
	}

	binPath, err := binresolve.Resolve(s.binaryName, s.overrideEnv)
	if err != nil {
		return fmt.Errorf("resolve binary: %w", err)
	}

	cmd := exec.Command(binPath, s.args...)
	cmd.Dir = s.cwd
	cmd.Env = append(os.Environ(), "TERM=xterm-256color", "FORCE_COLOR=1")

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: initialCols, Rows: initialRows})
	if err != nil {
		return fmt.Errorf("start pty: %w", err)
	}

	s.mu.Lock()
	s.ptmx = ptmx
	s.cmd = cmd
	s.pid = cmd.Process.Pid
	s.status = StatusRunning
	s.lastSeen = time.Now()
	s.mu.Unlock()

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		s.readLoop(ptmx)
	}()
	go s.monitor(cmd, readDone)

	s.log.Info("session started", "pid", s.pid, "cwd", s.cwd)
	return nil
}

func (s *Session) readLoop(ptmx io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := ptmx.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.mu.Lock()
			s.lastSeen = time.Now()
			s.mu.Unlock()
			s.hist.append(chunk)
			s.em.publishOutput(chunk, classify(chunk))
		}
		if err != nil {
			return
		}
	}
}

// monitor waits for the child to exit, then for readLoop to drain the
// PTY master to EOF, then transitions to stopped and publishes exit
// exactly once, so exit follows all observed output. The drain wait is
// bounded because a grandchild that inherited the terminal can keep the
// master from ever reaching EOF.
func (s *Session) monitor(cmd *exec.Cmd, readDone <-chan struct{}) {
	err := cmd.Wait()
	select {
	case <-readDone:
	case <-time.After(500 * time.Millisecond):
	}

	code := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
		} else {
			code = -1
		}
	}

	s.mu.Lock()
	s.status = StatusStopped
	if s.ptmx != nil {
		_ = s.ptmx.Close()
	}
	s.mu.Unlock()

	s.log.Info("session exited", "exitCode", code)
	s.em.publishExit(code)
}

// Write forwards bytes to the PTY master. It silently no-ops if the
// session has stopped.
func (s *Session) Write(b []byte) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.status != StatusRunning || s.ptmx == nil {
		return
	}
	_, _ = s.ptmx.Write(b)
}

// Resize forwards a geometry change to the PTY master. Resizing after
// stop is swallowed, not an error.
func (s *Session) Resize(cols, rows int) {
	s.mu.RLock()
	ptmx := s.ptmx
	running := s.status == StatusRunning
	s.mu.RUnlock()
	if !running || ptmx == nil {
		return
	}
	f, ok := ptmx.(*os.File)
	if !ok {
		return
	}
	_ = pty.Setsize(f, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
}

// Stop terminates the child and tears down the master. Idempotent.
func (s *Session) Stop() {
	s.mu.Lock()
	cmd := s.cmd
	already := s.status == StatusStopped
	s.mu.Unlock()
	if already || cmd == nil || cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(os.Interrupt)
	go func() {
		time.Sleep(200 * time.Millisecond)
		s.mu.RLock()
		stillRunning := s.status == StatusRunning
		proc := cmd.Process
		s.mu.RUnlock()
		if stillRunning && proc != nil {
			_ = proc.Kill()
		}
	}()
}

// History returns the current replay buffer as one contiguous sequence.
func (s *Session) History() []byte { return s.hist.snapshot() }

// OnOutput subscribes to live output; returns a detach func.
func (s *Session) OnOutput(fn OutputFunc) func() { return s.em.subscribeOutput(fn) }

// OnExit subscribes to the exit signal; returns a detach func.
func (s *Session) OnExit(fn ExitFunc) func() { return s.em.subscribeExit(fn) }

// GetInfo returns a point-in-time snapshot of the session record.
func (s *Session) GetInfo() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Info{
		ID:                  s.id,
		Cwd:                 s.cwd,
		CreatedAt:           s.createdAt,
		Status:              s.status,
		ActivityStatus:      s.activityStatusLocked(),
		PID:                 s.pid,
		LastActivityInstant: s.lastSeen,
	}
}

// ActivityStatus reports idle if stopped, busy iff output was observed
// within the last 30s, idle otherwise.
func (s *Session) ActivityStatus() ActivityStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activityStatusLocked()
}

func (s *Session) activityStatusLocked() ActivityStatus {
	if s.status != StatusRunning {
		return ActivityIdle
	}
	if time.Since(s.lastSeen) < busyWindow {
		return ActivityBusy
	}
	return ActivityIdle
}
