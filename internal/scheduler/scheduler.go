// Package scheduler runs the target CLI in one-shot headless mode on a
// recurring cron-backed schedule, persists schedules and run logs to
// disk, and survives restarts.
package scheduler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/yazinsai/claude-code-remote/internal/binresolve"
	"github.com/yazinsai/claude-code-remote/internal/homeexpand"
	"github.com/yazinsai/claude-code-remote/internal/shortid"
)

const schedulesFileName = "schedules.json"
const retentionSweepInterval = time.Hour
const retentionAge = 7 * 24 * time.Hour

// Scheduler owns the set of Schedules, their cron registrations, and
// the on-disk schedules.json / runs/ tree under dotDir.
type Scheduler struct {
	mu        sync.Mutex
	schedules map[string]*Schedule
	entries   map[string]cron.EntryID

	cron        *cron.Cron
	dotDir      string
	binaryName  string
	overrideEnv string
	notifier    Notifier
	log         *slog.Logger

	stopRetention chan struct{}
}

// New constructs a Scheduler. Call Load to read persisted schedules and
// register cron jobs, and StartRetentionSweep to begin the hourly sweep.
func New(dotDir, binaryName, overrideEnv string, notifier Notifier, log *slog.Logger) *Scheduler {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &Scheduler{
		schedules:   make(map[string]*Schedule),
		entries:     make(map[string]cron.EntryID),
		cron:        cron.New(),
		dotDir:      dotDir,
		binaryName:  binaryName,
		overrideEnv: overrideEnv,
		notifier:    notifier,
		log:         log,
	}
}

// Load reads schedules.json (if present), registers a cron job for
// every enabled schedule, and runs one retention sweep immediately.
func (s *Scheduler) Load() error {
	schedules, err := s.readSchedulesFile()
	if err != nil {
		return fmt.Errorf("load schedules: %w", err)
	}

	s.mu.Lock()
	for _, sched := range schedules {
		sc := sched
		s.schedules[sc.ID] = &sc
	}
	s.mu.Unlock()

	for _, sc := range schedules {
		if sc.Enabled {
			if err := s.registerCron(sc.ID); err != nil {
				s.log.Error("register cron job", "schedule", sc.ID, "error", err)
			}
		}
	}

	s.cron.Start()
	return s.sweepRetention(time.Now())
}

// StartRetentionSweep begins the hourly background retention sweep. It
// returns immediately; call Stop to end it.
func (s *Scheduler) StartRetentionSweep() {
	s.mu.Lock()
	if s.stopRetention != nil {
		s.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	s.stopRetention = stop
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(retentionSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := s.sweepRetention(time.Now()); err != nil {
					s.log.Error("retention sweep", "error", err)
				}
			case <-stop:
				return
			}
		}
	}()
}

// Stop halts the cron engine and the retention sweep. In-flight runs are
// left to finish on their own; Stop does not kill them.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.mu.Lock()
	stop := s.stopRetention
	s.stopRetention = nil
	s.mu.Unlock()
	if stop != nil {
		close(stop)
	}
}

// Create persists a new schedule and, if enabled (schedules are enabled
// by default), registers its cron job.
func (s *Scheduler) Create(name, prompt, cwd, presetLabel string) (Schedule, error) {
	preset, ok := PresetByLabel(presetLabel)
	if !ok {
		return Schedule{}, fmt.Errorf("unknown preset %q", presetLabel)
	}

	sc := Schedule{
		ID:             shortid.New(),
		Name:           name,
		Prompt:         prompt,
		Cwd:            cwd,
		PresetLabel:    preset.Label,
		CronExpression: preset.CronExpr,
		Enabled:        true,
		CreatedAt:      time.Now(),
	}

	s.mu.Lock()
	s.schedules[sc.ID] = &sc
	s.mu.Unlock()

	if err := s.registerCron(sc.ID); err != nil {
		return Schedule{}, fmt.Errorf("register cron job: %w", err)
	}
	if err := s.persist(); err != nil {
		return Schedule{}, fmt.Errorf("persist schedule: %w", err)
	}

	s.notifier.ScheduleUpdated(sc)
	return sc, nil
}

// Update currently supports toggling Enabled; it registers or
// unregisters the cron job to maintain the invariant that exactly one
// active registration exists iff Enabled is true.
func (s *Scheduler) Update(id string, enabled *bool) (Schedule, error) {
	s.mu.Lock()
	sc, ok := s.schedules[id]
	if !ok {
		s.mu.Unlock()
		return Schedule{}, fmt.Errorf("schedule %q not found", id)
	}
	if enabled != nil {
		sc.Enabled = *enabled
	}
	snapshot := *sc
	s.mu.Unlock()

	if snapshot.Enabled {
		if err := s.registerCron(id); err != nil {
			return Schedule{}, fmt.Errorf("register cron job: %w", err)
		}
	} else {
		s.unregisterCron(id)
	}

	if err := s.persist(); err != nil {
		return Schedule{}, fmt.Errorf("persist schedule: %w", err)
	}
	s.notifier.ScheduleUpdated(snapshot)
	return snapshot, nil
}

// Delete removes a schedule, its cron registration, and its run-log
// directory.
func (s *Scheduler) Delete(id string) error {
	s.unregisterCron(id)

	s.mu.Lock()
	_, ok := s.schedules[id]
	delete(s.schedules, id)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("schedule %q not found", id)
	}

	if err := os.RemoveAll(filepath.Join(s.dotDir, "runs", id)); err != nil {
		return fmt.Errorf("remove run log directory: %w", err)
	}
	if err := s.persist(); err != nil {
		return fmt.Errorf("persist schedules: %w", err)
	}
	s.notifier.ScheduleDeleted(id)
	return nil
}

// Trigger runs a schedule immediately, bypassing the per-firing random
// delay.
func (s *Scheduler) Trigger(id string) error {
	sc, ok := s.getSchedule(id)
	if !ok {
		return fmt.Errorf("schedule %q not found", id)
	}
	go s.runOnce(sc)
	return nil
}

// List returns a snapshot of every schedule.
func (s *Scheduler) List() []Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Schedule, 0, len(s.schedules))
	for _, sc := range s.schedules {
		out = append(out, *sc)
	}
	return out
}

func (s *Scheduler) getSchedule(id string) (Schedule, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.schedules[id]
	if !ok {
		return Schedule{}, false
	}
	return *sc, true
}

// registerCron (re)installs a cron entry for id, removing any prior
// registration first so at most one active entry ever exists per id.
func (s *Scheduler) registerCron(id string) error {
	s.unregisterCron(id)

	sc, ok := s.getSchedule(id)
	if !ok {
		return fmt.Errorf("schedule %q not found", id)
	}
	preset, ok := PresetByLabel(sc.PresetLabel)
	if !ok {
		return fmt.Errorf("schedule %q has unknown preset %q", id, sc.PresetLabel)
	}

	entryID, err := s.cron.AddFunc(sc.CronExpression, func() {
		s.fireWithDelay(id, preset.MaxDelay)
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.entries[id] = entryID
	s.mu.Unlock()
	return nil
}

func (s *Scheduler) unregisterCron(id string) {
	s.mu.Lock()
	entryID, ok := s.entries[id]
	if ok {
		delete(s.entries, id)
	}
	s.mu.Unlock()
	if ok {
		s.cron.Remove(entryID)
	}
}

// fireWithDelay sleeps a uniform random delay in [0, maxDelay) before
// running, spreading automated runs across many users naturally through
// the window.
func (s *Scheduler) fireWithDelay(id string, maxDelay time.Duration) {
	if maxDelay > 0 {
		delay := time.Duration(rand.Int64N(int64(maxDelay)))
		time.Sleep(delay)
	}
	sc, ok := s.getSchedule(id)
	if !ok {
		return
	}
	s.runOnce(sc)
}

func (s *Scheduler) persist() error {
	s.mu.Lock()
	schedules := make([]Schedule, 0, len(s.schedules))
	for _, sc := range s.schedules {
		schedules = append(schedules, *sc)
	}
	s.mu.Unlock()
	return s.writeSchedulesFile(schedules)
}

func (s *Scheduler) schedulesPath() string {
	return filepath.Join(s.dotDir, schedulesFileName)
}

func (s *Scheduler) readSchedulesFile() ([]Schedule, error) {
	data, err := os.ReadFile(s.schedulesPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var schedules []Schedule
	if err := json.Unmarshal(data, &schedules); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.schedulesPath(), err)
	}
	return schedules, nil
}

// writeSchedulesFile writes the full schedule set atomically: encode to
// a temp file in the same directory, then rename over the target.
func (s *Scheduler) writeSchedulesFile(schedules []Schedule) error {
	if err := os.MkdirAll(s.dotDir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(schedules, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.schedulesPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.schedulesPath())
}

// resolveBinary and expandCwd are split out so runlog.go's execution
// path can call them without importing binresolve/homeexpand directly.
func (s *Scheduler) resolveBinary() (string, error) {
	return binresolve.Resolve(s.binaryName, s.overrideEnv)
}

func expandCwd(cwd string) (string, error) {
	return homeexpand.Expand(cwd)
}
