// Package mux implements the Session Multiplexer: one state machine per
// client connection, demultiplexing control commands from raw PTY
// bytes on a single full-duplex connection, enforcing authentication,
// and fanning session output and scheduler events out to clients.
package mux

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yazinsai/claude-code-remote/internal/authgate"
	"github.com/yazinsai/claude-code-remote/internal/metrics"
	"github.com/yazinsai/claude-code-remote/internal/prefs"
	"github.com/yazinsai/claude-code-remote/internal/ptysession"
	"github.com/yazinsai/claude-code-remote/internal/scheduler"
	"github.com/yazinsai/claude-code-remote/internal/sessionmgr"
)

// statusBroadcastInterval is how often session:status is pushed to
// every authenticated connection.
const statusBroadcastInterval = 5 * time.Second

// askUserPreviewLen is the max length of the preview text carried on
// session:input_required.
const askUserPreviewLen = 150

// Multiplexer owns every open client connection and routes session and
// scheduler events out to them.
type Multiplexer struct {
	gate       *authgate.Gate
	sessions   *sessionmgr.Manager
	scheduler  *scheduler.Scheduler
	prefsStore *prefs.Store
	uploadsDir string
	log        *slog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}

	stop chan struct{}
}

// New constructs a Multiplexer. Call Start to begin the periodic status
// broadcast.
func New(gate *authgate.Gate, sessions *sessionmgr.Manager, sched *scheduler.Scheduler, prefsStore *prefs.Store, uploadsDir string, log *slog.Logger) *Multiplexer {
	return &Multiplexer{
		gate:       gate,
		sessions:   sessions,
		scheduler:  sched,
		prefsStore: prefsStore,
		uploadsDir: uploadsDir,
		log:        log,
		clients:    make(map[*client]struct{}),
	}
}

// Sessions exposes the underlying session registry for the REST surface
// to query directly, without duplicating listing logic.
func (m *Multiplexer) Sessions() *sessionmgr.Manager { return m.sessions }

// SetScheduler binds the Scheduler after construction, breaking the
// initialization cycle between the Multiplexer (which needs to call
// into the Scheduler) and the Scheduler (which needs the Multiplexer
// as its Notifier).
func (m *Multiplexer) SetScheduler(s *scheduler.Scheduler) { m.scheduler = s }

// Start begins the periodic session:status broadcast. Call Stop to end
// it along with closing every open connection.
func (m *Multiplexer) Start() {
	m.mu.Lock()
	if m.stop != nil {
		m.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	m.stop = stop
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(statusBroadcastInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.broadcastStatus()
			case <-stop:
				return
			}
		}
	}()
}

// Stop ends the status broadcast and closes every open connection.
func (m *Multiplexer) Stop() {
	m.mu.Lock()
	stop := m.stop
	m.stop = nil
	clients := make([]*client, 0, len(m.clients))
	for c := range m.clients {
		clients = append(clients, c)
	}
	m.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	for _, c := range clients {
		c.Close()
	}
}

// HandleConnection drives one client's full lifecycle: registration,
// read loop, and unconditional cleanup on close.
func (m *Multiplexer) HandleConnection(conn *websocket.Conn) {
	c := newClient(conn)
	m.addClient(c)
	metrics.ConnectionsOpen.Inc()
	m.log.Debug("client connected", "clientId", c.id)
	go c.writePump()

	defer func() {
		c.Close()
		m.removeClient(c)
		metrics.ConnectionsOpen.Dec()
		m.log.Debug("client disconnected", "clientId", c.id)
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		switch msgType {
		case websocket.BinaryMessage:
			m.handleControl(c, data)
		case websocket.TextMessage:
			m.handleRawInput(c, data)
		}
	}
}

func (m *Multiplexer) addClient(c *client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[c] = struct{}{}
}

func (m *Multiplexer) removeClient(c *client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.clients, c)
}

func (m *Multiplexer) clientsSnapshot() []*client {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*client, 0, len(m.clients))
	for c := range m.clients {
		out = append(out, c)
	}
	return out
}

// handleRawInput forwards a text frame to the client's attached
// session. Frames before authentication or without an attachment are
// dropped silently, per the framing contract.
func (m *Multiplexer) handleRawInput(c *client, data []byte) {
	if !c.authenticated.Load() {
		return
	}
	sessID := c.attachedSession()
	if sessID == "" {
		return
	}
	if sess, ok := m.sessions.Get(sessID); ok {
		sess.Write(data)
	}
}

func (m *Multiplexer) handleControl(c *client, data []byte) {
	var env inboundEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.sendError("malformed command")
		return
	}

	if !c.authenticated.Load() && env.Type != "auth" {
		c.sendError("not authenticated")
		return
	}

	switch env.Type {
	case "auth":
		m.handleAuth(c, data)
	case "preferences:set":
		m.handlePreferencesSet(c, data)
	case "session:list":
		c.sendEvent(event("session:list", map[string]any{"sessions": m.sessions.List()}))
	case "session:discover":
		m.handleSessionDiscover(c)
	case "session:create":
		m.handleSessionCreate(c, data)
	case "session:attach":
		m.handleSessionAttach(c, data)
	case "session:adopt":
		m.handleSessionAdopt(c, data)
	case "session:destroy":
		m.handleSessionDestroy(c, data)
	case "resize":
		m.handleResize(c, data)
	case "image:upload":
		m.handleImageUpload(c, data)
	case "schedule:create":
		m.handleScheduleCreate(c, data)
	case "schedule:update":
		m.handleScheduleUpdate(c, data)
	case "schedule:delete":
		m.handleScheduleDelete(c, data)
	case "schedule:trigger":
		m.handleScheduleTrigger(c, data)
	case "schedule:runs":
		m.handleScheduleRuns(c, data)
	case "schedule:log":
		m.handleScheduleLog(c, data)
	case "schedule:list":
		c.sendEvent(event("schedule:list", map[string]any{"schedules": m.scheduler.List()}))
	default:
		c.sendError("unknown command: " + env.Type)
	}
}

func (m *Multiplexer) handleAuth(c *client, data []byte) {
	var cmd authCmd
	if err := json.Unmarshal(data, &cmd); err != nil {
		c.sendError("malformed auth command")
		return
	}
	if !m.gate.Check(cmd.Token) {
		m.log.Warn("auth failed", "clientId", c.id)
		c.sendEvent(event("auth:failed", map[string]any{"error": "invalid token"}))
		return
	}
	c.authenticated.Store(true)
	metrics.ConnectionsAuthenticated.Inc()
	m.log.Debug("client authenticated", "clientId", c.id)
	c.sendEvent(event("auth:success", map[string]any{"preferences": m.prefsStore.Get()}))
}

func (m *Multiplexer) handlePreferencesSet(c *client, data []byte) {
	var cmd preferencesSetCmd
	if err := json.Unmarshal(data, &cmd); err != nil {
		c.sendError("malformed preferences:set command")
		return
	}
	if err := m.prefsStore.Set(cmd.Preferences); err != nil {
		c.sendError(fmt.Sprintf("save preferences: %v", err))
		return
	}
	c.sendEvent(event("preferences:updated", map[string]any{"preferences": m.prefsStore.Get()}))
}

func (m *Multiplexer) handleSessionDiscover(c *client) {
	sessions, err := m.sessions.DiscoverExternal()
	if err != nil {
		c.sendError(fmt.Sprintf("discover sessions: %v", err))
		return
	}
	c.sendEvent(event("session:discovered", map[string]any{"sessions": sessions}))
}

func (m *Multiplexer) handleSessionCreate(c *client, data []byte) {
	var cmd sessionCreateCmd
	if err := json.Unmarshal(data, &cmd); err != nil {
		c.sendError("malformed session:create command")
		return
	}
	sess, err := m.sessions.Create(cmd.Cwd, nil)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	metrics.SessionsCreated.Inc()
	c.sendEvent(event("session:created", map[string]any{"session": sess.GetInfo()}))
	m.attach(c, sess, false)
}

func (m *Multiplexer) handleSessionAttach(c *client, data []byte) {
	var cmd sessionAttachCmd
	if err := json.Unmarshal(data, &cmd); err != nil {
		c.sendError("malformed session:attach command")
		return
	}
	sess, ok := m.sessions.Get(cmd.SessionID)
	if !ok {
		c.sendError(fmt.Sprintf("session %s not found", cmd.SessionID))
		return
	}
	m.attach(c, sess, cmd.HasCache)
}

func (m *Multiplexer) handleSessionAdopt(c *client, data []byte) {
	var cmd sessionAdoptCmd
	if err := json.Unmarshal(data, &cmd); err != nil {
		c.sendError("malformed session:adopt command")
		return
	}
	if cmd.PID == 0 || cmd.Cwd == "" {
		c.sendError("session:adopt requires pid and cwd")
		return
	}
	sess, err := m.sessions.Adopt(cmd.PID, cmd.Cwd)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	metrics.SessionsAdopted.Inc()
	m.attach(c, sess, false)
	c.sendEvent(event("session:created", map[string]any{"session": sess.GetInfo(), "isAdopted": true}))
}

func (m *Multiplexer) handleSessionDestroy(c *client, data []byte) {
	var cmd sessionDestroyCmd
	if err := json.Unmarshal(data, &cmd); err != nil {
		c.sendError("malformed session:destroy command")
		return
	}
	m.sessions.Destroy(cmd.SessionID)
	metrics.SessionsDestroyed.Inc()
	m.broadcastToAuthenticated(event("session:destroyed", map[string]any{"sessionId": cmd.SessionID}))
}

func (m *Multiplexer) handleResize(c *client, data []byte) {
	var cmd resizeCmd
	if err := json.Unmarshal(data, &cmd); err != nil {
		c.sendError("malformed resize command")
		return
	}
	sessID := c.attachedSession()
	if sessID == "" {
		return
	}
	if sess, ok := m.sessions.Get(sessID); ok {
		sess.Resize(cmd.Cols, cmd.Rows)
	}
}

// attach rebinds c to sess: detaches any previous subscription
// deterministically, sends session:attached, replays bounded history
// when hasCache is false, then subscribes to live output and exit so
// that replayed history is always ordered ahead of live bytes.
func (m *Multiplexer) attach(c *client, sess *ptysession.Session, hasCache bool) {
	c.detachPrevious()
	c.sendEvent(event("session:attached", map[string]any{"session": sess.GetInfo()}))

	if !hasCache {
		if h := sess.History(); len(h) > 0 {
			c.sendText(h)
		}
	}

	detachOutput := sess.OnOutput(func(data []byte, ev ptysession.OutputEvent) {
		c.sendText(data)
		if ev.Type == ptysession.EventAskUser {
			m.broadcastInputRequired(sess, ev)
		}
	})
	detachExit := sess.OnExit(func(code int) {
		c.sendEvent(event("session:exit", map[string]any{"sessionId": sess.ID(), "exitCode": code}))
	})
	c.setAttachment(sess.ID(), detachOutput, detachExit)
}

func (m *Multiplexer) broadcastInputRequired(sess *ptysession.Session, ev ptysession.OutputEvent) {
	name := filepath.Base(sess.Cwd())
	preview := ev.Content
	if len(preview) > askUserPreviewLen {
		preview = preview[:askUserPreviewLen]
	}
	m.broadcastToAuthenticated(event("session:input_required", map[string]any{
		"sessionId":   sess.ID(),
		"sessionName": name,
		"preview":     preview,
	}))
}

func (m *Multiplexer) handleImageUpload(c *client, data []byte) {
	var cmd imageUploadCmd
	if err := json.Unmarshal(data, &cmd); err != nil {
		c.sendError("malformed image:upload command")
		return
	}
	path, err := saveUpload(m.uploadsDir, cmd)
	if err != nil {
		c.sendError(fmt.Sprintf("save upload: %v", err))
		return
	}
	c.sendEvent(event("image:uploaded", map[string]any{"path": path}))
}

func (m *Multiplexer) handleScheduleCreate(c *client, data []byte) {
	var cmd scheduleCreateCmd
	if err := json.Unmarshal(data, &cmd); err != nil {
		c.sendError("malformed schedule:create command")
		return
	}
	if _, err := m.scheduler.Create(cmd.Name, cmd.Prompt, cmd.Cwd, cmd.Preset); err != nil {
		c.sendError(err.Error())
	}
}

func (m *Multiplexer) handleScheduleUpdate(c *client, data []byte) {
	var cmd scheduleUpdateCmd
	if err := json.Unmarshal(data, &cmd); err != nil {
		c.sendError("malformed schedule:update command")
		return
	}
	if _, err := m.scheduler.Update(cmd.ScheduleID, cmd.Enabled); err != nil {
		c.sendError(err.Error())
	}
}

func (m *Multiplexer) handleScheduleDelete(c *client, data []byte) {
	var cmd scheduleIDCmd
	if err := json.Unmarshal(data, &cmd); err != nil {
		c.sendError("malformed schedule:delete command")
		return
	}
	if err := m.scheduler.Delete(cmd.ScheduleID); err != nil {
		c.sendError(err.Error())
	}
}

func (m *Multiplexer) handleScheduleTrigger(c *client, data []byte) {
	var cmd scheduleIDCmd
	if err := json.Unmarshal(data, &cmd); err != nil {
		c.sendError("malformed schedule:trigger command")
		return
	}
	if err := m.scheduler.Trigger(cmd.ScheduleID); err != nil {
		c.sendError(err.Error())
		return
	}
	c.sendEvent(event("schedule:triggered", map[string]any{"scheduleId": cmd.ScheduleID}))
}

func (m *Multiplexer) handleScheduleRuns(c *client, data []byte) {
	var cmd scheduleIDCmd
	if err := json.Unmarshal(data, &cmd); err != nil {
		c.sendError("malformed schedule:runs command")
		return
	}
	runs, err := m.scheduler.ListRuns(cmd.ScheduleID)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	c.sendEvent(event("schedule:runs", map[string]any{"scheduleId": cmd.ScheduleID, "runs": runs}))
}

func (m *Multiplexer) handleScheduleLog(c *client, data []byte) {
	var cmd scheduleLogCmd
	if err := json.Unmarshal(data, &cmd); err != nil {
		c.sendError("malformed schedule:log command")
		return
	}
	content, err := m.scheduler.GetRunLog(cmd.ScheduleID, cmd.Timestamp)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	c.sendEvent(event("schedule:log", map[string]any{
		"scheduleId": cmd.ScheduleID,
		"timestamp":  cmd.Timestamp,
		"content":    content,
	}))
}

func (m *Multiplexer) broadcastToAuthenticated(payload []byte) {
	for _, c := range m.clientsSnapshot() {
		if c.authenticated.Load() {
			c.sendEvent(payload)
		}
	}
}

func (m *Multiplexer) broadcastStatus() {
	external, err := m.sessions.DiscoverExternal()
	if err != nil {
		m.log.Warn("discover external sessions for status broadcast", "error", err)
		external = nil
	}
	m.broadcastToAuthenticated(event("session:status", map[string]any{
		"sessions":         m.sessions.List(),
		"externalSessions": external,
	}))
}

// ScheduleUpdated implements scheduler.Notifier.
func (m *Multiplexer) ScheduleUpdated(s scheduler.Schedule) {
	m.broadcastToAuthenticated(event("schedule:updated", map[string]any{"schedule": s}))
}

// ScheduleDeleted implements scheduler.Notifier.
func (m *Multiplexer) ScheduleDeleted(id string) {
	m.broadcastToAuthenticated(event("schedule:updated", map[string]any{"deleted": id}))
}

// RunComplete implements scheduler.Notifier.
func (m *Multiplexer) RunComplete(e scheduler.RunCompleteEvent) {
	outcome := "success"
	if e.ExitCode != 0 {
		outcome = "failure"
	}
	metrics.ScheduleRuns.WithLabelValues(outcome).Inc()
	m.broadcastToAuthenticated(event("schedule:run_complete", map[string]any{
		"scheduleId": e.ScheduleID,
		"name":       e.Name,
		"exitCode":   e.ExitCode,
		"timestamp":  e.Timestamp,
	}))
}
