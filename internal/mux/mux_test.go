package mux

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/yazinsai/claude-code-remote/internal/activity"
	"github.com/yazinsai/claude-code-remote/internal/authgate"
	"github.com/yazinsai/claude-code-remote/internal/detector"
	"github.com/yazinsai/claude-code-remote/internal/prefs"
	"github.com/yazinsai/claude-code-remote/internal/scheduler"
	"github.com/yazinsai/claude-code-remote/internal/sessionmgr"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// harness wires a real Multiplexer against real (but test-scale)
// collaborators and serves it over an actual websocket connection, the
// way the multiplexer is exercised in production.
type harness struct {
	t       *testing.T
	server  *httptest.Server
	gate    *authgate.Gate
	mux     *Multiplexer
	sched   *scheduler.Scheduler
	sessMgr *sessionmgr.Manager
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dotDir := t.TempDir()

	gate := authgate.New("test-token")
	prefsStore, err := prefs.New(dotDir)
	require.NoError(t, err)
	sessMgr := sessionmgr.New("cat", "CLAUDE_CODE_REMOTE_BIN", detector.New("cat"), activity.New(nil), testLogger())

	h := &harness{t: t, gate: gate, sessMgr: sessMgr}

	m := New(gate, sessMgr, nil, prefsStore, dotDir+"/uploads", testLogger())
	sched := scheduler.New(dotDir, "cat", "CLAUDE_CODE_REMOTE_BIN", m, testLogger())
	require.NoError(t, sched.Load())
	m.SetScheduler(sched)
	h.sched = sched
	h.mux = m

	mmux := http.NewServeMux()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	mmux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		m.HandleConnection(conn)
	})
	h.server = httptest.NewServer(mmux)

	t.Cleanup(func() {
		h.server.Close()
		sessMgr.DestroyAll()
		sched.Stop()
	})
	return h
}

func (h *harness) dial() *websocket.Conn {
	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(h.t, err)
	return conn
}

func sendBinary(t *testing.T, conn *websocket.Conn, cmdType string, v any) {
	t.Helper()
	fields, err := json.Marshal(v)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(fields, &m))
	m["type"] = cmdType
	data, err := json.Marshal(m)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, data))
}

// readEvent reads binary control frames until one of the given types
// is seen, skipping anything else (e.g. periodic session:status
// broadcasts racing with the assertion under test).
func readEvent(t *testing.T, conn *websocket.Conn, wantTypes ...string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		msgType, data, err := conn.ReadMessage()
		require.NoError(t, err)
		if msgType != websocket.BinaryMessage {
			continue
		}
		var ev map[string]any
		require.NoError(t, json.Unmarshal(data, &ev))
		got, _ := ev["type"].(string)
		for _, want := range wantTypes {
			if got == want {
				return ev
			}
		}
	}
	t.Fatalf("did not observe any of %v before deadline", wantTypes)
	return nil
}

func authenticate(t *testing.T, conn *websocket.Conn, token string) {
	t.Helper()
	sendBinary(t, conn, "auth", authCmd{Token: token})
	ev := readEvent(t, conn, "auth:success", "auth:failed")
	require.Equal(t, "auth:success", ev["type"])
}

func TestMultiplexer_RejectsCommandsBeforeAuth(t *testing.T) {
	h := newHarness(t)
	conn := h.dial()
	defer conn.Close()

	sendBinary(t, conn, "session:create", sessionCreateCmd{Cwd: t.TempDir()})
	ev := readEvent(t, conn, "error")
	require.Contains(t, ev["error"], "not authenticated")
}

func TestMultiplexer_AuthFailsWithWrongToken(t *testing.T) {
	h := newHarness(t)
	conn := h.dial()
	defer conn.Close()

	sendBinary(t, conn, "auth", authCmd{Token: "wrong"})
	ev := readEvent(t, conn, "auth:failed")
	require.Equal(t, "auth:failed", ev["type"])
}

func TestMultiplexer_AuthSucceedsAndReturnsPreferences(t *testing.T) {
	h := newHarness(t)
	conn := h.dial()
	defer conn.Close()

	authenticate(t, conn, h.gate.Token())
}

func TestMultiplexer_SessionCreateAttachesAndStreamsOutput(t *testing.T) {
	h := newHarness(t)
	conn := h.dial()
	defer conn.Close()
	authenticate(t, conn, h.gate.Token())

	sendBinary(t, conn, "session:create", sessionCreateCmd{Cwd: t.TempDir()})
	created := readEvent(t, conn, "session:created")
	sessionInfo, ok := created["session"].(map[string]any)
	require.True(t, ok)
	sessionID, _ := sessionInfo["id"].(string)
	require.NotEmpty(t, sessionID)

	attached := readEvent(t, conn, "session:attached")
	require.Equal(t, "session:attached", attached["type"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hello\n")))

	sawEcho := false
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && !sawEcho {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		msgType, data, err := conn.ReadMessage()
		require.NoError(t, err)
		if msgType == websocket.TextMessage && strings.Contains(string(data), "hello") {
			sawEcho = true
		}
	}
	require.True(t, sawEcho, "expected cat to echo written input back over the raw text frame")
}

func TestMultiplexer_SessionDestroyBroadcasts(t *testing.T) {
	h := newHarness(t)
	conn := h.dial()
	defer conn.Close()
	authenticate(t, conn, h.gate.Token())

	sendBinary(t, conn, "session:create", sessionCreateCmd{Cwd: t.TempDir()})
	created := readEvent(t, conn, "session:created")
	readEvent(t, conn, "session:attached")
	sessionInfo := created["session"].(map[string]any)
	sessionID := sessionInfo["id"].(string)

	sendBinary(t, conn, "session:destroy", sessionDestroyCmd{SessionID: sessionID})
	ev := readEvent(t, conn, "session:destroyed")
	require.Equal(t, sessionID, ev["sessionId"])
}

func TestMultiplexer_ScheduleCreateUpdateDeleteRoundTrip(t *testing.T) {
	h := newHarness(t)
	conn := h.dial()
	defer conn.Close()
	authenticate(t, conn, h.gate.Token())

	sendBinary(t, conn, "schedule:create", scheduleCreateCmd{
		Name:   "daily summary",
		Prompt: "summarize",
		Cwd:    t.TempDir(),
		Preset: "Daily (morning)",
	})
	updated := readEvent(t, conn, "schedule:updated")
	sched := updated["schedule"].(map[string]any)
	scheduleID := sched["id"].(string)
	require.True(t, sched["enabled"].(bool))

	disabled := false
	sendBinary(t, conn, "schedule:update", scheduleUpdateCmd{ScheduleID: scheduleID, Enabled: &disabled})
	ev := readEvent(t, conn, "schedule:updated")
	sched2 := ev["schedule"].(map[string]any)
	require.False(t, sched2["enabled"].(bool))

	sendBinary(t, conn, "schedule:delete", scheduleIDCmd{ScheduleID: scheduleID})
	// schedule:delete has no direct ack in the command set; deletion is
	// observed via the schedule:updated{deleted:id} broadcast.
	del := readEvent(t, conn, "schedule:updated")
	require.Equal(t, scheduleID, del["deleted"])
}

func TestMultiplexer_ScheduleCreateUnknownPresetErrors(t *testing.T) {
	h := newHarness(t)
	conn := h.dial()
	defer conn.Close()
	authenticate(t, conn, h.gate.Token())

	sendBinary(t, conn, "schedule:create", scheduleCreateCmd{Name: "x", Prompt: "y", Cwd: t.TempDir(), Preset: "not-a-real-preset"})
	ev := readEvent(t, conn, "error")
	require.Contains(t, ev["error"], "unknown preset")
}

func TestMultiplexer_SessionAdoptRejectsUnknownProcess(t *testing.T) {
	h := newHarness(t)
	conn := h.dial()
	defer conn.Close()
	authenticate(t, conn, h.gate.Token())

	sendBinary(t, conn, "session:adopt", sessionAdoptCmd{PID: 999999, Cwd: "/no/such/dir"})
	ev := readEvent(t, conn, "error")
	require.Contains(t, ev["error"], "not running or already terminated")
}
