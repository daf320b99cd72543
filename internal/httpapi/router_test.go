package httpapi

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/yazinsai/claude-code-remote/internal/activity"
	"github.com/yazinsai/claude-code-remote/internal/authgate"
	"github.com/yazinsai/claude-code-remote/internal/detector"
	"github.com/yazinsai/claude-code-remote/internal/mux"
	"github.com/yazinsai/claude-code-remote/internal/prefs"
	"github.com/yazinsai/claude-code-remote/internal/scheduler"
	"github.com/yazinsai/claude-code-remote/internal/sessionmgr"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func setupRouter(t *testing.T) (http.Handler, *authgate.Gate) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dotDir := t.TempDir()

	gate := authgate.New("test-token")
	prefsStore, err := prefs.New(dotDir)
	require.NoError(t, err)
	sessMgr := sessionmgr.New("cat", "CLAUDE_CODE_REMOTE_BIN", detector.New("cat"), activity.New(nil), testLogger())
	m := mux.New(gate, sessMgr, nil, prefsStore, dotDir+"/uploads", testLogger())
	sched := scheduler.New(dotDir, "cat", "CLAUDE_CODE_REMOTE_BIN", m, testLogger())
	require.NoError(t, sched.Load())

	t.Cleanup(func() {
		sessMgr.DestroyAll()
		sched.Stop()
	})

	r := NewRouter(gate, m, nil)
	return r.Handler(), gate
}

func doReq(h http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_SessionsRequiresAuth(t *testing.T) {
	h, _ := setupRouter(t)
	rec := doReq(h, http.MethodGet, "/api/sessions", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_SessionsWithValidToken(t *testing.T) {
	h, gate := setupRouter(t)
	rec := doReq(h, http.MethodGet, "/api/sessions", gate.Token())
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "sessions")
}

func TestRouter_DirsRejectsRelativePath(t *testing.T) {
	h, gate := setupRouter(t)
	rec := doReq(h, http.MethodGet, "/api/dirs?path=relative/dir", gate.Token())
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_DirsDefaultsToHome(t *testing.T) {
	h, gate := setupRouter(t)
	rec := doReq(h, http.MethodGet, "/api/dirs", gate.Token())
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_PreviewRequiresAuth(t *testing.T) {
	h, _ := setupRouter(t)
	rec := doReq(h, http.MethodGet, "/preview/3000/", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_PreviewRejectsInvalidPort(t *testing.T) {
	h, gate := setupRouter(t)
	rec := doReq(h, http.MethodGet, "/preview/notaport/", gate.Token())
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_MetricsIsUnauthenticated(t *testing.T) {
	h, _ := setupRouter(t)
	rec := doReq(h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRewriteAbsoluteReferences_PrefixesAbsolutePaths(t *testing.T) {
	html := `<html><head><link href="/app.css"></head><body><script src="/app.js"></script><form action="/submit"></form><a href="//external.example/x">ext</a><a href="relative.html">rel</a></body></html>`
	out := absoluteRefPattern.ReplaceAll([]byte(html), []byte(`$1=$2/preview/3000/$3`))

	require.Contains(t, string(out), `href="/preview/3000/app.css"`)
	require.Contains(t, string(out), `src="/preview/3000/app.js"`)
	require.Contains(t, string(out), `action="/preview/3000/submit"`)
	require.Contains(t, string(out), `href="//external.example/x"`, "protocol-relative references must not be rewritten")
	require.Contains(t, string(out), `href="relative.html"`, "already-relative references must not be touched")
}
