// Package httpapi is the HTTP surface: the static web client, the
// token-guarded REST endpoints the client uses before a websocket is
// open, the dev-server preview proxy, metrics, and the websocket
// upgrade into the Session Multiplexer.
package httpapi

import (
	"bytes"
	"compress/gzip"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/yazinsai/claude-code-remote/internal/authgate"
	"github.com/yazinsai/claude-code-remote/internal/metrics"
	"github.com/yazinsai/claude-code-remote/internal/mux"
)

// Router wires the HTTP surface onto one gate, one multiplexer, and an
// optional embedded static asset filesystem.
type Router struct {
	gate   *authgate.Gate
	mux    *mux.Multiplexer
	assets fs.FS
}

// NewRouter constructs a Router. assets may be nil when no embedded
// client build is available (dev mode serves from a separate process).
func NewRouter(gate *authgate.Gate, m *mux.Multiplexer, assets fs.FS) *Router {
	return &Router{gate: gate, mux: m, assets: assets}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type errorResp struct {
	Error string `json:"error"`
}

func writeError(c *gin.Context, code int, msg string) {
	c.JSON(code, errorResp{Error: msg})
}

// Handler returns the http.Handler to mount on a listener.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())

	g.GET("/metrics", gin.WrapH(metrics.Handler()))
	g.GET("/ws", r.handleWebsocket)

	api := g.Group("/api")
	api.Use(r.gate.Middleware())
	api.GET("/sessions", r.handleSessions)
	api.GET("/ports", r.handlePorts)
	api.GET("/dirs", r.handleDirs)

	g.Any("/preview/:port/*path", r.gate.Middleware(), r.handlePreview)

	if r.assets != nil {
		g.NoRoute(r.serveStatic)
	}

	return g
}

// handleWebsocket upgrades the connection and hands it to the
// multiplexer; authentication happens inside the multiplexer's own
// "auth" control command, not here, since the browser's first frame
// after connect carries the token.
func (r *Router) handleWebsocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	r.mux.HandleConnection(conn)
}

func (r *Router) handleSessions(c *gin.Context) {
	external, err := r.mux.Sessions().DiscoverExternal()
	if err != nil {
		writeError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sessions":         r.mux.Sessions().List(),
		"externalSessions": external,
	})
}

// handlePorts reports every distinct local TCP port from 1024 up that is
// in LISTEN state, whichever process owns it, as candidates for the
// preview proxy; the browser is the final judge of which one is useful.
func (r *Router) handlePorts(c *gin.Context) {
	ports, err := discoverListeningPorts()
	if err != nil {
		writeError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"ports": ports})
}

func (r *Router) handleDirs(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			writeError(c, http.StatusInternalServerError, err.Error())
			return
		}
		path = home
	}
	if !filepath.IsAbs(path) {
		writeError(c, http.StatusBadRequest, "path must be absolute")
		return
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	dirs := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			dirs = append(dirs, e.Name())
		}
	}
	c.JSON(http.StatusOK, gin.H{"path": path, "dirs": dirs})
}

// handlePreview reverse-proxies to a dev server the target CLI started
// in a session's working directory, so the browser can preview it
// without the host port being reachable directly. The auth cookie is
// re-issued on every proxied request since iframes don't forward the
// Authorization header the websocket client uses.
func (r *Router) handlePreview(c *gin.Context) {
	portStr := c.Param("port")
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		writeError(c, http.StatusBadRequest, "invalid port")
		return
	}

	target, err := url.Parse("http://127.0.0.1:" + portStr)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "invalid proxy target")
		return
	}

	prefix := "/preview/" + portStr
	proxy := httputil.NewSingleHostReverseProxy(target)
	originalDirector := proxy.Director
	proxy.Director = func(req *http.Request) {
		originalDirector(req)
		req.URL.Path = strings.TrimPrefix(req.URL.Path, prefix)
		if req.URL.Path == "" {
			req.URL.Path = "/"
		}
	}
	proxy.ModifyResponse = rewriteAbsoluteReferences(prefix)

	r.gate.IssueCookie(c)
	proxy.ServeHTTP(c.Writer, c.Request)
}

// absoluteRefPattern matches href/src/action attributes whose value is an
// absolute, root-relative path (starting with a single "/", not "//" —
// that's protocol-relative and points off-host already).
var absoluteRefPattern = regexp.MustCompile(`(?i)\b(href|src|action)=(["'])/([^/]|$)`)

// rewriteAbsoluteReferences returns a ReverseProxy.ModifyResponse hook
// that re-prefixes absolute href/src/action references in an HTML
// response body with prefix, so a previewed dev server's own absolute
// asset paths (e.g. "/app.js") resolve back through this proxy instead
// of 404ing against the outer server. Non-HTML responses pass through
// untouched.
func rewriteAbsoluteReferences(prefix string) func(*http.Response) error {
	return func(resp *http.Response) error {
		ct, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
		if ct != "text/html" {
			return nil
		}

		body, err := readAndDecompress(resp)
		if err != nil {
			return err
		}

		rewritten := absoluteRefPattern.ReplaceAll(body, []byte(`$1=$2`+prefix+`/$3`))

		resp.Body = io.NopCloser(bytes.NewReader(rewritten))
		resp.Header.Set("Content-Length", strconv.Itoa(len(rewritten)))
		resp.Header.Del("Content-Encoding")
		return nil
	}
}

// readAndDecompress reads resp.Body fully, transparently gunzipping it
// first when the upstream sent a gzip-encoded body (rewriteAbsoluteReferences
// always hands back identity-encoded bytes, so this is the only encoding
// that needs handling before the rewrite).
func readAndDecompress(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	if !strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		return io.ReadAll(resp.Body)
	}
	gz, err := gzip.NewReader(resp.Body)
	if err != nil {
		return nil, err
	}
	defer gz.Close()
	return io.ReadAll(gz)
}

func (r *Router) serveStatic(c *gin.Context) {
	p := strings.TrimPrefix(c.Request.URL.Path, "/")
	if p == "" {
		p = "index.html"
	}
	data, err := fs.ReadFile(r.assets, p)
	if err != nil {
		data, err = fs.ReadFile(r.assets, "index.html")
		if err != nil {
			c.Status(http.StatusNotFound)
			return
		}
		c.Data(http.StatusOK, "text/html", data)
		return
	}
	c.Data(http.StatusOK, contentType(p), data)
}

func contentType(path string) string {
	switch filepath.Ext(path) {
	case ".html":
		return "text/html"
	case ".js":
		return "application/javascript"
	case ".css":
		return "text/css"
	case ".svg":
		return "image/svg+xml"
	case ".png":
		return "image/png"
	default:
		return "application/octet-stream"
	}
}

// NewServer builds, but does not start, an HTTP server on addr using
// this router; the caller runs Serve or ListenAndServe on it.
func NewServer(addr string, r *Router) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       0, // streaming websocket connections outlive any fixed read timeout
		WriteTimeout:      0,
		IdleTimeout:       120 * time.Second,
	}
}
