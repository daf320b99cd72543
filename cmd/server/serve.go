package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"github.com/yazinsai/claude-code-remote/internal/activity"
	"github.com/yazinsai/claude-code-remote/internal/authgate"
	"github.com/yazinsai/claude-code-remote/internal/config"
	"github.com/yazinsai/claude-code-remote/internal/detector"
	"github.com/yazinsai/claude-code-remote/internal/httpapi"
	"github.com/yazinsai/claude-code-remote/internal/logger"
	"github.com/yazinsai/claude-code-remote/internal/metrics"
	"github.com/yazinsai/claude-code-remote/internal/mux"
	"github.com/yazinsai/claude-code-remote/internal/prefs"
	"github.com/yazinsai/claude-code-remote/internal/scheduler"
	"github.com/yazinsai/claude-code-remote/internal/sessionmgr"
)

// shutdownGrace bounds how long the HTTP server's graceful shutdown may
// take before the remaining teardown proceeds regardless.
const shutdownGrace = 10 * time.Second

func runServe(g *globalFlags, s *serveFlags, flags *pflag.FlagSet) error {
	cfg, err := config.Load(g.binaryName, g.configFile, flags)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if s.dev {
		cfg.DevMode = true
	}
	if s.port != 0 {
		cfg.Port = s.port
	}

	if err := os.MkdirAll(cfg.DotDir, 0o755); err != nil {
		return fmt.Errorf("create state directory %s: %w", cfg.DotDir, err)
	}

	log, closeLog := logger.New(logger.FileConfig{Dir: cfg.DotDir}, newLogLevel(cfg.DevMode))
	defer closeLog.Close()

	gate := authgate.New(cfg.TokenOverride)

	det := detector.New(cfg.BinaryName)
	act := activity.New(activity.DotDirLocator{
		DotDir:         "." + cfg.BinaryName,
		ProjectsSubdir: "projects",
	})
	sessions := sessionmgr.New(cfg.BinaryName, cfg.BinaryOverrideEnv, det, act, log)

	prefsStore, err := prefs.New(cfg.DotDir)
	if err != nil {
		return fmt.Errorf("load preferences: %w", err)
	}

	uploadsDir := cfg.DotDir + "/uploads"
	m := mux.New(gate, sessions, nil, prefsStore, uploadsDir, log)

	sched := scheduler.New(cfg.DotDir, cfg.BinaryName, cfg.BinaryOverrideEnv, m, log)
	m.SetScheduler(sched)
	if err := sched.Load(); err != nil {
		return fmt.Errorf("load schedules: %w", err)
	}
	sched.StartRetentionSweep()

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		log.Warn("register metrics", "error", err)
	}

	m.Start()

	router := httpapi.NewRouter(gate, m, nil)
	addr := fmt.Sprintf(":%d", cfg.Port)
	server := httpapi.NewServer(addr, router)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	printBanner(cfg, gate, s.publicURL)

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve(listener) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-sigCh:
		log.Info("shutdown signal received")
	}

	return shutdown(server, m, sessions, sched, log)
}

// shutdown implements the daemon's specified teardown ordering: stop
// accepting new upgrades, destroy PTY sessions, stop cron registrations,
// then return so the deferred log close can flush. A scheduler run that
// is already in progress is not waited for.
func shutdown(server *http.Server, m *mux.Multiplexer, sessions *sessionmgr.Manager, sched *scheduler.Scheduler, log *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Warn("http shutdown", "error", err)
	}
	m.Stop()
	sessions.DestroyAll()
	sched.Stop()
	log.Info("shutdown complete")
	return nil
}

func printBanner(cfg *config.Config, gate *authgate.Gate, publicURL string) {
	fmt.Printf("claude-code-remoted listening on http://localhost:%d\n", cfg.Port)
	fmt.Printf("token: %s\n", gate.Token())
	if publicURL != "" {
		fmt.Printf("public URL: %s\n", publicURL)
	}
	fmt.Println("[qr code omitted: peripheral collaborator]")
}
