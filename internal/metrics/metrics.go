// Package metrics exposes Prometheus collectors for sessions, scheduler
// runs, and multiplexer connections, served on /metrics.
package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	regOK atomic.Bool

	SessionsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "claude_code_remote",
		Subsystem: "session",
		Name:      "created_total",
		Help:      "Number of PTY sessions successfully created.",
	})
	SessionsDestroyed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "claude_code_remote",
		Subsystem: "session",
		Name:      "destroyed_total",
		Help:      "Number of PTY sessions destroyed.",
	})
	SessionsAdopted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "claude_code_remote",
		Subsystem: "session",
		Name:      "adopted_total",
		Help:      "Number of foreign processes successfully adopted.",
	})
	SessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "claude_code_remote",
		Subsystem: "session",
		Name:      "active",
		Help:      "Currently managed PTY sessions.",
	})

	ScheduleRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "claude_code_remote",
		Subsystem: "scheduler",
		Name:      "runs_total",
		Help:      "Number of schedule runs finalized, labeled by outcome.",
	}, []string{"outcome"})
	ScheduleRunDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "claude_code_remote",
		Subsystem: "scheduler",
		Name:      "run_duration_seconds",
		Help:      "Observed duration of finalized schedule runs.",
		Buckets:   prometheus.DefBuckets,
	})

	ConnectionsOpen = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "claude_code_remote",
		Subsystem: "multiplexer",
		Name:      "connections_open",
		Help:      "Currently open client connections.",
	})
	ConnectionsAuthenticated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "claude_code_remote",
		Subsystem: "multiplexer",
		Name:      "authenticated_total",
		Help:      "Number of connections that successfully authenticated.",
	})
	SlowConnectionsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "claude_code_remote",
		Subsystem: "multiplexer",
		Name:      "slow_connections_dropped_total",
		Help:      "Connections closed for exceeding their bounded send buffer.",
	})
)

// Register registers every collector with r. Safe to call more than
// once; an AlreadyRegisteredError on a later call is ignored.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	collectors := []prometheus.Collector{
		SessionsCreated, SessionsDestroyed, SessionsAdopted, SessionsActive,
		ScheduleRuns, ScheduleRunDuration,
		ConnectionsOpen, ConnectionsAuthenticated, SlowConnectionsDropped,
	}
	for _, c := range collectors {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
