// Package obshttp implements the node's optional observability HTTP
// surface: health, status, and Prometheus metrics, routed with
// gorilla/mux the way the teacher's internal/node/server.go routes its
// data-plane endpoints. It is purely observational — no core dissemination
// invariant depends on it, and it never touches the node's locks directly,
// only the read-only accessor methods gossip.Node already exposes.
package obshttp

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gossipnode/internal/eventlog"
)

// NodeStats is the read-only slice of gossip.Node this surface depends
// on, kept as an interface so obshttp never needs to import the gossip
// package's concurrency internals.
type NodeStats interface {
	NodeID() string
	SelfAddr() string
	ViewSize() int
	SentCount() uint64
	SeenCount() int
	RelayCount() uint64
	PowRejectedCount() uint64
	RecentEvents() []eventlog.Record
}

// Server exposes /health, /status, and /metrics for a single gossip node.
type Server struct {
	node NodeStats
	http *http.Server

	rateLimiter *rateLimiter

	viewSize    prometheus.Gauge
	sentTotal   prometheus.Gauge
	seenTotal   prometheus.Gauge
	relayTotal  prometheus.Gauge
	powRejected prometheus.Gauge

	startedAt time.Time
	stop      chan struct{}
}

// New builds a Server bound to addr (e.g. ":9101"). Registering the
// Prometheus collectors here, not at package init, keeps multiple nodes
// in one process (as in tests) from panicking on duplicate registration.
func New(node NodeStats, addr string, registry *prometheus.Registry) *Server {
	s := &Server{
		node:      node,
		startedAt: time.Now(),
		stop:      make(chan struct{}),
		viewSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gossipnode_view_size", Help: "Current membership view size.",
		}),
		sentTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gossipnode_sent_total", Help: "Total envelopes sent.",
		}),
		seenTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gossipnode_seen_total", Help: "Current seen-set size.",
		}),
		relayTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gossipnode_relay_total", Help: "Total relay rounds that sent at least one datagram.",
		}),
		powRejected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gossipnode_pow_rejected_total", Help: "Total HELLO admissions rejected.",
		}),
	}
	registry.MustRegister(s.viewSize, s.sentTotal, s.seenTotal, s.relayTotal, s.powRejected)

	s.rateLimiter = newRateLimiter(50, 100)

	router := mux.NewRouter()
	router.Use(s.rateLimiter.middleware)
	router.HandleFunc("/health", s.healthHandler).Methods("GET")
	router.HandleFunc("/status", s.statusHandler).Methods("GET")
	router.HandleFunc("/events/recent", s.recentEventsHandler).Methods("GET")
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods("GET")

	s.http = &http.Server{Addr: addr, Handler: router}
	return s
}

// Start runs the metrics poller and the HTTP server until ctx is
// canceled. It does not block the caller.
func (s *Server) Start(ctx context.Context) {
	go s.pollMetrics(ctx)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.http.Shutdown(shutdownCtx)
		s.rateLimiter.close()
	}()
}

// pollMetrics periodically samples the node's accessor methods into the
// Prometheus gauges, mirroring the teacher's updateStorageMetrics ticker.
func (s *Server) pollMetrics(ctx context.Context) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.viewSize.Set(float64(s.node.ViewSize()))
			s.sentTotal.Set(float64(s.node.SentCount()))
			s.seenTotal.Set(float64(s.node.SeenCount()))
			s.relayTotal.Set(float64(s.node.RelayCount()))
			s.powRejected.Set(float64(s.node.PowRejectedCount()))
		}
	}
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

func (s *Server) recentEventsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.node.RecentEvents())
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"node_id":       s.node.NodeID(),
		"self_addr":     s.node.SelfAddr(),
		"uptime":        time.Since(s.startedAt).String(),
		"view_size":     s.node.ViewSize(),
		"seen_total":    s.node.SeenCount(),
		"sent_total":    s.node.SentCount(),
		"relay_total":   s.node.RelayCount(),
		"pow_rejected":  s.node.PowRejectedCount(),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}
