package obshttp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"gossipnode/internal/eventlog"
)

type fakeNodeStats struct {
	id       string
	addr     string
	view     int
	sent     uint64
	seen     int
	relay    uint64
	rejected uint64
	events   []eventlog.Record
}

func (f fakeNodeStats) NodeID() string                    { return f.id }
func (f fakeNodeStats) SelfAddr() string                  { return f.addr }
func (f fakeNodeStats) ViewSize() int                     { return f.view }
func (f fakeNodeStats) SentCount() uint64                 { return f.sent }
func (f fakeNodeStats) SeenCount() int                    { return f.seen }
func (f fakeNodeStats) RelayCount() uint64                { return f.relay }
func (f fakeNodeStats) PowRejectedCount() uint64          { return f.rejected }
func (f fakeNodeStats) RecentEvents() []eventlog.Record   { return f.events }

func newTestServer() *Server {
	stats := fakeNodeStats{id: "node-1", addr: "127.0.0.1:9001", view: 3, sent: 10, seen: 5, relay: 2, rejected: 1}
	return New(stats, ":0", prometheus.NewRegistry())
}

func TestHealthHandlerReportsHealthy(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("status field = %q, want healthy", body["status"])
	}
}

func TestStatusHandlerReportsNodeStats(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["node_id"] != "node-1" {
		t.Errorf("node_id = %v, want node-1", body["node_id"])
	}
	if int(body["view_size"].(float64)) != 3 {
		t.Errorf("view_size = %v, want 3", body["view_size"])
	}
}

func TestRecentEventsHandlerReturnsSinkTail(t *testing.T) {
	stats := fakeNodeStats{events: []eventlog.Record{
		{TimestampMs: 1, Event: eventlog.Send, MsgType: "GOSSIP", MsgID: "1_2_3"},
	}}
	s := New(stats, ":0", prometheus.NewRegistry())

	req := httptest.NewRequest(http.MethodGet, "/events/recent", nil)
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)

	var body []eventlog.Record
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(body) != 1 || body[0].MsgID != "1_2_3" {
		t.Errorf("events = %+v, want one record with msg id 1_2_3", body)
	}
}

func TestMetricsHandlerExposesPrometheusFormat(t *testing.T) {
	s := newTestServer()
	s.viewSize.Set(3)
	s.sentTotal.Set(10)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "gossipnode_view_size") {
		t.Errorf("expected gossipnode_view_size in metrics output, got:\n%s", body)
	}
}

func TestRateLimiterAllowsBurstThenBlocks(t *testing.T) {
	rl := newRateLimiter(1, 2)
	defer rl.close()

	if !rl.allow("10.0.0.1") {
		t.Fatal("expected first request to be allowed")
	}
	if !rl.allow("10.0.0.1") {
		t.Fatal("expected second request (within burst) to be allowed")
	}
	if rl.allow("10.0.0.1") {
		t.Fatal("expected third request to exceed burst and be denied")
	}
	if !rl.allow("10.0.0.2") {
		t.Fatal("expected a different IP to have its own independent bucket")
	}
}
