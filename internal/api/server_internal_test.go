package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/quanta-engine/core/pkg/types"
)

type fakeSnapshot struct {
	points []types.MarketDataPoint
	regime types.MarketRegime
}

func (f *fakeSnapshot) GetMarketData(symbols ...string) []types.MarketDataPoint {
	if len(symbols) == 0 {
		return f.points
	}
	var out []types.MarketDataPoint
	for _, s := range symbols {
		for _, p := range f.points {
			if p.Symbol == s {
				out = append(out, p)
			}
		}
	}
	return out
}

func (f *fakeSnapshot) GetRegime() types.MarketRegime       { return f.regime }
func (f *fakeSnapshot) OrchestratorMetrics() interface{}    { return map[string]string{"ok": "orchestrator"} }
func (f *fakeSnapshot) RouterMetrics() interface{}          { return map[string]string{"ok": "router"} }
func (f *fakeSnapshot) IndicatorMetrics() interface{}       { return map[string]string{"ok": "indicators"} }
func (f *fakeSnapshot) RiskMetrics() interface{}            { return map[string]string{"ok": "risk"} }

func newTestServer(snapshot Snapshot) *Server {
	return New(zap.NewNop(), types.ServerConfig{Host: "127.0.0.1", Port: 0, EnableMetrics: true}, snapshot)
}

func doGet(s *Server, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealthzReturnsOK(t *testing.T) {
	s := newTestServer(&fakeSnapshot{})
	rec := doGet(s, "/healthz")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("status field = %v, want %q", body["status"], "healthy")
	}
}

func TestHandleMetricsRegisteredWhenEnabled(t *testing.T) {
	s := newTestServer(&fakeSnapshot{})
	rec := doGet(s, "/metrics")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestHandleMetricsNotRegisteredWhenDisabled(t *testing.T) {
	s := New(zap.NewNop(), types.ServerConfig{Host: "127.0.0.1", Port: 0, EnableMetrics: false}, &fakeSnapshot{})
	rec := doGet(s, "/metrics")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d when metrics are disabled", rec.Code, http.StatusNotFound)
	}
}

func TestHandleMarketDataReturnsAllPoints(t *testing.T) {
	s := newTestServer(&fakeSnapshot{points: []types.MarketDataPoint{
		{Symbol: "BTCUSDT"}, {Symbol: "ETHUSDT"},
	}})
	rec := doGet(s, "/api/v1/market-data")

	var points []types.MarketDataPoint
	if err := json.Unmarshal(rec.Body.Bytes(), &points); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if len(points) != 2 {
		t.Errorf("expected 2 points, got %d", len(points))
	}
}

func TestHandleSymbolDataReturnsSingleSymbol(t *testing.T) {
	s := newTestServer(&fakeSnapshot{points: []types.MarketDataPoint{
		{Symbol: "BTCUSDT"}, {Symbol: "ETHUSDT"},
	}})
	rec := doGet(s, "/api/v1/market-data/ETHUSDT")

	var point types.MarketDataPoint
	if err := json.Unmarshal(rec.Body.Bytes(), &point); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if point.Symbol != "ETHUSDT" {
		t.Errorf("symbol = %q, want %q", point.Symbol, "ETHUSDT")
	}
}

func TestHandleSymbolDataReturnsNotFoundForUnknownSymbol(t *testing.T) {
	s := newTestServer(&fakeSnapshot{})
	rec := doGet(s, "/api/v1/market-data/NOPE")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestHandleRegimeReturnsSnapshotRegime(t *testing.T) {
	s := newTestServer(&fakeSnapshot{regime: types.MarketRegime{Tag: types.RegimeTrending}})
	rec := doGet(s, "/api/v1/regime")

	var regime types.MarketRegime
	if err := json.Unmarshal(rec.Body.Bytes(), &regime); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if regime.Tag != types.RegimeTrending {
		t.Errorf("tag = %q, want %q", regime.Tag, types.RegimeTrending)
	}
}

func TestHandleMetricsEndpointsDelegateToSnapshot(t *testing.T) {
	s := newTestServer(&fakeSnapshot{})

	for path, want := range map[string]string{
		"/api/v1/metrics/orchestrator": "orchestrator",
		"/api/v1/metrics/router":       "router",
		"/api/v1/metrics/indicators":   "indicators",
		"/api/v1/metrics/risk":         "risk",
	} {
		rec := doGet(s, path)
		var body map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("%s: invalid JSON body: %v", path, err)
		}
		if body["ok"] != want {
			t.Errorf("%s: ok = %q, want %q", path, body["ok"], want)
		}
	}
}
