package orchestrator_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quanta-engine/core/internal/cache"
	"github.com/quanta-engine/core/internal/data"
	"github.com/quanta-engine/core/internal/events"
	"github.com/quanta-engine/core/internal/indicators"
	"github.com/quanta-engine/core/internal/orchestrator"
	"github.com/quanta-engine/core/internal/regime"
	"github.com/quanta-engine/core/internal/risk"
	"github.com/quanta-engine/core/internal/router"
	"github.com/quanta-engine/core/pkg/types"
)

// fakeOrderAdapter is a minimal router.ExchangeAdapter stand-in that fills
// every order immediately, same shape as router_test.go's fakeAdapter.
type fakeOrderAdapter struct {
	mu        sync.Mutex
	placed    int
	lastOrder types.OrderRequest
}

func (f *fakeOrderAdapter) ID() string                        { return "fake" }
func (f *fakeOrderAdapter) Connect(ctx context.Context) error { return nil }
func (f *fakeOrderAdapter) IsConnected() bool                 { return true }
func (f *fakeOrderAdapter) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return decimal.NewFromInt(50000), nil
}
func (f *fakeOrderAdapter) PlaceOrder(ctx context.Context, req types.OrderRequest) (types.OrderResponse, error) {
	f.mu.Lock()
	f.placed++
	f.lastOrder = req
	f.mu.Unlock()
	return types.OrderResponse{
		OrderID:      "fake-order",
		ExchangeID:   "fake",
		Status:       types.OrderStatusFilled,
		FilledQty:    req.Quantity,
		AvgFillPrice: decimal.NewFromInt(50000),
		CompletedAt:  time.Now(),
	}, nil
}
func (f *fakeOrderAdapter) CancelOrder(ctx context.Context, orderID string) error { return nil }

// fakeClient is a minimal data.ExchangeClient stand-in: fixed tickers and
// candles for every symbol, no network calls.
type fakeClient struct {
	mu          sync.Mutex
	tickerCalls int
	tickerErr   error
}

func (f *fakeClient) Ticker24h(ctx context.Context) ([]data.Ticker, error) {
	f.mu.Lock()
	f.tickerCalls++
	err := f.tickerErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return []data.Ticker{
		{Symbol: "BTCUSDT", Price: decimal.NewFromInt(50000), Volume24h: decimal.NewFromInt(2_000_000), Change24h: decimal.NewFromFloat(0.01)},
		{Symbol: "ETHUSDT", Price: decimal.NewFromInt(3000), Volume24h: decimal.NewFromInt(1_500_000), Change24h: decimal.NewFromFloat(0.015)},
	}, nil
}

// Candles returns a steadily rising series, the same uptrend shape used by
// the indicators package's own TestUptrendScoresBullish, so a routing test
// can rely on the composite signal coming out bullish.
func (f *fakeClient) Candles(ctx context.Context, symbol string, timeframe types.Timeframe, limit int) ([]types.Candle, error) {
	if limit <= 0 {
		limit = 60
	}
	now := time.Now()
	price := 100.0
	candles := make([]types.Candle, 0, limit)
	for i := 0; i < limit; i++ {
		open := price
		price += 1
		close := price
		candles = append(candles, types.Candle{
			OpenTime:  now.Add(time.Duration(i) * time.Minute).UnixMilli(),
			CloseTime: now.Add(time.Duration(i+1) * time.Minute).UnixMilli(),
			Open:      decimal.NewFromFloat(open),
			High:      decimal.NewFromFloat(close + 0.5),
			Low:       decimal.NewFromFloat(open - 0.5),
			Close:     decimal.NewFromFloat(close),
			Volume:    decimal.NewFromFloat(1000 + float64(i)),
		})
	}
	return candles, nil
}

func (f *fakeClient) AccountInfo(ctx context.Context) (data.AccountInfo, error) { return data.AccountInfo{}, nil }
func (f *fakeClient) Positions(ctx context.Context) ([]data.PositionInfo, error) { return nil, nil }
func (f *fakeClient) PlaceOrder(ctx context.Context, req types.OrderRequest) (types.OrderResponse, error) {
	return types.OrderResponse{}, nil
}
func (f *fakeClient) ClosePosition(ctx context.Context, symbol string) error { return nil }

func testCacheConfig() types.CacheConfig {
	return types.CacheConfig{
		L1MaxEntries: 100,
		Retention: map[types.Timeframe]types.RetentionPolicy{
			types.Timeframe1m: {L1TTL: time.Hour, L2TTL: 24 * time.Hour},
		},
	}
}

// testHarness bundles an orchestrator with the subsystems its tests need to
// inspect directly (the risk manager's positions, the router's telemetry).
type testHarness struct {
	orchestrator    *orchestrator.Orchestrator
	risk            *risk.Manager
	router          *router.Router
	indicatorEngine *indicators.Engine
	adapter         *fakeOrderAdapter
}

func newTestOrchestrator(client data.ExchangeClient, cfg types.OrchestratorConfig) *orchestrator.Orchestrator {
	return newTestHarness(client, cfg).orchestrator
}

func newTestHarness(client data.ExchangeClient, cfg types.OrchestratorConfig) *testHarness {
	logger := zap.NewNop()
	bus := events.NewBus(logger)
	store := cache.New(testCacheConfig(), nil, logger)
	regimeDetector := regime.New(logger, regime.DefaultConfig())
	indicatorEngine := indicators.New(logger, indicators.FromTypesConfig(types.DefaultIndicatorConfig()))
	riskManager := risk.New(logger, types.DefaultRiskConfig(), bus)
	riskManager.UpdatePortfolio(types.Portfolio{
		TotalBalance: decimal.NewFromInt(100000),
		Equity:       decimal.NewFromInt(100000),
	})

	adapter := &fakeOrderAdapter{}
	orderRouter := router.New(logger, types.DefaultRouterConfig(), bus, map[string]router.ExchangeAdapter{"fake": adapter})

	o := orchestrator.New(logger, cfg, bus, store, regimeDetector, indicatorEngine, riskManager, client, orderRouter)

	return &testHarness{orchestrator: o, risk: riskManager, router: orderRouter, indicatorEngine: indicatorEngine, adapter: adapter}
}

func testOrchestratorConfig() types.OrchestratorConfig {
	cfg := types.DefaultOrchestratorConfig()
	cfg.HistoricalBatchSize = 10
	cfg.KlinesLimit = 60
	return cfg
}

func TestStartFlowCompletesAndPublishesMarketData(t *testing.T) {
	client := &fakeClient{}
	o := newTestOrchestrator(client, testOrchestratorConfig())

	status, err := o.StartFlow(context.Background(), []string{"BTCUSDT", "ETHUSDT"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != orchestrator.FlowCompleted {
		t.Fatalf("status = %q, want %q", status, orchestrator.FlowCompleted)
	}

	data := o.GetMarketData()
	if len(data) == 0 {
		t.Error("expected at least one symbol to be published after a completed cycle")
	}
}

func TestStartFlowRefusesWhileSingleFlightHeld(t *testing.T) {
	// Drive StartFlow's defer-guarded running flag directly by calling it
	// twice concurrently. Whether the calls overlap depends on scheduling, so
	// each must resolve to FlowBusy (refused while the other holds the flag)
	// or FlowCompleted, and never to any other status.
	client := &fakeClient{}
	o := newTestOrchestrator(client, testOrchestratorConfig())

	var wg sync.WaitGroup
	statuses := make([]orchestrator.FlowStatus, 2)
	wg.Add(2)
	for i := 0; i < 2; i++ {
		i := i
		go func() {
			defer wg.Done()
			status, _ := o.StartFlow(context.Background(), []string{"BTCUSDT"})
			statuses[i] = status
		}()
	}
	wg.Wait()

	busyOrCompleted := 0
	for _, s := range statuses {
		if s == orchestrator.FlowBusy || s == orchestrator.FlowCompleted {
			busyOrCompleted++
		}
	}
	if busyOrCompleted != 2 {
		t.Errorf("expected both calls to resolve to busy or completed, got %v", statuses)
	}
}

func TestStartFlowFailsWhenTickerFetchErrors(t *testing.T) {
	client := &fakeClient{tickerErr: errFakeTicker}
	o := newTestOrchestrator(client, testOrchestratorConfig())

	status, err := o.StartFlow(context.Background(), []string{"BTCUSDT"})
	if err == nil {
		t.Fatal("expected an error when the ticker fetch fails")
	}
	if status != orchestrator.FlowFailed {
		t.Errorf("status = %q, want %q", status, orchestrator.FlowFailed)
	}
}

func TestStartFlowRefusesWhenBreakerOpen(t *testing.T) {
	cfg := testOrchestratorConfig()
	cfg.CircuitFailureThreshold = 1
	cfg.CircuitOpenDuration = time.Hour

	client := &fakeClient{tickerErr: errFakeTicker}
	o := newTestOrchestrator(client, cfg)

	// First failing cycle trips the breaker (threshold 1).
	if _, err := o.StartFlow(context.Background(), []string{"BTCUSDT"}); err == nil {
		t.Fatal("expected the first cycle to fail")
	}

	status, err := o.StartFlow(context.Background(), []string{"BTCUSDT"})
	if status != orchestrator.FlowRefused || err == nil {
		t.Errorf("expected a refused second cycle with the breaker open, got status=%q err=%v", status, err)
	}
}

func TestStartContinuousStopsCleanly(t *testing.T) {
	client := &fakeClient{}
	o := newTestOrchestrator(client, testOrchestratorConfig())

	o.StartContinuous(context.Background(), []string{"BTCUSDT"}, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	o.StopContinuous()

	if client.tickerCalls == 0 {
		t.Error("expected at least one scheduled cycle to have run")
	}
}

func TestGetMetricsReflectsBreakerAndCycleCount(t *testing.T) {
	client := &fakeClient{}
	o := newTestOrchestrator(client, testOrchestratorConfig())

	if _, err := o.StartFlow(context.Background(), []string{"BTCUSDT", "ETHUSDT"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	metrics := o.GetMetrics()
	if metrics.CircuitBreaker != orchestrator.BreakerClosed {
		t.Errorf("expected a closed breaker after a healthy cycle, got %q", metrics.CircuitBreaker)
	}
	if metrics.Processing.TotalCycles != 1 {
		t.Errorf("expected 1 total cycle, got %d", metrics.Processing.TotalCycles)
	}
}

// TestStartFlowRoutesConfirmedSignalsThroughToRiskManager drives the full
// composite-signal-to-filled-position sequencing: a directional composite
// signal from a completed cycle is confirmed against risk limits, routed
// and executed against the order router, and the resulting fill is applied
// to the risk manager's position bookkeeping via its order_filled
// subscription (see risk.New) without the orchestrator calling OnFill
// itself.
func TestStartFlowRoutesConfirmedSignalsThroughToRiskManager(t *testing.T) {
	h := newTestHarness(&fakeClient{}, testOrchestratorConfig())
	h.indicatorEngine.Start(context.Background())
	defer h.indicatorEngine.Stop()

	// Run cycles, with time between them for the drain loop to compute a
	// composite signal from the previous cycle's buffer, until a directional
	// signal has been confirmed and routed or the deadline expires.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := h.orchestrator.StartFlow(context.Background(), []string{"BTCUSDT", "ETHUSDT"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		h.adapter.mu.Lock()
		placed := h.adapter.placed
		h.adapter.mu.Unlock()
		if placed > 0 {
			break
		}
		time.Sleep(150 * time.Millisecond)
	}

	h.adapter.mu.Lock()
	placed := h.adapter.placed
	h.adapter.mu.Unlock()
	if placed == 0 {
		t.Fatal("expected a directional composite signal to be confirmed and routed within the deadline")
	}

	metrics := h.router.Metrics()
	if metrics.TotalRouted == 0 || metrics.TotalFilled == 0 {
		t.Errorf("expected the router to have routed and filled an order, got %+v", metrics)
	}
	if len(h.risk.Positions()) == 0 {
		t.Error("expected the filled order to open a position via the risk manager's order_filled subscription")
	}
}

var errFakeTicker = fakeTickerError("fake ticker fetch failure")

type fakeTickerError string

func (e fakeTickerError) Error() string { return string(e) }
