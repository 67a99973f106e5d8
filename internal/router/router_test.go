package router_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quanta-engine/core/internal/events"
	"github.com/quanta-engine/core/internal/router"
	"github.com/quanta-engine/core/pkg/types"
)

type fakeAdapter struct {
	id        string
	connected bool
	response  types.OrderResponse
	err       error
}

func (f *fakeAdapter) ID() string                                  { return f.id }
func (f *fakeAdapter) Connect(ctx context.Context) error           { f.connected = true; return nil }
func (f *fakeAdapter) IsConnected() bool                           { return f.connected }
func (f *fakeAdapter) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return decimal.NewFromInt(50000), nil
}
func (f *fakeAdapter) PlaceOrder(ctx context.Context, req types.OrderRequest) (types.OrderResponse, error) {
	if f.err != nil {
		return types.OrderResponse{}, f.err
	}
	return f.response, nil
}
func (f *fakeAdapter) CancelOrder(ctx context.Context, orderID string) error { return nil }

func newTestRouter(adapters map[string]router.ExchangeAdapter) *router.Router {
	return router.New(zap.NewNop(), types.DefaultRouterConfig(), events.NewBus(zap.NewNop()), adapters)
}

func TestRouteRejectsWhenNoExchangeConnected(t *testing.T) {
	r := newTestRouter(map[string]router.ExchangeAdapter{
		"binance": &fakeAdapter{id: "binance", connected: false},
	})

	_, err := r.Route(types.OrderRequest{Symbol: "BTCUSDT", Type: types.OrderTypeMarket})
	if err == nil {
		t.Fatal("expected an error when no exchange is connected")
	}
}

func TestRouteScoresEveryConnectedExchange(t *testing.T) {
	r := newTestRouter(map[string]router.ExchangeAdapter{
		"fast": &fakeAdapter{id: "fast", connected: true},
		"slow": &fakeAdapter{id: "slow", connected: true},
	})

	decision, err := r.Route(types.OrderRequest{Symbol: "BTCUSDT", Type: types.OrderTypeMarket})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.ExchangeID != "fast" && decision.ExchangeID != "slow" {
		t.Fatalf("unexpected exchange chosen: %q", decision.ExchangeID)
	}
	if len(decision.Scores) != 2 {
		t.Errorf("expected scores for both candidates, got %d", len(decision.Scores))
	}
}

func TestRouteTieBreaksLexicographically(t *testing.T) {
	r := newTestRouter(map[string]router.ExchangeAdapter{
		"bbb": &fakeAdapter{id: "bbb", connected: true},
		"aaa": &fakeAdapter{id: "aaa", connected: true},
	})

	decision, err := r.Route(types.OrderRequest{Symbol: "BTCUSDT", Type: types.OrderTypeMarket})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.ExchangeID != "aaa" {
		t.Errorf("expected lexicographic tie-break to pick %q, got %q", "aaa", decision.ExchangeID)
	}
}

func TestExecuteReturnsResponseAndCountsFill(t *testing.T) {
	adapter := &fakeAdapter{id: "binance", connected: true, response: types.OrderResponse{
		OrderID:     "order-1",
		Status:      types.OrderStatusFilled,
		Slippage:    decimal.NewFromFloat(0.001),
		FillQuality: decimal.NewFromFloat(0.95),
	}}
	r := newTestRouter(map[string]router.ExchangeAdapter{"binance": adapter})

	req := types.OrderRequest{Symbol: "BTCUSDT", Type: types.OrderTypeMarket}
	decision, err := r.Route(req)
	if err != nil {
		t.Fatalf("unexpected route error: %v", err)
	}

	resp, err := r.Execute(context.Background(), req, decision)
	if err != nil {
		t.Fatalf("unexpected execute error: %v", err)
	}
	if resp.OrderID != "order-1" {
		t.Errorf("unexpected order id %q", resp.OrderID)
	}

	metrics := r.Metrics()
	if metrics.TotalRouted != 1 || metrics.TotalFilled != 1 {
		t.Errorf("unexpected metrics: %+v", metrics)
	}
}

func TestTransitionOrderRefusesPastTerminalState(t *testing.T) {
	adapter := &fakeAdapter{id: "binance", connected: true, response: types.OrderResponse{
		OrderID: "order-2",
		Status:  types.OrderStatusFilled,
	}}
	r := newTestRouter(map[string]router.ExchangeAdapter{"binance": adapter})

	req := types.OrderRequest{Symbol: "BTCUSDT", Type: types.OrderTypeMarket}
	decision, _ := r.Route(req)
	r.Execute(context.Background(), req, decision)

	if r.TransitionOrder("order-2", types.OrderStatusCancelled) {
		t.Error("expected transition away from a terminal (filled) state to be refused")
	}
}
