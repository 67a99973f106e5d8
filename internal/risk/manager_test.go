package risk_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quanta-engine/core/internal/events"
	"github.com/quanta-engine/core/internal/risk"
	"github.com/quanta-engine/core/pkg/types"
)

func newManager() *risk.Manager {
	return risk.New(zap.NewNop(), types.DefaultRiskConfig(), events.NewBus(zap.NewNop()))
}

func TestCanOpenRejectsWithZeroBalance(t *testing.T) {
	m := newManager()
	if m.CanOpen("BTCUSDT", decimal.NewFromInt(1), decimal.NewFromInt(50000)) {
		t.Error("expected rejection with no portfolio balance on record")
	}
}

func TestCanOpenAdmitsWithinLimits(t *testing.T) {
	m := newManager()
	m.UpdatePortfolio(types.Portfolio{
		TotalBalance: decimal.NewFromInt(100000),
		Equity:       decimal.NewFromInt(100000),
	})

	if !m.CanOpen("BTCUSDT", decimal.NewFromFloat(0.01), decimal.NewFromInt(50000)) {
		t.Error("expected a small, well within-limits position to be admitted")
	}
}

func TestCanOpenRejectsOverPositionSizeLimit(t *testing.T) {
	m := newManager()
	m.UpdatePortfolio(types.Portfolio{
		TotalBalance: decimal.NewFromInt(100000),
		Equity:       decimal.NewFromInt(100000),
	})

	// Notional far exceeds MaxPositionSize (5%) of balance.
	if m.CanOpen("BTCUSDT", decimal.NewFromInt(10), decimal.NewFromInt(50000)) {
		t.Error("expected rejection for a position exceeding the per-position size limit")
	}
}

func TestOnFillOpensAndClosesPosition(t *testing.T) {
	m := newManager()
	m.OnFill(risk.Fill{Symbol: "BTCUSDT", Side: types.OrderSideBuy, Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(50000)})

	positions := m.Positions()
	if len(positions) != 1 {
		t.Fatalf("expected 1 open position, got %d", len(positions))
	}

	m.OnFill(risk.Fill{Symbol: "BTCUSDT", Side: types.OrderSideSell, Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(51000)})
	if len(m.Positions()) != 0 {
		t.Error("expected the matching sell to close the position")
	}
}

func TestCircuitBreakerTripsOnLargeDrawdown(t *testing.T) {
	m := newManager()
	m.UpdatePortfolio(types.Portfolio{
		TotalBalance: decimal.NewFromInt(100000),
		Equity:       decimal.NewFromInt(100000),
		TotalPnL:     decimal.NewFromInt(-20000), // -20% of balance, breaches 10% threshold
	})

	if !m.IsBreakerOpen() {
		t.Fatal("expected the trading circuit breaker to trip on a -20% drawdown")
	}
	if m.CanOpen("BTCUSDT", decimal.NewFromFloat(0.01), decimal.NewFromInt(50000)) {
		t.Error("CanOpen should refuse new positions while the breaker is open")
	}
}

func TestAssessCriticalWhenBreakerOpen(t *testing.T) {
	m := newManager()
	m.UpdatePortfolio(types.Portfolio{
		TotalBalance: decimal.NewFromInt(100000),
		Equity:       decimal.NewFromInt(100000),
		TotalPnL:     decimal.NewFromInt(-20000),
	})

	assessment := m.Assess(types.MarketDataPoint{Symbol: "BTCUSDT", Quality: types.QualityHigh, Timestamp: time.Now()})
	if assessment.Level != risk.AssessCritical {
		t.Errorf("expected critical assessment with breaker open, got %q", assessment.Level)
	}
}

func TestRecommendedSizeIsZeroWithoutBalance(t *testing.T) {
	m := newManager()
	size := m.RecommendedSize("BTCUSDT", decimal.NewFromInt(50000))
	if !size.IsZero() {
		t.Errorf("expected zero recommended size with no balance, got %s", size)
	}
}
