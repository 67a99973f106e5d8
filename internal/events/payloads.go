package events

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/quanta-engine/core/pkg/types"
)

// MarketDataUpdate carries a freshly orchestrated market data point.
type MarketDataUpdate struct {
	Symbol string
	Point  types.MarketDataPoint
}

// MarketRegimeUpdate carries a regime change or reaffirmation for a symbol.
type MarketRegimeUpdate struct {
	Symbol string
	Regime types.MarketRegime
}

// SignalGenerated carries one indicator-engine composite signal.
type SignalGenerated struct {
	Symbol string
	Signal types.CompositeSignal
}

// SignalRankingUpdate carries the current top-N ranked signals.
type SignalRankingUpdate struct {
	Ranked []types.CompositeSignal
}

// SignalConfirmed marks a signal that passed risk validation and is
// eligible for routing.
type SignalConfirmed struct {
	Symbol string
	Signal types.CompositeSignal
}

// TradeSignal is the router-facing instruction derived from a confirmed
// signal and a risk-approved size.
type TradeSignal struct {
	Symbol string
	Side   types.OrderSide
	Size   decimal.Decimal
	Price  decimal.Decimal
}

// OrderPlaced announces an order accepted by the router for execution.
type OrderPlaced struct {
	OrderID    string
	ExchangeID string
	Request    types.OrderRequest
}

// OrderFilled announces a completed (or partially completed) fill.
type OrderFilled struct {
	OrderID string
	Fill    types.Fill
	Status  types.OrderStatus
}

// RiskLimitBreach announces an admission-control rejection or a tripped
// circuit breaker.
type RiskLimitBreach struct {
	Symbol string
	Reason string
}

// SystemHealthUpdate carries a coarse health snapshot for the coordinator.
type SystemHealthUpdate struct {
	Component string
	Healthy   bool
	Detail    string
}

// PerformanceMetric carries one named metric observation.
type PerformanceMetric struct {
	Name      string
	Value     float64
	Timestamp time.Time
}

// EnhancedMetricsUpdated carries a refreshed risk metrics snapshot.
type EnhancedMetricsUpdated struct {
	Metrics types.RiskMetrics
}
