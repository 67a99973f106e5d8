// Package risk implements the Risk Manager: position bookkeeping, risk
// metrics, admission control, and the trading circuit breaker.
package risk

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quanta-engine/core/internal/events"
	"github.com/quanta-engine/core/pkg/types"
)

// Fill is the bookkeeping event passed to OnFill.
type Fill struct {
	Symbol   string
	Side     types.OrderSide
	Quantity decimal.Decimal
	Price    decimal.Decimal
}

// AssessLevel is the coarse severity returned by Assess.
type AssessLevel string

const (
	AssessOK       AssessLevel = "ok"
	AssessWarning  AssessLevel = "warning"
	AssessCritical AssessLevel = "critical"
)

// Assessment is the result of Assess.
type Assessment struct {
	Level           AssessLevel
	Score           float64
	Warnings        []string
	Recommendations []string
}

// Stats mirrors the public stats() contract.
type Stats struct {
	OpenPositions   int
	TotalExposure   decimal.Decimal
	BreakerOpen     bool
	BreakerOpenedAt time.Time
}

// Manager is the Risk Manager.
type Manager struct {
	logger *zap.Logger
	config types.RiskConfig
	bus    *events.Bus

	mu        sync.RWMutex
	positions map[string]*types.Position
	portfolio types.Portfolio
	returns   []decimal.Decimal
	equity    []decimal.Decimal

	breakerOpen     bool
	breakerOpenedAt time.Time
}

// New constructs a Manager and subscribes it to order_filled events so
// every router-executed fill updates position bookkeeping without the
// coordinator having to wire OnFill by hand.
func New(logger *zap.Logger, config types.RiskConfig, bus *events.Bus) *Manager {
	m := &Manager{
		logger:    logger,
		config:    config,
		bus:       bus,
		positions: make(map[string]*types.Position),
		returns:   make([]decimal.Decimal, 0, config.ReturnsWindow),
		equity:    make([]decimal.Decimal, 0, config.ReturnsWindow),
	}

	if bus != nil {
		bus.Subscribe(events.KindOrderFilled, m.handleOrderFilled)
	}

	return m
}

func (m *Manager) handleOrderFilled(event events.Event) error {
	filled, ok := event.Payload.(events.OrderFilled)
	if !ok || filled.Fill.Symbol == "" {
		return nil
	}
	m.OnFill(Fill{
		Symbol:   filled.Fill.Symbol,
		Side:     filled.Fill.Side,
		Quantity: filled.Fill.Quantity,
		Price:    filled.Fill.Price,
	})
	return nil
}

// OnFill applies the position update rules for a fill.
func (m *Manager) OnFill(fill Fill) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.positions[fill.Symbol]
	updated := applyFill(existing, fill.Side, fill.Quantity, fill.Price, time.Now())
	if updated == nil {
		delete(m.positions, fill.Symbol)
	} else {
		updated.Symbol = fill.Symbol
		m.positions[fill.Symbol] = updated
	}
}

// OnPrice recomputes unrealized P&L for the matching position, if any.
func (m *Manager) OnPrice(symbol string, price decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.positions[symbol]; ok {
		applyPriceTick(p, price)
	}
}

// CanOpen is the admission check. It refuses while the trading breaker is
// open or the balance is zero, and otherwise checks position size, total
// and per-symbol exposure, total drawdown, volatility and correlation
// against their configured limits. MaxDailyDrawdown and MaxLeverage are not
// checked here.
func (m *Manager) CanOpen(symbol string, size, price decimal.Decimal) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.breakerOpen {
		return false
	}

	balance := m.portfolio.TotalBalance
	if balance.IsZero() {
		return false
	}

	notional := size.Mul(price)
	if notional.GreaterThan(m.config.MaxPositionSize.Mul(balance)) {
		return false
	}

	totalExposure := m.totalExposureLocked().Add(notional)
	if totalExposure.GreaterThan(m.config.MaxTotalExposure.Mul(balance)) {
		return false
	}

	symbolExposure := m.symbolExposureLocked(symbol).Add(notional)
	if symbolExposure.GreaterThan(m.config.MaxSymbolExposure.Mul(balance)) {
		return false
	}

	if m.portfolio.CurrentDrawdown.GreaterThan(m.config.MaxTotalDrawdown) {
		return false
	}

	if m.portfolio.Volatility.GreaterThan(m.config.MaxVolatility) {
		return false
	}

	metrics := m.metricsLocked()
	if metrics.CorrelationRisk.GreaterThan(m.config.MaxCorrelation) {
		return false
	}

	return true
}

// RecommendedSize returns the largest admissible size at the given price:
// the per-position risk cap, further capped by the fractional-Kelly stake
// once at least 10 portfolio returns are on record, and by the symbol's
// remaining exposure allowance.
func (m *Manager) RecommendedSize(symbol string, price decimal.Decimal) decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()

	balance := m.portfolio.TotalBalance
	if balance.IsZero() || price.IsZero() {
		return decimal.Zero
	}

	riskBasedNotional := m.config.MaxPositionSize.Mul(balance)
	notional := riskBasedNotional
	// kellyFromReturns has no estimate below 10 returns; until then the
	// risk cap alone sizes the position.
	if len(m.returns) >= 10 {
		kellyNotional := kellyFromReturns(m.returns, m.config.KellyFraction).Mul(balance)
		notional = decimal.Min(riskBasedNotional, kellyNotional)
	}
	if notional.IsNegative() {
		notional = decimal.Zero
	}

	remainingSymbolCap := m.config.MaxSymbolExposure.Mul(balance).Sub(m.symbolExposureLocked(symbol))
	if remainingSymbolCap.IsNegative() {
		remainingSymbolCap = decimal.Zero
	}
	notional = decimal.Min(notional, remainingSymbolCap)

	return notional.Div(price)
}

// UpdatePortfolio accepts the externally supplied portfolio truth and
// appends one return/equity observation for the rolling metrics windows.
func (m *Manager) UpdatePortfolio(snapshot types.Portfolio) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.portfolio.Equity.IsZero() {
		ret := snapshot.Equity.Sub(m.portfolio.Equity).Div(m.portfolio.Equity)
		m.returns = append(m.returns, ret)
		if len(m.returns) > m.config.ReturnsWindow {
			m.returns = m.returns[len(m.returns)-m.config.ReturnsWindow:]
		}
	}
	m.equity = append(m.equity, snapshot.Equity)
	if len(m.equity) > m.config.ReturnsWindow {
		m.equity = m.equity[len(m.equity)-m.config.ReturnsWindow:]
	}

	m.portfolio = snapshot
	m.checkCircuitBreakerLocked()
}

// checkCircuitBreakerLocked trips the breaker when total PnL falls below
// the configured threshold fraction of balance, and auto-closes it after
// the configured duration.
func (m *Manager) checkCircuitBreakerLocked() {
	if m.breakerOpen {
		if time.Since(m.breakerOpenedAt) > m.config.TradingCircuitDuration {
			m.breakerOpen = false
			if m.bus != nil {
				m.bus.Publish(events.KindRiskLimitBreach, events.RiskLimitBreach{Reason: "circuit breaker re-opened for trading"})
			}
		}
		return
	}

	threshold := m.config.TradingCircuitThreshold.Mul(m.portfolio.TotalBalance).Neg()
	if m.portfolio.TotalPnL.LessThan(threshold) {
		m.breakerOpen = true
		m.breakerOpenedAt = time.Now()
		if m.bus != nil {
			m.bus.Publish(events.KindRiskLimitBreach, events.RiskLimitBreach{Reason: "trading circuit breaker tripped"})
		}
	}
}

// IsBreakerOpen reports whether the trading circuit breaker is open.
func (m *Manager) IsBreakerOpen() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.breakerOpen
}

// Assess scores one market data point for risk warnings and
// recommendations.
func (m *Manager) Assess(point types.MarketDataPoint) Assessment {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a := Assessment{Level: AssessOK}

	if point.Quality == types.QualityLow {
		a.Warnings = append(a.Warnings, "low quality market data for "+point.Symbol)
		a.Score += 0.2
	}
	if m.breakerOpen {
		a.Warnings = append(a.Warnings, "trading circuit breaker open")
		a.Score += 0.5
	}
	if m.portfolio.CurrentDrawdown.GreaterThan(m.config.MaxDailyDrawdown) {
		a.Warnings = append(a.Warnings, "daily drawdown limit approached")
		a.Recommendations = append(a.Recommendations, "reduce new position sizing")
		a.Score += 0.3
	}

	switch {
	case a.Score >= 0.7:
		a.Level = AssessCritical
	case a.Score >= 0.3:
		a.Level = AssessWarning
	}

	return a
}

// Metrics returns the current RiskMetrics snapshot.
func (m *Manager) Metrics() types.RiskMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metricsLocked()
}

func (m *Manager) metricsLocked() types.RiskMetrics {
	positions := make([]types.Position, 0, len(m.positions))
	for _, p := range m.positions {
		positions = append(positions, *p)
	}
	return computeMetrics(m.returns, m.equity, positions, m.totalExposureLocked(), m.config.LiquidityCapacity)
}

// Stats returns coarse bookkeeping/breaker state.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return Stats{
		OpenPositions:   len(m.positions),
		TotalExposure:   m.totalExposureLocked(),
		BreakerOpen:     m.breakerOpen,
		BreakerOpenedAt: m.breakerOpenedAt,
	}
}

func (m *Manager) totalExposureLocked() decimal.Decimal {
	total := decimal.Zero
	for _, p := range m.positions {
		total = total.Add(p.Size.Mul(p.CurrentPrice).Abs())
	}
	return total
}

func (m *Manager) symbolExposureLocked(symbol string) decimal.Decimal {
	if p, ok := m.positions[symbol]; ok {
		return p.Size.Mul(p.CurrentPrice).Abs()
	}
	return decimal.Zero
}

// Positions returns a snapshot of all open positions.
func (m *Manager) Positions() []types.Position {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]types.Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, *p)
	}
	return out
}
