// Package types provides shared type definitions for the trading engine.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide represents buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType represents the type of order.
type OrderType string

const (
	OrderTypeMarket     OrderType = "market"
	OrderTypeLimit      OrderType = "limit"
	OrderTypeStopLoss   OrderType = "stop_loss"
	OrderTypeTakeProfit OrderType = "take_profit"
)

// TimeInForce represents an order's time-in-force instruction.
type TimeInForce string

const (
	TimeInForceGTC TimeInForce = "gtc"
	TimeInForceIOC TimeInForce = "ioc"
	TimeInForceFOK TimeInForce = "fok"
)

// OrderStatus represents the lifecycle state of an order.
// Terminal states (Filled, Cancelled, Rejected) never transition further.
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "pending"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusRejected        OrderStatus = "rejected"
)

// PositionSide represents long or short.
type PositionSide string

const (
	PositionSideLong  PositionSide = "long"
	PositionSideShort PositionSide = "short"
)

// Timeframe enumerates the candle windows the engine understands.
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe1h  Timeframe = "1h"
)

// Duration returns the wall-clock duration of one bar at this timeframe.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case Timeframe1m:
		return time.Minute
	case Timeframe5m:
		return 5 * time.Minute
	case Timeframe15m:
		return 15 * time.Minute
	case Timeframe1h:
		return time.Hour
	default:
		return time.Minute
	}
}

// MaxWindow returns the default rolling-buffer capacity for this timeframe.
func (tf Timeframe) MaxWindow() int {
	switch tf {
	case Timeframe1m:
		return 500
	case Timeframe5m:
		return 400
	case Timeframe15m:
		return 300
	case Timeframe1h:
		return 168
	default:
		return 500
	}
}

// Candle is an immutable OHLCV bar.
type Candle struct {
	OpenTime       int64           `json:"openTime"`
	CloseTime      int64           `json:"closeTime"`
	Open           decimal.Decimal `json:"open"`
	High           decimal.Decimal `json:"high"`
	Low            decimal.Decimal `json:"low"`
	Close          decimal.Decimal `json:"close"`
	Volume         decimal.Decimal `json:"volume"`
	QuoteVolume    decimal.Decimal `json:"quoteVolume"`
	TradeCount     int64           `json:"tradeCount"`
	TakerBuyBase   decimal.Decimal `json:"takerBuyBase"`
	TakerBuyQuote  decimal.Decimal `json:"takerBuyQuote"`
}

// DataSource tags where a MarketDataPoint's values came from.
type DataSource string

const (
	SourceLive     DataSource = "live"
	SourceCache    DataSource = "cache"
	SourceFallback DataSource = "fallback"
)

// DataQuality tags the confidence level attached to a MarketDataPoint.
type DataQuality string

const (
	QualityHigh   DataQuality = "high"
	QualityMedium DataQuality = "medium"
	QualityLow    DataQuality = "low"
)

// MarketDataPoint is the orchestrator's unit of published market state.
type MarketDataPoint struct {
	Symbol       string          `json:"symbol"`
	Timestamp    time.Time       `json:"timestamp"`
	Price        decimal.Decimal `json:"price"`
	Volume       decimal.Decimal `json:"volume"`
	Change24h    decimal.Decimal `json:"change24h"`
	Indicators   *IndicatorSuite `json:"indicators,omitempty"`
	Source       DataSource      `json:"source"`
	Quality      DataQuality     `json:"quality"`
	Confidence   float64         `json:"confidence"`
	DataAgeMs    int64           `json:"dataAgeMs"`
}

// DivergenceTag describes MACD divergence relative to price.
type DivergenceTag string

const (
	DivergenceBullish DivergenceTag = "bullish"
	DivergenceBearish DivergenceTag = "bearish"
	DivergenceNone    DivergenceTag = "none"
)

// SignalTag is the directional call for a composite signal or single indicator.
type SignalTag string

const (
	SignalBullish SignalTag = "bullish"
	SignalBearish SignalTag = "bearish"
	SignalNeutral SignalTag = "neutral"
)

// IndicatorSuite is the full set of technical indicators computed for one
// symbol/timeframe pair over its rolling buffer.
type IndicatorSuite struct {
	Symbol    string    `json:"symbol"`
	Timeframe Timeframe `json:"timeframe"`
	ComputedAt time.Time `json:"computedAt"`

	RSI7  float64 `json:"rsi7"`
	RSI14 float64 `json:"rsi14"`
	RSI21 float64 `json:"rsi21"`

	ATR                  float64 `json:"atr"`
	ATRPercentileRank     float64 `json:"atrPercentileRank"`

	VWAP            float64 `json:"vwap"`
	VWAPDeviation   float64 `json:"vwapDeviation"`
	VolumeSurge     bool    `json:"volumeSurge"`

	Velocity     float64 `json:"velocity"`
	Acceleration float64 `json:"acceleration"`

	BollingerUpper      float64 `json:"bollingerUpper"`
	BollingerMiddle      float64 `json:"bollingerMiddle"`
	BollingerLower      float64 `json:"bollingerLower"`
	BollingerSqueeze    bool    `json:"bollingerSqueeze"`
	BollingerPercentile float64 `json:"bollingerPercentile"`

	MACDLine      float64       `json:"macdLine"`
	MACDSignal    float64       `json:"macdSignal"`
	MACDHistogram float64       `json:"macdHistogram"`
	MACDDivergence DivergenceTag `json:"macdDivergence"`

	WilliamsR     float64 `json:"williamsR"`
	StochasticK   float64 `json:"stochasticK"`
	StochasticD   float64 `json:"stochasticD"`
	StochConverge bool    `json:"stochasticConverge"`

	OrderFlowImbalance int `json:"orderFlowImbalance"` // -1, 0, +1
	InstitutionalFlag  bool `json:"institutionalFlag"`
	RetailFlag         bool `json:"retailFlag"`

	MomentumScore   float64   `json:"momentumScore"`
	TrendScore      float64   `json:"trendScore"`
	VolatilityScore float64   `json:"volatilityScore"`
	VolumeScore     float64   `json:"volumeScore"`
	Overall         float64   `json:"overall"`
	Signal          SignalTag `json:"signal"`
	Strength        float64   `json:"strength"`
	Confidence      float64   `json:"confidence"`

	// LowQuality is set when the source buffer was shorter than the
	// longest-period indicator required; Overall/Signal are still populated
	// with best-effort values but callers should treat them cautiously.
	LowQuality bool `json:"lowQuality"`
}

// IndicatorContribution is one line of a composite signal's breakdown.
type IndicatorContribution struct {
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Value    float64 `json:"value"`
	Weight   float64 `json:"weight"`
}

// CompositeSignal is the Indicator Engine's per-symbol ranked output.
type CompositeSignal struct {
	Symbol     string                   `json:"symbol"`
	Overall    float64                  `json:"overall"`
	Signal     SignalTag                `json:"signal"`
	Strength   float64                  `json:"strength"`
	Confidence float64                  `json:"confidence"`
	Breakdown  []IndicatorContribution  `json:"breakdown"`
	ComputedAt time.Time                `json:"computedAt"`
}

// RegimeTag is the market-wide state detected by the regime detector.
type RegimeTag string

const (
	RegimeTrending RegimeTag = "trending"
	RegimeRanging  RegimeTag = "ranging"
	RegimeVolatile RegimeTag = "volatile"
	RegimeBreakout RegimeTag = "breakout"
)

// VolatilityLevel buckets the regime detector's volatility read.
type VolatilityLevel string

const (
	VolatilityLow    VolatilityLevel = "low"
	VolatilityNormal VolatilityLevel = "normal"
	VolatilityHigh   VolatilityLevel = "high"
)

// CorrelationRegime buckets cross-symbol correlation behavior.
type CorrelationRegime string

const (
	CorrelationDecoupled CorrelationRegime = "decoupled"
	CorrelationNormal    CorrelationRegime = "normal"
	CorrelationCoupled   CorrelationRegime = "coupled"
)

// LiquidityCondition buckets aggregate market liquidity.
type LiquidityCondition string

const (
	LiquidityThin   LiquidityCondition = "thin"
	LiquidityNormal LiquidityCondition = "normal"
	LiquidityDeep   LiquidityCondition = "deep"
)

// MarketRegime is the current market-wide classification.
type MarketRegime struct {
	Tag               RegimeTag          `json:"tag"`
	Confidence        float64            `json:"confidence"`
	Volatility        VolatilityLevel    `json:"volatility"`
	Correlation       CorrelationRegime  `json:"correlation"`
	Liquidity         LiquidityCondition `json:"liquidity"`
	LastChange        time.Time          `json:"lastChange"`
	Stability         float64            `json:"stability"`
}

// Position is an open exposure in one symbol.
type Position struct {
	Symbol        string          `json:"symbol"`
	Side          PositionSide    `json:"side"`
	Size          decimal.Decimal `json:"size"`
	EntryPrice    decimal.Decimal `json:"entryPrice"`
	CurrentPrice  decimal.Decimal `json:"currentPrice"`
	UnrealizedPnL decimal.Decimal `json:"unrealizedPnl"`
	UnrealizedPct decimal.Decimal `json:"unrealizedPct"`
	Leverage      decimal.Decimal `json:"leverage"`
	OpenedAt      time.Time       `json:"openedAt"`
}

// Portfolio is the risk manager's externally-supplied portfolio truth,
// refreshed via UpdatePortfolio.
type Portfolio struct {
	TotalBalance     decimal.Decimal `json:"totalBalance"`
	AvailableBalance decimal.Decimal `json:"availableBalance"`
	Equity           decimal.Decimal `json:"equity"`
	Exposure         decimal.Decimal `json:"exposure"`
	DailyPnL         decimal.Decimal `json:"dailyPnl"`
	TotalPnL         decimal.Decimal `json:"totalPnl"`
	PeakEquity       decimal.Decimal `json:"peakEquity"`
	CurrentDrawdown  decimal.Decimal `json:"currentDrawdown"`
	Volatility       decimal.Decimal `json:"volatility"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// RiskMetrics is the risk manager's computed metric snapshot.
type RiskMetrics struct {
	VaR95              decimal.Decimal `json:"var95"`
	VaR99              decimal.Decimal `json:"var99"`
	ExpectedShortfall  decimal.Decimal `json:"expectedShortfall"`
	Sharpe             decimal.Decimal `json:"sharpe"`
	Sortino            decimal.Decimal `json:"sortino"`
	Calmar             decimal.Decimal `json:"calmar"`
	MaxDrawdown        decimal.Decimal `json:"maxDrawdown"`
	CorrelationRisk     decimal.Decimal `json:"correlationRisk"`
	LiquidityRisk       decimal.Decimal `json:"liquidityRisk"`
	ConcentrationRisk   decimal.Decimal `json:"concentrationRisk"`
}

// Fill is a single trade execution applied to the risk manager's book.
type Fill struct {
	Symbol    string          `json:"symbol"`
	Side      OrderSide       `json:"side"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}

// OrderRequest is a signal-derived request handed to the order router.
type OrderRequest struct {
	ClientID    string          `json:"clientId"`
	Symbol      string          `json:"symbol"`
	Side        OrderSide       `json:"side"`
	Quantity    decimal.Decimal `json:"quantity"`
	LimitPrice  decimal.Decimal `json:"limitPrice,omitempty"`
	Type        OrderType       `json:"type"`
	TimeInForce TimeInForce     `json:"timeInForce"`
	Timestamp   time.Time       `json:"timestamp"`
}

// ExchangeTelemetry tracks one exchange's rolling execution-quality stats.
type ExchangeTelemetry struct {
	ExchangeID   string          `json:"exchangeId"`
	LatencyMs    float64         `json:"latencyMs"`
	Slippage     float64         `json:"slippage"`
	FillQuality  float64         `json:"fillQuality"`
	Volume24h    decimal.Decimal `json:"volume24h"`
	Spread       float64         `json:"spread"`
	SuccessRate  float64         `json:"successRate"`
	Status       ExchangeStatus  `json:"status"`
	LastUpdate   time.Time       `json:"lastUpdate"`
}

// ExchangeStatus is the health classification of one exchange connection.
type ExchangeStatus string

const (
	ExchangeOnline   ExchangeStatus = "online"
	ExchangeDegraded ExchangeStatus = "degraded"
	ExchangeOffline  ExchangeStatus = "offline"
)

// RoutingDecision is the order router's chosen exchange and its score.
type RoutingDecision struct {
	ExchangeID string    `json:"exchangeId"`
	Score      float64   `json:"score"`
	Scores     map[string]float64 `json:"scores"`
	DecidedAt  time.Time `json:"decidedAt"`
}

// OrderResponse is the result of executing an OrderRequest via a RoutingDecision.
type OrderResponse struct {
	OrderID       string          `json:"orderId"`
	ExchangeID    string          `json:"exchangeId"`
	Status        OrderStatus     `json:"status"`
	FilledQty     decimal.Decimal `json:"filledQty"`
	AvgFillPrice  decimal.Decimal `json:"avgFillPrice"`
	Latency       time.Duration   `json:"latency"`
	Slippage      decimal.Decimal `json:"slippage"`
	FillQuality   decimal.Decimal `json:"fillQuality"`
	SubmittedAt   time.Time       `json:"submittedAt"`
	CompletedAt   time.Time       `json:"completedAt"`
}
