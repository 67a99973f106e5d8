// Package data provides the engine's exchange-facing boundary: a
// venue-agnostic ExchangeClient capability, a Binance-shaped REST/WebSocket
// adapter realizing it, and a lightweight per-point data quality scorer.
package data

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quanta-engine/core/pkg/types"
)

// Ticker is one 24h rolling ticker snapshot for a symbol.
type Ticker struct {
	Symbol    string
	Price     decimal.Decimal
	Volume24h decimal.Decimal
	Change24h decimal.Decimal
	High24h   decimal.Decimal
	Low24h    decimal.Decimal
}

// AccountBalance is one asset's free/locked balance.
type AccountBalance struct {
	Asset  string
	Free   decimal.Decimal
	Locked decimal.Decimal
}

// AccountInfo is the exchange account snapshot.
type AccountInfo struct {
	Balances     []AccountBalance
	TotalBalance decimal.Decimal
	UpdatedAt    time.Time
}

// PositionInfo is one open exchange-reported position.
type PositionInfo struct {
	Symbol        string
	Size          decimal.Decimal
	EntryPrice    decimal.Decimal
	MarkPrice     decimal.Decimal
	UnrealizedPnL decimal.Decimal
	PercentagePnL decimal.Decimal
}

// ExchangeClient is the capability the Data Orchestrator requires of a
// venue: market data reads, account/position reads, and order placement.
// Implementations own their own connection and rate-limiting.
type ExchangeClient interface {
	Ticker24h(ctx context.Context) ([]Ticker, error)
	Candles(ctx context.Context, symbol string, timeframe types.Timeframe, limit int) ([]types.Candle, error)
	AccountInfo(ctx context.Context) (AccountInfo, error)
	Positions(ctx context.Context) ([]PositionInfo, error)
	PlaceOrder(ctx context.Context, req types.OrderRequest) (types.OrderResponse, error)
	ClosePosition(ctx context.Context, symbol string) error
}
