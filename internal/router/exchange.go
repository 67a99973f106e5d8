// Package router implements the Order Router: an exchange-scoring
// selector, an execution path, and EMA-updated exchange telemetry.
package router

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/quanta-engine/core/pkg/types"
)

// ExchangeAdapter is the capability every tradeable venue must expose to
// the router. Implementations own their own connection/reconnect
// lifecycle; the router only calls these methods.
type ExchangeAdapter interface {
	ID() string
	Connect(ctx context.Context) error
	IsConnected() bool
	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	PlaceOrder(ctx context.Context, req types.OrderRequest) (types.OrderResponse, error)
	CancelOrder(ctx context.Context, orderID string) error
}
