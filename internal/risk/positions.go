package risk

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/quanta-engine/core/pkg/types"
)

// applyFill implements the position update rules on a fill: create, merge
// same-side, or reduce/close opposite-side by side-match.
func applyFill(existing *types.Position, side types.OrderSide, quantity, price decimal.Decimal, now time.Time) *types.Position {
	if existing == nil {
		return &types.Position{
			Symbol:        "",
			Side:          sideForOrder(side),
			Size:          quantity,
			EntryPrice:    price,
			CurrentPrice:  price,
			OpenedAt:      now,
		}
	}

	sameSide := sideForOrder(side) == existing.Side
	if sameSide {
		oldNotional := existing.EntryPrice.Mul(existing.Size)
		newNotional := price.Mul(quantity)
		newSize := existing.Size.Add(quantity)
		existing.EntryPrice = oldNotional.Add(newNotional).Div(newSize)
		existing.Size = newSize
		return existing
	}

	// Opposite side: if quantity >= size, the position closes; otherwise it
	// is reduced with entry price unchanged.
	if quantity.GreaterThanOrEqual(existing.Size) {
		return nil
	}
	existing.Size = existing.Size.Sub(quantity)
	return existing
}

func sideForOrder(side types.OrderSide) types.PositionSide {
	if side == types.OrderSideBuy {
		return types.PositionSideLong
	}
	return types.PositionSideShort
}

// applyPriceTick recomputes unrealized P&L for a position at a new mark
// price.
func applyPriceTick(p *types.Position, price decimal.Decimal) {
	p.CurrentPrice = price

	var pnl decimal.Decimal
	if p.Side == types.PositionSideLong {
		pnl = price.Sub(p.EntryPrice).Mul(p.Size)
	} else {
		pnl = p.EntryPrice.Sub(price).Mul(p.Size)
	}
	p.UnrealizedPnL = pnl

	denominator := p.EntryPrice.Mul(p.Size)
	if denominator.IsZero() {
		p.UnrealizedPct = decimal.Zero
		return
	}
	p.UnrealizedPct = pnl.Abs().Div(denominator)
	if pnl.IsNegative() {
		p.UnrealizedPct = p.UnrealizedPct.Neg()
	}
}
