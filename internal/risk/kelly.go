package risk

import (
	"github.com/shopspring/decimal"

	"github.com/quanta-engine/core/pkg/utils"
)

// kellyFromReturns estimates a fractional-Kelly stake from a trailing
// returns series: win probability and the win/loss ratio are derived from
// the series' own sign split, full Kelly is f* = p - (1-p)/b, and the
// result is scaled by fraction and clamped to [0, 0.25].
func kellyFromReturns(returns []decimal.Decimal, fraction decimal.Decimal) decimal.Decimal {
	if len(returns) < 10 {
		return decimal.Zero
	}

	var wins, losses int
	var winSum, lossSum decimal.Decimal
	for _, r := range returns {
		if r.IsPositive() {
			wins++
			winSum = winSum.Add(r)
		} else if r.IsNegative() {
			losses++
			lossSum = lossSum.Add(r.Abs())
		}
	}

	if wins == 0 || losses == 0 {
		return decimal.Zero
	}

	winProb := decimal.NewFromInt(int64(wins)).Div(decimal.NewFromInt(int64(len(returns))))
	lossProb := decimal.NewFromInt(1).Sub(winProb)

	avgWin := winSum.Div(decimal.NewFromInt(int64(wins)))
	avgLoss := lossSum.Div(decimal.NewFromInt(int64(losses)))
	if avgLoss.IsZero() {
		return decimal.Zero
	}
	odds := avgWin.Div(avgLoss)
	if odds.IsZero() {
		return decimal.Zero
	}

	kelly := odds.Mul(winProb).Sub(lossProb).Div(odds)
	kelly = kelly.Mul(fraction)

	if kelly.IsNegative() {
		return decimal.Zero
	}
	return utils.ClampDecimal(kelly, decimal.Zero, decimal.NewFromFloat(0.25))
}
