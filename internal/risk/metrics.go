package risk

import (
	"github.com/shopspring/decimal"

	"github.com/quanta-engine/core/pkg/types"
	"github.com/quanta-engine/core/pkg/utils"
)

// computeMetrics derives the full RiskMetrics snapshot from a returns
// series, an equity curve, open positions, and current exposure/capacity.
func computeMetrics(returns []decimal.Decimal, equityCurve []decimal.Decimal, positions []types.Position, totalExposure, liquidityCapacity decimal.Decimal) types.RiskMetrics {
	sorted := make([]decimal.Decimal, len(returns))
	copy(sorted, returns)
	sortAscending(sorted)

	var95 := utils.ValueAtRisk(sorted, 0.95)
	var99 := utils.ValueAtRisk(sorted, 0.99)
	es := utils.ExpectedShortfall(sorted, var95)

	mean := utils.CalculateMean(returns)
	stddev := utils.CalculateStdDev(returns)
	sharpe := decimal.Zero
	if !stddev.IsZero() {
		sharpe = mean.Div(stddev)
	}

	downside := utils.DownsideStdDev(returns)
	sortino := decimal.Zero
	if !downside.IsZero() {
		sortino = mean.Div(downside)
	}

	maxDD := utils.CalculateMaxDrawdown(equityCurve)
	calmar := decimal.Zero
	if !maxDD.IsZero() {
		calmar = mean.Div(maxDD)
	}

	return types.RiskMetrics{
		VaR95:              var95,
		VaR99:              var99,
		ExpectedShortfall:  es,
		Sharpe:             sharpe,
		Sortino:            sortino,
		Calmar:             calmar,
		MaxDrawdown:        maxDD,
		CorrelationRisk:    correlationSurrogate(positions),
		LiquidityRisk:      liquidityRisk(totalExposure, liquidityCapacity),
		ConcentrationRisk:  concentrationRisk(positions, totalExposure),
	}
}

func sortAscending(values []decimal.Decimal) {
	for i := 1; i < len(values); i++ {
		for j := i; j > 0 && values[j].LessThan(values[j-1]); j-- {
			values[j], values[j-1] = values[j-1], values[j]
		}
	}
}

// correlationSurrogate approximates worst-case pairwise correlation among
// open positions with a bounded proxy: the share of positions on the
// majority side. A book entirely on one side scores 1.0, an evenly split
// long/short book 0.5; the number of symbols does not enter, and fewer
// than two positions score 0.
func correlationSurrogate(positions []types.Position) decimal.Decimal {
	if len(positions) < 2 {
		return decimal.Zero
	}

	var longCount, shortCount int
	for _, p := range positions {
		if p.Side == types.PositionSideLong {
			longCount++
		} else {
			shortCount++
		}
	}

	majority := longCount
	if shortCount > majority {
		majority = shortCount
	}
	return decimal.NewFromFloat(float64(majority) / float64(len(positions)))
}

// liquidityRisk is total exposure over configured capacity, clamped to
// [0,1].
func liquidityRisk(totalExposure, capacity decimal.Decimal) decimal.Decimal {
	if capacity.IsZero() {
		return decimal.Zero
	}
	ratio := totalExposure.Div(capacity)
	return clampUnit(ratio)
}

// concentrationRisk is max_position_value / total_exposure.
func concentrationRisk(positions []types.Position, totalExposure decimal.Decimal) decimal.Decimal {
	if totalExposure.IsZero() || len(positions) == 0 {
		return decimal.Zero
	}

	maxValue := decimal.Zero
	for _, p := range positions {
		value := p.Size.Mul(p.CurrentPrice).Abs()
		if value.GreaterThan(maxValue) {
			maxValue = value
		}
	}
	return clampUnit(maxValue.Div(totalExposure))
}

func clampUnit(v decimal.Decimal) decimal.Decimal {
	if v.LessThan(decimal.Zero) {
		return decimal.Zero
	}
	if v.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.NewFromInt(1)
	}
	return v
}
