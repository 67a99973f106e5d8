package indicators

import "github.com/quanta-engine/core/pkg/types"

// Category weights per spec: momentum 0.30, trend 0.30, volatility 0.20,
// volume 0.20.
const (
	weightMomentum   = 0.30
	weightTrend      = 0.30
	weightVolatility = 0.20
	weightVolume     = 0.20
)

// indicatorWeight is one named indicator's weight within its category; the
// weights in a category sum to 1.
type indicatorWeight struct {
	name     string
	category string
	weight   float64
	value    func(types.IndicatorSuite) float64 // normalized [0,1]
}

var momentumIndicators = []indicatorWeight{
	{"rsi14", "momentum", 0.20, func(s types.IndicatorSuite) float64 { return s.RSI14 / 100 }},
	{"rsi7", "momentum", 0.15, func(s types.IndicatorSuite) float64 { return s.RSI7 / 100 }},
	{"rsi21", "momentum", 0.15, func(s types.IndicatorSuite) float64 { return s.RSI21 / 100 }},
	{"stochasticK", "momentum", 0.20, func(s types.IndicatorSuite) float64 { return s.StochasticK / 100 }},
	{"williamsR", "momentum", 0.15, func(s types.IndicatorSuite) float64 { return (s.WilliamsR + 100) / 100 }},
	{"velocity", "momentum", 0.15, func(s types.IndicatorSuite) float64 { return normalizeSigned(s.Velocity) }},
}

var trendIndicators = []indicatorWeight{
	{"macdHistogram", "trend", 0.35, func(s types.IndicatorSuite) float64 { return normalizeSigned(s.MACDHistogram) }},
	{"bollingerPercentile", "trend", 0.30, func(s types.IndicatorSuite) float64 { return clamp01(s.BollingerPercentile) }},
	{"acceleration", "trend", 0.20, func(s types.IndicatorSuite) float64 { return normalizeSigned(s.Acceleration) }},
	{"vwapDeviation", "trend", 0.15, func(s types.IndicatorSuite) float64 { return normalizeSigned(s.VWAPDeviation * 10) }},
}

var volatilityIndicators = []indicatorWeight{
	{"atrPercentileRank", "volatility", 0.50, func(s types.IndicatorSuite) float64 { return clamp01(s.ATRPercentileRank) }},
	{"bollingerSqueeze", "volatility", 0.50, func(s types.IndicatorSuite) float64 {
		if s.BollingerSqueeze {
			return 0.2
		}
		return 0.7
	}},
}

var volumeIndicators = []indicatorWeight{
	{"volumeSurge", "volume", 0.40, func(s types.IndicatorSuite) float64 {
		if s.VolumeSurge {
			return 1
		}
		return 0.3
	}},
	{"orderFlowImbalance", "volume", 0.60, func(s types.IndicatorSuite) float64 {
		return (float64(s.OrderFlowImbalance) + 1) / 2
	}},
}

func normalizeSigned(v float64) float64 {
	// Maps an unbounded signed quantity into [0,1] with 0 at 0.5, saturating
	// at +/-1% magnitude.
	scaled := v*50 + 0.5
	return clamp01(scaled)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func categoryScore(suite types.IndicatorSuite, indicators []indicatorWeight) (float64, []types.IndicatorContribution) {
	var sum float64
	breakdown := make([]types.IndicatorContribution, 0, len(indicators))
	for _, ind := range indicators {
		v := clamp01(ind.value(suite))
		sum += v * ind.weight
		breakdown = append(breakdown, types.IndicatorContribution{
			Name:     ind.name,
			Category: ind.category,
			Value:    v,
			Weight:   ind.weight,
		})
	}
	return clamp01(sum), breakdown
}

// Score computes the composite category scores, overall score, signal,
// strength and confidence for a suite, mutating it in place and returning
// the breakdown used to build a CompositeSignal.
func Score(suite *types.IndicatorSuite) []types.IndicatorContribution {
	momentum, momentumBreakdown := categoryScore(*suite, momentumIndicators)
	trend, trendBreakdown := categoryScore(*suite, trendIndicators)
	volatility, volatilityBreakdown := categoryScore(*suite, volatilityIndicators)
	volume, volumeBreakdown := categoryScore(*suite, volumeIndicators)

	suite.MomentumScore = momentum * 100
	suite.TrendScore = trend * 100
	suite.VolatilityScore = volatility * 100
	suite.VolumeScore = volume * 100

	overall := (momentum*weightMomentum + trend*weightTrend + volatility*weightVolatility + volume*weightVolume) * 100
	suite.Overall = overall

	switch {
	case overall > 70:
		suite.Signal = types.SignalBullish
	case overall < 30:
		suite.Signal = types.SignalBearish
	default:
		suite.Signal = types.SignalNeutral
	}

	diff := overall - 50
	if diff < 0 {
		diff = -diff
	}
	suite.Strength = diff * 2

	all := append(append(append(momentumBreakdown, trendBreakdown...), volatilityBreakdown...), volumeBreakdown...)
	suite.Confidence = confidenceFromBreakdown(all)

	return all
}

// confidenceFromBreakdown implements confidence = 0.7*agreement +
// 0.3*mean_per_indicator_confidence, treating values above 0.5 as bullish
// votes and below as bearish, with each indicator's own confidence taken
// as its distance from the neutral midpoint.
func confidenceFromBreakdown(breakdown []types.IndicatorContribution) float64 {
	var bullish, bearish int
	var confidenceSum float64
	for _, c := range breakdown {
		if c.Value > 0.5 {
			bullish++
		} else if c.Value < 0.5 {
			bearish++
		}
		dist := c.Value - 0.5
		if dist < 0 {
			dist = -dist
		}
		confidenceSum += dist * 2
	}

	total := bullish + bearish
	agreement := 0.5
	if total > 0 {
		majority := bullish
		if bearish > majority {
			majority = bearish
		}
		agreement = float64(majority) / float64(total)
	}

	meanConfidence := 0.0
	if len(breakdown) > 0 {
		meanConfidence = confidenceSum / float64(len(breakdown))
	}

	return 0.7*agreement + 0.3*meanConfidence
}
