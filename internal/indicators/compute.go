package indicators

import (
	"time"

	"github.com/quanta-engine/core/pkg/types"
)

// longestPeriod is the longest lookback any kernel in the suite requires
// (MACD's EMA(26)); buffers shorter than this are still scored best-effort
// but flagged LowQuality.
const longestPeriod = 26

// Compute derives the full indicator suite for one symbol/timeframe's
// rolling buffer of candles, then scores it into category and overall
// composites.
func Compute(symbol string, timeframe types.Timeframe, candles []types.Candle, historicalATR []float64) types.IndicatorSuite {
	n := len(candles)
	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	volumes := make([]float64, n)
	for i, c := range candles {
		closes[i], _ = c.Close.Float64()
		highs[i], _ = c.High.Float64()
		lows[i], _ = c.Low.Float64()
		volumes[i], _ = c.Volume.Float64()
	}

	suite := types.IndicatorSuite{
		Symbol:     symbol,
		Timeframe:  timeframe,
		ComputedAt: time.Now(),
		LowQuality: n < longestPeriod,
	}

	suite.RSI7 = RSI(closes, 7)
	suite.RSI14 = RSI(closes, 14)
	suite.RSI21 = RSI(closes, 21)

	suite.MACDLine, suite.MACDSignal, suite.MACDHistogram = MACD(closes)
	priceTrend, _ := VelocityAcceleration(closes)
	suite.MACDDivergence = MACDDivergence(suite.MACDHistogram, priceTrend)

	suite.BollingerUpper, suite.BollingerMiddle, suite.BollingerLower, suite.BollingerSqueeze, suite.BollingerPercentile =
		Bollinger(closes, lastOr(closes, 0))

	suite.ATR = ATR(highs, lows, closes, 14)
	suite.ATRPercentileRank = ATRPercentileRank(suite.ATR, historicalATR)

	suite.StochasticK, suite.StochasticD = Stochastic(highs, lows, closes, 14)
	suite.WilliamsR = WilliamsR(suite.StochasticK)
	suite.StochConverge = absFloat(suite.StochasticK-suite.StochasticD) < 5

	suite.VWAP, suite.VWAPDeviation, suite.VolumeSurge = VWAP(highs, lows, closes, volumes, lastOr(closes, 0))

	suite.Velocity, suite.Acceleration = VelocityAcceleration(closes)

	suite.OrderFlowImbalance = OrderFlowImbalance(volumes)
	suite.InstitutionalFlag = suite.OrderFlowImbalance == 1 && suite.VolumeSurge
	suite.RetailFlag = suite.OrderFlowImbalance == 0 && !suite.VolumeSurge

	Score(&suite)

	return suite
}

func lastOr(values []float64, fallback float64) float64 {
	if len(values) == 0 {
		return fallback
	}
	return values[len(values)-1]
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
