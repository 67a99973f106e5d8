package indicators

import (
	"math"

	"github.com/quanta-engine/core/pkg/types"
	"github.com/quanta-engine/core/pkg/utils"
)

// RSI computes Wilder's-smoothed RSI over the given period. Buffers shorter
// than period+1 return the neutral value 50.
func RSI(closes []float64, period int) float64 {
	if len(closes) < period+1 {
		return 50
	}

	var gainSum, lossSum float64
	for i := 1; i <= period; i++ {
		diff := closes[i] - closes[i-1]
		if diff > 0 {
			gainSum += diff
		} else {
			lossSum += -diff
		}
	}
	avgGain := gainSum / float64(period)
	avgLoss := lossSum / float64(period)

	for i := period + 1; i < len(closes); i++ {
		diff := closes[i] - closes[i-1]
		var gain, loss float64
		if diff > 0 {
			gain = diff
		} else {
			loss = -diff
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// EMASeries returns EMA(period) seeded by an SMA over the first period
// values, evaluated at every subsequent point.
func EMASeries(values []float64, period int) []float64 {
	if len(values) < period {
		return nil
	}
	out := make([]float64, 0, len(values)-period+1)

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	ema := sum / float64(period)
	out = append(out, ema)

	alpha := 2.0 / float64(period+1)
	for i := period; i < len(values); i++ {
		ema = alpha*values[i] + (1-alpha)*ema
		out = append(out, ema)
	}
	return out
}

// MACD returns line, signal, histogram computed from EMA(12)/EMA(26)/EMA(9).
// With fewer than 26 closes it reports zeros (the "buffer < 26" rule).
func MACD(closes []float64) (line, signal, histogram float64) {
	if len(closes) < 26 {
		return 0, 0, 0
	}

	ema12 := EMASeries(closes, 12)
	ema26 := EMASeries(closes, 26)

	offset := len(ema12) - len(ema26)
	macdSeries := make([]float64, len(ema26))
	for i := range ema26 {
		macdSeries[i] = ema12[i+offset] - ema26[i]
	}

	line = macdSeries[len(macdSeries)-1]
	if len(macdSeries) < 9 {
		return line, 0, line
	}

	signalSeries := EMASeries(macdSeries, 9)
	signal = signalSeries[len(signalSeries)-1]
	histogram = line - signal
	return line, signal, histogram
}

// MACDDivergence classifies MACD histogram direction versus price trend.
func MACDDivergence(histogram, priceTrend float64) types.DivergenceTag {
	switch {
	case histogram > 0 && priceTrend < 0:
		return types.DivergenceBullish
	case histogram < 0 && priceTrend > 0:
		return types.DivergenceBearish
	default:
		return types.DivergenceNone
	}
}

// Bollinger returns the (20, 2) bands plus squeeze flag and percentile
// position of price within the band.
func Bollinger(closes []float64, price float64) (upper, middle, lower float64, squeeze bool, percentile float64) {
	const period = 20
	const k = 2.0
	if len(closes) < period {
		return 0, 0, 0, false, 0.5
	}

	window := closes[len(closes)-period:]
	sma := utils.CalculateMeanFloat(window)
	stddev := utils.CalculateStdDevFloat(window)

	upper = sma + k*stddev
	lower = sma - k*stddev
	middle = sma

	if middle != 0 {
		squeeze = (upper-lower)/middle < 0.10
	}

	if upper != lower {
		percentile = (price - lower) / (upper - lower)
	} else {
		percentile = 0.5
	}
	return upper, middle, lower, squeeze, percentile
}

// ATR computes the simple mean of the last period true range values.
// ATRPercentileRank ranks the result against a historical series.
func ATR(highs, lows, closes []float64, period int) float64 {
	if len(closes) < period+1 {
		return 0
	}

	trueRanges := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		highLow := highs[i] - lows[i]
		highPrevClose := math.Abs(highs[i] - closes[i-1])
		lowPrevClose := math.Abs(lows[i] - closes[i-1])
		trueRanges = append(trueRanges, math.Max(highLow, math.Max(highPrevClose, lowPrevClose)))
	}

	window := trueRanges[len(trueRanges)-period:]
	return utils.CalculateMeanFloat(window)
}

// ATRPercentileRank reports what fraction of historicalATR values the
// current ATR exceeds.
func ATRPercentileRank(current float64, historicalATR []float64) float64 {
	if len(historicalATR) == 0 {
		return 0.5
	}
	below := 0
	for _, v := range historicalATR {
		if v < current {
			below++
		}
	}
	return float64(below) / float64(len(historicalATR))
}

// Stochastic returns %K and %D (SMA(3) of %K) over the given period.
func Stochastic(highs, lows, closes []float64, period int) (k, d float64) {
	if len(closes) < period {
		return 50, 50
	}

	kValues := make([]float64, 0, 3)
	for offset := 0; offset < 3 && len(closes)-period-offset >= 0; offset++ {
		end := len(closes) - offset
		start := end - period
		if start < 0 {
			break
		}
		window := closes[start:end]
		highWindow := highs[start:end]
		lowWindow := lows[start:end]

		highest := highWindow[0]
		lowest := lowWindow[0]
		for i := range highWindow {
			if highWindow[i] > highest {
				highest = highWindow[i]
			}
			if lowWindow[i] < lowest {
				lowest = lowWindow[i]
			}
		}
		close := window[len(window)-1]
		if highest == lowest {
			kValues = append(kValues, 50)
			continue
		}
		kValues = append(kValues, (close-lowest)/(highest-lowest)*100)
	}

	if len(kValues) == 0 {
		return 50, 50
	}
	k = kValues[0]
	d = utils.CalculateMeanFloat(kValues)
	return k, d
}

// WilliamsR transforms %K into the conventional [-100, 0] Williams %R range.
func WilliamsR(stochasticK float64) float64 {
	return stochasticK - 100
}

// VWAP computes the cumulative typical-price-weighted average price, its
// signed deviation from the current price, and a volume-surge flag.
func VWAP(highs, lows, closes, volumes []float64, currentPrice float64) (vwap, deviation float64, volumeSurge bool) {
	var cumPV, cumV float64
	for i := range closes {
		typical := (highs[i] + lows[i] + closes[i]) / 3
		cumPV += typical * volumes[i]
		cumV += volumes[i]
	}
	if cumV == 0 {
		return 0, 0, false
	}
	vwap = cumPV / cumV
	if vwap != 0 {
		deviation = (currentPrice - vwap) / vwap
	}

	if len(volumes) >= 20 {
		avgVol := utils.CalculateMeanFloat(volumes[len(volumes)-20:])
		volumeSurge = volumes[len(volumes)-1] > 2*avgVol
	}
	return vwap, deviation, volumeSurge
}

// VelocityAcceleration returns the first and second finite differences of
// the price series.
func VelocityAcceleration(closes []float64) (velocity, acceleration float64) {
	n := len(closes)
	if n < 2 {
		return 0, 0
	}
	velocity = closes[n-1] - closes[n-2]
	if n < 3 {
		return velocity, 0
	}
	prevVelocity := closes[n-2] - closes[n-3]
	acceleration = velocity - prevVelocity
	return velocity, acceleration
}

// OrderFlowImbalance maps the ratio of current volume to SMA(10, volume)
// into {-1, 0, +1} as an approximation of order-flow direction.
func OrderFlowImbalance(volumes []float64) int {
	if len(volumes) < 10 {
		return 0
	}
	window := volumes[len(volumes)-10:]
	avg := utils.CalculateMeanFloat(window)
	if avg == 0 {
		return 0
	}
	ratio := volumes[len(volumes)-1] / avg
	switch {
	case ratio > 1.5:
		return 1
	case ratio < 0.5:
		return -1
	default:
		return 0
	}
}
