// Package regime detects market regimes using an HMM-style forward
// algorithm with rule-based overrides for strong signals.
package regime

import (
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quanta-engine/core/pkg/types"
)

// numStates is the HMM state count, one per RegimeTag.
const numStates = 4

var stateTags = []types.RegimeTag{
	types.RegimeTrending,
	types.RegimeRanging,
	types.RegimeVolatile,
	types.RegimeBreakout,
}

// Config configures the detector's thresholds and hold interval.
type Config struct {
	WindowSize        int
	VolatilityWindow  int
	HoldInterval      time.Duration
	VolThreshold      float64
	TrendThreshold    float64
	BreakoutThreshold float64
	ConfidenceMin     float64
}

// DefaultConfig returns sensible defaults matching the engine's overall
// indicator/regime cadence.
func DefaultConfig() Config {
	return Config{
		WindowSize:        100,
		VolatilityWindow:  20,
		HoldInterval:      5 * time.Minute,
		VolThreshold:      0.25,
		TrendThreshold:    0.3,
		BreakoutThreshold: 0.02,
		ConfidenceMin:     0.5,
	}
}

// Detector classifies the market regime for one symbol from a rolling
// window of returns, using an HMM forward pass blended with rule-based
// overrides, and replaces the published regime only when the replacement
// rule (higher confidence, or current regime older than HoldInterval) holds.
type Detector struct {
	logger *zap.Logger
	config Config

	mu      sync.RWMutex
	current *types.MarketRegime

	transitionMatrix [][]float64
	emissionMeans    []float64
	emissionVars     []float64

	returns []float64
	volumes []float64
}

// New constructs a Detector.
func New(logger *zap.Logger, config Config) *Detector {
	d := &Detector{
		logger:  logger,
		config:  config,
		returns: make([]float64, 0, config.WindowSize*2),
		volumes: make([]float64, 0, config.WindowSize*2),
	}
	d.initializeHMM()
	return d
}

func (d *Detector) initializeHMM() {
	d.transitionMatrix = make([][]float64, numStates)
	for i := range d.transitionMatrix {
		d.transitionMatrix[i] = make([]float64, numStates)
		for j := range d.transitionMatrix[i] {
			if i == j {
				d.transitionMatrix[i][j] = 0.9
			} else {
				d.transitionMatrix[i][j] = 0.1 / float64(numStates-1)
			}
		}
	}
	// trending, ranging, volatile, breakout
	d.emissionMeans = []float64{0.001, 0.0, 0.0, 0.0}
	d.emissionVars = []float64{0.0001, 0.00005, 0.0009, 0.0004}
}

// Observe appends one return/volume observation and recomputes the
// candidate regime, replacing the published regime per spec if warranted.
func (d *Detector) Observe(ret, volume float64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.returns = append(d.returns, ret)
	d.volumes = append(d.volumes, volume)
	d.trimBuffers()

	if len(d.returns) < d.config.VolatilityWindow {
		return
	}

	candidate := d.classify()
	d.maybeReplace(candidate)
}

func (d *Detector) trimBuffers() {
	maxLen := d.config.WindowSize * 2
	if len(d.returns) > maxLen {
		d.returns = d.returns[len(d.returns)-d.config.WindowSize:]
	}
	if len(d.volumes) > maxLen {
		d.volumes = d.volumes[len(d.volumes)-d.config.WindowSize:]
	}
}

func (d *Detector) classify() types.MarketRegime {
	window := d.returns
	if len(window) > d.config.WindowSize {
		window = window[len(window)-d.config.WindowSize:]
	}

	trend := calculateTrend(window)
	vol := calculateVolatility(window) * math.Sqrt(252)
	probs := d.forwardPass(window)

	tag, confidence := d.classifyTag(trend, vol, probs)
	volLevel := classifyVolatilityLevel(vol, d.config.VolThreshold)
	correlation := classifyCorrelationRegime(trend)
	liquidity := classifyLiquidity(d.volumes)
	stability := confidence

	return types.MarketRegime{
		Tag:         tag,
		Confidence:  confidence,
		Volatility:  volLevel,
		Correlation: correlation,
		Liquidity:   liquidity,
		LastChange:  time.Now(),
		Stability:   stability,
	}
}

// maybeReplace applies the replacement rule: the current regime is
// replaced only if the candidate's confidence exceeds the current
// confidence, or the current regime is older than HoldInterval.
func (d *Detector) maybeReplace(candidate types.MarketRegime) {
	if d.current == nil {
		d.current = &candidate
		return
	}

	age := time.Since(d.current.LastChange)
	if candidate.Confidence > d.current.Confidence || age > d.config.HoldInterval {
		if candidate.Tag == d.current.Tag {
			candidate.LastChange = d.current.LastChange
		}
		d.current = &candidate
	}
}

// Current returns the most recently published regime. The zero value
// (RegimeTag "") with zero confidence is returned before enough data has
// accumulated to classify.
func (d *Detector) Current() types.MarketRegime {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.current == nil {
		return types.MarketRegime{}
	}
	return *d.current
}

func (d *Detector) forwardPass(returns []float64) map[types.RegimeTag]float64 {
	alpha := make([]float64, numStates)
	for i := range alpha {
		alpha[i] = 1.0 / float64(numStates)
	}

	for _, ret := range returns {
		next := make([]float64, numStates)
		for j := 0; j < numStates; j++ {
			sum := 0.0
			for i := 0; i < numStates; i++ {
				sum += alpha[i] * d.transitionMatrix[i][j]
			}
			next[j] = sum * gaussianPDF(ret, d.emissionMeans[j], d.emissionVars[j])
		}
		total := 0.0
		for _, a := range next {
			total += a
		}
		if total > 0 {
			for j := range next {
				next[j] /= total
			}
		}
		alpha = next
	}

	probs := make(map[types.RegimeTag]float64, numStates)
	for i, tag := range stateTags {
		probs[tag] = alpha[i]
	}
	return probs
}

func (d *Detector) classifyTag(trend, vol float64, probs map[types.RegimeTag]float64) (types.RegimeTag, float64) {
	bestTag := types.RegimeRanging
	bestProb := 0.0
	for tag, p := range probs {
		if p > bestProb {
			bestProb = p
			bestTag = tag
		}
	}

	// Rule-based overrides for strong signals.
	if vol > d.config.VolThreshold && bestProb < 0.7 {
		bestTag = types.RegimeVolatile
		bestProb = 0.5 + vol/2
	} else if math.Abs(trend) > d.config.BreakoutThreshold && vol > d.config.VolThreshold/2 {
		bestTag = types.RegimeBreakout
		bestProb = 0.5 + math.Abs(trend)/2
	} else if math.Abs(trend) > d.config.TrendThreshold {
		bestTag = types.RegimeTrending
		bestProb = 0.5 + math.Abs(trend)/2
	}

	if bestProb > 1 {
		bestProb = 1
	}
	return bestTag, bestProb
}

func classifyVolatilityLevel(vol, threshold float64) types.VolatilityLevel {
	switch {
	case vol > threshold:
		return types.VolatilityHigh
	case vol < threshold/2:
		return types.VolatilityLow
	default:
		return types.VolatilityNormal
	}
}

func classifyCorrelationRegime(trend float64) types.CorrelationRegime {
	switch {
	case math.Abs(trend) > 0.5:
		return types.CorrelationCoupled
	case math.Abs(trend) < 0.1:
		return types.CorrelationDecoupled
	default:
		return types.CorrelationNormal
	}
}

func classifyLiquidity(volumes []float64) types.LiquidityCondition {
	if len(volumes) == 0 {
		return types.LiquidityNormal
	}
	sum := 0.0
	for _, v := range volumes {
		sum += v
	}
	avg := sum / float64(len(volumes))
	switch {
	case avg < 100_000:
		return types.LiquidityThin
	case avg > 5_000_000:
		return types.LiquidityDeep
	default:
		return types.LiquidityNormal
	}
}

func calculateTrend(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	sum := 0.0
	for _, r := range returns {
		sum += r
	}
	vol := calculateVolatility(returns)
	if vol == 0 {
		return 0
	}
	trend := sum / (vol * math.Sqrt(float64(len(returns))))
	if trend > 1 {
		trend = 1
	} else if trend < -1 {
		trend = -1
	}
	return trend
}

func calculateVolatility(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		diff := r - mean
		variance += diff * diff
	}
	variance /= float64(len(returns) - 1)

	return math.Sqrt(variance)
}

func gaussianPDF(x, mean, variance float64) float64 {
	if variance <= 0 {
		variance = 0.0001
	}
	diff := x - mean
	exponent := -0.5 * diff * diff / variance
	coefficient := 1.0 / math.Sqrt(2*math.Pi*variance)
	return coefficient * math.Exp(exponent)
}
