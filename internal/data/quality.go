package data

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/quanta-engine/core/pkg/types"
)

// QualityThresholds configures the single-point data quality scorer.
type QualityThresholds struct {
	MaxStaleness   time.Duration
	MinVolume      decimal.Decimal
	MaxIntradayAbs decimal.Decimal
}

// DefaultQualityThresholds returns sensible defaults for a live feed.
func DefaultQualityThresholds() QualityThresholds {
	return QualityThresholds{
		MaxStaleness:   30 * time.Second,
		MinVolume:      decimal.NewFromInt(1),
		MaxIntradayAbs: decimal.NewFromFloat(0.5),
	}
}

// ScorePoint grades a single market data observation the way the original
// historical-bar validator grades a series: staleness, price sanity, and
// volume presence each dock points from a 100 baseline. It returns the
// resulting DataQuality tag and a 0-1 confidence.
func ScorePoint(point types.MarketDataPoint, thresholds QualityThresholds, now time.Time) (types.DataQuality, float64) {
	score := 100.0

	age := now.Sub(point.Timestamp)
	if age < 0 {
		age = 0
	}
	if age > thresholds.MaxStaleness {
		overBy := age - thresholds.MaxStaleness
		score -= 30 + 20*(float64(overBy)/float64(thresholds.MaxStaleness))
	}

	if point.Price.IsZero() || point.Price.IsNegative() {
		score -= 50
	}

	if point.Change24h.Abs().GreaterThan(thresholds.MaxIntradayAbs) {
		score -= 20
	}

	if point.Volume.LessThan(thresholds.MinVolume) {
		score -= 10
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	confidence := score / 100

	var quality types.DataQuality
	switch {
	case score >= 80:
		quality = types.QualityHigh
	case score >= 50:
		quality = types.QualityMedium
	default:
		quality = types.QualityLow
	}

	return quality, confidence
}
