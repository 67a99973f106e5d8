package router

import "github.com/quanta-engine/core/pkg/types"

const (
	weightLatency     = 0.30
	weightSlippage    = 0.30
	weightFillQuality = 0.20
	weightVolume      = 0.10
	weightSpread      = 0.10

	maxVolumeProxy = 10_000_000.0
	maxSpread      = 0.001
)

// score computes the weighted exchange score in [0,1] from telemetry and
// thresholds, with an order-type adjustment blending in extra weight for
// the dimension that order type cares most about.
func score(t types.ExchangeTelemetry, cfg types.RouterConfig, orderType types.OrderType) float64 {
	latencyScore := clamp01(1 - t.LatencyMs/cfg.MaxLatencyThresholdMs)
	slippageScore := clamp01(1 - t.Slippage/cfg.MaxSlippageThreshold)
	fillQualityScore := clamp01(t.FillQuality)
	volumeScore := clamp01(t.Volume24h.InexactFloat64() / maxVolumeProxy)
	spreadScore := clamp01(1 - t.Spread/maxSpread)

	wLatency, wSlippage, wFillQuality, wVolume, wSpread := weightLatency, weightSlippage, weightFillQuality, weightVolume, weightSpread

	switch orderType {
	case types.OrderTypeMarket:
		wLatency += 0.10
		wFillQuality += 0.10
	case types.OrderTypeLimit:
		wSlippage += 0.10
		wSpread += 0.10
	}

	total := wLatency + wSlippage + wFillQuality + wVolume + wSpread
	weighted := latencyScore*wLatency + slippageScore*wSlippage + fillQualityScore*wFillQuality +
		volumeScore*wVolume + spreadScore*wSpread

	return weighted / total
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
