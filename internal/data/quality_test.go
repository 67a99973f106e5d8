package data_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quanta-engine/core/internal/data"
	"github.com/quanta-engine/core/pkg/types"
)

func TestScorePointFreshAndSaneIsHighQuality(t *testing.T) {
	now := time.Now()
	point := types.MarketDataPoint{
		Symbol:    "BTCUSDT",
		Timestamp: now.Add(-1 * time.Second),
		Price:     decimal.NewFromInt(50000),
		Volume:    decimal.NewFromInt(1000),
		Change24h: decimal.NewFromFloat(0.01),
	}

	quality, confidence := data.ScorePoint(point, data.DefaultQualityThresholds(), now)
	if quality != types.QualityHigh {
		t.Errorf("expected high quality, got %q (confidence=%f)", quality, confidence)
	}
	if confidence < 0.8 {
		t.Errorf("expected confidence >= 0.8, got %f", confidence)
	}
}

func TestScorePointStaleDataIsPenalized(t *testing.T) {
	now := time.Now()
	point := types.MarketDataPoint{
		Symbol:    "BTCUSDT",
		Timestamp: now.Add(-5 * time.Minute),
		Price:     decimal.NewFromInt(50000),
		Volume:    decimal.NewFromInt(1000),
	}

	quality, _ := data.ScorePoint(point, data.DefaultQualityThresholds(), now)
	if quality == types.QualityHigh {
		t.Error("expected stale data to be docked below high quality")
	}
}

func TestScorePointZeroPriceIsDocked(t *testing.T) {
	now := time.Now()
	point := types.MarketDataPoint{
		Symbol:    "BTCUSDT",
		Timestamp: now,
		Price:     decimal.Zero,
		Volume:    decimal.NewFromInt(1000),
	}

	quality, confidence := data.ScorePoint(point, data.DefaultQualityThresholds(), now)
	if quality != types.QualityMedium && quality != types.QualityLow {
		t.Errorf("expected a zero price to be docked, got %q (confidence=%f)", quality, confidence)
	}
}

func TestScorePointThinVolumeIsPenalized(t *testing.T) {
	now := time.Now()
	thresholds := data.DefaultQualityThresholds()
	point := types.MarketDataPoint{
		Symbol:    "BTCUSDT",
		Timestamp: now,
		Price:     decimal.NewFromInt(50000),
		Volume:    decimal.Zero,
	}

	_, confidenceWithVolume := data.ScorePoint(types.MarketDataPoint{
		Symbol: "BTCUSDT", Timestamp: now, Price: decimal.NewFromInt(50000), Volume: decimal.NewFromInt(1000),
	}, thresholds, now)
	_, confidenceWithoutVolume := data.ScorePoint(point, thresholds, now)

	if confidenceWithoutVolume >= confidenceWithVolume {
		t.Error("expected thin volume to reduce confidence relative to adequate volume")
	}
}
