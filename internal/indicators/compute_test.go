package indicators_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quanta-engine/core/internal/indicators"
	"github.com/quanta-engine/core/pkg/types"
)

func syntheticCandles(n int, start float64, step float64) []types.Candle {
	candles := make([]types.Candle, n)
	price := start
	now := time.Now()
	for i := 0; i < n; i++ {
		open := price
		price += step
		close := price
		high := close
		low := open
		if open > high {
			high = open
		}
		if close < low {
			low = close
		}
		candles[i] = types.Candle{
			OpenTime:  now.Add(time.Duration(i) * time.Minute).UnixMilli(),
			CloseTime: now.Add(time.Duration(i+1) * time.Minute).UnixMilli(),
			Open:      decimal.NewFromFloat(open),
			High:      decimal.NewFromFloat(high + 0.5),
			Low:       decimal.NewFromFloat(low - 0.5),
			Close:     decimal.NewFromFloat(close),
			Volume:    decimal.NewFromFloat(1000 + float64(i)),
		}
	}
	return candles
}

func TestComputeProducesCompositeScoreInRange(t *testing.T) {
	candles := syntheticCandles(40, 100, 0.5)
	suite := indicators.Compute("BTCUSDT", types.Timeframe1m, candles, nil)

	if suite.Overall < 0 || suite.Overall > 100 {
		t.Fatalf("overall score %f out of [0,100]", suite.Overall)
	}
	if suite.Confidence < 0 || suite.Confidence > 1 {
		t.Fatalf("confidence %f out of [0,1]", suite.Confidence)
	}
	if suite.LowQuality {
		t.Error("40 candles should clear the low-quality threshold")
	}
}

func TestComputeFlagsLowQualityForShortBuffers(t *testing.T) {
	candles := syntheticCandles(5, 100, 0.1)
	suite := indicators.Compute("BTCUSDT", types.Timeframe1m, candles, nil)

	if !suite.LowQuality {
		t.Error("5 candles is shorter than the longest kernel lookback and should be flagged low quality")
	}
}

func TestUptrendScoresBullish(t *testing.T) {
	candles := syntheticCandles(60, 100, 1.0) // steadily rising
	suite := indicators.Compute("BTCUSDT", types.Timeframe1m, candles, nil)

	if suite.Signal != types.SignalBullish && suite.Overall <= 50 {
		t.Errorf("sustained uptrend should score above neutral, got overall=%f signal=%s", suite.Overall, suite.Signal)
	}
}

func TestEngineEnqueueAndDrainProducesResults(t *testing.T) {
	cfg := indicators.Config{BatchSize: 10, WorkerTimeout: time.Second, DrainCadence: 10 * time.Millisecond, MaxQueueDepth: 10, ConfidenceFloor: 0}
	engine := indicators.New(zap.NewNop(), cfg)
	defer engine.Stop()

	engine.Start(context.Background())
	engine.Enqueue(indicators.Buffer{Symbol: "BTCUSDT", Timeframe: types.Timeframe1m, Candles: syntheticCandles(40, 100, 0.5)})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := engine.Results("BTCUSDT"); ok {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("expected a computed result for BTCUSDT within the deadline")
}
