package orchestrator

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quanta-engine/core/internal/cache"
	"github.com/quanta-engine/core/internal/data"
	"github.com/quanta-engine/core/internal/events"
	"github.com/quanta-engine/core/internal/indicators"
	"github.com/quanta-engine/core/internal/risk"
	"github.com/quanta-engine/core/pkg/types"
)

const (
	weightTicker = 40
	weightKline  = 2
)

// runCycle drives the nine-step processing cycle described by the
// orchestrator's contract, then routes the published symbols' signals
// (routeSignals) as a tenth step. A single symbol's failure is logged and skipped;
// only a cycle-wide step (the ticker fetch) counts as a cycle failure
// toward the circuit breaker.
func (o *Orchestrator) runCycle(ctx context.Context, symbols []string) error {
	// Step 1: regime detection.
	o.weight.Acquire(weightTicker)
	tickers, err := o.client.Ticker24h(ctx)
	if err != nil {
		return err
	}

	bysymbol := make(map[string]data.Ticker, len(tickers))
	var avgReturn, avgVolume float64
	for _, t := range tickers {
		bysymbol[t.Symbol] = t
		c, _ := t.Change24h.Float64()
		v, _ := t.Volume24h.Float64()
		avgReturn += c
		avgVolume += v
	}
	if len(tickers) > 0 {
		avgReturn /= float64(len(tickers))
		avgVolume /= float64(len(tickers))
	}

	o.regime.Observe(avgReturn, avgVolume)
	currentRegime := o.regime.Current()
	if o.bus != nil {
		o.bus.Publish(events.KindMarketRegimeUpdate, events.MarketRegimeUpdate{Regime: currentRegime})
	}

	// Step 2: priority routing.
	highPriority, normal := partitionByRegime(symbols, bysymbol, currentRegime.Tag)
	ordered := append(append([]string{}, highPriority...), normal...)

	// Step 3: parallel fetch (cache-first, live fallback) and step 4:
	// historical enrichment, in bounded-concurrency batches.
	rawPoints := o.fetchMarketData(ctx, ordered, bysymbol)
	o.enrichHistorical(ctx, rawPoints)

	// Step 5: regime-aware filtering.
	filtered := o.filterByRegime(rawPoints, currentRegime.Tag)

	// Step 6: parallel indicator computation (async dispatch; step 7 reads
	// back whatever the worker pool has completed so far).
	for _, symbol := range filtered {
		o.mu.RLock()
		buf, ok := o.buffers[symbol]
		o.mu.RUnlock()
		if !ok || len(buf.candles) == 0 {
			continue
		}
		o.indicator.Enqueue(indicators.Buffer{Symbol: symbol, Timeframe: workingTimeframe, Candles: buf.candles})
	}

	// Step 7: risk validation, step 8: cache write-through, step 9: publish.
	processed, rejected := o.validateAndPublish(filtered, rawPoints)

	o.mu.Lock()
	o.stats.SymbolsProcessed = len(processed)
	o.stats.SymbolsFiltered = len(filtered)
	o.stats.SymbolsRejected = rejected
	o.mu.Unlock()

	// Step 10: the published signals drive the order router — composite
	// signal to confirmation to routed, executed order, with the fill
	// reported back to the risk manager over order_filled.
	o.routeSignals(ctx, processed)

	return nil
}

// routeSignals takes the composite signal for each symbol the cycle just
// published, confirms it against risk admission control, and routes/
// executes a market order for every directional, risk-approved signal.
// The router publishes order_filled itself; the risk manager's own
// order_filled subscription (see risk.New) applies the resulting position
// update, so this method never calls risk.OnFill directly.
func (o *Orchestrator) routeSignals(ctx context.Context, symbols []string) {
	if o.router == nil || len(symbols) == 0 {
		return
	}

	if ranked := o.indicator.Top(len(symbols)); o.bus != nil && len(ranked) > 0 {
		o.bus.Publish(events.KindSignalRankingUpdate, events.SignalRankingUpdate{Ranked: ranked})
	}

	for _, symbol := range symbols {
		signal, ok := o.indicator.Composite(symbol)
		if !ok {
			continue
		}
		if o.bus != nil {
			o.bus.Publish(events.KindSignalGenerated, events.SignalGenerated{Symbol: symbol, Signal: signal})
		}

		if signal.Signal == types.SignalNeutral {
			continue
		}

		o.mu.RLock()
		point, havePoint := o.points[symbol]
		o.mu.RUnlock()
		if !havePoint || point.Price.IsZero() {
			continue
		}

		size := o.risk.RecommendedSize(symbol, point.Price)
		if size.IsZero() || !o.risk.CanOpen(symbol, size, point.Price) {
			continue
		}

		if o.bus != nil {
			o.bus.Publish(events.KindSignalConfirmed, events.SignalConfirmed{Symbol: symbol, Signal: signal})
		}

		side := types.OrderSideBuy
		if signal.Signal == types.SignalBearish {
			side = types.OrderSideSell
		}

		if o.bus != nil {
			o.bus.Publish(events.KindTradeSignal, events.TradeSignal{Symbol: symbol, Side: side, Size: size, Price: point.Price})
		}

		req := types.OrderRequest{
			Symbol:      symbol,
			Side:        side,
			Quantity:    size,
			Type:        types.OrderTypeMarket,
			TimeInForce: types.TimeInForceGTC,
			Timestamp:   time.Now(),
		}

		decision, err := o.router.Route(req)
		if err != nil {
			o.logger.Warn("no eligible exchange for confirmed signal", zap.String("symbol", symbol), zap.Error(err))
			continue
		}

		if _, err := o.router.Execute(ctx, req, decision); err != nil {
			o.logger.Warn("order execution failed", zap.String("symbol", symbol), zap.Error(err))
		}
	}
}

func partitionByRegime(symbols []string, tickers map[string]data.Ticker, tag types.RegimeTag) (high, normal []string) {
	type scored struct {
		symbol string
		score  float64
	}
	scoredSymbols := make([]scored, 0, len(symbols))
	for _, s := range symbols {
		t, ok := tickers[s]
		momentum := 0.0
		if ok {
			momentum, _ = t.Change24h.Abs().Float64()
		}
		scoredSymbols = append(scoredSymbols, scored{symbol: s, score: momentum})
	}
	sort.Slice(scoredSymbols, func(i, j int) bool { return scoredSymbols[i].score > scoredSymbols[j].score })

	switch tag {
	case types.RegimeVolatile:
		for _, s := range scoredSymbols {
			high = append(high, s.symbol)
		}
		return high, nil
	case types.RegimeRanging:
		for _, s := range scoredSymbols {
			normal = append(normal, s.symbol)
		}
		return nil, normal
	case types.RegimeBreakout:
		cut := len(scoredSymbols) / 2
		for i, s := range scoredSymbols {
			if i < cut {
				high = append(high, s.symbol)
			} else {
				normal = append(normal, s.symbol)
			}
		}
		return high, normal
	default: // trending
		cut := (len(scoredSymbols) * 3) / 10
		for i, s := range scoredSymbols {
			if i < cut {
				high = append(high, s.symbol)
			} else {
				normal = append(normal, s.symbol)
			}
		}
		return high, normal
	}
}

func (o *Orchestrator) fetchMarketData(ctx context.Context, symbols []string, tickers map[string]data.Ticker) map[string]types.MarketDataPoint {
	const concurrency = 10
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	out := make(map[string]types.MarketDataPoint, len(symbols))

	for _, symbol := range symbols {
		symbol := symbol
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			key := cache.Key{Symbol: symbol, Timeframe: workingTimeframe, Kind: "ticker"}
			var point types.MarketDataPoint
			source := types.SourceLive

			if cached, ok := o.store.Get(key); ok {
				if p, ok := cached.(types.MarketDataPoint); ok {
					point = p
					source = types.SourceCache
					point.Source = source
				}
			} else {
				t, ok := tickers[symbol]
				if !ok {
					o.logger.Warn("no ticker data for symbol, skipping", zap.String("symbol", symbol))
					return
				}
				point = types.MarketDataPoint{
					Symbol:    symbol,
					Timestamp: time.Now(),
					Price:     t.Price,
					Volume:    t.Volume24h,
					Change24h: t.Change24h,
					Source:    source,
				}
			}

			quality, confidence := data.ScorePoint(point, data.DefaultQualityThresholds(), time.Now())
			point.Quality = quality
			point.Confidence = confidence
			point.DataAgeMs = time.Since(point.Timestamp).Milliseconds()

			mu.Lock()
			out[symbol] = point
			mu.Unlock()
		}()
	}
	wg.Wait()
	return out
}

func (o *Orchestrator) enrichHistorical(ctx context.Context, points map[string]types.MarketDataPoint) {
	symbols := make([]string, 0, len(points))
	for s := range points {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	batchSize := o.config.HistoricalBatchSize
	if batchSize <= 0 {
		batchSize = 10
	}

	for start := 0; start < len(symbols); start += batchSize {
		end := start + batchSize
		if end > len(symbols) {
			end = len(symbols)
		}
		batch := symbols[start:end]

		if o.weight.Remaining() < o.config.WeightMaxPerWindow/10 {
			time.Sleep(time.Second)
		}

		var wg sync.WaitGroup
		for _, symbol := range batch {
			symbol := symbol
			wg.Add(1)
			go func() {
				defer wg.Done()

				key := cache.Key{Symbol: symbol, Timeframe: workingTimeframe, Kind: "ohlcv"}
				if cached, ok := o.store.Get(key); ok {
					if candles, ok := cached.([]types.Candle); ok && len(candles) > 0 && cache.FreshOHLCV(candles[len(candles)-1], workingTimeframe, time.Now()) {
						o.mu.Lock()
						o.buffers[symbol] = &symbolBuffer{candles: candles}
						o.mu.Unlock()
						return
					}
				}

				limit := o.config.KlinesLimit
				if limit <= 0 {
					limit = 100
				}
				o.weight.Acquire(weightKline)
				candles, err := o.client.Candles(ctx, symbol, workingTimeframe, limit)
				if err != nil {
					o.logger.Warn("historical enrichment failed, skipping symbol", zap.String("symbol", symbol), zap.Error(err))
					return
				}

				o.mu.Lock()
				o.buffers[symbol] = &symbolBuffer{candles: candles}
				o.mu.Unlock()

				o.store.Put(key, candles)
			}()
		}
		wg.Wait()
	}
}

func (o *Orchestrator) filterByRegime(points map[string]types.MarketDataPoint, tag types.RegimeTag) []string {
	cfg := o.config
	kept := make([]string, 0, len(points))

	for symbol, p := range points {
		switch tag {
		case types.RegimeTrending:
			if p.Change24h.Abs().GreaterThan(cfg.TrendingChangeThreshold) && p.Volume.GreaterThan(cfg.TrendingVolumeThreshold) {
				kept = append(kept, symbol)
			}
		case types.RegimeVolatile:
			if p.Volume.GreaterThan(cfg.VolatileVolumeThreshold) && p.Change24h.Abs().LessThan(cfg.VolatileChangeCeiling) {
				kept = append(kept, symbol)
			}
		case types.RegimeBreakout:
			if p.Volume.GreaterThan(cfg.ThinLiquidityVolume) {
				kept = append(kept, symbol)
			}
		default: // ranging
			kept = append(kept, symbol)
		}
	}
	sort.Strings(kept)
	return kept
}

func (o *Orchestrator) validateAndPublish(filtered []string, raw map[string]types.MarketDataPoint) (processed []string, rejected int) {
	for _, symbol := range filtered {
		point, ok := raw[symbol]
		if !ok {
			continue
		}

		assessment := o.risk.Assess(point)
		if assessment.Level == risk.AssessCritical {
			rejected++
			if o.bus != nil {
				o.bus.Publish(events.KindRiskLimitBreach, events.RiskLimitBreach{Symbol: symbol, Reason: "market data rejected by risk assessment"})
			}
			continue
		}

		if suite, ok := o.indicator.Results(symbol); ok {
			suiteCopy := suite
			point.Indicators = &suiteCopy
		}

		key := cache.Key{Symbol: symbol, Timeframe: workingTimeframe, Kind: "ticker"}
		o.store.Put(key, point)

		o.mu.Lock()
		o.points[symbol] = point
		o.mu.Unlock()

		o.risk.OnPrice(symbol, point.Price)

		if o.bus != nil {
			o.bus.Publish(events.KindMarketDataUpdate, events.MarketDataUpdate{Symbol: symbol, Point: point})
		}
		processed = append(processed, symbol)
	}
	return processed, rejected
}
