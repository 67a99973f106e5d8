// Package indicators is the Indicator Engine: a bounded worker pool that
// computes the technical indicator suite and composite score for each
// symbol's rolling buffer, plus a top-N ranking of the results.
package indicators

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quanta-engine/core/pkg/types"
)

// Buffer is the rolling window of candles the engine computes over.
type Buffer struct {
	Symbol    string
	Timeframe types.Timeframe
	Candles   []types.Candle
}

// Config configures the engine's pool sizing and ranking floor.
type Config struct {
	BatchSize        int
	WorkerTimeout    time.Duration
	DrainCadence     time.Duration
	MaxQueueDepth    int
	ConfidenceFloor  float64
}

// FromTypesConfig builds an engine Config from the shared EngineConfig.
func FromTypesConfig(cfg types.IndicatorConfig) Config {
	return Config{
		BatchSize:       cfg.BatchSize,
		WorkerTimeout:   cfg.WorkerTimeout,
		DrainCadence:    cfg.DrainCadence,
		MaxQueueDepth:   cfg.MaxQueueDepth,
		ConfidenceFloor: cfg.RankingConfidenceFloor,
	}
}

// Stats mirrors the engine's public stats() contract.
type Stats struct {
	ActiveWorkers      int
	QueueDepth         int
	Throughput         float64
	AvgProcessingTime  time.Duration
}

// Engine computes and ranks per-symbol composite signals.
type Engine struct {
	logger *zap.Logger
	config Config
	pool   *pool

	mu      sync.RWMutex
	results map[string]types.IndicatorSuite
	atrHist map[string][]float64

	pendingMu sync.Mutex
	pending   map[string]Buffer

	drainCancel context.CancelFunc
}

// New constructs an Engine and starts its worker pool (but not its drain
// loop — call Start to begin draining on the configured cadence).
func New(logger *zap.Logger, config Config) *Engine {
	e := &Engine{
		logger:  logger,
		config:  config,
		pool:    newPool(logger, config.MaxQueueDepth, config.WorkerTimeout),
		results: make(map[string]types.IndicatorSuite),
		atrHist: make(map[string][]float64),
		pending: make(map[string]Buffer),
	}
	e.pool.start()
	return e
}

// Enqueue registers a buffer for computation on the next drain cycle.
func (e *Engine) Enqueue(buf Buffer) {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()
	e.pending[buf.Symbol] = buf
}

// Start begins the fixed-cadence drain loop that batches pending buffers
// and dispatches them to the worker pool.
func (e *Engine) Start(ctx context.Context) {
	drainCtx, cancel := context.WithCancel(ctx)
	e.drainCancel = cancel

	go func() {
		ticker := time.NewTicker(e.config.DrainCadence)
		defer ticker.Stop()
		for {
			select {
			case <-drainCtx.Done():
				return
			case <-ticker.C:
				e.drain()
			}
		}
	}()
}

// Stop halts the drain loop and worker pool.
func (e *Engine) Stop() {
	if e.drainCancel != nil {
		e.drainCancel()
	}
	e.pool.stop(5 * time.Second)
}

func (e *Engine) drain() {
	e.pendingMu.Lock()
	batch := make([]Buffer, 0, e.config.BatchSize)
	for symbol, buf := range e.pending {
		batch = append(batch, buf)
		delete(e.pending, symbol)
		if len(batch) >= e.config.BatchSize {
			break
		}
	}
	e.pendingMu.Unlock()

	for _, buf := range batch {
		buf := buf
		if err := e.pool.submit(buf.Symbol, func() { e.compute(buf) }); err != nil {
			e.logger.Warn("indicator engine overloaded, dropping batch item", zap.String("symbol", buf.Symbol), zap.Error(err))
		}
	}
}

func (e *Engine) compute(buf Buffer) {
	suite := Compute(buf.Symbol, buf.Timeframe, buf.Candles, e.historicalATR(buf.Symbol))

	e.mu.Lock()
	e.results[buf.Symbol] = suite
	hist := append(e.atrHist[buf.Symbol], suite.ATR)
	if len(hist) > 500 {
		hist = hist[len(hist)-500:]
	}
	e.atrHist[buf.Symbol] = hist
	e.mu.Unlock()
}

func (e *Engine) historicalATR(symbol string) []float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.atrHist[symbol]
}

// Composite returns the composite signal for symbol, if computed.
func (e *Engine) Composite(symbol string) (types.CompositeSignal, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	suite, ok := e.results[symbol]
	if !ok {
		return types.CompositeSignal{}, false
	}
	return suiteToSignal(suite), true
}

// Results returns the full indicator suite for symbol, if computed.
func (e *Engine) Results(symbol string) (types.IndicatorSuite, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	suite, ok := e.results[symbol]
	return suite, ok
}

// Top returns the n highest-overall composite signals whose confidence
// exceeds the configured floor, sorted by overall descending.
func (e *Engine) Top(n int) []types.CompositeSignal {
	e.mu.RLock()
	signals := make([]types.CompositeSignal, 0, len(e.results))
	for _, suite := range e.results {
		if suite.Confidence > e.config.ConfidenceFloor {
			signals = append(signals, suiteToSignal(suite))
		}
	}
	e.mu.RUnlock()

	sort.Slice(signals, func(i, j int) bool { return signals[i].Overall > signals[j].Overall })
	if n < len(signals) {
		signals = signals[:n]
	}
	return signals
}

// Stats reports current engine load: active workers and queue depth.
// Throughput and AvgProcessingTime are not populated and read as zero.
func (e *Engine) Stats() Stats {
	ps := e.pool.stats()
	return Stats{
		ActiveWorkers: ps.ActiveWorkers,
		QueueDepth:    ps.QueueDepth,
	}
}

func suiteToSignal(suite types.IndicatorSuite) types.CompositeSignal {
	breakdown := Score(&suite)
	return types.CompositeSignal{
		Breakdown:  breakdown,
		Symbol:     suite.Symbol,
		Overall:    suite.Overall,
		Signal:     suite.Signal,
		Strength:   suite.Strength,
		Confidence: suite.Confidence,
		ComputedAt: suite.ComputedAt,
	}
}
