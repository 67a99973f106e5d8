// Package orchestrator implements the Data Orchestrator: the component that
// drives one processing cycle over a symbol universe — regime detection,
// priority routing, cache-first parallel fetch, historical enrichment,
// regime-aware filtering, indicator dispatch, risk validation, cache
// write-through, and event publication.
package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/quanta-engine/core/internal/cache"
	"github.com/quanta-engine/core/internal/data"
	"github.com/quanta-engine/core/internal/errs"
	"github.com/quanta-engine/core/internal/events"
	"github.com/quanta-engine/core/internal/indicators"
	"github.com/quanta-engine/core/internal/regime"
	"github.com/quanta-engine/core/internal/risk"
	"github.com/quanta-engine/core/internal/router"
	"github.com/quanta-engine/core/pkg/types"
)

// workingTimeframe is the bar resolution the orchestrator maintains rolling
// buffers at. The spec's per-timeframe cache retention table covers all
// four; the live cycle operates on one resolution at a time.
const workingTimeframe = types.Timeframe1m

// FlowStatus is the immediate outcome reported by StartFlow.
type FlowStatus string

const (
	FlowCompleted FlowStatus = "completed"
	FlowBusy      FlowStatus = "busy"
	FlowRefused   FlowStatus = "refused"
	FlowFailed    FlowStatus = "failed"
)

// Metrics is the orchestrator's public metrics() contract.
type Metrics struct {
	WorkerPool     indicators.Stats
	CircuitBreaker BreakerState
	Cache          cache.Stats
	Processing     ProcessingStats
	MarketRegime   types.MarketRegime
}

// ProcessingStats summarizes the most recently completed cycle.
type ProcessingStats struct {
	LastCycleAt       time.Time
	LastCycleDuration time.Duration
	SymbolsProcessed  int
	SymbolsFiltered   int
	SymbolsRejected   int
	TotalCycles       int64
	FailedCycles      int64
}

type symbolBuffer struct {
	candles []types.Candle
}

// Orchestrator is the Data Orchestrator.
type Orchestrator struct {
	logger *zap.Logger
	config types.OrchestratorConfig

	bus       *events.Bus
	store     *cache.Cache
	regime    *regime.Detector
	indicator *indicators.Engine
	risk      *risk.Manager
	client    data.ExchangeClient
	router    *router.Router

	weight  *WeightMeter
	breaker *breaker

	running atomic.Bool

	mu      sync.RWMutex
	buffers map[string]*symbolBuffer
	points  map[string]types.MarketDataPoint
	stats   ProcessingStats

	stopCh    chan struct{}
	stoppedWG sync.WaitGroup
}

// New constructs an Orchestrator wired to every subsystem it drives,
// including the order router it hands confirmed signals to.
func New(
	logger *zap.Logger,
	config types.OrchestratorConfig,
	bus *events.Bus,
	store *cache.Cache,
	regimeDetector *regime.Detector,
	indicatorEngine *indicators.Engine,
	riskManager *risk.Manager,
	client data.ExchangeClient,
	orderRouter *router.Router,
) *Orchestrator {
	return &Orchestrator{
		logger:    logger,
		config:    config,
		bus:       bus,
		store:     store,
		regime:    regimeDetector,
		indicator: indicatorEngine,
		risk:      riskManager,
		client:    client,
		router:    orderRouter,
		weight:    NewWeightMeter(config.WeightMaxPerWindow, config.WeightWindow),
		breaker:   newBreaker(config.CircuitFailureThreshold, config.CircuitOpenDuration),
		buffers:   make(map[string]*symbolBuffer),
		points:    make(map[string]types.MarketDataPoint),
	}
}

// StartFlow runs a single processing cycle over symbols. It refuses to
// overlap itself (single-flight, returns FlowBusy) and refuses while the
// circuit breaker is open (returns FlowRefused).
func (o *Orchestrator) StartFlow(ctx context.Context, symbols []string) (FlowStatus, error) {
	if !o.breaker.allow() {
		return FlowRefused, errs.CircuitOpen("orchestrator")
	}

	if !o.running.CompareAndSwap(false, true) {
		return FlowBusy, nil
	}
	defer o.running.Store(false)

	start := time.Now()
	err := o.runCycle(ctx, symbols)
	duration := time.Since(start)

	o.mu.Lock()
	o.stats.LastCycleAt = start
	o.stats.LastCycleDuration = duration
	o.stats.TotalCycles++
	if err != nil {
		o.stats.FailedCycles++
	}
	o.mu.Unlock()

	if err != nil {
		o.breaker.recordFailure()
		o.publishHealth(false, err.Error())
		return FlowFailed, err
	}

	o.breaker.recordSuccess()
	o.publishHealth(true, "")
	return FlowCompleted, nil
}

// StartContinuous schedules StartFlow every interval until StopContinuous is
// called or ctx is cancelled. A cycle already in flight runs to completion;
// cancellation suppresses only the next scheduled cycle's events.
func (o *Orchestrator) StartContinuous(ctx context.Context, symbols []string, interval time.Duration) {
	o.mu.Lock()
	if o.stopCh != nil {
		o.mu.Unlock()
		return
	}
	stopCh := make(chan struct{})
	o.stopCh = stopCh
	o.mu.Unlock()

	o.stoppedWG.Add(1)
	go func() {
		defer o.stoppedWG.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case <-ticker.C:
				if status, err := o.StartFlow(ctx, symbols); err != nil {
					o.logger.Warn("orchestrator cycle failed", zap.String("status", string(status)), zap.Error(err))
				}
			}
		}
	}()
}

// StopContinuous cancels the scheduled loop started by StartContinuous.
func (o *Orchestrator) StopContinuous() {
	o.mu.Lock()
	stopCh := o.stopCh
	o.stopCh = nil
	o.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
	}
	o.stoppedWG.Wait()
}

// GetMarketData returns the latest published point for each requested
// symbol, or every known symbol if symbols is empty.
func (o *Orchestrator) GetMarketData(symbols ...string) []types.MarketDataPoint {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if len(symbols) == 0 {
		out := make([]types.MarketDataPoint, 0, len(o.points))
		for _, p := range o.points {
			out = append(out, p)
		}
		return out
	}

	out := make([]types.MarketDataPoint, 0, len(symbols))
	for _, s := range symbols {
		if p, ok := o.points[s]; ok {
			out = append(out, p)
		}
	}
	return out
}

// GetSymbolData returns the latest point for one symbol.
func (o *Orchestrator) GetSymbolData(symbol string) (types.MarketDataPoint, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	p, ok := o.points[symbol]
	return p, ok
}

// GetRegime returns the current market regime classification.
func (o *Orchestrator) GetRegime() types.MarketRegime {
	return o.regime.Current()
}

// GetMetrics returns the orchestrator's metrics() snapshot.
func (o *Orchestrator) GetMetrics() Metrics {
	o.mu.RLock()
	stats := o.stats
	o.mu.RUnlock()

	state, _, _ := o.breaker.snapshot()

	return Metrics{
		WorkerPool:     o.indicator.Stats(),
		CircuitBreaker: state,
		Cache:          o.store.Stats(),
		Processing:     stats,
		MarketRegime:   o.regime.Current(),
	}
}

func (o *Orchestrator) publishHealth(healthy bool, detail string) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(events.KindSystemHealthUpdate, events.SystemHealthUpdate{
		Component: "orchestrator",
		Healthy:   healthy,
		Detail:    detail,
	})
}
