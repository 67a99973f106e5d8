// Package events provides the in-process event bus stitching the engine's
// subsystems together. Delivery is synchronous and single-threaded per
// publish: handlers run to completion, in subscription order, on the
// publisher's own goroutine before Publish returns.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// EventKind is the closed set of event kinds the bus carries.
type EventKind string

const (
	KindMarketDataUpdate       EventKind = "market_data_update"
	KindMarketRegimeUpdate     EventKind = "market_regime_update"
	KindSignalGenerated        EventKind = "signal_generated"
	KindSignalRankingUpdate    EventKind = "signal_ranking_update"
	KindSignalConfirmed        EventKind = "signal_confirmed"
	KindTradeSignal            EventKind = "trade_signal"
	KindOrderPlaced            EventKind = "order_placed"
	KindOrderFilled            EventKind = "order_filled"
	KindRiskLimitBreach        EventKind = "risk_limit_breach"
	KindSystemHealthUpdate     EventKind = "system_health_update"
	KindPerformanceMetric      EventKind = "performance_metric"
	KindEnhancedMetricsUpdated EventKind = "enhanced_metrics_updated"
)

// allKinds enumerates every kind for stats/history initialization.
var allKinds = []EventKind{
	KindMarketDataUpdate,
	KindMarketRegimeUpdate,
	KindSignalGenerated,
	KindSignalRankingUpdate,
	KindSignalConfirmed,
	KindTradeSignal,
	KindOrderPlaced,
	KindOrderFilled,
	KindRiskLimitBreach,
	KindSystemHealthUpdate,
	KindPerformanceMetric,
	KindEnhancedMetricsUpdated,
}

// Event is a published envelope: a kind tag, a timestamp, and a typed
// payload specific to that kind (see payloads.go).
type Event struct {
	Kind      EventKind
	Timestamp time.Time
	Payload   interface{}
}

// Handler processes one event. A returned error is logged and does not
// propagate to the publisher or stop other handlers from running.
type Handler func(Event) error

// Subscription is an opaque handle returned by Subscribe, used to Unsubscribe.
type Subscription struct {
	id   int64
	kind EventKind
}

const ringCapacity = 1000

// ring is a fixed-capacity FIFO overwriting the oldest entry on overflow.
type ring struct {
	buf   []Event
	start int
	count int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]Event, capacity)}
}

func (r *ring) push(e Event) {
	idx := (r.start + r.count) % len(r.buf)
	r.buf[idx] = e
	if r.count < len(r.buf) {
		r.count++
	} else {
		r.start = (r.start + 1) % len(r.buf)
	}
}

// last returns up to n most recent events, oldest first.
func (r *ring) last(n int) []Event {
	if n > r.count {
		n = r.count
	}
	out := make([]Event, n)
	for i := 0; i < n; i++ {
		idx := (r.start + r.count - n + i) % len(r.buf)
		out[i] = r.buf[idx]
	}
	return out
}

type subEntry struct {
	id      int64
	handler Handler
}

// Stats summarizes bus activity for operational visibility.
type Stats struct {
	TotalEvents   int64
	PerKindCounts map[EventKind]int64
	ListenerCount int
}

// Bus is the central publish/subscribe router.
type Bus struct {
	mu        sync.RWMutex
	subs      map[EventKind][]subEntry
	history   map[EventKind]*ring
	counts    map[EventKind]*atomic.Int64
	total     atomic.Int64
	nextSubID atomic.Int64
	logger    *zap.Logger
}

// NewBus constructs an empty event bus.
func NewBus(logger *zap.Logger) *Bus {
	b := &Bus{
		subs:    make(map[EventKind][]subEntry),
		history: make(map[EventKind]*ring),
		counts:  make(map[EventKind]*atomic.Int64),
		logger:  logger,
	}
	for _, k := range allKinds {
		b.history[k] = newRing(ringCapacity)
		b.counts[k] = &atomic.Int64{}
	}
	return b
}

// Subscribe registers handler for kind, returning a handle for Unsubscribe.
// Handlers for a given kind run in subscription order.
func (b *Bus) Subscribe(kind EventKind, handler Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextSubID.Add(1)
	b.subs[kind] = append(b.subs[kind], subEntry{id: id, handler: handler})
	return Subscription{id: id, kind: kind}
}

// Unsubscribe removes a previously registered handler. A no-op if already
// removed.
func (b *Bus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries := b.subs[sub.kind]
	for i, e := range entries {
		if e.id == sub.id {
			b.subs[sub.kind] = append(entries[:i], entries[i+1:]...)
			return
		}
	}
}

// Publish delivers event synchronously to every current subscriber of kind,
// in subscription order, then records it in that kind's history ring.
// A handler panic or error is isolated: it is logged and does not stop
// remaining handlers or bubble to the caller.
func (b *Bus) Publish(kind EventKind, payload interface{}) {
	b.mu.RLock()
	handlers := make([]subEntry, len(b.subs[kind]))
	copy(handlers, b.subs[kind])
	b.mu.RUnlock()

	event := Event{Kind: kind, Timestamp: time.Now(), Payload: payload}

	for _, entry := range handlers {
		b.runHandler(entry, event)
	}

	b.mu.Lock()
	b.history[kind].push(event)
	b.mu.Unlock()

	b.total.Add(1)
	b.counts[kind].Add(1)
}

func (b *Bus) runHandler(entry subEntry, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panic",
				zap.String("kind", string(event.Kind)),
				zap.Any("recovered", r),
			)
		}
	}()

	if err := entry.handler(event); err != nil {
		b.logger.Warn("event handler error",
			zap.String("kind", string(event.Kind)),
			zap.Error(err),
		)
	}
}

// History returns the last n events published for kind, oldest first.
func (b *Bus) History(kind EventKind, n int) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	r, ok := b.history[kind]
	if !ok {
		return nil
	}
	return r.last(n)
}

// Stats reports total event count, per-kind counts, and listener count.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	perKind := make(map[EventKind]int64, len(b.counts))
	listeners := 0
	for k, c := range b.counts {
		perKind[k] = c.Load()
		listeners += len(b.subs[k])
	}

	return Stats{
		TotalEvents:   b.total.Load(),
		PerKindCounts: perKind,
		ListenerCount: listeners,
	}
}
