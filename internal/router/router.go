package router

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quanta-engine/core/internal/errs"
	"github.com/quanta-engine/core/internal/events"
	"github.com/quanta-engine/core/pkg/types"
)

const telemetryAlphaDefault = 0.1

// Decision is the chosen exchange plus the full score breakdown, returned
// by Route.
type Decision = types.RoutingDecision

// HistoryEntry records one completed order response for History().
type HistoryEntry struct {
	Request  types.OrderRequest
	Decision Decision
	Response types.OrderResponse
}

// Metrics mirrors the router's public metrics() contract.
type Metrics struct {
	TotalRouted    int64
	TotalRejected  int64
	TotalFilled    int64
	TotalDegraded  int64
}

// Router is the Order Router.
type Router struct {
	logger *zap.Logger
	config types.RouterConfig
	bus    *events.Bus

	mu        sync.RWMutex
	adapters  map[string]ExchangeAdapter
	telemetry map[string]types.ExchangeTelemetry
	orders    map[string]types.OrderStatus
	history   []HistoryEntry

	metrics Metrics
}

// New constructs a Router over the given adapters, keyed by exchange ID.
func New(logger *zap.Logger, config types.RouterConfig, bus *events.Bus, adapters map[string]ExchangeAdapter) *Router {
	r := &Router{
		logger:    logger,
		config:    config,
		bus:       bus,
		adapters:  adapters,
		telemetry: make(map[string]types.ExchangeTelemetry, len(adapters)),
		orders:    make(map[string]types.OrderStatus),
	}
	for id := range adapters {
		r.telemetry[id] = types.ExchangeTelemetry{ExchangeID: id, Status: types.ExchangeOnline, FillQuality: 0.9}
	}
	return r
}

// Route scores every connected exchange (symbol support is not checked) and
// selects the argmax, tie-breaking lexicographically by exchange ID. It
// fails with errs.NoEligibleExchange if no exchange clears min confidence.
func (r *Router) Route(req types.OrderRequest) (Decision, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type candidate struct {
		id    string
		score float64
	}
	candidates := make([]candidate, 0, len(r.adapters))
	scores := make(map[string]float64, len(r.adapters))

	for id, adapter := range r.adapters {
		if !adapter.IsConnected() {
			continue
		}
		s := score(r.telemetry[id], r.config, req.Type)
		scores[id] = s
		candidates = append(candidates, candidate{id: id, score: s})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].id < candidates[j].id
	})

	if len(candidates) == 0 || candidates[0].score < r.config.MinConfidence {
		return Decision{}, errs.NoEligibleExchange(req.Symbol)
	}

	best := candidates[0]
	return Decision{
		ExchangeID: best.id,
		Score:      best.score,
		Scores:     scores,
		DecidedAt:  time.Now(),
	}, nil
}

// Execute submits req to the exchange named by decision, updates its
// telemetry by EMA, and publishes order_placed / order_filled events.
func (r *Router) Execute(ctx context.Context, req types.OrderRequest, decision Decision) (types.OrderResponse, error) {
	r.mu.RLock()
	adapter, ok := r.adapters[decision.ExchangeID]
	r.mu.RUnlock()
	if !ok {
		return types.OrderResponse{}, errs.NoEligibleExchange(req.Symbol)
	}

	if req.ClientID == "" {
		req.ClientID = uuid.NewString()
	}

	start := time.Now()
	resp, err := adapter.PlaceOrder(ctx, req)
	if err != nil {
		r.mu.Lock()
		r.metrics.TotalRejected++
		r.mu.Unlock()
		return types.OrderResponse{}, err
	}

	resp.Latency = time.Since(start)
	r.updateTelemetry(decision.ExchangeID, resp)
	r.recordOrder(req, decision, resp)

	if r.bus != nil {
		r.bus.Publish(events.KindOrderPlaced, events.OrderPlaced{
			OrderID:    resp.OrderID,
			ExchangeID: decision.ExchangeID,
			Request:    req,
		})
		if resp.Status == types.OrderStatusFilled {
			r.bus.Publish(events.KindOrderFilled, events.OrderFilled{
				OrderID: resp.OrderID,
				Status:  resp.Status,
				Fill: types.Fill{
					Symbol:    req.Symbol,
					Side:      req.Side,
					Quantity:  resp.FilledQty,
					Price:     resp.AvgFillPrice,
					Timestamp: resp.CompletedAt,
				},
			})
		}
	}

	return resp, nil
}

// updateTelemetry applies the EMA(alpha=0.1) update to an exchange's
// latency/slippage/fill-quality telemetry, marking it degraded if latency
// exceeds 2x the configured threshold.
func (r *Router) updateTelemetry(exchangeID string, resp types.OrderResponse) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.telemetry[exchangeID]
	alpha := r.config.TelemetryAlpha
	if alpha == 0 {
		alpha = telemetryAlphaDefault
	}

	latencyMs := float64(resp.Latency.Milliseconds())
	t.LatencyMs = alpha*latencyMs + (1-alpha)*t.LatencyMs
	t.Slippage = alpha*resp.Slippage.InexactFloat64() + (1-alpha)*t.Slippage
	t.FillQuality = alpha*resp.FillQuality.InexactFloat64() + (1-alpha)*t.FillQuality
	t.LastUpdate = time.Now()

	if t.LatencyMs > 2*r.config.MaxLatencyThresholdMs {
		t.Status = types.ExchangeDegraded
		r.metrics.TotalDegraded++
	} else {
		t.Status = types.ExchangeOnline
	}

	r.telemetry[exchangeID] = t
}

func (r *Router) recordOrder(req types.OrderRequest, decision Decision, resp types.OrderResponse) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.orders[resp.OrderID] = resp.Status
	r.history = append(r.history, HistoryEntry{Request: req, Decision: decision, Response: resp})
	if len(r.history) > r.config.HistoryCapacity {
		r.history = r.history[len(r.history)-r.config.HistoryCapacity:]
	}

	r.metrics.TotalRouted++
	if resp.Status == types.OrderStatusFilled {
		r.metrics.TotalFilled++
	}
}

// TransitionOrder advances an order's state machine. Terminal states
// (filled, cancelled, rejected) never transition further.
func (r *Router) TransitionOrder(orderID string, next types.OrderStatus) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.orders[orderID]
	if !ok {
		return false
	}
	if isTerminal(current) {
		return false
	}
	r.orders[orderID] = next
	return true
}

func isTerminal(s types.OrderStatus) bool {
	return s == types.OrderStatusFilled || s == types.OrderStatusCancelled || s == types.OrderStatusRejected
}

// Metrics returns router-wide counters.
func (r *Router) Metrics() Metrics {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.metrics
}

// History returns the last n routed orders, oldest first.
func (r *Router) History(n int) []HistoryEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n > len(r.history) {
		n = len(r.history)
	}
	out := make([]HistoryEntry, n)
	copy(out, r.history[len(r.history)-n:])
	return out
}

// ExchangeMetrics returns telemetry for one exchange (or all, if id is
// empty).
func (r *Router) ExchangeMetrics(id string) map[string]types.ExchangeTelemetry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if id != "" {
		if t, ok := r.telemetry[id]; ok {
			return map[string]types.ExchangeTelemetry{id: t}
		}
		return nil
	}

	out := make(map[string]types.ExchangeTelemetry, len(r.telemetry))
	for k, v := range r.telemetry {
		out[k] = v
	}
	return out
}
