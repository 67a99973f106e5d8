package events_test

import (
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/quanta-engine/core/internal/events"
)

func TestPublishDeliversInSubscriptionOrder(t *testing.T) {
	bus := events.NewBus(zap.NewNop())

	var order []int
	bus.Subscribe(events.KindMarketDataUpdate, func(events.Event) error {
		order = append(order, 1)
		return nil
	})
	bus.Subscribe(events.KindMarketDataUpdate, func(events.Event) error {
		order = append(order, 2)
		return nil
	})

	bus.Publish(events.KindMarketDataUpdate, nil)

	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("handlers ran out of order: %v", order)
	}
}

func TestPublishIsolatesPanickingHandler(t *testing.T) {
	bus := events.NewBus(zap.NewNop())

	ran := false
	bus.Subscribe(events.KindOrderPlaced, func(events.Event) error {
		panic("boom")
	})
	bus.Subscribe(events.KindOrderPlaced, func(events.Event) error {
		ran = true
		return nil
	})

	bus.Publish(events.KindOrderPlaced, nil)

	if !ran {
		t.Fatal("second handler should still run after the first panics")
	}
}

func TestPublishIsolatesErroringHandler(t *testing.T) {
	bus := events.NewBus(zap.NewNop())

	ran := false
	bus.Subscribe(events.KindOrderPlaced, func(events.Event) error {
		return errors.New("handler failed")
	})
	bus.Subscribe(events.KindOrderPlaced, func(events.Event) error {
		ran = true
		return nil
	})

	bus.Publish(events.KindOrderPlaced, nil)

	if !ran {
		t.Fatal("second handler should still run after the first returns an error")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := events.NewBus(zap.NewNop())

	calls := 0
	sub := bus.Subscribe(events.KindMarketDataUpdate, func(events.Event) error {
		calls++
		return nil
	})

	bus.Publish(events.KindMarketDataUpdate, nil)
	bus.Unsubscribe(sub)
	bus.Publish(events.KindMarketDataUpdate, nil)

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestHistoryReturnsOldestFirst(t *testing.T) {
	bus := events.NewBus(zap.NewNop())

	bus.Publish(events.KindSystemHealthUpdate, events.SystemHealthUpdate{Component: "a"})
	bus.Publish(events.KindSystemHealthUpdate, events.SystemHealthUpdate{Component: "b"})
	bus.Publish(events.KindSystemHealthUpdate, events.SystemHealthUpdate{Component: "c"})

	hist := bus.History(events.KindSystemHealthUpdate, 2)
	if len(hist) != 2 {
		t.Fatalf("len(hist) = %d, want 2", len(hist))
	}
	first := hist[0].Payload.(events.SystemHealthUpdate)
	second := hist[1].Payload.(events.SystemHealthUpdate)
	if first.Component != "b" || second.Component != "c" {
		t.Errorf("history order wrong: got %q, %q", first.Component, second.Component)
	}
}

func TestStatsCountsEventsAndListeners(t *testing.T) {
	bus := events.NewBus(zap.NewNop())
	bus.Subscribe(events.KindMarketDataUpdate, func(events.Event) error { return nil })
	bus.Subscribe(events.KindMarketDataUpdate, func(events.Event) error { return nil })

	bus.Publish(events.KindMarketDataUpdate, nil)
	bus.Publish(events.KindMarketDataUpdate, nil)

	stats := bus.Stats()
	if stats.TotalEvents != 2 {
		t.Errorf("TotalEvents = %d, want 2", stats.TotalEvents)
	}
	if stats.PerKindCounts[events.KindMarketDataUpdate] != 2 {
		t.Errorf("PerKindCounts = %d, want 2", stats.PerKindCounts[events.KindMarketDataUpdate])
	}
	if stats.ListenerCount != 2 {
		t.Errorf("ListenerCount = %d, want 2", stats.ListenerCount)
	}
}
