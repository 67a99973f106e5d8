package regime_test

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/quanta-engine/core/internal/regime"
	"github.com/quanta-engine/core/pkg/types"
)

func TestCurrentIsZeroBeforeEnoughObservations(t *testing.T) {
	d := regime.New(zap.NewNop(), regime.DefaultConfig())

	cur := d.Current()
	if cur.Tag != "" {
		t.Errorf("expected zero-value regime before warmup, got tag %q", cur.Tag)
	}
}

func TestObserveClassifiesAfterWarmup(t *testing.T) {
	cfg := regime.DefaultConfig()
	cfg.VolatilityWindow = 5
	d := regime.New(zap.NewNop(), cfg)

	for i := 0; i < 10; i++ {
		d.Observe(0.001, 1_000_000)
	}

	cur := d.Current()
	if cur.Tag == "" {
		t.Fatal("expected a classified regime after warmup")
	}
	if cur.Confidence <= 0 {
		t.Errorf("expected positive confidence, got %f", cur.Confidence)
	}
}

func TestVolatileObservationsClassifyVolatile(t *testing.T) {
	cfg := regime.DefaultConfig()
	cfg.VolatilityWindow = 5
	d := regime.New(zap.NewNop(), cfg)

	for i := 0; i < 10; i++ {
		sign := 1.0
		if i%2 == 0 {
			sign = -1.0
		}
		d.Observe(sign*0.08, 2_000_000)
	}

	cur := d.Current()
	if cur.Tag != types.RegimeVolatile {
		t.Errorf("expected volatile regime for high-variance returns, got %q", cur.Tag)
	}
}

func TestReplacementRuleHoldsUntilTimeoutOrHigherConfidence(t *testing.T) {
	cfg := regime.DefaultConfig()
	cfg.VolatilityWindow = 5
	cfg.HoldInterval = time.Hour
	d := regime.New(zap.NewNop(), cfg)

	for i := 0; i < 10; i++ {
		d.Observe(0.001, 1_000_000)
	}
	first := d.Current()

	// A single weak observation should not necessarily unseat a held regime
	// before HoldInterval elapses unless its confidence is strictly higher.
	d.Observe(0.0005, 1_000_000)
	second := d.Current()

	if second.Confidence < first.Confidence && second.Tag == first.Tag && second.LastChange != first.LastChange {
		t.Error("regime changed its LastChange timestamp despite the hold interval not elapsing and no confidence gain")
	}
}
