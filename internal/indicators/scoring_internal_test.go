package indicators

import "testing"

func sumWeights(set []indicatorWeight) float64 {
	var sum float64
	for _, w := range set {
		sum += w.weight
	}
	return sum
}

func TestCategoryWeightsSumToOne(t *testing.T) {
	cases := map[string][]indicatorWeight{
		"momentum":   momentumIndicators,
		"trend":      trendIndicators,
		"volatility": volatilityIndicators,
		"volume":     volumeIndicators,
	}
	for name, set := range cases {
		if got := sumWeights(set); got < 0.999 || got > 1.001 {
			t.Errorf("%s category weights sum to %f, want 1.0", name, got)
		}
	}
}

func TestOverallCategoryWeightsSumToOne(t *testing.T) {
	sum := weightMomentum + weightTrend + weightVolatility + weightVolume
	if sum < 0.999 || sum > 1.001 {
		t.Errorf("overall category weights sum to %f, want 1.0", sum)
	}
}
