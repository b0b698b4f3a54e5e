package reporting

import (
	"math"
	"testing"
)

func TestComputePercentile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5}
	tests := []struct {
		p    float64
		want float64
	}{
		{0, 1},
		{0.10, 1.4},
		{0.50, 3},
		{0.90, 4.6},
		{1, 5},
	}
	for _, tc := range tests {
		if got := computePercentile(sorted, tc.p); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("p%.0f: expected %v, got %v", tc.p*100, tc.want, got)
		}
	}
	if got := computePercentile(nil, 0.5); got != 0 {
		t.Errorf("empty: expected 0, got %v", got)
	}
	if got := computePercentile([]float64{7}, 0.9); got != 7 {
		t.Errorf("single: expected 7, got %v", got)
	}
}

func TestComputeDistribution_OrderIndependent(t *testing.T) {
	a := computeDistribution([]float64{0.3, 0.1, 0.2})
	b := computeDistribution([]float64{0.2, 0.3, 0.1})
	if a != b {
		t.Errorf("distribution depends on order: %+v vs %+v", a, b)
	}
	if a.Min != 0.1 || a.Max != 0.3 || math.Abs(a.Median-0.2) > 1e-9 {
		t.Errorf("unexpected distribution: %+v", a)
	}
	if math.Abs(a.Stddev-0.1) > 1e-9 {
		t.Errorf("expected sample stddev 0.1, got %v", a.Stddev)
	}
}

func TestComputeDistribution_Empty(t *testing.T) {
	if d := computeDistribution(nil); d != (Distribution{}) {
		t.Errorf("expected zero distribution, got %+v", d)
	}
}
