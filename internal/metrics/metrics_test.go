package metrics

import (
	"testing"

	"github.com/san-kum/stochsim/internal/dynamo"
)

func TestClampRate(t *testing.T) {
	m := NewClampRate()
	if m.Value() != 0 {
		t.Errorf("expected 0 before observations, got %f", m.Value())
	}

	m.Observe(dynamo.StepRecord{Clamped: []bool{false, true}})
	m.Observe(dynamo.StepRecord{Clamped: []bool{false, false}})
	m.Observe(dynamo.StepRecord{Clamped: []bool{true, true}})
	m.Observe(dynamo.StepRecord{Clamped: []bool{false, false}})

	if m.Value() != 0.5 {
		t.Errorf("expected clamp rate 0.5, got %f", m.Value())
	}

	m.Reset()
	if m.Value() != 0 {
		t.Errorf("expected 0 after reset, got %f", m.Value())
	}
}

func TestMeanDriftMagnitude(t *testing.T) {
	m := NewMeanDriftMagnitude()
	m.Observe(dynamo.StepRecord{Drift: []float64{0.1, -0.2}})
	m.Observe(dynamo.StepRecord{Drift: []float64{0.0, 0.1}})

	if got := m.Value(); got < 0.2-1e-12 || got > 0.2+1e-12 {
		t.Errorf("expected mean magnitude 0.2, got %f", got)
	}
}

func TestMeanDriftMagnitude_EmptyDriftAndReset(t *testing.T) {
	m := NewMeanDriftMagnitude()
	m.Observe(dynamo.StepRecord{Drift: []float64{0.3, -0.3, 0.2}})
	m.Observe(dynamo.StepRecord{})

	if got := m.Value(); got < 0.4-1e-12 || got > 0.4+1e-12 {
		t.Errorf("expected mean magnitude 0.4, got %f", got)
	}

	m.Reset()
	if got := m.Value(); got != 0 {
		t.Errorf("expected 0 after reset, got %f", got)
	}
}

func TestRegimeOccupancy(t *testing.T) {
	m := NewRegimeOccupancy(dynamo.RegimeCrisis)
	if m.Name() != "occupancy_crisis" {
		t.Errorf("unexpected name %s", m.Name())
	}

	for _, r := range []dynamo.Regime{dynamo.RegimeCrisis, dynamo.RegimeStable, dynamo.RegimeCrisis, dynamo.RegimeVolatile} {
		m.Observe(dynamo.StepRecord{Regime: r})
	}
	if m.Value() != 0.5 {
		t.Errorf("expected occupancy 0.5, got %f", m.Value())
	}
}

func TestDimensionMean(t *testing.T) {
	m := NewDimensionMean("d", 1)
	m.Observe(dynamo.StepRecord{Next: dynamo.State{0, 0.2}})
	m.Observe(dynamo.StepRecord{Next: dynamo.State{0, 0.4}})
	m.Observe(dynamo.StepRecord{Next: dynamo.State{0}})

	if got := m.Value(); got < 0.3-1e-12 || got > 0.3+1e-12 {
		t.Errorf("expected mean 0.3, got %f", got)
	}
	if m.Name() != "mean_d" {
		t.Errorf("unexpected name %s", m.Name())
	}
}

func TestDefaults(t *testing.T) {
	ms := Defaults([]string{"a", "b"}, 1)
	if len(ms) != 7 {
		t.Fatalf("expected 7 metrics, got %d", len(ms))
	}
	seen := map[string]bool{}
	for _, m := range ms {
		if seen[m.Name()] {
			t.Errorf("duplicate metric %s", m.Name())
		}
		seen[m.Name()] = true
	}
}
