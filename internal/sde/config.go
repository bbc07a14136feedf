package sde

import (
	"fmt"
	"math"

	"github.com/san-kum/stochsim/internal/dynamo"
	"github.com/san-kum/stochsim/internal/regime"
)

// Config holds every coefficient the engine needs. Nothing is defaulted:
// a missing value is a ConfigurationError at construction.
type Config struct {
	// Names labels each dimension; defaults to x0..xN-1 when empty.
	Names []string
	// Initial is the state at t=0; every component must lie in [0,1].
	Initial dynamo.State
	// Dt is the fixed step size, > 0.
	Dt float64
	// Correlation is the n×n correlation matrix of the Wiener increments.
	Correlation [][]float64
	// Volatility is the per-dimension diffusion magnitude, each >= 0.
	Volatility []float64
	Drift      dynamo.DriftModel
	// Condition indexes the dimension read by the regime classifier.
	Condition int
	Regime    regime.Thresholds
	// HistoryLimit bounds the retained history; 0 keeps everything.
	HistoryLimit int
}

// conditionDrift is a drift model with a designated condition dimension.
type conditionDrift interface {
	ConditionIndex() int
}

func (c Config) Dim() int { return len(c.Initial) }

// Validate checks everything except the correlation matrix, which is
// validated by its factorization.
func (c Config) Validate() error {
	n := len(c.Initial)
	if n == 0 {
		return dynamo.Configf("initial", "state vector is empty")
	}
	if math.IsNaN(c.Dt) || math.IsInf(c.Dt, 0) || c.Dt <= 0 {
		return dynamo.Configf("dt", "must be positive, got %v", c.Dt)
	}
	if !c.Initial.IsValid() || !c.Initial.InUnitRange() {
		return dynamo.Configf("initial", "every component must lie in [0,1], got %v", c.Initial)
	}
	if len(c.Volatility) != n {
		return dynamo.Mismatchf("volatility", "has %d entries, state has %d", len(c.Volatility), n)
	}
	for i, v := range c.Volatility {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return dynamo.Configf(fmt.Sprintf("volatility[%d]", i), "must be finite and >= 0, got %v", v)
		}
	}
	if len(c.Correlation) != n {
		return dynamo.Mismatchf("correlation", "has %d rows, state has %d dimensions", len(c.Correlation), n)
	}
	if c.Drift == nil {
		return dynamo.Configf("drift", "drift model is required")
	}
	if c.Drift.Dim() != n {
		return dynamo.Mismatchf("drift", "model has %d dimensions, state has %d", c.Drift.Dim(), n)
	}
	if c.Condition < 0 || c.Condition >= n {
		return dynamo.Mismatchf("condition", "index %d outside [0,%d)", c.Condition, n)
	}
	if cd, ok := c.Drift.(conditionDrift); ok && cd.ConditionIndex() != c.Condition {
		return dynamo.Mismatchf("condition", "classifier reads dimension %d, drift model drives %d", c.Condition, cd.ConditionIndex())
	}
	if len(c.Names) != 0 {
		if len(c.Names) != n {
			return dynamo.Mismatchf("names", "has %d entries, state has %d", len(c.Names), n)
		}
		seen := make(map[string]bool, n)
		for _, name := range c.Names {
			if name == "" || seen[name] {
				return dynamo.Configf("names", "dimension names must be unique and non-empty, got %q", name)
			}
			seen[name] = true
		}
	}
	if c.HistoryLimit < 0 {
		return dynamo.Configf("history_limit", "must be >= 0, got %d", c.HistoryLimit)
	}
	return nil
}

func defaultNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = dynamo.DimensionName(i)
	}
	return names
}
