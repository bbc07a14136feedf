package sde

import (
	"github.com/san-kum/stochsim/internal/drift"
	"github.com/san-kum/stochsim/internal/dynamo"
	"github.com/san-kum/stochsim/internal/regime"
)

var referenceNames = []string{"a", "b", "c", "d", "e", "f"}

func referenceDrift() *drift.Model {
	m, err := drift.New(drift.Config{
		Reversion: []drift.Reversion{
			{Rate: 0.2, Equilibrium: 0.6},
			{Rate: 0.15, Equilibrium: 0.4},
			{Rate: 0.1, Equilibrium: 0.5},
			{Rate: 0.1, Equilibrium: 0.5},
			{Rate: 0.05, Equilibrium: 0.3},
			{Rate: 0.25, Equilibrium: 0.5},
		},
		Condition: drift.Condition{
			Index:         3,
			Low:           0.3,
			High:          0.7,
			DepressedRate: -0.02,
			NeutralRate:   0.01,
			ElevatedRate:  0.03,
		},
	})
	if err != nil {
		panic(err)
	}
	return m
}

func identity(n int) [][]float64 {
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
		m[i][i] = 1
	}
	return m
}

func correlated6() [][]float64 {
	return [][]float64{
		{1.0, 0.3, 0.2, 0.0, 0.1, 0.0},
		{0.3, 1.0, 0.4, 0.1, 0.0, 0.2},
		{0.2, 0.4, 1.0, 0.3, 0.2, 0.1},
		{0.0, 0.1, 0.3, 1.0, 0.5, 0.0},
		{0.1, 0.0, 0.2, 0.5, 1.0, 0.3},
		{0.0, 0.2, 0.1, 0.0, 0.3, 1.0},
	}
}

// referenceConfig is the six-dimension example: a=0.5 b=0.3 c=0.5 d=0.4
// e=0.2 f=0.6, dt=0.05, condition on d.
func referenceConfig(vol float64) Config {
	v := make([]float64, 6)
	for i := range v {
		v[i] = vol
	}
	return Config{
		Names:       referenceNames,
		Initial:     dynamo.State{0.5, 0.3, 0.5, 0.4, 0.2, 0.6},
		Dt:          0.05,
		Correlation: correlated6(),
		Volatility:  v,
		Drift:       referenceDrift(),
		Condition:   3,
		Regime:      regime.DefaultThresholds(),
	}
}

type nanDrift struct{ n int }

func (d nanDrift) Drift(x dynamo.State, t float64) dynamo.State {
	out := make(dynamo.State, d.n)
	out[0] = 0 / zero()
	return out
}

func (d nanDrift) Dim() int { return d.n }

func zero() float64 { return 0 }

type countingMetric struct {
	observed int
	resets   int
}

func (c *countingMetric) Name() string                  { return "count" }
func (c *countingMetric) Observe(rec dynamo.StepRecord) { c.observed++ }
func (c *countingMetric) Value() float64                { return float64(c.observed) }
func (c *countingMetric) Reset()                        { c.observed = 0; c.resets++ }
