// Package regime labels the condition dimension of the state vector.
//
// Rules are evaluated in a fixed order and the first match wins:
//
//  1. crisis:   value <= CrisisLevel OR volatility >= CrisisVolatility
//  2. stable:   StableLow <= value <= StableHigh AND volatility <= StableVolatility
//  3. volatile: volatility >= VolatileVolatility
//  4. trending: otherwise
//
// All comparisons are inclusive, so a value exactly on a threshold belongs to
// the earliest rule that mentions it.
package regime

import (
	"math"

	"github.com/san-kum/stochsim/internal/dynamo"
)

const (
	DefaultCrisisLevel        = 0.2
	DefaultCrisisVolatility   = 0.5
	DefaultStableLow          = 0.4
	DefaultStableHigh         = 0.7
	DefaultStableVolatility   = 0.1
	DefaultVolatileVolatility = 0.25
)

type Thresholds struct {
	CrisisLevel        float64 `yaml:"crisis_level" json:"crisis_level"`
	CrisisVolatility   float64 `yaml:"crisis_volatility" json:"crisis_volatility"`
	StableLow          float64 `yaml:"stable_low" json:"stable_low"`
	StableHigh         float64 `yaml:"stable_high" json:"stable_high"`
	StableVolatility   float64 `yaml:"stable_volatility" json:"stable_volatility"`
	VolatileVolatility float64 `yaml:"volatile_volatility" json:"volatile_volatility"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		CrisisLevel:        DefaultCrisisLevel,
		CrisisVolatility:   DefaultCrisisVolatility,
		StableLow:          DefaultStableLow,
		StableHigh:         DefaultStableHigh,
		StableVolatility:   DefaultStableVolatility,
		VolatileVolatility: DefaultVolatileVolatility,
	}
}

// Validate checks every threshold. Levels live in [0,1]; volatilities must be
// ordered StableVolatility < VolatileVolatility <= CrisisVolatility so each
// rule stays reachable.
func (th Thresholds) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"crisis_level", th.CrisisLevel},
		{"crisis_volatility", th.CrisisVolatility},
		{"stable_low", th.StableLow},
		{"stable_high", th.StableHigh},
		{"stable_volatility", th.StableVolatility},
		{"volatile_volatility", th.VolatileVolatility},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) || f.v < 0 {
			return dynamo.Configf("regime."+f.name, "must be finite and >= 0, got %v", f.v)
		}
	}
	if th.CrisisLevel >= 1 {
		return dynamo.Configf("regime.crisis_level", "must be below 1, got %v", th.CrisisLevel)
	}
	if th.StableLow > th.StableHigh || th.StableHigh > 1 {
		return dynamo.Configf("regime.stable_low", "stable band [%v,%v] must be ordered inside [0,1]", th.StableLow, th.StableHigh)
	}
	if th.StableLow <= th.CrisisLevel {
		return dynamo.Configf("regime.stable_low", "must exceed crisis_level %v, got %v", th.CrisisLevel, th.StableLow)
	}
	if th.CrisisVolatility == 0 || th.VolatileVolatility == 0 {
		return dynamo.Configf("regime", "crisis_volatility and volatile_volatility must be positive")
	}
	if th.StableVolatility >= th.VolatileVolatility || th.VolatileVolatility > th.CrisisVolatility {
		return dynamo.Configf("regime", "volatilities must satisfy stable < volatile <= crisis, got %v, %v, %v",
			th.StableVolatility, th.VolatileVolatility, th.CrisisVolatility)
	}
	return nil
}

type Classifier struct {
	th Thresholds
}

func New(th Thresholds) (*Classifier, error) {
	if err := th.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{th: th}, nil
}

func (c *Classifier) Thresholds() Thresholds { return c.th }

func (c *Classifier) Classify(value, volatility float64) dynamo.Regime {
	th := c.th
	switch {
	case value <= th.CrisisLevel || volatility >= th.CrisisVolatility:
		return dynamo.RegimeCrisis
	case value >= th.StableLow && value <= th.StableHigh && volatility <= th.StableVolatility:
		return dynamo.RegimeStable
	case volatility >= th.VolatileVolatility:
		return dynamo.RegimeVolatile
	default:
		return dynamo.RegimeTrending
	}
}
