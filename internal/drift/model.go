// Package drift implements the deterministic part of the SDE: mean reversion
// on ordinary dimensions and a piecewise rate on the condition dimension.
package drift

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/san-kum/stochsim/internal/dynamo"
)

// Band names the piecewise section the condition dimension sits in.
type Band string

const (
	BandDepressed Band = "depressed"
	BandNeutral   Band = "neutral"
	BandElevated  Band = "elevated"
)

// Reversion pulls one dimension toward Equilibrium at Rate per unit time.
// Rate must be >= 0; Equilibrium must lie in [0,1].
type Reversion struct {
	Rate        float64 `yaml:"rate" json:"rate"`
	Equilibrium float64 `yaml:"equilibrium" json:"equilibrium"`
}

// Condition configures the piecewise drift of one designated dimension.
// Values strictly below Low use DepressedRate, strictly above High use
// ElevatedRate, and everything in [Low, High] uses NeutralRate.
type Condition struct {
	Index         int     `yaml:"index" json:"index"`
	Low           float64 `yaml:"low" json:"low"`
	High          float64 `yaml:"high" json:"high"`
	DepressedRate float64 `yaml:"depressed_rate" json:"depressed_rate"`
	NeutralRate   float64 `yaml:"neutral_rate" json:"neutral_rate"`
	ElevatedRate  float64 `yaml:"elevated_rate" json:"elevated_rate"`
}

// Config has one Reversion per dimension. The entry at Condition.Index is
// validated but the piecewise rate replaces it.
type Config struct {
	Reversion []Reversion
	Condition Condition
}

type Model struct {
	reversion []Reversion
	cond      Condition
}

func New(cfg Config) (*Model, error) {
	n := len(cfg.Reversion)
	if n == 0 {
		return nil, dynamo.Configf("drift.reversion", "no dimensions configured")
	}
	for i, r := range cfg.Reversion {
		if err := validateReversion(i, r); err != nil {
			return nil, err
		}
	}
	if err := validateCondition(cfg.Condition, n); err != nil {
		return nil, err
	}

	return &Model{
		reversion: append([]Reversion(nil), cfg.Reversion...),
		cond:      cfg.Condition,
	}, nil
}

func validateReversion(i int, r Reversion) error {
	field := fmt.Sprintf("drift.reversion[%d]", i)
	if !finite(r.Rate) || r.Rate < 0 {
		return dynamo.Configf(field+".rate", "must be finite and >= 0, got %v", r.Rate)
	}
	if !finite(r.Equilibrium) || r.Equilibrium < 0 || r.Equilibrium > 1 {
		return dynamo.Configf(field+".equilibrium", "must lie in [0,1], got %v", r.Equilibrium)
	}
	return nil
}

func validateCondition(c Condition, n int) error {
	if c.Index < 0 || c.Index >= n {
		return dynamo.Mismatchf("drift.condition.index", "%d outside [0,%d)", c.Index, n)
	}
	if !finite(c.Low) || !finite(c.High) || c.Low < 0 || c.High > 1 || c.Low >= c.High {
		return dynamo.Configf("drift.condition", "thresholds must satisfy 0 <= low < high <= 1, got low=%v high=%v", c.Low, c.High)
	}
	for _, r := range []struct {
		name string
		v    float64
	}{
		{"depressed_rate", c.DepressedRate},
		{"neutral_rate", c.NeutralRate},
		{"elevated_rate", c.ElevatedRate},
	} {
		if !finite(r.v) {
			return dynamo.Configf("drift.condition."+r.name, "must be finite, got %v", r.v)
		}
	}
	return nil
}

func (m *Model) Dim() int { return len(m.reversion) }

// ConditionIndex is the dimension driven by the piecewise rate.
func (m *Model) ConditionIndex() int { return m.cond.Index }

// BandOf reports which piecewise section v falls in.
func (m *Model) BandOf(v float64) Band {
	switch {
	case v < m.cond.Low:
		return BandDepressed
	case v > m.cond.High:
		return BandElevated
	default:
		return BandNeutral
	}
}

func (m *Model) Drift(x dynamo.State, t float64) dynamo.State {
	dx := make(dynamo.State, len(m.reversion))
	for i, r := range m.reversion {
		if i >= len(x) {
			break
		}
		if i == m.cond.Index {
			dx[i] = m.conditionRate(x[i])
			continue
		}
		dx[i] = r.Rate * (r.Equilibrium - x[i])
	}
	return dx
}

func (m *Model) conditionRate(v float64) float64 {
	switch m.BandOf(v) {
	case BandDepressed:
		return m.cond.DepressedRate
	case BandElevated:
		return m.cond.ElevatedRate
	default:
		return m.cond.NeutralRate
	}
}

// GetParams exposes the tunable coefficients by name, e.g. "rate_2", "eq_2",
// "cond_low", "cond_elevated".
func (m *Model) GetParams() map[string]float64 {
	p := make(map[string]float64, 2*len(m.reversion)+5)
	for i, r := range m.reversion {
		if i == m.cond.Index {
			continue
		}
		p["rate_"+strconv.Itoa(i)] = r.Rate
		p["eq_"+strconv.Itoa(i)] = r.Equilibrium
	}
	p["cond_low"] = m.cond.Low
	p["cond_high"] = m.cond.High
	p["cond_depressed"] = m.cond.DepressedRate
	p["cond_neutral"] = m.cond.NeutralRate
	p["cond_elevated"] = m.cond.ElevatedRate
	return p
}

// SetParam updates one coefficient and rejects values that would break the
// model's validity.
func (m *Model) SetParam(name string, value float64) error {
	if prefix, idx, ok := splitIndexed(name); ok {
		if idx < 0 || idx >= len(m.reversion) || idx == m.cond.Index {
			return fmt.Errorf("unknown param: %s", name)
		}
		r := m.reversion[idx]
		switch prefix {
		case "rate":
			r.Rate = value
		case "eq":
			r.Equilibrium = value
		default:
			return fmt.Errorf("unknown param: %s", name)
		}
		if err := validateReversion(idx, r); err != nil {
			return err
		}
		m.reversion[idx] = r
		return nil
	}

	c := m.cond
	switch name {
	case "cond_low":
		c.Low = value
	case "cond_high":
		c.High = value
	case "cond_depressed":
		c.DepressedRate = value
	case "cond_neutral":
		c.NeutralRate = value
	case "cond_elevated":
		c.ElevatedRate = value
	default:
		return fmt.Errorf("unknown param: %s", name)
	}
	if err := validateCondition(c, len(m.reversion)); err != nil {
		return err
	}
	m.cond = c
	return nil
}

func splitIndexed(name string) (string, int, bool) {
	prefix, num, ok := strings.Cut(name, "_")
	if !ok || (prefix != "rate" && prefix != "eq") {
		return "", 0, false
	}
	idx, err := strconv.Atoi(num)
	if err != nil {
		return "", 0, false
	}
	return prefix, idx, true
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
