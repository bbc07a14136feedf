package config

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/san-kum/stochsim/internal/drift"
	"github.com/san-kum/stochsim/internal/dynamo"
	"github.com/san-kum/stochsim/internal/regime"
	"github.com/san-kum/stochsim/internal/sde"
	"gopkg.in/yaml.v3"
)

const (
	DefaultDuration = 10.0
	DefaultNoise    = "gaussian"
	DefaultLoss     = "distance"
	DefaultWindow   = 20
)

// Config is the on-disk form of a run. Calibration coefficients are pointers
// so that a missing key is reported instead of silently read as zero.
type Config struct {
	Name         string             `yaml:"name,omitempty"`
	Dt           *float64           `yaml:"dt"`
	Duration     float64            `yaml:"duration"`
	Seed         int64              `yaml:"seed"`
	Noise        string             `yaml:"noise"`
	HistoryLimit int                `yaml:"history_limit,omitempty"`
	Dimensions   []Dimension        `yaml:"dimensions"`
	Correlation  [][]float64        `yaml:"correlation"`
	Condition    ConditionConfig    `yaml:"condition"`
	Regime       *regime.Thresholds `yaml:"regime,omitempty"`
	Convergence  ConvergenceConfig  `yaml:"convergence"`
}

type Dimension struct {
	Name        string   `yaml:"name"`
	Initial     *float64 `yaml:"initial"`
	Volatility  *float64 `yaml:"volatility"`
	Rate        *float64 `yaml:"rate,omitempty"`
	Equilibrium *float64 `yaml:"equilibrium,omitempty"`
}

type ConditionConfig struct {
	Dimension     string   `yaml:"dimension"`
	Low           *float64 `yaml:"low"`
	High          *float64 `yaml:"high"`
	DepressedRate *float64 `yaml:"depressed_rate"`
	NeutralRate   *float64 `yaml:"neutral_rate"`
	ElevatedRate  *float64 `yaml:"elevated_rate"`
}

type ConvergenceConfig struct {
	Loss      string    `yaml:"loss"`
	Threshold *float64  `yaml:"threshold"`
	Window    int       `yaml:"window"`
	Target    []float64 `yaml:"target,omitempty"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML and fills the non-calibration defaults.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) applyDefaults() {
	if c.Duration == 0 {
		c.Duration = DefaultDuration
	}
	if c.Noise == "" {
		c.Noise = DefaultNoise
	}
	if c.Convergence.Loss == "" {
		c.Convergence.Loss = DefaultLoss
	}
	if c.Convergence.Window == 0 {
		c.Convergence.Window = DefaultWindow
	}
}

// ConditionIndex resolves the condition dimension by name, or -1.
func (c *Config) ConditionIndex() int {
	for i, d := range c.Dimensions {
		if d.Name == c.Condition.Dimension {
			return i
		}
	}
	return -1
}

func (c *Config) Names() []string {
	names := make([]string, len(c.Dimensions))
	for i, d := range c.Dimensions {
		names[i] = d.Name
	}
	return names
}

// Validate reports every missing or malformed coefficient at once. Each
// joined error is a *dynamo.ConfigurationError.
func (c *Config) Validate() error {
	var errs []error
	missing := func(field string) {
		errs = append(errs, dynamo.Configf(field, "required coefficient is missing"))
	}

	if c.Dt == nil {
		missing("dt")
	}
	if math.IsNaN(c.Duration) || math.IsInf(c.Duration, 0) || c.Duration <= 0 {
		errs = append(errs, dynamo.Configf("duration", "must be positive, got %v", c.Duration))
	}
	if len(c.Dimensions) == 0 {
		errs = append(errs, dynamo.Configf("dimensions", "at least one dimension is required"))
	}

	cond := c.ConditionIndex()
	if cond < 0 {
		errs = append(errs, dynamo.Configf("condition.dimension", "%q does not name a dimension", c.Condition.Dimension))
	}
	for i, d := range c.Dimensions {
		field := fmt.Sprintf("dimensions[%d]", i)
		if d.Name != "" {
			field = "dimensions." + d.Name
		}
		if d.Initial == nil {
			missing(field + ".initial")
		}
		if d.Volatility == nil {
			missing(field + ".volatility")
		}
		if i == cond {
			continue
		}
		if d.Rate == nil {
			missing(field + ".rate")
		}
		if d.Equilibrium == nil {
			missing(field + ".equilibrium")
		}
	}

	for _, p := range []struct {
		name string
		v    *float64
	}{
		{"condition.low", c.Condition.Low},
		{"condition.high", c.Condition.High},
		{"condition.depressed_rate", c.Condition.DepressedRate},
		{"condition.neutral_rate", c.Condition.NeutralRate},
		{"condition.elevated_rate", c.Condition.ElevatedRate},
	} {
		if p.v == nil {
			missing(p.name)
		}
	}

	if c.Correlation == nil {
		missing("correlation")
	} else if len(c.Correlation) != len(c.Dimensions) {
		errs = append(errs, dynamo.Mismatchf("correlation", "has %d rows, config has %d dimensions", len(c.Correlation), len(c.Dimensions)))
	}
	if c.Convergence.Threshold == nil {
		missing("convergence.threshold")
	}
	if c.Convergence.Target != nil && len(c.Convergence.Target) != len(c.Dimensions) {
		errs = append(errs, dynamo.Mismatchf("convergence.target", "has %d entries, config has %d dimensions", len(c.Convergence.Target), len(c.Dimensions)))
	}
	if c.Convergence.Window < 0 {
		errs = append(errs, dynamo.Configf("convergence.window", "must be >= 0, got %d", c.Convergence.Window))
	}
	return errors.Join(errs...)
}

// Drift builds the drift model. Call Validate first.
func (c *Config) Drift() (*drift.Model, error) {
	cond := c.ConditionIndex()
	rev := make([]drift.Reversion, len(c.Dimensions))
	for i, d := range c.Dimensions {
		if i == cond {
			// the piecewise rate replaces reversion on this dimension
			rev[i] = drift.Reversion{Rate: 0, Equilibrium: 0.5}
			continue
		}
		rev[i] = drift.Reversion{Rate: *d.Rate, Equilibrium: *d.Equilibrium}
	}
	return drift.New(drift.Config{
		Reversion: rev,
		Condition: drift.Condition{
			Index:         cond,
			Low:           *c.Condition.Low,
			High:          *c.Condition.High,
			DepressedRate: *c.Condition.DepressedRate,
			NeutralRate:   *c.Condition.NeutralRate,
			ElevatedRate:  *c.Condition.ElevatedRate,
		},
	})
}

// ToEngine validates the config and converts it into an engine config.
func (c *Config) ToEngine() (sde.Config, error) {
	if err := c.Validate(); err != nil {
		return sde.Config{}, err
	}
	model, err := c.Drift()
	if err != nil {
		return sde.Config{}, err
	}

	n := len(c.Dimensions)
	initial := make(dynamo.State, n)
	vol := make([]float64, n)
	for i, d := range c.Dimensions {
		initial[i] = *d.Initial
		vol[i] = *d.Volatility
	}

	th := regime.DefaultThresholds()
	if c.Regime != nil {
		th = *c.Regime
	}

	return sde.Config{
		Names:        c.Names(),
		Initial:      initial,
		Dt:           *c.Dt,
		Correlation:  c.Correlation,
		Volatility:   vol,
		Drift:        model,
		Condition:    c.ConditionIndex(),
		Regime:       th,
		HistoryLimit: c.HistoryLimit,
	}, nil
}

// Target returns the convergence target: the configured one, or each
// dimension's equilibrium with the condition dimension at the middle of its
// neutral band.
func (c *Config) Target() dynamo.State {
	if c.Convergence.Target != nil {
		return append(dynamo.State(nil), c.Convergence.Target...)
	}
	cond := c.ConditionIndex()
	t := make(dynamo.State, len(c.Dimensions))
	for i, d := range c.Dimensions {
		switch {
		case i == cond && c.Condition.Low != nil && c.Condition.High != nil:
			t[i] = (*c.Condition.Low + *c.Condition.High) / 2
		case d.Equilibrium != nil:
			t[i] = *d.Equilibrium
		case d.Initial != nil:
			t[i] = *d.Initial
		}
	}
	return t
}

// Clone deep-copies the config so presets can be modified safely.
func (c *Config) Clone() *Config {
	out := *c
	out.Dt = clonePtr(c.Dt)
	out.Dimensions = make([]Dimension, len(c.Dimensions))
	for i, d := range c.Dimensions {
		out.Dimensions[i] = Dimension{
			Name:        d.Name,
			Initial:     clonePtr(d.Initial),
			Volatility:  clonePtr(d.Volatility),
			Rate:        clonePtr(d.Rate),
			Equilibrium: clonePtr(d.Equilibrium),
		}
	}
	if c.Correlation != nil {
		out.Correlation = make([][]float64, len(c.Correlation))
		for i, row := range c.Correlation {
			out.Correlation[i] = append([]float64(nil), row...)
		}
	}
	out.Condition = ConditionConfig{
		Dimension:     c.Condition.Dimension,
		Low:           clonePtr(c.Condition.Low),
		High:          clonePtr(c.Condition.High),
		DepressedRate: clonePtr(c.Condition.DepressedRate),
		NeutralRate:   clonePtr(c.Condition.NeutralRate),
		ElevatedRate:  clonePtr(c.Condition.ElevatedRate),
	}
	if c.Regime != nil {
		th := *c.Regime
		out.Regime = &th
	}
	out.Convergence.Threshold = clonePtr(c.Convergence.Threshold)
	if c.Convergence.Target != nil {
		out.Convergence.Target = append([]float64(nil), c.Convergence.Target...)
	}
	return &out
}

func clonePtr(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
