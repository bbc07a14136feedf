// Package automation runs scripted batches: YAML scenarios of several runs
// and one-parameter sweeps.
package automation

import (
	"context"
	"fmt"
	"os"

	"github.com/san-kum/stochsim/internal/config"
	"github.com/san-kum/stochsim/internal/dynamo"
	"github.com/san-kum/stochsim/internal/experiment"
	"github.com/san-kum/stochsim/internal/optim"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Scenario defines a scripted sequence of runs.
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Steps       []ScenarioStep `yaml:"steps"`
}

// ScenarioStep starts from a preset or a config file and applies overrides.
// Params are drift parameters such as rate_0 or cond_elevated.
type ScenarioStep struct {
	Preset   string             `yaml:"preset"`
	Config   string             `yaml:"config"`
	Duration float64            `yaml:"duration"`
	Seed     *int64             `yaml:"seed"`
	Noise    string             `yaml:"noise"`
	Params   map[string]float64 `yaml:"params"`
	SaveAs   string             `yaml:"save_as"`
}

// StepResult pairs a step's resolved config with its result.
type StepResult struct {
	Name   string
	Config *config.Config
	Result *experiment.Result
}

func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if len(scenario.Steps) == 0 {
		return nil, fmt.Errorf("scenario %q has no steps", scenario.Name)
	}
	return &scenario, nil
}

func (s ScenarioStep) resolve() (*config.Config, error) {
	var cfg *config.Config
	switch {
	case s.Config != "":
		loaded, err := config.Load(s.Config)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	case s.Preset != "":
		cfg = config.GetPreset(s.Preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s", s.Preset)
		}
	default:
		return nil, fmt.Errorf("step needs a preset or a config")
	}
	if s.Duration > 0 {
		cfg.Duration = s.Duration
	}
	if s.Seed != nil {
		cfg.Seed = *s.Seed
	}
	if s.Noise != "" {
		cfg.Noise = s.Noise
	}
	return cfg, nil
}

// RunScenario executes every step in order and stops at the first failure,
// returning the results gathered so far.
func RunScenario(ctx context.Context, scenario *Scenario, registry *experiment.Registry) ([]StepResult, error) {
	log := logrus.WithFields(logrus.Fields{"component": "automation", "scenario": scenario.Name})
	results := make([]StepResult, 0, len(scenario.Steps))

	for i, step := range scenario.Steps {
		cfg, err := step.resolve()
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}

		exp := experiment.New(cfg, registry)
		if err := exp.Setup(); err != nil {
			return results, fmt.Errorf("step %d setup: %w", i+1, err)
		}
		if err := exp.Tune(step.Params); err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}

		res, err := exp.Run(ctx, nil)
		if err != nil {
			return results, fmt.Errorf("step %d run: %w", i+1, err)
		}

		name := step.SaveAs
		if name == "" {
			name = fmt.Sprintf("%s-%d", cfg.Name, i+1)
		}
		log.WithFields(logrus.Fields{"step": i + 1, "name": name, "final_regime": res.Regimes.Final}).Info("scenario step finished")
		results = append(results, StepResult{Name: name, Config: cfg, Result: res})
	}
	return results, nil
}

// ParameterSweep runs one config across evenly spaced values of one drift
// parameter.
type ParameterSweep struct {
	Base      *config.Config
	ParamName string
	ParamMin  float64
	ParamMax  float64
	NumSteps  int
}

type SweepResult struct {
	ParamValue      float64
	FinalState      dynamo.State
	FinalRegime     dynamo.Regime
	ConvergenceRate float64
	MeanLoss        float64
	ClampRate       float64
	Err             error
}

// RunSweep evaluates every value with the same seed, so differences between
// points come from the parameter alone. A value the drift model rejects is
// reported in that point's Err.
func RunSweep(ctx context.Context, sweep *ParameterSweep, registry *experiment.Registry) ([]SweepResult, error) {
	if sweep.NumSteps < 1 {
		return nil, fmt.Errorf("sweep needs at least one step, got %d", sweep.NumSteps)
	}
	log := logrus.WithFields(logrus.Fields{"component": "automation", "param": sweep.ParamName})

	values := optim.Linspace(sweep.ParamMin, sweep.ParamMax, sweep.NumSteps)
	results := make([]SweepResult, 0, len(values))
	for i, v := range values {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		point := SweepResult{ParamValue: v}
		exp := experiment.New(sweep.Base.Clone(), registry)
		if err := exp.Setup(); err != nil {
			return results, err
		}
		if err := exp.Tune(map[string]float64{sweep.ParamName: v}); err != nil {
			point.Err = err
			results = append(results, point)
			continue
		}

		res, err := exp.Run(ctx, nil)
		if err != nil {
			return results, err
		}
		final := res.States[len(res.States)-1]
		point.FinalState = final.State
		point.FinalRegime = final.Regime
		point.ConvergenceRate = res.Stats.ConvergenceRate
		point.MeanLoss = res.Stats.MeanLoss
		point.ClampRate = res.Metrics["clamp_rate"]
		results = append(results, point)

		log.Debugf("sweep %d/%d: %s=%.4f", i+1, len(values), sweep.ParamName, v)
	}
	return results, nil
}
