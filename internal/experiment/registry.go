package experiment

import (
	"fmt"
	"math"
	"sort"

	"github.com/san-kum/stochsim/internal/config"
	"github.com/san-kum/stochsim/internal/convergence"
	"github.com/san-kum/stochsim/internal/dynamo"
	"github.com/san-kum/stochsim/internal/metrics"
	"github.com/san-kum/stochsim/internal/noise"
	"github.com/san-kum/stochsim/internal/regime"
)

type Registry struct {
	noise  map[string]func(seed int64) dynamo.NoiseSource
	losses map[string]func(cfg *config.Config) convergence.LossFunc
}

func NewRegistry() *Registry {
	r := &Registry{
		noise:  make(map[string]func(int64) dynamo.NoiseSource),
		losses: make(map[string]func(*config.Config) convergence.LossFunc),
	}

	r.noise["gaussian"] = func(seed int64) dynamo.NoiseSource { return noise.NewGaussian(seed) }
	r.noise["antithetic"] = func(seed int64) dynamo.NoiseSource { return noise.NewAntithetic(seed) }

	r.losses["distance"] = DistanceLoss
	r.losses["condition"] = ConditionLoss

	return r
}

func (r *Registry) GetNoise(name string, seed int64) (dynamo.NoiseSource, error) {
	fn, ok := r.noise[name]
	if !ok {
		return nil, fmt.Errorf("unknown noise source: %s", name)
	}
	return fn(seed), nil
}

func (r *Registry) GetLoss(name string, cfg *config.Config) (convergence.LossFunc, error) {
	fn, ok := r.losses[name]
	if !ok {
		return nil, fmt.Errorf("unknown loss: %s", name)
	}
	return fn(cfg), nil
}

func (r *Registry) GetPreset(name string) (*config.Config, error) {
	cfg := config.GetPreset(name)
	if cfg == nil {
		return nil, fmt.Errorf("unknown preset: %s", name)
	}
	return cfg, nil
}

func (r *Registry) ListNoise() []string  { return sortedKeys(r.noise) }
func (r *Registry) ListLosses() []string { return sortedKeys(r.losses) }
func (r *Registry) ListPresets() []string {
	return config.ListPresets()
}

func (r *Registry) DefaultMetrics(cfg *config.Config) []dynamo.Metric {
	return metrics.Defaults(cfg.Names(), cfg.ConditionIndex())
}

// DistanceLoss is the root-mean-square distance to the config's target.
func DistanceLoss(cfg *config.Config) convergence.LossFunc {
	target := cfg.Target()
	return func(x dynamo.State) float64 {
		if len(x) == 0 {
			return 0
		}
		return x.Sub(target).Norm() / math.Sqrt(float64(len(x)))
	}
}

// ConditionLoss is the distance of the condition dimension from the stable
// band of the regime thresholds; zero inside the band.
func ConditionLoss(cfg *config.Config) convergence.LossFunc {
	idx := cfg.ConditionIndex()
	th := regime.DefaultThresholds()
	if cfg.Regime != nil {
		th = *cfg.Regime
	}
	return func(x dynamo.State) float64 {
		if idx < 0 || idx >= len(x) {
			return math.Inf(1)
		}
		v := x[idx]
		return math.Max(0, th.StableLow-v) + math.Max(0, v-th.StableHigh)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
