package config

import "sort"

func f(v float64) *float64 { return &v }

func dim(name string, initial, vol, rate, eq float64) Dimension {
	return Dimension{Name: name, Initial: f(initial), Volatility: f(vol), Rate: f(rate), Equilibrium: f(eq)}
}

func condDim(name string, initial, vol float64) Dimension {
	return Dimension{Name: name, Initial: f(initial), Volatility: f(vol)}
}

// Presets are complete calibrations. Use GetPreset, which returns a copy.
var Presets = map[string]*Config{
	"reference": {
		Name: "reference", Dt: f(0.05), Duration: 10, Seed: 42, Noise: "gaussian",
		Dimensions: []Dimension{
			dim("a", 0.5, 0.05, 0.2, 0.5),
			dim("b", 0.3, 0.05, 0.2, 0.4),
			dim("c", 0.5, 0.08, 0.1, 0.5),
			condDim("d", 0.4, 0.08),
			dim("e", 0.2, 0.04, 0.3, 0.3),
			dim("f", 0.6, 0.04, 0.1, 0.6),
		},
		Correlation: [][]float64{
			{1, 0.3, 0, 0, 0, 0},
			{0.3, 1, 0, 0, 0, 0},
			{0, 0, 1, 0.2, 0, 0},
			{0, 0, 0.2, 1, 0, 0},
			{0, 0, 0, 0, 1, -0.1},
			{0, 0, 0, 0, -0.1, 1},
		},
		Condition: ConditionConfig{
			Dimension: "d", Low: f(0.3), High: f(0.7),
			DepressedRate: f(0.05), NeutralRate: f(0.01), ElevatedRate: f(-0.05),
		},
		Convergence: ConvergenceConfig{Loss: "distance", Threshold: f(0.1), Window: 20},
	},
	"calm": {
		Name: "calm", Dt: f(0.01), Duration: 20, Seed: 7, Noise: "antithetic",
		Dimensions: []Dimension{
			dim("level", 0.55, 0.02, 0.5, 0.55),
			condDim("health", 0.6, 0.03),
			dim("demand", 0.45, 0.02, 0.4, 0.5),
		},
		Correlation: [][]float64{
			{1, 0, 0},
			{0, 1, 0},
			{0, 0, 1},
		},
		Condition: ConditionConfig{
			Dimension: "health", Low: f(0.4), High: f(0.75),
			DepressedRate: f(0.08), NeutralRate: f(0.0), ElevatedRate: f(-0.04),
		},
		Convergence: ConvergenceConfig{Loss: "condition", Threshold: f(0.01), Window: 50},
	},
	"turbulent": {
		Name: "turbulent", Dt: f(0.02), Duration: 15, Seed: 1337, Noise: "gaussian",
		Dimensions: []Dimension{
			dim("price", 0.5, 0.3, 0.2, 0.5),
			dim("supply", 0.5, 0.25, 0.1, 0.45),
			condDim("health", 0.5, 0.3),
			dim("sentiment", 0.5, 0.35, 0.05, 0.5),
		},
		Correlation: [][]float64{
			{1, -0.4, 0.3, 0.5},
			{-0.4, 1, 0, -0.2},
			{0.3, 0, 1, 0.4},
			{0.5, -0.2, 0.4, 1},
		},
		Condition: ConditionConfig{
			Dimension: "health", Low: f(0.35), High: f(0.65),
			DepressedRate: f(-0.02), NeutralRate: f(0.0), ElevatedRate: f(0.02),
		},
		Convergence: ConvergenceConfig{Loss: "distance", Threshold: f(0.2), Window: 25},
	},
	"crisis": {
		Name: "crisis", Dt: f(0.05), Duration: 30, Seed: 99, Noise: "gaussian",
		Dimensions: []Dimension{
			condDim("health", 0.15, 0.12),
			dim("liquidity", 0.2, 0.1, 0.3, 0.5),
		},
		Correlation: [][]float64{
			{1, 0.6},
			{0.6, 1},
		},
		Condition: ConditionConfig{
			Dimension: "health", Low: f(0.25), High: f(0.6),
			DepressedRate: f(0.04), NeutralRate: f(0.02), ElevatedRate: f(0.0),
		},
		Convergence: ConvergenceConfig{Loss: "condition", Threshold: f(0.05), Window: 40},
	},
}

// DefaultConfig returns a copy of the reference calibration.
func DefaultConfig() *Config {
	return GetPreset("reference")
}

func GetPreset(name string) *Config {
	cfg, ok := Presets[name]
	if !ok {
		return nil
	}
	return cfg.Clone()
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
