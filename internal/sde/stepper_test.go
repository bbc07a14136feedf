package sde

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/san-kum/stochsim/internal/dynamo"
	"github.com/san-kum/stochsim/internal/linalg"
	"github.com/san-kum/stochsim/internal/noise"
	"github.com/san-kum/stochsim/internal/regime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		mismatch bool
	}{
		{"zero dt", func(c *Config) { c.Dt = 0 }, false},
		{"negative dt", func(c *Config) { c.Dt = -0.1 }, false},
		{"nan dt", func(c *Config) { c.Dt = math.NaN() }, false},
		{"empty state", func(c *Config) { c.Initial = nil }, false},
		{"state out of range", func(c *Config) { c.Initial[2] = 1.2 }, false},
		{"short volatility", func(c *Config) { c.Volatility = c.Volatility[:5] }, true},
		{"negative volatility", func(c *Config) { c.Volatility[1] = -0.1 }, false},
		{"short correlation", func(c *Config) { c.Correlation = identity(5) }, true},
		{"ragged correlation", func(c *Config) { c.Correlation[4] = c.Correlation[4][:3] }, true},
		{"not positive definite", func(c *Config) {
			c.Correlation = identity(6)
			c.Correlation[0][1], c.Correlation[1][0] = 1, 1
		}, false},
		{"missing drift", func(c *Config) { c.Drift = nil }, false},
		{"drift dimension", func(c *Config) { c.Drift = nanDrift{n: 4} }, true},
		{"condition out of range", func(c *Config) { c.Condition = 6 }, true},
		{"condition differs from drift", func(c *Config) { c.Condition = 0 }, true},
		{"duplicate names", func(c *Config) { c.Names = []string{"a", "a", "c", "d", "e", "f"} }, false},
		{"missing thresholds", func(c *Config) { c.Regime = regime.Thresholds{} }, false},
		{"negative history limit", func(c *Config) { c.HistoryLimit = -1 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := referenceConfig(0.1)
			cfg.Correlation = correlated6()
			tt.mutate(&cfg)

			_, err := New(cfg, WithNoise(noise.NewGaussian(1)))
			require.Error(t, err)
			assert.True(t, errors.Is(err, dynamo.ErrConfiguration), "got %v", err)
			assert.Equal(t, tt.mismatch, errors.Is(err, dynamo.ErrDimensionMismatch), "got %v", err)
		})
	}
}

func TestNew_ClassifiesDriftConditionDimension(t *testing.T) {
	cfg := referenceConfig(0)
	cfg.Initial[3] = 0.1

	s, err := New(cfg, WithNoise(noise.NewGaussian(1)))
	require.NoError(t, err)
	assert.Equal(t, dynamo.RegimeCrisis, s.Current().Regime)

	cfg.Condition = 0
	_, err = New(cfg, WithNoise(noise.NewGaussian(1)))
	require.Error(t, err)
	var ce *dynamo.ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "condition", ce.Field)
	assert.True(t, errors.Is(err, dynamo.ErrDimensionMismatch))
}

func TestNew_RequiresNoise(t *testing.T) {
	_, err := New(referenceConfig(0.1))
	require.Error(t, err)

	var cfgErr *dynamo.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "noise", cfgErr.Field)
}

func TestNew_FactorMismatch(t *testing.T) {
	_, err := New(referenceConfig(0.1), WithNoise(noise.NewGaussian(1)), WithFactor(linalg.Identity(3)))
	assert.True(t, errors.Is(err, dynamo.ErrDimensionMismatch))
}

func TestNew_InitialState(t *testing.T) {
	s, err := New(referenceConfig(0.1), WithNoise(noise.NewGaussian(1)))
	require.NoError(t, err)

	cur := s.Current()
	assert.Equal(t, 0.0, cur.Time)
	assert.Equal(t, dynamo.State{0.5, 0.3, 0.5, 0.4, 0.2, 0.6}, cur.State)
	assert.Equal(t, dynamo.RegimeStable, cur.Regime)
	assert.Equal(t, 1, s.HistoryLen())
	assert.Equal(t, 0, s.TotalSteps())
	assert.Equal(t, referenceNames, s.Names())
}

func TestNew_DefaultNames(t *testing.T) {
	cfg := referenceConfig(0.1)
	cfg.Names = nil
	s, err := New(cfg, WithNoise(noise.NewGaussian(1)))
	require.NoError(t, err)
	assert.Equal(t, []string{"x0", "x1", "x2", "x3", "x4", "x5"}, s.Names())
}

func TestStep_RecordIsConsistent(t *testing.T) {
	s, err := New(referenceConfig(0.2), WithNoise(noise.NewGaussian(9)))
	require.NoError(t, err)

	for i := 1; i <= 50; i++ {
		rec, err := s.Step()
		require.NoError(t, err)

		assert.Equal(t, i, rec.Step)
		assert.Equal(t, 0.05, rec.Dt)
		assert.InDelta(t, float64(i)*0.05, rec.Time, 1e-12)
		for d := range rec.Next {
			raw := rec.Previous[d] + rec.Drift[d]*rec.Dt + rec.Diffusion[d]
			assert.Equal(t, dynamo.Clamp01(raw), rec.Next[d])
			assert.Equal(t, raw != rec.Next[d], rec.Clamped[d])
			assert.Equal(t, 0.2*rec.Wiener[d], rec.Diffusion[d])
		}
		assert.Equal(t, s.Current().State, rec.Next)
		assert.Equal(t, s.Current().Regime, rec.Regime)
	}
}

func TestStep_CorrelatedWiener(t *testing.T) {
	s, err := New(referenceConfig(0.1), WithNoise(noise.NewGaussian(4)))
	require.NoError(t, err)

	rec, err := s.Step()
	require.NoError(t, err)

	want := make([]float64, 6)
	s.Factor().Correlate(want, rec.Noise)
	for i := range want {
		assert.InDelta(t, want[i]*math.Sqrt(0.05), rec.Wiener[i], 1e-15)
	}
}

func TestStep_RecordDoesNotAliasEngine(t *testing.T) {
	s, err := New(referenceConfig(0.1), WithNoise(noise.NewGaussian(4)))
	require.NoError(t, err)

	rec, err := s.Step()
	require.NoError(t, err)
	rec.Next[0] = 42
	rec.Previous[0] = 42

	assert.NotEqual(t, 42.0, s.Current().State[0])
	assert.NotEqual(t, 42.0, s.History()[0].State[0])

	cur := s.Current()
	cur.State[1] = 42
	cur.Volatility[1] = 42
	assert.NotEqual(t, 42.0, s.Current().State[1])
	assert.NotEqual(t, 42.0, s.Volatility()[1])
}

func TestStep_InvalidDrift(t *testing.T) {
	cfg := referenceConfig(0.1)
	cfg.Drift = nanDrift{n: 6}
	s, err := New(cfg, WithNoise(noise.NewGaussian(1)))
	require.NoError(t, err)

	_, err = s.Step()
	require.Error(t, err)
	assert.True(t, errors.Is(err, dynamo.ErrInvalidState))

	var simErr *dynamo.SimulationError
	require.True(t, errors.As(err, &simErr))
	assert.Equal(t, 1, simErr.Step)

	assert.Equal(t, 0, s.TotalSteps())
	assert.Equal(t, 1, s.HistoryLen())
}

func TestEvolve_StepCountAndTimes(t *testing.T) {
	s, err := New(referenceConfig(0.1), WithNoise(noise.NewGaussian(2)))
	require.NoError(t, err)

	states, err := s.Evolve(context.Background(), 0.5, nil)
	require.NoError(t, err)
	require.Len(t, states, 10)
	assert.Equal(t, 11, s.HistoryLen())

	prev := 0.0
	for _, st := range states {
		assert.InDelta(t, 0.05, st.Time-prev, 1e-12)
		prev = st.Time
	}
	assert.InDelta(t, 0.5, s.Elapsed(), 1e-12)

	more, err := s.Evolve(context.Background(), 0.5, nil)
	require.NoError(t, err)
	assert.Empty(t, more)

	more, err = s.Evolve(context.Background(), 0.52, nil)
	require.NoError(t, err)
	assert.Len(t, more, 1)
}

func TestEvolve_InvalidHorizon(t *testing.T) {
	s, err := New(referenceConfig(0.1), WithNoise(noise.NewGaussian(2)))
	require.NoError(t, err)

	for _, h := range []float64{-1, math.NaN(), math.Inf(1)} {
		_, err := s.Evolve(context.Background(), h, nil)
		assert.True(t, errors.Is(err, dynamo.ErrConfiguration), "horizon %v", h)
	}
}

func TestEvolve_ProgressCallbackStops(t *testing.T) {
	s, err := New(referenceConfig(0.1), WithNoise(noise.NewGaussian(2)))
	require.NoError(t, err)

	calls := 0
	states, err := s.Evolve(context.Background(), 100, func(p Progress) bool {
		calls++
		assert.Equal(t, 100.0, p.Horizon)
		assert.Equal(t, calls, p.Step)
		return p.Step < 7
	})
	assert.True(t, errors.Is(err, dynamo.ErrCanceled))
	assert.Len(t, states, 7)
	assert.Equal(t, 7, calls)
	assert.Equal(t, 7, s.TotalSteps())
}

func TestEvolve_ContextCanceled(t *testing.T) {
	s, err := New(referenceConfig(0.1), WithNoise(noise.NewGaussian(2)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	states, err := s.Evolve(ctx, 100, func(p Progress) bool {
		if p.Step == 3 {
			cancel()
		}
		return true
	})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Len(t, states, 3)
}

func TestReset(t *testing.T) {
	m := &countingMetric{}
	s, err := New(referenceConfig(0.1), WithNoise(noise.NewGaussian(2)), WithMetric(m))
	require.NoError(t, err)

	_, err = s.Evolve(context.Background(), 1, nil)
	require.NoError(t, err)
	assert.Equal(t, 20, m.observed)
	assert.Equal(t, 20.0, s.Metrics()["count"])

	require.NoError(t, s.Reset(dynamo.State{0.1, 0.1, 0.1, 0.1, 0.1, 0.1}))
	assert.Equal(t, 0.0, s.Elapsed())
	assert.Equal(t, 0, s.TotalSteps())
	assert.Equal(t, 1, s.HistoryLen())
	assert.Equal(t, dynamo.RegimeCrisis, s.Current().Regime)
	assert.Equal(t, 0, m.observed)

	assert.True(t, errors.Is(s.Reset(dynamo.State{0.1}), dynamo.ErrDimensionMismatch))
	assert.True(t, errors.Is(s.Reset(dynamo.State{0.1, 0.1, 0.1, 0.1, 0.1, -0.1}), dynamo.ErrConfiguration))
	assert.Equal(t, 1, s.HistoryLen())
}

func TestHistoryLimit_KeepsNewest(t *testing.T) {
	cfg := referenceConfig(0.1)
	cfg.HistoryLimit = 5
	s, err := New(cfg, WithNoise(noise.NewGaussian(2)))
	require.NoError(t, err)

	states, err := s.Evolve(context.Background(), 1, nil)
	require.NoError(t, err)
	require.Len(t, states, 20)

	hist := s.History()
	require.Len(t, hist, 5)
	assert.Equal(t, 16, s.Evicted())
	assert.Equal(t, 20, s.TotalSteps())
	for i, h := range hist {
		assert.Equal(t, states[15+i], h)
	}
}

func TestObserverReceivesEveryStep(t *testing.T) {
	var seen []int
	obs := dynamo.ObserverFunc(func(rec dynamo.StepRecord) { seen = append(seen, rec.Step) })

	s, err := New(referenceConfig(0.1), WithNoise(noise.NewGaussian(2)), WithObserver(obs))
	require.NoError(t, err)

	_, err = s.Evolve(context.Background(), 0.25, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, seen)
}

func TestWithClassifier(t *testing.T) {
	cfg := referenceConfig(0.1)
	cfg.Regime = regime.Thresholds{}
	s, err := New(cfg, WithNoise(noise.NewGaussian(2)), WithClassifier(fixedClassifier(dynamo.RegimeVolatile)))
	require.NoError(t, err)
	assert.Equal(t, dynamo.RegimeVolatile, s.Current().Regime)
}

type fixedClassifier dynamo.Regime

func (f fixedClassifier) Classify(value, volatility float64) dynamo.Regime { return dynamo.Regime(f) }
