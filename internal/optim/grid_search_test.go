package optim

import (
	"context"
	"testing"

	"github.com/san-kum/stochsim/internal/config"
	"github.com/san-kum/stochsim/internal/experiment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shortConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Duration = 0.5
	return cfg
}

func TestLinspace(t *testing.T) {
	assert.Equal(t, []float64{0, 0.5, 1}, Linspace(0, 1, 3))
	assert.Equal(t, []float64{2}, Linspace(2, 3, 1))
}

func TestNewGridSearchValidates(t *testing.T) {
	_, err := NewGridSearch([]string{"a"}, nil)
	assert.Error(t, err)
	_, err = NewGridSearch([]string{"a"}, [][]float64{{}})
	assert.Error(t, err)

	g, err := NewGridSearch([]string{"a", "b"}, [][]float64{{1, 2}, {1, 2, 3}})
	require.NoError(t, err)
	assert.Equal(t, 6, g.Points())
}

func TestGetObjective(t *testing.T) {
	_, err := GetObjective("mean_loss")
	assert.NoError(t, err)

	fn, err := GetObjective("metric:clamp_rate")
	require.NoError(t, err)
	assert.Equal(t, 0.25, fn(&experiment.Result{Metrics: map[string]float64{"clamp_rate": 0.25}}))

	_, err = GetObjective("metric:")
	assert.Error(t, err)
}

func TestSearchFindsMinimum(t *testing.T) {
	g, err := NewGridSearch([]string{"cond_neutral"}, [][]float64{{-0.5, 0, 0.5}})
	require.NoError(t, err)

	cfg := shortConfig()
	for i := range cfg.Dimensions {
		*cfg.Dimensions[i].Volatility = 0
	}

	// scores the final condition level, so the most negative rate wins
	objective := func(res *experiment.Result) float64 {
		return res.States[len(res.States)-1].State[3]
	}
	best, score, evals, err := g.Search(context.Background(), cfg, objective)
	require.NoError(t, err)

	assert.Len(t, evals, 3)
	assert.Equal(t, -0.5, best["cond_neutral"])
	for _, ev := range evals {
		assert.GreaterOrEqual(t, ev.Score, score)
	}
}

func TestSearchSkipsFailedPoints(t *testing.T) {
	g, err := NewGridSearch([]string{"rate_0"}, [][]float64{{-1, 0.5}})
	require.NoError(t, err)

	best, _, evals, err := g.Search(context.Background(), shortConfig(), MeanLoss)
	require.NoError(t, err)
	require.Len(t, evals, 2)
	assert.Error(t, evals[0].Err)
	assert.Equal(t, 0.5, best["rate_0"])
}

func TestSearchCanceled(t *testing.T) {
	g, err := NewGridSearch([]string{"rate_0"}, [][]float64{{0.1, 0.2}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, evals, err := g.Search(ctx, shortConfig(), MeanLoss)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, evals)
}
