package analysis

import (
	"strings"
	"testing"

	"github.com/san-kum/stochsim/internal/dynamo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trajectory(regimes []dynamo.Regime, values []float64) []dynamo.EvolutionState {
	out := make([]dynamo.EvolutionState, len(regimes))
	for i, r := range regimes {
		out[i] = dynamo.EvolutionState{
			Time:   float64(i) * 0.5,
			State:  dynamo.State{values[i], 1 - values[i]},
			Regime: r,
		}
	}
	return out
}

func TestSummarizeRegimes(t *testing.T) {
	const (
		s = dynamo.RegimeStable
		c = dynamo.RegimeCrisis
		v = dynamo.RegimeVolatile
	)
	h := trajectory(
		[]dynamo.Regime{s, s, c, c, c, s, v, v},
		[]float64{0.5, 0.5, 0.1, 0.1, 0.1, 0.5, 0.8, 0.8},
	)

	sum := SummarizeRegimes(h)
	assert.Equal(t, 8, sum.States)
	assert.InDelta(t, 3.0/8, sum.Occupancy[s], 1e-12)
	assert.InDelta(t, 3.0/8, sum.Occupancy[c], 1e-12)
	assert.InDelta(t, 2.0/8, sum.Occupancy[v], 1e-12)

	assert.Equal(t, 1, sum.Transitions[Transition{From: s, To: c}])
	assert.Equal(t, 1, sum.Transitions[Transition{From: c, To: s}])
	assert.Equal(t, 1, sum.Transitions[Transition{From: s, To: v}])
	assert.Len(t, sum.Transitions, 3)

	// stable runs of 2 and 1 states, spacing 0.5
	assert.InDelta(t, 0.75, sum.MeanDwell[s], 1e-12)
	assert.InDelta(t, 1.5, sum.MeanDwell[c], 1e-12)
	assert.InDelta(t, 1.0, sum.MeanDwell[v], 1e-12)
	assert.Equal(t, v, sum.Final)

	list := sum.TransitionList()
	require.Len(t, list, 3)
	assert.Equal(t, Transition{From: c, To: s}, list[0].Transition)
}

func TestSummarizeRegimesEmpty(t *testing.T) {
	sum := SummarizeRegimes(nil)
	assert.Equal(t, 0, sum.States)
	assert.Empty(t, sum.Occupancy)
	assert.Equal(t, dynamo.RegimeUnknown, sum.Final)
}

func TestExcursion(t *testing.T) {
	h := trajectory(
		[]dynamo.Regime{"", "", "", ""},
		[]float64{0.4, 0.9, 0.1, 0.6},
	)

	ex, ok := Excursion(h, 0)
	require.True(t, ok)
	assert.Equal(t, 0.1, ex.Min)
	assert.Equal(t, 0.9, ex.Max)
	assert.Equal(t, 1.0, ex.TimeAtMin)
	assert.Equal(t, 0.5, ex.TimeAtMax)
	assert.InDelta(t, 0.5, ex.Mean, 1e-12)
	assert.Equal(t, 0.6, ex.Final)

	_, ok = Excursion(h, 2)
	assert.False(t, ok)
	_, ok = Excursion(nil, 0)
	assert.False(t, ok)
}

func TestCrossings(t *testing.T) {
	h := trajectory(
		[]dynamo.Regime{"", "", "", ""},
		[]float64{0.2, 0.6, 0.6, 0.2},
	)

	times := Crossings(h, 0, 0.4)
	require.Len(t, times, 2)
	assert.InDelta(t, 0.25, times[0], 1e-12)
	assert.InDelta(t, 1.25, times[1], 1e-12)

	assert.Nil(t, Crossings(h[:1], 0, 0.4))
}

func TestPortrait(t *testing.T) {
	h := trajectory(
		[]dynamo.Regime{"", "", ""},
		[]float64{0, 0.5, 1},
	)

	p := Portrait(h, 0, 1)
	require.NotNil(t, p)
	require.Len(t, p.Points, 3)
	assert.Equal(t, Point{X: 1, Y: 0}, p.Points[2])

	art := p.ASCII(11, 5)
	lines := strings.Split(strings.TrimSuffix(art, "\n"), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "o", lines[0])
	assert.True(t, strings.HasSuffix(lines[4], "@"))
	assert.Contains(t, lines[2], "•")

	assert.Nil(t, Portrait(h, 0, 2))
}
