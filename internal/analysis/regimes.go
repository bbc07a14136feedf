package analysis

import (
	"sort"

	"github.com/san-kum/stochsim/internal/dynamo"
)

type Transition struct {
	From, To dynamo.Regime
}

type RegimeSummary struct {
	States int
	// Occupancy is the fraction of states carrying each regime.
	Occupancy   map[dynamo.Regime]float64
	Transitions map[Transition]int
	// MeanDwell is the mean length, in simulated time, of an uninterrupted
	// run of one regime.
	MeanDwell map[dynamo.Regime]float64
	Final     dynamo.Regime
}

// SummarizeRegimes walks the history once. Sample spacing is taken from the
// first two entries, so the history must come from a single stepper.
func SummarizeRegimes(history []dynamo.EvolutionState) RegimeSummary {
	sum := RegimeSummary{
		States:      len(history),
		Occupancy:   make(map[dynamo.Regime]float64),
		Transitions: make(map[Transition]int),
		MeanDwell:   make(map[dynamo.Regime]float64),
	}
	if len(history) == 0 {
		return sum
	}

	spacing := 0.0
	if len(history) > 1 {
		spacing = history[1].Time - history[0].Time
	}

	counts := make(map[dynamo.Regime]int)
	runs := make(map[dynamo.Regime]int)
	runLen := make(map[dynamo.Regime]int)

	cur := history[0].Regime
	length := 0
	for i, s := range history {
		counts[s.Regime]++
		if i > 0 && s.Regime != cur {
			sum.Transitions[Transition{From: cur, To: s.Regime}]++
			runs[cur]++
			runLen[cur] += length
			cur = s.Regime
			length = 0
		}
		length++
	}
	runs[cur]++
	runLen[cur] += length

	n := float64(len(history))
	for r, c := range counts {
		sum.Occupancy[r] = float64(c) / n
	}
	for r, k := range runs {
		sum.MeanDwell[r] = float64(runLen[r]) / float64(k) * spacing
	}
	sum.Final = history[len(history)-1].Regime
	return sum
}

// TransitionList returns the transitions sorted by descending count, then by
// label.
func (s RegimeSummary) TransitionList() []TransitionCount {
	out := make([]TransitionCount, 0, len(s.Transitions))
	for t, c := range s.Transitions {
		out = append(out, TransitionCount{Transition: t, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}

type TransitionCount struct {
	Transition
	Count int
}

type ExcursionStats struct {
	Min, Max, Mean, Final float64
	// TimeAtMin and TimeAtMax are the first times the extremes were seen.
	TimeAtMin, TimeAtMax float64
}

// Excursion reports the range of one dimension over the history. ok is false
// when the history is empty or dim is out of range.
func Excursion(history []dynamo.EvolutionState, dim int) (stats ExcursionStats, ok bool) {
	if len(history) == 0 || dim < 0 || dim >= len(history[0].State) {
		return ExcursionStats{}, false
	}

	first := history[0]
	stats.Min, stats.Max = first.State[dim], first.State[dim]
	stats.TimeAtMin, stats.TimeAtMax = first.Time, first.Time
	total := 0.0
	for _, s := range history {
		v := s.State[dim]
		total += v
		if v < stats.Min {
			stats.Min, stats.TimeAtMin = v, s.Time
		}
		if v > stats.Max {
			stats.Max, stats.TimeAtMax = v, s.Time
		}
	}
	stats.Mean = total / float64(len(history))
	stats.Final = history[len(history)-1].State[dim]
	return stats, true
}
