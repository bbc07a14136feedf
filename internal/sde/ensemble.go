package sde

import (
	"context"
	"fmt"

	"github.com/san-kum/stochsim/internal/dynamo"
	"github.com/san-kum/stochsim/internal/linalg"
	"github.com/san-kum/stochsim/internal/noise"
)

// NoiseFactory builds the noise source for one ensemble member.
type NoiseFactory func(seed int64) dynamo.NoiseSource

// Ensemble runs independently seeded Steppers over one configuration in
// parallel. Members share the correlation factor and the drift model, so the
// drift model must be safe for concurrent reads.
type Ensemble struct {
	cfg      Config
	factor   *linalg.Factor
	members  int
	seed     int64
	newNoise NoiseFactory
}

type MemberResult struct {
	Index   int
	Seed    int64
	Final   dynamo.EvolutionState
	History []dynamo.EvolutionState
	Err     error
}

func NewEnsemble(cfg Config, members int, seed int64, newNoise NoiseFactory) (*Ensemble, error) {
	if members < 1 {
		return nil, dynamo.Configf("members", "must be >= 1, got %d", members)
	}
	if newNoise == nil {
		newNoise = func(seed int64) dynamo.NoiseSource { return noise.NewGaussian(seed) }
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	f, err := linalg.Factorize(cfg.Correlation)
	if err != nil {
		return nil, err
	}
	return &Ensemble{cfg: cfg, factor: f, members: members, seed: seed, newNoise: newNoise}, nil
}

// Run evolves every member to horizon. Member failures are reported in the
// member's result; the returned error is the first of them.
func (e *Ensemble) Run(ctx context.Context, horizon float64) ([]MemberResult, error) {
	results := make([]MemberResult, e.members)

	dynamo.ParallelFor(e.members, 1, func(start, end int) {
		for i := start; i < end; i++ {
			results[i] = e.runMember(ctx, i, horizon)
		}
	})

	for _, r := range results {
		if r.Err != nil {
			return results, fmt.Errorf("member %d: %w", r.Index, r.Err)
		}
	}
	return results, nil
}

func (e *Ensemble) runMember(ctx context.Context, idx int, horizon float64) MemberResult {
	seed := noise.DeriveSeed(e.seed, idx)
	res := MemberResult{Index: idx, Seed: seed}

	s, err := New(e.cfg, WithFactor(e.factor), WithNoise(e.newNoise(seed)))
	if err != nil {
		res.Err = err
		return res
	}
	_, res.Err = s.Evolve(ctx, horizon, nil)
	res.Final = s.Current()
	res.History = s.History()
	return res
}

// MeanFinal averages the final state of every successful member.
func MeanFinal(results []MemberResult) dynamo.State {
	var mean dynamo.State
	count := 0
	for _, r := range results {
		if r.Err != nil || len(r.Final.State) == 0 {
			continue
		}
		if mean == nil {
			mean = make(dynamo.State, len(r.Final.State))
		}
		for i, v := range r.Final.State {
			mean[i] += v
		}
		count++
	}
	for i := range mean {
		mean[i] /= float64(count)
	}
	return mean
}

// RegimeCounts tallies the final regime of every successful member.
func RegimeCounts(results []MemberResult) map[dynamo.Regime]int {
	counts := make(map[dynamo.Regime]int)
	for _, r := range results {
		if r.Err == nil {
			counts[r.Final.Regime]++
		}
	}
	return counts
}
