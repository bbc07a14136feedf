// Package noise provides seedable standard-normal sources for the stepper.
//
// A source is owned by exactly one Stepper. None of the types here are safe
// for concurrent use.
package noise

import (
	"fmt"
	"hash/fnv"
	"math/rand"
)

// Gaussian draws independent N(0,1) samples from a private seeded generator.
// Two Gaussians built from the same seed produce the same sequence.
type Gaussian struct {
	seed int64
	rng  *rand.Rand
}

func NewGaussian(seed int64) *Gaussian {
	return &Gaussian{seed: seed, rng: rand.New(rand.NewSource(seed))}
}

func (g *Gaussian) Normal(dst []float64) {
	for i := range dst {
		dst[i] = g.rng.NormFloat64()
	}
}

func (g *Gaussian) Seed() int64 { return g.seed }

// Antithetic emits a fresh draw vector z followed by -z, halving the variance
// of ensemble means for drift terms that are close to linear.
type Antithetic struct {
	base    *Gaussian
	pending []float64
	mirror  bool
}

func NewAntithetic(seed int64) *Antithetic {
	return &Antithetic{base: NewGaussian(seed)}
}

func (a *Antithetic) Normal(dst []float64) {
	if a.mirror && len(a.pending) == len(dst) {
		for i, v := range a.pending {
			dst[i] = -v
		}
		a.mirror = false
		return
	}
	a.base.Normal(dst)
	a.pending = append(a.pending[:0], dst...)
	a.mirror = true
}

// Sequence replays a fixed list of draws, wrapping around when exhausted.
// Useful for reproducing a recorded run exactly.
type Sequence struct {
	draws []float64
	pos   int
}

func NewSequence(draws ...float64) *Sequence {
	return &Sequence{draws: append([]float64(nil), draws...)}
}

func (s *Sequence) Normal(dst []float64) {
	if len(s.draws) == 0 {
		for i := range dst {
			dst[i] = 0
		}
		return
	}
	for i := range dst {
		dst[i] = s.draws[s.pos]
		s.pos = (s.pos + 1) % len(s.draws)
	}
}

// DeriveSeed returns a deterministic seed for ensemble member idx. Member
// seeds are isolated from each other: master XOR fnv1a64("member_<idx>").
func DeriveSeed(master int64, idx int) int64 {
	return master ^ fnv1a64(fmt.Sprintf("member_%d", idx))
}

func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
