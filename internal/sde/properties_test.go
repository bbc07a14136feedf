package sde

import (
	"context"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/stochsim/internal/dynamo"
	"github.com/san-kum/stochsim/internal/noise"
)

func mustStepper(cfg Config, opts ...Option) *Stepper {
	s, err := New(cfg, opts...)
	Expect(err).NotTo(HaveOccurred())
	return s
}

func stepN(s *Stepper, n int) []dynamo.StepRecord {
	recs := make([]dynamo.StepRecord, n)
	for i := range recs {
		rec, err := s.Step()
		Expect(err).NotTo(HaveOccurred())
		recs[i] = rec
	}
	return recs
}

var _ = Describe("Stepper", func() {
	Describe("clamp invariant", func() {
		It("keeps every dimension in [0,1] under violent noise", func() {
			s := mustStepper(referenceConfig(3.0), WithNoise(noise.NewGaussian(11)))
			clampedAny := false
			for _, rec := range stepN(s, 500) {
				Expect(rec.Next.InUnitRange()).To(BeTrue(), "step %d: %v", rec.Step, rec.Next)
				clampedAny = clampedAny || rec.AnyClamped()
			}
			Expect(clampedAny).To(BeTrue())
			for _, h := range s.History() {
				Expect(h.State.InUnitRange()).To(BeTrue())
			}
		})
	})

	Describe("time monotonicity", func() {
		It("advances by exactly dt per step", func() {
			s := mustStepper(referenceConfig(0.3), WithNoise(noise.NewGaussian(5)))
			states, err := s.Evolve(context.Background(), 10, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(states).To(HaveLen(200))

			for i, st := range states {
				Expect(st.Time).To(BeNumerically("~", float64(i+1)*0.05, 1e-12))
				if i > 0 {
					Expect(st.Time - states[i-1].Time).To(BeNumerically("~", 0.05, 1e-12))
				}
			}
		})
	})

	Describe("zero-volatility determinism", func() {
		It("produces bit-identical trajectories regardless of noise", func() {
			a := mustStepper(referenceConfig(0), WithNoise(noise.NewGaussian(1)))
			b := mustStepper(referenceConfig(0), WithNoise(noise.NewGaussian(999)))

			sa, err := a.Evolve(context.Background(), 5, nil)
			Expect(err).NotTo(HaveOccurred())
			sb, err := b.Evolve(context.Background(), 5, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(sa).To(Equal(sb))
		})
	})

	Describe("seeded reproducibility", func() {
		It("replays identical step records for identical seeds", func() {
			a := mustStepper(referenceConfig(0.4), WithNoise(noise.NewGaussian(77)))
			b := mustStepper(referenceConfig(0.4), WithNoise(noise.NewGaussian(77)))
			Expect(stepN(a, 100)).To(Equal(stepN(b, 100)))
		})

		It("diverges for different seeds", func() {
			a := mustStepper(referenceConfig(0.4), WithNoise(noise.NewGaussian(77)))
			b := mustStepper(referenceConfig(0.4), WithNoise(noise.NewGaussian(78)))
			Expect(stepN(a, 10)).NotTo(Equal(stepN(b, 10)))
		})

		It("replays a recorded noise sequence exactly", func() {
			a := mustStepper(referenceConfig(0.4), WithNoise(noise.NewGaussian(3)))
			recs := stepN(a, 20)

			var draws []float64
			for _, r := range recs {
				draws = append(draws, r.Noise...)
			}
			b := mustStepper(referenceConfig(0.4), WithNoise(noise.NewSequence(draws...)))
			Expect(stepN(b, 20)).To(Equal(recs))
		})
	})

	Describe("zero-noise drift", func() {
		It("moves c monotonically toward its equilibrium", func() {
			s := mustStepper(referenceConfig(0), WithNoise(noise.NewGaussian(1)))
			prevGap := math.Abs(s.Current().State[2] - 0.5)
			for _, rec := range stepN(s, 10) {
				c := rec.Next[2]
				Expect(c).To(BeNumerically(">=", 0))
				Expect(c).To(BeNumerically("<=", 1))
				gap := math.Abs(c - 0.5)
				Expect(gap).To(BeNumerically("<=", prevGap))
				prevGap = gap
			}
		})

		It("approaches equilibrium strictly from an off-equilibrium start", func() {
			cfg := referenceConfig(0)
			cfg.Initial = dynamo.State{0.5, 0.3, 0.9, 0.4, 0.2, 0.6}
			s := mustStepper(cfg, WithNoise(noise.NewGaussian(1)))

			prev := 0.9
			for _, rec := range stepN(s, 10) {
				Expect(rec.Next[2]).To(BeNumerically("<", prev))
				Expect(rec.Next[2]).To(BeNumerically(">", 0.5))
				Expect(rec.Drift[2]).To(BeNumerically("~", 0.1*(0.5-prev), 1e-15))
				prev = rec.Next[2]
			}
			Expect(prev).To(BeNumerically("~", 0.5+0.4*math.Pow(1-0.1*0.05, 10), 1e-12))
		})
	})

	Describe("identity correlation", func() {
		It("passes independent draws through unchanged", func() {
			cfg := referenceConfig(0.2)
			cfg.Correlation = identity(6)
			s := mustStepper(cfg, WithNoise(noise.NewGaussian(21)))

			sqrtDt := math.Sqrt(cfg.Dt)
			for _, rec := range stepN(s, 25) {
				for i := range rec.Noise {
					Expect(rec.Wiener[i]).To(Equal(rec.Noise[i] * sqrtDt))
				}
			}
		})
	})

	Describe("history", func() {
		It("only grows until reset", func() {
			s := mustStepper(referenceConfig(0.2), WithNoise(noise.NewGaussian(8)))
			last := s.HistoryLen()
			for i := 0; i < 30; i++ {
				_, err := s.Step()
				Expect(err).NotTo(HaveOccurred())
				Expect(s.HistoryLen()).To(Equal(last + 1))
				last = s.HistoryLen()
			}
			Expect(s.Reset(dynamo.State{0.5, 0.5, 0.5, 0.5, 0.5, 0.5})).To(Succeed())
			Expect(s.HistoryLen()).To(Equal(1))
		})
	})
})
