// Package sde advances a bounded state vector with the Euler-Maruyama scheme
//
//	X[d](t+dt) = clamp01(X[d](t) + mu[d](X,t)*dt + sigma[d]*(L*Z)[d]*sqrt(dt))
//
// where mu is the drift model, sigma the volatility vector, L the Cholesky
// factor of the correlation matrix and Z a vector of independent N(0,1)
// draws. A Stepper is single-threaded and owns its state and history.
package sde

import (
	"context"
	"fmt"
	"math"

	"github.com/san-kum/stochsim/internal/dynamo"
	"github.com/san-kum/stochsim/internal/linalg"
	"github.com/san-kum/stochsim/internal/regime"
	"github.com/sirupsen/logrus"
)

// horizonTol absorbs rounding in step*dt when comparing against a horizon.
const horizonTol = 1e-9

// Progress is passed to the Evolve callback after every step.
type Progress struct {
	Step    int
	Time    float64
	Horizon float64
	State   dynamo.EvolutionState
}

// ProgressFunc is called between steps; returning false stops the run.
type ProgressFunc func(p Progress) bool

type Stepper struct {
	names      []string
	dt         float64
	sqrtDt     float64
	factor     *linalg.Factor
	vol        []float64
	drift      dynamo.DriftModel
	cond       int
	classifier dynamo.Classifier
	noise      dynamo.NoiseSource
	observers  []dynamo.Observer
	metrics    []dynamo.Metric
	log        *logrus.Entry

	current  dynamo.EvolutionState
	history  *history
	steps    int
	warnedAt int
}

func New(cfg Config, opts ...Option) (*Stepper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	n := cfg.Dim()
	s := &Stepper{
		names:   append([]string(nil), cfg.Names...),
		dt:      cfg.Dt,
		sqrtDt:  math.Sqrt(cfg.Dt),
		vol:     append([]float64(nil), cfg.Volatility...),
		drift:   cfg.Drift,
		cond:    cfg.Condition,
		history: newHistory(cfg.HistoryLimit),
		log:     logrus.WithField("component", "sde"),
	}
	if len(s.names) == 0 {
		s.names = defaultNames(n)
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.noise == nil {
		return nil, dynamo.Configf("noise", "a noise source is required")
	}
	if s.factor == nil {
		f, err := linalg.Factorize(cfg.Correlation)
		if err != nil {
			return nil, err
		}
		s.factor = f
	} else if s.factor.Dim() != n {
		return nil, dynamo.Mismatchf("correlation", "factor has %d dimensions, state has %d", s.factor.Dim(), n)
	}
	if s.classifier == nil {
		c, err := regime.New(cfg.Regime)
		if err != nil {
			return nil, err
		}
		s.classifier = c
	}

	s.start(cfg.Initial)
	s.log.WithFields(logrus.Fields{
		"dims":          n,
		"dt":            s.dt,
		"history_limit": cfg.HistoryLimit,
		"regime":        s.current.Regime,
	}).Debug("stepper initialized")
	return s, nil
}

func (s *Stepper) start(x0 dynamo.State) {
	s.steps = 0
	s.warnedAt = 0
	s.current = dynamo.EvolutionState{
		Time:       0,
		State:      x0.Clone(),
		Volatility: s.vol,
		Regime:     s.classify(x0),
	}
	s.history.reset()
	s.history.push(s.current)
	for _, m := range s.metrics {
		m.Reset()
	}
}

func (s *Stepper) classify(x dynamo.State) dynamo.Regime {
	return s.classifier.Classify(x[s.cond], s.vol[s.cond])
}

// Step performs one Euler-Maruyama update and returns its audit record.
// On a non-finite update the engine is left untouched and a
// *dynamo.SimulationError wrapping dynamo.ErrInvalidState is returned.
func (s *Stepper) Step() (dynamo.StepRecord, error) {
	n := len(s.vol)
	prev := s.current.State
	t := s.current.Time

	z := make([]float64, n)
	s.noise.Normal(z)

	w := make([]float64, n)
	s.factor.Correlate(w, z)
	for i := range w {
		w[i] *= s.sqrtDt
	}

	mu := s.drift.Drift(prev.Clone(), t)
	if len(mu) != n {
		return dynamo.StepRecord{}, &dynamo.SimulationError{
			Step: s.steps + 1, Time: t, State: prev.Clone(),
			Wrapped: fmt.Errorf("drift returned %d values for %d dimensions: %w", len(mu), n, dynamo.ErrDimensionMismatch),
		}
	}

	next := make(dynamo.State, n)
	diffusion := make([]float64, n)
	clamped := make([]bool, n)
	for d := 0; d < n; d++ {
		diffusion[d] = s.vol[d] * w[d]
		raw := prev[d] + mu[d]*s.dt + diffusion[d]
		if math.IsNaN(raw) || math.IsInf(raw, 0) {
			return dynamo.StepRecord{}, &dynamo.SimulationError{
				Step: s.steps + 1, Time: t, State: prev.Clone(),
				Wrapped: fmt.Errorf("dimension %s: %w", s.names[d], dynamo.ErrInvalidState),
			}
		}
		next[d] = dynamo.Clamp01(raw)
		clamped[d] = next[d] != raw
	}

	s.steps++
	s.current = dynamo.EvolutionState{
		Time:       float64(s.steps) * s.dt,
		State:      next,
		Volatility: s.vol,
		Regime:     s.classify(next),
	}
	if s.history.push(s.current) && s.warnedAt == 0 {
		s.warnedAt = s.steps
		s.log.WithField("limit", s.history.limit).Info("history limit reached, evicting oldest states")
	}

	rec := dynamo.StepRecord{
		Step:      s.steps,
		Time:      s.current.Time,
		Dt:        s.dt,
		Previous:  prev.Clone(),
		Drift:     mu,
		Diffusion: diffusion,
		Noise:     z,
		Wiener:    w,
		Next:      next.Clone(),
		Clamped:   clamped,
		Regime:    s.current.Regime,
	}
	for _, m := range s.metrics {
		m.Observe(rec)
	}
	for _, obs := range s.observers {
		obs.OnStep(rec)
	}
	return rec, nil
}

// Evolve steps until the elapsed time reaches horizon and returns every state
// produced by this call, in order. The context is checked and onProgress (if
// non-nil) is invoked between steps. When the run stops early the states
// produced so far are returned together with the error.
func (s *Stepper) Evolve(ctx context.Context, horizon float64, onProgress ProgressFunc) ([]dynamo.EvolutionState, error) {
	if math.IsNaN(horizon) || math.IsInf(horizon, 0) || horizon < 0 {
		return nil, dynamo.Configf("horizon", "must be finite and >= 0, got %v", horizon)
	}

	out := make([]dynamo.EvolutionState, 0, s.stepsUntil(horizon))
	for s.Elapsed() < horizon-horizonTol*s.dt {
		select {
		case <-ctx.Done():
			s.log.WithField("t", s.Elapsed()).Info("evolve canceled by context")
			return out, fmt.Errorf("evolve stopped at t=%.4f: %w", s.Elapsed(), ctx.Err())
		default:
		}

		if _, err := s.Step(); err != nil {
			return out, err
		}
		cur := s.Current()
		out = append(out, cur)

		if onProgress != nil && !onProgress(Progress{Step: s.steps, Time: cur.Time, Horizon: horizon, State: cur}) {
			s.log.WithField("t", cur.Time).Info("evolve stopped by progress callback")
			return out, dynamo.ErrCanceled
		}
	}
	return out, nil
}

func (s *Stepper) stepsUntil(horizon float64) int {
	remaining := math.Ceil((horizon-s.Elapsed())/s.dt - horizonTol)
	switch {
	case remaining <= 0:
		return 0
	case remaining > 1<<16:
		return 1 << 16
	default:
		return int(remaining)
	}
}

// Reset discards all history and restarts from x0 at t=0.
func (s *Stepper) Reset(x0 dynamo.State) error {
	if len(x0) != len(s.vol) {
		return dynamo.Mismatchf("initial", "has %d entries, engine has %d dimensions", len(x0), len(s.vol))
	}
	if !x0.IsValid() || !x0.InUnitRange() {
		return dynamo.Configf("initial", "every component must lie in [0,1], got %v", x0)
	}
	s.start(x0)
	s.log.Debug("stepper reset")
	return nil
}

// Current returns a copy of the latest state.
func (s *Stepper) Current() dynamo.EvolutionState { return s.current.Clone() }

// History returns a copy of the retained states, oldest first. The first
// entry is the t=0 state unless a history limit has evicted it.
func (s *Stepper) History() []dynamo.EvolutionState { return s.history.snapshot() }

func (s *Stepper) HistoryLen() int { return s.history.len() }

// Evicted counts states dropped by the history limit since the last reset.
func (s *Stepper) Evicted() int { return s.history.evicted }

func (s *Stepper) TotalSteps() int { return s.steps }

func (s *Stepper) Elapsed() float64 { return s.current.Time }

func (s *Stepper) Dt() float64 { return s.dt }

func (s *Stepper) Dim() int { return len(s.vol) }

func (s *Stepper) ConditionIndex() int { return s.cond }

func (s *Stepper) Names() []string { return append([]string(nil), s.names...) }

func (s *Stepper) Volatility() []float64 { return append([]float64(nil), s.vol...) }

// Factor returns the shared, immutable correlation factor.
func (s *Stepper) Factor() *linalg.Factor { return s.factor }

// Drift returns the drift model, e.g. to tune a dynamo.Configurable at runtime.
func (s *Stepper) Drift() dynamo.DriftModel { return s.drift }

// Metrics returns the current value of every registered metric.
func (s *Stepper) Metrics() map[string]float64 {
	out := make(map[string]float64, len(s.metrics))
	for _, m := range s.metrics {
		out[m.Name()] = m.Value()
	}
	return out
}
