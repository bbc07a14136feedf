// Package convergence records a caller-supplied loss along a trajectory and
// summarizes how often it sat below a threshold.
package convergence

import (
	"context"
	"math"

	"github.com/san-kum/stochsim/internal/dynamo"
	"github.com/san-kum/stochsim/internal/sde"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
)

// LossFunc scores a state; lower is better.
type LossFunc func(x dynamo.State) float64

// Source is the part of *sde.Stepper the tracker reads.
type Source interface {
	Evolve(ctx context.Context, horizon float64, onProgress sde.ProgressFunc) ([]dynamo.EvolutionState, error)
	Current() dynamo.EvolutionState
	Volatility() []float64
	TotalSteps() int
	Elapsed() float64
	Dt() float64
}

type Tracker struct {
	src       Source
	threshold float64
	records   []dynamo.ConvergenceRecord
	log       *logrus.Entry
}

// New binds a tracker to src. threshold has no default: a state counts as
// converged when loss < threshold.
func New(src Source, threshold float64) (*Tracker, error) {
	if src == nil {
		return nil, dynamo.Configf("source", "a source is required")
	}
	if math.IsNaN(threshold) || math.IsInf(threshold, 0) {
		return nil, dynamo.Configf("convergence_threshold", "must be finite, got %v", threshold)
	}
	return &Tracker{
		src:       src,
		threshold: threshold,
		log:       logrus.WithField("component", "convergence"),
	}, nil
}

func (t *Tracker) Threshold() float64 { return t.threshold }

// Track drives the source to horizon and records every produced state. States
// produced before an early stop are still recorded.
func (t *Tracker) Track(ctx context.Context, loss LossFunc, horizon float64, onProgress sde.ProgressFunc) ([]dynamo.ConvergenceRecord, error) {
	if loss == nil {
		return nil, dynamo.Configf("loss", "a loss function is required")
	}
	states, err := t.src.Evolve(ctx, horizon, onProgress)
	recs, _ := t.Consume(loss, states)
	if err != nil {
		t.log.WithError(err).WithField("recorded", len(recs)).Warn("tracking stopped early")
	}
	return recs, err
}

// Consume records an already produced sequence of states and returns the new
// records.
func (t *Tracker) Consume(loss LossFunc, states []dynamo.EvolutionState) ([]dynamo.ConvergenceRecord, error) {
	if loss == nil {
		return nil, dynamo.Configf("loss", "a loss function is required")
	}
	start := len(t.records)
	for _, s := range states {
		l := loss(s.State.Clone())
		t.records = append(t.records, dynamo.ConvergenceRecord{
			Time:      s.Time,
			Loss:      l,
			State:     s.State.Clone(),
			Converged: l < t.threshold,
		})
	}
	return append([]dynamo.ConvergenceRecord(nil), t.records[start:]...), nil
}

func (t *Tracker) Records() []dynamo.ConvergenceRecord {
	out := make([]dynamo.ConvergenceRecord, len(t.records))
	for i, r := range t.records {
		r.State = r.State.Clone()
		out[i] = r
	}
	return out
}

func (t *Tracker) Reset() { t.records = nil }

// Stats summarizes the most recent Window records. When Sufficient is false
// the window-derived fields are zero; the engine fields are always set.
type Stats struct {
	Sufficient      bool    `json:"sufficient"`
	Window          int     `json:"window"`
	Records         int     `json:"records"`
	ConvergenceRate float64 `json:"convergence_rate"`
	MeanLoss        float64 `json:"mean_loss"`
	LastLoss        float64 `json:"last_loss"`
	// RealizedVolatility is the per-dimension sample standard deviation of
	// state increments in the window divided by sqrt(dt). Nil with fewer
	// than three records in the window.
	RealizedVolatility []float64 `json:"realized_volatility,omitempty"`
	// FirstConverged is the time of the first converged record, or -1.
	FirstConverged float64 `json:"first_converged"`

	MeanVolatility float64       `json:"mean_volatility"`
	Regime         dynamo.Regime `json:"regime"`
	ElapsedTime    float64       `json:"elapsed_time"`
	TotalSteps     int           `json:"total_steps"`
}

func (t *Tracker) Statistics(window int) Stats {
	st := Stats{
		Window:         window,
		Records:        len(t.records),
		FirstConverged: -1,
		MeanVolatility: stat.Mean(t.src.Volatility(), nil),
		Regime:         t.src.Current().Regime,
		ElapsedTime:    t.src.Elapsed(),
		TotalSteps:     t.src.TotalSteps(),
	}
	for _, r := range t.records {
		if r.Converged {
			st.FirstConverged = r.Time
			break
		}
	}
	if window <= 0 || len(t.records) == 0 || len(t.records) < window {
		return st
	}

	recent := t.records[len(t.records)-window:]
	losses := make([]float64, len(recent))
	converged := 0
	for i, r := range recent {
		losses[i] = r.Loss
		if r.Converged {
			converged++
		}
	}

	st.Sufficient = true
	st.ConvergenceRate = float64(converged) / float64(window)
	st.MeanLoss = stat.Mean(losses, nil)
	st.LastLoss = recent[len(recent)-1].Loss
	st.RealizedVolatility = realizedVolatility(recent, t.src.Dt())
	return st
}

func realizedVolatility(recs []dynamo.ConvergenceRecord, dt float64) []float64 {
	if len(recs) < 3 || dt <= 0 {
		return nil
	}
	dims := len(recs[0].State)
	out := make([]float64, dims)
	inc := make([]float64, len(recs)-1)
	for d := 0; d < dims; d++ {
		for i := 1; i < len(recs); i++ {
			inc[i-1] = recs[i].State[d] - recs[i-1].State[d]
		}
		out[d] = stat.StdDev(inc, nil) / math.Sqrt(dt)
	}
	return out
}
