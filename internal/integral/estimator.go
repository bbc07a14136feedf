// Package integral approximates stochastic integrals along a recorded
// trajectory.
//
// The engine does not keep the Brownian path itself, so Ito and Stratonovich
// reconstruct dW from the change of a single proxy dimension:
//
//	dW_i ≈ (x_i[proxy] - x_{i-1}[proxy]) / sqrt(dt)
//
// This is an approximation, not the exact integral. The proxy increment also
// contains the drift term and is distorted whenever the clamp engages, and
// any correlation with other dimensions is ignored. FromSteps avoids the
// reconstruction by reading the Wiener increments stored in StepRecords.
package integral

import (
	"math"

	"github.com/san-kum/stochsim/internal/dynamo"
)

// Integrand is evaluated on the state at the start of each interval.
type Integrand func(x dynamo.State) float64

type Estimator struct {
	proxy  int
	sqrtDt float64
}

// New returns an estimator using dimension proxy as the noise proxy for a
// trajectory sampled every dt.
func New(proxy int, dt float64) (*Estimator, error) {
	if proxy < 0 {
		return nil, dynamo.Configf("proxy", "must be >= 0, got %d", proxy)
	}
	if math.IsNaN(dt) || math.IsInf(dt, 0) || dt <= 0 {
		return nil, dynamo.Configf("dt", "must be positive, got %v", dt)
	}
	return &Estimator{proxy: proxy, sqrtDt: math.Sqrt(dt)}, nil
}

func (e *Estimator) Proxy() int { return e.proxy }

// Ito sums f(x_{i-1}) * dW_i with the left-endpoint rule. Fewer than two
// states yield 0. A proxy beyond the state dimension is a mismatch error.
func (e *Estimator) Ito(history []dynamo.EvolutionState, f Integrand) (float64, error) {
	return e.sum(history, f, false)
}

// Stratonovich evaluates f at the midpoint of each interval.
func (e *Estimator) Stratonovich(history []dynamo.EvolutionState, f Integrand) (float64, error) {
	return e.sum(history, f, true)
}

func (e *Estimator) sum(history []dynamo.EvolutionState, f Integrand, midpoint bool) (float64, error) {
	if f == nil {
		return 0, dynamo.Configf("integrand", "an integrand is required")
	}
	if len(history) < 2 {
		return 0, nil
	}
	if e.proxy >= len(history[0].State) {
		return 0, dynamo.Mismatchf("proxy", "index %d outside state of %d dimensions", e.proxy, len(history[0].State))
	}

	total := 0.0
	for i := 1; i < len(history); i++ {
		prev, cur := history[i-1].State, history[i].State
		dW := (cur[e.proxy] - prev[e.proxy]) / e.sqrtDt

		x := prev
		if midpoint {
			x = make(dynamo.State, len(prev))
			for d := range prev {
				x[d] = 0.5 * (prev[d] + cur[d])
			}
		}
		total += f(x) * dW
	}
	return total, nil
}

// FromSteps sums f(Previous) * Wiener[proxy] over recorded steps, using the
// exact correlated increments drawn by the engine.
func (e *Estimator) FromSteps(records []dynamo.StepRecord, f Integrand) (float64, error) {
	if f == nil {
		return 0, dynamo.Configf("integrand", "an integrand is required")
	}
	total := 0.0
	for _, rec := range records {
		if e.proxy >= len(rec.Wiener) {
			return 0, dynamo.Mismatchf("proxy", "index %d outside state of %d dimensions", e.proxy, len(rec.Wiener))
		}
		total += f(rec.Previous) * rec.Wiener[e.proxy]
	}
	return total, nil
}
