// Package optim searches drift calibrations for the one that minimizes an
// objective over a full run.
package optim

import (
	"context"
	"fmt"
	"math"

	"github.com/san-kum/stochsim/internal/config"
	"github.com/san-kum/stochsim/internal/experiment"
	"github.com/sirupsen/logrus"
)

// Objective scores a finished run; lower is better.
type Objective func(res *experiment.Result) float64

// MeanLoss scores by the mean convergence loss over the statistics window.
func MeanLoss(res *experiment.Result) float64 { return res.Stats.MeanLoss }

// Divergence scores by the fraction of window records that did not converge.
func Divergence(res *experiment.Result) float64 { return 1 - res.Stats.ConvergenceRate }

// MetricObjective scores by a named stepper metric, e.g. "clamp_rate".
func MetricObjective(name string) Objective {
	return func(res *experiment.Result) float64 {
		v, ok := res.Metrics[name]
		if !ok {
			return math.Inf(1)
		}
		return v
	}
}

// Objectives lists the objectives selectable by name.
var Objectives = map[string]Objective{
	"mean_loss":  MeanLoss,
	"divergence": Divergence,
}

// GetObjective resolves a built-in objective or a "metric:<name>" objective.
func GetObjective(name string) (Objective, error) {
	if fn, ok := Objectives[name]; ok {
		return fn, nil
	}
	const prefix = "metric:"
	if len(name) > len(prefix) && name[:len(prefix)] == prefix {
		return MetricObjective(name[len(prefix):]), nil
	}
	return nil, fmt.Errorf("unknown objective: %s", name)
}

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
	log        *logrus.Entry
}

func NewGridSearch(params []string, ranges [][]float64) (*GridSearch, error) {
	if len(params) != len(ranges) {
		return nil, fmt.Errorf("grid search: %d params but %d ranges", len(params), len(ranges))
	}
	for i, r := range ranges {
		if len(r) == 0 {
			return nil, fmt.Errorf("grid search: empty range for %s", params[i])
		}
	}
	return &GridSearch{
		paramNames: params,
		ranges:     ranges,
		log:        logrus.WithField("component", "optim"),
	}, nil
}

// Points is the number of grid points the search will evaluate.
func (g *GridSearch) Points() int {
	n := 1
	for _, r := range g.ranges {
		n *= len(r)
	}
	return n
}

type Evaluation struct {
	Params map[string]float64
	Score  float64
	Err    error
}

// Search runs base once per grid point and returns the best parameters and
// every evaluation in grid order. Points whose run fails are recorded with
// their error and skipped for the optimum.
func (g *GridSearch) Search(ctx context.Context, base *config.Config, objective Objective) (map[string]float64, float64, []Evaluation, error) {
	best := math.Inf(1)
	var bestParams map[string]float64
	evals := make([]Evaluation, 0, g.Points())

	err := g.searchRecursive(ctx, 0, make(map[string]float64), func(params map[string]float64) {
		score, err := evaluate(ctx, base, params, objective)
		evals = append(evals, Evaluation{Params: params, Score: score, Err: err})
		if err != nil {
			g.log.WithError(err).WithField("params", params).Debug("grid point failed")
			return
		}
		if score < best {
			best = score
			bestParams = params
		}
	})
	if err != nil {
		return bestParams, best, evals, err
	}
	if bestParams == nil {
		return nil, best, evals, fmt.Errorf("grid search: every point failed")
	}
	return bestParams, best, evals, nil
}

func (g *GridSearch) searchRecursive(ctx context.Context, depth int, current map[string]float64, visit func(map[string]float64)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if depth == len(g.paramNames) {
		visit(current)
		return nil
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		newParams := make(map[string]float64, len(current)+1)
		for k, v := range current {
			newParams[k] = v
		}
		newParams[paramName] = val

		if err := g.searchRecursive(ctx, depth+1, newParams, visit); err != nil {
			return err
		}
	}
	return nil
}

func evaluate(ctx context.Context, base *config.Config, params map[string]float64, objective Objective) (float64, error) {
	exp := experiment.New(base.Clone(), nil)
	if err := exp.Setup(); err != nil {
		return 0, err
	}
	if err := exp.Tune(params); err != nil {
		return 0, err
	}
	res, err := exp.Run(ctx, nil)
	if err != nil {
		return 0, err
	}
	return objective(res), nil
}

// Linspace returns n evenly spaced values from lo to hi inclusive.
func Linspace(lo, hi float64, n int) []float64 {
	if n <= 1 {
		return []float64{lo}
	}
	out := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	out[n-1] = hi
	return out
}
