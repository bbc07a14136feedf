// Package experiment assembles a config into a running engine: noise source,
// stepper, metrics, convergence tracker and integral estimate.
package experiment

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/san-kum/stochsim/internal/analysis"
	"github.com/san-kum/stochsim/internal/config"
	"github.com/san-kum/stochsim/internal/convergence"
	"github.com/san-kum/stochsim/internal/dynamo"
	"github.com/san-kum/stochsim/internal/integral"
	"github.com/san-kum/stochsim/internal/sde"
	"github.com/sirupsen/logrus"
)

type Result struct {
	Names       []string
	States      []dynamo.EvolutionState
	Convergence []dynamo.ConvergenceRecord
	Stats       convergence.Stats
	Metrics     map[string]float64
	Regimes     analysis.RegimeSummary
	// Ito integrates the condition dimension against increments
	// reconstructed from the history; ItoExact uses the recorded Wiener
	// increments instead.
	Ito      float64
	ItoExact float64
	Wall     time.Duration
}

type Experiment struct {
	cfg      *config.Config
	registry *Registry
	stepper  *sde.Stepper
	tracker  *convergence.Tracker
	loss     convergence.LossFunc
	steps    []dynamo.StepRecord
	log      *logrus.Entry
}

func New(cfg *config.Config, registry *Registry) *Experiment {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Experiment{
		cfg:      cfg,
		registry: registry,
		log:      logrus.WithField("component", "experiment"),
	}
}

// Setup builds the engine. Extra options are applied after the registry's
// noise source and default metrics, so callers can override either.
func (e *Experiment) Setup(opts ...sde.Option) error {
	ec, err := e.cfg.ToEngine()
	if err != nil {
		return err
	}
	src, err := e.registry.GetNoise(e.cfg.Noise, e.cfg.Seed)
	if err != nil {
		return err
	}
	loss, err := e.registry.GetLoss(e.cfg.Convergence.Loss, e.cfg)
	if err != nil {
		return err
	}

	base := []sde.Option{
		sde.WithNoise(src),
		sde.WithObserver(dynamo.ObserverFunc(e.record)),
	}
	for _, m := range e.registry.DefaultMetrics(e.cfg) {
		base = append(base, sde.WithMetric(m))
	}

	stepper, err := sde.New(ec, append(base, opts...)...)
	if err != nil {
		return err
	}
	tracker, err := convergence.New(stepper, *e.cfg.Convergence.Threshold)
	if err != nil {
		return err
	}

	e.stepper = stepper
	e.tracker = tracker
	e.loss = loss
	e.steps = nil
	e.log.WithFields(logrus.Fields{
		"preset": e.cfg.Name,
		"noise":  e.cfg.Noise,
		"loss":   e.cfg.Convergence.Loss,
		"dims":   ec.Dim(),
	}).Debug("experiment set up")
	return nil
}

// record keeps the step records for the exact integral, bounded like the
// stepper history.
func (e *Experiment) record(rec dynamo.StepRecord) {
	e.steps = append(e.steps, rec)
	if limit := e.cfg.HistoryLimit; limit > 0 && len(e.steps) > limit {
		e.steps = e.steps[len(e.steps)-limit:]
	}
}

// Run evolves to the configured duration. On an early stop the partial
// result is returned together with the error.
func (e *Experiment) Run(ctx context.Context, onProgress sde.ProgressFunc) (*Result, error) {
	if e.stepper == nil {
		return nil, fmt.Errorf("experiment not setup")
	}

	start := time.Now()
	recs, runErr := e.tracker.Track(ctx, e.loss, e.cfg.Duration, onProgress)
	e.log.WithFields(logrus.Fields{
		"steps":   e.stepper.TotalSteps(),
		"records": len(recs),
		"elapsed": time.Since(start),
	}).Info("run finished")

	history := e.stepper.History()
	res := &Result{
		Names:       e.stepper.Names(),
		States:      history,
		Convergence: e.tracker.Records(),
		Stats:       e.tracker.Statistics(e.cfg.Convergence.Window),
		Metrics:     e.stepper.Metrics(),
		Regimes:     analysis.SummarizeRegimes(history),
	}

	est, err := integral.New(e.stepper.ConditionIndex(), e.stepper.Dt())
	if err != nil {
		return res, err
	}
	cond := e.stepper.ConditionIndex()
	level := func(x dynamo.State) float64 { return x[cond] }
	if res.Ito, err = est.Ito(history, level); err != nil {
		return res, err
	}
	if res.ItoExact, err = est.FromSteps(e.steps, level); err != nil {
		return res, err
	}
	res.Wall = time.Since(start)
	return res, runErr
}

// Tune sets drift parameters by name, e.g. "rate_0" or "cond_elevated".
// Call after Setup and before Run.
func (e *Experiment) Tune(params map[string]float64) error {
	if e.stepper == nil {
		return fmt.Errorf("experiment not setup")
	}
	if len(params) == 0 {
		return nil
	}
	tunable, ok := e.stepper.Drift().(dynamo.Configurable)
	if !ok {
		return fmt.Errorf("drift model is not tunable")
	}
	names := make([]string, 0, len(params))
	for k := range params {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		if err := tunable.SetParam(k, params[k]); err != nil {
			return fmt.Errorf("param %s: %w", k, err)
		}
	}
	return nil
}

// Stepper returns the underlying stepper, e.g. for a live view.
func (e *Experiment) Stepper() *sde.Stepper {
	return e.stepper
}

func (e *Experiment) Config() *config.Config { return e.cfg }
