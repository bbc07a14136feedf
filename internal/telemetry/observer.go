// Package telemetry exports engine activity as Prometheus metrics.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/san-kum/stochsim/internal/dynamo"
)

// Observer implements dynamo.Observer. Register it with sde.WithObserver.
type Observer struct {
	names []string

	steps       prometheus.Counter
	regimeSteps *prometheus.CounterVec
	stateValue  *prometheus.GaugeVec
	clampEvents *prometheus.CounterVec
	loss        prometheus.Gauge
	elapsedTime prometheus.Gauge
}

// New registers the collectors on reg. names label the state dimensions; a
// dimension without a name is labelled by its index.
func New(reg prometheus.Registerer, names []string) *Observer {
	f := promauto.With(reg)
	return &Observer{
		names: append([]string(nil), names...),

		steps: f.NewCounter(prometheus.CounterOpts{
			Name: "stochsim_steps_total",
			Help: "Total number of Euler-Maruyama steps taken",
		}),
		regimeSteps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "stochsim_regime_steps_total",
			Help: "Steps that ended in each regime",
		}, []string{"regime"}),
		stateValue: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "stochsim_state_value",
			Help: "Latest value of each state dimension",
		}, []string{"dimension"}),
		clampEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "stochsim_clamp_events_total",
			Help: "Updates that were clamped to the unit interval",
		}, []string{"dimension"}),
		loss: f.NewGauge(prometheus.GaugeOpts{
			Name: "stochsim_convergence_loss",
			Help: "Most recent convergence loss",
		}),
		elapsedTime: f.NewGauge(prometheus.GaugeOpts{
			Name: "stochsim_elapsed_time",
			Help: "Simulated time of the latest state",
		}),
	}
}

func (o *Observer) OnStep(rec dynamo.StepRecord) {
	o.steps.Inc()
	o.regimeSteps.WithLabelValues(rec.Regime.String()).Inc()
	o.elapsedTime.Set(rec.Time)
	for d, v := range rec.Next {
		label := o.label(d)
		o.stateValue.WithLabelValues(label).Set(v)
		if d < len(rec.Clamped) && rec.Clamped[d] {
			o.clampEvents.WithLabelValues(label).Inc()
		}
	}
}

// ObserveLoss records a convergence loss sample.
func (o *Observer) ObserveLoss(rec dynamo.ConvergenceRecord) {
	o.loss.Set(rec.Loss)
}

func (o *Observer) label(d int) string {
	if d < len(o.names) && o.names[d] != "" {
		return o.names[d]
	}
	return dynamo.DimensionName(d)
}
