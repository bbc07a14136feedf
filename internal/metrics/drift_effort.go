package metrics

import (
	"github.com/san-kum/stochsim/internal/dynamo"
	"gonum.org/v1/gonum/floats"
)

// MeanDriftMagnitude averages the L1 norm of the drift vector per step.
type MeanDriftMagnitude struct {
	name    string
	sum     float64
	samples int
}

func NewMeanDriftMagnitude() *MeanDriftMagnitude {
	return &MeanDriftMagnitude{name: "drift_magnitude"}
}

func (d *MeanDriftMagnitude) Name() string { return d.name }

func (d *MeanDriftMagnitude) Observe(rec dynamo.StepRecord) {
	d.sum += floats.Norm(rec.Drift, 1)
	d.samples++
}

func (d *MeanDriftMagnitude) Value() float64 {
	if d.samples == 0 {
		return 0
	}
	return d.sum / float64(d.samples)
}

func (d *MeanDriftMagnitude) Reset() {
	d.sum = 0
	d.samples = 0
}
