package metrics

import "github.com/san-kum/stochsim/internal/dynamo"

// RegimeOccupancy is the fraction of steps that ended in one regime.
type RegimeOccupancy struct {
	regime  dynamo.Regime
	hits    int
	samples int
}

func NewRegimeOccupancy(r dynamo.Regime) *RegimeOccupancy {
	return &RegimeOccupancy{regime: r}
}

func (o *RegimeOccupancy) Name() string { return "occupancy_" + o.regime.String() }

func (o *RegimeOccupancy) Observe(rec dynamo.StepRecord) {
	o.samples++
	if rec.Regime == o.regime {
		o.hits++
	}
}

func (o *RegimeOccupancy) Value() float64 {
	if o.samples == 0 {
		return 0
	}
	return float64(o.hits) / float64(o.samples)
}

func (o *RegimeOccupancy) Reset() {
	o.hits = 0
	o.samples = 0
}

// DimensionMean is the running mean of one state dimension after each step.
type DimensionMean struct {
	name    string
	index   int
	sum     float64
	samples int
}

func NewDimensionMean(name string, index int) *DimensionMean {
	return &DimensionMean{name: "mean_" + name, index: index}
}

func (m *DimensionMean) Name() string { return m.name }

func (m *DimensionMean) Observe(rec dynamo.StepRecord) {
	if m.index >= len(rec.Next) {
		return
	}
	m.sum += rec.Next[m.index]
	m.samples++
}

func (m *DimensionMean) Value() float64 {
	if m.samples == 0 {
		return 0
	}
	return m.sum / float64(m.samples)
}

func (m *DimensionMean) Reset() {
	m.sum = 0
	m.samples = 0
}

// Defaults returns the standard metric set for a run.
func Defaults(names []string, condition int) []dynamo.Metric {
	ms := []dynamo.Metric{
		NewClampRate(),
		NewMeanDriftMagnitude(),
	}
	for _, r := range dynamo.Regimes {
		ms = append(ms, NewRegimeOccupancy(r))
	}
	if condition >= 0 && condition < len(names) {
		ms = append(ms, NewDimensionMean(names[condition], condition))
	}
	return ms
}
