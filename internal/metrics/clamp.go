package metrics

import "github.com/san-kum/stochsim/internal/dynamo"

// ClampRate is the fraction of steps in which the clamp changed at least one
// dimension. A high value means the volatility is large relative to the unit
// box and the trajectory spends time pinned at a wall.
type ClampRate struct {
	name    string
	clamped int
	samples int
}

func NewClampRate() *ClampRate {
	return &ClampRate{name: "clamp_rate"}
}

func (c *ClampRate) Name() string { return c.name }

func (c *ClampRate) Observe(rec dynamo.StepRecord) {
	c.samples++
	if rec.AnyClamped() {
		c.clamped++
	}
}

func (c *ClampRate) Value() float64 {
	if c.samples == 0 {
		return 0
	}
	return float64(c.clamped) / float64(c.samples)
}

func (c *ClampRate) Reset() {
	c.clamped = 0
	c.samples = 0
}
