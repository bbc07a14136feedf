package dynamo

import (
	"math"
	"strconv"
)

type State []float64

func (s State) Clone() State {
	if s == nil {
		return nil
	}
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// InUnitRange reports whether every component lies in [0,1].
func (s State) InUnitRange() bool {
	for _, v := range s {
		if !(v >= 0 && v <= 1) {
			return false
		}
	}
	return true
}

func (s State) Norm() float64 {
	sum := 0.0
	for _, v := range s {
		sum += v * v
	}
	return math.Sqrt(sum)
}

func (s State) Sub(other State) State {
	result := make(State, len(s))
	for i := range s {
		if i < len(other) {
			result[i] = s[i] - other[i]
		} else {
			result[i] = s[i]
		}
	}
	return result
}

// DimensionName is the label used for an unnamed dimension.
func DimensionName(i int) string {
	return "x" + strconv.Itoa(i)
}

// Clamp01 limits v to the closed unit interval.
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Regime is the qualitative label attached to every EvolutionState.
type Regime string

const (
	RegimeUnknown  Regime = ""
	RegimeCrisis   Regime = "crisis"
	RegimeStable   Regime = "stable"
	RegimeVolatile Regime = "volatile"
	RegimeTrending Regime = "trending"
)

// Regimes lists the labels in classifier evaluation order.
var Regimes = []Regime{RegimeCrisis, RegimeStable, RegimeVolatile, RegimeTrending}

func (r Regime) String() string {
	if r == RegimeUnknown {
		return "unknown"
	}
	return string(r)
}

// EvolutionState is a snapshot of the engine at one instant. Values handed to
// callers are copies.
type EvolutionState struct {
	Time       float64   `json:"time"`
	State      State     `json:"state"`
	Volatility []float64 `json:"volatility"`
	Regime     Regime    `json:"regime"`
}

func (e EvolutionState) Clone() EvolutionState {
	return EvolutionState{
		Time:       e.Time,
		State:      e.State.Clone(),
		Volatility: append([]float64(nil), e.Volatility...),
		Regime:     e.Regime,
	}
}

// StepRecord is the audit trail of one discrete update.
//
// Noise holds the independent draws, Wiener the correlated increment already
// scaled by sqrt(Dt), and Diffusion[d] = volatility[d]*Wiener[d].
type StepRecord struct {
	Step      int       `json:"step"`
	Time      float64   `json:"time"`
	Dt        float64   `json:"dt"`
	Previous  State     `json:"previous"`
	Drift     []float64 `json:"drift"`
	Diffusion []float64 `json:"diffusion"`
	Noise     []float64 `json:"noise"`
	Wiener    []float64 `json:"wiener"`
	Next      State     `json:"next"`
	Clamped   []bool    `json:"clamped"`
	Regime    Regime    `json:"regime"`
}

// AnyClamped reports whether the clamp changed at least one dimension.
func (r StepRecord) AnyClamped() bool {
	for _, c := range r.Clamped {
		if c {
			return true
		}
	}
	return false
}

type ConvergenceRecord struct {
	Time      float64 `json:"time"`
	Loss      float64 `json:"loss"`
	State     State   `json:"state"`
	Converged bool    `json:"converged"`
}

// DriftModel is the deterministic part of the SDE. Implementations must be
// pure and return a finite value for every input in [0,1].
type DriftModel interface {
	Drift(x State, t float64) State
	Dim() int
}

// NoiseSource fills dst with independent standard-normal draws.
type NoiseSource interface {
	Normal(dst []float64)
}

// Classifier maps the condition dimension and its volatility to a Regime.
type Classifier interface {
	Classify(value, volatility float64) Regime
}

type Metric interface {
	Name() string
	Observe(rec StepRecord)
	Value() float64
	Reset()
}

type Observer interface {
	OnStep(rec StepRecord)
}

// ObserverFunc adapts a plain function to Observer.
type ObserverFunc func(rec StepRecord)

func (f ObserverFunc) OnStep(rec StepRecord) { f(rec) }

type Configurable interface {
	GetParams() map[string]float64
	SetParam(name string, value float64) error
}
