package dynamo

import (
	"math"
)

type State []float64

func (s State) Clone() State {
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

func (s State) Norm() float64 {
	sum := 0.0
	for _, v := range s {
		sum += v * v
	}
	return math.Sqrt(sum)
}

// MaxAbsDiff returns the max-norm of s - other.
func (s State) MaxAbsDiff(other State) float64 {
	m := 0.0
	for i := range s {
		if i < len(other) {
			m = math.Max(m, math.Abs(s[i]-other[i]))
		}
	}
	return m
}

func (s State) Add(other State) State {
	result := make(State, len(s))
	for i := range s {
		if i < len(other) {
			result[i] = s[i] + other[i]
		} else {
			result[i] = s[i]
		}
	}
	return result
}

func (s State) Scale(factor float64) State {
	result := make(State, len(s))
	for i := range s {
		result[i] = s[i] * factor
	}
	return result
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

// System is an ODE right-hand side. Derive may have side effects (lookup
// caches) and may fail, for example when a tabulated parameter is
// evaluated outside its range.
type System interface {
	Derive(y State, t float64) (State, error)
}

// SystemFunc adapts a plain function to System.
type SystemFunc func(y State, t float64) (State, error)

func (f SystemFunc) Derive(y State, t float64) (State, error) { return f(y, t) }

// Integrator advances y0 from t0 over dt.
type Integrator interface {
	Name() string
	Step(sys System, y0 State, t0, dt float64) (State, error)
}
