package integrators

import (
	"fmt"

	"github.com/san-kum/nodesim/internal/dynamo"
)

// Euler is the explicit Euler method. It has no error control and is only
// suitable for illustration or very smooth systems.
type Euler struct{}

func NewEuler() *Euler {
	return &Euler{}
}

func (e *Euler) Name() string { return "euler" }

func (e *Euler) Step(sys dynamo.System, y0 dynamo.State, t0, dt float64) (dynamo.State, error) {
	dy, err := derive(sys, y0, t0)
	if err != nil {
		return nil, err
	}
	result := make(dynamo.State, len(y0))
	for i := range y0 {
		result[i] = y0[i] + dt*dy[i]
	}
	return result, nil
}

// derive evaluates sys and checks the derivative has the state's dimension.
func derive(sys dynamo.System, y dynamo.State, t float64) (dynamo.State, error) {
	dy, err := sys.Derive(y, t)
	if err != nil {
		return nil, err
	}
	if len(dy) != len(y) {
		return nil, fmt.Errorf("%w: state has %d elements, derivative %d",
			dynamo.ErrDimensionMismatch, len(y), len(dy))
	}
	return dy, nil
}
