package integrators

import "github.com/san-kum/nodesim/internal/dynamo"

// Midpoint is the second order explicit Runge-Kutta method: a half-step
// predictor followed by a full step using the midpoint slope.
type Midpoint struct{}

func NewMidpoint() *Midpoint {
	return &Midpoint{}
}

func (m *Midpoint) Name() string { return "midpoint" }

func (m *Midpoint) Step(sys dynamo.System, y0 dynamo.State, t0, dt float64) (dynamo.State, error) {
	n := len(y0)

	k1, err := derive(sys, y0, t0)
	if err != nil {
		return nil, err
	}

	mid := make(dynamo.State, n)
	for i := 0; i < n; i++ {
		mid[i] = y0[i] + 0.5*dt*k1[i]
	}
	k2, err := derive(sys, mid, t0+0.5*dt)
	if err != nil {
		return nil, err
	}

	result := make(dynamo.State, n)
	for i := 0; i < n; i++ {
		result[i] = y0[i] + dt*k2[i]
	}
	return result, nil
}
