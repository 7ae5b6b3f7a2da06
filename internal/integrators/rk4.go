package integrators

import "github.com/san-kum/nodesim/internal/dynamo"

// RK4 is the classical fourth order Runge-Kutta method without error control.
// It keeps no scratch state between calls; one value serves every node of a
// group.
type RK4 struct{}

func NewRK4() *RK4 {
	return &RK4{}
}

func (r *RK4) Name() string { return "rk4" }

func (r *RK4) Step(sys dynamo.System, y0 dynamo.State, t0, dt float64) (dynamo.State, error) {
	n := len(y0)
	scratch := make(dynamo.State, n)

	k1, err := derive(sys, y0, t0)
	if err != nil {
		return nil, err
	}
	k1 = k1.Clone()

	for i := 0; i < n; i++ {
		scratch[i] = y0[i] + dt*0.5*k1[i]
	}
	k2, err := derive(sys, scratch, t0+dt*0.5)
	if err != nil {
		return nil, err
	}
	k2 = k2.Clone()

	for i := 0; i < n; i++ {
		scratch[i] = y0[i] + dt*0.5*k2[i]
	}
	k3, err := derive(sys, scratch, t0+dt*0.5)
	if err != nil {
		return nil, err
	}
	k3 = k3.Clone()

	for i := 0; i < n; i++ {
		scratch[i] = y0[i] + dt*k3[i]
	}
	k4, err := derive(sys, scratch, t0+dt)
	if err != nil {
		return nil, err
	}

	result := make(dynamo.State, n)
	dt6 := dt / 6.0
	for i := 0; i < n; i++ {
		result[i] = y0[i] + dt6*(k1[i]+2*k2[i]+2*k3[i]+k4[i])
	}

	return result, nil
}
