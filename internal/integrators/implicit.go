package integrators

import (
	"fmt"

	"github.com/san-kum/nodesim/internal/dynamo"
)

const DefaultMaxIter = 100

// ImplicitEuler solves y1 = y0 + dt*f(t0, y1) by fixed-point iteration,
// starting from an explicit Euler predictor. It converges only when dt times
// the Lipschitz constant of f is below one, so it suits mildly stiff
// single-node systems and nothing more.
type ImplicitEuler struct {
	Eps     float64
	MaxIter int
}

func NewImplicitEuler(eps float64, maxIter int) *ImplicitEuler {
	if eps <= 0 {
		eps = DefaultEps
	}
	if maxIter <= 0 {
		maxIter = DefaultMaxIter
	}
	return &ImplicitEuler{Eps: eps, MaxIter: maxIter}
}

func (m *ImplicitEuler) Name() string { return "implicit_euler" }

func (m *ImplicitEuler) Step(sys dynamo.System, y0 dynamo.State, t0, dt float64) (dynamo.State, error) {
	n := len(y0)

	dy, err := derive(sys, y0, t0)
	if err != nil {
		return nil, err
	}
	guess := make(dynamo.State, n)
	for i := 0; i < n; i++ {
		guess[i] = y0[i] + dt*dy[i]
	}

	for iter := 1; iter <= m.MaxIter; iter++ {
		dy, err := derive(sys, guess, t0)
		if err != nil {
			return nil, err
		}
		improved := make(dynamo.State, n)
		for i := 0; i < n; i++ {
			improved[i] = y0[i] + dt*dy[i]
		}

		if improved.MaxAbsDiff(guess) <= m.Eps {
			return improved, nil
		}
		guess = improved
	}

	return nil, &dynamo.IntegrationError{Method: m.Name(), T: t0, H: dt,
		Err: fmt.Errorf("%w: accuracy %g not reached within %d iterations", dynamo.ErrNoConvergence, m.Eps, m.MaxIter)}
}
