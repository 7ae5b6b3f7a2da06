// Package dynamo provides core simulation primitives for node networks.
//
// The package defines the fundamental interfaces and types used by the
// ODE integrators and the error kinds shared by every stage of a run:
//
//   - [State]: vector representing a node's continuous state
//   - [System]: interface for ODE systems (dy/dt = f(y, t))
//   - [Integrator]: single-step numerical integrator interface
//   - [SetupError], [StepError], [StageError], [IntegrationError]
//
// # Example
//
//	sys := dynamo.SystemFunc(func(y dynamo.State, t float64) (dynamo.State, error) {
//		return dynamo.State{-0.1 * y[0]}, nil
//	})
//	y1, err := integrators.NewRK4().Step(sys, dynamo.State{100}, 0, 10)
//
// # Thread Safety
//
// Integrators are stateless and may be shared between nodes that run
// concurrently. A System may carry state (lookup caches) but belongs to
// exactly one node.
package dynamo
