package node

import "github.com/san-kum/nodesim/internal/dynamo"

// Kind is the behaviour shared by all nodes of a group.
type Kind interface {
	Name() string
	Schema() SchemaSpec
	// Simulate advances n by dt seconds and writes its outputs. It may read
	// inputs, parameters and its own state and must only write to n.
	Simulate(n *Node, dt float64) error
}

// Deriver is implemented by kinds with continuous state. t runs from 0 to
// dt within the step.
type Deriver interface {
	Derivatives(n *Node, t float64, y dynamo.State, dt float64) (dynamo.State, error)
}

// OutputInitializer computes outputs from the initial state before the
// first step, so backward readers see defined values at step 1.
type OutputInitializer interface {
	InitOutputs(n *Node) error
}

// Preparer is implemented by kinds that need one-time setup per group,
// usually to resolve variable names to indices.
type Preparer interface {
	Prepare(s *Schema) error
}
