package dynamo

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Setup errors: fatal, always raised before the time loop.
var (
	// ErrDuplicateID indicates two nodes or groups share an id.
	ErrDuplicateID = errors.New("dynamo: duplicate id")

	// ErrUnknownNode indicates a reference to a node id that was never declared.
	ErrUnknownNode = errors.New("dynamo: unknown node")

	// ErrUnknownVariable indicates a variable name absent from a group schema
	// or from the forcing collection.
	ErrUnknownVariable = errors.New("dynamo: unknown variable")

	// ErrSelfLoop indicates a node declared as its own producer.
	ErrSelfLoop = errors.New("dynamo: node cannot feed itself")

	// ErrSlotCount indicates input slots that are unbound or bound more than once.
	ErrSlotCount = errors.New("dynamo: input slot binding count mismatch")

	// ErrDirectionConflict indicates a neighbour pair linked both forward and backward.
	ErrDirectionConflict = errors.New("dynamo: neighbour linked both forward and backward")

	// ErrForwardCycle indicates forward edges that form a cycle. One of the
	// involved relations has to be declared backward.
	ErrForwardCycle = errors.New("dynamo: forward dependency cycle")

	// ErrLevelInvariant indicates a level assignment that violates
	// level(producer) < level(consumer). It signals a bug, not bad input.
	ErrLevelInvariant = errors.New("dynamo: level invariant violated")

	// ErrLevelAssigned indicates a second attempt to set a node's level.
	ErrLevelAssigned = errors.New("dynamo: level already assigned")

	// ErrMissingValue indicates a parameter, function or initial state that
	// was declared in a schema but never given a value.
	ErrMissingValue = errors.New("dynamo: value not set")

	// ErrInvalidConfig indicates bad run parameters.
	ErrInvalidConfig = errors.New("dynamo: invalid run configuration")
)

// Step and integration errors.
var (
	// ErrInvalidState indicates NaN or Inf in a node's states or outputs.
	ErrInvalidState = errors.New("dynamo: invalid state (NaN or Inf detected)")

	// ErrMaxSteps indicates an adaptive integrator exhausted its sub-step budget.
	ErrMaxSteps = errors.New("dynamo: maximum number of sub-steps exceeded")

	// ErrStepUnderflow indicates an adaptive step size that dropped to zero
	// or below its lower limit.
	ErrStepUnderflow = errors.New("dynamo: adaptive step size underflow")

	// ErrNoConvergence indicates an implicit solver that did not converge.
	ErrNoConvergence = errors.New("dynamo: iteration did not converge")

	// ErrDimensionMismatch indicates mismatched state/derivative dimensions.
	ErrDimensionMismatch = errors.New("dynamo: dimension mismatch between state and derivative")

	// ErrOutOfRange indicates a parameter function evaluated outside its table.
	ErrOutOfRange = errors.New("dynamo: argument outside function table")

	// ErrNodePanic indicates a node whose simulate call panicked.
	ErrNodePanic = errors.New("dynamo: node panicked")
)

// SetupError wraps a setup failure with the operation and node involved.
type SetupError struct {
	Op   string
	Node string
	Err  error
}

func (e *SetupError) Error() string {
	if e.Node == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: node %q: %v", e.Op, e.Node, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

// StepError wraps a failure during one timestep. Node is empty when the
// failure is not attributable to a node (forcing refresh).
type StepError struct {
	Step int
	Time time.Time
	Node string
	Op   string
	Err  error
}

func (e *StepError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "step %d (%s): %s", e.Step, e.Time.UTC().Format(time.RFC3339), e.Op)
	if e.Node != "" {
		fmt.Fprintf(&b, " node %q", e.Node)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *StepError) Unwrap() error { return e.Err }

// StageError aggregates every node failure of one stage.
type StageError struct {
	Step     int
	Time     time.Time
	Stage    int
	Failures []*StepError
}

func (e *StageError) Error() string {
	return fmt.Sprintf("step %d (%s): %d failure(s) in stage %d, first: %v",
		e.Step, e.Time.UTC().Format(time.RFC3339), len(e.Failures), e.Stage, e.Failures[0])
}

func (e *StageError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

// IntegrationError reports an integrator that could not meet its accuracy
// or iteration budget.
type IntegrationError struct {
	Method string
	T      float64
	H      float64
	Err    error
}

func (e *IntegrationError) Error() string {
	return fmt.Sprintf("%s at t=%g (h=%g): %v", e.Method, e.T, e.H, e.Err)
}

func (e *IntegrationError) Unwrap() error { return e.Err }
