package node

import (
	"fmt"

	"github.com/san-kum/nodesim/internal/dynamo"
	"github.com/san-kum/nodesim/internal/forcing"
)

// Handle is the stable arena index of a node.
type Handle int

// SimInput binds an internal input slot to one output of a producer.
type SimInput struct {
	Producer Handle
	Output   int
	Forward  bool
}

// ExtTerm is one weighted forcing value feeding an external input slot.
type ExtTerm struct {
	Addr   forcing.Address
	Weight float64
}

type Node struct {
	id     string
	handle Handle
	group  *Group
	arena  *Arena
	level  int

	scal    []float64
	vect    [][]float64
	params  []float64
	funs    []*Function
	cursors []int // individual functions first, then shared ones

	ext      [][]ExtTerm
	sim      []SimInput
	simBound []bool

	out    []float64
	lagged []float64

	scalSet  []bool
	paramSet []bool
}

func newNode(id string, h Handle, g *Group, a *Arena) *Node {
	s := g.schema
	return &Node{
		id:       id,
		handle:   h,
		group:    g,
		arena:    a,
		scal:     make([]float64, s.Len(Scalars)),
		vect:     make([][]float64, s.Len(Vectors)),
		params:   make([]float64, s.Len(Params)),
		funs:     make([]*Function, s.Len(Funcs)),
		cursors:  make([]int, s.Len(Funcs)+s.Len(SharedFuncs)),
		ext:      make([][]ExtTerm, s.Len(ExtInputs)),
		sim:      make([]SimInput, s.Len(SimInputs)),
		simBound: make([]bool, s.Len(SimInputs)),
		out:      make([]float64, s.Len(Outputs)),
		lagged:   make([]float64, s.Len(Outputs)),
		scalSet:  make([]bool, s.Len(Scalars)),
		paramSet: make([]bool, s.Len(Params)),
	}
}

func (n *Node) ID() string      { return n.id }
func (n *Node) Handle() Handle  { return n.handle }
func (n *Node) Group() *Group   { return n.group }
func (n *Node) Schema() *Schema { return n.group.schema }
func (n *Node) Level() int      { return n.level }

// SetLevel assigns the scheduling level. It can be called once.
func (n *Node) SetLevel(level int) error {
	if n.level != 0 {
		return fmt.Errorf("%w: node %s already at level %d", dynamo.ErrLevelAssigned, n.id, n.level)
	}
	if level < 1 {
		return fmt.Errorf("%w: node %s: level %d", dynamo.ErrLevelInvariant, n.id, level)
	}
	n.level = level
	return nil
}

// Setup

func (n *Node) SetParam(name string, v float64) error {
	i, err := n.Schema().Index(Params, name)
	if err != nil {
		return err
	}
	n.params[i] = v
	n.paramSet[i] = true
	return nil
}

func (n *Node) SetFunc(name string, f *Function) error {
	i, err := n.Schema().Index(Funcs, name)
	if err != nil {
		return err
	}
	n.funs[i] = f
	return nil
}

func (n *Node) SetScalar(name string, v float64) error {
	i, err := n.Schema().Index(Scalars, name)
	if err != nil {
		return err
	}
	n.scal[i] = v
	n.scalSet[i] = true
	return nil
}

func (n *Node) SetVector(name string, v []float64) error {
	i, err := n.Schema().Index(Vectors, name)
	if err != nil {
		return err
	}
	n.vect[i] = append([]float64(nil), v...)
	return nil
}

// BindSim binds internal input slot i. A slot accepts exactly one binding.
func (n *Node) BindSim(i int, in SimInput) error {
	if n.simBound[i] {
		return fmt.Errorf("%w: internal input %q of node %s bound twice", dynamo.ErrSlotCount, n.Schema().NameOf(SimInputs, i), n.id)
	}
	n.sim[i] = in
	n.simBound[i] = true
	return nil
}

// AddExt appends a weighted forcing term to external input slot i.
func (n *Node) AddExt(i int, term ExtTerm) {
	n.ext[i] = append(n.ext[i], term)
}

func (n *Node) SimBinding(i int) (SimInput, bool) { return n.sim[i], n.simBound[i] }

// ExtTerms returns the terms bound to external slot i.
func (n *Node) ExtTerms(i int) []ExtTerm { return n.ext[i] }

// Validate reports values and bindings that are still missing.
func (n *Node) Validate() error {
	s := n.Schema()
	for i, ok := range n.paramSet {
		if !ok {
			return fmt.Errorf("%w: parameter %q of node %s", dynamo.ErrMissingValue, s.NameOf(Params, i), n.id)
		}
	}
	for i, f := range n.funs {
		if f == nil {
			return fmt.Errorf("%w: function %q of node %s", dynamo.ErrMissingValue, s.NameOf(Funcs, i), n.id)
		}
	}
	for i, ok := range n.scalSet {
		if !ok {
			return fmt.Errorf("%w: initial state %q of node %s", dynamo.ErrMissingValue, s.NameOf(Scalars, i), n.id)
		}
	}
	for i, v := range n.vect {
		if v == nil {
			return fmt.Errorf("%w: initial vector %q of node %s", dynamo.ErrMissingValue, s.NameOf(Vectors, i), n.id)
		}
	}
	for i, ok := range n.simBound {
		if !ok {
			return fmt.Errorf("%w: internal input %q of node %s not bound", dynamo.ErrSlotCount, s.NameOf(SimInputs, i), n.id)
		}
	}
	for i, terms := range n.ext {
		if len(terms) == 0 {
			return fmt.Errorf("%w: external input %q of node %s not bound", dynamo.ErrSlotCount, s.NameOf(ExtInputs, i), n.id)
		}
	}
	return nil
}

// Accessors used by kinds during Simulate.

func (n *Node) StateScal(i int) float64       { return n.scal[i] }
func (n *Node) SetStateScal(i int, v float64) { n.scal[i] = v }

// StateVect returns vector state i. Kinds may modify it in place.
func (n *Node) StateVect(i int) []float64 { return n.vect[i] }

func (n *Node) ParamNum(i int) float64  { return n.params[i] }
func (n *Node) SharedNum(i int) float64 { return n.group.shared[i] }

func (n *Node) ParamFun(i int, x float64) (float64, error) {
	return n.funs[i].Eval(x, &n.cursors[i])
}

func (n *Node) SharedFun(i int, x float64) (float64, error) {
	return n.group.funs[i].Eval(x, &n.cursors[len(n.funs)+i])
}

// InputExt is the weighted sum of the forcing values bound to slot i.
func (n *Node) InputExt(i int) float64 {
	sum := 0.0
	for _, t := range n.ext[i] {
		sum += t.Weight * n.arena.values.Value(t.Addr)
	}
	return sum
}

// InputSim reads the producer output bound to slot i: the current value for
// forward bindings, the value committed at the end of the previous step for
// backward ones.
func (n *Node) InputSim(i int) float64 {
	in := n.sim[i]
	p := n.arena.nodes[in.Producer]
	if in.Forward {
		return p.out[in.Output]
	}
	return p.lagged[in.Output]
}

func (n *Node) SetOutput(i int, v float64) { n.out[i] = v }
func (n *Node) Output(i int) float64       { return n.out[i] }

// Simulate runs the group's kind on n.
func (n *Node) Simulate(dt float64) error {
	return n.group.kind.Simulate(n, dt)
}

// Integrate advances y0 over dt with the group's integrator and the kind's
// derivatives.
func (n *Node) Integrate(y0 dynamo.State, dt float64) (dynamo.State, error) {
	d, ok := n.group.kind.(Deriver)
	if !ok {
		return nil, fmt.Errorf("%w: kind %s has no derivatives", dynamo.ErrInvalidConfig, n.group.kind.Name())
	}
	if n.group.integrator == nil {
		return nil, fmt.Errorf("%w: group %s has no integrator", dynamo.ErrInvalidConfig, n.group.id)
	}
	sys := dynamo.SystemFunc(func(y dynamo.State, t float64) (dynamo.State, error) {
		return d.Derivatives(n, t, y, dt)
	})
	return n.group.integrator.Step(sys, y0, 0, dt)
}

// CheckNumeric reports NaN or Inf in states or outputs.
func (n *Node) CheckNumeric() error {
	if !dynamo.State(n.scal).IsValid() {
		return fmt.Errorf("%w: scalar state of node %s", dynamo.ErrInvalidState, n.id)
	}
	for i, v := range n.vect {
		if !dynamo.State(v).IsValid() {
			return fmt.Errorf("%w: vector state %q of node %s", dynamo.ErrInvalidState, n.Schema().NameOf(Vectors, i), n.id)
		}
	}
	if !dynamo.State(n.out).IsValid() {
		return fmt.Errorf("%w: outputs of node %s", dynamo.ErrInvalidState, n.id)
	}
	return nil
}

// commit freezes the current outputs for backward readers.
func (n *Node) commit() { copy(n.lagged, n.out) }

// Copies for output and snapshot writers.

func (n *Node) Scalars() []float64 { return append([]float64(nil), n.scal...) }
func (n *Node) Outputs() []float64 { return append([]float64(nil), n.out...) }
func (n *Node) Params() []float64  { return append([]float64(nil), n.params...) }

func (n *Node) Vectors() [][]float64 {
	vs := make([][]float64, len(n.vect))
	for i, v := range n.vect {
		vs[i] = append([]float64(nil), v...)
	}
	return vs
}

// Inputs evaluates every external and internal input.
func (n *Node) Inputs() (ext, sim []float64) {
	ext = make([]float64, len(n.ext))
	for i := range n.ext {
		ext[i] = n.InputExt(i)
	}
	sim = make([]float64, len(n.sim))
	for i := range n.sim {
		sim[i] = n.InputSim(i)
	}
	return ext, sim
}
