package node

import (
	"fmt"

	"github.com/san-kum/nodesim/internal/dynamo"
	"github.com/san-kum/nodesim/internal/forcing"
)

// Values is the part of a forcing collection read by external inputs.
type Values interface {
	Value(a forcing.Address) float64
}

// Arena owns every node of a network. Handles index into it and stay valid
// for its lifetime.
type Arena struct {
	nodes  []*Node
	byID   map[string]Handle
	groups []*Group
	gByID  map[string]*Group
	values Values
}

func NewArena() *Arena {
	return &Arena{
		byID:  make(map[string]Handle),
		gByID: make(map[string]*Group),
	}
}

func (a *Arena) AddGroup(g *Group) error {
	if _, ok := a.gByID[g.id]; ok {
		return &dynamo.SetupError{Op: "add group", Err: fmt.Errorf("%w: group %q", dynamo.ErrDuplicateID, g.id)}
	}
	a.groups = append(a.groups, g)
	a.gByID[g.id] = g
	return nil
}

func (a *Arena) Group(id string) (*Group, bool) {
	g, ok := a.gByID[id]
	return g, ok
}

func (a *Arena) Groups() []*Group { return append([]*Group(nil), a.groups...) }

// Add creates a node of group g. Node ids are unique across groups.
func (a *Arena) Add(id string, g *Group) (*Node, error) {
	if _, ok := a.byID[id]; ok {
		return nil, &dynamo.SetupError{Op: "add node", Node: id, Err: dynamo.ErrDuplicateID}
	}
	h := Handle(len(a.nodes))
	n := newNode(id, h, g, a)
	a.nodes = append(a.nodes, n)
	a.byID[id] = h
	return n, nil
}

func (a *Arena) Lookup(id string) (Handle, bool) {
	h, ok := a.byID[id]
	return h, ok
}

func (a *Arena) Node(h Handle) *Node { return a.nodes[h] }
func (a *Arena) Len() int            { return len(a.nodes) }

// Nodes returns all nodes in declaration order.
func (a *Arena) Nodes() []*Node { return append([]*Node(nil), a.nodes...) }

// SetValues attaches the source read by external inputs.
func (a *Arena) SetValues(v Values) { a.values = v }

// Prepare validates every group and node, computes initial outputs and
// commits them, so backward inputs are defined before the first step.
func (a *Arena) Prepare() error {
	var errs []error
	for _, g := range a.groups {
		if err := g.Validate(); err != nil {
			errs = append(errs, &dynamo.SetupError{Op: "validate", Err: err})
		}
	}
	for _, n := range a.nodes {
		if err := n.Validate(); err != nil {
			errs = append(errs, &dynamo.SetupError{Op: "validate", Node: n.id, Err: err})
		}
	}
	if len(errs) > 0 {
		return joinSetup(errs)
	}
	if a.values == nil && hasExternal(a.nodes) {
		return &dynamo.SetupError{Op: "prepare", Err: fmt.Errorf("%w: external inputs without a forcing source", dynamo.ErrInvalidConfig)}
	}

	for _, n := range a.nodes {
		if oi, ok := n.group.kind.(OutputInitializer); ok {
			if err := oi.InitOutputs(n); err != nil {
				return &dynamo.SetupError{Op: "init outputs", Node: n.id, Err: err}
			}
		}
	}
	a.Commit()
	return nil
}

// Commit copies every node's outputs into its lagged buffer. It must run
// between steps, never while a stage executes.
func (a *Arena) Commit() {
	for _, n := range a.nodes {
		n.commit()
	}
}

func hasExternal(nodes []*Node) bool {
	for _, n := range nodes {
		if len(n.ext) > 0 {
			return true
		}
	}
	return false
}
