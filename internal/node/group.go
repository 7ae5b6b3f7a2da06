package node

import (
	"fmt"

	"github.com/san-kum/nodesim/internal/dynamo"
)

// Group holds the schema, behaviour and shared parameters of a family of
// structurally identical nodes.
type Group struct {
	id         string
	schema     *Schema
	kind       Kind
	integrator dynamo.Integrator
	debug      bool

	shared    []float64
	sharedSet []bool
	funs      []*Function
}

// NewGroup builds the schema from kind. integ may be nil for stateless kinds.
func NewGroup(id string, kind Kind, integ dynamo.Integrator) (*Group, error) {
	schema, err := NewSchema(kind.Name(), kind.Schema())
	if err != nil {
		return nil, &dynamo.SetupError{Op: "group " + id, Err: err}
	}
	if p, ok := kind.(Preparer); ok {
		if err := p.Prepare(schema); err != nil {
			return nil, &dynamo.SetupError{Op: "group " + id, Err: err}
		}
	}
	return &Group{
		id:         id,
		schema:     schema,
		kind:       kind,
		integrator: integ,
		shared:     make([]float64, schema.Len(SharedParams)),
		sharedSet:  make([]bool, schema.Len(SharedParams)),
		funs:       make([]*Function, schema.Len(SharedFuncs)),
	}, nil
}

func (g *Group) ID() string                    { return g.id }
func (g *Group) Schema() *Schema               { return g.schema }
func (g *Group) Kind() Kind                    { return g.kind }
func (g *Group) Integrator() dynamo.Integrator { return g.integrator }
func (g *Group) Debug() bool                   { return g.debug }
func (g *Group) SetDebug(on bool)              { g.debug = on }

func (g *Group) SetShared(name string, v float64) error {
	i, err := g.schema.Index(SharedParams, name)
	if err != nil {
		return err
	}
	g.shared[i] = v
	g.sharedSet[i] = true
	return nil
}

func (g *Group) SetSharedFunc(name string, f *Function) error {
	i, err := g.schema.Index(SharedFuncs, name)
	if err != nil {
		return err
	}
	g.funs[i] = f
	return nil
}

// Shared returns the value of shared parameter i.
func (g *Group) Shared(i int) float64 { return g.shared[i] }

// Validate reports shared values that were declared but never set.
func (g *Group) Validate() error {
	for i, ok := range g.sharedSet {
		if !ok {
			return fmt.Errorf("%w: shared parameter %q of group %s", dynamo.ErrMissingValue, g.schema.NameOf(SharedParams, i), g.id)
		}
	}
	for i, f := range g.funs {
		if f == nil {
			return fmt.Errorf("%w: shared function %q of group %s", dynamo.ErrMissingValue, g.schema.NameOf(SharedFuncs, i), g.id)
		}
	}
	if _, ok := g.kind.(Deriver); ok && g.integrator == nil {
		return fmt.Errorf("%w: group %s has continuous state but no integrator", dynamo.ErrInvalidConfig, g.id)
	}
	return nil
}
