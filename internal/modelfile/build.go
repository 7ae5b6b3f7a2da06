package modelfile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/san-kum/nodesim/internal/dynamo"
	"github.com/san-kum/nodesim/internal/forcing"
	"github.com/san-kum/nodesim/internal/integrators"
	"github.com/san-kum/nodesim/internal/kinds"
	"github.com/san-kum/nodesim/internal/levels"
	"github.com/san-kum/nodesim/internal/linkage"
	"github.com/san-kum/nodesim/internal/logging"
	"github.com/san-kum/nodesim/internal/node"
	"github.com/san-kum/nodesim/internal/schedule"
)

// Network is a fully prepared network, ready for sim.New.
type Network struct {
	Arena  *node.Arena
	Graph  *linkage.Graph
	Levels []int
	Stages schedule.Stages
}

// Build creates the arena from m, resolves links against fc, assigns levels
// and builds the processing stages. fc may be nil when no node has external
// inputs. Errors of the same phase are reported together.
func Build(ctx context.Context, m *Model, fc forcing.Collection) (*Network, error) {
	log := logging.New("modelfile")

	a := node.NewArena()
	var errs []error
	for _, gd := range m.Groups {
		if err := addGroup(a, gd); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	for _, nd := range m.Nodes {
		if err := addNode(a, nd); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	links := make([]linkage.LinkRow, len(m.Links))
	for i, l := range m.Links {
		links[i] = linkage.LinkRow{
			Target:    l.Target,
			TargetVar: l.Input,
			Source:    l.Source,
			SourceVar: l.Output,
			Forward:   !l.Backward,
		}
	}
	ext := make([]linkage.ExternalRow, len(m.External))
	for i, e := range m.External {
		ext[i] = linkage.ExternalRow{Node: e.Node, Variable: e.Variable, Location: e.Location, Weight: e.weight()}
	}
	graph, err := linkage.NewResolver(a, fc).Resolve(links, ext)
	if err != nil {
		return nil, err
	}

	lv, err := levels.Assign(graph.Forward)
	if err != nil {
		var ce *levels.CycleError
		if errors.As(err, &ce) {
			ids := make([]string, len(ce.Nodes))
			for i, h := range ce.Nodes {
				ids[i] = a.Node(node.Handle(h)).ID()
			}
			return nil, &dynamo.SetupError{Op: "assign levels",
				Err: fmt.Errorf("%w: unresolved nodes %s", dynamo.ErrForwardCycle, strings.Join(ids, ", "))}
		}
		return nil, &dynamo.SetupError{Op: "assign levels", Err: err}
	}
	for i, l := range lv {
		nd := a.Node(node.Handle(i))
		if err := nd.SetLevel(l); err != nil {
			return nil, &dynamo.SetupError{Op: "assign levels", Node: nd.ID(), Err: err}
		}
	}
	stages := schedule.Build(lv)

	if err := a.Prepare(); err != nil {
		return nil, err
	}

	log.Info("network built", "groups", len(m.Groups), "nodes", a.Len(), "stages", stages.Len(), "widest", stages.Widest())
	return &Network{Arena: a, Graph: graph, Levels: lv, Stages: stages}, nil
}

func addGroup(a *node.Arena, gd GroupDecl) error {
	fail := func(err error) error { return &dynamo.SetupError{Op: "group " + gd.ID, Err: err} }

	kind, err := kinds.Lookup(gd.Kind)
	if err != nil {
		return fail(err)
	}
	integ, err := integratorFor(gd)
	if err != nil {
		return fail(err)
	}
	g, err := node.NewGroup(gd.ID, kind, integ)
	if err != nil {
		return err
	}
	g.SetDebug(gd.Debug)
	for _, name := range sortedKeys(gd.Shared) {
		if err := g.SetShared(name, gd.Shared[name]); err != nil {
			return fail(err)
		}
	}
	for _, name := range sortedKeys(gd.Functions) {
		f, err := gd.Functions[name].function()
		if err != nil {
			return fail(fmt.Errorf("shared function %q: %w", name, err))
		}
		if err := g.SetSharedFunc(name, f); err != nil {
			return fail(err)
		}
	}
	return a.AddGroup(g)
}

// integratorFor returns nil when the group declares no method. Groups of
// kinds with continuous state then fail validation.
func integratorFor(gd GroupDecl) (dynamo.Integrator, error) {
	opts := integrators.Options{Eps: gd.Eps, NMax: gd.NMax}
	switch {
	case gd.Integrator != "":
		return integrators.New(gd.Integrator, opts)
	case gd.Method != 0:
		return integrators.FromCode(gd.Method, opts)
	}
	return nil, nil
}

func addNode(a *node.Arena, nd NodeDecl) error {
	g, ok := a.Group(nd.Group)
	if !ok {
		return &dynamo.SetupError{Op: "add node", Node: nd.ID, Err: fmt.Errorf("%w: %q", ErrUnknownGroup, nd.Group)}
	}
	n, err := a.Add(nd.ID, g)
	if err != nil {
		return err
	}
	fail := func(err error) error { return &dynamo.SetupError{Op: "add node", Node: nd.ID, Err: err} }

	for _, name := range sortedKeys(nd.Params) {
		if err := n.SetParam(name, nd.Params[name]); err != nil {
			return fail(err)
		}
	}
	for _, name := range sortedKeys(nd.Functions) {
		f, err := nd.Functions[name].function()
		if err != nil {
			return fail(fmt.Errorf("function %q: %w", name, err))
		}
		if err := n.SetFunc(name, f); err != nil {
			return fail(err)
		}
	}
	for _, name := range sortedKeys(nd.Scalars) {
		if err := n.SetScalar(name, nd.Scalars[name]); err != nil {
			return fail(err)
		}
	}
	for _, name := range sortedKeys(nd.Vectors) {
		if err := n.SetVector(name, nd.Vectors[name]); err != nil {
			return fail(err)
		}
	}
	return nil
}

func (t Table) function() (*node.Function, error) { return node.NewFunction(t.X, t.Y) }

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
