// Package linkage binds declared node inputs to producer outputs and
// forcing values.
package linkage

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/san-kum/nodesim/internal/dynamo"
	"github.com/san-kum/nodesim/internal/forcing"
	"github.com/san-kum/nodesim/internal/logging"
	"github.com/san-kum/nodesim/internal/node"
)

// LinkRow declares that input TargetVar of Target reads output SourceVar of
// Source. Backward rows read the value of the previous step.
type LinkRow struct {
	Target    string
	TargetVar string
	Source    string
	SourceVar string
	Forward   bool
}

// ExternalRow adds Weight times the forcing value of Variable at Location
// to the external input of the same name.
type ExternalRow struct {
	Node     string
	Variable string
	Location string
	Weight   float64
}

type Edge struct {
	Consumer node.Handle
	Slot     int
	Producer node.Handle
	Output   int
	Forward  bool
}

// Graph describes the resolved dependencies. Forward and Backward hold, per
// node, the distinct producers in declaration order.
type Graph struct {
	Edges    []Edge
	Forward  [][]int
	Backward [][]int
}

type pair struct{ consumer, producer node.Handle }

type Resolver struct {
	arena   *node.Arena
	forcing forcing.Collection
	log     *slog.Logger
}

// NewResolver returns a resolver for the nodes of a. c may be nil when no
// node has external inputs.
func NewResolver(a *node.Arena, c forcing.Collection) *Resolver {
	return &Resolver{arena: a, forcing: c, log: logging.New("linkage")}
}

// Resolve binds every row. All bad rows are reported, joined into one error.
func (r *Resolver) Resolve(links []LinkRow, external []ExternalRow) (*Graph, error) {
	n := r.arena.Len()
	g := &Graph{
		Forward:  make([][]int, n),
		Backward: make([][]int, n),
	}
	var errs []error
	failed := make(map[string]bool)
	fail := func(id string, err error) {
		errs = append(errs, &dynamo.SetupError{Op: "link", Node: id, Err: err})
		failed[id] = true
	}

	counts := make([]int, n)
	direction := make(map[pair]bool)
	conflicted := make(map[pair]bool)

	for _, row := range links {
		ch, ok := r.arena.Lookup(row.Target)
		if !ok {
			fail(row.Target, dynamo.ErrUnknownNode)
			continue
		}
		ph, ok := r.arena.Lookup(row.Source)
		if !ok {
			fail(row.Target, fmt.Errorf("%w: source %q of input %q", dynamo.ErrUnknownNode, row.Source, row.TargetVar))
			continue
		}
		counts[ch]++
		if ch == ph {
			fail(row.Target, fmt.Errorf("%w: input %q", dynamo.ErrSelfLoop, row.TargetVar))
			continue
		}
		consumer, producer := r.arena.Node(ch), r.arena.Node(ph)
		slot, err := consumer.Schema().Index(node.SimInputs, row.TargetVar)
		if err != nil {
			fail(row.Target, err)
			continue
		}
		out, err := producer.Schema().Index(node.Outputs, row.SourceVar)
		if err != nil {
			fail(row.Target, fmt.Errorf("source %s: %w", row.Source, err))
			continue
		}

		p := pair{ch, ph}
		if fwd, seen := direction[p]; seen {
			if fwd != row.Forward {
				if !conflicted[p] {
					fail(row.Target, fmt.Errorf("%w: %s", dynamo.ErrDirectionConflict, row.Source))
					conflicted[p] = true
				}
				continue
			}
		} else {
			direction[p] = row.Forward
			if row.Forward {
				g.Forward[ch] = append(g.Forward[ch], int(ph))
			} else {
				g.Backward[ch] = append(g.Backward[ch], int(ph))
			}
		}

		in := node.SimInput{Producer: ph, Output: out, Forward: row.Forward}
		if err := consumer.BindSim(slot, in); err != nil {
			fail(row.Target, err)
			continue
		}
		g.Edges = append(g.Edges, Edge{Consumer: ch, Slot: slot, Producer: ph, Output: out, Forward: row.Forward})
	}

	for _, row := range external {
		if err := r.bindExternal(row); err != nil {
			fail(row.Node, err)
		}
	}

	for _, nd := range r.arena.Nodes() {
		s := nd.Schema()
		if failed[nd.ID()] {
			continue
		}
		if want := s.Len(node.SimInputs); counts[nd.Handle()] != want {
			fail(nd.ID(), fmt.Errorf("%w: %d link rows for %d internal inputs", dynamo.ErrSlotCount, counts[nd.Handle()], want))
		} else {
			for i := 0; i < want; i++ {
				if _, bound := nd.SimBinding(i); !bound {
					fail(nd.ID(), fmt.Errorf("%w: internal input %q not bound", dynamo.ErrSlotCount, s.NameOf(node.SimInputs, i)))
				}
			}
		}
		for i := 0; i < s.Len(node.ExtInputs); i++ {
			if len(nd.ExtTerms(i)) == 0 {
				fail(nd.ID(), fmt.Errorf("%w: external input %q has no source", dynamo.ErrSlotCount, s.NameOf(node.ExtInputs, i)))
			}
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if r.forcing != nil {
		r.arena.SetValues(r.forcing)
	}

	r.log.Info("links resolved", "nodes", n, "edges", len(g.Edges), "external", len(external))
	return g, nil
}

func (r *Resolver) bindExternal(row ExternalRow) error {
	h, ok := r.arena.Lookup(row.Node)
	if !ok {
		return dynamo.ErrUnknownNode
	}
	nd := r.arena.Node(h)
	slot, err := nd.Schema().Index(node.ExtInputs, row.Variable)
	if err != nil {
		return err
	}
	if r.forcing == nil {
		return fmt.Errorf("%w: no forcing source for %q", dynamo.ErrUnknownVariable, row.Variable)
	}
	addr, err := r.forcing.ValueAddress(row.Variable, row.Location)
	if err != nil {
		return err
	}
	nd.AddExt(slot, node.ExtTerm{Addr: addr, Weight: row.Weight})
	return nil
}
