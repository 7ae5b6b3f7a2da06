package kinds

import (
	"fmt"

	"github.com/san-kum/nodesim/internal/dynamo"
	"github.com/san-kum/nodesim/internal/node"
)

// Reservoir is a linear storage fed by an upstream inflow and by rain on
// its surface:
//
//	dV/dt = inflow + rain*area - V/k
//
// k is the retention constant in seconds, rain a rate per second and unit
// area. The outflow output is the release at the end of the step.
type Reservoir struct {
	volume       int
	k, area      int
	rain, inflow int
	outflow, vol int
}

func (r *Reservoir) Name() string { return "reservoir" }

func (r *Reservoir) Schema() node.SchemaSpec {
	return node.SchemaSpec{
		Scalars:   []string{"volume"},
		Params:    []string{"k", "area"},
		ExtInputs: []string{"rain"},
		SimInputs: []string{"inflow"},
		Outputs:   []string{"outflow", "volume"},
	}
}

func (r *Reservoir) Prepare(s *node.Schema) error {
	ix := indexer{s: s}
	r.volume = ix.at(node.Scalars, "volume")
	r.k = ix.at(node.Params, "k")
	r.area = ix.at(node.Params, "area")
	r.rain = ix.at(node.ExtInputs, "rain")
	r.inflow = ix.at(node.SimInputs, "inflow")
	r.outflow = ix.at(node.Outputs, "outflow")
	r.vol = ix.at(node.Outputs, "volume")
	return ix.err
}

func (r *Reservoir) Derivatives(n *node.Node, _ float64, y dynamo.State, _ float64) (dynamo.State, error) {
	k := n.ParamNum(r.k)
	if k <= 0 {
		return nil, fmt.Errorf("reservoir %s: retention constant must be positive, got %g", n.ID(), k)
	}
	in := n.InputSim(r.inflow) + n.InputExt(r.rain)*n.ParamNum(r.area)
	return dynamo.State{in - y[0]/k}, nil
}

func (r *Reservoir) Simulate(n *node.Node, dt float64) error {
	y1, err := n.Integrate(dynamo.State{n.StateScal(r.volume)}, dt)
	if err != nil {
		return err
	}
	v := y1[0]
	if v < 0 {
		v = 0
	}
	n.SetStateScal(r.volume, v)
	r.write(n)
	return nil
}

func (r *Reservoir) InitOutputs(n *node.Node) error {
	if n.ParamNum(r.k) <= 0 {
		return fmt.Errorf("retention constant must be positive, got %g", n.ParamNum(r.k))
	}
	r.write(n)
	return nil
}

func (r *Reservoir) write(n *node.Node) {
	v := n.StateScal(r.volume)
	n.SetOutput(r.outflow, v/n.ParamNum(r.k))
	n.SetOutput(r.vol, v)
}
