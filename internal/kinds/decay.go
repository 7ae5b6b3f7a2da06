package kinds

import (
	"github.com/san-kum/nodesim/internal/dynamo"
	"github.com/san-kum/nodesim/internal/node"
)

// Constant emits a fixed parameter value. It serves as a boundary inflow.
type Constant struct {
	value, out int
}

func (c *Constant) Name() string { return "constant" }

func (c *Constant) Schema() node.SchemaSpec {
	return node.SchemaSpec{Params: []string{"value"}, Outputs: []string{"value"}}
}

func (c *Constant) Prepare(s *node.Schema) error {
	ix := indexer{s: s}
	c.value = ix.at(node.Params, "value")
	c.out = ix.at(node.Outputs, "value")
	return ix.err
}

func (c *Constant) Simulate(n *node.Node, _ float64) error {
	n.SetOutput(c.out, n.ParamNum(c.value))
	return nil
}

func (c *Constant) InitOutputs(n *node.Node) error {
	n.SetOutput(c.out, n.ParamNum(c.value))
	return nil
}

// Decay is first order decay, dy/dt = -k*y.
type Decay struct {
	y, k, out int
}

func (d *Decay) Name() string { return "decay" }

func (d *Decay) Schema() node.SchemaSpec {
	return node.SchemaSpec{
		Scalars: []string{"y"},
		Params:  []string{"k"},
		Outputs: []string{"y"},
	}
}

func (d *Decay) Prepare(s *node.Schema) error {
	ix := indexer{s: s}
	d.y = ix.at(node.Scalars, "y")
	d.k = ix.at(node.Params, "k")
	d.out = ix.at(node.Outputs, "y")
	return ix.err
}

func (d *Decay) Derivatives(n *node.Node, _ float64, y dynamo.State, _ float64) (dynamo.State, error) {
	return dynamo.State{-n.ParamNum(d.k) * y[0]}, nil
}

func (d *Decay) Simulate(n *node.Node, dt float64) error {
	y1, err := n.Integrate(dynamo.State{n.StateScal(d.y)}, dt)
	if err != nil {
		return err
	}
	n.SetStateScal(d.y, y1[0])
	n.SetOutput(d.out, y1[0])
	return nil
}

func (d *Decay) InitOutputs(n *node.Node) error {
	n.SetOutput(d.out, n.StateScal(d.y))
	return nil
}
