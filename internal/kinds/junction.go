package kinds

import "github.com/san-kum/nodesim/internal/node"

// Junction adds two upstream flows with group-wide weights.
type Junction struct {
	a, b, wa, wb, sum int
}

func (j *Junction) Name() string { return "junction" }

func (j *Junction) Schema() node.SchemaSpec {
	return node.SchemaSpec{
		SharedParams: []string{"wa", "wb"},
		SimInputs:    []string{"a", "b"},
		Outputs:      []string{"sum"},
	}
}

func (j *Junction) Prepare(s *node.Schema) error {
	ix := indexer{s: s}
	j.a = ix.at(node.SimInputs, "a")
	j.b = ix.at(node.SimInputs, "b")
	j.wa = ix.at(node.SharedParams, "wa")
	j.wb = ix.at(node.SharedParams, "wb")
	j.sum = ix.at(node.Outputs, "sum")
	return ix.err
}

func (j *Junction) Simulate(n *node.Node, _ float64) error {
	n.SetOutput(j.sum, n.SharedNum(j.wa)*n.InputSim(j.a)+n.SharedNum(j.wb)*n.InputSim(j.b))
	return nil
}

// Rating converts an upstream stage to a flow with a tabulated curve.
type Rating struct {
	stage, curve, flow int
}

func (r *Rating) Name() string { return "rating" }

func (r *Rating) Schema() node.SchemaSpec {
	return node.SchemaSpec{
		Funcs:     []string{"curve"},
		SimInputs: []string{"stage"},
		Outputs:   []string{"flow"},
	}
}

func (r *Rating) Prepare(s *node.Schema) error {
	ix := indexer{s: s}
	r.stage = ix.at(node.SimInputs, "stage")
	r.curve = ix.at(node.Funcs, "curve")
	r.flow = ix.at(node.Outputs, "flow")
	return ix.err
}

func (r *Rating) Simulate(n *node.Node, _ float64) error {
	q, err := n.ParamFun(r.curve, n.InputSim(r.stage))
	if err != nil {
		return err
	}
	n.SetOutput(r.flow, q)
	return nil
}
