package modelfile

import (
	"errors"
	"fmt"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/san-kum/nodesim/internal/dynamo"
)

// hclRoot decodes every top-level block of a model file. Unknown blocks
// and attributes are decode errors.
type hclRoot struct {
	Groups   []*hclGroup    `hcl:"group,block"`
	Nodes    []*hclNode     `hcl:"node,block"`
	Links    []*hclLink     `hcl:"link,block"`
	External []*hclExternal `hcl:"external,block"`
}

type hclGroup struct {
	ID         string             `hcl:"id,label"`
	Kind       string             `hcl:"kind"`
	Integrator string             `hcl:"integrator,optional"`
	Method     int                `hcl:"method,optional"`
	Eps        float64            `hcl:"eps,optional"`
	NMax       int                `hcl:"nmax,optional"`
	Debug      bool               `hcl:"debug,optional"`
	Shared     map[string]float64 `hcl:"shared,optional"`
	Functions  []*hclFunction     `hcl:"function,block"`
}

type hclNode struct {
	ID        string               `hcl:"id,label"`
	Group     string               `hcl:"group"`
	Params    map[string]float64   `hcl:"params,optional"`
	Scalars   map[string]float64   `hcl:"scalars,optional"`
	Vectors   map[string][]float64 `hcl:"vectors,optional"`
	Functions []*hclFunction       `hcl:"function,block"`
}

type hclFunction struct {
	Name string    `hcl:"name,label"`
	X    []float64 `hcl:"x"`
	Y    []float64 `hcl:"y"`
}

type hclLink struct {
	Target   string `hcl:"target"`
	Input    string `hcl:"input"`
	Source   string `hcl:"source"`
	Output   string `hcl:"output"`
	Backward bool   `hcl:"backward,optional"`
}

type hclExternal struct {
	Node     string   `hcl:"node"`
	Variable string   `hcl:"variable"`
	Location string   `hcl:"location"`
	Weight   *float64 `hcl:"weight,optional"`
}

// ParseHCL decodes an HCL model. filename is used in diagnostics only.
func ParseHCL(src []byte, filename string) (*Model, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}

	var root hclRoot
	diags = gohcl.DecodeBody(file.Body, nil, &root)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", filename, diags)
	}

	m := &Model{}
	var errs []error
	for _, g := range root.Groups {
		fns, err := tables(g.Functions)
		if err != nil {
			errs = append(errs, &dynamo.SetupError{Op: "group " + g.ID, Err: err})
		}
		m.Groups = append(m.Groups, GroupDecl{
			ID:         g.ID,
			Kind:       g.Kind,
			Integrator: g.Integrator,
			Method:     g.Method,
			Eps:        g.Eps,
			NMax:       g.NMax,
			Debug:      g.Debug,
			Shared:     g.Shared,
			Functions:  fns,
		})
	}
	for _, n := range root.Nodes {
		fns, err := tables(n.Functions)
		if err != nil {
			errs = append(errs, &dynamo.SetupError{Op: "parse model", Node: n.ID, Err: err})
		}
		m.Nodes = append(m.Nodes, NodeDecl{
			ID:        n.ID,
			Group:     n.Group,
			Params:    n.Params,
			Functions: fns,
			Scalars:   n.Scalars,
			Vectors:   n.Vectors,
		})
	}
	for _, l := range root.Links {
		m.Links = append(m.Links, LinkDecl{
			Target:   l.Target,
			Input:    l.Input,
			Source:   l.Source,
			Output:   l.Output,
			Backward: l.Backward,
		})
	}
	for _, e := range root.External {
		m.External = append(m.External, ExternalDecl{
			Node:     e.Node,
			Variable: e.Variable,
			Location: e.Location,
			Weight:   e.Weight,
		})
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return m, nil
}

// tables collects function blocks by name. A name may appear once, as a
// key of a YAML mapping may.
func tables(fns []*hclFunction) (map[string]Table, error) {
	if len(fns) == 0 {
		return nil, nil
	}
	out := make(map[string]Table, len(fns))
	for _, f := range fns {
		if _, ok := out[f.Name]; ok {
			return nil, fmt.Errorf("%w: function %q declared twice", dynamo.ErrDuplicateID, f.Name)
		}
		out[f.Name] = Table{X: f.X, Y: f.Y}
	}
	return out, nil
}
