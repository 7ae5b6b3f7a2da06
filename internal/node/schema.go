package node

import (
	"fmt"

	"github.com/san-kum/nodesim/internal/dynamo"
)

// VarKind selects one of the name lists of a Schema.
type VarKind int

const (
	Scalars VarKind = iota
	Vectors
	Params
	Funcs
	SharedParams
	SharedFuncs
	ExtInputs
	SimInputs
	Outputs

	numKinds
)

var kindNames = [numKinds]string{
	"state_scalar", "state_vector", "param_num", "param_fun",
	"shared_num", "shared_fun", "input_ext", "input_sim", "output",
}

func (k VarKind) String() string {
	if k < 0 || k >= numKinds {
		return fmt.Sprintf("VarKind(%d)", int(k))
	}
	return kindNames[k]
}

// SchemaSpec lists the variable names a node kind declares.
type SchemaSpec struct {
	Scalars      []string
	Vectors      []string
	Params       []string
	Funcs        []string
	SharedParams []string
	SharedFuncs  []string
	ExtInputs    []string
	SimInputs    []string
	Outputs      []string
}

func (s SchemaSpec) list(k VarKind) []string {
	switch k {
	case Scalars:
		return s.Scalars
	case Vectors:
		return s.Vectors
	case Params:
		return s.Params
	case Funcs:
		return s.Funcs
	case SharedParams:
		return s.SharedParams
	case SharedFuncs:
		return s.SharedFuncs
	case ExtInputs:
		return s.ExtInputs
	case SimInputs:
		return s.SimInputs
	case Outputs:
		return s.Outputs
	}
	return nil
}

// Schema is the frozen form of a SchemaSpec. It is shared by a group and
// all of its nodes.
type Schema struct {
	name  string
	names [numKinds][]string
	index [numKinds]map[string]int
}

func NewSchema(name string, spec SchemaSpec) (*Schema, error) {
	s := &Schema{name: name}
	for k := VarKind(0); k < numKinds; k++ {
		list := spec.list(k)
		s.names[k] = append([]string(nil), list...)
		s.index[k] = make(map[string]int, len(list))
		for i, n := range list {
			if _, dup := s.index[k][n]; dup {
				return nil, fmt.Errorf("%w: %s name %q in schema %s", dynamo.ErrDuplicateID, k, n, name)
			}
			s.index[k][n] = i
		}
	}
	return s, nil
}

func (s *Schema) Name() string { return s.name }

// Index returns the position of name in the list of kind k.
func (s *Schema) Index(k VarKind, name string) (int, error) {
	i, ok := s.index[k][name]
	if !ok {
		return 0, fmt.Errorf("%w: no %s named %q in schema %s", dynamo.ErrUnknownVariable, k, name, s.name)
	}
	return i, nil
}

func (s *Schema) Len(k VarKind) int { return len(s.names[k]) }

func (s *Schema) Names(k VarKind) []string {
	return append([]string(nil), s.names[k]...)
}

// Name of element i of kind k.
func (s *Schema) NameOf(k VarKind, i int) string { return s.names[k][i] }
