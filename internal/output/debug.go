package output

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/san-kum/nodesim/internal/node"
)

// DebugRecord is one JSON line of the debug stream.
type DebugRecord struct {
	Step    int                  `json:"step"`
	Time    time.Time            `json:"time"`
	Node    string               `json:"node"`
	Group   string               `json:"group"`
	Level   int                  `json:"level"`
	Params  map[string]float64   `json:"params,omitempty"`
	Ext     map[string]float64   `json:"inputs_ext,omitempty"`
	Sim     map[string]float64   `json:"inputs_sim,omitempty"`
	Scalars map[string]float64   `json:"scalars,omitempty"`
	Vectors map[string][]float64 `json:"vectors,omitempty"`
	Outputs map[string]float64   `json:"outputs"`
}

// DebugSink writes the full variable set of debug-enabled nodes after
// every step. A node is traced when its group has debug on or its id was
// passed to NewDebugSink.
type DebugSink struct {
	enc *json.Encoder
	c   io.Closer
	ids map[string]bool
}

func NewDebugSink(w io.Writer, ids ...string) *DebugSink {
	s := &DebugSink{enc: json.NewEncoder(w), ids: make(map[string]bool, len(ids))}
	if c, ok := w.(io.Closer); ok {
		s.c = c
	}
	for _, id := range ids {
		s.ids[id] = true
	}
	return s
}

func CreateDebug(path string, ids ...string) (*DebugSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return NewDebugSink(f, ids...), nil
}

func (s *DebugSink) traced(n *node.Node) bool { return n.Group().Debug() || s.ids[n.ID()] }

func (s *DebugSink) Output(step int, t time.Time, n *node.Node) error {
	if !s.traced(n) {
		return nil
	}
	schema := n.Schema()
	ext, sim := n.Inputs()
	rec := DebugRecord{
		Step:    step,
		Time:    t.UTC(),
		Node:    n.ID(),
		Group:   n.Group().ID(),
		Level:   n.Level(),
		Params:  named(schema, node.Params, n.Params()),
		Ext:     named(schema, node.ExtInputs, ext),
		Sim:     named(schema, node.SimInputs, sim),
		Scalars: named(schema, node.Scalars, n.Scalars()),
		Outputs: named(schema, node.Outputs, n.Outputs()),
	}
	if vs := n.Vectors(); len(vs) > 0 {
		rec.Vectors = make(map[string][]float64, len(vs))
		for i, v := range vs {
			rec.Vectors[schema.NameOf(node.Vectors, i)] = v
		}
	}
	return s.enc.Encode(rec)
}

func (s *DebugSink) Close() error {
	if s.c == nil {
		return nil
	}
	return s.c.Close()
}

func named(s *node.Schema, k node.VarKind, values []float64) map[string]float64 {
	if len(values) == 0 {
		return nil
	}
	m := make(map[string]float64, len(values))
	for i, v := range values {
		m[s.NameOf(k, i)] = v
	}
	return m
}
