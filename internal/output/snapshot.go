package output

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/nodesim/internal/logging"
	"github.com/san-kum/nodesim/internal/modelfile"
	"github.com/san-kum/nodesim/internal/node"
)

// Snapshot holds the continuous state of every node at the end of a step.
type Snapshot struct {
	Step  int         `yaml:"step"`
	Time  time.Time   `yaml:"time"`
	Nodes []NodeState `yaml:"nodes"`
}

type NodeState struct {
	ID      string               `yaml:"id"`
	Scalars map[string]float64   `yaml:"scalars,omitempty"`
	Vectors map[string][]float64 `yaml:"vectors,omitempty"`
}

// Take copies the states of every node of a, in declaration order.
func Take(step int, t time.Time, a *node.Arena) *Snapshot {
	s := &Snapshot{Step: step, Time: t.UTC()}
	for _, n := range a.Nodes() {
		schema := n.Schema()
		ns := NodeState{ID: n.ID(), Scalars: named(schema, node.Scalars, n.Scalars())}
		if vs := n.Vectors(); len(vs) > 0 {
			ns.Vectors = make(map[string][]float64, len(vs))
			for i, v := range vs {
				ns.Vectors[schema.NameOf(node.Vectors, i)] = v
			}
		}
		s.Nodes = append(s.Nodes, ns)
	}
	return s
}

// Apply makes the snapshot the initial condition of m.
func (s *Snapshot) Apply(m *modelfile.Model) error {
	var errs []error
	for _, ns := range s.Nodes {
		if err := m.SetInitial(ns.ID, ns.Scalars, ns.Vectors); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Snapshot) Save(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Snapshot
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", path, err)
	}
	return &s, nil
}

// SnapshotWriter saves a snapshot at each requested step end and,
// optionally, at the end of the run.
type SnapshotWriter struct {
	dir   string
	times []time.Time
	done  []bool
	final time.Time
	log   *slog.Logger

	Written []string
}

// NewSnapshotWriter writes into dir. final is the end of the last step; a
// zero final disables the final snapshot.
func NewSnapshotWriter(dir string, times []time.Time, final time.Time) (*SnapshotWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &SnapshotWriter{
		dir:   dir,
		times: append([]time.Time(nil), times...),
		done:  make([]bool, len(times)),
		final: final,
		log:   logging.New("snapshot"),
	}, nil
}

func (w *SnapshotWriter) Snapshot(step int, t time.Time, a *node.Arena) error {
	var names []string
	for i, at := range w.times {
		if !w.done[i] && at.Equal(t) {
			w.done[i] = true
			names = append(names, "state_"+t.UTC().Format("20060102T150405Z")+".yaml")
		}
	}
	if !w.final.IsZero() && w.final.Equal(t) {
		names = append(names, "state_final.yaml")
	}
	if len(names) == 0 {
		return nil
	}

	snap := Take(step, t, a)
	for _, name := range names {
		path := filepath.Join(w.dir, name)
		if err := snap.Save(path); err != nil {
			return err
		}
		w.Written = append(w.Written, path)
		w.log.Info("state saved", "step", step, "time", t.UTC().Format(TimeLayout), "path", path)
	}
	return nil
}

// Close reports requested times that never matched a step end.
func (w *SnapshotWriter) Close() error {
	for i, at := range w.times {
		if !w.done[i] {
			w.log.Warn("state output time is not a step end, nothing written", "time", at.UTC().Format(TimeLayout))
		}
	}
	return nil
}
