// Package levels assigns scheduling levels from forward dependencies.
package levels

import (
	"fmt"
	"sort"

	"github.com/san-kum/nodesim/internal/dynamo"
)

// Assign computes a 1-based level per node with Kahn's algorithm. preds[i]
// lists the forward predecessors of node i. Nodes are released in FIFO
// order seeded by declaration order, so equal inputs give equal results.
//
// A node without forward predecessors gets level 1, any other node one more
// than its highest predecessor.
func Assign(preds [][]int) ([]int, error) {
	n := len(preds)
	indeg := make([]int, n)
	succs := make([][]int, n)
	for c, ps := range preds {
		for _, p := range ps {
			if p < 0 || p >= n {
				return nil, fmt.Errorf("%w: predecessor %d of node %d", dynamo.ErrUnknownNode, p, c)
			}
			indeg[c]++
			succs[p] = append(succs[p], c)
		}
	}

	level := make([]int, n)
	queue := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if indeg[i] == 0 {
			level[i] = 1
			queue = append(queue, i)
		}
	}

	for head := 0; head < len(queue); head++ {
		p := queue[head]
		for _, c := range succs[p] {
			if level[p]+1 > level[c] {
				level[c] = level[p] + 1
			}
			indeg[c]--
			if indeg[c] == 0 {
				queue = append(queue, c)
			}
		}
	}

	if len(queue) < n {
		return nil, &CycleError{Nodes: unresolved(indeg)}
	}
	if err := Check(preds, level); err != nil {
		return nil, err
	}
	return level, nil
}

// Check verifies level[p] < level[c] for every forward edge.
func Check(preds [][]int, level []int) error {
	for c, ps := range preds {
		if level[c] < 1 {
			return fmt.Errorf("%w: node %d has level %d", dynamo.ErrLevelInvariant, c, level[c])
		}
		for _, p := range ps {
			if level[p] >= level[c] {
				return fmt.Errorf("%w: node %d (level %d) reads node %d (level %d)",
					dynamo.ErrLevelInvariant, c, level[c], p, level[p])
			}
		}
	}
	return nil
}

// CycleError lists the nodes that are on, or depend on, a forward cycle.
type CycleError struct {
	Nodes []int
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%v: %d node(s) unresolved %v", dynamo.ErrForwardCycle, len(e.Nodes), e.Nodes)
}

func (e *CycleError) Unwrap() error { return dynamo.ErrForwardCycle }

func unresolved(indeg []int) []int {
	var nodes []int
	for i, d := range indeg {
		if d > 0 {
			nodes = append(nodes, i)
		}
	}
	sort.Ints(nodes)
	return nodes
}
