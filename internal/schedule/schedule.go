// Package schedule partitions nodes into processing stages by level.
//
// Stage k holds every node at the k-th smallest level, in declaration
// order. The stages of a run are computed once and never change.
package schedule

import "sort"

type Stages struct {
	stages [][]int
	levels []int
}

// Build groups node indices by level. levels[i] is the level of node i.
func Build(levels []int) Stages {
	byLevel := make(map[int][]int)
	for i, l := range levels {
		byLevel[l] = append(byLevel[l], i)
	}
	keys := make([]int, 0, len(byLevel))
	for l := range byLevel {
		keys = append(keys, l)
	}
	sort.Ints(keys)

	s := Stages{
		stages: make([][]int, 0, len(keys)),
		levels: keys,
	}
	for _, l := range keys {
		s.stages = append(s.stages, byLevel[l])
	}
	return s
}

func (s Stages) Len() int { return len(s.stages) }

// At returns a copy of the members of stage k.
func (s Stages) At(k int) []int {
	return append([]int(nil), s.stages[k]...)
}

// Level returns the node level scheduled in stage k.
func (s Stages) Level(k int) int { return s.levels[k] }

// Each calls fn for every stage in order until fn returns false. members
// must not be modified.
func (s Stages) Each(fn func(k int, members []int) bool) {
	for k, m := range s.stages {
		if !fn(k, m) {
			return
		}
	}
}

// Widest returns the size of the largest stage.
func (s Stages) Widest() int {
	w := 0
	for _, m := range s.stages {
		if len(m) > w {
			w = len(m)
		}
	}
	return w
}
