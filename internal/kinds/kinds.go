// Package kinds provides the node kinds available to model files.
package kinds

import (
	"fmt"
	"sort"

	"github.com/san-kum/nodesim/internal/dynamo"
	"github.com/san-kum/nodesim/internal/node"
)

var registry = map[string]func() node.Kind{
	"constant":  func() node.Kind { return &Constant{} },
	"decay":     func() node.Kind { return &Decay{} },
	"reservoir": func() node.Kind { return &Reservoir{} },
	"junction":  func() node.Kind { return &Junction{} },
	"rating":    func() node.Kind { return &Rating{} },
}

// Lookup returns a new instance of the named kind. Instances hold indices
// resolved against their group's schema and must not be shared by groups.
func Lookup(name string) (node.Kind, error) {
	fn, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: node kind %q (available: %v)", dynamo.ErrUnknownVariable, name, Names())
	}
	return fn(), nil
}

func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// indexer collects the first lookup error so Prepare methods stay flat.
type indexer struct {
	s   *node.Schema
	err error
}

func (ix *indexer) at(k node.VarKind, name string) int {
	if ix.err != nil {
		return 0
	}
	i, err := ix.s.Index(k, name)
	if err != nil {
		ix.err = err
	}
	return i
}
