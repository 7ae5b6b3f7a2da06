// Package output writes node outputs, debug records and state snapshots
// produced during a run.
package output

import (
	"time"

	"github.com/san-kum/nodesim/internal/node"
)

// TimeLayout is used for every timestamp written by this package.
const TimeLayout = time.RFC3339

// Rule selects output Variable of node Node. An empty or "*" field matches
// any value.
type Rule struct {
	Node     string
	Variable string
}

func (r Rule) match(id, variable string) bool {
	return wild(r.Node, id) && wild(r.Variable, variable)
}

func wild(pattern, s string) bool { return pattern == "" || pattern == "*" || pattern == s }

// Selection is a set of rules. A nil or empty selection selects everything.
type Selection struct {
	rules []Rule
}

func NewSelection(rules ...Rule) *Selection {
	return &Selection{rules: append([]Rule(nil), rules...)}
}

func (s *Selection) Match(id, variable string) bool {
	if s == nil || len(s.rules) == 0 {
		return true
	}
	for _, r := range s.rules {
		if r.match(id, variable) {
			return true
		}
	}
	return false
}

type row struct {
	variable string
	value    float64
}

// rows returns the selected outputs of n in schema order.
func (s *Selection) rows(n *node.Node) []row {
	schema := n.Schema()
	var out []row
	for i := 0; i < schema.Len(node.Outputs); i++ {
		name := schema.NameOf(node.Outputs, i)
		if s.Match(n.ID(), name) {
			out = append(out, row{variable: name, value: n.Output(i)})
		}
	}
	return out
}
