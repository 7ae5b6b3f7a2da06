package forcing

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/san-kum/nodesim/internal/dynamo"
)

// Static is a Collection whose values never change. Refresh only checks the
// window. An empty Static serves networks without external inputs.
type Static struct {
	names map[string][]string
	addr  map[string]map[string]Address
	buf   []float64
}

// NewStatic builds a collection from variable -> location -> value.
func NewStatic(values map[string]map[string]float64) *Static {
	s := &Static{
		names: make(map[string][]string),
		addr:  make(map[string]map[string]Address),
	}
	vars := make([]string, 0, len(values))
	for v := range values {
		vars = append(vars, v)
	}
	sort.Strings(vars)
	for _, v := range vars {
		locs := make([]string, 0, len(values[v]))
		for loc := range values[v] {
			locs = append(locs, loc)
		}
		sort.Strings(locs)
		s.names[v] = locs
		s.addr[v] = make(map[string]Address, len(locs))
		for _, loc := range locs {
			s.addr[v][loc] = Address(len(s.buf))
			s.buf = append(s.buf, values[v][loc])
		}
	}
	return s
}

// Set changes one value. It must not be called while a step is running.
func (s *Static) Set(a Address, v float64) { s.buf[a] = v }

func (s *Static) VariableNames() []string {
	names := make([]string, 0, len(s.names))
	for v := range s.names {
		names = append(names, v)
	}
	sort.Strings(names)
	return names
}

func (s *Static) LocationsOf(variable string) ([]string, error) {
	locs, ok := s.names[variable]
	if !ok {
		return nil, fmt.Errorf("%w: forcing variable %q", dynamo.ErrUnknownVariable, variable)
	}
	return append([]string(nil), locs...), nil
}

func (s *Static) ValueAddress(variable, location string) (Address, error) {
	locs, ok := s.addr[variable]
	if !ok {
		return 0, fmt.Errorf("%w: forcing variable %q", dynamo.ErrUnknownVariable, variable)
	}
	a, ok := locs[location]
	if !ok {
		return 0, fmt.Errorf("%w: location %q of forcing variable %q", dynamo.ErrUnknownVariable, location, variable)
	}
	return a, nil
}

func (s *Static) Value(a Address) float64 { return s.buf[a] }

func (s *Static) Refresh(_ context.Context, windowStart, windowEnd time.Time) error {
	if !windowEnd.After(windowStart) {
		return ErrEmptyWindow
	}
	return nil
}
