package integrators

import (
	"fmt"
	"sort"

	"github.com/san-kum/nodesim/internal/dynamo"
)

// Options carries the tuning values a group declares for its integrator.
// Methods without error control ignore them.
type Options struct {
	Eps  float64
	NMax int
}

var registry = map[string]func(Options) dynamo.Integrator{
	"euler":          func(Options) dynamo.Integrator { return NewEuler() },
	"midpoint":       func(Options) dynamo.Integrator { return NewMidpoint() },
	"rk4":            func(Options) dynamo.Integrator { return NewRK4() },
	"cashkarp":       func(o Options) dynamo.Integrator { return NewCashKarp(o.Eps, o.NMax) },
	"implicit_euler": func(o Options) dynamo.Integrator { return NewImplicitEuler(o.Eps, o.NMax) },
}

// codes maps the numeric method choices of legacy model files to names.
var codes = map[int]string{
	1: "euler",
	2: "midpoint",
	3: "rk4",
	4: "cashkarp",
	5: "implicit_euler",
}

func New(name string, opts Options) (dynamo.Integrator, error) {
	fn, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown integrator: %s (available: %v)", name, Names())
	}
	return fn(opts), nil
}

// FromCode resolves a numeric method choice (1-5).
func FromCode(code int, opts Options) (dynamo.Integrator, error) {
	name, ok := codes[code]
	if !ok {
		return nil, fmt.Errorf("unknown integrator code: %d (valid: 1-%d)", code, len(codes))
	}
	return New(name, opts)
}

func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
