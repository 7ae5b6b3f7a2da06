package config

import (
	"sort"

	"github.com/san-kum/nodesim/internal/modelfile"
)

// Preset is a named integrator setting applied to every group of a model
// that integrates continuous state.
type Preset struct {
	Integrator string
	Eps        float64
	NMax       int
}

var Presets = map[string]*Preset{
	"fast":     {Integrator: "euler"},
	"balanced": {Integrator: "rk4"},
	"accurate": {Integrator: "cashkarp", Eps: 1e-8, NMax: 100000},
	"adaptive": {Integrator: "cashkarp", Eps: 1e-6},
	"stiff":    {Integrator: "implicit_euler", Eps: 1e-8, NMax: 500},
}

func GetPreset(name string) *Preset {
	p, ok := Presets[name]
	if !ok {
		return nil
	}
	return p
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Apply overrides the method of every group that declares one. Groups of
// stateless kinds declare none and are left alone.
func (p *Preset) Apply(m *modelfile.Model) int {
	n := 0
	for i := range m.Groups {
		g := &m.Groups[i]
		if g.Integrator == "" && g.Method == 0 {
			continue
		}
		g.Integrator = p.Integrator
		g.Method = 0
		g.Eps = p.Eps
		g.NMax = p.NMax
		n++
	}
	return n
}
