package kinds

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/nodesim/internal/dynamo"
	"github.com/san-kum/nodesim/internal/forcing"
	"github.com/san-kum/nodesim/internal/integrators"
	"github.com/san-kum/nodesim/internal/linkage"
	"github.com/san-kum/nodesim/internal/node"
)

type testNet struct {
	t     *testing.T
	arena *node.Arena
}

func newNet(t *testing.T) *testNet {
	return &testNet{t: t, arena: node.NewArena()}
}

func (tn *testNet) group(id, kind string, integ dynamo.Integrator) *node.Group {
	tn.t.Helper()
	k, err := Lookup(kind)
	if err != nil {
		tn.t.Fatal(err)
	}
	g, err := node.NewGroup(id, k, integ)
	if err != nil {
		tn.t.Fatal(err)
	}
	if err := tn.arena.AddGroup(g); err != nil {
		tn.t.Fatal(err)
	}
	return g
}

func (tn *testNet) add(id string, g *node.Group, params map[string]float64) *node.Node {
	tn.t.Helper()
	n, err := tn.arena.Add(id, g)
	if err != nil {
		tn.t.Fatal(err)
	}
	for k, v := range params {
		if err := n.SetParam(k, v); err != nil {
			tn.t.Fatal(err)
		}
	}
	return n
}

func (tn *testNet) link(links []linkage.LinkRow, ext []linkage.ExternalRow, fc forcing.Collection) {
	tn.t.Helper()
	if _, err := linkage.NewResolver(tn.arena, fc).Resolve(links, ext); err != nil {
		tn.t.Fatal(err)
	}
	if err := tn.arena.Prepare(); err != nil {
		tn.t.Fatal(err)
	}
}

func TestLookup(t *testing.T) {
	for _, name := range Names() {
		k, err := Lookup(name)
		if err != nil {
			t.Fatalf("Lookup(%s): %v", name, err)
		}
		if k.Name() != name {
			t.Errorf("Lookup(%s).Name() = %s", name, k.Name())
		}
		if _, err := node.NewSchema(name, k.Schema()); err != nil {
			t.Errorf("%s schema invalid: %v", name, err)
		}
	}
	if _, err := Lookup("pump"); !errors.Is(err, dynamo.ErrUnknownVariable) {
		t.Errorf("expected ErrUnknownVariable, got %v", err)
	}
	a, _ := Lookup("reservoir")
	b, _ := Lookup("reservoir")
	if a == b {
		t.Error("Lookup returned a shared instance")
	}
}

func TestDecay_CashKarp(t *testing.T) {
	tn := newNet(t)
	g := tn.group("decay", "decay", integrators.NewCashKarp(1e-6, 0))
	n := tn.add("d", g, map[string]float64{"k": 0.1})
	if err := n.SetScalar("y", 100); err != nil {
		t.Fatal(err)
	}
	tn.link(nil, nil, nil)

	if n.Output(0) != 100 {
		t.Errorf("initial output = %g, want 100", n.Output(0))
	}
	if err := n.Simulate(10); err != nil {
		t.Fatal(err)
	}
	expected := 100 * math.Exp(-1)
	if math.Abs(n.Output(0)-expected) > 1e-5 {
		t.Errorf("y = %.9f, want %.9f", n.Output(0), expected)
	}
}

func TestReservoir_FillsTowardsEquilibrium(t *testing.T) {
	tn := newNet(t)
	src := tn.add("up", tn.group("src", "constant", nil), map[string]float64{"value": 2})
	res := tn.add("res", tn.group("res", "reservoir", integrators.NewCashKarp(1e-8, 0)),
		map[string]float64{"k": 3600, "area": 100})
	if err := res.SetScalar("volume", 0); err != nil {
		t.Fatal(err)
	}

	rain := forcing.NewStatic(map[string]map[string]float64{"rain": {"st": 0}})
	tn.link(
		[]linkage.LinkRow{{Target: "res", TargetVar: "inflow", Source: "up", SourceVar: "value", Forward: true}},
		[]linkage.ExternalRow{{Node: "res", Variable: "rain", Location: "st", Weight: 1}},
		rain,
	)

	if err := src.Simulate(3600); err != nil {
		t.Fatal(err)
	}
	if err := res.Simulate(3600); err != nil {
		t.Fatal(err)
	}
	want := 2 * 3600 * (1 - math.Exp(-1))
	if got := res.Output(1); math.Abs(got-want)/want > 1e-6 {
		t.Errorf("volume after one step = %.4f, want %.4f", got, want)
	}
	if got := res.Output(0); math.Abs(got-want/3600)/(want/3600) > 1e-6 {
		t.Errorf("outflow = %g, want %g", got, want/3600)
	}

	// rain adds rate*area
	addr, _ := rain.ValueAddress("rain", "st")
	rain.Set(addr, 0.01)
	for i := 0; i < 50; i++ {
		if err := res.Simulate(3600); err != nil {
			t.Fatal(err)
		}
	}
	if got := res.Output(0); math.Abs(got-3) > 1e-6 {
		t.Errorf("equilibrium outflow = %g, want 3", got)
	}
}

func TestReservoir_InvalidRetention(t *testing.T) {
	tn := newNet(t)
	tn.add("up", tn.group("src", "constant", nil), map[string]float64{"value": 1})
	res := tn.add("res", tn.group("res", "reservoir", integrators.NewEuler()),
		map[string]float64{"k": 0, "area": 1})
	_ = res.SetScalar("volume", 1)

	rain := forcing.NewStatic(map[string]map[string]float64{"rain": {"st": 0}})
	if _, err := linkage.NewResolver(tn.arena, rain).Resolve(
		[]linkage.LinkRow{{Target: "res", TargetVar: "inflow", Source: "up", SourceVar: "value", Forward: true}},
		[]linkage.ExternalRow{{Node: "res", Variable: "rain", Location: "st", Weight: 1}},
	); err != nil {
		t.Fatal(err)
	}
	err := tn.arena.Prepare()
	var se *dynamo.SetupError
	if !errors.As(err, &se) || se.Node != "res" {
		t.Errorf("expected setup error for res, got %v", err)
	}
}

func TestJunction(t *testing.T) {
	tn := newNet(t)
	src := tn.group("src", "constant", nil)
	a := tn.add("a", src, map[string]float64{"value": 1})
	b := tn.add("b", src, map[string]float64{"value": 2})
	jg := tn.group("junction", "junction", nil)
	if err := jg.SetShared("wa", 0.5); err != nil {
		t.Fatal(err)
	}
	if err := jg.SetShared("wb", 2); err != nil {
		t.Fatal(err)
	}
	j := tn.add("j", jg, nil)
	tn.link([]linkage.LinkRow{
		{Target: "j", TargetVar: "a", Source: "a", SourceVar: "value", Forward: true},
		{Target: "j", TargetVar: "b", Source: "b", SourceVar: "value", Forward: true},
	}, nil, nil)

	for _, n := range []*node.Node{a, b, j} {
		if err := n.Simulate(60); err != nil {
			t.Fatal(err)
		}
	}
	if got := j.Output(0); got != 4.5 {
		t.Errorf("sum = %g, want 4.5", got)
	}
}

func TestJunction_MissingWeight(t *testing.T) {
	tn := newNet(t)
	src := tn.group("src", "constant", nil)
	tn.add("a", src, map[string]float64{"value": 1})
	jg := tn.group("junction", "junction", nil)
	_ = jg.SetShared("wa", 1)
	tn.add("j", jg, nil)

	if _, err := linkage.NewResolver(tn.arena, nil).Resolve([]linkage.LinkRow{
		{Target: "j", TargetVar: "a", Source: "a", SourceVar: "value", Forward: true},
		{Target: "j", TargetVar: "b", Source: "a", SourceVar: "value", Forward: true},
	}, nil); err != nil {
		t.Fatal(err)
	}
	if err := tn.arena.Prepare(); !errors.Is(err, dynamo.ErrMissingValue) {
		t.Errorf("expected ErrMissingValue, got %v", err)
	}
}

func TestRating(t *testing.T) {
	tn := newNet(t)
	stage := tn.add("stage", tn.group("src", "constant", nil), map[string]float64{"value": 1.5})
	r := tn.add("r", tn.group("rating", "rating", nil), nil)
	curve, err := node.NewFunction([]float64{0, 1, 2}, []float64{0, 10, 40})
	if err != nil {
		t.Fatal(err)
	}
	if err := r.SetFunc("curve", curve); err != nil {
		t.Fatal(err)
	}
	tn.link([]linkage.LinkRow{
		{Target: "r", TargetVar: "stage", Source: "stage", SourceVar: "value", Forward: true},
	}, nil, nil)

	if err := r.Simulate(60); err != nil {
		t.Fatal(err)
	}
	if got := r.Output(0); got != 25 {
		t.Errorf("flow = %g, want 25", got)
	}

	if err := stage.SetParam("value", 3); err != nil {
		t.Fatal(err)
	}
	if err := stage.Simulate(60); err != nil {
		t.Fatal(err)
	}
	if err := r.Simulate(60); !errors.Is(err, dynamo.ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}
}
