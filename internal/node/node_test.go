package node

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/nodesim/internal/dynamo"
	"github.com/san-kum/nodesim/internal/forcing"
	"github.com/san-kum/nodesim/internal/integrators"
)

// testDecay is dy/dt = -k*y with output y.
type testDecay struct{}

func (testDecay) Name() string { return "test_decay" }

func (testDecay) Schema() SchemaSpec {
	return SchemaSpec{Scalars: []string{"y"}, Params: []string{"k"}, Outputs: []string{"y"}}
}

func (testDecay) Simulate(n *Node, dt float64) error {
	y1, err := n.Integrate(dynamo.State{n.StateScal(0)}, dt)
	if err != nil {
		return err
	}
	n.SetStateScal(0, y1[0])
	n.SetOutput(0, y1[0])
	return nil
}

func (testDecay) Derivatives(n *Node, t float64, y dynamo.State, dt float64) (dynamo.State, error) {
	return dynamo.State{-n.ParamNum(0) * y[0]}, nil
}

func (testDecay) InitOutputs(n *Node) error {
	n.SetOutput(0, n.StateScal(0))
	return nil
}

// testCopy forwards input "in" plus rain to output "out".
type testCopy struct{}

func (testCopy) Name() string { return "test_copy" }

func (testCopy) Schema() SchemaSpec {
	return SchemaSpec{ExtInputs: []string{"rain"}, SimInputs: []string{"in"}, Outputs: []string{"out"}}
}

func (testCopy) Simulate(n *Node, dt float64) error {
	n.SetOutput(0, n.InputSim(0)+n.InputExt(0))
	return nil
}

func TestSchema(t *testing.T) {
	s, err := NewSchema("reservoir", SchemaSpec{
		Scalars: []string{"volume"},
		Outputs: []string{"outflow", "volume"},
	})
	if err != nil {
		t.Fatal(err)
	}

	if i, err := s.Index(Outputs, "volume"); err != nil || i != 1 {
		t.Errorf("Index(Outputs, volume) = %d, %v", i, err)
	}
	if _, err := s.Index(Params, "volume"); !errors.Is(err, dynamo.ErrUnknownVariable) {
		t.Errorf("expected ErrUnknownVariable, got %v", err)
	}
	if s.Len(Outputs) != 2 || s.NameOf(Outputs, 0) != "outflow" {
		t.Errorf("unexpected outputs %v", s.Names(Outputs))
	}

	_, err = NewSchema("bad", SchemaSpec{Params: []string{"k", "k"}})
	if !errors.Is(err, dynamo.ErrDuplicateID) {
		t.Errorf("expected ErrDuplicateID, got %v", err)
	}
}

func TestVarKindString(t *testing.T) {
	if SimInputs.String() != "input_sim" {
		t.Errorf("SimInputs.String() = %s", SimInputs)
	}
	if VarKind(42).String() != "VarKind(42)" {
		t.Errorf("unexpected %s", VarKind(42))
	}
}

func TestFunction_Eval(t *testing.T) {
	f, err := NewFunction([]float64{0, 1, 3}, []float64{0, 10, 30})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		x, want float64
	}{
		{0, 0}, {0.5, 5}, {1, 10}, {2, 20}, {3, 30}, {1.5, 15}, {0.25, 2.5},
	}
	cursor := 0
	for _, tt := range tests {
		got, err := f.Eval(tt.x, &cursor)
		if err != nil {
			t.Fatalf("Eval(%g): %v", tt.x, err)
		}
		if math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("Eval(%g) = %g, want %g", tt.x, got, tt.want)
		}
	}

	if _, err := f.Eval(3.5, &cursor); !errors.Is(err, dynamo.ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}
	if _, err := f.Eval(-1, &cursor); !errors.Is(err, dynamo.ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}
}

func TestFunction_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		xs, ys []float64
	}{
		{"empty", nil, nil},
		{"length mismatch", []float64{0, 1}, []float64{0}},
		{"not increasing", []float64{0, 0}, []float64{1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewFunction(tt.xs, tt.ys); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func newDecayArena(t *testing.T) (*Arena, *Node) {
	t.Helper()
	a := NewArena()
	g, err := NewGroup("decay", testDecay{}, integrators.NewRK4())
	if err != nil {
		t.Fatal(err)
	}
	if err := a.AddGroup(g); err != nil {
		t.Fatal(err)
	}
	n, err := a.Add("d1", g)
	if err != nil {
		t.Fatal(err)
	}
	if err := n.SetParam("k", 0.1); err != nil {
		t.Fatal(err)
	}
	if err := n.SetScalar("y", 100); err != nil {
		t.Fatal(err)
	}
	return a, n
}

func TestArena_DuplicateIDs(t *testing.T) {
	a, _ := newDecayArena(t)
	g, _ := a.Group("decay")

	if _, err := a.Add("d1", g); !errors.Is(err, dynamo.ErrDuplicateID) {
		t.Errorf("expected ErrDuplicateID for node, got %v", err)
	}
	if err := a.AddGroup(g); !errors.Is(err, dynamo.ErrDuplicateID) {
		t.Errorf("expected ErrDuplicateID for group, got %v", err)
	}
}

func TestNode_SetLevelOnce(t *testing.T) {
	_, n := newDecayArena(t)

	if err := n.SetLevel(0); !errors.Is(err, dynamo.ErrLevelInvariant) {
		t.Errorf("expected ErrLevelInvariant, got %v", err)
	}
	if err := n.SetLevel(2); err != nil {
		t.Fatal(err)
	}
	if err := n.SetLevel(3); !errors.Is(err, dynamo.ErrLevelAssigned) {
		t.Errorf("expected ErrLevelAssigned, got %v", err)
	}
	if n.Level() != 2 {
		t.Errorf("level changed to %d", n.Level())
	}
}

func TestNode_Simulate(t *testing.T) {
	a, n := newDecayArena(t)
	if err := a.Prepare(); err != nil {
		t.Fatal(err)
	}
	if err := n.Simulate(1); err != nil {
		t.Fatal(err)
	}
	// one RK4 step of dy/dt = -k*y multiplies y by the fourth order
	// Taylor polynomial of exp(-k*dt)
	h := 0.1
	expected := 100 * (1 - h + h*h/2 - h*h*h/6 + h*h*h*h/24)
	if math.Abs(n.Output(0)-expected) > 1e-9 {
		t.Errorf("output = %.8f, want %.8f", n.Output(0), expected)
	}
	if exact := 100 * math.Exp(-h); math.Abs(n.Output(0)-exact) > 1e-5 {
		t.Errorf("output = %.8f, too far from exact %.8f", n.Output(0), exact)
	}
	if err := n.CheckNumeric(); err != nil {
		t.Errorf("unexpected numeric error: %v", err)
	}

	n.SetOutput(0, math.NaN())
	if err := n.CheckNumeric(); !errors.Is(err, dynamo.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
}

func TestArena_ValidateMissing(t *testing.T) {
	a := NewArena()
	g, _ := NewGroup("decay", testDecay{}, integrators.NewEuler())
	_ = a.AddGroup(g)
	n, _ := a.Add("d1", g)
	_ = n.SetScalar("y", 1)

	err := a.Prepare()
	if !errors.Is(err, dynamo.ErrMissingValue) {
		t.Fatalf("expected ErrMissingValue, got %v", err)
	}
	var se *dynamo.SetupError
	if !errors.As(err, &se) || se.Node != "d1" {
		t.Errorf("expected SetupError for d1, got %v", err)
	}
}

func TestGroup_RequiresIntegrator(t *testing.T) {
	g, err := NewGroup("decay", testDecay{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := g.Validate(); !errors.Is(err, dynamo.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestInputs_ForwardAndLagged(t *testing.T) {
	a, src := newDecayArena(t)
	g, _ := NewGroup("copy", testCopy{}, nil)
	_ = a.AddGroup(g)

	fwd, _ := a.Add("fwd", g)
	back, _ := a.Add("back", g)

	rain := forcing.NewStatic(map[string]map[string]float64{"rain": {"x": 2}})
	addr, _ := rain.ValueAddress("rain", "x")
	a.SetValues(rain)

	for _, n := range []*Node{fwd, back} {
		n.AddExt(0, ExtTerm{Addr: addr, Weight: 0.5})
		n.AddExt(0, ExtTerm{Addr: addr, Weight: 0.25})
	}
	if err := fwd.BindSim(0, SimInput{Producer: src.Handle(), Output: 0, Forward: true}); err != nil {
		t.Fatal(err)
	}
	if err := back.BindSim(0, SimInput{Producer: src.Handle(), Output: 0}); err != nil {
		t.Fatal(err)
	}
	if err := back.BindSim(0, SimInput{Producer: src.Handle()}); !errors.Is(err, dynamo.ErrSlotCount) {
		t.Errorf("expected ErrSlotCount on second binding, got %v", err)
	}

	if err := a.Prepare(); err != nil {
		t.Fatal(err)
	}
	if got := fwd.InputExt(0); got != 1.5 {
		t.Errorf("weighted external input = %g, want 1.5", got)
	}

	src.SetOutput(0, 42)
	if got := fwd.InputSim(0); got != 42 {
		t.Errorf("forward input = %g, want 42", got)
	}
	if got := back.InputSim(0); got != 100 {
		t.Errorf("backward input before commit = %g, want initial 100", got)
	}

	a.Commit()
	if got := back.InputSim(0); got != 42 {
		t.Errorf("backward input after commit = %g, want 42", got)
	}

	ext, sim := back.Inputs()
	if ext[0] != 1.5 || sim[0] != 42 {
		t.Errorf("Inputs() = %v, %v", ext, sim)
	}
}

func TestPrepare_ExternalWithoutSource(t *testing.T) {
	a := NewArena()
	g, _ := NewGroup("copy", testCopy{}, nil)
	_ = a.AddGroup(g)
	n, _ := a.Add("c", g)
	n.AddExt(0, ExtTerm{Addr: 0, Weight: 1})
	_ = n.BindSim(0, SimInput{Producer: n.Handle()})

	if err := a.Prepare(); !errors.Is(err, dynamo.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestSharedFunctionCursors(t *testing.T) {
	f, _ := NewFunction([]float64{0, 10}, []float64{0, 100})
	a := NewArena()
	g, _ := NewGroup("rated", ratedKind{}, nil)
	if err := g.SetSharedFunc("curve", f); err != nil {
		t.Fatal(err)
	}
	_ = a.AddGroup(g)
	n1, _ := a.Add("r1", g)
	n2, _ := a.Add("r2", g)

	v1, err1 := n1.SharedFun(0, 2)
	v2, err2 := n2.SharedFun(0, 8)
	if err1 != nil || err2 != nil {
		t.Fatal(err1, err2)
	}
	if v1 != 20 || v2 != 80 {
		t.Errorf("SharedFun = %g, %g", v1, v2)
	}
	if err := g.SetSharedFunc("missing", f); !errors.Is(err, dynamo.ErrUnknownVariable) {
		t.Errorf("expected ErrUnknownVariable, got %v", err)
	}
}

type ratedKind struct{}

func (ratedKind) Name() string                      { return "rated" }
func (ratedKind) Schema() SchemaSpec                { return SchemaSpec{SharedFuncs: []string{"curve"}} }
func (ratedKind) Simulate(n *Node, _ float64) error { return nil }
