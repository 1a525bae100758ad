package selection

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"src.sel.sh/pkg/diag"
	"src.sel.sh/pkg/indexgroup"
	"src.sel.sh/pkg/method"
	"src.sel.sh/pkg/must"
	"src.sel.sh/pkg/parse"
	"src.sel.sh/pkg/topo"
	"src.sel.sh/pkg/tt"
)

// Five single-atom water residues followed by a protein of two residues.
// Atom i sits at x = i.
func testSystem() (*topo.Topology, *topo.Frame) {
	atoms := make([]topo.Atom, 10)
	for i := range 5 {
		atoms[i] = topo.Atom{Name: "OW", ResName: "SOL", ResNr: i + 1, Molecule: i + 1, Mass: 1}
	}
	for i, name := range []string{"N", "CA", "N", "CA", "C"} {
		resnr := 6
		if i >= 2 {
			resnr = 7
		}
		atoms[5+i] = topo.Atom{Name: name, ResName: "PROT", ResNr: resnr, Molecule: 6, Mass: 1}
	}
	f := &topo.Frame{Box: topo.Rect(20, 20, 20), X: make([]topo.Vec3, 10)}
	for i := range f.X {
		f.X[i] = topo.Vec3{float64(i), 0, 0}
	}
	return must.OK1(topo.New(atoms)), f
}

var testGroups = indexgroup.Groups{
	{Name: "Odd", Indices: []int{9, 7, 1}},
	{Name: "Low", Indices: []int{0, 1, 2}},
}

func newTestCollection(top *topo.Topology) *Collection {
	sc := NewCollection()
	must.OK(sc.SetTopology(top, -1))
	sc.SetIndexGroups(testGroups)
	sc.SetDebugLevel(DebugFull)
	return sc
}

func nilIfEmpty(xs []int) []int {
	if len(xs) == 0 {
		return nil
	}
	return xs
}

// evalIndices parses, compiles and evaluates text on the test system.
func evalIndices(text string) ([]int, error) {
	top, f := testSystem()
	sc := newTestCollection(top)
	sels, err := sc.ParseString(text, 1)
	if err != nil {
		return nil, err
	}
	if err := sc.Compile(); err != nil {
		return nil, err
	}
	if err := sc.Evaluate(f); err != nil {
		return nil, err
	}
	return nilIfEmpty(sels[0].Indices()), nil
}

func TestEvaluate(t *testing.T) {
	tt.Test(t, tt.Fn("evalIndices", evalIndices), tt.Table{
		tt.Args("resname SOL").Rets([]int{0, 1, 2, 3, 4}, nil),
		tt.Args("resname PROT and x < 7").Rets([]int{5, 6}, nil),
		tt.Args("not resname SOL").Rets([]int{5, 6, 7, 8, 9}, nil),
		tt.Args("resnr 1 to 3").Rets([]int{0, 1, 2}, nil),
		tt.Args("resnr 3 to 1 5").Rets([]int{0, 1, 2, 4}, nil),
		tt.Args("x >= 8 or resnr 1").Rets([]int{0, 8, 9}, nil),
		tt.Args("name OW xor x < 7").Rets([]int{5, 6}, nil),
		tt.Args(`name "C*"`).Rets([]int{6, 8, 9}, nil),
		tt.Args(`name ~"[NC]"`).Rets([]int{5, 7, 9}, nil),
		tt.Args("name CA N").Rets([]int{5, 6, 7, 8}, nil),
		tt.Args("within 1.5 of resnr 6").Rets([]int{4, 5, 6, 7}, nil),
		tt.Args("same resnr as name C").Rets([]int{7, 8, 9}, nil),
		tt.Args("x * 2 > 15").Rets([]int{8, 9}, nil),
		tt.Args("-x > -2").Rets([]int{0, 1}, nil),
		tt.Args("distance from [0, 0, 0] < 2.5").Rets([]int{0, 1, 2}, nil),
		tt.Args("mindistance from resname PROT < 1.5").Rets([]int{4, 5, 6, 7, 8, 9}, nil),
		tt.Args("resname == \"SOL\" and x > 3").Rets([]int{4}, nil),
		tt.Args("all").Rets([]int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, nil),
		tt.Args("none").Rets([]int(nil), nil),
		tt.Args(`group "Odd"`).Rets([]int{9, 7, 1}, nil),
		tt.Args(`"Odd"`).Rets([]int{9, 7, 1}, nil),
		tt.Args(`"Odd" and x > 2`).Rets([]int{7, 9}, nil),
		tt.Args("group 1").Rets([]int{0, 1, 2}, nil),
		tt.Args("w = resname SOL; w and x > 2").Rets([]int{3, 4}, nil),

		tt.Args("resname SOL + 1").Rets([]int(nil), tt.ErrorContaining("must be a number")),
		tt.Args("99999999999999999999").Rets([]int(nil), tt.ErrorContaining("group number 99999999999999999999 is too large")),
		tt.Args("group 99999999999999999999").Rets([]int(nil), tt.ErrorContaining("group number 99999999999999999999 is too large")),
		tt.Args(`group "Missing"`).Rets([]int(nil), tt.ErrorContaining(`no group named "Missing"`)),
		tt.Args("undefined and x < 1").Rets([]int(nil), tt.ErrorContaining("undefined variable undefined")),
		tt.Args(`resnr "SOL"`).Rets([]int(nil), tt.ErrorContaining("resnr takes numbers")),
		tt.Args("x < 1; x < 2").Rets([]int(nil), tt.ErrorContaining("Too many selections")),
	})
}

func TestEvaluate_AndCommutes(t *testing.T) {
	top, f := testSystem()
	operands := []string{
		"resname SOL", "x < 6", "within 2 of resnr 7", `"Odd"`, "not name CA", "same resnr as name C",
	}
	for _, a := range operands {
		for _, b := range operands {
			sc := newTestCollection(top)
			sels := must.OK1(sc.ParseString(a+" and "+b+"; "+b+" and "+a, 2))
			must.OK(sc.Compile())
			must.OK(sc.Evaluate(f))
			// A single group keeps its own order, so compare as sets.
			if diff := cmp.Diff(sortedUnique(sels[0].Indices()), sortedUnique(sels[1].Indices())); diff != "" {
				t.Errorf("%s and %s differs from reverse (-AB +BA):\n%s", a, b, diff)
			}
		}
	}
}

func TestEvaluate_Deterministic(t *testing.T) {
	top, f := testSystem()
	const text = "within 2 of resnr 7 or (x < 2 and resname SOL); res_com of resname PROT"
	var first [][]int
	for range 3 {
		sc := newTestCollection(top)
		sels := must.OK1(sc.ParseString(text, 2))
		must.OK(sc.Compile())
		must.OK(sc.Evaluate(f))
		var got [][]int
		for _, s := range sels {
			got = append(got, s.Indices())
		}
		if first == nil {
			first = got
		} else if diff := cmp.Diff(first, got); diff != "" {
			t.Errorf("results differ between runs:\n%s", diff)
		}
	}
}

func TestEvaluate_Dynamic(t *testing.T) {
	top, f := testSystem()
	sc := newTestCollection(top)
	sels := must.OK1(sc.ParseString("x < 3; resname SOL", 2))
	must.OK(sc.Compile())

	must.OK(sc.Evaluate(f))
	if diff := cmp.Diff([]int{0, 1, 2}, sels[0].Indices()); diff != "" {
		t.Errorf("frame 1 (-want +got):\n%s", diff)
	}
	moved := &topo.Frame{Box: f.Box, X: make([]topo.Vec3, len(f.X))}
	for i, x := range f.X {
		moved.X[i] = x.Add(topo.Vec3{1, 0, 0})
	}
	must.OK(sc.Evaluate(moved))
	if diff := cmp.Diff([]int{0, 1}, sels[0].Indices()); diff != "" {
		t.Errorf("frame 2 (-want +got):\n%s", diff)
	}
	wantMask := []bool{true, true, false, false, false, false, false, false, false, false}
	if diff := cmp.Diff(wantMask, sels[0].Mask()); diff != "" {
		t.Errorf("mask (-want +got):\n%s", diff)
	}

	must.OK(sc.EvaluateFinal(0))
	if got := sels[0].AvgCount(); got != 2.5 {
		t.Errorf("AvgCount() = %v, want 2.5", got)
	}
	if !sels[0].IsDynamic() || sels[1].IsDynamic() {
		t.Errorf("IsDynamic() = %v, %v, want true, false", sels[0].IsDynamic(), sels[1].IsDynamic())
	}
	if got := sels[1].AvgCount(); got != 5 {
		t.Errorf("static AvgCount() = %v, want 5", got)
	}
}

func TestEvaluate_Positions(t *testing.T) {
	top, f := testSystem()
	sc := newTestCollection(top)
	sels := must.OK1(sc.ParseString("res_com of resname PROT; resname SOL and x < 2", 2))
	must.OK(sc.Compile())
	must.OK(sc.Evaluate(f))

	if diff := cmp.Diff([]topo.Vec3{{5.5, 0, 0}, {8, 0, 0}}, sels[0].Positions()); diff != "" {
		t.Errorf("res_com positions (-want +got):\n%s", diff)
	}
	if got := sels[0].PosType().String(); got != "res_com" {
		t.Errorf("PosType() = %q, want res_com", got)
	}
	if diff := cmp.Diff([]topo.Vec3{{0, 0, 0}, {1, 0, 0}}, sels[1].Positions()); diff != "" {
		t.Errorf("atom positions (-want +got):\n%s", diff)
	}
}

func TestEvaluate_OutputPosType(t *testing.T) {
	top, f := testSystem()
	sc := newTestCollection(top)
	must.OK(sc.SetOutputPosType("res_cog"))
	sels := must.OK1(sc.ParseString("resname PROT and x > 6", 1))
	must.OK(sc.Compile())
	must.OK(sc.Evaluate(f))
	if diff := cmp.Diff([]topo.Vec3{{8, 0, 0}}, sels[0].Positions()); diff != "" {
		t.Errorf("positions (-want +got):\n%s", diff)
	}
	if err := sc.SetOutputPosType("atom"); err == nil {
		t.Errorf("SetOutputPosType after Compile succeeded")
	}
}

func TestSetReferencePosType(t *testing.T) {
	top, f := testSystem()
	sc := newTestCollection(top)
	if err := sc.SetReferencePosType("cog"); err == nil {
		t.Errorf("SetReferencePosType(cog) succeeded")
	}
	must.OK(sc.SetReferencePosType("res_cog"))
	// Residue 7 has its center at x = 8.
	sels := must.OK1(sc.ParseString("x > 7.5", 1))
	must.OK(sc.Compile())
	must.OK(sc.Evaluate(f))
	if diff := cmp.Diff([]int{7, 8, 9}, sels[0].Indices()); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestCompile_PositionCalcsAreShared(t *testing.T) {
	top, _ := testSystem()
	sc := newTestCollection(top)
	must.OK1(sc.ParseString("res_com of resname SOL; res_com of resname SOL", 2))
	must.OK(sc.Compile())
	if n := sc.reg.Len(); n != 1 {
		t.Fatalf("%d position calculations, want 1", n)
	}
	if refs := sc.reg.Calcs()[0].Refs(); refs != 2 {
		t.Errorf("Refs() = %d, want 2", refs)
	}

	must.OK1(sc.ParseString("res_cog of resname SOL", 1))
	must.OK(sc.Compile())
	if n := sc.reg.Len(); n != 2 {
		t.Errorf("%d position calculations, want 2", n)
	}
}

func TestCompile_FailedSelectionIsIsolated(t *testing.T) {
	top, f := testSystem()
	sc := newTestCollection(top)
	sels := must.OK1(sc.ParseString(`group "Missing"; resname SOL`, 2))
	err := sc.Compile()
	if len(diag.UnpackErrors[UnresolvedReferenceTag](err)) != 1 {
		t.Fatalf("Compile() -> %v, want one UnresolvedReferenceError", err)
	}
	if sels[0].IsCompiled() || !sels[1].IsCompiled() {
		t.Errorf("IsCompiled() = %v, %v, want false, true", sels[0].IsCompiled(), sels[1].IsCompiled())
	}
	must.OK(sc.Evaluate(f))
	if diff := cmp.Diff([]int{0, 1, 2, 3, 4}, sels[1].Indices()); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestCompile_TopologyRequired(t *testing.T) {
	sc := NewCollection()
	must.OK(sc.SetTopology(nil, 10))
	must.OK1(sc.ParseString("x < 1 or resname SOL", 1))
	if !sc.RequiresTopology() {
		t.Errorf("RequiresTopology() = false")
	}
	err := sc.Compile()
	var topErr *TopologyRequiredError
	if !errors.As(err, &topErr) {
		t.Fatalf("Compile() -> %v, want TopologyRequiredError", err)
	}
	if !strings.Contains(topErr.Message, "resname") {
		t.Errorf("error %q does not point at resname", topErr.Message)
	}
}

func TestCompile_NumberOfAtomsFromFrame(t *testing.T) {
	_, f := testSystem()
	sc := NewCollection()
	sels := must.OK1(sc.ParseString("x < 3 and x > 0", 1))
	if sc.RequiresTopology() {
		t.Errorf("RequiresTopology() = true")
	}
	must.OK(sc.Compile())
	if sels[0].IsCompiled() {
		t.Errorf("compiled before the number of atoms is known")
	}
	must.OK(sc.Evaluate(f))
	if diff := cmp.Diff([]int{1, 2}, sels[0].Indices()); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if sels[0].MaxCount() != 10 {
		t.Errorf("MaxCount() = %d, want 10", sels[0].MaxCount())
	}
}

func TestCompile_MaxCount(t *testing.T) {
	top, _ := testSystem()
	sc := newTestCollection(top)
	sels := must.OK1(sc.ParseString(`resname SOL and x < 2; "Odd"; x < 1 or resname PROT`, 3))
	must.OK(sc.Compile())
	var got []int
	for _, s := range sels {
		got = append(got, s.MaxCount())
	}
	if diff := cmp.Diff([]int{5, 3, 10}, got); diff != "" {
		t.Errorf("MaxCount (-want +got):\n%s", diff)
	}
}

func TestEvaluate_SharedSubexpressionOnce(t *testing.T) {
	top, f := testSystem()
	sc := newTestCollection(top)
	calls := 0
	must.OK(sc.RegisterMethod(&method.Method{
		Name: "ticker", Type: method.Group, Flags: method.Dynamic,
		Eval: func(ctx *method.Context, g []int, _ []method.Value) (method.Value, error) {
			calls++
			out := ctx.Indices(len(g))
			copy(out, g)
			return method.Value{Type: method.Group, Indices: out}, nil
		},
	}))
	sels := must.OK1(sc.ParseString("(ticker and x < 2) or (ticker and x > 7)", 1))
	must.OK(sc.Compile())
	for frame := 1; frame <= 2; frame++ {
		must.OK(sc.Evaluate(f))
		if calls != frame {
			t.Errorf("after frame %d, ticker called %d times", frame, calls)
		}
	}
	if diff := cmp.Diff([]int{0, 1, 8, 9}, sels[0].Indices()); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestEvaluate_FinalHook(t *testing.T) {
	top, f := testSystem()
	sc := newTestCollection(top)
	var final []int
	must.OK(sc.RegisterMethod(&method.Method{
		Name: "everything", Type: method.Group, Flags: method.Dynamic,
		Eval: func(ctx *method.Context, g []int, _ []method.Value) (method.Value, error) {
			return method.Value{Type: method.Group, Indices: g}, nil
		},
		Final: func(nframes int) error {
			final = append(final, nframes)
			return nil
		},
	}))
	must.OK1(sc.ParseString("everything and x < 2; everything or x < 2", 2))
	must.OK(sc.Compile())
	must.OK(sc.Evaluate(f))
	must.OK(sc.EvaluateFinal(7))
	if diff := cmp.Diff([]int{7}, final); diff != "" {
		t.Errorf("Final calls (-want +got):\n%s", diff)
	}
}

func TestEvaluate_ErrorKeepsPreviousState(t *testing.T) {
	top, f := testSystem()
	sc := newTestCollection(top)
	fail := false
	must.OK(sc.RegisterMethod(&method.Method{
		Name: "flaky", Type: method.Group, Flags: method.Dynamic,
		Eval: func(ctx *method.Context, g []int, _ []method.Value) (method.Value, error) {
			if fail {
				return method.Value{}, errors.New("flaked")
			}
			return method.Value{Type: method.Group, Indices: g}, nil
		},
	}))
	sels := must.OK1(sc.ParseString("flaky and x < 2; x < 3", 2))
	must.OK(sc.Compile())
	must.OK(sc.Evaluate(f))

	fail = true
	err := sc.Evaluate(f)
	var evalErr *EvalError
	if !errors.As(err, &evalErr) {
		t.Fatalf("Evaluate() -> %v, want EvalError", err)
	}
	if evalErr.Selection != "flaky and x < 2" || evalErr.Frame != 2 {
		t.Errorf("EvalError = %q frame %d", evalErr.Selection, evalErr.Frame)
	}
	if diff := cmp.Diff([]int{0, 1}, sels[0].Indices()); diff != "" {
		t.Errorf("failed selection (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{0, 1, 2}, sels[1].Indices()); diff != "" {
		t.Errorf("other selection (-want +got):\n%s", diff)
	}
}

func TestEvaluate_FarPositionWraps(t *testing.T) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		near := must.OK1(evalIndices("within 1 of [0, 0, 0]"))
		for _, text := range []string{
			"within 1 of [1e12, 0, 0]",
			"distance from [-1e12, 0, 0] < 1",
		} {
			got, err := evalIndices(text)
			if err != nil || !cmp.Equal(got, near) {
				t.Errorf("%s -> %v, %v, want %v", text, got, err, near)
			}
		}
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("evaluation did not return")
	}
}

func TestEvaluate_NegativeCutoff(t *testing.T) {
	_, err := evalIndices("within -1 of resname SOL")
	if err == nil || !strings.Contains(err.Error(), "negative cutoff") {
		t.Errorf("-> %v, want negative cutoff error", err)
	}
}

func TestParseString_CountMismatch(t *testing.T) {
	sc := NewCollection()
	_, err := sc.ParseString("x < 1", 2)
	var cm *CountMismatchError
	if !errors.As(err, &cm) || cm.Want != 2 || cm.Got != 1 {
		t.Fatalf("-> %v, want CountMismatchError{2, 1}", err)
	}
	if want := "Too few selections provided: wanted 2, got 1"; err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if len(sc.Selections()) != 0 {
		t.Errorf("selections were added")
	}
}

func TestParseString_AllErrorsReported(t *testing.T) {
	sc := NewCollection()
	_, err := sc.ParseString("x < 1; resname SOL and ; x < ; y > 2", 0)
	if n := len(diag.UnpackErrors[parse.SyntaxErrorTag](err)); n != 2 {
		t.Errorf("%d syntax errors, want 2: %v", n, err)
	}
	if len(sc.Selections()) != 0 {
		t.Errorf("selections were added")
	}
}

func TestParseString_Variables(t *testing.T) {
	sc := NewCollection()
	must.OK1(sc.ParseString("w = x < 1", 0))
	if _, err := sc.ParseString("w = x < 2", 0); err == nil {
		t.Errorf("redefining a variable succeeded")
	}
	if _, err := sc.ParseString("w or x > 3", 1); err != nil {
		t.Errorf("using a variable from an earlier call -> %v", err)
	}
	// A failed chunk defines nothing.
	sc.ParseString("v = x < 2; x <", 0)
	if _, err := sc.ParseString("v = x < 3", 0); err != nil {
		t.Errorf("variable from a failed chunk was kept: %v", err)
	}
}

func TestPrintInfo(t *testing.T) {
	sc := NewCollection()
	must.OK1(sc.ParseString(`w = x < 1; "near" w or x > 3; x > 5`, 2))
	var sb strings.Builder
	sc.PrintInfo(&sb)
	want := "# Variables:\n#   w = x < 1\n# Selections:\n#   \"near\": w or x > 3\n#   x > 5\n"
	if diff := cmp.Diff(want, sb.String()); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestPrintTree(t *testing.T) {
	top, _ := testSystem()
	sc := newTestCollection(top)
	must.OK1(sc.ParseString("x < 1 or resname SOL", 1))
	must.OK(sc.Compile())
	var sb strings.Builder
	sc.PrintTree(&sb)
	for _, want := range []string{"ROOT", "BOOL or", "CONST 5 atoms", "CMP <"} {
		if !strings.Contains(sb.String(), want) {
			t.Errorf("tree does not contain %q:\n%s", want, sb.String())
		}
	}
}

func TestParseDebugLevel(t *testing.T) {
	tt.Test(t, tt.Fn("ParseDebugLevel", ParseDebugLevel), tt.Table{
		tt.Args("none").Rets(DebugNone, nil),
		tt.Args("compile").Rets(DebugCompile, nil),
		tt.Args("4").Rets(DebugFull, nil),
		tt.Args("loud").Rets(DebugNone, tt.ErrorContaining("unknown debug level")),
	})
}
