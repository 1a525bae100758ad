package method

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"src.sel.sh/pkg/mempool"
	"src.sel.sh/pkg/must"
	"src.sel.sh/pkg/topo"
)

func testContext(t *testing.T) *Context {
	top := must.OK1(topo.New([]topo.Atom{
		{Name: "N", ResName: "ALA", ResNr: 1, Mass: 14},
		{Name: "CA", ResName: "ALA", ResNr: 1, Mass: 12},
		{Name: "N", ResName: "GLY", ResNr: 2, Mass: 14},
		{Name: "CA", ResName: "GLY", ResNr: 2, Mass: 12},
	}))
	pool := mempool.New()
	pool.SetDebug(true)
	pool.BeginFrame()
	t.Cleanup(pool.EndFrame)
	return &Context{
		Top:  top,
		Pool: pool,
		Frame: &topo.Frame{Box: topo.Rect(4, 4, 4), X: []topo.Vec3{
			{0.1, 0, 0}, {1, 0, 0}, {3.9, 0, 0}, {2, 2, 2},
		}},
	}
}

func find(name string) *Method {
	for _, m := range Builtins() {
		if m.Name == name {
			return m
		}
	}
	return nil
}

func TestBuiltins_Valid(t *testing.T) {
	seen := map[string]bool{}
	for _, m := range Builtins() {
		if err := m.Check(); err != nil {
			t.Errorf("%v", err)
		}
		for _, name := range append([]string{m.Name}, m.Aliases...) {
			if seen[name] {
				t.Errorf("name %s defined twice", name)
			}
			seen[name] = true
		}
	}
}

func TestKeywords(t *testing.T) {
	ctx := testContext(t)
	g := []int{1, 2, 3}
	tests := []struct {
		name string
		want Value
	}{
		{"atomnr", Value{Type: Number, Numbers: []float64{2, 3, 4}}},
		{"resindex", Value{Type: Number, Numbers: []float64{1, 2, 2}}},
		{"mass", Value{Type: Number, Numbers: []float64{12, 14, 12}}},
		{"x", Value{Type: Number, Numbers: []float64{1, 3.9, 2}}},
		{"name", Value{Type: String, Strings: []string{"CA", "N", "CA"}}},
		{"resname", Value{Type: String, Strings: []string{"ALA", "GLY", "GLY"}}},
	}
	for _, test := range tests {
		got, err := find(test.name).Eval(ctx, g, nil)
		if err != nil {
			t.Errorf("%s -> error %v", test.name, err)
		}
		if diff := cmp.Diff(test.want, got); diff != "" {
			t.Errorf("%s (-want +got):\n%s", test.name, diff)
		}
	}
}

func TestWithin_Periodic(t *testing.T) {
	ctx := testContext(t)
	pos := Value{Type: Position, Positions: []topo.Vec3{{0, 0, 0}}}
	r := Value{Type: Number, Numbers: []float64{0.5}, Scalar: true}
	got, err := Within.Eval(ctx, []int{0, 1, 2, 3}, []Value{r, pos})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{0, 2}, got.Indices); diff != "" {
		t.Errorf("within (-want +got):\n%s", diff)
	}

	r.Numbers[0] = 3
	_, err = Within.Eval(ctx, []int{0}, []Value{r, pos})
	if err == nil || !strings.Contains(err.Error(), "larger than half the box") {
		t.Errorf("cutoff beyond the box -> %v", err)
	}
}

func TestDistance(t *testing.T) {
	ctx := testContext(t)
	one := Value{Type: Position, Positions: []topo.Vec3{{0, 0, 0}}}
	got := must.OK1(find("distance").Eval(ctx, []int{1, 2}, []Value{one}))
	want := []float64{1, 0.1}
	for i := range want {
		if d := got.Numbers[i] - want[i]; d > 1e-12 || d < -1e-12 {
			t.Errorf("distance of atom %d = %g, want %g", i, got.Numbers[i], want[i])
		}
	}

	two := Value{Type: Position, Positions: []topo.Vec3{{0, 0, 0}, {1, 0, 0}}}
	if _, err := find("distance").Eval(ctx, []int{1}, []Value{two}); err == nil {
		t.Errorf("distance from two positions did not fail")
	}
	got = must.OK1(find("mindistance").Eval(ctx, []int{3}, []Value{two}))
	if want := (topo.Vec3{1, 2, 2}).Norm(); got.Numbers[0] != want {
		t.Errorf("mindistance = %g, want %g", got.Numbers[0], want)
	}
}

func TestSame(t *testing.T) {
	ctx := testContext(t)
	args := []Value{{Type: KeywordName, Keyword: find("resindex")}, {Type: Group, Indices: []int{3}}}
	got := must.OK1(Same.Eval(ctx, []int{0, 1, 2, 3}, args))
	if diff := cmp.Diff([]int{2, 3}, got.Indices); diff != "" {
		t.Errorf("same residue (-want +got):\n%s", diff)
	}
	args[0].Keyword = find("name")
	got = must.OK1(Same.Eval(ctx, []int{0, 1, 2, 3}, args))
	if diff := cmp.Diff([]int{1, 3}, got.Indices); diff != "" {
		t.Errorf("same name (-want +got):\n%s", diff)
	}
}

func TestCheck(t *testing.T) {
	eval := func(*Context, []int, []Value) (Value, error) { return Value{}, nil }
	bad := []*Method{
		{Type: Group, Eval: eval},
		{Name: "m", Type: Group},
		{Name: "m", Type: Position, Eval: eval},
		{Name: "m", Type: Group, Eval: eval, Params: []Param{{Name: "of"}, {}}},
	}
	for _, m := range bad {
		if m.Check() == nil {
			t.Errorf("Check of %+v succeeded", m)
		}
	}
}
