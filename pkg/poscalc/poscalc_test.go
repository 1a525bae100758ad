package poscalc

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"src.sel.sh/pkg/must"
	"src.sel.sh/pkg/topo"
	"src.sel.sh/pkg/tt"
)

func TestParseSpec(t *testing.T) {
	tt.Test(t, tt.Fn("ParseSpec", ParseSpec), tt.Table{
		tt.Args("atom").Rets(Atom, nil),
		tt.Args("res_com").Rets(Spec{KindResidue, COM, Whole}, nil),
		tt.Args("whole_res_com").Rets(Spec{KindResidue, COM, Whole}, nil),
		tt.Args("part_mol_cog").Rets(Spec{KindMolecule, COG, Part}, nil),
		tt.Args("dyn_res_cog").Rets(Spec{KindResidue, COG, Dyn}, nil),
		tt.Args("first").Rets(Spec{KindAll, First, Whole}, nil),
		tt.Args("res_first").Rets(Spec{}, tt.ErrorContaining(`unknown position type "res_first"`)),
		tt.Args("whole_cog").Rets(Spec{}, tt.ErrorContaining("unknown position type")),
	})
}

func TestNames_RoundTrip(t *testing.T) {
	for _, name := range Names() {
		s, err := ParseSpec(name)
		if err != nil {
			t.Errorf("ParseSpec(%q) -> %v", name, err)
			continue
		}
		canonical := strings.TrimPrefix(name, "whole_")
		if s.String() != canonical {
			t.Errorf("ParseSpec(%q).String() = %q, want %q", name, s.String(), canonical)
		}
	}
}

// Two molecules of one residue each, the second straddling the x boundary
// of a box of length 10.
func testSystem() (*topo.Topology, *topo.Frame) {
	top := must.OK1(topo.New([]topo.Atom{
		{Name: "OW", ResName: "SOL", ResNr: 1, Mass: 16, Molecule: 1},
		{Name: "HW1", ResName: "SOL", ResNr: 1, Mass: 1, Molecule: 1},
		{Name: "HW2", ResName: "SOL", ResNr: 1, Mass: 1, Molecule: 1},
		{Name: "OW", ResName: "SOL", ResNr: 2, Mass: 16, Molecule: 2},
		{Name: "HW1", ResName: "SOL", ResNr: 2, Mass: 1, Molecule: 2},
		{Name: "HW2", ResName: "SOL", ResNr: 2, Mass: 1, Molecule: 2},
	}))
	f := &topo.Frame{Box: topo.Rect(10, 10, 10), X: []topo.Vec3{
		{1, 1, 1}, {2, 1, 1}, {1, 2, 1},
		{9.5, 5, 5}, {0.5, 5, 5}, {9.5, 6, 5},
	}}
	return top, f
}

func TestRegister_Dedup(t *testing.T) {
	top, _ := testSystem()
	r := New(top)
	a := must.OK1(r.Register(Spec{Kind: KindResidue, Method: COM}, Static([]int{0, 1, 2})))
	b := must.OK1(r.Register(Spec{Kind: KindResidue, Method: COM}, Static([]int{0, 1, 2})))
	c := must.OK1(r.Register(Spec{Kind: KindResidue, Method: COG}, Static([]int{0, 1, 2})))
	d := must.OK1(r.Register(Spec{Kind: KindResidue, Method: COM}, Dynamic("x < 3")))
	e := must.OK1(r.Register(Spec{Kind: KindResidue, Method: COM}, Dynamic("x < 3")))

	if a != b || d != e {
		t.Errorf("identical registrations were not merged")
	}
	if a == c || a == d {
		t.Errorf("different registrations were merged")
	}
	if r.Len() != 3 {
		t.Errorf("Len() = %d, want 3", r.Len())
	}
	if a.Refs() != 2 {
		t.Errorf("Refs() = %d, want 2", a.Refs())
	}
	if diff := cmp.Diff([][]int{{0, 1, 2}}, a.Blocks()); diff != "" {
		t.Errorf("Blocks() (-want +got):\n%s", diff)
	}
}

func TestRefresh_NeedsFinalize(t *testing.T) {
	top, f := testSystem()
	r := New(top)
	if err := r.Refresh(f); err != nil {
		t.Errorf("Refresh of an empty registry -> %v", err)
	}
	c := must.OK1(r.Register(Spec{Kind: KindResidue, Method: COG}, Static([]int{0, 1, 2})))
	if err := r.Refresh(f); err == nil {
		t.Errorf("Refresh after Register without Finalize -> nil")
	}
	must.OK(r.Finalize())
	must.OK(r.Refresh(f))
	if !c.IsCurrent() {
		t.Errorf("static calculation not computed by Refresh")
	}
}

func TestRegister_NeedsTopology(t *testing.T) {
	r := New(nil)
	_, err := r.Register(Spec{Kind: KindMolecule}, Static([]int{0}))
	if !errors.Is(err, ErrNoTopology) {
		t.Errorf("got error %v, want ErrNoTopology", err)
	}
	if _, err := r.Register(Spec{Kind: KindAll, Method: COG}, Static([]int{0, 1})); err != nil {
		t.Errorf("cog without topology -> %v", err)
	}
}

func TestRefresh_Periodic(t *testing.T) {
	top, f := testSystem()
	r := New(top)
	cog := must.OK1(r.Register(Spec{Kind: KindResidue, Method: COG}, Static([]int{1, 4})))
	first := must.OK1(r.Register(Spec{Kind: KindAll, Method: First}, Static([]int{4, 0})))
	must.OK(r.Finalize())
	must.OK(r.Refresh(f))

	want := []topo.Vec3{{4.0 / 3, 4.0 / 3, 1}, {9.5 + 1.0/3, 16.0 / 3, 5}}
	got := cog.Positions()
	if len(got) != len(want) {
		t.Fatalf("got %d positions, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Sub(want[i]).Norm() > 1e-9 {
			t.Errorf("position %d = %v, want %v", i, got[i], want[i])
		}
	}
	if p, ok := cog.Position(5); !ok || p != got[1] {
		t.Errorf("Position(5) = %v, %v; want the second residue", p, ok)
	}
	if diff := cmp.Diff([]topo.Vec3{{0.5, 5, 5}}, first.Positions()); diff != "" {
		t.Errorf("first position (-want +got):\n%s", diff)
	}
}

func TestRefresh_COM(t *testing.T) {
	top, f := testSystem()
	r := New(top)
	c := must.OK1(r.Register(Spec{Kind: KindMolecule, Method: COM, Mode: Part}, Static([]int{0, 1})))
	must.OK(r.Finalize())
	must.OK(r.Refresh(f))
	want := topo.Vec3{1 + 1.0/17, 1, 1}
	if got := c.Positions()[0]; got.Sub(want).Norm() > 1e-9 {
		t.Errorf("COM = %v, want %v", got, want)
	}
}

func TestParent(t *testing.T) {
	top, f := testSystem()
	r := New(top)
	all := must.OK1(r.Register(Spec{Kind: KindResidue, Method: COG}, Static([]int{0, 1, 2, 3, 4, 5})))
	sub := must.OK1(r.Register(Spec{Kind: KindResidue, Method: COG}, Static([]int{4})))
	if sub.Parent() != all {
		t.Fatalf("subset calculation does not copy from the full one")
	}
	must.OK(r.Finalize())
	must.OK(r.Refresh(f))
	if diff := cmp.Diff(all.Positions()[1:], sub.Positions()); diff != "" {
		t.Errorf("copied positions (-want +got):\n%s", diff)
	}
}

func TestFinalize_Cycle(t *testing.T) {
	top, _ := testSystem()
	r := New(top)
	a := must.OK1(r.Register(Atom, Static([]int{0})))
	b := must.OK1(r.Register(Atom, Static([]int{1})))
	c := must.OK1(r.Register(Atom, Static([]int{2})))
	r.AddDependency(b, a)
	must.OK(r.Finalize())

	r.AddDependency(a, c)
	r.AddDependency(c, b)
	var cycle *CycleError
	if err := r.Finalize(); !errors.As(err, &cycle) {
		t.Fatalf("Finalize -> %v, want CycleError", err)
	}
	if diff := cmp.Diff([]int{0, 1, 2}, cycle.IDs); diff != "" {
		t.Errorf("cycle members (-want +got):\n%s", diff)
	}
}

func TestCompute_OncePerFrame(t *testing.T) {
	top, f := testSystem()
	r := New(top)
	c := must.OK1(r.Register(Spec{Kind: KindAll, Method: COG}, Dynamic("x < 3")))
	must.OK(r.Finalize())

	must.OK(r.Refresh(f))
	must.OK(c.Compute([]int{0, 1}))
	must.OK(c.Compute([]int{2}))
	if got := c.Positions()[0]; got != (topo.Vec3{1.5, 1, 1}) {
		t.Errorf("second Compute in a frame changed the position to %v", got)
	}

	must.OK(r.Refresh(f))
	must.OK(c.Compute([]int{2}))
	if got := c.Positions()[0]; got != (topo.Vec3{1, 2, 1}) {
		t.Errorf("Compute in a new frame gave %v", got)
	}
}

func TestRefresh_FrameTooSmall(t *testing.T) {
	r := New(nil)
	must.OK1(r.Register(Atom, Static([]int{3})))
	must.OK(r.Finalize())
	err := r.Refresh(&topo.Frame{X: make([]topo.Vec3, 2)})
	if err == nil || !strings.Contains(err.Error(), "needs atom 3") {
		t.Errorf("got %v", err)
	}
}
