package method

import (
	"fmt"
	"math"
	"slices"

	"src.sel.sh/pkg/topo"
)

// Builtins returns the built-in keywords and methods.
func Builtins() []*Method {
	return []*Method{
		numberKeyword("atomnr", 0, "Atom number, starting from 1",
			func(_ *Context, a int) float64 { return float64(a + 1) }),
		numberKeyword("resnr", NeedsTopology, "Residue number from the topology",
			func(c *Context, a int) float64 { return float64(c.Top.Atoms[a].ResNr) }),
		numberKeyword("resindex", NeedsTopology, "Residue index, starting from 1",
			func(c *Context, a int) float64 { return float64(c.Top.Atoms[a].ResIndex + 1) },
			"residue"),
		numberKeyword("molindex", NeedsTopology, "Molecule index, starting from 1",
			func(c *Context, a int) float64 { return float64(c.Top.Atoms[a].Molecule + 1) },
			"molecule", "mol"),
		numberKeyword("mass", NeedsTopology, "Atom mass",
			func(c *Context, a int) float64 { return c.Top.Atoms[a].Mass }),
		numberKeyword("charge", NeedsTopology, "Atom charge",
			func(c *Context, a int) float64 { return c.Top.Atoms[a].Charge }),
		coordKeyword("x", 0),
		coordKeyword("y", 1),
		coordKeyword("z", 2),
		stringKeyword("name", "Atom name",
			func(c *Context, a int) string { return c.Top.Atoms[a].Name }, "atomname"),
		stringKeyword("type", "Atom type",
			func(c *Context, a int) string { return c.Top.Atoms[a].Type }, "atomtype"),
		stringKeyword("resname", "Residue name",
			func(c *Context, a int) string { return c.Top.Atoms[a].ResName }),
		stringKeyword("chain", "Chain identifier",
			func(c *Context, a int) string { return c.Top.Atoms[a].Chain }),
		Within,
		{
			Name: "distance", Type: Number, Flags: Dynamic | RefPositions,
			Params: []Param{{Name: "from", Type: Position}},
			Help:   "Distance from a single position",
			Eval:   evalDistance(false),
		},
		{
			Name: "mindistance", Type: Number, Flags: Dynamic | RefPositions,
			Params: []Param{{Name: "from", Type: Position}},
			Help:   "Distance from the closest of a set of positions",
			Eval:   evalDistance(true),
		},
		Same,
	}
}

func numberKeyword(name string, flags Flags, help string, f func(*Context, int) float64, aliases ...string) *Method {
	return &Method{
		Name: name, Aliases: aliases, Type: Number, Flags: flags, Help: help,
		Eval: func(ctx *Context, g []int, _ []Value) (Value, error) {
			out := ctx.Numbers(len(g))
			for i, a := range g {
				out[i] = f(ctx, a)
			}
			return Value{Type: Number, Numbers: out}, nil
		},
	}
}

func coordKeyword(name string, dim int) *Method {
	return numberKeyword(name, Dynamic|RefPositions,
		fmt.Sprintf("The %s coordinate of the reference position", name),
		func(c *Context, a int) float64 { return c.RefPos(a)[dim] })
}

func stringKeyword(name, help string, f func(*Context, int) string, aliases ...string) *Method {
	return &Method{
		Name: name, Aliases: aliases, Type: String, Flags: NeedsTopology, Help: help,
		Eval: func(ctx *Context, g []int, _ []Value) (Value, error) {
			out := ctx.Strings(len(g))
			for i, a := range g {
				out[i] = f(ctx, a)
			}
			return Value{Type: String, Strings: out}, nil
		},
	}
}

// Within selects atoms closer than a cutoff to any of a set of positions.
var Within = &Method{
	Name: "within", Type: Group, Flags: Dynamic | RefPositions,
	Params: []Param{{Type: Number, Scalar: true}, {Name: "of", Type: Position}},
	Help:   "Atoms within a cutoff of any of the positions",
	Eval: func(ctx *Context, g []int, args []Value) (Value, error) {
		cutoff := args[0].Number(0)
		if cutoff < 0 {
			return Value{}, fmt.Errorf("negative cutoff %g", cutoff)
		}
		box := ctx.Frame.Box
		if err := box.CheckCutoff(cutoff); err != nil {
			return Value{}, err
		}
		ps := args[1].Positions
		cut2 := cutoff * cutoff
		out := ctx.Indices(len(g))[:0]
		for _, a := range g {
			p := ctx.RefPos(a)
			for _, q := range ps {
				if box.Dist2(p, q) <= cut2 {
					out = append(out, a)
					break
				}
			}
		}
		return Value{Type: Group, Indices: out}, nil
	},
}

func evalDistance(closest bool) func(*Context, []int, []Value) (Value, error) {
	return func(ctx *Context, g []int, args []Value) (Value, error) {
		ps := args[0].Positions
		if !closest && len(ps) != 1 {
			return Value{}, fmt.Errorf("distance needs exactly one position, got %d", len(ps))
		}
		box := ctx.Frame.Box
		out := ctx.Numbers(len(g))
		for i, a := range g {
			p := ctx.RefPos(a)
			d2 := math.Inf(1)
			for _, q := range ps {
				d2 = math.Min(d2, box.Dist2(p, q))
			}
			out[i] = math.Sqrt(d2)
		}
		return Value{Type: Number, Numbers: out}, nil
	}
}

// Same selects atoms that share the value of a keyword with any atom of a
// selection, as in "same residue as name CA".
var Same = &Method{
	Name: "same", Type: Group,
	Params: []Param{{Type: KeywordName}, {Name: "as", Type: Group}},
	Help:   "Atoms with the same keyword value as any atom of a selection",
	Eval: func(ctx *Context, g []int, args []Value) (Value, error) {
		kw, sel := args[0].Keyword, args[1].Indices
		ref, err := kw.Eval(ctx, sel, nil)
		if err != nil {
			return Value{}, err
		}
		own, err := kw.Eval(ctx, g, nil)
		if err != nil {
			return Value{}, err
		}
		out := ctx.Indices(len(g))[:0]
		switch kw.Type {
		case Number:
			set := ref.Numbers
			slices.Sort(set)
			for i, a := range g {
				if _, ok := slices.BinarySearch(set, own.Numbers[i]); ok {
					out = append(out, a)
				}
			}
		case String:
			set := ref.Strings
			slices.Sort(set)
			for i, a := range g {
				if _, ok := slices.BinarySearch(set, own.Strings[i]); ok {
					out = append(out, a)
				}
			}
		}
		return Value{Type: Group, Indices: out}, nil
	},
}

// Coordinates returns the coordinates of atoms, for positions that are not
// computed by a calculation.
func Coordinates(ctx *Context, atoms []int) []topo.Vec3 {
	out := ctx.Pool.Positions(len(atoms)).Get()
	for i, a := range atoms {
		out[i] = ctx.Frame.X[a]
	}
	return out
}
