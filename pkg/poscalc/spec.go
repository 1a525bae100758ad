// Package poscalc implements the registry of position calculations: rules
// that derive one position per atom, residue, molecule or whole set from a
// base set of atoms.
package poscalc

import (
	"fmt"
	"strings"
)

// Kind is the unit that gets one position.
type Kind int

const (
	KindAtom Kind = iota
	KindResidue
	KindMolecule
	KindAll
)

// Method is how the atoms of a unit are aggregated.
type Method int

const (
	COG Method = iota
	COM
	First
)

// Mode says which atoms of a residue or molecule take part.
type Mode int

const (
	// All atoms of every unit touched by the base.
	Whole Mode = iota
	// Only base atoms.
	Part
	// Only base atoms, with units recomputed every frame.
	Dyn
)

// Spec is a position type such as res_com or whole_mol_cog.
type Spec struct {
	Kind   Kind
	Method Method
	Mode   Mode
}

// Atom is the position type that uses atom coordinates as they are.
var Atom = Spec{Kind: KindAtom}

var (
	kindNames   = map[Kind]string{KindResidue: "res", KindMolecule: "mol"}
	methodNames = [...]string{COG: "cog", COM: "com", First: "first"}
	modeNames   = [...]string{Whole: "whole", Part: "part", Dyn: "dyn"}
)

// String returns the canonical name. Whole mode is the default and is
// written without a prefix.
func (s Spec) String() string {
	switch s.Kind {
	case KindAtom:
		return "atom"
	case KindAll:
		return methodNames[s.Method]
	}
	name := kindNames[s.Kind] + "_" + methodNames[s.Method]
	if s.Mode != Whole {
		name = modeNames[s.Mode] + "_" + name
	}
	return name
}

// Names lists every accepted position type name.
func Names() []string {
	names := []string{"atom"}
	for _, prefix := range []string{"", "whole_", "part_", "dyn_"} {
		for _, k := range []string{"res", "mol"} {
			for _, m := range []string{"com", "cog"} {
				names = append(names, prefix+k+"_"+m)
			}
		}
	}
	return append(names, "cog", "com", "first")
}

// ParseSpec parses a position type name.
func ParseSpec(name string) (Spec, error) {
	switch name {
	case "atom":
		return Atom, nil
	case "cog":
		return Spec{Kind: KindAll, Method: COG}, nil
	case "com":
		return Spec{Kind: KindAll, Method: COM}, nil
	case "first":
		return Spec{Kind: KindAll, Method: First}, nil
	}
	var s Spec
	rest := name
	for mode, prefix := range modeNames {
		if after, ok := strings.CutPrefix(rest, prefix+"_"); ok {
			s.Mode, rest = Mode(mode), after
			break
		}
	}
	kind, method, ok := strings.Cut(rest, "_")
	if !ok {
		return Spec{}, unknownSpec(name)
	}
	switch kind {
	case "res":
		s.Kind = KindResidue
	case "mol":
		s.Kind = KindMolecule
	default:
		return Spec{}, unknownSpec(name)
	}
	switch method {
	case "com":
		s.Method = COM
	case "cog":
		s.Method = COG
	default:
		return Spec{}, unknownSpec(name)
	}
	return s, nil
}

func unknownSpec(name string) error {
	return fmt.Errorf("unknown position type %q, valid types are: %s",
		name, strings.Join(Names(), ", "))
}

// RequiresTopology reports whether calculations of this type need residue,
// molecule or mass information.
func (s Spec) RequiresTopology() bool {
	return s.Kind == KindResidue || s.Kind == KindMolecule || s.Method == COM
}

// NeedsMasses reports whether the calculation weights atoms by mass.
func (s Spec) NeedsMasses() bool { return s.Method == COM }
