package symtab

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"src.sel.sh/pkg/method"
)

func TestNew(t *testing.T) {
	tab := New()
	for name, want := range map[string]Kind{
		"and": Reserved, "res_com": PosType, "whole_mol_cog": PosType,
		"resname": Keyword, "residue": Keyword, "within": Method, "same": Method,
	} {
		s := tab.Lookup(name)
		if s == nil {
			t.Errorf("%s is not defined", name)
		} else if s.Kind != want {
			t.Errorf("%s is a %s, want %s", name, s.Kind, want)
		}
	}
	if tab.Lookup("residue").Method != tab.Lookup("resindex").Method {
		t.Errorf("alias does not share the method")
	}
}

func TestAddVariable(t *testing.T) {
	tab := New()
	if err := tab.AddVariable("water", 3); err != nil {
		t.Fatal(err)
	}
	var dup *DuplicateError
	if err := tab.AddVariable("water", 4); !errors.As(err, &dup) || dup.Kind != Variable {
		t.Errorf("redefining a variable -> %v", err)
	}
	if err := tab.AddVariable("x", 5); !errors.As(err, &dup) || dup.Kind != Keyword {
		t.Errorf("shadowing a keyword -> %v", err)
	}
	if s := tab.Lookup("water"); s.Var != 3 {
		t.Errorf("water has id %d", s.Var)
	}
	if diff := cmp.Diff([]string{"water"}, tab.Names(Variable)); diff != "" {
		t.Errorf("variables (-want +got):\n%s", diff)
	}
}

func TestAddMethod(t *testing.T) {
	tab := New()
	m := &method.Method{Name: "ticks", Type: method.Number,
		Eval: func(*method.Context, []int, []method.Value) (method.Value, error) {
			return method.Value{}, nil
		}}
	if err := tab.AddMethod(m); err != nil {
		t.Fatal(err)
	}
	if tab.Lookup("ticks").Kind != Keyword {
		t.Errorf("parameterless number method is not a keyword")
	}
	if err := tab.AddMethod(&method.Method{Name: "of", Type: method.Group, Eval: m.Eval}); err == nil {
		t.Errorf("a method can be named like a reserved word")
	}
}
