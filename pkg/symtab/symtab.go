// Package symtab implements the symbol table of a selection collection:
// reserved words, position types, keywords, methods and variables.
package symtab

import (
	"fmt"
	"sort"

	"src.sel.sh/pkg/method"
	"src.sel.sh/pkg/poscalc"
)

// Kind is the kind of a symbol.
type Kind int

const (
	Reserved Kind = iota
	PosType
	Keyword
	Method
	Variable
)

var kindNames = [...]string{"reserved word", "position type", "keyword", "method", "variable"}

func (k Kind) String() string { return kindNames[k] }

// Symbol is one entry of the table.
type Symbol struct {
	Name   string
	Kind   Kind
	Method *method.Method
	Spec   poscalc.Spec
	// For variables, an identifier chosen by the owner of the table.
	Var int
}

// ReservedWords lists the words that cannot be redefined.
var ReservedWords = []string{
	"all", "none", "and", "or", "xor", "not", "group", "to", "of", "from", "as",
}

// DuplicateError is returned when defining a name that already exists.
type DuplicateError struct {
	Name string
	Kind Kind
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s is already defined as a %s", e.Name, e.Kind)
}

// Table maps names to symbols. It is not safe for concurrent use.
type Table struct {
	syms map[string]*Symbol
	vars []*Symbol
}

// New returns a table with the reserved words, position types and built-in
// methods.
func New() *Table {
	t := &Table{syms: make(map[string]*Symbol)}
	for _, w := range ReservedWords {
		t.syms[w] = &Symbol{Name: w, Kind: Reserved}
	}
	for _, name := range poscalc.Names() {
		spec, _ := poscalc.ParseSpec(name)
		t.syms[name] = &Symbol{Name: name, Kind: PosType, Spec: spec}
	}
	for _, m := range method.Builtins() {
		if err := t.AddMethod(m); err != nil {
			panic(err)
		}
	}
	return t
}

// Lookup returns the symbol named name, or nil.
func (t *Table) Lookup(name string) *Symbol { return t.syms[name] }

// AddMethod adds a keyword or method under its name and aliases.
func (t *Table) AddMethod(m *method.Method) error {
	if err := m.Check(); err != nil {
		return err
	}
	names := append([]string{m.Name}, m.Aliases...)
	for _, name := range names {
		if s := t.syms[name]; s != nil {
			return &DuplicateError{name, s.Kind}
		}
	}
	kind := Method
	if m.IsKeyword() {
		kind = Keyword
	}
	for _, name := range names {
		t.syms[name] = &Symbol{Name: name, Kind: kind, Method: m}
	}
	return nil
}

// AddVariable defines a variable.
func (t *Table) AddVariable(name string, id int) error {
	if s := t.syms[name]; s != nil {
		return &DuplicateError{name, s.Kind}
	}
	s := &Symbol{Name: name, Kind: Variable, Var: id}
	t.syms[name] = s
	t.vars = append(t.vars, s)
	return nil
}

// Variables returns the variables in definition order.
func (t *Table) Variables() []*Symbol { return t.vars }

// Names returns the sorted names of all symbols of a kind.
func (t *Table) Names(k Kind) []string {
	var names []string
	for name, s := range t.syms {
		if s.Kind == k {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
