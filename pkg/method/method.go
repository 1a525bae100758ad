// Package method defines the contract for selection methods and keywords,
// and the built-in ones.
//
// A keyword is a method without parameters that yields one number or string
// per atom, like resname or x. Other methods either select atoms (within,
// same) or yield numbers (distance).
package method

import (
	"fmt"

	"src.sel.sh/pkg/mempool"
	"src.sel.sh/pkg/poscalc"
	"src.sel.sh/pkg/topo"
)

// Type is the type of a value in the selection language.
type Type int

const (
	// A set of atoms.
	Group Type = iota
	// A number, either one per atom or a single scalar.
	Number
	// A string, either one per atom or a single scalar.
	String
	// A list of positions.
	Position
	// The name of a keyword, only used for method parameters.
	KeywordName
)

var typeNames = [...]string{
	Group: "selection", Number: "number", String: "string",
	Position: "position", KeywordName: "keyword",
}

func (t Type) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return fmt.Sprintf("!(bad type %d)", int(t))
	}
	return typeNames[t]
}

// Flags describe what a method depends on.
type Flags uint8

const (
	// The result depends on coordinates and must be computed every frame.
	Dynamic Flags = 1 << iota
	// The method reads atom properties from the topology.
	NeedsTopology
	// The method reads reference positions of the atoms it is evaluated on,
	// so it follows the reference position type of the collection.
	RefPositions
)

// Param is a method parameter.
type Param struct {
	// Name is the word introducing the parameter, such as "of". It is empty
	// for a parameter written right after the method name.
	Name string
	Type Type
	// For numbers, whether a single value is required.
	Scalar bool
}

// Method is a keyword or method definition.
type Method struct {
	Name    string
	Aliases []string
	// Type of the result: Group, Number or String.
	Type   Type
	Flags  Flags
	Params []Param
	Help   string

	// Eval computes the method for the atoms g. A Group result is a subset of
	// g in the order of g; a Number or String result has one value per atom
	// of g. Scratch memory should come from ctx.
	Eval func(ctx *Context, g []int, args []Value) (Value, error)
	// Final, when set, is called once after the last frame with the number
	// of frames evaluated.
	Final func(nframes int) error
}

// IsKeyword reports whether m is a keyword.
func (m *Method) IsKeyword() bool {
	return len(m.Params) == 0 && m.Type != Group
}

// Check returns an error if m cannot be used as a method.
func (m *Method) Check() error {
	switch {
	case m.Name == "":
		return fmt.Errorf("method has no name")
	case m.Eval == nil:
		return fmt.Errorf("method %s has no Eval", m.Name)
	case m.Type != Group && m.Type != Number && m.Type != String:
		return fmt.Errorf("method %s: result type %s is not supported", m.Name, m.Type)
	}
	for i, p := range m.Params {
		if p.Name == "" && i > 0 {
			return fmt.Errorf("method %s: only the first parameter can be unnamed", m.Name)
		}
		if p.Type == KeywordName && p.Name != "" {
			return fmt.Errorf("method %s: keyword parameters must be unnamed", m.Name)
		}
	}
	return nil
}

// Value is an argument or result of a method.
type Value struct {
	Type      Type
	Indices   []int
	Numbers   []float64
	Strings   []string
	Positions []topo.Vec3
	Keyword   *Method
	// Whether Numbers or Strings hold a single value for all atoms.
	Scalar bool
}

// Number returns the i-th number, taking scalars into account.
func (v Value) Number(i int) float64 {
	if v.Scalar {
		return v.Numbers[0]
	}
	return v.Numbers[i]
}

// Str returns the i-th string, taking scalars into account.
func (v Value) Str(i int) string {
	if v.Scalar {
		return v.Strings[0]
	}
	return v.Strings[i]
}

// Context is what methods get to see during evaluation.
type Context struct {
	Top   *topo.Topology
	Frame *topo.Frame
	Pool  *mempool.Pool
	// Reference positions of the atoms; nil means atom coordinates.
	Ref *poscalc.Calc
}

// RefPos returns the reference position of atom.
func (c *Context) RefPos(atom int) topo.Vec3 {
	if c.Ref != nil {
		if p, ok := c.Ref.Position(atom); ok {
			return p
		}
	}
	return c.Frame.X[atom]
}

// Indices allocates scratch indices.
func (c *Context) Indices(n int) []int { return c.Pool.Indices(n).Get() }

// Numbers allocates scratch numbers.
func (c *Context) Numbers(n int) []float64 { return c.Pool.Numbers(n).Get() }

// Strings allocates scratch strings.
func (c *Context) Strings(n int) []string { return c.Pool.Strings(n).Get() }
