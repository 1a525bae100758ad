package selection

import (
	"src.sel.sh/pkg/poscalc"
	"src.sel.sh/pkg/topo"
)

// Selection is one selection of a Collection. Its results are valid until
// the next call to Collection.Evaluate.
type Selection struct {
	name    string
	text    string
	root    elemID
	posType poscalc.Spec
	// Whether posType was written in the selection text.
	explicitPos bool

	// Set when the passes that do not need the number of atoms are done.
	frontDone bool
	compiled  bool
	dynamic   bool
	maxCount  int

	indices   []int
	mask      []bool
	positions []topo.Vec3

	frames int
	total  int
	avg    float64
	final  bool
}

// Name returns the name of the selection, which defaults to its text.
func (s *Selection) Name() string { return s.name }

// Text returns the text the selection was parsed from.
func (s *Selection) Text() string { return s.text }

// PosType returns the type of the output positions.
func (s *Selection) PosType() poscalc.Spec { return s.posType }

// IsCompiled reports whether the selection has been compiled successfully.
func (s *Selection) IsCompiled() bool { return s.compiled }

// IsDynamic reports whether the selection depends on coordinates.
func (s *Selection) IsDynamic() bool { return s.dynamic }

// Indices returns the selected atoms. For a selection of a single index
// group, the order is that of the group; otherwise atoms are in topology
// order.
func (s *Selection) Indices() []int { return s.indices }

// Mask returns one flag per atom, set for selected atoms.
func (s *Selection) Mask() []bool { return s.mask }

// Positions returns the output positions of the current frame.
func (s *Selection) Positions() []topo.Vec3 { return s.positions }

// Count returns the number of selected atoms.
func (s *Selection) Count() int { return len(s.indices) }

// MaxCount returns the largest number of atoms the selection can select.
func (s *Selection) MaxCount() int { return s.maxCount }

// AvgCount returns the average number of selected atoms over the frames seen
// by Collection.EvaluateFinal. For static selections it is the count.
func (s *Selection) AvgCount() float64 {
	if !s.dynamic || !s.final {
		return float64(len(s.indices))
	}
	return s.avg
}
