package selection

import (
	"fmt"

	"src.sel.sh/pkg/diag"
)

// UnresolvedReferenceError is a group or variable that cannot be found.
type UnresolvedReferenceError = diag.Error[UnresolvedReferenceTag]

// UnresolvedReferenceTag parameterizes [diag.Error] to define
// [UnresolvedReferenceError].
type UnresolvedReferenceTag struct{}

func (UnresolvedReferenceTag) ErrorTag() string { return "unresolved reference" }

// TypeError is an operator or method applied to values of the wrong type.
type TypeError = diag.Error[TypeTag]

// TypeTag parameterizes [diag.Error] to define [TypeError].
type TypeTag struct{}

func (TypeTag) ErrorTag() string { return "type error" }

// TopologyRequiredError is a construct that needs a topology when none has
// been set.
type TopologyRequiredError = diag.Error[TopologyRequiredTag]

// TopologyRequiredTag parameterizes [diag.Error] to define
// [TopologyRequiredError].
type TopologyRequiredTag struct{}

func (TopologyRequiredTag) ErrorTag() string { return "topology required" }

// CountMismatchError is returned when a fixed number of selections was
// requested and a different number was provided.
type CountMismatchError struct {
	Want, Got int
}

func (e *CountMismatchError) Error() string {
	if e.Got < e.Want {
		return fmt.Sprintf("Too few selections provided: wanted %d, got %d", e.Want, e.Got)
	}
	return fmt.Sprintf("Too many selections provided: wanted %d, got %d", e.Want, e.Got)
}

// EvalError is the failure of one selection in one frame. The selection
// keeps its state from the previous frame.
type EvalError struct {
	Selection string
	Frame     int
	Err       error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("evaluation error: selection %q, frame %d: %v", e.Selection, e.Frame, e.Err)
}

func (e *EvalError) Unwrap() error { return e.Err }
