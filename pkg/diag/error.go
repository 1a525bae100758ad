// Package diag contains the building blocks for errors that point into
// selection text: source ranges, contexts and tagged error types.
package diag

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorTag names a kind of error. Each kind is a distinct instantiation of
// [Error], so that callers can tell kinds apart with errors.As.
type ErrorTag interface {
	ErrorTag() string
}

// Error is an error with a source context.
type Error[T ErrorTag] struct {
	Message string
	Context Context
	// Whether the error happened at the end of the source, meaning that more
	// input could fix it. Used by the interactive loop.
	Partial bool
}

// NewError builds an *Error[T] for the range r of the named source.
func NewError[T ErrorTag](name, source string, r Ranger, format string, args ...any) *Error[T] {
	return &Error[T]{
		Message: fmt.Sprintf(format, args...),
		Context: *NewContext(name, source, r),
	}
}

// Kind returns the tag string, such as "syntax error".
func (e *Error[T]) Kind() string {
	var tag T
	return tag.ErrorTag()
}

// Error returns a one-line representation of the error.
func (e *Error[T]) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Kind(), e.Context.Describe(), e.Message)
}

// Range returns the range of the culprit.
func (e *Error[T]) Range() Ranging { return e.Context.Ranging }

// Location returns the source context of the error.
func (e *Error[T]) Location() *Context { return &e.Context }

// Msg returns the message alone.
func (e *Error[T]) Msg() string { return e.Message }

// Located is implemented by every *Error[T], for code that treats all kinds
// alike.
type Located interface {
	error
	Kind() string
	Range() Ranging
	Location() *Context
	Msg() string
}

// Show renders the error with the culprit highlighted.
func (e *Error[T]) Show(indent string) string {
	kind := e.Kind()
	return fmt.Sprintf("%s%s: %s%s%s\n%s  %s", indent,
		strings.ToUpper(kind[:1])+kind[1:],
		messageStart, e.Message, messageEnd,
		indent, e.Context.Show(indent+"  "))
}

var (
	messageStart = "\033[31;1m"
	messageEnd   = "\033[m"
)

// Shower is implemented by errors that have a rich multi-line rendering.
type Shower interface {
	Show(indent string) string
}

// multiError packs several errors from one parse or compile call.
type multiError []error

func (m multiError) Error() string {
	switch len(m) {
	case 0:
		return "no error"
	case 1:
		return m[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "multiple errors: ")
	for i, e := range m {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(e.Error())
	}
	return sb.String()
}

func (m multiError) Unwrap() []error { return m }

func (m multiError) Show(indent string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%sMultiple errors:", indent)
	for _, e := range m {
		sb.WriteString("\n")
		if s, ok := e.(Shower); ok {
			sb.WriteString(s.Show(indent + "  "))
		} else {
			sb.WriteString(indent + "  " + e.Error())
		}
	}
	return sb.String()
}

// PackErrors packs the non-nil errors into one. It returns nil when there are
// none and the error itself when there is exactly one. Packed errors are
// flattened.
func PackErrors(errs ...error) error {
	var packed multiError
	for _, err := range errs {
		switch err := err.(type) {
		case nil:
		case multiError:
			packed = append(packed, err...)
		default:
			packed = append(packed, err)
		}
	}
	switch len(packed) {
	case 0:
		return nil
	case 1:
		return packed[0]
	}
	return packed
}

// UnpackErrors returns every *Error[T] contained in err, looking through
// packed errors and wrapping.
func UnpackErrors[T ErrorTag](err error) []*Error[T] {
	if err == nil {
		return nil
	}
	var out []*Error[T]
	if m, ok := err.(multiError); ok {
		for _, e := range m {
			out = append(out, UnpackErrors[T](e)...)
		}
		return out
	}
	var e *Error[T]
	if errors.As(err, &e) {
		out = append(out, e)
	}
	return out
}

// Errors returns the constituents of a packed error, or a one-element slice.
func Errors(err error) []error {
	if err == nil {
		return nil
	}
	if m, ok := err.(multiError); ok {
		return append([]error(nil), m...)
	}
	return []error{err}
}
