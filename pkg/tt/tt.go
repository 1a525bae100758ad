// Package tt supports table-driven tests with little boilerplate.
//
// A test table pairs argument lists with expected return values:
//
//	tt.Test(t, tt.Fn("ParseSpec", poscalc.ParseSpec), tt.Table{
//		tt.Args("res_com").Rets(spec, nil),
//	})
package tt

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/google/go-cmp/cmp"
)

// Table is a list of test cases.
type Table []*Case

// Case is one test case. It is created by Args and augmented by Rets; the
// calls can be chained.
type Case struct {
	args         []any
	retsMatchers [][]any
}

// Args returns a new Case with the given arguments.
func Args(args ...any) *Case {
	return &Case{args: args}
}

// Rets adds a set of expected return values and returns the receiver. A value
// implementing Matcher is matched with its Match method; anything else is
// compared with cmp.Equal.
func (c *Case) Rets(matchers ...any) *Case {
	c.retsMatchers = append(c.retsMatchers, matchers)
	return c
}

// FnToTest describes a function under test.
type FnToTest struct {
	name    string
	body    any
	argsFmt string
	retsFmt string
}

// Fn makes a FnToTest with the given name and body.
func Fn(name string, body any) *FnToTest {
	return &FnToTest{name: name, body: body}
}

// ArgsFmt sets the format used for arguments in failure messages.
func (fn *FnToTest) ArgsFmt(s string) *FnToTest {
	fn.argsFmt = s
	return fn
}

// RetsFmt sets the format used for return values in failure messages.
func (fn *FnToTest) RetsFmt(s string) *FnToTest {
	fn.retsFmt = s
	return fn
}

// T is the subset of testing.TB used by Test.
type T interface {
	Helper()
	Errorf(format string, args ...any)
}

// Test runs every case in the table against fn.
func Test(t T, fn *FnToTest, tests Table) {
	t.Helper()
	for _, test := range tests {
		rets := call(fn.body, test.args)
		for _, retsMatcher := range test.retsMatchers {
			if match(retsMatcher, rets) {
				continue
			}
			var args string
			if fn.argsFmt == "" {
				args = sprintCommaDelimited(test.args...)
			} else {
				args = fmt.Sprintf(fn.argsFmt, test.args...)
			}
			var diff string
			if fn.retsFmt == "" {
				diff = cmp.Diff(retsMatcher, rets, cmpOpt)
			} else {
				diff = "-" + fmt.Sprintf(fn.retsFmt, retsMatcher...) +
					"\n+" + fmt.Sprintf(fn.retsFmt, rets...)
			}
			t.Errorf("%s(%s) returns (-Wanted +Actual):\n%s", fn.name, args, diff)
		}
	}
}

// Matcher wraps the Match method.
type Matcher interface {
	// Match reports whether a return value is considered a match. The
	// argument is a RetValue so that Match is not implemented by accident.
	Match(RetValue) bool
}

// RetValue is the type of values passed to Matcher.Match.
type RetValue any

// Any matches anything.
var Any Matcher = anyMatcher{}

type anyMatcher struct{}

func (anyMatcher) Match(RetValue) bool { return true }

// ErrorContaining matches a non-nil error whose message contains substr.
func ErrorContaining(substr string) Matcher { return errorContaining{substr} }

type errorContaining struct{ substr string }

func (m errorContaining) Match(v RetValue) bool {
	err, ok := v.(error)
	return ok && err != nil && strings.Contains(err.Error(), m.substr)
}

func (m errorContaining) String() string {
	return fmt.Sprintf("<error containing %q>", m.substr)
}

// Matchers are compared by calling Match; errors by their messages.
var cmpOpt = cmp.Options{
	cmp.FilterValues(func(a, b any) bool {
		_, ok := a.(Matcher)
		return ok
	}, cmp.Comparer(func(a, b any) bool { return a.(Matcher).Match(b) })),
	cmp.Comparer(func(a, b error) bool {
		if a == nil || b == nil {
			return a == b
		}
		return a.Error() == b.Error()
	}),
}

func match(matchers, actual []any) bool {
	if len(matchers) != len(actual) {
		return false
	}
	for i, matcher := range matchers {
		if m, ok := matcher.(Matcher); ok {
			if !m.Match(actual[i]) {
				return false
			}
		} else if !cmp.Equal(matcher, actual[i], cmpOpt) {
			return false
		}
	}
	return true
}

func call(fn any, args []any) []any {
	argValues := make([]reflect.Value, len(args))
	fnType := reflect.TypeOf(fn)
	for i, arg := range args {
		if arg == nil {
			// Typed zero value for untyped nil arguments.
			argValues[i] = reflect.Zero(fnType.In(i))
		} else {
			argValues[i] = reflect.ValueOf(arg)
		}
	}
	retValues := reflect.ValueOf(fn).Call(argValues)
	rets := make([]any, len(retValues))
	for i, v := range retValues {
		rets[i] = v.Interface()
	}
	return rets
}

func sprintCommaDelimited(args ...any) string {
	var sb strings.Builder
	for i, arg := range args {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprint(&sb, arg)
	}
	return sb.String()
}
