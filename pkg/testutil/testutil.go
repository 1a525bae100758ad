// Package testutil contains helpers shared by tests of the selection
// packages.
package testutil

// Cleanuper wraps the Cleanup method. *testing.T and *testing.B satisfy it.
type Cleanuper interface {
	Cleanup(func())
}

// Set assigns v to *p for the duration of a test, restoring the old value
// during cleanup.
func Set[T any](c Cleanuper, p *T, v T) {
	old := *p
	*p = v
	c.Cleanup(func() { *p = old })
}
