// Package indexgroup models externally supplied, named, ordered sets of
// particle indices that selections can refer to by name or ordinal.
package indexgroup

import (
	"fmt"
	"strings"
)

// Group is a named, ordered index set. It is read-only once handed to a
// selection collection.
type Group struct {
	Name    string `yaml:"name"`
	Indices []int  `yaml:"indices"`
}

// Source is where group references are resolved.
type Source interface {
	// Find looks up a group by name.
	Find(name string) (Group, error)
	// At returns the group with the given 0-based ordinal.
	At(i int) (Group, error)
	// Len returns the number of groups.
	Len() int
}

// NotFoundError is returned by lookups that match no group.
type NotFoundError struct {
	Name      string
	Ordinal   int
	ByOrdinal bool
	Ambiguous []string
}

func (e *NotFoundError) Error() string {
	switch {
	case e.ByOrdinal:
		return fmt.Sprintf("no group with number %d", e.Ordinal)
	case len(e.Ambiguous) > 0:
		return fmt.Sprintf("group name %q is ambiguous: could be %s",
			e.Name, strings.Join(e.Ambiguous, ", "))
	default:
		return fmt.Sprintf("no group named %q", e.Name)
	}
}

// Groups is an in-memory Source.
type Groups []Group

// Len implements Source.
func (gs Groups) Len() int { return len(gs) }

// At implements Source.
func (gs Groups) At(i int) (Group, error) {
	if i < 0 || i >= len(gs) {
		return Group{}, &NotFoundError{Ordinal: i, ByOrdinal: true}
	}
	return gs[i], nil
}

// Find implements Source. An exact match wins, then a case-insensitive
// match, then a unique case-insensitive prefix.
func (gs Groups) Find(name string) (Group, error) {
	for _, g := range gs {
		if g.Name == name {
			return g, nil
		}
	}
	for _, g := range gs {
		if strings.EqualFold(g.Name, name) {
			return g, nil
		}
	}
	var candidates []int
	lower := strings.ToLower(name)
	for i, g := range gs {
		if strings.HasPrefix(strings.ToLower(g.Name), lower) {
			candidates = append(candidates, i)
		}
	}
	switch len(candidates) {
	case 0:
		return Group{}, &NotFoundError{Name: name}
	case 1:
		return gs[candidates[0]], nil
	}
	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = gs[c].Name
	}
	return Group{}, &NotFoundError{Name: name, Ambiguous: names}
}

// Validate checks that every index of every group is in [0, natoms).
func (gs Groups) Validate(natoms int) error {
	for _, g := range gs {
		for _, i := range g.Indices {
			if i < 0 || i >= natoms {
				return fmt.Errorf("group %q: index %d out of range for %d atoms", g.Name, i, natoms)
			}
		}
	}
	return nil
}
