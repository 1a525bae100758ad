// Package storedefs contains definitions of the store API.
//
// It is a separate package so that packages that only depend on the store API
// do not need to depend on the concrete implementation.
package storedefs

import (
	"errors"

	"src.sel.sh/pkg/indexgroup"
)

// ErrNoMatchingEntry is returned when a NextEntry or PrevEntry query
// completes with no result.
var ErrNoMatchingEntry = errors.New("no matching history entry")

// ErrNoGroup is returned by Group when there is no such group.
var ErrNoGroup = errors.New("no such group")

// Store is an interface satisfied by the storage service.
type Store interface {
	NextSeq() (int, error)
	AddEntry(text string) (int, error)
	DelEntry(seq int) error
	Entry(seq int) (string, error)
	Entries(from, upto int) ([]Entry, error)
	NextEntry(from int, prefix string) (Entry, error)
	PrevEntry(upto int, prefix string) (Entry, error)

	PutGroup(g indexgroup.Group) error
	DelGroup(name string) error
	Group(name string) (indexgroup.Group, error)
	Groups() (indexgroup.Groups, error)
}

// Entry is an entry in the selection history.
type Entry struct {
	Text string
	Seq  int
}
