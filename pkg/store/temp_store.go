package store

import (
	"path/filepath"

	"src.sel.sh/pkg/testutil"
)

// MustTempStore returns a Store backed by a file in a temporary directory.
// The store is closed during cleanup, and it panics if the store cannot be
// created.
func MustTempStore(c testutil.Cleanuper) DBStore {
	dir := testutil.TempDir(c)
	st, err := NewStore(filepath.Join(dir, "db"))
	if err != nil {
		panic(err)
	}
	c.Cleanup(func() {
		if err := st.Close(); err != nil {
			panic(err)
		}
	})
	return st
}
