package testutil

import (
	"os"
	"path/filepath"
)

// TempDir creates a temporary directory that is removed when the test ends.
// The returned path has symlinks resolved.
func TempDir(c Cleanuper) string {
	dir, err := os.MkdirTemp("", "seltest")
	if err != nil {
		panic(err)
	}
	dir, err = filepath.EvalSymlinks(dir)
	if err != nil {
		panic(err)
	}
	c.Cleanup(func() {
		if err := os.RemoveAll(dir); err != nil {
			panic(err)
		}
	})
	return dir
}

// InTempDir is like TempDir, but also changes into the directory and changes
// back during cleanup.
func InTempDir(c Cleanuper) string {
	oldWd, err := os.Getwd()
	if err != nil {
		panic(err)
	}
	dir := TempDir(c)
	if err := os.Chdir(dir); err != nil {
		panic(err)
	}
	c.Cleanup(func() {
		if err := os.Chdir(oldWd); err != nil {
			panic(err)
		}
	})
	return dir
}
