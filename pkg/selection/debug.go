package selection

import (
	"fmt"
	"strings"
)

// DebugLevel controls how much of the compilation and evaluation is written
// to the log.
type DebugLevel int

const (
	DebugNone DebugLevel = iota
	// Selection texts and compile summaries.
	DebugBasic
	// Element trees after compilation, position calculations and pool sizes.
	DebugCompile
	// Every element evaluation.
	DebugEval
	// Everything, and stale pool buffers panic.
	DebugFull
)

var debugLevelNames = [...]string{"none", "basic", "compile", "eval", "full"}

func (l DebugLevel) String() string {
	if l < 0 || int(l) >= len(debugLevelNames) {
		return fmt.Sprintf("!(bad debug level %d)", int(l))
	}
	return debugLevelNames[l]
}

// ParseDebugLevel parses a level name or number.
func ParseDebugLevel(s string) (DebugLevel, error) {
	for i, name := range debugLevelNames {
		if s == name || s == fmt.Sprint(i) {
			return DebugLevel(i), nil
		}
	}
	return 0, fmt.Errorf("unknown debug level %q, valid levels are: %s",
		s, strings.Join(debugLevelNames[:], ", "))
}
