package diag

// Ranger wraps the Range method.
type Ranger interface {
	// Range returns the byte range associated with the value.
	Range() Ranging
}

// Ranging is a half-open byte range [From, To) in a piece of source text.
// Syntax nodes and elements embed it to satisfy [Ranger].
type Ranging struct {
	From int
	To   int
}

// Range returns the Ranging itself.
func (r Ranging) Range() Ranging { return r }

// Len returns the number of bytes covered.
func (r Ranging) Len() int { return r.To - r.From }

// PointRanging returns a zero-width Ranging at p.
func PointRanging(p int) Ranging { return Ranging{p, p} }

// MixedRanging spans from the start of a to the end of b.
func MixedRanging(a, b Ranger) Ranging {
	return Ranging{a.Range().From, b.Range().To}
}

// UnknownRanging is used for errors that cannot be pinned to any source.
var UnknownRanging = Ranging{-1, -1}
