package topo

import (
	"fmt"
	"math"
)

// Box holds the three box vectors as rows. A zero Box means no periodic
// boundaries.
type Box [3]Vec3

// Rect returns a rectangular box with the given edge lengths.
func Rect(x, y, z float64) Box {
	return Box{{x, 0, 0}, {0, y, 0}, {0, 0, z}}
}

// IsZero reports whether the box is absent.
func (b Box) IsZero() bool { return b == Box{} }

// IsRect reports whether all off-diagonal elements are zero.
func (b Box) IsRect() bool {
	return b[0][1] == 0 && b[0][2] == 0 && b[1][0] == 0 &&
		b[1][2] == 0 && b[2][0] == 0 && b[2][1] == 0
}

// MaxCutoff returns the largest distance for which the minimum image is
// unambiguous: half of the smallest box height.
func (b Box) MaxCutoff() float64 {
	if b.IsZero() {
		return math.Inf(1)
	}
	return 0.5 * math.Min(b[0][0], math.Min(b[1][1], b[2][2]))
}

// CheckCutoff returns an error if cutoff exceeds MaxCutoff.
func (b Box) CheckCutoff(cutoff float64) error {
	if limit := b.MaxCutoff(); cutoff > limit {
		return fmt.Errorf("cutoff %g is larger than half the box height %g", cutoff, limit)
	}
	return nil
}

// Dx returns the minimum-image vector from b to a. Triclinic boxes are
// handled with the usual z, y, x shift sequence, which is exact for boxes in
// the standard lower-triangular form.
func (box Box) Dx(a, b Vec3) Vec3 {
	d := a.Sub(b)
	if box.IsZero() {
		return d
	}
	for i := 2; i >= 0; i-- {
		l := box[i][i]
		if l <= 0 {
			continue
		}
		if k := math.Round(d[i] / l); k != 0 {
			d = d.Sub(box[i].Scale(k))
		}
	}
	return d
}

// Dist2 returns the squared minimum-image distance.
func (box Box) Dist2(a, b Vec3) float64 { return box.Dx(a, b).Norm2() }

// Frame is one snapshot of coordinates.
type Frame struct {
	Step int
	Time float64
	Box  Box
	X    []Vec3
}

// NAtoms returns the number of coordinates in the frame.
func (f *Frame) NAtoms() int { return len(f.X) }

// CheckFinite returns an error if a coordinate or box component is infinite
// or NaN.
func (f *Frame) CheckFinite() error {
	for i, v := range f.Box {
		if !v.IsFinite() {
			return fmt.Errorf("box vector %d is not finite: %v", i, v)
		}
	}
	for i, x := range f.X {
		if !x.IsFinite() {
			return fmt.Errorf("coordinate of atom %d is not finite: %v", i, x)
		}
	}
	return nil
}
