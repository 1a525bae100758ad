package topo

import (
	"fmt"
	"math"
)

// Vec3 is a 3-D vector in nanometers.
type Vec3 [3]float64

// Add returns a + b.
func (a Vec3) Add(b Vec3) Vec3 { return Vec3{a[0] + b[0], a[1] + b[1], a[2] + b[2]} }

// Sub returns a - b.
func (a Vec3) Sub(b Vec3) Vec3 { return Vec3{a[0] - b[0], a[1] - b[1], a[2] - b[2]} }

// Scale returns a * f.
func (a Vec3) Scale(f float64) Vec3 { return Vec3{a[0] * f, a[1] * f, a[2] * f} }

// Dot returns the dot product.
func (a Vec3) Dot(b Vec3) float64 { return a[0]*b[0] + a[1]*b[1] + a[2]*b[2] }

// Norm2 returns the squared length.
func (a Vec3) Norm2() float64 { return a.Dot(a) }

// Norm returns the length.
func (a Vec3) Norm() float64 { return math.Sqrt(a.Norm2()) }

// IsFinite reports whether no component is infinite or NaN.
func (a Vec3) IsFinite() bool {
	for _, c := range a {
		if math.IsInf(c, 0) || math.IsNaN(c) {
			return false
		}
	}
	return true
}

func (a Vec3) String() string {
	return fmt.Sprintf("[%g, %g, %g]", a[0], a[1], a[2])
}
