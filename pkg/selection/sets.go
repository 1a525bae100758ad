package selection

import "slices"

// Helpers for index sets kept as ascending slices. The *Into variants write
// into dst, which must be large enough, and return the filled prefix.

func intersectInto(dst, a, b []int) []int {
	n, i, j := 0, 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			i++
		case a[i] > b[j]:
			j++
		default:
			dst[n] = a[i]
			n++
			i++
			j++
		}
	}
	return dst[:n]
}

func minusInto(dst, a, b []int) []int {
	n, j := 0, 0
	for _, x := range a {
		for j < len(b) && b[j] < x {
			j++
		}
		if j < len(b) && b[j] == x {
			continue
		}
		dst[n] = x
		n++
	}
	return dst[:n]
}

// xorInto writes the atoms of g that are in exactly one of a and b.
func xorInto(dst, g, a, b []int) []int {
	n, i, j := 0, 0, 0
	for _, x := range g {
		for i < len(a) && a[i] < x {
			i++
		}
		for j < len(b) && b[j] < x {
			j++
		}
		inA := i < len(a) && a[i] == x
		inB := j < len(b) && b[j] == x
		if inA != inB {
			dst[n] = x
			n++
		}
	}
	return dst[:n]
}

func intersect(a, b []int) []int {
	return intersectInto(make([]int, min(len(a), len(b))), a, b)
}

func minus(a, b []int) []int {
	return minusInto(make([]int, len(a)), a, b)
}

func union(a, b []int) []int {
	out := make([]int, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		switch {
		case j == len(b) || (i < len(a) && a[i] < b[j]):
			out = append(out, a[i])
			i++
		case i == len(a) || b[j] < a[i]:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	return out
}

// isSubsequence reports whether every element of a appears in g, in order.
func isSubsequence(a, g []int) bool {
	j := 0
	for _, x := range a {
		for j < len(g) && g[j] != x {
			j++
		}
		if j == len(g) {
			return false
		}
		j++
	}
	return true
}

// sortedUnique returns a sorted copy of xs without duplicates.
func sortedUnique(xs []int) []int {
	out := slices.Clone(xs)
	slices.Sort(out)
	return slices.Compact(out)
}

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
