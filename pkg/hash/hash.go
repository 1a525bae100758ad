// Package hash contains the DJB hash functions used to key structurally
// deduplicated objects such as position calculations and subexpressions.
package hash

import "math"

// DJBInit is the initial accumulator value.
const DJBInit uint32 = 5381

// DJBCombine mixes h into acc.
func DJBCombine(acc, h uint32) uint32 {
	return acc<<5 + acc + h
}

// DJB combines a sequence of hashes.
func DJB(hs ...uint32) uint32 {
	acc := DJBInit
	for _, h := range hs {
		acc = DJBCombine(acc, h)
	}
	return acc
}

// UInt64 folds a 64-bit value into 32 bits.
func UInt64(u uint64) uint32 {
	return DJBCombine(uint32(u>>32), uint32(u))
}

// Float64 hashes the bit pattern of f.
func Float64(f float64) uint32 {
	return UInt64(math.Float64bits(f))
}

// String hashes the bytes of s.
func String(s string) uint32 {
	h := DJBInit
	for i := 0; i < len(s); i++ {
		h = DJBCombine(h, uint32(s[i]))
	}
	return h
}

// Ints hashes an index sequence. Order matters.
func Ints(xs []int) uint32 {
	h := DJBCombine(DJBInit, uint32(len(xs)))
	for _, x := range xs {
		h = DJBCombine(h, uint32(x))
	}
	return h
}
