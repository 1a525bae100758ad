// Package mempool implements the scratch arena used by selection evaluation.
//
// The compiler sizes the arena once; every frame is bracketed by BeginFrame
// and EndFrame, and buffers handed out during a frame are invalid after it.
// Buffers are zeroed when handed out, so nothing leaks from one frame into
// the next.
package mempool

import (
	"fmt"
	"unsafe"

	"src.sel.sh/pkg/topo"
)

// Sizes counts elements per arena.
type Sizes struct {
	Indices   int
	Numbers   int
	Strings   int
	Positions int
	Flags     int
}

// Add returns the element-wise sum.
func (s Sizes) Add(o Sizes) Sizes {
	return Sizes{s.Indices + o.Indices, s.Numbers + o.Numbers, s.Strings + o.Strings,
		s.Positions + o.Positions, s.Flags + o.Flags}
}

// Max returns the element-wise maximum.
func (s Sizes) Max(o Sizes) Sizes {
	return Sizes{max(s.Indices, o.Indices), max(s.Numbers, o.Numbers), max(s.Strings, o.Strings),
		max(s.Positions, o.Positions), max(s.Flags, o.Flags)}
}

// Bytes returns the memory needed to back s.
func (s Sizes) Bytes() int {
	return s.Indices*int(unsafe.Sizeof(int(0))) +
		s.Numbers*8 +
		s.Strings*int(unsafe.Sizeof("")) +
		s.Positions*int(unsafe.Sizeof(topo.Vec3{})) +
		s.Flags
}

type arena[T any] struct {
	buf []T
	top int
	// Elements handed out this frame, including those that did not fit.
	used int
	// Largest used seen since the last growth.
	high int
}

func (a *arena[T]) alloc(n int) []T {
	a.used += n
	a.high = max(a.high, a.used)
	if a.top+n <= len(a.buf) {
		s := a.buf[a.top : a.top+n : a.top+n]
		clear(s)
		a.top += n
		return s
	}
	return make([]T, n)
}

func (a *arena[T]) reset() {
	if a.high > len(a.buf) {
		a.buf = make([]T, a.high)
	}
	a.top, a.used = 0, 0
}

func (a *arena[T]) reserve(n int) {
	if n > len(a.buf) {
		a.buf = make([]T, n)
	}
	a.high = max(a.high, n)
}

// Pool is a generation-tagged set of typed arenas. It is not safe for
// concurrent use.
type Pool struct {
	gen     uint64
	inFrame bool
	debug   bool

	indices   arena[int]
	numbers   arena[float64]
	strings   arena[string]
	positions arena[topo.Vec3]
	flags     arena[bool]
}

// New returns an empty Pool.
func New() *Pool { return &Pool{} }

// SetDebug turns on generation checks in Buf.Get.
func (p *Pool) SetDebug(debug bool) { p.debug = debug }

// Reserve makes sure at least s elements are available per arena.
func (p *Pool) Reserve(s Sizes) {
	p.indices.reserve(s.Indices)
	p.numbers.reserve(s.Numbers)
	p.strings.reserve(s.Strings)
	p.positions.reserve(s.Positions)
	p.flags.reserve(s.Flags)
}

// Reserved returns the current capacity.
func (p *Pool) Reserved() Sizes {
	return Sizes{len(p.indices.buf), len(p.numbers.buf), len(p.strings.buf),
		len(p.positions.buf), len(p.flags.buf)}
}

// Generation returns the current frame generation. It increases by one at
// every BeginFrame.
func (p *Pool) Generation() uint64 { return p.gen }

// InFrame reports whether a frame is open.
func (p *Pool) InFrame() bool { return p.inFrame }

// BeginFrame opens a new frame. Arenas that overflowed in the previous frame
// are grown first.
func (p *Pool) BeginFrame() {
	if p.inFrame {
		panic("mempool: BeginFrame called twice")
	}
	p.gen++
	p.inFrame = true
	p.indices.reset()
	p.numbers.reset()
	p.strings.reset()
	p.positions.reset()
	p.flags.reset()
}

// EndFrame closes the frame. Buffers from it must not be used afterwards.
func (p *Pool) EndFrame() {
	if !p.inFrame {
		panic("mempool: EndFrame without BeginFrame")
	}
	p.inFrame = false
}

// Mark records the arena cursors.
type Mark struct {
	gen  uint64
	tops [5]int
	used [5]int
}

// Mark returns the current cursors, to be passed to Release.
func (p *Pool) Mark() Mark {
	return Mark{p.gen,
		[5]int{p.indices.top, p.numbers.top, p.strings.top, p.positions.top, p.flags.top},
		[5]int{p.indices.used, p.numbers.used, p.strings.used, p.positions.used, p.flags.used}}
}

// Release returns everything allocated since m to the arenas.
func (p *Pool) Release(m Mark) {
	if m.gen != p.gen {
		panic(fmt.Sprintf("mempool: releasing mark of generation %d in generation %d", m.gen, p.gen))
	}
	p.indices.top, p.indices.used = m.tops[0], m.used[0]
	p.numbers.top, p.numbers.used = m.tops[1], m.used[1]
	p.strings.top, p.strings.used = m.tops[2], m.used[2]
	p.positions.top, p.positions.used = m.tops[3], m.used[3]
	p.flags.top, p.flags.used = m.tops[4], m.used[4]
}

// Buf is a buffer handed out by a Pool, tagged with its generation.
type Buf[T any] struct {
	pool *Pool
	gen  uint64
	s    []T
}

// Get returns the underlying slice. With debug checks on, it panics if the
// buffer belongs to a closed frame.
func (b Buf[T]) Get() []T {
	if b.pool != nil && b.pool.debug && (b.gen != b.pool.gen || !b.pool.inFrame) {
		panic(fmt.Sprintf("mempool: buffer of generation %d used in generation %d (in frame: %v)",
			b.gen, b.pool.gen, b.pool.inFrame))
	}
	return b.s
}

// Len returns the length of the buffer.
func (b Buf[T]) Len() int { return len(b.s) }

func newBuf[T any](p *Pool, a *arena[T], n int) Buf[T] {
	if !p.inFrame {
		panic("mempool: allocation outside of a frame")
	}
	return Buf[T]{p, p.gen, a.alloc(n)}
}

// Indices allocates n zeroed indices.
func (p *Pool) Indices(n int) Buf[int] { return newBuf(p, &p.indices, n) }

// Numbers allocates n zeroed numbers.
func (p *Pool) Numbers(n int) Buf[float64] { return newBuf(p, &p.numbers, n) }

// Strings allocates n empty strings.
func (p *Pool) Strings(n int) Buf[string] { return newBuf(p, &p.strings, n) }

// Positions allocates n zero vectors.
func (p *Pool) Positions(n int) Buf[topo.Vec3] { return newBuf(p, &p.positions, n) }

// Flags allocates n false flags.
func (p *Pool) Flags(n int) Buf[bool] { return newBuf(p, &p.flags, n) }
