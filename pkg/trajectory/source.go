// Package trajectory reads frames and evaluates selections over them.
package trajectory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
	"src.sel.sh/pkg/topo"
)

// Source yields frames one at a time. Next returns io.EOF after the last
// frame.
type Source interface {
	Next(ctx context.Context) (*topo.Frame, error)
}

// Frames is a Source over frames already in memory.
type Frames struct {
	frames []*topo.Frame
	i      int
}

// NewFrames returns a Source yielding the given frames in order.
func NewFrames(frames []*topo.Frame) *Frames { return &Frames{frames: frames} }

// Next implements Source.
func (s *Frames) Next(ctx context.Context) (*topo.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.i >= len(s.frames) {
		return nil, io.EOF
	}
	f := s.frames[s.i]
	s.i++
	return f, nil
}

type yamlFrame struct {
	Step int         `yaml:"step"`
	Time float64     `yaml:"time"`
	Box  []topo.Vec3 `yaml:"box"`
	X    []topo.Vec3 `yaml:"x"`
}

// Stream is a Source decoding a YAML stream with one frame per document:
//
//	step: 0
//	box: [[3, 3, 3]]
//	x: [[0.1, 0.2, 0.3], [1, 1, 1]]
//	---
//	step: 1
//	...
type Stream struct {
	dec    *yaml.Decoder
	natoms int
	n      int
}

// NewStream returns a Stream reading from r. When natoms is positive, every
// frame must have exactly natoms coordinates.
func NewStream(r io.Reader, natoms int) *Stream {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	return &Stream{dec: dec, natoms: natoms}
}

// Next implements Source.
func (s *Stream) Next(ctx context.Context) (*topo.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var yf yamlFrame
	if err := s.dec.Decode(&yf); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("frame %d: %w", s.n, err)
	}
	if s.natoms > 0 && len(yf.X) != s.natoms {
		return nil, fmt.Errorf("frame %d has %d coordinates, want %d", s.n, len(yf.X), s.natoms)
	}
	box, err := topo.BoxFromVectors(yf.Box)
	if err != nil {
		return nil, fmt.Errorf("frame %d: %w", s.n, err)
	}
	f := &topo.Frame{Step: yf.Step, Time: yf.Time, Box: box, X: yf.X}
	if err := f.CheckFinite(); err != nil {
		return nil, fmt.Errorf("frame %d: %w", s.n, err)
	}
	s.n++
	return f, nil
}

// Open returns a Stream reading the named file, and a function that closes
// the file.
func Open(path string, natoms int) (*Stream, func() error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return NewStream(f, natoms), f.Close, nil
}
