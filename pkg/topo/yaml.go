package topo

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// System is a topology together with a short trajectory, as read from a YAML
// system file:
//
//	atoms:
//	  - {name: OW, resname: SOL, resnr: 1, mass: 15.999, mol: 0}
//	frames:
//	  - box: [[3, 0, 0], [0, 3, 0], [0, 0, 3]]
//	    x: [[0.1, 0.2, 0.3]]
type System struct {
	Topology *Topology
	Frames   []*Frame
}

type yamlSystem struct {
	Atoms  []Atom      `yaml:"atoms"`
	Frames []yamlFrame `yaml:"frames"`
}

type yamlFrame struct {
	Step int     `yaml:"step"`
	Time float64 `yaml:"time"`
	Box  []Vec3  `yaml:"box"`
	X    []Vec3  `yaml:"x"`
}

// ReadSystem decodes a YAML system description.
func ReadSystem(r io.Reader) (*System, error) {
	var ys yamlSystem
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&ys); err != nil {
		return nil, fmt.Errorf("decode system: %w", err)
	}
	top, err := New(ys.Atoms)
	if err != nil {
		return nil, err
	}
	sys := &System{Topology: top}
	for i, yf := range ys.Frames {
		if len(yf.X) != top.NAtoms() {
			return nil, fmt.Errorf("frame %d has %d coordinates, topology has %d atoms",
				i, len(yf.X), top.NAtoms())
		}
		box, err := BoxFromVectors(yf.Box)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		f := &Frame{Step: yf.Step, Time: yf.Time, Box: box, X: yf.X}
		if err := f.CheckFinite(); err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		sys.Frames = append(sys.Frames, f)
	}
	return sys, nil
}

// LoadSystem reads a YAML system file.
func LoadSystem(path string) (*System, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadSystem(f)
}

// BoxFromVectors builds a box from its YAML form: no vectors for no box, one
// vector of edge lengths for a rectangular box, or three box vectors.
func BoxFromVectors(vs []Vec3) (Box, error) {
	var b Box
	switch len(vs) {
	case 0:
	case 1:
		b = Rect(vs[0][0], vs[0][1], vs[0][2])
	case 3:
		copy(b[:], vs)
	default:
		return b, fmt.Errorf("box must have 1 or 3 vectors, got %d", len(vs))
	}
	return b, nil
}
