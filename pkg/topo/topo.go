// Package topo models the static description of a simulated system and the
// per-frame data fed to selections: atoms with their residue and molecule
// membership, coordinates and the periodic box.
package topo

import (
	"errors"
	"fmt"
)

// Atom is the static description of one particle.
type Atom struct {
	Name     string  `yaml:"name"`
	Type     string  `yaml:"type"`
	ResName  string  `yaml:"resname"`
	ResNr    int     `yaml:"resnr"`
	Chain    string  `yaml:"chain"`
	Mass     float64 `yaml:"mass"`
	Charge   float64 `yaml:"charge"`
	Molecule int     `yaml:"mol"`

	// Index of the residue in Topology.Residues, filled in by New.
	ResIndex int `yaml:"-"`
}

// Block is a contiguous unit of atoms such as a residue or a molecule.
type Block struct {
	Atoms []int
}

// Topology is the static system description. It is immutable after New.
type Topology struct {
	Atoms     []Atom
	Residues  []Block
	Molecules []Block
}

// ErrEmpty is returned by New when there are no atoms.
var ErrEmpty = errors.New("topology has no atoms")

// New builds a Topology from atoms, taking ownership of the slice. A new residue starts whenever the residue
// number, residue name or molecule changes from the previous atom; a new
// molecule whenever the molecule number changes.
func New(atoms []Atom) (*Topology, error) {
	if len(atoms) == 0 {
		return nil, ErrEmpty
	}
	t := &Topology{Atoms: atoms}
	for i := range atoms {
		a := &atoms[i]
		if i == 0 || a.Molecule != atoms[i-1].Molecule {
			if i > 0 && a.Molecule < atoms[i-1].Molecule {
				return nil, fmt.Errorf("atom %d: molecule %d appears after molecule %d",
					i, a.Molecule, atoms[i-1].Molecule)
			}
			t.Molecules = append(t.Molecules, Block{})
		}
		if i == 0 || a.ResNr != atoms[i-1].ResNr || a.ResName != atoms[i-1].ResName ||
			a.Molecule != atoms[i-1].Molecule {
			t.Residues = append(t.Residues, Block{})
		}
		a.ResIndex = len(t.Residues) - 1
		t.Residues[a.ResIndex].Atoms = append(t.Residues[a.ResIndex].Atoms, i)
		t.Molecules[len(t.Molecules)-1].Atoms = append(t.Molecules[len(t.Molecules)-1].Atoms, i)
	}
	// Molecule numbers become dense indices.
	for mi, m := range t.Molecules {
		for _, ai := range m.Atoms {
			atoms[ai].Molecule = mi
		}
	}
	return t, nil
}

// NAtoms returns the number of atoms.
func (t *Topology) NAtoms() int { return len(t.Atoms) }

// HasMasses reports whether any atom has a non-zero mass.
func (t *Topology) HasMasses() bool {
	for _, a := range t.Atoms {
		if a.Mass != 0 {
			return true
		}
	}
	return false
}
