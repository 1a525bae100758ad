package indexgroup

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Read decodes groups from YAML:
//
//   - name: Protein
//     indices: [0, 1, 2]
//   - name: SOL
//     indices: [3, 4, 5]
func Read(r io.Reader) (Groups, error) {
	var gs Groups
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&gs); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("decode index groups: %w", err)
	}
	return gs, nil
}

// Load reads groups from a YAML file.
func Load(path string) (Groups, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// Write encodes groups as YAML.
func Write(w io.Writer, gs Groups) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(gs); err != nil {
		return err
	}
	return enc.Close()
}
