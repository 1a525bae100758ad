package testutil

import "testing"

var dedentTests = []struct {
	name string
	in   string
	out  string
}{
	{
		name: "leading newline is removed",
		in: `
			sol = resname SOL
			  within 0.5 of sol`,
		out: "sol = resname SOL\n  within 0.5 of sol",
	},
	{
		name: "trailing newline is kept",
		in: `
			all
			none
			`,
		out: "all\nnone\n",
	},
	{
		name: "blank lines do not affect the margin",
		in:   "\n    a\n\n    b",
		out:  "a\n\nb",
	},
	{
		name: "no common indentation",
		in:   " a\nb",
		out:  " a\nb",
	},
}

func TestDedent(t *testing.T) {
	for _, test := range dedentTests {
		t.Run(test.name, func(t *testing.T) {
			if got := Dedent(test.in); got != test.out {
				t.Errorf("Dedent(%q) -> %q, want %q", test.in, got, test.out)
			}
		})
	}
}
