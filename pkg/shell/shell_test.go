package shell

import (
	"os"
	"testing"

	"src.sel.sh/pkg/must"
	"src.sel.sh/pkg/testutil"

	. "src.sel.sh/pkg/prog/progtest"
)

var systemYAML = `
atoms:
  - {name: OW, resname: SOL, resnr: 1, mass: 16, mol: 0}
  - {name: HW1, resname: SOL, resnr: 1, mass: 1, mol: 0}
  - {name: CA, resname: PROT, resnr: 2, mass: 12, mol: 1}
frames:
  - step: 0
    box: [[10, 10, 10]]
    x: [[1, 0, 0], [1.5, 0, 0], [3, 0, 0]]
  - step: 10
    box: [[10, 10, 10]]
    x: [[1, 0, 0], [2.5, 0, 0], [3, 0, 0]]
`

var trajYAML = `
step: 0
x: [[5, 0, 0], [5, 0, 0], [1, 0, 0]]
---
step: 1
x: [[1, 0, 0], [5, 0, 0], [1, 0, 0]]
`

var groupsYAML = `
- name: Water
  indices: [0, 1]
`

func setup(t *testing.T) {
	testutil.InTempDir(t)
	must.OK(os.WriteFile("sys.yaml", []byte(systemYAML), 0o600))
	must.OK(os.WriteFile("traj.yaml", []byte(trajYAML), 0o600))
	must.OK(os.WriteFile("groups.yaml", []byte(groupsYAML), 0o600))
	must.OK(os.WriteFile("short.yaml", []byte("x: [[1, 0, 0]]\n"), 0o600))
	must.OK(os.WriteFile("a.sel", []byte("x < 2\n\"far\" x > 2\n"), 0o600))
}

func TestProgram_Check(t *testing.T) {
	setup(t)
	Test(t, &Program{},
		ThatSelsh("-select", "x < 2").
			WritesStdout("# Selections:\n#   x < 2\n"),
		ThatSelsh("-select", "x < 2", "-top", "sys.yaml", "-check").
			WritesStdout("# Selections:\n#   x < 2\n"),
		ThatSelsh("a.sel").
			WritesStdout("# Selections:\n#   x < 2\n#   \"far\": x > 2\n"),
		ThatSelsh("-f", "a.sel").
			WritesStdout("# Selections:\n#   x < 2\n#   \"far\": x > 2\n"),
		ThatSelsh("-n", "2").WithStdin("x < 2\ny > 1\n").
			WritesStdout("# Selections:\n#   x < 2\n#   y > 1\n"),
		ThatSelsh("-json", "-select", "x < 2").
			WritesStdoutContaining(`"name":"x < 2","text":"x < 2","dynamic":true`),
	)
}

func TestProgram_Errors(t *testing.T) {
	setup(t)
	Test(t, &Program{},
		ThatSelsh("-select", "x <").
			ExitsWith(2).WritesStderrContaining("Syntax error"),
		ThatSelsh("-json", "-select", "x <").
			ExitsWith(2).WritesStdoutContaining(`"kind":"syntax error"`),
		ThatSelsh("-n", "2").WithStdin("x < 2\n").
			ExitsWith(2).WritesStderrContaining("Too few selections provided: wanted 2, got 1"),
		ThatSelsh("-top", "sys.yaml", "-select", `group "Nope"`).
			ExitsWith(2).WritesStderrContaining("Unresolved reference"),
		ThatSelsh("-select", "resname SOL").
			ExitsWith(2).WritesStderrContaining("Topology required"),
		ThatSelsh("-top", "nonexistent.yaml", "-select", "x < 2").
			ExitsWith(2).WritesStderrContaining("nonexistent.yaml"),
	)
}

func TestProgram_BadUsage(t *testing.T) {
	setup(t)
	Test(t, &Program{},
		ThatSelsh("a.sel", "b.sel").
			ExitsWith(2).WritesStderrContaining("at most one selection file may be given"),
		ThatSelsh("-f", "a.sel", "a.sel").
			ExitsWith(2).WritesStderrContaining("both with -f and as an argument"),
		ThatSelsh("-select", "x < 1", "a.sel").
			ExitsWith(2).WritesStderrContaining("-select cannot be used with a selection file"),
		ThatSelsh("-seldebug", "loud", "-select", "x < 1").
			ExitsWith(2).WritesStderrContaining("Usage:"),
		ThatSelsh("-selrpos", "nope", "-select", "x < 1").
			ExitsWith(2).WritesStderrContaining("-selrpos"),
		ThatSelsh("-history").
			ExitsWith(2).WritesStderrContaining("-history requires -db"),
	)
}

func TestProgram_Evaluate(t *testing.T) {
	setup(t)
	Test(t, &Program{},
		ThatSelsh("-top", "sys.yaml", "-select", "x < 2").
			WritesStdout(
				"0\tx < 2\t0 1\n"+
					"1\tx < 2\t0\n"+
					"# 2 frames\n"+
					"# \"x < 2\": average 1.50 atoms, at most 3\n"),
		ThatSelsh("-top", "sys.yaml", "-traj", "traj.yaml", "-workers", "2", "-select", "x < 2").
			WritesStdoutContaining("0\tx < 2\t2\n1\tx < 2\t0 2\n"),
		ThatSelsh("-top", "sys.yaml", "-json", "-select", "x < 2").
			WritesStdoutContaining(
				`{"frame":1,"step":10,"time":0,"selections":[{"name":"x < 2","indices":[0]}]}`),
		ThatSelsh("-top", "sys.yaml", "-groups", "groups.yaml", "-select", `group "Water" and x > 1.2`).
			WritesStdoutContaining("0\tgroup \"Water\" and x > 1.2\t1\n1\tgroup \"Water\" and x > 1.2\t1\n"),
	)
}

func TestProgram_Database(t *testing.T) {
	setup(t)
	Test(t, &Program{},
		ThatSelsh("-db", "db", "-select", "x < 2").
			WritesStdoutAnything(),
		ThatSelsh("-db", "db", "-top", "sys.yaml", "-groups", "groups.yaml", "-check", "-select", `group "Water"`).
			WritesStdoutAnything(),
		// Groups saved by the previous run.
		ThatSelsh("-db", "db", "-top", "sys.yaml", "-check", "-select", `group "Water"`).
			WritesStdout("# Selections:\n#   group \"Water\"\n"),
		ThatSelsh("-db", "db", "-history").
			WritesStdout("1\tx < 2\n2\tgroup \"Water\"\n3\tgroup \"Water\"\n"),
	)
}

func TestProgram_FailedRunsAreNotRecorded(t *testing.T) {
	setup(t)
	Test(t, &Program{},
		// Compile error.
		ThatSelsh("-db", "db", "-top", "sys.yaml", "-check", "-select", `group "Missing"`).
			ExitsWith(2).WritesStderrContaining("Unresolved reference"),
		// Evaluation stops on a frame with the wrong number of atoms.
		ThatSelsh("-db", "db", "-top", "sys.yaml", "-traj", "short.yaml", "-select", "x < 2").
			ExitsWith(2).WritesStdoutAnything().WritesStderrContaining("1 coordinates, want 3"),
		ThatSelsh("-db", "db", "-history").DoesNothing(),
		ThatSelsh("-db", "db", "-top", "sys.yaml", "-select", "x < 2").
			WritesStdoutAnything(),
		ThatSelsh("-db", "db", "-history").WritesStdout("1\tx < 2\n"),
	)
}
