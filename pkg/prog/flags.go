package prog

import "flag"

// FlagSet wraps a [flag.FlagSet] to provide flags shared by several
// subprograms. Each shared flag is registered the first time it is asked
// for.
type FlagSet struct {
	*flag.FlagSet
	systemPaths *SystemPaths
	json        *bool
}

// SystemPaths keeps the paths describing the system selections are
// evaluated on.
type SystemPaths struct {
	// YAML file with the topology and optionally frames.
	Top string
	// YAML file with index groups.
	Groups string
	// Database with the selection history and saved index groups.
	DB string
}

// SystemPaths returns the -top, -groups and -db flags.
func (fs *FlagSet) SystemPaths() *SystemPaths {
	if fs.systemPaths == nil {
		var sp SystemPaths
		fs.StringVar(&sp.Top, "top", "",
			"path to a YAML system file with the topology and frames")
		fs.StringVar(&sp.Groups, "groups", "",
			"path to a YAML file with index groups")
		fs.StringVar(&sp.DB, "db", "",
			"path to the database for selection history and saved groups")
		fs.systemPaths = &sp
	}
	return fs.systemPaths
}

// JSON returns the -json flag.
func (fs *FlagSet) JSON() *bool {
	if fs.json == nil {
		var json bool
		fs.BoolVar(&json, "json", false,
			"show output from -buildinfo, -version, -check or evaluation in JSON")
		fs.json = &json
	}
	return fs.json
}
