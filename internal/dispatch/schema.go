package dispatch

import (
	"path/filepath"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/wavegrid/internal/params"
)

// DeclareParams registers the parameters and paths the dispatch core itself
// requires. Component modules add their own declarations on top before the
// store validates.
func DeclareParams(s *params.Schema, workdir string) {
	s.Par(params.Decl{
		Name: "TITLE", Type: cty.String, Default: cty.StringVal(filepath.Base(workdir)),
		Doc: "Name used when submitting jobs to the compute system; defaults to the workdir basename.",
	})
	s.Par(params.Decl{
		Name: "SYSTEM", Type: cty.String, Required: true,
		Doc: "Compute system backend: 'serial' or 'process'.",
	})
	s.Par(params.Decl{
		Name: "WALLTIME", Type: cty.Number, Required: true,
		Doc: "Maximum wall-clock time in minutes for the whole submission.",
	})
	s.Par(params.Decl{
		Name: "TASKTIME", Type: cty.Number, Required: true,
		Doc: "Maximum wall-clock time in minutes for each individual task.",
	})
	s.Par(params.Decl{
		Name: "NTASK", Type: cty.Number, Required: true, Integer: true,
		Doc: "Number of independent tasks, equal to the number of sources in the workflow.",
	})
	s.Par(params.Decl{
		Name: "NPROC", Type: cty.Number, Default: cty.NumberIntVal(1), Integer: true,
		Doc: "Number of processors per simulation task.",
	})
	s.Par(params.Decl{
		Name: "BEGIN", Type: cty.Number, Default: cty.NumberIntVal(1), Integer: true,
		Doc: "First iteration covered by this submission.",
	})
	s.Par(params.Decl{
		Name: "END", Type: cty.Number, Default: cty.NumberIntVal(1), Integer: true,
		Doc: "Last iteration covered by this submission.",
	})
	s.Par(params.Decl{
		Name: "LOG_LEVEL", Type: cty.String,
		Doc: "Logging level for this run: 'debug', 'info', 'warn' or 'error'. Overrides the -log-level flag when set.",
	})
	s.Par(params.Decl{
		Name: "VERBOSE", Type: cty.Bool, Default: cty.False,
		Doc: "Attach source locations to log records.",
	})
	s.Par(params.Decl{
		Name: "PRECHECK", Type: cty.List(cty.String),
		Default: cty.ListVal([]cty.Value{
			cty.StringVal("TITLE"), cty.StringVal("BEGIN"),
			cty.StringVal("END"), cty.StringVal("WALLTIME"),
		}),
		Doc: "Parameters echoed for review before submission.",
	})

	s.Path(params.Decl{
		Name: "WORKDIR", Default: cty.StringVal(workdir),
		Doc: "Root of the working tree for this run.",
	})
	s.Path(params.Decl{
		Name: "SCRATCH",
		Doc:  "Override for the per-task scratch area. Defaults to <WORKDIR>/scratch.",
	})
	s.Path(params.Decl{
		Name: "OUTPUT",
		Doc:  "Override for the shared output directory. Defaults to <WORKDIR>/output.",
	})
	s.Path(params.Decl{
		Name: "LOG",
		Doc:  "Override for the run log directory. Defaults to <WORKDIR>/logs.",
	})
	s.Path(params.Decl{
		Name: "LOCAL",
		Doc:  "Optional path to node-local data used during the workflow.",
	})
}
