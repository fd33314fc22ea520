package submit_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/wavegrid/internal/dispatch"
	"github.com/vk/wavegrid/internal/params"
	"github.com/vk/wavegrid/internal/registry"
	"github.com/vk/wavegrid/internal/runctx"
	"github.com/vk/wavegrid/internal/serialdispatch"
	"github.com/vk/wavegrid/internal/submit"
	"github.com/vk/wavegrid/internal/workdir"
	"github.com/vk/wavegrid/internal/workflow"
	"github.com/vk/wavegrid/modules/preprocess"
	"github.com/vk/wavegrid/modules/solver"
)

// newRun assembles a full serial-backend run over a temp working tree, the
// same wiring the application performs at startup.
func newRun(t *testing.T, ntask int) *runctx.Run {
	t.Helper()

	root := t.TempDir()
	schema := params.NewSchema()
	dispatch.DeclareParams(schema, root)
	solverMod := &solver.Module{}
	preprocessMod := &preprocess.Module{}
	solverMod.Declare(schema)
	preprocessMod.Declare(schema)

	store := params.NewStore(schema, map[string]cty.Value{
		"TITLE":    cty.StringVal("toy_inversion"),
		"SYSTEM":   cty.StringVal("serial"),
		"WALLTIME": cty.NumberIntVal(30),
		"TASKTIME": cty.NumberFloatVal(5),
		"NTASK":    cty.NumberIntVal(int64(ntask)),
	})
	require.NoError(t, store.Validate())
	require.NoError(t, preprocessMod.Check(store))

	reg := registry.New()
	solverMod.Register(reg)
	preprocessMod.Register(reg)

	tree := workdir.New(root)
	return &runctx.Run{
		Params:     store,
		Tree:       tree,
		Registry:   reg,
		Dispatcher: serialdispatch.New(store, tree, reg),
	}
}

func TestSubmitRunsForwardWorkflow(t *testing.T) {
	run := newRun(t, 3)
	var out bytes.Buffer

	err := submit.New(run, &out).Submit(context.Background(), workflow.NewForward())
	require.NoError(t, err)

	// Precheck echoed the review parameters before anything ran.
	assert.Contains(t, out.String(), "SUBMIT PRECHECK")
	assert.Contains(t, out.String(), "TITLE: toy_inversion")
	assert.Contains(t, out.String(), "WALLTIME: 30")

	// Every task left its own solution and residuals in its scratch dir.
	for id := 0; id < 3; id++ {
		assert.FileExists(t, filepath.Join(run.Tree.TaskScratch(id), "solution.txt"))
		assert.FileExists(t, filepath.Join(run.Tree.TaskScratch(id), "residuals.txt"))
	}

	// Only the lead task exported the model.
	assert.FileExists(t, filepath.Join(run.Tree.Output, "model_m00"))

	// Post-barrier aggregation and the single smoothing pass both landed in
	// the shared output directory.
	assert.FileExists(t, filepath.Join(run.Tree.Output, "residuals_sum.txt"))
	assert.FileExists(t, filepath.Join(run.Tree.Output, "model_m00_smooth"))

	// The audit archive names the experiment's window.
	assert.FileExists(t, filepath.Join(run.Tree.Logs, "parameters_1-1.yaml"))

	// The resolved configuration is resumable by a worker.
	resumed, err := params.Resume(run.Tree.SnapshotPath(), run.Params.Schema())
	require.NoError(t, err)
	assert.Equal(t, 3, resumed.Int("NTASK"))
}

func TestResubmitResumesWithoutClobberingScratch(t *testing.T) {
	run := newRun(t, 2)
	var out bytes.Buffer
	s := submit.New(run, &out)

	require.NoError(t, s.Submit(context.Background(), workflow.NewForward()))

	// Simulate log output from the first run, then resubmit.
	require.NoError(t, os.WriteFile(run.Tree.OutputLog, []byte("first run"), 0o644))
	require.NoError(t, s.Submit(context.Background(), workflow.NewForward()))

	rotated, err := os.ReadFile(filepath.Join(run.Tree.PreviousLogs, "output_log.txt"))
	require.NoError(t, err)
	assert.Equal(t, "first run", string(rotated))

	// Scratch survived the resume; the second run reused it.
	assert.FileExists(t, filepath.Join(run.Tree.TaskScratch(0), "residuals.txt"))
}

func TestSubmitAbortsOnSetupFailure(t *testing.T) {
	run := newRun(t, 1)
	// A file in scratch's place makes tree setup fail before any dispatch.
	require.NoError(t, os.WriteFile(run.Tree.Scratch, []byte("in the way"), 0o644))

	var out bytes.Buffer
	err := submit.New(run, &out).Submit(context.Background(), workflow.NewForward())
	var setupErr *workdir.SetupError
	require.ErrorAs(t, err, &setupErr)

	// Nothing was dispatched.
	assert.NoFileExists(t, filepath.Join(run.Tree.Output, "model_m00"))
}

func TestPrecheckMarksUnsetParameters(t *testing.T) {
	root := t.TempDir()
	schema := params.NewSchema()
	dispatch.DeclareParams(schema, root)
	store := params.NewStore(schema, map[string]cty.Value{
		"SYSTEM":   cty.StringVal("serial"),
		"WALLTIME": cty.NumberIntVal(30),
		"TASKTIME": cty.NumberFloatVal(5),
		"NTASK":    cty.NumberIntVal(1),
		"PRECHECK": cty.ListVal([]cty.Value{cty.StringVal("TITLE"), cty.StringVal("LOCAL")}),
	})
	require.NoError(t, store.Validate())

	tree := workdir.New(root)
	run := &runctx.Run{Params: store, Tree: tree, Registry: registry.New()}
	run.Dispatcher = serialdispatch.New(store, tree, run.Registry)

	var out bytes.Buffer
	err := submit.New(run, &out).Submit(context.Background(), driverFunc(func(ctx context.Context, r *runctx.Run) error {
		return nil
	}))
	require.NoError(t, err)
	assert.Contains(t, out.String(), "LOCAL: (unset)")
}

// driverFunc adapts a function to the Driver interface.
type driverFunc func(ctx context.Context, run *runctx.Run) error

func (f driverFunc) Main(ctx context.Context, run *runctx.Run) error { return f(ctx, run) }
