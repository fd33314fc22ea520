package serialdispatch

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/wavegrid/internal/checkpoint"
	"github.com/vk/wavegrid/internal/dispatch"
	"github.com/vk/wavegrid/internal/params"
	"github.com/vk/wavegrid/internal/registry"
	"github.com/vk/wavegrid/internal/testutil"
	"github.com/vk/wavegrid/internal/workdir"
)

// harness builds a validated run over a temp working tree with the recorder
// component registered.
func harness(t *testing.T, ntask int, tasktime float64) (*Dispatcher, *testutil.Recorder, *workdir.Tree) {
	t.Helper()

	root := t.TempDir()
	schema := params.NewSchema()
	dispatch.DeclareParams(schema, root)
	store := params.NewStore(schema, map[string]cty.Value{
		"SYSTEM":   cty.StringVal("serial"),
		"WALLTIME": cty.NumberIntVal(30),
		"TASKTIME": cty.NumberFloatVal(tasktime),
		"NTASK":    cty.NumberIntVal(int64(ntask)),
	})
	require.NoError(t, store.Validate())

	tree := workdir.New(root)
	_, _, err := tree.Setup(context.Background())
	require.NoError(t, err)

	rec := &testutil.Recorder{}
	reg := registry.New()
	rec.Register(reg)

	return New(store, tree, reg), rec, tree
}

func touchCall(label string) *checkpoint.Call {
	return &checkpoint.Call{
		Component: "recorder",
		Method:    "touch",
		Kwargs:    map[string]cty.Value{"label": cty.StringVal(label)},
	}
}

func TestRunAssignsContiguousIdentities(t *testing.T) {
	d, rec, tree := harness(t, 5, 1)

	require.NoError(t, d.Run(context.Background(), touchCall("fwd")))

	invocations := rec.Invocations()
	require.Len(t, invocations, 5)

	seen := make(map[int]bool)
	for _, inv := range invocations {
		assert.Equal(t, "fwd", inv.Label)
		assert.False(t, seen[inv.TaskID], "identity %d repeated", inv.TaskID)
		seen[inv.TaskID] = true
	}
	for id := 0; id < 5; id++ {
		assert.True(t, seen[id], "identity %d skipped", id)
		assert.FileExists(t, filepath.Join(tree.TaskScratch(id), "touched.txt"))
	}
}

func TestRunSingleIsAlwaysLead(t *testing.T) {
	d, rec, _ := harness(t, 7, 1)

	require.NoError(t, d.RunSingle(context.Background(), touchCall("once")))

	invocations := rec.Invocations()
	require.Len(t, invocations, 1, "RunSingle ignores NTASK")
	assert.Equal(t, 0, invocations[0].TaskID)
}

func TestRunReportsFailedIdentities(t *testing.T) {
	d, rec, _ := harness(t, 4, 1)
	rec.FailTaskIDs = map[int]bool{1: true, 3: true}

	err := d.Run(context.Background(), touchCall("fwd"))
	var cohortErr *dispatch.CohortError
	require.ErrorAs(t, err, &cohortErr)
	assert.Equal(t, []int{1, 3}, cohortErr.FailedIDs())
	assert.Equal(t, 4, cohortErr.Total)

	// The barrier still ran every task; a failure never short-circuits the
	// rest of the cohort.
	assert.Len(t, rec.Invocations(), 4)
}

func TestRunWritesCheckpointBeforeExecuting(t *testing.T) {
	d, _, tree := harness(t, 2, 1)

	require.NoError(t, d.Run(context.Background(), touchCall("fwd")))

	saved, err := checkpoint.Read(tree.SystemDir, "recorder", "touch")
	require.NoError(t, err)
	assert.True(t, cty.StringVal("fwd").RawEquals(saved.Kwargs["label"]))
	assert.FileExists(t, tree.SnapshotPath())
}

func TestTaskExceedingBudgetFails(t *testing.T) {
	// 0.001 minutes = 60ms of budget for a handler that never returns on
	// its own.
	d, _, _ := harness(t, 1, 0.001)

	err := d.Run(context.Background(), &checkpoint.Call{Component: "recorder", Method: "hang"})
	var cohortErr *dispatch.CohortError
	require.ErrorAs(t, err, &cohortErr)
	assert.Equal(t, []int{0}, cohortErr.FailedIDs())
	assert.ErrorIs(t, cohortErr.Failed[0].Err, context.DeadlineExceeded)
}

func TestTaskIDOutsideRunErrors(t *testing.T) {
	d, _, _ := harness(t, 1, 1)
	_, err := d.TaskID()
	assert.Error(t, err)
}

func TestUnknownTargetFailsBeforeSpawning(t *testing.T) {
	d, rec, _ := harness(t, 3, 1)

	err := d.Run(context.Background(), &checkpoint.Call{Component: "recorder", Method: "absent"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recorder.absent")
	assert.Empty(t, rec.Invocations())
}

func TestTaskScratchIsExclusive(t *testing.T) {
	d, _, tree := harness(t, 3, 1)

	require.NoError(t, d.Run(context.Background(), touchCall("fwd")))

	for id := 0; id < 3; id++ {
		entries, err := os.ReadDir(tree.TaskScratch(id))
		require.NoError(t, err)
		require.Len(t, entries, 1, "task %d owns exactly its own marker", id)
	}
}
