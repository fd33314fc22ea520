// Package dispatch defines the task-dispatch contract: run a checkpointed
// method across N workers with barrier semantics, run it once, and let a
// worker learn its own identity. Concrete backends (serial, OS processes, a
// cluster scheduler) implement Dispatcher and are selected at startup by the
// SYSTEM parameter.
package dispatch

import (
	"context"
	"time"

	"github.com/vk/wavegrid/internal/checkpoint"
	"github.com/vk/wavegrid/internal/ctxlog"
	"github.com/vk/wavegrid/internal/params"
	"github.com/vk/wavegrid/internal/workdir"
)

// Dispatcher is the contract between the workflow driver and a compute
// system backend.
type Dispatcher interface {
	// Run writes the call's checkpoint, spawns exactly NTASK workers, and
	// returns only after every worker has terminated. Any failed task makes
	// Run return a *CohortError naming the failed identities; a partial
	// cohort is never reported as success.
	Run(ctx context.Context, call *checkpoint.Call) error

	// RunSingle behaves like Run but spawns exactly one worker with task
	// identity 0, regardless of NTASK. Used for operations with no natural
	// per-source parallelism.
	RunSingle(ctx context.Context, call *checkpoint.Call) error

	// TaskID returns the calling process's own task identity. It is only
	// meaningful inside a running worker and stays stable for the worker's
	// whole lifetime.
	TaskID() (int, error)
}

// Prepare performs the backend-independent pre-spawn step: the checkpoint
// write followed by the configuration snapshot save. Both complete before
// this returns, so no worker can ever observe a partially written state;
// the ordering, not retries, is what makes worker reads safe.
func Prepare(ctx context.Context, store *params.Store, tree *workdir.Tree, call *checkpoint.Call) error {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Checkpointing deferred call.", "component", call.Component, "method", call.Method)

	if err := checkpoint.Write(tree.SystemDir, call); err != nil {
		return err
	}
	return store.Save(tree.SnapshotPath())
}

// TaskTimeout returns the per-task wall-clock budget from the TASKTIME
// parameter (minutes). A worker exceeding it is a failed task.
func TaskTimeout(store *params.Store) time.Duration {
	return time.Duration(store.Float("TASKTIME") * float64(time.Minute))
}
