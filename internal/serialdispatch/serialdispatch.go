// Package serialdispatch is the in-process dispatch backend. Tasks run one
// at a time inside the submitting process, with identities taken from a
// plain counter. It exists for single-machine runs and for tests; the
// contract it satisfies is identical to the process backend's.
package serialdispatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/vk/wavegrid/internal/checkpoint"
	"github.com/vk/wavegrid/internal/ctxlog"
	"github.com/vk/wavegrid/internal/ctxtask"
	"github.com/vk/wavegrid/internal/dispatch"
	"github.com/vk/wavegrid/internal/params"
	"github.com/vk/wavegrid/internal/registry"
	"github.com/vk/wavegrid/internal/workdir"
)

// Dispatcher runs cohorts sequentially in-process.
type Dispatcher struct {
	store   *params.Store
	tree    *workdir.Tree
	reg     *registry.Registry
	current atomic.Int64
}

// New creates a serial dispatcher over the given run state.
func New(store *params.Store, tree *workdir.Tree, reg *registry.Registry) *Dispatcher {
	d := &Dispatcher{store: store, tree: tree, reg: reg}
	d.current.Store(-1)
	return d
}

// Run executes the call once per task for NTASK tasks and returns after the
// whole cohort has finished, reporting every failed identity.
func (d *Dispatcher) Run(ctx context.Context, call *checkpoint.Call) error {
	return d.cohort(ctx, call, d.store.Int("NTASK"))
}

// RunSingle executes the call exactly once, as task identity 0.
func (d *Dispatcher) RunSingle(ctx context.Context, call *checkpoint.Call) error {
	return d.cohort(ctx, call, 1)
}

// TaskID returns the identity of the task currently executing.
func (d *Dispatcher) TaskID() (int, error) {
	id := d.current.Load()
	if id < 0 {
		return 0, errors.New("serialdispatch: no task is running")
	}
	return int(id), nil
}

func (d *Dispatcher) cohort(ctx context.Context, call *checkpoint.Call, n int) error {
	logger := ctxlog.FromContext(ctx)

	if err := dispatch.Prepare(ctx, d.store, d.tree, call); err != nil {
		return err
	}

	// Tasks consume the checkpoint rather than the in-memory call, so this
	// backend exercises the same recovery path a restarted cluster worker
	// takes.
	saved, err := checkpoint.Read(d.tree.SystemDir, call.Component, call.Method)
	if err != nil {
		return err
	}
	handler, err := d.reg.Resolve(call.Component, call.Method)
	if err != nil {
		return err
	}

	timeout := dispatch.TaskTimeout(d.store)
	statuses := make([]dispatch.TaskStatus, n)
	for i := 0; i < n; i++ {
		statuses[i] = dispatch.TaskStatus{TaskID: i}
		d.current.Store(int64(i))
		err := d.runTask(ctx, handler, saved, i, timeout)
		d.current.Store(-1)
		if err != nil {
			logger.Error("Task failed.", "component", call.Component, "method", call.Method, "taskid", i, "error", err)
			statuses[i].Err = err
			statuses[i].ExitCode = 1
		}
	}

	return dispatch.Cohort(call.Component, call.Method, statuses)
}

func (d *Dispatcher) runTask(ctx context.Context, handler *registry.Handler, call *checkpoint.Call, id int, timeout time.Duration) error {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	tctx = ctxtask.WithTaskID(tctx, id)

	if err := os.MkdirAll(d.tree.TaskScratch(id), 0o755); err != nil {
		return fmt.Errorf("failed to create task scratch: %w", err)
	}

	input := handler.NewInput()
	if err := registry.DecodeKwargs(call, input); err != nil {
		return err
	}
	env := &registry.Env{Params: d.store, Tree: d.tree, TaskID: id}

	done := make(chan error, 1)
	go func() { done <- handler.Fn(tctx, env, input) }()

	select {
	case err := <-done:
		return err
	case <-tctx.Done():
		return fmt.Errorf("task %d exceeded its %s budget: %w", id, timeout, tctx.Err())
	}
}
