// Package worker implements the task-mode bootstrap: the sequence a freshly
// started worker process follows to rebuild its world. It resumes the
// configuration snapshot, reads the checkpointed call, resolves its own task
// identity, and invokes the registered handler. Every failure names the
// component, method, and task identity so the backend can attribute it.
package worker

import (
	"context"
	"fmt"
	"os"

	"github.com/vk/wavegrid/internal/checkpoint"
	"github.com/vk/wavegrid/internal/ctxlog"
	"github.com/vk/wavegrid/internal/ctxtask"
	"github.com/vk/wavegrid/internal/registry"
	"github.com/vk/wavegrid/internal/runctx"
)

// Run executes one checkpointed method inside a worker process. The run
// context carries the resumed store, the tree, the registry, and the
// dispatcher whose TaskID method knows how this backend assigns identities.
func Run(ctx context.Context, run *runctx.Run, component, method string) error {
	logger := ctxlog.FromContext(ctx)

	call, err := checkpoint.Read(run.Tree.SystemDir, component, method)
	if err != nil {
		// No checkpoint means no work to do; the CLI maps this to a
		// distinguishable exit status.
		return err
	}

	id, err := run.Dispatcher.TaskID()
	if err != nil {
		return fmt.Errorf("%s.%s: could not resolve task identity: %w", component, method, err)
	}
	ctx = ctxtask.WithTaskID(ctx, id)
	logger = logger.With("component", component, "method", method, "taskid", id)
	ctx = ctxlog.WithLogger(ctx, logger)

	handler, err := run.Registry.Resolve(component, method)
	if err != nil {
		return fmt.Errorf("task %d: %w", id, err)
	}

	input := handler.NewInput()
	if err := registry.DecodeKwargs(call, input); err != nil {
		return fmt.Errorf("task %d: %w", id, err)
	}

	if err := os.MkdirAll(run.Tree.TaskScratch(id), 0o755); err != nil {
		return fmt.Errorf("task %d: failed to create task scratch: %w", id, err)
	}

	env := &registry.Env{Params: run.Params, Tree: run.Tree, TaskID: id}
	logger.Debug("Worker invoking target method.")
	if err := handler.Fn(ctx, env, input); err != nil {
		return fmt.Errorf("task %d: %s.%s: %w", id, component, method, err)
	}
	logger.Debug("Worker finished target method.")
	return nil
}
