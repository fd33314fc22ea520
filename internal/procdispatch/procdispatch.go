// Package procdispatch is the OS-process dispatch backend. Each task runs
// as an independent process: the program re-executes its own binary in task
// mode, and the worker reconstructs its state from the configuration
// snapshot and the checkpoint rather than from process arguments. The task
// identity crosses the exec boundary through an environment variable, the
// same mechanism a cluster backend would use with its scheduler's task-id
// variable.
package procdispatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vk/wavegrid/internal/checkpoint"
	"github.com/vk/wavegrid/internal/ctxlog"
	"github.com/vk/wavegrid/internal/dispatch"
	"github.com/vk/wavegrid/internal/params"
	"github.com/vk/wavegrid/internal/workdir"
)

// Environment variables carrying a worker's identity across exec.
const (
	EnvTaskID = "WAVEGRID_TASK_ID"
	EnvNTask  = "WAVEGRID_NTASK"
)

// Dispatcher spawns worker processes for each cohort.
type Dispatcher struct {
	store *params.Store
	tree  *workdir.Tree
}

// New creates a process dispatcher over the given run state.
func New(store *params.Store, tree *workdir.Tree) *Dispatcher {
	return &Dispatcher{store: store, tree: tree}
}

// Run spawns exactly NTASK worker processes and blocks until all of them
// have terminated, reporting every failed identity and exit status.
func (d *Dispatcher) Run(ctx context.Context, call *checkpoint.Call) error {
	return d.cohort(ctx, call, d.store.Int("NTASK"))
}

// RunSingle spawns exactly one worker process with task identity 0.
func (d *Dispatcher) RunSingle(ctx context.Context, call *checkpoint.Call) error {
	return d.cohort(ctx, call, 1)
}

// TaskID derives the calling process's identity from the environment set by
// the parent at spawn time. It is stable for the worker's whole lifetime.
func (d *Dispatcher) TaskID() (int, error) {
	raw, ok := os.LookupEnv(EnvTaskID)
	if !ok {
		return 0, fmt.Errorf("procdispatch: %s is not set; not inside a worker process", EnvTaskID)
	}
	id, err := strconv.Atoi(raw)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("procdispatch: invalid %s value %q", EnvTaskID, raw)
	}
	return id, nil
}

func (d *Dispatcher) cohort(ctx context.Context, call *checkpoint.Call, n int) error {
	logger := ctxlog.FromContext(ctx)

	// The checkpoint and snapshot must be fully on disk before the first
	// worker starts; Prepare guarantees that ordering.
	if err := dispatch.Prepare(ctx, d.store, d.tree, call); err != nil {
		return err
	}

	bin, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to locate own binary: %w", err)
	}

	timeout := dispatch.TaskTimeout(d.store)
	statuses := make([]dispatch.TaskStatus, n)

	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		statuses[i] = dispatch.TaskStatus{TaskID: i}
		g.Go(func() error {
			statuses[i] = d.spawn(ctx, bin, call, i, n, timeout)
			return nil
		})
	}
	// The group never returns an error; it is purely the join point for the
	// cohort. Failure reporting happens per task through the statuses.
	_ = g.Wait()

	err = dispatch.Cohort(call.Component, call.Method, statuses)
	if err != nil {
		logger.Error("Cohort did not fully succeed.", "error", err)
	}
	return err
}

// spawn runs one worker process to completion and records its outcome.
func (d *Dispatcher) spawn(ctx context.Context, bin string, call *checkpoint.Call, id, n int, timeout time.Duration) dispatch.TaskStatus {
	st := dispatch.TaskStatus{TaskID: id}

	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logFile, err := os.Create(d.tree.TaskLog(id))
	if err != nil {
		st.Err = fmt.Errorf("failed to create task log: %w", err)
		st.ExitCode = -1
		return st
	}
	defer logFile.Close()

	cmd := exec.CommandContext(tctx, bin,
		"task",
		"-workdir", d.tree.Root,
		"-component", call.Component,
		"-method", call.Method,
	)
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("%s=%d", EnvTaskID, id),
		fmt.Sprintf("%s=%d", EnvNTask, n),
	)
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	err = cmd.Run()
	if err == nil {
		return st
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		st.ExitCode = exitErr.ExitCode()
	} else {
		st.ExitCode = -1
	}
	if tctx.Err() != nil {
		st.Err = fmt.Errorf("task %d exceeded its %s budget: %w", id, timeout, tctx.Err())
	} else {
		st.Err = fmt.Errorf("task %d (%s.%s) exited abnormally: %w", id, call.Component, call.Method, err)
	}
	return st
}
