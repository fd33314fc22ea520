// Package app wires the run context together: it loads and validates the
// configuration, builds the working tree, the handler registry, and the
// dispatch backend, and exposes the two process roles: submitting a
// workflow and executing a single checkpointed task.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/vk/wavegrid/internal/ctxlog"
	"github.com/vk/wavegrid/internal/dispatch"
	"github.com/vk/wavegrid/internal/params"
	"github.com/vk/wavegrid/internal/procdispatch"
	"github.com/vk/wavegrid/internal/registry"
	"github.com/vk/wavegrid/internal/runctx"
	"github.com/vk/wavegrid/internal/serialdispatch"
	"github.com/vk/wavegrid/internal/submit"
	"github.com/vk/wavegrid/internal/worker"
	"github.com/vk/wavegrid/internal/workdir"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW   io.Writer
	logger *slog.Logger
	run    *runctx.Run
}

// NewApp constructs the submitting application: parameters are loaded from
// the HCL file and validated. A failure to produce a valid configuration is
// a fatal startup error and panics; main recovers it into a clean exit
// before any cost is incurred on the compute system.
func NewApp(outW io.Writer, cfg *Config, modules ...registry.Module) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, false, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	if len(modules) == 0 {
		modules = coreModules
	}

	root := resolveWorkdir(cfg.Workdir)
	schema := buildSchema(root, modules)

	raw, err := params.Load(ctx, cfg.ParFile)
	if err != nil {
		panic(fmt.Errorf("failed to load configuration: %w", err))
	}
	store := params.NewStore(schema, raw)
	if err := store.Validate(); err != nil {
		panic(fmt.Errorf("configuration invalid: %w", err))
	}
	logger.Debug("Configuration validated.")

	for _, mod := range modules {
		if checker, ok := mod.(registry.Checker); ok {
			if err := checker.Check(store); err != nil {
				panic(fmt.Errorf("configuration invalid: %w", err))
			}
		}
	}

	// The parameters file wins over the bootstrap flags for log verbosity,
	// so a run's logging travels with its configuration.
	logger = loggerFromParams(store, cfg, outW)

	tree := workdir.FromParams(store)
	reg := buildRegistry(modules)
	disp := buildDispatcher(store, tree, reg)
	logger.Debug("Run context assembled.", "system", store.Str("SYSTEM"), "workdir", tree.Root)

	return &App{
		outW:   outW,
		logger: logger,
		run: &runctx.Run{
			Params:     store,
			Tree:       tree,
			Registry:   reg,
			Dispatcher: disp,
		},
	}
}

// NewWorkerApp constructs the application for a worker process: parameters
// are resumed from the snapshot instead of re-validated, since the snapshot
// is the already-resolved configuration of the submitting run. Worker
// construction failures return errors, not panics, so the CLI can map them
// to attributable exit statuses.
func NewWorkerApp(outW io.Writer, cfg *Config, modules ...registry.Module) (*App, error) {
	if len(modules) == 0 {
		modules = coreModules
	}

	root := resolveWorkdir(cfg.Workdir)
	schema := buildSchema(root, modules)

	// The snapshot lives at the anchored system path, which is computable
	// from the root alone; the full tree needs the resumed configuration.
	store, err := params.Resume(workdir.New(root).SnapshotPath(), schema)
	if err != nil {
		return nil, fmt.Errorf("failed to resume configuration: %w", err)
	}
	logger := loggerFromParams(store, cfg, outW)
	tree := workdir.FromParams(store)

	reg := buildRegistry(modules)
	disp := buildDispatcher(store, tree, reg)

	return &App{
		outW:   outW,
		logger: logger,
		run: &runctx.Run{
			Params:     store,
			Tree:       tree,
			Registry:   reg,
			Dispatcher: disp,
		},
	}, nil
}

// Submit prepares the working tree and hands control to the workflow driver.
func (a *App) Submit(ctx context.Context, driver submit.Driver) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	return submit.New(a.run, a.outW).Submit(ctx, driver)
}

// RunTask executes one checkpointed method as this process's task.
func (a *App) RunTask(ctx context.Context, component, method string) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	return worker.Run(ctx, a.run, component, method)
}

// Run returns the application's run context. This is primarily for testing.
func (a *App) Run() *runctx.Run {
	return a.run
}

// loggerFromParams rebuilds the logger once the configuration is resolved:
// a declared LOG_LEVEL overrides the -log-level flag, and VERBOSE turns on
// source attribution. The format stays a flag concern; it describes the
// consumer of the stream, not the run.
func loggerFromParams(store *params.Store, cfg *Config, outW io.Writer) *slog.Logger {
	level := cfg.LogLevel
	if store.Has("LOG_LEVEL") {
		level = strings.ToLower(store.Str("LOG_LEVEL"))
	}
	return newLogger(level, cfg.LogFormat, store.Bool("VERBOSE"), outW)
}

func resolveWorkdir(dir string) string {
	if dir != "" {
		return dir
	}
	cwd, err := os.Getwd()
	if err != nil {
		panic(fmt.Errorf("failed to resolve working directory: %w", err))
	}
	return cwd
}

func buildSchema(root string, modules []registry.Module) *params.Schema {
	schema := params.NewSchema()
	dispatch.DeclareParams(schema, root)
	for _, mod := range modules {
		if declarer, ok := mod.(registry.Declarer); ok {
			declarer.Declare(schema)
		}
	}
	return schema
}

func buildRegistry(modules []registry.Module) *registry.Registry {
	reg := registry.New()
	for _, mod := range modules {
		mod.Register(reg)
	}
	return reg
}

// buildDispatcher selects the concrete backend from the SYSTEM parameter.
func buildDispatcher(store *params.Store, tree *workdir.Tree, reg *registry.Registry) dispatch.Dispatcher {
	system := store.Str("SYSTEM")
	switch system {
	case "serial":
		return serialdispatch.New(store, tree, reg)
	case "process":
		return procdispatch.New(store, tree)
	default:
		panic(fmt.Errorf("unknown SYSTEM backend %q (want 'serial' or 'process')", system))
	}
}
