// Package solver is the component that drives the external simulation
// binary. The binary itself is opaque to the core: each task launches it as
// a subprocess inside its own scratch directory and the core never
// interprets its outputs beyond collecting the files downstream stages
// consume. When no binary is configured the handlers record their invocation
// instead, so the dispatch pipeline stays exercisable without a solver
// installed.
package solver

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/wavegrid/internal/ctxlog"
	"github.com/vk/wavegrid/internal/params"
	"github.com/vk/wavegrid/internal/registry"
)

// Module registers the solver's dispatchable methods.
type Module struct{}

// Declare registers the solver's parameters and paths.
func (m *Module) Declare(s *params.Schema) {
	s.Path(params.Decl{
		Name: "SPECFEM_BIN",
		Doc:  "Path to the external solver binary. When unset, forward runs record a placeholder solution instead of launching a subprocess.",
	})
	s.Par(params.Decl{
		Name: "MODEL_INIT", Type: cty.String, Default: cty.StringVal("m00"),
		Doc: "Name of the starting model exported by the lead task.",
	})
}

// Register wires the solver's methods into the handler registry.
func (m *Module) Register(r *registry.Registry) {
	r.Register("solver", "forward", &registry.Handler{
		NewInput: func() any { return new(ForwardInput) },
		Fn:       m.onForward,
	})
	r.Register("solver", "smooth", &registry.Handler{
		NewInput: func() any { return new(SmoothInput) },
		Fn:       m.onSmooth,
	})
}

// ForwardInput is the keyword-argument struct for solver.forward.
type ForwardInput struct {
	Model      string `wg:"model"`
	SaveTraces bool   `wg:"save_traces"`
}

// SmoothInput is the keyword-argument struct for solver.smooth.
type SmoothInput struct {
	Model string  `wg:"model"`
	Span  float64 `wg:"span"`
}

// onForward runs one forward simulation in the task's scratch directory and
// leaves a residuals file for the preprocessor to consume after the run
// barrier. The lead task additionally exports the model to the shared
// output directory; no other task may write there.
func (m *Module) onForward(ctx context.Context, env *registry.Env, input any) error {
	in := input.(*ForwardInput)
	logger := ctxlog.FromContext(ctx)
	dir := env.Tree.TaskScratch(env.TaskID)

	if env.Params.Has("SPECFEM_BIN") {
		bin := env.Params.Str("SPECFEM_BIN")
		logger.Debug("Launching solver binary.", "bin", bin, "model", in.Model)
		if err := m.runBinary(ctx, bin, dir, in); err != nil {
			return err
		}
	} else {
		if err := m.writePlaceholder(dir, in); err != nil {
			return err
		}
	}

	residuals := filepath.Join(dir, "residuals.txt")
	content := fmt.Sprintf("%d 0.0\n", env.TaskID)
	if err := os.WriteFile(residuals, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write residuals: %w", err)
	}

	if env.Lead() {
		exported := filepath.Join(env.Tree.Output, fmt.Sprintf("model_%s", in.Model))
		if err := os.WriteFile(exported, []byte(in.Model+"\n"), 0o644); err != nil {
			return fmt.Errorf("lead task failed to export model: %w", err)
		}
		logger.Info("Lead task exported model.", "path", exported)
	}
	return nil
}

// onSmooth smooths a merged model. It is dispatched through RunSingle, so
// it always runs as the lead task and writes directly to output.
func (m *Module) onSmooth(ctx context.Context, env *registry.Env, input any) error {
	in := input.(*SmoothInput)
	logger := ctxlog.FromContext(ctx)

	if env.Params.Has("SPECFEM_BIN") {
		bin := env.Params.Str("SPECFEM_BIN")
		cmd := exec.CommandContext(ctx, bin, "--smooth", fmt.Sprintf("%g", in.Span), in.Model)
		cmd.Dir = env.Tree.TaskScratch(env.TaskID)
		if out, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("solver smooth failed: %w: %s", err, out)
		}
	}

	smoothed := filepath.Join(env.Tree.Output, fmt.Sprintf("model_%s_smooth", in.Model))
	content := fmt.Sprintf("model=%s span=%g\n", in.Model, in.Span)
	if err := os.WriteFile(smoothed, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write smoothed model: %w", err)
	}
	logger.Info("Smoothed model written.", "path", smoothed)
	return nil
}

func (m *Module) runBinary(ctx context.Context, bin, dir string, in *ForwardInput) error {
	logPath := filepath.Join(dir, "solver.log")
	logFile, err := os.Create(logPath)
	if err != nil {
		return fmt.Errorf("failed to create solver log: %w", err)
	}
	defer logFile.Close()

	args := []string{"--forward", in.Model}
	if in.SaveTraces {
		args = append(args, "--save-traces")
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = dir
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("solver binary failed: %w", err)
	}
	return nil
}

func (m *Module) writePlaceholder(dir string, in *ForwardInput) error {
	path := filepath.Join(dir, "solution.txt")
	content := fmt.Sprintf("model=%s save_traces=%t\n", in.Model, in.SaveTraces)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write placeholder solution: %w", err)
	}
	return nil
}
