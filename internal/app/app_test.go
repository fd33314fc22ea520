package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/wavegrid/internal/procdispatch"
	"github.com/vk/wavegrid/internal/serialdispatch"
)

func writeParFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "parameters.hcl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validPar = `
TITLE    = "toy"
SYSTEM   = "serial"
WALLTIME = 30
TASKTIME = 5
NTASK    = 2
`

func TestNewConfig(t *testing.T) {
	t.Run("submit requires a parameters file", func(t *testing.T) {
		_, err := NewConfig(Config{Command: "submit"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "-par")
	})

	t.Run("task requires identity flags", func(t *testing.T) {
		_, err := NewConfig(Config{Command: "task", Workdir: "/work"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "-component")
	})

	t.Run("unknown command", func(t *testing.T) {
		_, err := NewConfig(Config{Command: "status"})
		assert.Error(t, err)
	})

	t.Run("valid submit", func(t *testing.T) {
		cfg, err := NewConfig(Config{Command: "submit", ParFile: "p.hcl"})
		require.NoError(t, err)
		assert.Equal(t, "p.hcl", cfg.ParFile)
	})
}

func TestNewAppAssemblesRunContext(t *testing.T) {
	root := t.TempDir()
	par := writeParFile(t, root, validPar)

	a := NewApp(io.Discard, &Config{Command: "submit", ParFile: par, Workdir: root})
	run := a.Run()

	assert.Equal(t, "toy", run.Params.Str("TITLE"))
	assert.Equal(t, 2, run.Params.Int("NTASK"))
	assert.Equal(t, root, run.Tree.Root)
	assert.IsType(t, &serialdispatch.Dispatcher{}, run.Dispatcher)

	// The core components are registered.
	_, err := run.Registry.Resolve("solver", "forward")
	assert.NoError(t, err)
}

func TestNewAppSelectsProcessBackend(t *testing.T) {
	root := t.TempDir()
	par := writeParFile(t, root, `
SYSTEM   = "process"
WALLTIME = 30
TASKTIME = 5
NTASK    = 2
`)

	a := NewApp(io.Discard, &Config{Command: "submit", ParFile: par, Workdir: root})
	assert.IsType(t, &procdispatch.Dispatcher{}, a.Run().Dispatcher)
}

func TestNewAppPanicsOnStartupErrors(t *testing.T) {
	root := t.TempDir()

	t.Run("missing parameters file", func(t *testing.T) {
		assert.Panics(t, func() {
			NewApp(io.Discard, &Config{Command: "submit", ParFile: filepath.Join(root, "absent.hcl"), Workdir: root})
		})
	})

	t.Run("missing required entry", func(t *testing.T) {
		par := writeParFile(t, root, `SYSTEM = "serial"`)
		assert.Panics(t, func() {
			NewApp(io.Discard, &Config{Command: "submit", ParFile: par, Workdir: root})
		})
	})

	t.Run("unknown backend", func(t *testing.T) {
		par := writeParFile(t, root, `
SYSTEM   = "slurm-on-mars"
WALLTIME = 30
TASKTIME = 5
NTASK    = 2
`)
		assert.Panics(t, func() {
			NewApp(io.Discard, &Config{Command: "submit", ParFile: par, Workdir: root})
		})
	})

	t.Run("component check failure", func(t *testing.T) {
		par := writeParFile(t, root, validPar+"\nFILTER = \"notch\"\n")
		assert.Panics(t, func() {
			NewApp(io.Discard, &Config{Command: "submit", ParFile: par, Workdir: root})
		})
	})
}

func TestLoggingFollowsParameters(t *testing.T) {
	t.Run("LOG_LEVEL overrides the flag", func(t *testing.T) {
		root := t.TempDir()
		par := writeParFile(t, root, validPar+"\nLOG_LEVEL = \"debug\"\n")

		var out bytes.Buffer
		NewApp(&out, &Config{Command: "submit", ParFile: par, Workdir: root, LogLevel: "info"})

		assert.Contains(t, out.String(), "Run context assembled.", "debug records are emitted despite -log-level info")
	})

	t.Run("VERBOSE attaches source locations", func(t *testing.T) {
		root := t.TempDir()
		par := writeParFile(t, root, validPar+"\nLOG_LEVEL = \"debug\"\nVERBOSE = true\n")

		var out bytes.Buffer
		NewApp(&out, &Config{Command: "submit", ParFile: par, Workdir: root, LogLevel: "info"})

		assert.Contains(t, out.String(), "source=")
	})
}

func TestPathOverridesReachTheTree(t *testing.T) {
	root := t.TempDir()
	scratch := filepath.Join(root, "fast_scratch")
	par := writeParFile(t, root, validPar+fmt.Sprintf("\nSCRATCH = %q\n", scratch))

	a := NewApp(io.Discard, &Config{Command: "submit", ParFile: par, Workdir: root})
	assert.Equal(t, scratch, a.Run().Tree.Scratch)
	assert.Equal(t, filepath.Join(root, "scratch", "system"), a.Run().Tree.SystemDir)
}

func TestNewWorkerAppResumesSnapshot(t *testing.T) {
	root := t.TempDir()
	par := writeParFile(t, root, validPar)

	// A submission writes the snapshot the worker resumes from.
	a := NewApp(io.Discard, &Config{Command: "submit", ParFile: par, Workdir: root})
	_, _, err := a.Run().Tree.Setup(context.Background())
	require.NoError(t, err)
	require.NoError(t, a.Run().Params.Save(a.Run().Tree.SnapshotPath()))

	w, err := NewWorkerApp(io.Discard, &Config{Command: "task", Workdir: root, Component: "solver", Method: "forward"})
	require.NoError(t, err)
	assert.Equal(t, "toy", w.Run().Params.Str("TITLE"))
	assert.Equal(t, 2, w.Run().Params.Int("NTASK"))
}

func TestNewWorkerAppErrorsWithoutSnapshot(t *testing.T) {
	root := t.TempDir()
	_, err := NewWorkerApp(io.Discard, &Config{Command: "task", Workdir: root, Component: "solver", Method: "forward"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resume")
}
