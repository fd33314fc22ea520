// Package workdir manages the on-disk working tree that persists run state
// across resumes: scratch space, system state, outputs, and logs. Setup is
// idempotent aside from log rotation, so resubmitting an existing run never
// destroys scratch contents.
package workdir

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vk/wavegrid/internal/ctxlog"
	"github.com/vk/wavegrid/internal/params"
)

// SetupError reports a filesystem failure while preparing the working tree.
// It is fatal: submission aborts before any worker is spawned, so a broken
// tree can never silently drop data on a later resume.
type SetupError struct {
	Op   string
	Path string
	Err  error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("working tree %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

// Tree describes the working-tree layout rooted at a run's workdir.
type Tree struct {
	Root         string
	Scratch      string
	SystemDir    string
	Output       string
	Logs         string
	PreviousLogs string
	OutputLog    string
	ErrorLog     string
}

// New computes the tree layout for a workdir root. No directories are
// created until Setup runs.
func New(root string) *Tree {
	scratch := filepath.Join(root, "scratch")
	logs := filepath.Join(root, "logs")
	return &Tree{
		Root:         root,
		Scratch:      scratch,
		SystemDir:    filepath.Join(scratch, "system"),
		Output:       filepath.Join(root, "output"),
		Logs:         logs,
		PreviousLogs: filepath.Join(logs, "previous"),
		OutputLog:    filepath.Join(root, "output_log.txt"),
		ErrorLog:     filepath.Join(root, "error_log.txt"),
	}
}

// FromParams computes the tree from the resolved configuration: the root
// comes from WORKDIR, and the SCRATCH, OUTPUT and LOG paths replace their
// default locations when declared. The system state directory stays anchored
// at <WORKDIR>/scratch/system regardless of a SCRATCH override: it is the
// rendezvous between the submitter and its workers, and a worker must be
// able to find the snapshot there before it has any configuration at all.
func FromParams(store *params.Store) *Tree {
	t := New(store.Str("WORKDIR"))
	if store.Has("SCRATCH") {
		t.Scratch = store.Str("SCRATCH")
	}
	if store.Has("OUTPUT") {
		t.Output = store.Str("OUTPUT")
	}
	if store.Has("LOG") {
		t.Logs = store.Str("LOG")
		t.PreviousLogs = filepath.Join(t.Logs, "previous")
	}
	return t
}

// TaskScratch returns the scratch directory owned exclusively by the worker
// with the given task identity. No other worker may touch it.
func (t *Tree) TaskScratch(taskID int) string {
	return filepath.Join(t.Scratch, fmt.Sprintf("task_%06d", taskID))
}

// TaskLog returns the per-task worker log path for a task identity.
func (t *Tree) TaskLog(taskID int) string {
	return filepath.Join(t.Logs, fmt.Sprintf("task_%06d.log", taskID))
}

// SnapshotPath returns the location of the machine-readable configuration
// snapshot workers resume from.
func (t *Tree) SnapshotPath() string {
	return filepath.Join(t.SystemDir, "parameters.json")
}

// Setup creates the working tree if absent and rotates any log files left by
// a previous run into logs/previous, preserving their names. Scratch
// contents are never touched, so Setup is safe to call on every resume.
// It returns the output and error log paths for this run.
func (t *Tree) Setup(ctx context.Context) (string, string, error) {
	logger := ctxlog.FromContext(ctx)

	for _, dir := range []string{t.Scratch, t.SystemDir, t.Output, t.Logs, t.PreviousLogs} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", "", &SetupError{Op: "mkdir", Path: dir, Err: err}
		}
	}
	logger.Debug("Working tree directories ready.", "root", t.Root)

	// A resumed run must never append to or overwrite the previous run's
	// logs, so anything matching the log names moves out of the way first.
	for _, pattern := range []string{"output_log*", "error_log*"} {
		matches, err := filepath.Glob(filepath.Join(t.Root, pattern))
		if err != nil {
			return "", "", &SetupError{Op: "glob", Path: pattern, Err: err}
		}
		for _, src := range matches {
			dst := filepath.Join(t.PreviousLogs, filepath.Base(src))
			if err := rotate(src, dst); err != nil {
				return "", "", &SetupError{Op: "rotate", Path: src, Err: err}
			}
			logger.Debug("Rotated log file from previous run.", "src", src, "dst", dst)
		}
	}

	// Fresh, empty log files for this run; the previous run's are already
	// out of the way.
	for _, path := range []string{t.OutputLog, t.ErrorLog} {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return "", "", &SetupError{Op: "create", Path: path, Err: err}
		}
		f.Close()
	}

	return t.OutputLog, t.ErrorLog, nil
}

// rotate moves src to dst without clobbering an earlier rotation of the same
// name: an existing dst gets a numeric suffix instead.
func rotate(src, dst string) error {
	final := dst
	for n := 1; ; n++ {
		if _, err := os.Lstat(final); os.IsNotExist(err) {
			break
		}
		final = fmt.Sprintf("%s.%d", dst, n)
	}
	return os.Rename(src, final)
}
