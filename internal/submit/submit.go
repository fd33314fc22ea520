// Package submit implements the top-level entry point onto the compute
// system. Submit performs first-time setup of the working tree, archives the
// resolved configuration for audit, and hands control to the workflow
// driver. It performs no task dispatch itself, and calling it on an
// already-initialized tree is how a run resumes, not an error.
package submit

import (
	"context"
	"fmt"
	"io"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/wavegrid/internal/ctxlog"
	"github.com/vk/wavegrid/internal/runctx"
)

// Driver is the external workflow driver the submitter hands control to.
// It issues the actual Run/RunSingle calls against the dispatcher.
type Driver interface {
	Main(ctx context.Context, run *runctx.Run) error
}

// Submitter owns the submission sequence for one run.
type Submitter struct {
	run  *runctx.Run
	outW io.Writer
}

// New creates a submitter for the given run context.
func New(run *runctx.Run, outW io.Writer) *Submitter {
	return &Submitter{run: run, outW: outW}
}

// Submit prepares the working tree and hands control to the driver. Any
// filesystem failure during setup aborts before a single worker is spawned.
func (s *Submitter) Submit(ctx context.Context, driver Driver) error {
	logger := ctxlog.FromContext(ctx)

	s.precheck()

	outputLog, errorLog, err := s.run.Tree.Setup(ctx)
	if err != nil {
		return err
	}
	logger.Info("Working tree ready.", "output_log", outputLog, "error_log", errorLog)

	// Snapshot on every setup, so a resumed worker always finds the
	// configuration that matches this submission.
	if err := s.run.Params.Save(s.run.Tree.SnapshotPath()); err != nil {
		return err
	}

	begin, end := s.run.Params.Int("BEGIN"), s.run.Params.Int("END")
	archive, err := s.run.Tree.ArchiveParams(s.run.Params, begin, end)
	if err != nil {
		return err
	}
	logger.Debug("Archived resolved configuration.", "path", archive)

	logger.Info("Handing control to workflow driver.", "begin", begin, "end", end)
	return driver.Main(ctx, s.run)
}

// precheck echoes the review parameters named by PRECHECK before anything
// is submitted, so an operator can catch a bad value while it is still
// cheap to do so.
func (s *Submitter) precheck() {
	names := s.run.Params.Strings("PRECHECK")
	if len(names) == 0 {
		return
	}
	fmt.Fprintln(s.outW, "SUBMIT PRECHECK")
	for _, name := range names {
		if !s.run.Params.Has(name) {
			fmt.Fprintf(s.outW, "  %s: (unset)\n", name)
			continue
		}
		fmt.Fprintf(s.outW, "  %s: %s\n", name, renderValue(s.run.Params.Value(name)))
	}
}

// renderValue formats a cty value for the precheck listing.
func renderValue(v cty.Value) string {
	switch {
	case v.IsNull():
		return "null"
	case v.Type() == cty.String:
		return v.AsString()
	case v.Type() == cty.Bool:
		return fmt.Sprintf("%t", v.True())
	case v.Type() == cty.Number:
		return v.AsBigFloat().Text('g', -1)
	default:
		return v.GoString()
	}
}
