// Package workflow holds the built-in workflow drivers. A driver is what
// the submitter hands control to: it issues the Run/RunSingle calls against
// the dispatcher and performs post-barrier aggregation. External drivers
// implement submit.Driver and replace these.
package workflow

import (
	"context"
	"fmt"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/wavegrid/internal/checkpoint"
	"github.com/vk/wavegrid/internal/ctxlog"
	"github.com/vk/wavegrid/internal/runctx"
	"github.com/vk/wavegrid/modules/preprocess"
)

// Forward is the forward-modelling driver: one simulation per source across
// the cohort, residual aggregation after the barrier, then a single
// smoothing pass over the merged model.
type Forward struct{}

// NewForward creates the forward-modelling driver.
func NewForward() *Forward {
	return &Forward{}
}

// Main runs the workflow against the active dispatcher.
func (w *Forward) Main(ctx context.Context, run *runctx.Run) error {
	logger := ctxlog.FromContext(ctx)
	model := run.Params.Str("MODEL_INIT")

	forward := &checkpoint.Call{
		Component: "solver",
		Method:    "forward",
		Kwargs: map[string]cty.Value{
			"model":       cty.StringVal(model),
			"save_traces": cty.False,
		},
	}
	logger.Info("Dispatching forward simulations.", "ntask", run.Params.Int("NTASK"), "model", model)
	if err := run.Dispatcher.Run(ctx, forward); err != nil {
		return fmt.Errorf("forward simulations failed: %w", err)
	}

	// Aggregation happens only after the barrier; every task's contribution
	// is accounted for or the sum fails.
	sum, err := preprocess.SumResiduals(run.Tree, run.Params.Int("NTASK"))
	if err != nil {
		return err
	}
	logger.Info("Residuals aggregated.", "sum", sum)

	smooth := &checkpoint.Call{
		Component: "solver",
		Method:    "smooth",
		Kwargs: map[string]cty.Value{
			"model": cty.StringVal(model),
			"span":  cty.NumberFloatVal(5),
		},
	}
	logger.Info("Dispatching model smoothing.")
	if err := run.Dispatcher.RunSingle(ctx, smooth); err != nil {
		return fmt.Errorf("model smoothing failed: %w", err)
	}

	logger.Info("Workflow finished.")
	return nil
}
