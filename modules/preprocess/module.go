// Package preprocess is the waveform-preprocessing collaborator. The driver
// invokes it after a run barrier returns; the dispatcher never does. It
// consumes per-task scratch outputs keyed by task identity and aggregates
// them, and it owns the filtering parameters whose derived frequency values
// are computed from declared periods after validation.
package preprocess

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/wavegrid/internal/params"
	"github.com/vk/wavegrid/internal/registry"
	"github.com/vk/wavegrid/internal/workdir"
)

// Module declares the preprocessing parameters. It registers no
// dispatchable methods: preprocessing runs in the driver, after the barrier.
type Module struct{}

// Declare registers the preprocessing parameters.
func (m *Module) Declare(s *params.Schema) {
	s.Par(params.Decl{
		Name: "MISFIT", Type: cty.String, Default: cty.StringVal("waveform"),
		Doc: "Misfit function for waveform comparisons.",
	})
	s.Par(params.Decl{
		Name: "FILTER", Type: cty.String, Default: cty.StringVal("null"),
		Doc: "Data filtering type: BANDPASS, LOWPASS, HIGHPASS, or null.",
	})
	s.Par(params.Decl{
		Name: "MIN_PERIOD", Type: cty.Number,
		Doc: "Minimum filter period in seconds applied to time series.",
	})
	s.Par(params.Decl{
		Name: "MAX_PERIOD", Type: cty.Number,
		Doc: "Maximum filter period in seconds applied to time series.",
	})
	s.Par(params.Decl{
		Name: "MIN_FREQ", Type: cty.Number, Derived: true,
		Doc: "Minimum filter frequency; derived from MAX_PERIOD when periods are given.",
	})
	s.Par(params.Decl{
		Name: "MAX_FREQ", Type: cty.Number, Derived: true,
		Doc: "Maximum filter frequency; derived from MIN_PERIOD when periods are given.",
	})
	s.Par(params.Decl{
		Name: "MUTE", Type: cty.List(cty.String), Default: cty.ListValEmpty(cty.String),
		Doc: "Mute options applied to traces before misfit computation.",
	})
}

// Register is a no-op: the preprocessor is driver-invoked, not dispatched.
func (m *Module) Register(r *registry.Registry) {}

// Check validates the filtering configuration and materializes the derived
// frequency parameters. Frequencies are the reciprocal of the declared
// periods.
func (m *Module) Check(store *params.Store) error {
	filter := strings.ToUpper(store.Str("FILTER"))
	switch filter {
	case "NULL", "BANDPASS", "LOWPASS", "HIGHPASS":
	default:
		return fmt.Errorf("FILTER must be BANDPASS, LOWPASS, HIGHPASS or null, got %q", filter)
	}

	if filter == "BANDPASS" && (!store.Has("MIN_PERIOD") || !store.Has("MAX_PERIOD")) {
		return fmt.Errorf("FILTER=BANDPASS requires MIN_PERIOD and MAX_PERIOD")
	}

	if store.Has("MIN_PERIOD") {
		if err := store.SetDerived("MAX_FREQ", cty.NumberFloatVal(1/store.Float("MIN_PERIOD"))); err != nil {
			return err
		}
	}
	if store.Has("MAX_PERIOD") {
		if err := store.SetDerived("MIN_FREQ", cty.NumberFloatVal(1/store.Float("MAX_PERIOD"))); err != nil {
			return err
		}
	}
	return nil
}

// SumResiduals aggregates the per-task residual files produced by the
// forward runs into a single summed misfit, written to the shared output
// directory. It must only run after the dispatch barrier has returned:
// a missing task file here means a worker's contribution would silently
// vanish, so it is an error, never a skip.
func SumResiduals(tree *workdir.Tree, ntask int) (float64, error) {
	var sum float64
	for id := 0; id < ntask; id++ {
		path := filepath.Join(tree.TaskScratch(id), "residuals.txt")
		f, err := os.Open(path)
		if err != nil {
			return 0, fmt.Errorf("task %d left no residuals at %s: %w", id, path, err)
		}
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			fields := strings.Fields(scanner.Text())
			if len(fields) != 2 {
				continue
			}
			var value float64
			if _, err := fmt.Sscanf(fields[1], "%g", &value); err != nil {
				f.Close()
				return 0, fmt.Errorf("task %d wrote malformed residuals: %w", id, err)
			}
			sum += value
		}
		if err := scanner.Err(); err != nil {
			f.Close()
			return 0, fmt.Errorf("failed to read residuals for task %d: %w", id, err)
		}
		f.Close()
	}

	out := filepath.Join(tree.Output, "residuals_sum.txt")
	if err := os.WriteFile(out, []byte(fmt.Sprintf("%g\n", sum)), 0o644); err != nil {
		return 0, fmt.Errorf("failed to write summed residuals: %w", err)
	}
	return sum, nil
}
