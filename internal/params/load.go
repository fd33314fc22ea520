package params

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/wavegrid/internal/ctxlog"
)

// Load reads the HCL parameters file at path into raw, untyped values keyed
// by entry name. The file is a flat set of attributes; type coercion against
// the declared schema happens later, in Store.Validate.
func Load(ctx context.Context, path string) (map[string]cty.Value, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading parameters file.", "path", path)

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse parameters file %s: %w", path, diags)
	}

	attrs, diags := file.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, fmt.Errorf("parameters file %s must contain only attributes: %w", path, diags)
	}

	raw := make(map[string]cty.Value, len(attrs))
	for name, attr := range attrs {
		val, diags := attr.Expr.Value(&hcl.EvalContext{})
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to evaluate parameter %q: %w", name, diags)
		}
		raw[name] = val
	}

	logger.Debug("Parameters file loaded.", "count", len(raw))
	return raw, nil
}
