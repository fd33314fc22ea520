// Package runctx defines the explicit run context: one struct owning the
// resolved configuration, the working tree, the handler registry, and the
// active dispatcher. It is constructed once at startup and passed by
// reference into every component; there is no ambient global state to look
// up and none to tear down.
package runctx

import (
	"github.com/vk/wavegrid/internal/dispatch"
	"github.com/vk/wavegrid/internal/params"
	"github.com/vk/wavegrid/internal/registry"
	"github.com/vk/wavegrid/internal/workdir"
)

// Run is the current run's context.
type Run struct {
	Params     *params.Store
	Tree       *workdir.Tree
	Registry   *registry.Registry
	Dispatcher dispatch.Dispatcher
}
