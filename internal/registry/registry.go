// Package registry maps (component, method) pairs to registered Go handlers.
// Checkpointed calls name their target by these two strings; the worker
// resolves the pair here to a typed handler instead of performing free-form
// reflective dispatch. Registration happens once at startup; duplicates are
// programmer errors and panic.
package registry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vk/wavegrid/internal/params"
	"github.com/vk/wavegrid/internal/workdir"
)

// Env is everything a running task may depend on: the resolved
// configuration, the working tree, and its own task identity. It is built by
// the dispatch backend for each task and passed explicitly, never looked up
// from globals.
type Env struct {
	Params *params.Store
	Tree   *workdir.Tree
	TaskID int
}

// Lead reports whether this task is the lead worker. Only the lead worker
// may perform run-wide side effects such as writing to the shared output
// directory.
func (e *Env) Lead() bool { return e.TaskID == 0 }

// Handler holds the compiled Go parts of one dispatchable method.
type Handler struct {
	// NewInput returns a fresh pointer to the handler's keyword-argument
	// struct. Fields bind to checkpoint kwargs via `wg:"name"` tags.
	NewInput func() any
	// Fn executes the method. The context carries the logger, the task
	// identity, and the task's wall-clock deadline.
	Fn func(ctx context.Context, env *Env, input any) error
}

// Module is the interface components implement to plug into the system.
type Module interface {
	Register(r *Registry)
}

// Declarer is implemented by modules that declare their own parameters and
// paths; declarations run before the store validates.
type Declarer interface {
	Declare(s *params.Schema)
}

// Checker is implemented by modules that need a post-validation consistency
// pass, e.g. to compute derived parameters.
type Checker interface {
	Check(store *params.Store) error
}

// Registry holds all registered handlers for one application instance.
type Registry struct {
	handlers map[string]*Handler
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{handlers: make(map[string]*Handler)}
}

func key(component, method string) string {
	return component + "." + method
}

// Register adds a handler for a component method.
func (r *Registry) Register(component, method string, h *Handler) {
	k := key(component, method)
	if _, exists := r.handlers[k]; exists {
		panic(fmt.Sprintf("handler for %q already registered", k))
	}
	slog.Debug("Registering method handler.", "target", k)
	r.handlers[k] = h
}

// Resolve returns the handler for a pair, or an error naming the missing
// target so failures stay attributable.
func (r *Registry) Resolve(component, method string) (*Handler, error) {
	h, ok := r.handlers[key(component, method)]
	if !ok {
		return nil, fmt.Errorf("no handler registered for %s.%s", component, method)
	}
	return h, nil
}
