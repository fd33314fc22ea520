// Package ctxtask carries a worker's task identity through context.Context,
// the same way ctxlog carries the logger. Dispatcher backends embed the
// identity before a target method runs; the method reads it back to find its
// own per-task scratch space and to decide whether it is the lead task.
package ctxtask

import "context"

// key is an unexported type to prevent collisions with context keys from other packages.
type key struct{}

var taskKey = key{}

// WithTaskID returns a new context carrying the given task identity.
func WithTaskID(ctx context.Context, id int) context.Context {
	return context.WithValue(ctx, taskKey, id)
}

// FromContext extracts the task identity from a context. The second return
// value is false when the context does not belong to a running task.
func FromContext(ctx context.Context) (int, bool) {
	id, ok := ctx.Value(taskKey).(int)
	return id, ok
}
