// Package testutil provides shared helpers for dispatch and submission
// tests: a recording component and a thread-safe log buffer.
package testutil

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/vk/wavegrid/internal/registry"
)

// Invocation records one recorder method execution.
type Invocation struct {
	Method string
	TaskID int
	Label  string
}

// Recorder registers a "recorder" component whose methods record every
// invocation, so tests can assert on identity assignment and failure
// propagation without a real solver.
type Recorder struct {
	mu          sync.Mutex
	invocations []Invocation

	// FailTaskIDs makes touch fail for the listed identities.
	FailTaskIDs map[int]bool
}

// TouchInput is the keyword-argument struct for recorder.touch.
type TouchInput struct {
	Label string `wg:"label"`
}

// Register wires the recorder methods into the registry.
func (m *Recorder) Register(r *registry.Registry) {
	r.Register("recorder", "touch", &registry.Handler{
		NewInput: func() any { return new(TouchInput) },
		Fn:       m.onTouch,
	})
	r.Register("recorder", "hang", &registry.Handler{
		NewInput: func() any { return new(struct{}) },
		Fn:       m.onHang,
	})
}

// onTouch records the invocation and leaves a marker in the task's scratch
// directory. The marker carries the task identity, so assertions work even
// when the invocation happened in another process.
func (m *Recorder) onTouch(ctx context.Context, env *registry.Env, input any) error {
	in := input.(*TouchInput)
	m.mu.Lock()
	m.invocations = append(m.invocations, Invocation{Method: "touch", TaskID: env.TaskID, Label: in.Label})
	m.mu.Unlock()

	marker := filepath.Join(env.Tree.TaskScratch(env.TaskID), "touched.txt")
	content := fmt.Sprintf("%d %s\n", env.TaskID, in.Label)
	if err := os.WriteFile(marker, []byte(content), 0o644); err != nil {
		return err
	}

	if m.FailTaskIDs[env.TaskID] {
		return fmt.Errorf("recorder configured to fail task %d", env.TaskID)
	}
	return nil
}

// onHang blocks until the task's deadline expires, for timeout tests.
func (m *Recorder) onHang(ctx context.Context, env *registry.Env, input any) error {
	<-ctx.Done()
	return ctx.Err()
}

// Invocations returns a copy of the recorded invocations.
func (m *Recorder) Invocations() []Invocation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Invocation, len(m.invocations))
	copy(out, m.invocations)
	return out
}

// ParseFailTaskIDs turns a comma-separated identity list (as carried by an
// environment variable across an exec boundary) into a FailTaskIDs set.
func ParseFailTaskIDs(raw string) map[int]bool {
	ids := make(map[int]bool)
	for _, field := range strings.Split(raw, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		if id, err := strconv.Atoi(field); err == nil {
			ids[id] = true
		}
	}
	return ids
}

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}
