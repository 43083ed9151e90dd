package executor

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ncobase/runner/structs"
)

// Handler executes one job type.
type Handler interface {
	Handle(ctx context.Context, exec *Exec, job *structs.Job) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, exec *Exec, job *structs.Job) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, exec *Exec, job *structs.Job) error {
	return f(ctx, exec, job)
}

// Registry maps each job type to its handler. Only types in
// structs.JobTypes can be registered.
type Registry struct {
	mu       sync.RWMutex
	handlers map[structs.JobType]Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[structs.JobType]Handler)}
}

// Register binds h to jobType.
func (r *Registry) Register(jobType structs.JobType, h Handler) error {
	if !jobType.Valid() {
		return fmt.Errorf("executor: unknown job type %q", jobType)
	}
	if h == nil {
		return fmt.Errorf("executor: nil handler for %q", jobType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[jobType]; exists {
		return fmt.Errorf("executor: handler for %q already registered", jobType)
	}
	r.handlers[jobType] = h
	return nil
}

// MustRegister is Register that panics on error, for use at startup.
func (r *Registry) MustRegister(jobType structs.JobType, h Handler) {
	if err := r.Register(jobType, h); err != nil {
		panic(err)
	}
}

// Lookup returns the handler for jobType.
func (r *Registry) Lookup(jobType structs.JobType) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[jobType]
	return h, ok
}

// Types returns the registered job types, sorted.
func (r *Registry) Types() []structs.JobType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]structs.JobType, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
