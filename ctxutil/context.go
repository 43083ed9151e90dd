// Package ctxutil carries request and execution scoped values through
// context.Context.
package ctxutil

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	// TraceIDKey is the log field name of the trace id.
	TraceIDKey = "trace_id"
	// WorkerIDKey is the log field name of the worker id.
	WorkerIDKey = "worker_id"
	// RunIDKey is the log field name of the run id.
	RunIDKey = "run_id"

	traceIDKey  contextKey = TraceIDKey
	workerIDKey contextKey = WorkerIDKey
	runIDKey    contextKey = RunIDKey
)

func getString(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// GetTraceID gets trace id from context.Context.
func GetTraceID(ctx context.Context) string {
	return getString(ctx, traceIDKey)
}

// SetTraceID sets trace id to context.Context.
func SetTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// EnsureTraceID ensures that a trace ID exists in the context.
func EnsureTraceID(ctx context.Context) (context.Context, string) {
	if traceID := GetTraceID(ctx); traceID != "" {
		return ctx, traceID
	}
	traceID := uuid.NewString()
	return SetTraceID(ctx, traceID), traceID
}

// GetWorkerID gets worker id from context.Context.
func GetWorkerID(ctx context.Context) string {
	return getString(ctx, workerIDKey)
}

// SetWorkerID sets worker id to context.Context.
func SetWorkerID(ctx context.Context, workerID string) context.Context {
	return context.WithValue(ctx, workerIDKey, workerID)
}

// GetRunID gets run id from context.Context.
func GetRunID(ctx context.Context) string {
	return getString(ctx, runIDKey)
}

// SetRunID sets run id to context.Context.
func SetRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}
