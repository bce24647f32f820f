// Package trace provides request ID generation and context propagation so a
// single inbound interaction can be correlated across the menu, request and
// transport layers in log output.
package trace

import (
	"context"

	"github.com/google/uuid"
)

// traceKey is the unexported context key used to store the request ID.
type traceKey struct{}

// GenerateID returns a new unique request ID.
func GenerateID() string {
	return "req_" + uuid.NewString()
}

// WithID returns a child context carrying the given request ID.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

// FromContext extracts the request ID from ctx, returning "" if absent.
func FromContext(ctx context.Context) string {
	if v, ok := ctx.Value(traceKey{}).(string); ok {
		return v
	}
	return ""
}
