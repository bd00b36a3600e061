// Package requestid provides request ID propagation via context.
package requestid

import (
	"context"

	"github.com/google/uuid"
)

// Header carries the request ID on HTTP requests and responses.
const Header = "X-Request-ID"

type ctxKey struct{}

// WithRequestID returns a context with the given request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext extracts the request ID from context, or generates a new one.
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

// New generates a new request ID and returns the enriched context and ID.
func New(ctx context.Context) (context.Context, string) {
	id := uuid.NewString()
	return WithRequestID(ctx, id), id
}

// Adopt keeps an inbound ID when it is a valid UUID and generates one
// otherwise.
func Adopt(ctx context.Context, inbound string) (context.Context, string) {
	if _, err := uuid.Parse(inbound); err == nil {
		return WithRequestID(ctx, inbound), inbound
	}
	return New(ctx)
}
