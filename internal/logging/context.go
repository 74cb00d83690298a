package logging

import (
	"context"

	"github.com/google/uuid"
)

// correlationKey is unexported so only this package can write the value;
// callers go through WithCorrelationID.
type correlationKey struct{}

// WithCorrelationID returns a context carrying the given correlation ID.
// Every log line emitted through the *WithContext methods picks it up, and
// the dispatcher reuses it as the request ID on forwarding records.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// GetCorrelationID returns the correlation ID carried by ctx, or "".
func GetCorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// GenerateCorrelationID mints a fresh request-scoped correlation ID.
func GenerateCorrelationID() string {
	return "req_" + uuid.NewString()
}

// MustGetCorrelationID returns the context's correlation ID, minting one
// when the context carries none.
func MustGetCorrelationID(ctx context.Context) string {
	if id := GetCorrelationID(ctx); id != "" {
		return id
	}
	return GenerateCorrelationID()
}
