package shared

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// Key type for context values
type ContextKey string

// Context keys for various values
const (
	// IdentityContextKey is the context key for the caller's identity.
	IdentityContextKey ContextKey = "identity"

	// TraceIDKey is the key for the trace ID in the request context
	TraceIDKey ContextKey = "traceID"

	// TraceIDLength is the number of bytes used to generate the trace ID
	TraceIDLength = 16 // 32 hex characters
)

// SetTraceID adds a trace ID to the context.
// This is useful for correlating logs and error responses.
func SetTraceID(ctx context.Context) context.Context {
	return context.WithValue(ctx, TraceIDKey, generateTraceID())
}

// GetTraceID retrieves the trace ID from the context.
// If no trace ID exists, it returns an empty string.
func GetTraceID(ctx context.Context) string {
	traceID, ok := ctx.Value(TraceIDKey).(string)
	if !ok {
		return ""
	}
	return traceID
}

// SetIdentity stores the caller's resolved identity in the context.
func SetIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, IdentityContextKey, identity)
}

// GetIdentity retrieves the caller's identity from the context.
// If no identity was resolved, it returns an empty string.
func GetIdentity(ctx context.Context) string {
	identity, ok := ctx.Value(IdentityContextKey).(string)
	if !ok {
		return ""
	}
	return identity
}

// generateTraceID creates a random trace ID for request tracking.
// Falls back to a time-based ID if the random source fails, so a trace ID is
// never empty or static.
func generateTraceID() string {
	b := make([]byte, TraceIDLength)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%032x", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
