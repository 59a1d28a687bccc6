package ai

import (
	"context"
	"fmt"

	logpkg "github.com/benvon/voiceflow/internal/logger"
)

type contextKey string

const (
	runIDContextKey     contextKey = "run_id"
	requestIDContextKey contextKey = "request_id"
)

// RequestIDContextKey returns the context key the HTTP layer stores request IDs under.
func RequestIDContextKey() contextKey {
	return requestIDContextKey
}

// MaxDebugPreviewLength bounds prompt and response excerpts when debug logging is on.
const MaxDebugPreviewLength = 10000

// WithRunID returns a context carrying the run ID so provider logs can be
// correlated with the run that issued the call.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDContextKey, runID)
}

// ExtractRunID returns the run ID stored by WithRunID, or "".
func ExtractRunID(ctx context.Context) string {
	switch id := ctx.Value(runIDContextKey).(type) {
	case string:
		return id
	case fmt.Stringer:
		return id.String()
	}
	return ""
}

// ExtractRequestID returns the request ID set by the HTTP middleware, or "".
func ExtractRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}

// preview returns a log-safe excerpt of a prompt or model response.
func preview(s string, debug bool) string {
	if debug {
		return logpkg.SanitizeString(s, MaxDebugPreviewLength)
	}
	return logpkg.TranscriptPreview(s)
}
