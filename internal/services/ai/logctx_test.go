package ai

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestExtractRunID(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	tests := []struct {
		name string
		ctx  context.Context
		want string
	}{
		{name: "empty", ctx: context.Background(), want: ""},
		{name: "string", ctx: WithRunID(context.Background(), "run-1"), want: "run-1"},
		{name: "uuid", ctx: context.WithValue(context.Background(), runIDContextKey, id), want: id.String()},
		{name: "wrong type", ctx: context.WithValue(context.Background(), runIDContextKey, 42), want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ExtractRunID(tt.ctx); got != tt.want {
				t.Errorf("ExtractRunID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractRequestID(t *testing.T) {
	t.Parallel()

	ctx := context.WithValue(context.Background(), RequestIDContextKey(), "req-9")
	if got := ExtractRequestID(ctx); got != "req-9" {
		t.Errorf("ExtractRequestID() = %q", got)
	}
	if got := ExtractRequestID(context.Background()); got != "" {
		t.Errorf("ExtractRequestID() without value = %q", got)
	}
}

func TestPreview(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("word ", 500)
	if got := preview(long, false); len(got) > 210 {
		t.Errorf("non-debug preview length = %d", len(got))
	}
	if got := preview(long, true); got != long {
		t.Errorf("debug preview length = %d, want the full %d", len(got), len(long))
	}
	if got := preview("line one\x00\nline two", false); strings.ContainsRune(got, 0) || strings.Contains(got, "\n") {
		t.Errorf("preview kept control characters: %q", got)
	}
}
