package types

import (
	"context"
	"testing"
)

func TestContextHelpers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	if _, ok := RunID(ctx); ok {
		t.Fatalf("expected no run id on empty context")
	}

	ctx = WithRequestID(ctx, "req-1")
	if got, ok := RequestID(ctx); !ok || got != "req-1" {
		t.Fatalf("RequestID mismatch: %v %v", got, ok)
	}

	ctx = WithRunID(ctx, "run")
	if got, ok := RunID(ctx); !ok || got != "run" {
		t.Fatalf("RunID mismatch: %v %v", got, ok)
	}

	ctx = WithCategory(ctx, "competitive")
	if got, ok := Category(ctx); !ok || got != "competitive" {
		t.Fatalf("Category mismatch: %v %v", got, ok)
	}

	ctx = WithPrincipal(ctx, "ops-key")
	if got, ok := Principal(ctx); !ok || got != "ops-key" {
		t.Fatalf("Principal mismatch: %v %v", got, ok)
	}

	if _, ok := Category(WithCategory(context.Background(), "")); ok {
		t.Fatalf("empty category must not be reported")
	}
}
