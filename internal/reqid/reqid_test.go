package reqid

import (
	"context"
	"testing"
)

func TestContextRoundTrip(t *testing.T) {
	ctx, id := NewContext(context.Background())
	got, ok := FromContext(ctx)
	if !ok || got != id {
		t.Fatalf("expected %d from context, got %d ok=%v", id, got, ok)
	}
	if _, ok := FromContext(context.Background()); ok {
		t.Fatalf("unexpected id in empty context")
	}
}

func TestEnsure(t *testing.T) {
	ctx, id := NewContext(context.Background())
	same, got := Ensure(ctx)
	if got != id || same != ctx {
		t.Fatalf("Ensure replaced existing id %d with %d", id, got)
	}

	fresh, got := Ensure(context.Background())
	if stored, ok := FromContext(fresh); !ok || stored != got {
		t.Fatalf("Ensure did not store id %d", got)
	}
}
