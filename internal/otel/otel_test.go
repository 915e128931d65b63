package otel

import (
	"context"
	"errors"
	"testing"

	eventbus "github.com/hanpama/protoproject/internal/eventbus"
	events "github.com/hanpama/protoproject/internal/events"
	reqid "github.com/hanpama/protoproject/internal/reqid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSetupDisabled(t *testing.T) {
	shutdown, err := Setup("", "test")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSubscriberSpans(t *testing.T) {
	eventbus.Use(eventbus.New())
	t.Cleanup(func() { eventbus.Use(nil) })

	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	sub := &subscriber{tracer: tp.Tracer("test")}
	unsubscribe := sub.register()
	defer unsubscribe()

	ctx, scope := reqid.NewContext(context.Background())
	eventbus.Publish(ctx, events.OperationStart{OperationName: "Q", OperationType: "query"})
	eventbus.Publish(ctx, events.ScopeStart{Scope: scope})
	eventbus.Publish(ctx, events.CompileStart{Scope: scope, Field: "Query.author", RootType: "Author"})
	eventbus.Publish(ctx, events.CompileFinish{Scope: scope, Field: "Query.author", RootType: "Author", Err: errors.New("boom")})
	eventbus.Publish(ctx, events.CacheHit{Scope: scope, Field: "Query.author", RootType: "Author"})
	eventbus.Publish(ctx, events.ScopeFinish{Scope: scope, Entries: 0})
	eventbus.Publish(ctx, events.OperationFinish{OperationName: "Q", OperationType: "query", Fields: 1})

	ended := rec.Ended()
	require.Len(t, ended, 3)
	names := []string{ended[0].Name(), ended[1].Name(), ended[2].Name()}
	assert.Equal(t, []string{"projection.compile", "projection.scope", "graphql.plan"}, names)

	compile, scopeSpan, op := ended[0], ended[1], ended[2]
	assert.Equal(t, codes.Error, compile.Status().Code)
	assert.Equal(t, scopeSpan.SpanContext().SpanID(), compile.Parent().SpanID())
	assert.Equal(t, op.SpanContext().SpanID(), scopeSpan.Parent().SpanID())
	require.Len(t, scopeSpan.Events(), 1)
	assert.Equal(t, "projection.cache_hit", scopeSpan.Events()[0].Name)
}
