package otel

import (
	"context"
	"sync"

	eventbus "github.com/hanpama/protoproject/internal/eventbus"
	events "github.com/hanpama/protoproject/internal/events"
	reqid "github.com/hanpama/protoproject/internal/reqid"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Setup configures OpenTelemetry and attaches eventbus subscribers.
// If endpoint is empty, no telemetry is configured.
func Setup(endpoint, service string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(context.Background(),
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(service),
		)),
	)
	otel.SetTracerProvider(tp)

	sub := &subscriber{tracer: otel.Tracer("protoproject")}
	unsubscribe := sub.register()

	return func(ctx context.Context) error {
		unsubscribe()
		return tp.Shutdown(ctx)
	}, nil
}

type compileKey struct {
	scope    int64
	field    string
	rootType string
}

type subscriber struct {
	tracer       trace.Tracer
	opSpans      sync.Map // rid -> trace.Span
	scopeSpans   sync.Map // scope -> trace.Span
	compileSpans sync.Map // compileKey -> trace.Span
}

func (s *subscriber) register() (unsubscribe func()) {
	unsubs := []func(){
		eventbus.On(func(ctx context.Context, e events.OperationStart) {
			rid, _ := reqid.FromContext(ctx)
			_, span := s.tracer.Start(ctx, "graphql.plan")
			span.SetAttributes(
				attribute.String("graphql.operation.name", e.OperationName),
				attribute.String("graphql.operation.type", e.OperationType),
			)
			s.opSpans.Store(rid, span)
		}),

		eventbus.On(func(ctx context.Context, e events.OperationFinish) {
			rid, _ := reqid.FromContext(ctx)
			v, ok := s.opSpans.LoadAndDelete(rid)
			if !ok {
				return
			}
			span := v.(trace.Span)
			span.SetAttributes(
				attribute.Int("projection.fields", e.Fields),
				attribute.Int("graphql.error_count", len(e.Errors)),
			)
			if len(e.Errors) > 0 {
				span.SetStatus(codes.Error, e.Errors[0].Error())
			}
			span.End()
		}),

		eventbus.On(func(ctx context.Context, e events.ScopeStart) {
			rid, _ := reqid.FromContext(ctx)
			parent := ctx
			if v, ok := s.opSpans.Load(rid); ok {
				parent = trace.ContextWithSpan(ctx, v.(trace.Span))
			}
			_, span := s.tracer.Start(parent, "projection.scope")
			span.SetAttributes(attribute.Int64("projection.scope", e.Scope))
			s.scopeSpans.Store(e.Scope, span)
		}),

		eventbus.On(func(ctx context.Context, e events.ScopeFinish) {
			v, ok := s.scopeSpans.LoadAndDelete(e.Scope)
			if !ok {
				return
			}
			span := v.(trace.Span)
			span.SetAttributes(attribute.Int("projection.cache.entries", e.Entries))
			span.End()
		}),

		eventbus.On(func(ctx context.Context, e events.CompileStart) {
			parent := ctx
			if v, ok := s.scopeSpans.Load(e.Scope); ok {
				parent = trace.ContextWithSpan(ctx, v.(trace.Span))
			}
			_, span := s.tracer.Start(parent, "projection.compile")
			span.SetAttributes(
				attribute.String("graphql.field", e.Field),
				attribute.String("projection.root_type", e.RootType),
			)
			s.compileSpans.Store(compileKey{e.Scope, e.Field, e.RootType}, span)
		}),

		eventbus.On(func(ctx context.Context, e events.CompileFinish) {
			v, ok := s.compileSpans.LoadAndDelete(compileKey{e.Scope, e.Field, e.RootType})
			if !ok {
				return
			}
			span := v.(trace.Span)
			span.SetAttributes(attribute.Int("projection.types", e.Types))
			if e.Err != nil {
				span.RecordError(e.Err)
				span.SetStatus(codes.Error, e.Err.Error())
			}
			span.End()
		}),

		eventbus.On(func(ctx context.Context, e events.CacheHit) {
			v, ok := s.scopeSpans.Load(e.Scope)
			if !ok {
				return
			}
			v.(trace.Span).AddEvent("projection.cache_hit", trace.WithAttributes(
				attribute.String("graphql.field", e.Field),
				attribute.String("projection.root_type", e.RootType),
			))
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
