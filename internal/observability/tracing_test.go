package observability

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"rentcase/internal/domain"
)

func TestInitTracing_NoEndpoint(t *testing.T) {
	ctx := context.Background()
	tp, err := InitTracing(ctx, &TracingConfig{ServiceName: "test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tp.Tracer() == nil {
		t.Fatal("expected non-nil tracer")
	}
	if err := tp.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestInitTracing_NilConfig(t *testing.T) {
	tp, err := InitTracing(context.Background(), nil)
	if err != nil || tp == nil {
		t.Fatalf("got %v, %v", tp, err)
	}
}

func TestQuerySpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	ctx, root := StartQuerySpan(context.Background(), "req-1", 20)
	_, rs := StartRetrievalSpan(ctx, 5, 0.3)
	RecordRetrievalResult(rs, 0, domain.ErrStoreNotFound)
	rs.End()
	_, gs := StartGenerationSpan(ctx, "fake", true)
	RecordError(gs, errors.New("quota"))
	gs.End()
	root.End()

	spans := sr.Ended()
	if len(spans) != 3 {
		t.Fatalf("got %d spans", len(spans))
	}
	names := map[string]sdktrace.ReadOnlySpan{}
	for _, s := range spans {
		names[s.Name()] = s
	}
	for _, n := range []string{"query.answer", "retrieval.search", "generation.stream"} {
		if _, ok := names[n]; !ok {
			t.Fatalf("missing span %s", n)
		}
	}
	rootID := names["query.answer"].SpanContext().SpanID()
	if names["retrieval.search"].Parent().SpanID() != rootID {
		t.Fatal("retrieval span not parented to query span")
	}
	if names["generation.stream"].Status().Code != codes.Error {
		t.Fatal("generation span status not error")
	}
}

func TestFanout(t *testing.T) {
	var a, b []string
	obs := Fanout(
		domain.ObserverFunc(func(e domain.QueryEvent) { a = append(a, e.Kind) }),
		nil,
		domain.ObserverFunc(func(e domain.QueryEvent) { b = append(b, e.Kind) }),
	)
	obs.Observe(domain.QueryEvent{Kind: domain.EventChatStart})
	obs.Observe(domain.QueryEvent{Kind: domain.EventStreamSuccess})
	if len(a) != 2 || len(b) != 2 || b[1] != domain.EventStreamSuccess {
		t.Fatalf("a=%v b=%v", a, b)
	}
}
