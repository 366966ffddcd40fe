package observe

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// useTestTracer installs an in-memory tracer provider as the global one for
// the duration of the test.
func useTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(orig) })
	return exp
}

func TestTraceID_EmptyWithoutSpan(t *testing.T) {
	if got := TraceID(context.Background()); got != "" {
		t.Errorf("TraceID(background) = %q, want empty", got)
	}
}

func TestStartSpan_Attributes(t *testing.T) {
	exp := useTestTracer(t)

	ctx, span := StartSpan(context.Background(), "evaluate.file", "file", "f1", "dangling")
	if len(TraceID(ctx)) != 32 {
		t.Errorf("TraceID length = %d, want 32", len(TraceID(ctx)))
	}
	span.End()

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	if spans[0].Name != "evaluate.file" {
		t.Errorf("span name = %q", spans[0].Name)
	}
	if len(spans[0].Attributes) != 1 || spans[0].Attributes[0].Value.AsString() != "f1" {
		t.Errorf("attributes = %v, want file=f1 only", spans[0].Attributes)
	}
}

func TestEndSpan_RecordsError(t *testing.T) {
	exp := useTestTracer(t)

	_, ok := StartSpan(context.Background(), "ok")
	EndSpan(ok, nil)
	_, failed := StartSpan(context.Background(), "failed")
	EndSpan(failed, errors.New("boom"))

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("spans = %d, want 2", len(spans))
	}
	if spans[0].Status.Code != codes.Unset {
		t.Errorf("ok span status = %v, want unset", spans[0].Status.Code)
	}
	if spans[1].Status.Code != codes.Error || spans[1].Status.Description != "boom" {
		t.Errorf("failed span status = %+v", spans[1].Status)
	}
	if len(spans[1].Events) == 0 {
		t.Error("failed span has no error event")
	}
}

func TestLogger_TraceAttributes(t *testing.T) {
	useTestTracer(t)

	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(orig) })

	Logger(context.Background()).Info("plain")
	if bytes.Contains(buf.Bytes(), []byte("trace_id")) {
		t.Errorf("log without span contains trace_id: %s", buf.String())
	}

	buf.Reset()
	ctx, span := StartSpan(context.Background(), "log-test")
	defer span.End()
	Logger(ctx).Info("traced")
	for _, want := range []string{"trace_id=" + TraceID(ctx), "span_id="} {
		if !bytes.Contains(buf.Bytes(), []byte(want)) {
			t.Errorf("log output missing %q: %s", want, buf.String())
		}
	}
}
