package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"mercator-hq/aegis/pkg/config"
)

func newTestTracer(t *testing.T, sampler string) (*Tracer, *tracetest.InMemoryExporter) {
	t.Helper()
	prevProvider := otel.GetTracerProvider()
	prevPropagator := otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevProvider)
		otel.SetTextMapPropagator(prevPropagator)
	})

	exp := tracetest.NewInMemoryExporter()
	tr, err := NewWithExporter(&config.TracingConfig{
		Enabled:     true,
		Sampler:     sampler,
		SampleRatio: 1.0,
		ServiceName: "aegis-test",
	}, "test", exp)
	if err != nil {
		t.Fatalf("failed to create tracer: %v", err)
	}
	t.Cleanup(func() { _ = tr.Shutdown(context.Background()) })
	return tr, exp
}

func attrValue(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  *config.TracingConfig
		wantErr bool
		enabled bool
	}{
		{name: "nil config", config: nil, wantErr: true},
		{name: "disabled", config: &config.TracingConfig{Enabled: false}, enabled: false},
		{
			name: "unsupported exporter",
			config: &config.TracingConfig{
				Enabled:  true,
				Exporter: "zipkin",
				Sampler:  "always",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := New(tt.config, "test")
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && tr.Enabled() != tt.enabled {
				t.Errorf("expected enabled=%v, got %v", tt.enabled, tr.Enabled())
			}
		})
	}
}

func TestTracer_DisabledIsNoop(t *testing.T) {
	tr, err := New(&config.TracingConfig{}, "test")
	if err != nil {
		t.Fatalf("failed to create tracer: %v", err)
	}

	ctx, span := tr.Start(context.Background(), "noop")
	span.End()

	if TraceID(ctx) != "" {
		t.Error("expected no trace id from noop tracer")
	}
	if err := tr.Shutdown(context.Background()); err != nil {
		t.Errorf("expected noop shutdown, got %v", err)
	}
}

func TestTracer_ExportsSpans(t *testing.T) {
	tr, exp := newTestTracer(t, SamplerAlways)

	ctx, root := tr.Start(context.Background(), "governance.process")
	SetRequestAttributes(root, "req-1", "sess-1", "analyst")
	_, child := tr.Start(ctx, "governance.risk_screening", StageAttributes("risk_screening"))
	SetRiskAttributes(child, 0.42, "low", "allow")
	child.End()
	SetOutcomeAttributes(root, "compliant", false, "audit-1")
	SetFrameworks(root, []string{"HIPAA"})
	root.End()

	if err := tr.ForceFlush(context.Background()); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	stage, parent := spans[0], spans[1]
	if stage.Parent.SpanID() != parent.SpanContext.SpanID() {
		t.Error("expected stage span to be a child of the root span")
	}
	if v, ok := attrValue(stage.Attributes, AttrRiskScore); !ok || v.AsFloat64() != 0.42 {
		t.Errorf("expected risk score attribute, got %v", v)
	}
	if v, ok := attrValue(parent.Attributes, AttrRole); !ok || v.AsString() != "analyst" {
		t.Errorf("expected role attribute, got %v", v)
	}
	if v, ok := attrValue(parent.Attributes, AttrFrameworks); !ok || len(v.AsStringSlice()) != 1 {
		t.Errorf("expected frameworks attribute, got %v", v)
	}
	if attrs := parent.Resource.Attributes(); len(attrs) == 0 {
		t.Error("expected resource attributes")
	}
}

func TestSetStatus(t *testing.T) {
	tr, exp := newTestTracer(t, SamplerAlways)

	_, ok := tr.Start(context.Background(), "ok")
	SetStatus(ok, nil)
	ok.End()
	_, bad := tr.Start(context.Background(), "bad")
	SetStatus(bad, errors.New("store unavailable"))
	bad.End()
	_ = tr.ForceFlush(context.Background())

	spans := exp.GetSpans()
	if spans[0].Status.Code != codes.Ok {
		t.Errorf("expected OK status, got %v", spans[0].Status.Code)
	}
	if spans[1].Status.Code != codes.Error || len(spans[1].Events) == 0 {
		t.Errorf("expected error status with exception event, got %v", spans[1].Status)
	}
}

func TestMiddleware_ContinuesIncomingTrace(t *testing.T) {
	tr, exp := newTestTracer(t, SamplerParentBased)

	h := tr.Middleware("/api/v1/genai/process")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if TraceID(r.Context()) != "4bf92f3577b34da6a3ce929d0e0e4736" {
			t.Errorf("expected handler context to carry the incoming trace, got %q", TraceID(r.Context()))
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/genai/process", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Header().Get(TraceIDHeader) != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("expected trace id header, got %q", rec.Header().Get(TraceIDHeader))
	}

	_ = tr.ForceFlush(context.Background())
	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name != "POST /api/v1/genai/process" {
		t.Errorf("unexpected span name %q", spans[0].Name)
	}
	if v, _ := attrValue(spans[0].Attributes, AttrHTTPStatusCode); v.AsInt64() != 503 {
		t.Errorf("expected status code attribute 503, got %v", v)
	}
	if spans[0].Status.Code != codes.Error {
		t.Error("expected 5xx to mark the span as error")
	}
}

func TestMiddleware_UnsampledParent(t *testing.T) {
	tr, exp := newTestTracer(t, SamplerParentBased)

	h := tr.Middleware("/health")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-00")
	h.ServeHTTP(httptest.NewRecorder(), req)

	_ = tr.ForceFlush(context.Background())
	if n := len(exp.GetSpans()); n != 0 {
		t.Errorf("expected unsampled parent to suppress export, got %d spans", n)
	}
}

func TestInjectToMap_RoundTrip(t *testing.T) {
	tr, _ := newTestTracer(t, SamplerAlways)

	ctx, span := tr.Start(context.Background(), "emit")
	defer span.End()

	carrier := map[string]string{}
	InjectToMap(ctx, carrier)
	if carrier["traceparent"] == "" {
		t.Fatal("expected traceparent in carrier")
	}

	got := ExtractFromMap(context.Background(), carrier)
	if TraceID(got) != TraceID(ctx) {
		t.Errorf("expected trace id %q after round trip, got %q", TraceID(ctx), TraceID(got))
	}
}

func TestCreateSampler(t *testing.T) {
	tests := []struct {
		strategy string
		ratio    float64
		wantErr  bool
	}{
		{SamplerAlways, 0, false},
		{SamplerNever, 0, false},
		{SamplerRatio, 0.5, false},
		{SamplerParentBased, 0.1, false},
		{SamplerRatio, 1.5, true},
		{"sometimes", 0.5, true},
	}

	for _, tt := range tests {
		t.Run(tt.strategy, func(t *testing.T) {
			s, err := createSampler(tt.strategy, tt.ratio)
			if (err != nil) != tt.wantErr {
				t.Fatalf("createSampler() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && s == nil {
				t.Error("expected sampler")
			}
		})
	}

	s, _ := createSampler(SamplerParentBased, 0.1)
	if d := s.Description(); d == "" {
		t.Error("expected sampler description")
	}
}
