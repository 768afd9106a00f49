package diagnostics

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Attribute keys following the fs./tds. naming convention.
const (
	AttrSessionID = "tds.session_id"
	AttrSPID      = "tds.spid"
)

// TracingConfig configures the OTLP/gRPC exporter backing a TracingSink.
type TracingConfig struct {
	Endpoint       string
	Insecure       bool
	ServiceName    string
	ServiceVersion string
}

// NewTracerProvider builds an SDK tracer provider exporting to cfg.Endpoint
// over OTLP/gRPC, and a shutdown function to flush and close it.
func NewTracerProvider(ctx context.Context, cfg TracingConfig) (*sdktrace.TracerProvider, func(context.Context) error, error) {
	var opts []otlptracegrpc.Option
	opts = append(opts, otlptracegrpc.WithEndpoint(cfg.Endpoint))
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	shutdown := func(ctx context.Context) error {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return tp.Shutdown(shutdownCtx)
	}
	return tp, shutdown, nil
}

// TracingSink emits one root span per session, opened by BeginSession
// and ended by EndSession, tagged with the caller-supplied correlation
// id (distinct from the server-assigned SPID, which is zero until login
// completes), plus span events for attention sent/acked.
type TracingSink struct {
	tracer trace.Tracer

	mu    sync.Mutex
	spans map[string]trace.Span
	ctxs  map[string]context.Context
}

// NewTracingSink wraps tp (or the global provider if tp is nil) into a Sink.
func NewTracingSink(tp trace.TracerProvider) *TracingSink {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &TracingSink{
		tracer: tp.Tracer("tds-client"),
		spans:  make(map[string]trace.Span),
		ctxs:   make(map[string]context.Context),
	}
}

// BeginSession opens the root span for a session's lifetime, tagged
// with its client-generated correlation id.
func (t *TracingSink) BeginSession(ctx context.Context, correlationID string) {
	spanCtx, span := t.tracer.Start(ctx, "tds.session",
		trace.WithAttributes(attribute.String(AttrSessionID, correlationID)))

	t.mu.Lock()
	t.spans[correlationID] = span
	t.ctxs[correlationID] = spanCtx
	t.mu.Unlock()
}

// EndSession closes the session's root span.
func (t *TracingSink) EndSession(correlationID string) {
	t.mu.Lock()
	span := t.spans[correlationID]
	delete(t.spans, correlationID)
	delete(t.ctxs, correlationID)
	t.mu.Unlock()

	if span != nil {
		span.End()
	}
}

func (t *TracingSink) span(sessionID string) trace.Span {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.spans[sessionID]
}

func (t *TracingSink) PacketSent(sessionID string, bytes int) {
	if s := t.span(sessionID); s != nil {
		s.AddEvent("packet_sent", trace.WithAttributes(attribute.Int("bytes", bytes)))
	}
}

func (t *TracingSink) PacketReceived(sessionID string, bytes int) {
	if s := t.span(sessionID); s != nil {
		s.AddEvent("packet_received", trace.WithAttributes(attribute.Int("bytes", bytes)))
	}
}

func (t *TracingSink) AttentionSent(sessionID string) {
	if s := t.span(sessionID); s != nil {
		s.AddEvent("attention_sent")
	}
}

func (t *TracingSink) AttentionAcked(sessionID string, latency time.Duration) {
	if s := t.span(sessionID); s != nil {
		s.AddEvent("attention_acked", trace.WithAttributes(attribute.Int64("latency_ms", latency.Milliseconds())))
	}
}

func (t *TracingSink) TimeoutExpired(sessionID string) {
	if s := t.span(sessionID); s != nil {
		s.AddEvent("timeout_expired")
	}
}

func (t *TracingSink) SessionBroken(sessionID string) {
	if s := t.span(sessionID); s != nil {
		s.AddEvent("session_broken")
	}
}

func (t *TracingSink) TransactionOpened(sessionID string) {
	if s := t.span(sessionID); s != nil {
		s.AddEvent("transaction_opened")
	}
}

func (t *TracingSink) TransactionClosed(sessionID string) {
	if s := t.span(sessionID); s != nil {
		s.AddEvent("transaction_closed")
	}
}
