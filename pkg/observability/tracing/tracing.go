/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package tracing

import (
	"context"
	"fmt"
	"os"

	"github.com/trustbloc/logutil-go/pkg/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.12.0"
	"go.opentelemetry.io/otel/trace"

	logfields "github.com/meridianfed/meridian/internal/pkg/log"
	"github.com/meridianfed/meridian/pkg/lifecycle"
)

var logger = log.New("tracing")

const instrumentationVersion = "1.0.0"

// Subsystem defines a subsystem for which tracers are created.
type Subsystem string

// Subsystems.
const (
	SubsystemFederation   Subsystem = "federation"
	SubsystemInbox        Subsystem = "service/inbox"
	SubsystemOutbox       Subsystem = "service/outbox"
	SubsystemActivitySync Subsystem = "service/activitysync"
	SubsystemClient       Subsystem = "client"
	SubsystemAMQP         Subsystem = "pubsub/amqp"
)

// Tracing attributes.
const (
	AttributeMessageUUID  attribute.Key = "meridian.messageUUID"
	AttributeActivityID   attribute.Key = "meridian.activityID"
	AttributeActivityType attribute.Key = "meridian.activityType"
	AttributeTaskKind     attribute.Key = "meridian.taskKind"
	AttributeInboxURL     attribute.Key = "meridian.inboxURL"
)

const tracerRootName = "github.com/meridianfed/meridian"

// ProviderType specifies the type of the tracer provider.
type ProviderType = string

const (
	// ProviderNone indicates that tracing is disabled.
	ProviderNone ProviderType = ""
	// ProviderJaeger indicates that tracing data should be in Jaeger format.
	ProviderJaeger ProviderType = "JAEGER"
)

// Provider creates tracers.
type Provider interface {
	trace.TracerProvider

	Start()
	Stop()
}

// Initialize creates a tracer Provider of the given type and registers it as
// the global provider, so that instrumentation libraries pick it up by default.
func Initialize(provider, serviceName, url string) (Provider, error) {
	if provider == ProviderNone {
		tp := newNoopTracerProvider()

		otel.SetTracerProvider(tp)

		return tp, nil
	}

	if provider != ProviderJaeger {
		return nil, fmt.Errorf("unsupported tracing provider: %s", provider)
	}

	tp, err := newJaegerTracerProvider(serviceName, url)
	if err != nil {
		return nil, fmt.Errorf("create new tracer provider: %w", err)
	}

	otel.SetTextMapPropagator(propagation.TraceContext{})
	otel.SetTracerProvider(tp)

	logger.Info("Enabled tracing", logfields.WithTracingProvider(provider),
		logfields.WithServiceName(serviceName), logfields.WithRequestURLString(url))

	return &otelTracerProvider{TracerProvider: tp}, nil
}

// Tracer returns a tracer for the given subsystem.
func Tracer(subsystem Subsystem) trace.Tracer {
	return otel.GetTracerProvider().Tracer(fmt.Sprintf("%s/pkg/%s", tracerRootName, subsystem),
		trace.WithInstrumentationVersion(instrumentationVersion))
}

// MessageUUIDAttribute returns the meridian.messageUUID tracing attribute.
func MessageUUIDAttribute(value string) attribute.KeyValue {
	return attribute.KeyValue{Key: AttributeMessageUUID, Value: attribute.StringValue(value)}
}

// ActivityIDAttribute returns the meridian.activityID tracing attribute.
func ActivityIDAttribute(value string) attribute.KeyValue {
	return attribute.KeyValue{Key: AttributeActivityID, Value: attribute.StringValue(value)}
}

// ActivityTypeAttribute returns the meridian.activityType tracing attribute.
func ActivityTypeAttribute(value string) attribute.KeyValue {
	return attribute.KeyValue{Key: AttributeActivityType, Value: attribute.StringValue(value)}
}

// TaskKindAttribute returns the meridian.taskKind tracing attribute.
func TaskKindAttribute(value string) attribute.KeyValue {
	return attribute.KeyValue{Key: AttributeTaskKind, Value: attribute.StringValue(value)}
}

// InboxURLAttribute returns the meridian.inboxURL tracing attribute.
func InboxURLAttribute(value string) attribute.KeyValue {
	return attribute.KeyValue{Key: AttributeInboxURL, Value: attribute.StringValue(value)}
}

// Span is a wrapper around a trace.Span that ensures it is started only once
// and ended only if it was started.
type Span struct {
	span   trace.Span
	tracer trace.Tracer
	ctx    context.Context
}

// NewSpan returns a Span wrapper.
func NewSpan(tracer trace.Tracer, ctx context.Context) *Span {
	return &Span{tracer: tracer, ctx: ctx}
}

// Start starts a span if it hasn't already been started.
func (s *Span) Start(name string, opts ...trace.SpanStartOption) context.Context {
	if s.span != nil {
		return s.ctx
	}

	s.ctx, s.span = s.tracer.Start(s.ctx, name, opts...)

	return s.ctx
}

// End ends the span if it had been started.
func (s *Span) End(opts ...trace.SpanEndOption) {
	if s.span != nil {
		s.span.End(opts...)
	}
}

// newJaegerTracerProvider returns a provider that batches spans to a Jaeger
// collector at the given URL, tagged with the service name and process ID.
func newJaegerTracerProvider(serviceName, url string) (*tracesdk.TracerProvider, error) {
	exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(url)))
	if err != nil {
		return nil, fmt.Errorf("create jaeger collector: %w", err)
	}

	return tracesdk.NewTracerProvider(
		tracesdk.WithBatcher(exp),
		tracesdk.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
			semconv.ProcessPIDKey.Int(os.Getpid()),
		)),
	), nil
}

type otelTracerProvider struct {
	*tracesdk.TracerProvider
}

func (tp *otelTracerProvider) Start() {}

func (tp *otelTracerProvider) Stop() {
	if err := tp.TracerProvider.Shutdown(context.Background()); err != nil {
		logger.Warn("Error shutting down tracer provider", logfields.WithError(err))
	}
}

type noopTracerProvider struct {
	*lifecycle.Lifecycle
	trace.TracerProvider
}

func newNoopTracerProvider() *noopTracerProvider {
	return &noopTracerProvider{
		Lifecycle:      lifecycle.New("noopTracerProvider"),
		TracerProvider: trace.NewNoopTracerProvider(),
	}
}
