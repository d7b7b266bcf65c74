/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package otelamqp

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/trustbloc/logutil-go/pkg/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	logfields "github.com/meridianfed/meridian/internal/pkg/log"
	"github.com/meridianfed/meridian/pkg/observability/tracing"
	"github.com/meridianfed/meridian/pkg/pubsub/spi"
)

var logger = log.New("otelamqp")

const messagingSystem = "rabbitmq"

type pubSub interface {
	Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error)
	SubscribeWithOpts(ctx context.Context, topic string, opts ...spi.Option) (<-chan *message.Message, error)
	Publish(topic string, messages ...*message.Message) error
	PublishWithOpts(topic string, msg *message.Message, opts ...spi.Option) error
	IsConnected() bool
	Close() error
}

// PubSub wraps a publisher/subscriber and instruments published and received
// messages with OpenTelemetry tracing data.
type PubSub struct {
	pubSub

	tracer      trace.Tracer
	propagators propagation.TextMapPropagator
}

// New returns a new instrumented publisher/subscriber.
func New(p pubSub) *PubSub {
	return &PubSub{
		pubSub:      p,
		tracer:      tracing.Tracer(tracing.SubsystemAMQP),
		propagators: otel.GetTextMapPropagator(),
	}
}

// Publish publishes the given message to the given queue.
func (p *PubSub) Publish(queue string, messages ...*message.Message) error {
	if len(messages) > 1 {
		logger.Warn("Tracing is supported for only one message at a time. No tracing will be performed.",
			logfields.WithTotal(len(messages)))

		return p.pubSub.Publish(queue, messages...)
	}

	if len(messages) == 0 {
		logger.Warn("No messages to publish.")

		return nil
	}

	msg := messages[0]

	span := p.startSpan(queue, msg, semconv.MessagingOperationPublish, trace.SpanKindProducer)

	err := p.pubSub.Publish(queue, msg)

	finishSpan(span, err)

	return err
}

// PublishWithOpts publishes the given message to the given queue with the given options.
func (p *PubSub) PublishWithOpts(queue string, msg *message.Message, opts ...spi.Option) error {
	span := p.startSpan(queue, msg, semconv.MessagingOperationPublish, trace.SpanKindProducer)

	err := p.pubSub.PublishWithOpts(queue, msg, opts...)

	finishSpan(span, err)

	return err
}

// Subscribe subscribes to the given queue.
func (p *PubSub) Subscribe(ctx context.Context, queue string) (<-chan *message.Message, error) {
	msgChan, err := p.pubSub.Subscribe(ctx, queue)
	if err != nil {
		return nil, err
	}

	subChan := make(chan *message.Message)

	go p.relay(queue, msgChan, subChan)

	return subChan, nil
}

// SubscribeWithOpts subscribes to the given queue with the given options.
func (p *PubSub) SubscribeWithOpts(ctx context.Context, queue string, opts ...spi.Option) (<-chan *message.Message, error) {
	msgChan, err := p.pubSub.SubscribeWithOpts(ctx, queue, opts...)
	if err != nil {
		return nil, err
	}

	subChan := make(chan *message.Message)

	go p.relay(queue, msgChan, subChan)

	return subChan, nil
}

// relay forwards messages from the underlying subscription to the subscriber,
// wrapping the hand-off of each message in a consumer span.
func (p *PubSub) relay(queue string, msgChan <-chan *message.Message, subChan chan *message.Message) {
	for msg := range msgChan {
		span := p.startSpan(queue, msg, semconv.MessagingOperationReceive, trace.SpanKindConsumer)

		subChan <- msg

		span.End()
	}
}

// startSpan starts a span for the given message. A span context carried in the
// message metadata becomes the parent, and the new span context is injected back
// into the metadata so that downstream consumers may continue the trace.
func (p *PubSub) startSpan(queue string, msg *message.Message, op attribute.KeyValue, kind trace.SpanKind) trace.Span {
	carrier := NewMessageCarrier(msg)
	ctx := p.propagators.Extract(context.Background(), carrier)

	var name string

	if kind == trace.SpanKindProducer {
		name = fmt.Sprintf("%s publish", queue)
	} else {
		name = fmt.Sprintf("%s receive", queue)
	}

	ctx, span := p.tracer.Start(ctx, name,
		trace.WithAttributes(
			semconv.MessagingSystem(messagingSystem),
			semconv.MessagingDestinationKindQueue,
			semconv.MessagingDestinationName(queue),
			semconv.MessagingMessagePayloadSizeBytes(len(msg.Payload)),
			op,
			tracing.MessageUUIDAttribute(msg.UUID),
		),
		trace.WithSpanKind(kind),
	)

	p.propagators.Inject(ctx, carrier)

	return span
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}

	span.End()
}

var _ propagation.TextMapCarrier = (*MessageCarrier)(nil)

// MessageCarrier injects and extracts trace context from the metadata of a Message.
type MessageCarrier struct {
	msg *message.Message
}

// NewMessageCarrier creates a new MessageCarrier.
func NewMessageCarrier(msg *message.Message) *MessageCarrier {
	return &MessageCarrier{msg: msg}
}

// Get retrieves a single value for a given key.
func (c *MessageCarrier) Get(key string) string {
	return c.msg.Metadata.Get(key)
}

// Set sets a header.
func (c *MessageCarrier) Set(key, val string) {
	c.msg.Metadata.Set(key, val)
}

// Keys returns a slice of all key identifiers in the carrier.
func (c *MessageCarrier) Keys() []string {
	if len(c.msg.Metadata) == 0 {
		return nil
	}

	keys := make([]string, 0, len(c.msg.Metadata))

	for key := range c.msg.Metadata {
		keys = append(keys, key)
	}

	return keys
}
