/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/meridianfed/meridian/pkg/pubsub/spi"
)

// MockPubSub implements a mock publisher-subscriber.
type MockPubSub struct {
	Err     error
	MsgChan chan *message.Message

	mutex     sync.Mutex
	lastTopic string
	lastDelay time.Duration
}

// NewPubSub returns a mock publisher-subscriber.
func NewPubSub() *MockPubSub {
	return &MockPubSub{
		MsgChan: make(chan *message.Message),
	}
}

// WithError injects an error into the mock publisher-subscriber.
func (m *MockPubSub) WithError(err error) *MockPubSub {
	m.Err = err

	return m
}

// Subscribe subscribes to the given topic.
func (m *MockPubSub) Subscribe(_ context.Context, _ string) (<-chan *message.Message, error) {
	if m.Err != nil {
		return nil, m.Err
	}

	return m.MsgChan, nil
}

// SubscribeWithOpts subscribes to the given topic.
func (m *MockPubSub) SubscribeWithOpts(ctx context.Context, topic string, _ ...spi.Option) (<-chan *message.Message, error) {
	return m.Subscribe(ctx, topic)
}

// Publish publishes the messages to the subscribers.
func (m *MockPubSub) Publish(topic string, messages ...*message.Message) error {
	if m.Err != nil {
		return m.Err
	}

	m.mutex.Lock()
	m.lastTopic = topic
	m.mutex.Unlock()

	for _, msg := range messages {
		m.MsgChan <- msg
	}

	return nil
}

// PublishWithOpts publishes the message to the subscribers and records the
// delivery delay (if any) for later inspection.
func (m *MockPubSub) PublishWithOpts(topic string, msg *message.Message, opts ...spi.Option) error {
	options := &spi.Options{}

	for _, opt := range opts {
		opt(options)
	}

	m.mutex.Lock()
	m.lastDelay = options.DeliveryDelay
	m.mutex.Unlock()

	return m.Publish(topic, msg)
}

// LastPublished returns the topic and delivery delay of the last published message.
func (m *MockPubSub) LastPublished() (string, time.Duration) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return m.lastTopic, m.lastDelay
}

// Close closes the subscriber channels.
func (m *MockPubSub) Close() error {
	if m.Err != nil {
		return m.Err
	}

	close(m.MsgChan)

	return nil
}
