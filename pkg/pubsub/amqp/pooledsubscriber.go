/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package amqp

import (
	"context"
	"fmt"
	"reflect"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/meridianfed/meridian/internal/pkg/log"
)

// pooledSubscriber fans in a pool of topic subscriptions. Messages received on any
// of the underlying subscriptions are forwarded to a single Go channel that is
// consumed by the subscriber.
type pooledSubscriber struct {
	topic   string
	msgChan chan *message.Message
	cases   []reflect.SelectCase
	logger  *log.Log
}

func newPooledSubscriber(ctx context.Context, size int, subscriber subscriber,
	topic string) (*pooledSubscriber, error) {
	p := &pooledSubscriber{
		topic:   topic,
		msgChan: make(chan *message.Message, size),
		cases:   make([]reflect.SelectCase, size),
		logger:  log.New(loggerModule, log.WithFields(logfields.WithTopic(topic))),
	}

	for i := 0; i < size; i++ {
		p.logger.Debug("Subscribing to topic...", logfields.WithIndex(i))

		msgChan, err := subscriber.Subscribe(ctx, topic)
		if err != nil {
			return nil, fmt.Errorf("subscribe to topic [%s]: %w", topic, err)
		}

		p.cases[i] = reflect.SelectCase{
			Dir:  reflect.SelectRecv,
			Chan: reflect.ValueOf(msgChan),
		}
	}

	return p, nil
}

func (s *pooledSubscriber) start() {
	go s.fanIn()
}

func (s *pooledSubscriber) stop() {
	s.logger.Info("Closing pooled subscriber")

	close(s.msgChan)
}

func (s *pooledSubscriber) fanIn() {
	s.logger.Info("Started pooled subscriber", logfields.WithSize(len(s.cases)))

	for {
		i, value, ok := reflect.Select(s.cases)
		if !ok {
			s.logger.Info("Message channel was closed. Exiting pooled subscriber.", logfields.WithIndex(i))

			return
		}

		msg := value.Interface().(*message.Message) //nolint:forcetypeassert

		s.logger.Debug("Pool subscriber got message", logfields.WithIndex(i), logfields.WithMessageID(msg.UUID))

		s.msgChan <- msg
	}
}
