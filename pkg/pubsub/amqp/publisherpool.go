/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package amqp

import (
	"fmt"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill-amqp/v2/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"

	logfields "github.com/meridianfed/meridian/internal/pkg/log"
)

type publishFunc func(topic string, messages ...*message.Message) error

type createPublisherFunc func(cfg *amqp.Config, conn connection) (publisher, error)

// publisherPool distributes publishes over a set of publishers, each with its own
// connection and channel pool. The configured channel pool size is split evenly
// across the connections, with at most maxChannelsPerConn channels per connection.
type publisherPool struct {
	publishers []publisher
	publish    publishFunc
}

func newPublisherPool(connMgr connMgr, maxChannelsPerConn int, cfg *amqp.Config,
	createPublisher createPublisherFunc) (*publisherPool, error) {
	numPublishers := 1

	if cfg.Publish.ChannelPoolSize > 0 {
		numPublishers = cfg.Publish.ChannelPoolSize / maxChannelsPerConn

		if cfg.Publish.ChannelPoolSize%maxChannelsPerConn > 0 {
			numPublishers++
		}
	}

	pubCfg := *cfg
	pubCfg.Publish.ChannelPoolSize /= numPublishers

	pool := &publisherPool{}

	for i := 0; i < numPublishers; i++ {
		conn, err := connMgr.getConnection(false)
		if err != nil {
			return nil, fmt.Errorf("create publishers: get connection: %w", err)
		}

		pub, err := createPublisher(&pubCfg, conn)
		if err != nil {
			return nil, fmt.Errorf("create publishers: new publisher: %w", err)
		}

		pool.publishers = append(pool.publishers, pub)
	}

	logger.Info("Created publisher connections, each with its own channel pool",
		logfields.WithSize(len(pool.publishers)),
		logfields.WithAddress(extractEndpoint(pubCfg.Connection.AmqpURI)),
		logfields.WithPoolSize(pubCfg.Publish.ChannelPoolSize))

	if len(pool.publishers) == 1 {
		pool.publish = pool.publishers[0].Publish
	} else {
		lb := newRoundRobin(len(pool.publishers) - 1)

		pool.publish = func(topic string, messages ...*message.Message) error {
			i := lb.nextIndex()

			logger.Debug("Using publisher", logfields.WithIndex(i))

			return pool.publishers[i].Publish(topic, messages...)
		}
	}

	return pool, nil
}

func (p *publisherPool) Publish(topic string, messages ...*message.Message) error {
	return p.publish(topic, messages...)
}

func (p *publisherPool) Close() error {
	logger.Debug("Closing publisher pool")

	var lastErr error

	for _, pub := range p.publishers {
		if err := pub.Close(); err != nil {
			lastErr = err
		}
	}

	return lastErr
}

// roundRobin cycles through indices 0..max using a CAS to wrap around, so that
// concurrent callers never observe an index out of range.
type roundRobin struct {
	max     int
	current int32
}

func newRoundRobin(max int) *roundRobin {
	return &roundRobin{max: max}
}

func (r *roundRobin) nextIndex() int {
	for {
		i := atomic.AddInt32(&r.current, 1)

		if int(i) <= r.max {
			return int(i)
		}

		if atomic.CompareAndSwapInt32(&r.current, i, 0) {
			return 0
		}
	}
}
