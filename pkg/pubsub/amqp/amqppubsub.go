/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package amqp

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill-amqp/v2/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/cenkalti/backoff/v4"
	samqp "github.com/rabbitmq/amqp091-go"
	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/meridianfed/meridian/internal/pkg/log"
	merrors "github.com/meridianfed/meridian/pkg/errors"
	"github.com/meridianfed/meridian/pkg/lifecycle"
	"github.com/meridianfed/meridian/pkg/pubsub/spi"
	"github.com/meridianfed/meridian/pkg/pubsub/wmlogger"
)

const loggerModule = "pubsub"

var logger = log.New(loggerModule)

const (
	defaultMaxConnectRetries     = 25
	defaultMaxConnectInterval    = 5 * time.Second
	defaultMaxConnectElapsedTime = 3 * time.Minute
	defaultMaxConnectionChannels = 1000

	defaultMaxRedeliveryAttempts     = 10
	defaultRedeliveryMultiplier      = 1.5
	defaultRedeliveryInitialInterval = 2 * time.Second
	defaultMaxRedeliveryInterval     = 30 * time.Second

	exchange           = "meridian"
	redeliveryQueue    = "meridian.redelivery"
	redeliveryExchange = "meridian.redelivery"
	waitExchange       = "meridian.wait"
	waitQueue          = "meridian.wait"
	directExchangeType = "direct"

	expiredReason = "expired"

	metadataDeadLetterExchange   = "x-dead-letter-exchange"
	metadataDeadLetterRoutingKey = "x-dead-letter-routing-key"
	metadataDeath                = "x-death"
	metadataFirstDeathQueue      = "x-first-death-queue"
	metadataFirstDeathReason     = "x-first-death-reason"
	metadataRedeliveryCount      = "meridian-redelivery-count"
	metadataQueue                = "meridian-queue"
	metadataExpiration           = "expiration"
)

// Config holds the configuration for the publisher/subscriber.
type Config struct {
	URI                       string
	MaxConnectRetries         uint64
	MaxConnectionChannels     int
	PublisherChannelPoolSize  int
	PublisherConfirmDelivery  bool
	MaxRedeliveryAttempts     int
	RedeliveryMultiplier      float64
	RedeliveryInitialInterval time.Duration
	MaxRedeliveryInterval     time.Duration
}

type closeable interface {
	Close() error
}

type subscriber interface {
	closeable
	Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error)
}

type initializingSubscriber interface {
	subscriber
	SubscribeInitialize(topic string) error
}

type publisher interface {
	closeable
	Publish(topic string, messages ...*message.Message) error
}

type subscriberFactory = func() (initializingSubscriber, error)

type publisherFactory = func() (publisher, error)

// PubSub implements a publisher/subscriber that connects to an AMQP-compatible message queue.
type PubSub struct {
	*lifecycle.Lifecycle
	Config

	amqpConfig                  amqp.Config
	amqpRedeliveryConfig        amqp.Config
	amqpWaitConfig              amqp.Config
	connMgr                     connMgr
	subscriber                  subscriber
	publisher                   publisher
	redeliverySubscriber        subscriber
	waitSubscriber              initializingSubscriber
	waitPublisher               publisher
	pools                       []*pooledSubscriber
	mutex                       sync.RWMutex
	subscriberFactory           subscriberFactory
	createPublisher             publisherFactory
	redeliverySubscriberFactory subscriberFactory
	waitSubscriberFactory       subscriberFactory
	createWaitPublisher         publisherFactory
	redeliveryChan              <-chan *message.Message
}

// New returns a new AMQP publisher/subscriber.
func New(cfg Config) *PubSub {
	cfg = initConfig(cfg)

	p := &PubSub{
		Config:               cfg,
		amqpConfig:           newQueueConfig(cfg),
		amqpRedeliveryConfig: newRedeliveryQueueConfig(cfg),
		amqpWaitConfig:       newWaitQueueConfig(cfg),
		connMgr:              newConnectionMgr(amqp.ConnectionConfig{AmqpURI: cfg.URI}, cfg.MaxConnectionChannels),
	}

	p.Lifecycle = lifecycle.New("amqp",
		lifecycle.WithStart(p.start),
		lifecycle.WithStop(p.stop))

	p.subscriberFactory = func() (initializingSubscriber, error) {
		conn, err := p.connMgr.getConnection(false)
		if err != nil {
			return nil, fmt.Errorf("get connection: %w", err)
		}

		return amqp.NewSubscriberWithConnection(p.amqpConfig, wmlogger.New(), conn.wrapper())
	}

	p.createPublisher = func() (publisher, error) {
		return newPublisherPool(p.connMgr, cfg.MaxConnectionChannels, &p.amqpConfig, createPublisherWithConnection)
	}

	p.redeliverySubscriberFactory = func() (initializingSubscriber, error) {
		conn, err := p.connMgr.getConnection(true)
		if err != nil {
			return nil, fmt.Errorf("get connection: %w", err)
		}

		return amqp.NewSubscriberWithConnection(p.amqpRedeliveryConfig, wmlogger.New(), conn.wrapper())
	}

	p.waitSubscriberFactory = func() (initializingSubscriber, error) {
		conn, err := p.connMgr.getConnection(true)
		if err != nil {
			return nil, fmt.Errorf("get connection: %w", err)
		}

		return amqp.NewSubscriberWithConnection(p.amqpWaitConfig, wmlogger.New(), conn.wrapper())
	}

	p.createWaitPublisher = func() (publisher, error) {
		conn, err := p.connMgr.getConnection(true)
		if err != nil {
			return nil, fmt.Errorf("get connection: %w", err)
		}

		return amqp.NewPublisherWithConnection(p.amqpWaitConfig, wmlogger.New(), conn.wrapper())
	}

	// Start the service immediately.
	p.Start()

	return p
}

func createPublisherWithConnection(cfg *amqp.Config, conn connection) (publisher, error) {
	return amqp.NewPublisherWithConnection(*cfg, wmlogger.New(), conn.wrapper())
}

// Subscribe subscribes to a topic and returns the Go channel over which messages
// are sent. The returned channel will be closed when Close() is called on this struct.
func (p *PubSub) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return p.SubscribeWithOpts(ctx, topic)
}

// SubscribeWithOpts subscribes to a topic using the given options, and returns the Go channel over which messages
// are sent. The returned channel will be closed when Close() is called on this struct.
func (p *PubSub) SubscribeWithOpts(ctx context.Context, topic string,
	opts ...spi.Option) (<-chan *message.Message, error) {
	if p.State() != lifecycle.StateStarted {
		return nil, lifecycle.ErrNotStarted
	}

	options := &spi.Options{}

	for _, opt := range opts {
		opt(options)
	}

	if options.PoolSize == 0 {
		logger.Debug("Subscribing to topic", logfields.WithTopic(topic))

		return p.subscriber.Subscribe(ctx, topic)
	}

	logger.Debug("Creating subscriber pool for topic",
		logfields.WithTopic(topic), logfields.WithPoolSize(options.PoolSize))

	pool, err := newPooledSubscriber(ctx, options.PoolSize, p.subscriber, topic)
	if err != nil {
		return nil, fmt.Errorf("subscriber pool: %w", err)
	}

	p.mutex.Lock()
	p.pools = append(p.pools, pool)
	p.mutex.Unlock()

	pool.start()

	return pool.msgChan, nil
}

// Publish publishes the given messages to the given topic.
func (p *PubSub) Publish(topic string, messages ...*message.Message) error {
	if p.State() != lifecycle.StateStarted {
		return lifecycle.ErrNotStarted
	}

	logger.Debug("Publishing messages to topic", logfields.WithTopic(topic))

	if err := p.publisher.Publish(topic, messages...); err != nil {
		return merrors.NewTransient(err)
	}

	return nil
}

// PublishWithOpts publishes the given message to the given topic using the given options.
// If a delivery delay is specified then the message is first posted to the wait queue with
// an expiration. When the message expires it is moved to the redelivery queue and from there
// it is delivered to the target queue.
func (p *PubSub) PublishWithOpts(topic string, msg *message.Message, opts ...spi.Option) error {
	if p.State() != lifecycle.StateStarted {
		return lifecycle.ErrNotStarted
	}

	options := &spi.Options{}

	for _, opt := range opts {
		opt(options)
	}

	if options.DeliveryDelay == 0 {
		logger.Debug("Publishing message to topic", logfields.WithTopic(topic))

		if err := p.publisher.Publish(topic, msg); err != nil {
			return merrors.NewTransient(err)
		}

		return nil
	}

	logger.Debug("Publishing message to wait queue",
		logfields.WithMessageID(msg.UUID), logfields.WithTopic(topic),
		logfields.WithDeliveryDelay(options.DeliveryDelay))

	err := p.waitPublisher.Publish(waitQueue,
		newMessage(msg,
			withQueue(topic),
			withExpiration(options.DeliveryDelay),
		),
	)
	if err != nil {
		return merrors.NewTransient(fmt.Errorf("publish message to queue [%s]: %w", waitQueue, err))
	}

	return nil
}

// IsConnected returns true if all connections to the AMQP server are established.
func (p *PubSub) IsConnected() bool {
	return p.connMgr.isConnected()
}

// Close stops the publisher/subscriber.
func (p *PubSub) Close() error {
	p.Stop()

	return nil
}

func (p *PubSub) stop() {
	logger.Debug("Closing publishers...")

	if err := p.publisher.Close(); err != nil {
		logger.Warn("Error closing publisher", logfields.WithError(err))
	}

	if err := p.waitPublisher.Close(); err != nil {
		logger.Warn("Error closing wait publisher", logfields.WithError(err))
	}

	logger.Debug("Closing subscribers...")

	if err := p.subscriber.Close(); err != nil {
		logger.Warn("Error closing subscriber", logfields.WithError(err))
	}

	if err := p.redeliverySubscriber.Close(); err != nil {
		logger.Warn("Error closing redelivery subscriber", logfields.WithError(err))
	}

	if err := p.waitSubscriber.Close(); err != nil {
		logger.Warn("Error closing wait subscriber", logfields.WithError(err))
	}

	logger.Debug("Closing connections...")

	if err := p.connMgr.close(); err != nil {
		logger.Warn("Error closing connections", logfields.WithError(err))
	}

	logger.Debug("Closing pools...")

	p.mutex.RLock()
	defer p.mutex.RUnlock()

	for _, s := range p.pools {
		s.stop()
	}
}

func (p *PubSub) start() {
	logger.Info("Connecting to message queue",
		logfields.WithAddress(extractEndpoint(p.amqpConfig.Connection.AmqpURI)))

	maxRetries := p.MaxConnectRetries
	if maxRetries == 0 {
		maxRetries = defaultMaxConnectRetries
	}

	err := backoff.RetryNotify(
		func() error {
			return p.connect()
		},
		backoff.WithMaxRetries(newConnectBackOff(), maxRetries),
		func(err error, duration time.Duration) {
			logger.Debug("Error connecting to message queue. Retrying...",
				logfields.WithAddress(extractEndpoint(p.amqpConfig.Connection.AmqpURI)),
				logfields.WithBackoff(duration), logfields.WithError(err))
		},
	)
	if err != nil {
		panic(fmt.Sprintf("Unable to connect to message queue after %d attempts", maxRetries))
	}

	retryChan, err := p.redeliverySubscriber.Subscribe(context.Background(), redeliveryQueue)
	if err != nil {
		panic(fmt.Sprintf("Unable to subscribe to queue [%s]: %s", redeliveryQueue, err))
	}

	p.redeliveryChan = retryChan

	// Initialize the wait queue so that it is created. This queue contains all messages that
	// need to wait for redelivery. There are actually no subscribers to this queue. Messages in
	// this queue have an expiration time, so when the message expires, it is automatically placed
	// back on the redelivery queue.
	err = p.waitSubscriber.SubscribeInitialize(waitQueue)
	if err != nil {
		panic(fmt.Sprintf("Unable to initialize queue [%s]: %s", waitQueue, err))
	}

	go p.processRedeliveryQueue()

	logger.Info("Successfully connected to message queue",
		logfields.WithAddress(extractEndpoint(p.amqpConfig.Connection.AmqpURI)))
}

func (p *PubSub) connect() error {
	pub, err := p.createPublisher()
	if err != nil {
		return err
	}

	p.subscriber = newSubscriberMgr(p.MaxConnectionChannels, p.subscriberFactory)
	p.publisher = pub

	p.redeliverySubscriber = newSubscriberMgr(p.MaxConnectionChannels, p.redeliverySubscriberFactory)

	pub, err = p.createWaitPublisher()
	if err != nil {
		return err
	}

	p.waitSubscriber = newSubscriberMgr(p.MaxConnectionChannels, p.waitSubscriberFactory)
	p.waitPublisher = pub

	return nil
}

/*
processRedeliveryQueue processes messages from the 'redelivery' queue.
The 'redelivery' queue is configured as the 'dead-letter-queue' for all queues. When a message is rejected by a
subscriber, it is automatically sent to the 'redelivery' queue. The first time a message is rejected, the redelivery
handler immediately redelivers the message to the original destination queue. If the message is rejected again, it is
posted to a 'wait' queue and is given an expiration. The 'wait' queue has no subscribers, so the message will sit there
until it expires. The 'redelivery' queue is also configured as the 'dead-letter-queue' for the 'wait' queue, so when the
message expires, it is automatically sent back to the 'redelivery' queue and this handler processes the message again.
If the message metadata, 'reason', is set to "expired" then it is posted to the original destination queue, otherwise
(if reason is "rejected") it is posted back to the 'wait' queue with a bigger expiration. This process repeats until the
maximum number of redelivery attempts has been reached, at which point redelivery for the message is aborted.
*/
func (p *PubSub) processRedeliveryQueue() {
	logger.Info("Starting message redelivery listener")

	for msg := range p.redeliveryChan {
		p.handleRedelivery(msg)
	}

	logger.Info("Message redelivery listener stopped")
}

func (p *PubSub) handleRedelivery(msg *message.Message) {
	logger.Debug("Got new message for redelivery", logfields.WithMessageID(msg.UUID),
		logfields.WithMetadata(msg.Metadata), logfields.WithData(msg.Payload))

	queue, err := getQueue(msg)
	if err != nil {
		logger.Warn("Error resolving queue for message. Message will not be redelivered.",
			logfields.WithMessageID(msg.UUID), logfields.WithError(err))

		msg.Ack()

		return
	}

	redeliveryAttempts := getRedeliveryAttempts(msg)

	if redeliveryAttempts < p.MaxRedeliveryAttempts {
		err = p.redeliver(msg, queue, redeliveryAttempts)
		if err != nil {
			logger.Error("Error redelivering message. The message will be nacked and retried.",
				logfields.WithMessageID(msg.UUID), logfields.WithError(err))

			// Nack the message so that it may be retried.
			msg.Nack()

			return
		}
	} else {
		logger.Error("Message will not be redelivered since the maximum number of redelivery attempts has been reached",
			logfields.WithMessageID(msg.UUID), logfields.WithTopic(queue),
			logfields.WithAttempt(redeliveryAttempts))
	}

	msg.Ack()
}

func (p *PubSub) redeliver(msg *message.Message, queue string, redeliveryAttempts int) error {
	// Publish the message immediately on the first attempt and after every expiration.
	if redeliveryAttempts == 0 || msg.Metadata[metadataFirstDeathReason] == expiredReason {
		redeliveryAttempts++

		err := p.publisher.Publish(queue,
			newMessage(msg,
				withQueue(queue),
				withRedeliveryAttempts(redeliveryAttempts),
			),
		)
		if err != nil {
			return fmt.Errorf("publish message to queue [%s]: %w", queue, err)
		}

		logger.Info("Posted message for redelivery", logfields.WithMessageID(msg.UUID),
			logfields.WithTopic(queue), logfields.WithAttempt(redeliveryAttempts))

		return nil
	}

	expiration := p.getRedeliveryInterval(redeliveryAttempts)

	// Post the message to the wait queue with the given expiration so that it isn't immediately redelivered.
	err := p.waitPublisher.Publish(waitQueue,
		newMessage(msg,
			withQueue(queue),
			withExpiration(expiration),
		),
	)
	if err != nil {
		return fmt.Errorf("publish message to queue [%s]: %w", waitQueue, err)
	}

	logger.Info("Posted message to wait queue for redelivery", logfields.WithMessageID(msg.UUID),
		logfields.WithExpiration(expiration), logfields.WithAttempt(redeliveryAttempts))

	return nil
}

func (p *PubSub) getRedeliveryInterval(attempts int) time.Duration {
	if attempts == 0 {
		return 0
	}

	if attempts == 1 {
		return p.RedeliveryInitialInterval
	}

	interval := time.Duration(float64(p.RedeliveryInitialInterval) * math.Pow(p.RedeliveryMultiplier, float64(attempts-1)))

	if interval > p.MaxRedeliveryInterval {
		interval = p.MaxRedeliveryInterval
	}

	return interval
}

func newConnectBackOff() backoff.BackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     backoff.DefaultInitialInterval,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         defaultMaxConnectInterval,
		MaxElapsedTime:      defaultMaxConnectElapsedTime,
		Clock:               backoff.SystemClock,
	}

	b.Reset()

	return b
}

type subscriberInfo struct {
	subscriber    initializingSubscriber
	subscriptions int
}

type subscriberConnectionMgr struct {
	createSubscriber  subscriberFactory
	mutex             sync.RWMutex
	subscribers       []*subscriberInfo
	current           *subscriberInfo
	subscriptionLimit int
}

func newSubscriberMgr(limit int, factory subscriberFactory) *subscriberConnectionMgr {
	return &subscriberConnectionMgr{
		subscriptionLimit: limit,
		createSubscriber:  factory,
	}
}

func (m *subscriberConnectionMgr) Close() error {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	logger.Info("Closing subscribers", logfields.WithSize(len(m.subscribers)))

	for _, s := range m.subscribers {
		if err := s.subscriber.Close(); err != nil {
			logger.Warn("Error closing subscriber", logfields.WithError(err))
		}
	}

	return nil
}

func (m *subscriberConnectionMgr) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	s, err := m.get()
	if err != nil {
		return nil, err
	}

	return s.Subscribe(ctx, topic)
}

func (m *subscriberConnectionMgr) SubscribeInitialize(topic string) error {
	s, err := m.get()
	if err != nil {
		return err
	}

	return s.SubscribeInitialize(topic)
}

func (m *subscriberConnectionMgr) get() (initializingSubscriber, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.current == nil || m.current.subscriptions >= m.subscriptionLimit {
		logger.Info("Creating new subscriber")

		s, err := m.createSubscriber()
		if err != nil {
			return nil, err
		}

		newCurrent := &subscriberInfo{subscriber: s}

		m.subscribers = append(m.subscribers, newCurrent)
		m.current = newCurrent

		logger.Info("Created new subscriber", logfields.WithSize(len(m.subscribers)))
	}

	m.current.subscriptions++

	logger.Debug("Resolved subscriber", logfields.WithSize(len(m.subscribers)),
		logfields.WithTotal(m.current.subscriptions))

	return m.current.subscriber, nil
}

// extractEndpoint returns the endpoint of the AMQP URL, i.e. everything after @.
func extractEndpoint(amqpURL string) string {
	i := strings.Index(amqpURL, "://")
	if i < 0 {
		return ""
	}

	path := amqpURL[i+3:]

	j := strings.Index(path, "@")
	if j < 0 {
		return path
	}

	return path[j+1:]
}

func getRedeliveryAttempts(msg *message.Message) int {
	var count int

	countValue, ok := msg.Metadata[metadataRedeliveryCount]
	if ok {
		c, err := strconv.ParseInt(countValue, 10, 0)
		if err != nil {
			logger.Warn("Invalid redelivery count in message metadata. Redelivery count will be set to 0.",
				logfields.WithMessageID(msg.UUID), logfields.WithValue(countValue), logfields.WithError(err))
		} else {
			count = int(c)
		}
	}

	return count
}

func getQueue(msg *message.Message) (string, error) {
	queue, ok := msg.Metadata[metadataQueue]
	if ok {
		return queue, nil
	}

	queue, ok = msg.Metadata[metadataFirstDeathQueue]
	if ok {
		return queue, nil
	}

	return "", fmt.Errorf("metadata not found: %s", metadataFirstDeathQueue)
}

type messageOptions struct {
	queue              string
	expiration         time.Duration
	redeliveryAttempts int
}

type messageOpt func(*messageOptions)

func withQueue(queue string) messageOpt {
	return func(options *messageOptions) {
		options.queue = queue
	}
}

func withExpiration(expiration time.Duration) messageOpt {
	return func(options *messageOptions) {
		options.expiration = expiration
	}
}

func withRedeliveryAttempts(attempts int) messageOpt {
	return func(options *messageOptions) {
		options.redeliveryAttempts = attempts
	}
}

func newMessage(msg *message.Message, opts ...messageOpt) *message.Message {
	options := &messageOptions{}

	for _, opt := range opts {
		opt(options)
	}

	newMsg := msg.Copy()

	// The metadata containing x-death info must be deleted since an error occurs when posting with this metadata.
	delete(newMsg.Metadata, metadataDeath)

	newMsg.Metadata.Set(metadataQueue, options.queue)

	if options.expiration > 0 {
		newMsg.Metadata.Set(metadataExpiration, options.expiration.String())
	} else {
		delete(newMsg.Metadata, metadataExpiration)
	}

	if options.redeliveryAttempts > 0 {
		newMsg.Metadata.Set(metadataRedeliveryCount, strconv.FormatInt(int64(options.redeliveryAttempts), 10))
	}

	return newMsg
}

func newQueueConfig(cfg Config) amqp.Config {
	queueConfig := newDefaultQueueConfig(cfg)
	queueConfig.Exchange = newAMQPExchangeConfig(exchange)
	queueConfig.Queue = newAMQPQueueConfig(samqp.Table{
		metadataDeadLetterRoutingKey: redeliveryQueue,
		metadataDeadLetterExchange:   redeliveryExchange,
	})

	return queueConfig
}

func newRedeliveryQueueConfig(cfg Config) amqp.Config {
	queueConfig := newDefaultQueueConfig(cfg)
	queueConfig.Exchange = newAMQPExchangeConfig(redeliveryExchange)
	queueConfig.Consume = amqp.ConsumeConfig{
		Qos:             amqp.QosConfig{PrefetchCount: 1},
		NoRequeueOnNack: false, // Ensure that the message is re-queued if the server goes down before it is Acked.
	}

	return queueConfig
}

func newWaitQueueConfig(cfg Config) amqp.Config {
	queueConfig := newDefaultQueueConfig(cfg)
	queueConfig.Exchange = newAMQPExchangeConfig(waitExchange)
	queueConfig.Queue = newAMQPQueueConfig(samqp.Table{
		metadataDeadLetterRoutingKey: redeliveryQueue,
		metadataDeadLetterExchange:   redeliveryExchange,
	})

	return queueConfig
}

func newDefaultQueueConfig(cfg Config) amqp.Config {
	return amqp.Config{
		Connection: amqp.ConnectionConfig{AmqpURI: cfg.URI},
		Marshaler:  &DefaultMarshaler{},
		Queue:      newAMQPQueueConfig(nil),
		QueueBind: amqp.QueueBindConfig{
			GenerateRoutingKey: func(queue string) string { return queue },
		},
		Publish: amqp.PublishConfig{
			GenerateRoutingKey: func(queue string) string { return queue },
			ChannelPoolSize:    cfg.PublisherChannelPoolSize,
			ConfirmDelivery:    cfg.PublisherConfirmDelivery,
		},
		Consume: amqp.ConsumeConfig{
			Qos:             amqp.QosConfig{PrefetchCount: 1},
			NoRequeueOnNack: true,
		},
		TopologyBuilder: &amqp.DefaultTopologyBuilder{},
	}
}

func newAMQPExchangeConfig(exchange string) amqp.ExchangeConfig {
	return amqp.ExchangeConfig{
		GenerateName: func(topic string) string {
			return exchange
		},
		Type:    directExchangeType,
		Durable: true,
	}
}

func newAMQPQueueConfig(args samqp.Table) amqp.QueueConfig {
	return amqp.QueueConfig{
		GenerateName: amqp.GenerateQueueNameTopicName,
		Durable:      true,
		Arguments:    args,
	}
}

func initConfig(cfg Config) Config {
	if cfg.MaxConnectionChannels == 0 {
		cfg.MaxConnectionChannels = defaultMaxConnectionChannels
	}

	if cfg.MaxRedeliveryAttempts == 0 {
		cfg.MaxRedeliveryAttempts = defaultMaxRedeliveryAttempts
	}

	if cfg.RedeliveryMultiplier == 0 {
		cfg.RedeliveryMultiplier = defaultRedeliveryMultiplier
	}

	if cfg.RedeliveryInitialInterval == 0 {
		cfg.RedeliveryInitialInterval = defaultRedeliveryInitialInterval
	}

	if cfg.MaxRedeliveryInterval == 0 {
		cfg.MaxRedeliveryInterval = defaultMaxRedeliveryInterval
	}

	return cfg
}
