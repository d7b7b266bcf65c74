/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package inbox implements the server side of activity delivery. Activities
// posted to the inbox endpoint are bridged to a message queue and dispatched
// to the handler registered for the most specific activity type. Duplicate
// deliveries of an activity are collapsed using an idempotence key in the
// key-value store.
package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/message/router/plugin"
	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/meridianfed/meridian/internal/pkg/log"
	merrors "github.com/meridianfed/meridian/pkg/errors"
	"github.com/meridianfed/meridian/pkg/lifecycle"
	"github.com/meridianfed/meridian/pkg/pubsub"
	"github.com/meridianfed/meridian/pkg/pubsub/redelivery"
	pubsubspi "github.com/meridianfed/meridian/pkg/pubsub/spi"
	"github.com/meridianfed/meridian/pkg/pubsub/wmlogger"
	"github.com/meridianfed/meridian/pkg/restapi/common"
	"github.com/meridianfed/meridian/pkg/service/inbox/httpsubscriber"
	service "github.com/meridianfed/meridian/pkg/service/spi"
	store "github.com/meridianfed/meridian/pkg/store/spi"
	"github.com/meridianfed/meridian/pkg/vocab"
)

const loggerModule = "activitypub_service"

// Activities are remembered for at least this long in order to collapse
// duplicate deliveries.
const minIdempotenceTTL = 7 * 24 * time.Hour

type pubSub interface {
	Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error)
	Publish(topic string, messages ...*message.Message) error
	PublishWithOpts(topic string, msg *message.Message, opts ...pubsubspi.Option) error
	Close() error
}

type signatureVerifier interface {
	VerifyRequest(req *http.Request) (*url.URL, error)
}

// Config holds configuration parameters for the Inbox.
type Config struct {
	// ServiceEndpoint is the path of the HTTP endpoint to which activities are posted.
	ServiceEndpoint string

	// ServiceIRI is the IRI of the inbox owner. It identifies the inbox for
	// the purpose of collapsing duplicate deliveries.
	ServiceIRI *url.URL

	Topic      string
	BufferSize int

	// SkipVerification disables HTTP signature verification of incoming requests.
	SkipVerification bool

	// IdempotenceTTL is the time that an activity is remembered for the
	// purpose of collapsing duplicate deliveries. Values below one week are
	// raised to one week.
	IdempotenceTTL time.Duration

	// RetryPolicy is the redelivery policy for activities whose handler
	// returned a transient error. If nil then messages are nacked and
	// redelivery is left to the message broker.
	RetryPolicy *redelivery.Policy
}

// Inbox implements the ActivityPub inbox.
type Inbox struct {
	*Config
	*lifecycle.Lifecycle

	router         *message.Router
	httpSubscriber *httpsubscriber.Subscriber
	msgChannel     <-chan *message.Message
	registry       *service.Registry
	onError        service.ErrorHandlerFunc
	store          store.Store
	storePrefix    store.Key
	pubSub         pubSub
	redeliverer    *redelivery.Service
	jsonUnmarshal  func(data []byte, v interface{}) error
	logger         *log.Log
}

// Option sets an option on the inbox.
type Option func(*Inbox)

// WithErrorHandler sets the handler that is notified of activity handler
// failures. The default handler only logs the error.
func WithErrorHandler(handler service.ErrorHandlerFunc) Option {
	return func(h *Inbox) {
		h.onError = handler
	}
}

// WithStorePrefix sets the namespace under which idempotence keys are stored.
func WithStorePrefix(prefix store.Key) Option {
	return func(h *Inbox) {
		h.storePrefix = prefix
	}
}

// New returns a new ActivityPub inbox.
func New(cfg *Config, s store.Store, pubSub pubSub, registry *service.Registry,
	sigVerifier signatureVerifier, opts ...Option) (*Inbox, error) {
	if cfg.IdempotenceTTL < minIdempotenceTTL {
		cfg.IdempotenceTTL = minIdempotenceTTL
	}

	logger := log.New(loggerModule, log.WithFields(logfields.WithServiceEndpoint(cfg.ServiceEndpoint)))

	h := &Inbox{
		Config:        cfg,
		registry:      registry,
		store:         s,
		storePrefix:   store.DefaultPrefix,
		pubSub:        pubSub,
		jsonUnmarshal: json.Unmarshal,
		logger:        logger,
	}

	h.onError = func(activity *vocab.ActivityType, err error) {
		logger.Warn("Error handling activity", logfields.WithActivityID(activity.ID()), log.WithError(err))
	}

	for _, opt := range opts {
		opt(h)
	}

	if cfg.RetryPolicy != nil {
		h.redeliverer = redelivery.NewService(cfg.ServiceEndpoint, cfg.RetryPolicy, pubSub)
	}

	h.Lifecycle = lifecycle.New(cfg.ServiceEndpoint,
		lifecycle.WithStart(h.start),
		lifecycle.WithStop(h.stop),
	)

	msgChan, err := pubSub.Subscribe(context.Background(), cfg.Topic)
	if err != nil {
		return nil, fmt.Errorf("subscribe to topic [%s]: %w", cfg.Topic, err)
	}

	h.httpSubscriber = httpsubscriber.New(
		&httpsubscriber.Config{
			ServiceEndpoint:  cfg.ServiceEndpoint,
			BufferSize:       cfg.BufferSize,
			SkipVerification: cfg.SkipVerification,
		},
		sigVerifier,
	)

	router, err := message.NewRouter(message.RouterConfig{}, wmlogger.New())
	if err != nil {
		return nil, fmt.Errorf("create router: %w", err)
	}

	router.AddMiddleware(middleware.Recoverer, middleware.CorrelationID)

	router.AddPlugin(plugin.SignalsHandler)

	router.AddHandler(
		cfg.ServiceEndpoint, cfg.ServiceEndpoint,
		h.httpSubscriber, cfg.Topic, pubSub,
		func(msg *message.Message) ([]*message.Message, error) {
			// Simply forward the message.
			return message.Messages{msg}, nil
		},
	)

	h.router = router
	h.msgChannel = msgChan

	return h, nil
}

// HTTPHandler returns the HTTP handler which is invoked by the HTTP server.
// This handler must be registered with an HTTP server.
func (h *Inbox) HTTPHandler() common.HTTPHandler {
	return h.httpSubscriber
}

func (h *Inbox) start() {
	// Start the router
	go h.route()

	// Start the message listener
	go h.listen()

	// HTTP server needs to be started after router is ready.
	<-h.router.Running()
}

func (h *Inbox) stop() {
	if err := h.router.Close(); err != nil {
		h.logger.Warn("Error closing router", log.WithError(err))
	} else {
		h.logger.Debug("Closed router")
	}
}

func (h *Inbox) route() {
	h.logger.Debug("Starting router")

	if err := h.router.Run(context.Background()); err != nil {
		// This happens on startup so the best thing to do is to panic
		panic(err)
	}

	h.logger.Debug("Router stopped")
}

func (h *Inbox) listen() {
	h.logger.Debug("Starting message listener")

	for msg := range h.msgChannel {
		h.logger.Debug("Got new message", logfields.WithMessageID(msg.UUID), logfields.WithData(msg.Payload))

		h.handle(msg)
	}

	h.logger.Debug("Message listener stopped")
}

func (h *Inbox) handle(msg *message.Message) {
	ctx := pubsub.ContextFromMessage(msg)

	activity := &vocab.ActivityType{}

	if err := h.jsonUnmarshal(msg.Payload, activity); err != nil {
		h.logger.Errorc(ctx, "Error unmarshalling activity message. Message will be dropped.",
			logfields.WithMessageID(msg.UUID), log.WithError(err))

		// Redelivery of a corrupt message would fail the same way.
		msg.Ack()

		return
	}

	h.handleActivity(ctx, msg, activity)
}

func (h *Inbox) handleActivity(ctx context.Context, msg *message.Message, activity *vocab.ActivityType) {
	key := store.ForInboxIdempotence(h.storePrefix, h.inboxID(msg), activity.ID().String())

	inserted, err := h.store.CompareAndSwap(key, nil, []byte(msg.UUID), store.WithTTL(h.IdempotenceTTL))
	if err != nil {
		h.logger.Errorc(ctx, "Error storing idempotence key for activity",
			logfields.WithActivityID(activity.ID()), logfields.WithMessageID(msg.UUID), log.WithError(err))

		msg.Nack()

		return
	}

	if !inserted {
		h.logger.Infoc(ctx, "Ignoring duplicate activity",
			logfields.WithActivityID(activity.ID()), logfields.WithMessageID(msg.UUID))

		msg.Ack()

		return
	}

	err = h.dispatch(ctx, activity)
	if err == nil {
		h.logger.Debugc(ctx, "Successfully handled activity",
			logfields.WithActivityID(activity.ID()), logfields.WithMessageID(msg.UUID))

		msg.Ack()

		return
	}

	h.onError(activity, err)

	if !merrors.IsTransient(err) {
		h.logger.Warnc(ctx, "Persistent error handling activity. Activity will be dropped.",
			logfields.WithActivityID(activity.ID()), logfields.WithMessageID(msg.UUID), log.WithError(err))

		msg.Ack()

		return
	}

	// Remove the idempotence key so that the redelivered activity is not
	// treated as a duplicate.
	if err := h.store.Delete(key); err != nil {
		h.logger.Errorc(ctx, "Error deleting idempotence key for activity",
			logfields.WithActivityID(activity.ID()), log.WithError(err))
	}

	h.redeliver(ctx, msg, activity, err)
}

// inboxID identifies the inbox for the purpose of duplicate detection. The
// same activity delivered to two different inboxes of this service (e.g. the
// inboxes of two local actors) is processed once per inbox, so the path of
// the receiving endpoint is included when it is known.
func (h *Inbox) inboxID(msg *message.Message) string {
	if path := msg.Metadata[httpsubscriber.InboxPathKey]; path != "" {
		return h.ServiceIRI.String() + path
	}

	return h.ServiceIRI.String()
}

func (h *Inbox) dispatch(ctx context.Context, activity *vocab.ActivityType) error {
	handler, matchedType, ok := h.registry.HandlerFor(activity.Type().Types()...)
	if !ok {
		h.logger.Infoc(ctx, "No handler registered for activity type. Activity will be ignored.",
			logfields.WithActivityType(activity.Type().String()), logfields.WithActivityID(activity.ID()))

		return nil
	}

	h.logger.Debugc(ctx, "Dispatching activity to handler",
		logfields.WithActivityType(string(matchedType)), logfields.WithActivityID(activity.ID()))

	return handler(ctx, activity)
}

func (h *Inbox) redeliver(ctx context.Context, msg *message.Message, activity *vocab.ActivityType, handlerErr error) {
	if h.redeliverer == nil {
		h.logger.Warnc(ctx, "Transient error handling activity. Message will be nacked.",
			logfields.WithActivityID(activity.ID()), logfields.WithMessageID(msg.UUID), log.WithError(handlerErr))

		msg.Nack()

		return
	}

	attempt, err := h.redeliverer.Redeliver(h.Topic, msg)
	if err == nil {
		h.logger.Infoc(ctx, "Scheduled activity for redelivery",
			logfields.WithActivityID(activity.ID()), logfields.WithMessageID(msg.UUID), logfields.WithAttempt(attempt))

		msg.Ack()

		return
	}

	if errors.Is(err, redelivery.ErrMaxAttemptsReached) {
		h.logger.Errorc(ctx, "Unable to redeliver message. Posting activity to the undeliverable topic.",
			logfields.WithActivityID(activity.ID()), logfields.WithMessageID(msg.UUID), log.WithError(err))

		if err := h.pubSub.Publish(pubsubspi.UndeliverableTopic, msg.Copy()); err != nil {
			h.logger.Errorc(ctx, "Error posting message to the undeliverable topic",
				logfields.WithMessageID(msg.UUID), log.WithError(err))
		}

		msg.Ack()

		return
	}

	h.logger.Errorc(ctx, "Error scheduling message for redelivery. Message will be nacked.",
		logfields.WithMessageID(msg.UUID), log.WithError(err))

	msg.Nack()
}
