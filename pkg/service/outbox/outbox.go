/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package outbox implements the client side of activity delivery. An activity
// posted to the outbox is fanned out to the inboxes of all of its recipients
// using signed HTTP requests. Fan-out and delivery are performed by
// asynchronous tasks so that a slow or unavailable recipient does not hold up
// the caller, and so that failed deliveries may be retried with backoff.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmhttp "github.com/ThreeDotsLabs/watermill-http/pkg/http"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/bluele/gcache"
	"github.com/google/uuid"
	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/meridianfed/meridian/internal/pkg/log"
	"github.com/meridianfed/meridian/pkg/client"
	"github.com/meridianfed/meridian/pkg/client/transport"
	merrors "github.com/meridianfed/meridian/pkg/errors"
	"github.com/meridianfed/meridian/pkg/lifecycle"
	"github.com/meridianfed/meridian/pkg/pubsub"
	"github.com/meridianfed/meridian/pkg/pubsub/redelivery"
	"github.com/meridianfed/meridian/pkg/pubsub/spi"
	"github.com/meridianfed/meridian/pkg/vocab"
)

const (
	loggerModule = "activitypub_service"

	defaultConcurrentHTTPRequests = 10
	defaultCacheSize              = 100
	defaultCacheExpiration        = time.Minute
	defaultSubscriberPoolSize     = 5
)

type pubSub interface {
	SubscribeWithOpts(ctx context.Context, topic string, opts ...spi.Option) (<-chan *message.Message, error)
	Publish(topic string, messages ...*message.Message) error
	PublishWithOpts(topic string, msg *message.Message, opts ...spi.Option) error
	Close() error
}

// Config holds configuration parameters for the outbox.
type Config struct {
	ServiceName           string
	ServiceIRI            *url.URL
	ServiceEndpointURL    *url.URL
	Topic                 string
	SenderKeyID           string
	MaxRecipients         int
	MaxConcurrentRequests int
	CacheSize             int
	CacheExpiration       time.Duration
	SubscriberPoolSize    int
	PreferSharedInbox     bool
	RetryPolicy           *redelivery.Policy
}

type activityPubClient interface {
	GetActor(iri *url.URL) (*vocab.ActorType, error)
	GetReferences(iri *url.URL) (client.ReferenceIterator, error)
}

type httpTransport interface {
	Post(ctx context.Context, req *transport.Request, payload []byte) (*http.Response, error)
	Get(ctx context.Context, req *transport.Request) (*http.Response, error)
}

type metricsProvider interface {
	OutboxPostTime(value time.Duration)
	OutboxResolveInboxesTime(value time.Duration)
	OutboxIncrementActivityCount(activityType string)
}

// Outbox implements the ActivityPub outbox.
type Outbox struct {
	*Config
	*lifecycle.Lifecycle

	httpTransport httpTransport
	publisher     pubSub
	msgChan       <-chan *message.Message
	client        activityPubClient
	jsonMarshal   func(v interface{}) ([]byte, error)
	jsonUnmarshal func(data []byte, v interface{}) error
	iriCache      gcache.Cache
	metrics       metricsProvider
	logger        *log.Log
}

// New returns a new ActivityPub Outbox. If pubSub is nil then activities are
// delivered inline by Post, with a single attempt per recipient, otherwise
// delivery is performed by asynchronous tasks that are retried according to
// the retry policy.
func New(cnfg *Config, pubSub pubSub, t httpTransport, apClient activityPubClient,
	metrics metricsProvider) (*Outbox, error) {
	cfg := populateConfigDefaults(cnfg)

	logger := log.New(loggerModule, log.WithFields(logfields.WithServiceName(cfg.ServiceName)))

	logger.Debug("Creating Outbox", logfields.WithConfig(cfg))

	h := &Outbox{
		Config:        &cfg,
		client:        apClient,
		publisher:     pubSub,
		jsonMarshal:   json.Marshal,
		jsonUnmarshal: json.Unmarshal,
		metrics:       metrics,
		httpTransport: t,
		logger:        logger,
	}

	if pubSub != nil {
		msgChan, err := pubSub.SubscribeWithOpts(context.Background(), cfg.Topic, spi.WithPool(cfg.SubscriberPoolSize))
		if err != nil {
			return nil, fmt.Errorf("subscribe to topic [%s]: %w", cfg.Topic, err)
		}

		h.msgChan = msgChan
	}

	h.Lifecycle = lifecycle.New(cfg.ServiceName,
		lifecycle.WithStart(h.start),
		lifecycle.WithStop(h.stop),
	)

	logger.Debug("Creating IRI cache", logfields.WithSize(cfg.CacheSize),
		logfields.WithExpiration(cfg.CacheExpiration))

	h.iriCache = gcache.New(cfg.CacheSize).ARC().
		Expiration(cfg.CacheExpiration).
		LoaderFunc(func(i interface{}) (interface{}, error) {
			return h.expandRecipientIRI(vocab.MustParseURL(i.(string))) //nolint:errcheck,forcetypeassert
		}).Build()

	return h, nil
}

func (h *Outbox) start() {
	if h.msgChan != nil {
		go h.listen()
	}
}

func (h *Outbox) stop() {
	h.logger.Info("Outbox stopped")
}

func (h *Outbox) listen() {
	h.logger.Debug("Starting message listener")

	for msg := range h.msgChan {
		h.logger.Debug("Got new message", logfields.WithMessageID(msg.UUID), logfields.WithData(msg.Payload))

		h.handle(msg)
	}

	h.logger.Debug("Message listener stopped")
}

type taskKind string

const (
	// fanOutKind expands the recipients of an activity into inbox URLs and
	// posts a delivery task for each.
	fanOutKind taskKind = "fanout"

	// deliverKind posts an activity to a single inbox.
	deliverKind taskKind = "outbox"
)

type deliveryTask struct {
	Kind       taskKind                     `json:"kind"`
	Activity   *vocab.ActivityType          `json:"activity"`
	Recipients *vocab.URLCollectionProperty `json:"recipients,omitempty"`
	Sender     string                       `json:"sender,omitempty"`
	Inbox      *vocab.URLProperty           `json:"inbox,omitempty"`
	KeyID      string                       `json:"keyId,omitempty"`
	Attempt    int                          `json:"attempt,omitempty"`
}

// Post posts an activity to the outbox and returns the ID of the activity that
// was posted. If the activity does not specify an ID then a unique ID is
// generated. The 'actor' of the activity is also assigned to the service IRI
// of the outbox. The recipients of the activity are gathered from its 'to',
// 'cc', 'bto', 'bcc' and 'audience' properties.
func (h *Outbox) Post(activity *vocab.ActivityType) (*url.URL, error) {
	if h.State() != lifecycle.StateStarted {
		return nil, lifecycle.ErrNotStarted
	}

	h.incrementCount(activity.Type().Types())

	startTime := time.Now()

	defer func() {
		h.metrics.OutboxPostTime(time.Since(startTime))
	}()

	activity, err := h.validateAndPopulateActivity(activity)
	if err != nil {
		return nil, err
	}

	if h.publisher == nil {
		h.deliverInline(activity)

		return activity.ID().URL(), nil
	}

	err = h.publishFanOutTask(context.Background(), activity)
	if err != nil {
		return nil, fmt.Errorf("publish fan-out task for activity [%s]: %w", activity.ID(), err)
	}

	return activity.ID().URL(), nil
}

// deliverInline resolves the inboxes of the given activity's recipients and
// posts the activity to each, with a single attempt per inbox.
func (h *Outbox) deliverInline(activity *vocab.ActivityType) {
	for _, r := range h.resolveInboxes(activity.Recipients()) {
		if r.err != nil {
			h.logger.Error("Error resolving inbox. Recipient will be ignored.",
				logfields.WithTargetIRI(r.iri), logfields.WithError(r.err))

			continue
		}

		if err := h.sendActivity(context.Background(), activity, r.iri, h.SenderKeyID); err != nil {
			h.logger.Warn("Error delivering activity to inbox. Delivery will not be retried.",
				logfields.WithActivityID(activity.ID()), logfields.WithInboxURL(r.iri), logfields.WithError(err))
		}
	}
}

func (h *Outbox) handle(msg *message.Message) {
	if err := h.handleTaskMsg(msg); err != nil {
		if merrors.IsTransient(err) {
			h.logger.Warn("Transient error handling message. Message will be nacked.",
				logfields.WithMessageID(msg.UUID), logfields.WithError(err))

			msg.Nack()
		} else {
			h.logger.Warn("Persistent error handling message. Message will be dropped.",
				logfields.WithMessageID(msg.UUID), logfields.WithError(err))

			msg.Ack()
		}
	} else {
		h.logger.Debug("Acking message", logfields.WithMessageID(msg.UUID))

		msg.Ack()
	}
}

func (h *Outbox) handleTaskMsg(msg *message.Message) error {
	h.logger.Debug("Handling delivery task message", logfields.WithMessageID(msg.UUID))

	task := &deliveryTask{}

	if err := h.jsonUnmarshal(msg.Payload, task); err != nil {
		return fmt.Errorf("unmarshal delivery task [%s]: %w", msg.UUID, err)
	}

	if task.Activity == nil {
		return fmt.Errorf("no activity in delivery task [%s]", msg.UUID)
	}

	ctx := pubsub.ContextFromMessage(msg)

	switch task.Kind {
	case fanOutKind:
		h.logger.Debug("Handling 'fanout' task", logfields.WithMessageID(msg.UUID),
			logfields.WithActivityID(task.Activity.ID()))

		if err := h.handleFanOut(ctx, task); err != nil {
			return fmt.Errorf("handle 'fanout' task for activity [%s]: %w", task.Activity.ID(), err)
		}

		return nil

	case deliverKind:
		h.logger.Debug("Handling 'outbox' task", logfields.WithMessageID(msg.UUID),
			logfields.WithActivityID(task.Activity.ID()), logfields.WithInboxURL(task.Inbox))

		if err := h.handleDeliver(ctx, task); err != nil {
			return fmt.Errorf("handle 'outbox' task for activity [%s] of type [%s] to inbox [%s]: %w",
				task.Activity.ID(), task.Activity.Type(), task.Inbox, err)
		}

		return nil

	default:
		return fmt.Errorf("unsupported delivery task kind [%s]", task.Kind)
	}
}

// handleFanOut expands the recipients of the task's activity into inbox URLs
// and posts a delivery task for each. Recipients that could not be resolved
// due to a transient error are scheduled for another fan-out attempt.
func (h *Outbox) handleFanOut(ctx context.Context, task *deliveryTask) error {
	var retryIRIs []*url.URL

	for _, r := range h.resolveInboxes(task.Recipients.URLs()) {
		switch {
		case r.err == nil:
			if err := h.publishDeliverTask(ctx, task.Activity, r.iri, task.Sender); err != nil {
				// A publish error indicates that something is wrong with the local
				// queue, so nack the task and let the queue redeliver it.
				return merrors.NewTransientf("publish delivery task for inbox [%s]: %w", r.iri, err)
			}
		case merrors.IsTransient(r.err):
			h.logger.Warn("Transient error resolving inbox. Resolution will be retried.",
				logfields.WithTargetIRI(r.iri), logfields.WithError(r.err))

			retryIRIs = append(retryIRIs, r.iri)
		default:
			h.logger.Error("Persistent error resolving inbox. Recipient will be ignored.",
				logfields.WithTargetIRI(r.iri), logfields.WithError(r.err))
		}
	}

	if len(retryIRIs) == 0 {
		return nil
	}

	return h.redeliver(ctx, &deliveryTask{
		Kind:       fanOutKind,
		Activity:   task.Activity,
		Recipients: vocab.NewURLCollectionProperty(retryIRIs...),
		Sender:     task.Sender,
		Attempt:    task.Attempt,
	})
}

// handleDeliver posts the task's activity to the task's inbox. A transient
// delivery failure causes the task to be scheduled for another attempt.
func (h *Outbox) handleDeliver(ctx context.Context, task *deliveryTask) error {
	if task.Inbox.URL() == nil {
		return fmt.Errorf("no inbox URL in delivery task")
	}

	err := h.sendActivity(ctx, task.Activity, task.Inbox.URL(), task.KeyID)
	if err == nil {
		return nil
	}

	if !merrors.IsTransient(err) {
		return err
	}

	h.logger.Warn("Transient error delivering activity to inbox. Delivery will be retried.",
		logfields.WithActivityID(task.Activity.ID()), logfields.WithInboxURL(task.Inbox),
		logfields.WithError(err))

	return h.redeliver(ctx, task)
}

// redeliver schedules another attempt at the given task after a backoff delay,
// or posts the task to the undeliverable topic if the maximum number of
// attempts has been reached.
func (h *Outbox) redeliver(ctx context.Context, task *deliveryTask) error {
	// The original delivery also counts as an attempt.
	attempt := task.Attempt + 1

	if attempt >= h.RetryPolicy.MaxAttempts {
		h.logger.Error("Reached the maximum number of attempts for delivery task. Posting task to the undeliverable topic.",
			logfields.WithActivityID(task.Activity.ID()), logfields.WithInboxURL(task.Inbox),
			logfields.WithAttempt(attempt))

		if err := h.publishTask(ctx, spi.UndeliverableTopic, task, 0); err != nil {
			return merrors.NewTransientf("publish delivery task to undeliverable topic: %w", err)
		}

		return nil
	}

	task.Attempt = attempt

	delay := h.RetryPolicy.Interval(attempt)

	h.logger.Info("Scheduling delivery task for another attempt",
		logfields.WithActivityID(task.Activity.ID()), logfields.WithInboxURL(task.Inbox),
		logfields.WithAttempt(attempt), logfields.WithDeliveryDelay(delay))

	if err := h.publishTask(ctx, h.Topic, task, delay); err != nil {
		return merrors.NewTransientf("publish delivery task for redelivery: %w", err)
	}

	return nil
}

func (h *Outbox) publishFanOutTask(ctx context.Context, activity *vocab.ActivityType) error {
	return h.publishTask(ctx, h.Topic, &deliveryTask{
		Kind:       fanOutKind,
		Activity:   activity,
		Recipients: vocab.NewURLCollectionProperty(activity.Recipients()...),
		Sender:     h.SenderKeyID,
	}, 0)
}

func (h *Outbox) publishDeliverTask(ctx context.Context, activity *vocab.ActivityType, inbox *url.URL,
	keyID string) error {
	return h.publishTask(ctx, h.Topic, &deliveryTask{
		Kind:     deliverKind,
		Activity: activity,
		Inbox:    vocab.NewURLProperty(inbox),
		KeyID:    keyID,
	}, 0)
}

func (h *Outbox) publishTask(ctx context.Context, topic string, task *deliveryTask, delay time.Duration) error {
	taskBytes, err := h.jsonMarshal(task)
	if err != nil {
		return fmt.Errorf("marshal delivery task: %w", err)
	}

	msg := pubsub.NewMessage(ctx, taskBytes)

	h.logger.Debug("Publishing delivery task to topic", logfields.WithMessageID(msg.UUID),
		logfields.WithActivityID(task.Activity.ID()), logfields.WithTopic(topic))

	if delay > 0 {
		return h.publisher.PublishWithOpts(topic, msg, spi.WithDeliveryDelay(delay))
	}

	return h.publisher.Publish(topic, msg)
}

// resolveInboxes resolves the given recipient IRIs to inbox URLs. A recipient
// may be an actor or a reference to a collection of actors (such as a
// followers collection), in which case the collection is traversed and each of
// its items is resolved to an actor. The returned URLs are de-duplicated so
// that actors sharing an inbox receive the activity only once.
func (h *Outbox) resolveInboxes(recipients []*url.URL) []*resolveIRIResponse {
	startTime := time.Now()

	defer func() {
		h.metrics.OutboxResolveInboxesTime(time.Since(startTime))
	}()

	var responses []*resolveIRIResponse

	var actorIRIs []*url.URL

	for _, r := range h.resolveIRIs(recipients, h.expandRecipient) {
		if r.err != nil {
			responses = append(responses, r)
		} else {
			actorIRIs = append(actorIRIs, r.iri)
		}
	}

	var inboxes []*url.URL

	for _, r := range h.resolveIRIs(deduplicate(actorIRIs), h.resolveInbox) {
		if r.err != nil {
			responses = append(responses, r)
		} else {
			inboxes = append(inboxes, r.iri)
		}
	}

	for _, inbox := range deduplicate(inboxes) {
		responses = append(responses, &resolveIRIResponse{iri: inbox})
	}

	return responses
}

type resolveIRIResponse struct {
	iri *url.URL
	err error
}

// expandRecipient expands the given recipient IRI into actor IRIs. The special
// 'Public' IRI is not a deliverable recipient and resolves to nothing. Local
// actors are excluded since the service should not deliver to itself.
func (h *Outbox) expandRecipient(iri *url.URL) []*resolveIRIResponse {
	if iri.String() == vocab.PublicIRI {
		h.logger.Debug("Not adding recipient to the delivery list", logfields.WithTargetIRI(iri))

		return nil
	}

	h.logger.Debug("Expanding recipient", logfields.WithTargetIRI(iri))

	expandedIRIs, err := h.doExpandRecipient(iri)
	if err != nil {
		return []*resolveIRIResponse{{iri: iri, err: err}}
	}

	var responses []*resolveIRIResponse

	for _, r := range expandedIRIs {
		if strings.HasPrefix(r.String(), h.ServiceEndpointURL.String()) {
			// Ignore local endpoint.
			continue
		}

		responses = append(responses, &resolveIRIResponse{iri: r})
	}

	return responses
}

func (h *Outbox) doExpandRecipient(iri *url.URL) ([]*url.URL, error) {
	result, err := h.iriCache.Get(iri.String())
	if err != nil {
		h.logger.Debug("Got error expanding recipient IRI", logfields.WithTargetIRI(iri), logfields.WithError(err))

		return nil, err
	}

	return result.([]*url.URL), nil //nolint:forcetypeassert
}

func (h *Outbox) expandRecipientIRI(iri *url.URL) ([]*url.URL, error) {
	it, err := h.client.GetReferences(iri)
	if err != nil {
		return nil, fmt.Errorf("get references for recipient [%s]: %w", iri, err)
	}

	iris, err := client.ReadReferences(it, h.MaxRecipients)
	if err != nil {
		return nil, fmt.Errorf("read references for recipient [%s]: %w", iri, err)
	}

	return iris, nil
}

func (h *Outbox) resolveInbox(iri *url.URL) []*resolveIRIResponse {
	h.logger.Debug("Retrieving actor", logfields.WithActorIRI(iri))

	actor, err := h.client.GetActor(iri)
	if err != nil {
		return []*resolveIRIResponse{{iri: iri, err: err}}
	}

	inbox := actor.GetInbox()

	if h.PreferSharedInbox {
		inbox = actor.SharedInbox()
	}

	if inbox == nil {
		return []*resolveIRIResponse{{iri: iri, err: fmt.Errorf("actor [%s] has no inbox", iri)}}
	}

	return []*resolveIRIResponse{{iri: inbox}}
}

// resolveIRIs resolves each of the given IRIs using the given resolve function.
// The requests are performed in parallel by a pool of MaxConcurrentRequests
// workers.
func (h *Outbox) resolveIRIs(toIRIs []*url.URL,
	resolve func(iri *url.URL) []*resolveIRIResponse) []*resolveIRIResponse {
	var wg sync.WaitGroup

	var responses []*resolveIRIResponse

	var mutex sync.Mutex

	resolveChan := make(chan *url.URL)

	for i := 0; i < h.MaxConcurrentRequests; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for toIRI := range resolveChan {
				response := resolve(toIRI)

				mutex.Lock()
				responses = append(responses, response...)
				mutex.Unlock()
			}
		}()
	}

	for _, iri := range toIRIs {
		resolveChan <- iri
	}

	close(resolveChan)

	wg.Wait()

	return responses
}

func (h *Outbox) newActivityID() *url.URL {
	id, err := url.Parse(fmt.Sprintf("%s/activities/%s", h.ServiceEndpointURL, uuid.New()))
	if err != nil {
		// Should never happen since we've already validated the URLs
		panic(err)
	}

	return id
}

func (h *Outbox) validateAndPopulateActivity(activity *vocab.ActivityType) (*vocab.ActivityType, error) {
	if activity.ID() == nil {
		activity.SetID(h.newActivityID())
	}

	if activity.Actor() != nil {
		if activity.Actor().String() != h.ServiceIRI.String() {
			return nil, merrors.NewBadRequest(fmt.Errorf("invalid actor IRI"))
		}
	} else {
		activity.SetActor(h.ServiceIRI)
	}

	return activity, nil
}

func (h *Outbox) incrementCount(types []vocab.Type) {
	for _, activityType := range types {
		h.metrics.OutboxIncrementActivityCount(string(activityType))
	}
}

func (h *Outbox) sendActivity(ctx context.Context, activity *vocab.ActivityType, inbox *url.URL, keyID string) error {
	activityBytes, err := h.jsonMarshal(activity)
	if err != nil {
		return fmt.Errorf("marshal activity: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), activityBytes)

	req := transport.NewRequest(inbox,
		transport.WithHeader(transport.AcceptHeader, transport.ActivityStreamsContentType),
		transport.WithHeader(wmhttp.HeaderUUID, msg.UUID),
	)

	h.logger.Debug("Sending message", logfields.WithMessageID(msg.UUID),
		logfields.WithInboxURL(req.URL), logfields.WithKeyID(keyID), logfields.WithData(msg.Payload))

	resp, err := h.httpTransport.Post(ctx, req, msg.Payload)
	if err != nil {
		return merrors.NewTransientf("send message [%s]: %w", msg.UUID, err)
	}

	if err := resp.Body.Close(); err != nil {
		logfields.CloseResponseBodyError(h.logger, err)
	}

	if isTransientStatusCode(resp.StatusCode) {
		h.logger.Debug("Error code received in response for message",
			logfields.WithHTTPStatus(resp.StatusCode), logfields.WithInboxURL(req.URL),
			logfields.WithMessageID(msg.UUID))

		return merrors.NewTransientf("server responded with error %d - %s", resp.StatusCode, resp.Status)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		h.logger.Debug("Error code received in response for message",
			logfields.WithHTTPStatus(resp.StatusCode), logfields.WithInboxURL(req.URL),
			logfields.WithMessageID(msg.UUID))

		return fmt.Errorf("server responded with error %d - %s", resp.StatusCode, resp.Status)
	}

	h.logger.Debug("Message successfully sent", logfields.WithMessageID(msg.UUID), logfields.WithInboxURL(req.URL))

	return nil
}

// isTransientStatusCode determines whether an HTTP error status indicates a
// condition that may resolve itself, in which case the delivery is retried.
func isTransientStatusCode(status int) bool {
	return status >= http.StatusInternalServerError ||
		status == http.StatusTooManyRequests ||
		status == http.StatusRequestTimeout
}

func populateConfigDefaults(cnfg *Config) Config {
	cfg := *cnfg

	if cfg.MaxConcurrentRequests <= 0 {
		cfg.MaxConcurrentRequests = defaultConcurrentHTTPRequests
	}

	if cfg.CacheSize == 0 {
		cfg.CacheSize = defaultCacheSize
	}

	if cfg.CacheExpiration == 0 {
		cfg.CacheExpiration = defaultCacheExpiration
	}

	if cfg.SubscriberPoolSize == 0 {
		cfg.SubscriberPoolSize = defaultSubscriberPoolSize
	}

	if cfg.RetryPolicy == nil {
		cfg.RetryPolicy = redelivery.DefaultPolicy()
	}

	return cfg
}

func deduplicate(iris []*url.URL) []*url.URL {
	m := make(map[string]struct{})

	var result []*url.URL

	for _, iri := range iris {
		strIRI := iri.String()

		if _, exists := m[strIRI]; !exists {
			result = append(result, iri)
			m[strIRI] = struct{}{}
		}
	}

	return result
}
