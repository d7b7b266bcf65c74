/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package activitysync implements a periodic task that reads the outboxes of
// remote services and publishes any activities that haven't been seen yet to
// the inbox queue, where regular inbox processing (including the idempotence
// check) takes over. This allows a service to catch up on activities that were
// missed, for example due to an extended outage. The position within each
// remote outbox is persisted so that a run only considers activities that were
// added since the previous run.
package activitysync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/trustbloc/logutil-go/pkg/log"
	"go.opentelemetry.io/otel/trace"

	logfields "github.com/meridianfed/meridian/internal/pkg/log"
	"github.com/meridianfed/meridian/pkg/client"
	"github.com/meridianfed/meridian/pkg/observability/tracing"
	"github.com/meridianfed/meridian/pkg/pubsub"
	store "github.com/meridianfed/meridian/pkg/store/spi"
	"github.com/meridianfed/meridian/pkg/vocab"
)

var logger = log.New("activity_sync")

const (
	defaultInterval       = time.Minute
	defaultMinActivityAge = time.Minute

	taskName = "activity-sync"
)

type activityPubClient interface {
	GetActor(actorIRI *url.URL) (*vocab.ActorType, error)
	GetActivities(iri *url.URL, order client.Order) (client.ActivityIterator, error)
}

type taskManager interface {
	RegisterTask(taskID string, interval time.Duration, task func())
}

type publisher interface {
	Publish(topic string, messages ...*message.Message) error
}

// ServicesSource returns the IRIs of the services whose outboxes should be
// synchronized. This is typically the collection of services that the local
// service is following.
type ServicesSource func() ([]*url.URL, error)

// Config contains configuration parameters for the activity synchronization task.
type Config struct {
	// InboxTopic is the topic to which missed activities are published.
	InboxTopic string
	// StorePrefix is the namespace under which the synchronization cursors are
	// stored. If empty then the default prefix is used.
	StorePrefix store.Key
	// Interval is the interval at which the task runs.
	Interval time.Duration
	// MinActivityAge is the minimum age of an activity before it is synchronized.
	// Younger activities are most likely still in flight and are left for a
	// subsequent run.
	MinActivityAge time.Duration
}

type task struct {
	apClient       activityPubClient
	store          *syncStore
	publisher      publisher
	inboxTopic     string
	minActivityAge time.Duration
	getServices    ServicesSource
	jsonMarshal    func(v interface{}) ([]byte, error)
	tracer         trace.Tracer
}

// Register registers the activity synchronization task with the task manager.
func Register(cfg Config, taskMgr taskManager, apClient activityPubClient, kvStore store.Store,
	pub publisher, services ServicesSource,
) {
	interval := cfg.Interval

	if interval == 0 {
		interval = defaultInterval
	}

	minActivityAge := cfg.MinActivityAge

	if minActivityAge == 0 {
		minActivityAge = defaultMinActivityAge
	}

	prefix := cfg.StorePrefix

	if len(prefix) == 0 {
		prefix = store.DefaultPrefix
	}

	t := newTask(apClient, newSyncStore(kvStore, prefix), pub, cfg.InboxTopic, minActivityAge, services)

	logger.Info("Registering activity-sync task.",
		logfields.WithTaskRunInterval(interval), logfields.WithMinAge(minActivityAge))

	taskMgr.RegisterTask(taskName, interval, t.run)
}

func newTask(apClient activityPubClient, syncStore *syncStore, pub publisher, inboxTopic string,
	minActivityAge time.Duration, services ServicesSource,
) *task {
	return &task{
		apClient:       apClient,
		store:          syncStore,
		publisher:      pub,
		inboxTopic:     inboxTopic,
		minActivityAge: minActivityAge,
		getServices:    services,
		jsonMarshal:    json.Marshal,
		tracer:         tracing.Tracer(tracing.SubsystemActivitySync),
	}
}

func (m *task) run() {
	services, err := m.getServices()
	if err != nil {
		logger.Error("Error retrieving the services to synchronize with", log.WithError(err))

		return
	}

	if len(services) == 0 {
		return
	}

	for _, serviceIRI := range services {
		err = m.sync(serviceIRI)
		if err != nil {
			logger.Warn("Error processing activities from outbox of service",
				logfields.WithServiceIRI(serviceIRI), log.WithError(err))
		}
	}

	logger.Debug("Done synchronizing activities with services.", logfields.WithTotal(len(services)))
}

func (m *task) sync(serviceIRI *url.URL) error {
	it, lastSyncedPage, lastSyncedIndex, err := m.getNewActivities(serviceIRI)
	if err != nil {
		return fmt.Errorf("get new activities: %w", err)
	}

	page, index := lastSyncedPage, lastSyncedIndex

	var numPublished int

	span := tracing.NewSpan(m.tracer, context.Background())
	defer span.End()

	for {
		a, e := it.Next()
		if e != nil {
			if errors.Is(e, client.ErrNotFound) {
				break
			}

			return fmt.Errorf("next activity: %w", e)
		}

		if publishedTime := a.Published(); publishedTime != nil {
			if activityAge := time.Since(*publishedTime); activityAge < m.minActivityAge {
				logger.Debug("Not syncing activity since it was just added recently.",
					logfields.WithServiceIRI(serviceIRI), logfields.WithActivityID(a.ID()),
					logfields.WithActivityType(a.Type().String()), logfields.WithAge(activityAge),
					logfields.WithMinAge(m.minActivityAge))

				break
			}
		}

		e = m.publish(span.Start("sync activities"), a)
		if e != nil {
			return fmt.Errorf("publish activity [%s]: %w", a.ID(), e)
		}

		numPublished++

		page, index = it.CurrentPage(), it.NextIndex()-1
	}

	if page.String() != lastSyncedPage.String() || index != lastSyncedIndex {
		if numPublished > 0 {
			logger.Info("Published missed activities from outbox of service.",
				logfields.WithServiceIRI(serviceIRI), logfields.WithTotal(numPublished),
				logfields.WithCurrentIRI(page), logfields.WithIndex(index))
		}

		logger.Debug("Updating last synced page.", logfields.WithServiceIRI(serviceIRI),
			logfields.WithCurrentIRI(page), logfields.WithIndex(index))

		err = m.store.PutLastSyncedPage(serviceIRI, page, index)
		if err != nil {
			return fmt.Errorf("update last synced page [%s] at index [%d]: %w", page, index, err)
		}
	}

	return nil
}

func (m *task) publish(ctx context.Context, activity *vocab.ActivityType) error {
	activityBytes, err := m.jsonMarshal(activity)
	if err != nil {
		return fmt.Errorf("marshal activity: %w", err)
	}

	msg := pubsub.NewMessage(ctx, activityBytes)

	logger.Debug("Publishing activity to the inbox queue.", logfields.WithMessageID(msg.UUID),
		logfields.WithActivityID(activity.ID()), logfields.WithActivityType(activity.Type().String()),
		logfields.WithTopic(m.inboxTopic))

	return m.publisher.Publish(m.inboxTopic, msg)
}

func (m *task) getNewActivities(serviceIRI *url.URL) (client.ActivityIterator, *url.URL, int, error) {
	page, index, err := m.getLastSyncedPage(serviceIRI)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("get last synced page: %w", err)
	}

	it, err := m.apClient.GetActivities(page, client.Forward)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("get activities from [%s]: %w", page, err)
	}

	// Start at the activity following the last one that was processed in the page.
	it.SetNextIndex(index + 1)

	return it, page, index, nil
}

func (m *task) getLastSyncedPage(serviceIRI *url.URL) (*url.URL, int, error) {
	lastSyncedPage, index, err := m.store.GetLastSyncedPage(serviceIRI)
	if err != nil && !errors.Is(err, store.ErrDataNotFound) {
		return nil, 0, err
	}

	if lastSyncedPage != nil {
		return lastSyncedPage, index, nil
	}

	logger.Debug("Last synced page not found for service. Will start at the beginning of the outbox.",
		logfields.WithServiceIRI(serviceIRI))

	actor, err := m.apClient.GetActor(serviceIRI)
	if err != nil {
		return nil, 0, fmt.Errorf("get actor: %w", err)
	}

	// The index is the position of the last processed activity within the page,
	// so a service that has never been synchronized starts at -1 in order to
	// include the very first activity.
	return actor.GetOutbox(), -1, nil
}
