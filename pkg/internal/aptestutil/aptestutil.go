/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package aptestutil contains ActivityPub test utilities.
package aptestutil

import (
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/meridianfed/meridian/pkg/internal/testutil"
	"github.com/meridianfed/meridian/pkg/vocab"
)

// ServiceOptions are options passed in to NewMockService.
type ServiceOptions struct {
	PublicKey   *vocab.PublicKeyType
	SharedInbox *url.URL
}

// ServiceOpt is a mock service option.
type ServiceOpt func(options *ServiceOptions)

// WithPublicKey sets the public key on the mock service.
func WithPublicKey(pubKey *vocab.PublicKeyType) ServiceOpt {
	return func(options *ServiceOptions) {
		options.PublicKey = pubKey
	}
}

// WithSharedInbox sets the shared inbox endpoint on the mock service.
func WithSharedInbox(sharedInbox *url.URL) ServiceOpt {
	return func(options *ServiceOptions) {
		options.SharedInbox = sharedInbox
	}
}

// NewMockService returns a mock 'Service' type actor with the given IRI and options.
func NewMockService(serviceIRI *url.URL, opts ...ServiceOpt) *vocab.ActorType {
	options := &ServiceOptions{
		PublicKey: NewMockPublicKey(serviceIRI),
	}

	for _, opt := range opts {
		opt(options)
	}

	vocabOpts := []vocab.Opt{
		vocab.WithPublicKey(options.PublicKey),
		vocab.WithInbox(testutil.NewMockID(serviceIRI, "/inbox")),
		vocab.WithOutbox(testutil.NewMockID(serviceIRI, "/outbox")),
		vocab.WithFollowers(testutil.NewMockID(serviceIRI, "/followers")),
		vocab.WithFollowing(testutil.NewMockID(serviceIRI, "/following")),
		vocab.WithLiked(testutil.NewMockID(serviceIRI, "/liked")),
	}

	if options.SharedInbox != nil {
		vocabOpts = append(vocabOpts, vocab.WithEndpoints(vocab.NewEndpoints(options.SharedInbox)))
	}

	return vocab.NewService(serviceIRI, vocabOpts...)
}

// NewMockPerson returns a mock 'Person' type actor with the given IRI and preferred username.
func NewMockPerson(personIRI *url.URL, preferredUsername string, opts ...ServiceOpt) *vocab.ActorType {
	options := &ServiceOptions{
		PublicKey: NewMockPublicKey(personIRI),
	}

	for _, opt := range opts {
		opt(options)
	}

	return vocab.NewPerson(personIRI,
		vocab.WithPreferredUsername(preferredUsername),
		vocab.WithPublicKey(options.PublicKey),
		vocab.WithInbox(testutil.NewMockID(personIRI, "/inbox")),
		vocab.WithOutbox(testutil.NewMockID(personIRI, "/outbox")),
		vocab.WithFollowers(testutil.NewMockID(personIRI, "/followers")),
		vocab.WithFollowing(testutil.NewMockID(personIRI, "/following")),
	)
}

// NewMockPublicKey returns a mock public key using the given service IRI.
func NewMockPublicKey(serviceIRI *url.URL) *vocab.PublicKeyType {
	const keyPem = "-----BEGIN PUBLIC KEY-----\nMIIBIjANBgkqhki....."

	return vocab.NewPublicKey(testutil.NewMockID(serviceIRI, "/keys/main-key"), serviceIRI, keyPem)
}

// NewMockCollection returns a mock 'Collection' with the given ID and items.
func NewMockCollection(id, first, last *url.URL, totalItems int) *vocab.CollectionType {
	return vocab.NewCollection(nil,
		vocab.WithContext(vocab.ContextActivityStreams),
		vocab.WithID(id),
		vocab.WithTotalItems(totalItems),
		vocab.WithFirst(first),
		vocab.WithLast(last),
	)
}

// NewMockOrderedCollection returns a mock 'OrderedCollection' with the given ID and items.
func NewMockOrderedCollection(id, first, last *url.URL, totalItems int) *vocab.OrderedCollectionType {
	return vocab.NewOrderedCollection(nil,
		vocab.WithContext(vocab.ContextActivityStreams),
		vocab.WithID(id),
		vocab.WithTotalItems(totalItems),
		vocab.WithFirst(first),
		vocab.WithLast(last),
	)
}

// NewMockCollectionPage returns a mock 'CollectionPage' with the given ID and items.
func NewMockCollectionPage(id, next, prev, collID *url.URL, totalItems int,
	items ...*vocab.ObjectProperty) *vocab.CollectionPageType {
	return vocab.NewCollectionPage(items,
		vocab.WithContext(vocab.ContextActivityStreams),
		vocab.WithID(id),
		vocab.WithPartOf(collID),
		vocab.WithNext(next),
		vocab.WithPrev(prev),
		vocab.WithTotalItems(totalItems),
	)
}

// NewMockOrderedCollectionPage returns a mock 'OrderedCollectionPage' with the given ID and items.
func NewMockOrderedCollectionPage(id, next, prev, collID *url.URL, totalItems int,
	items ...*vocab.ObjectProperty) *vocab.OrderedCollectionPageType {
	return vocab.NewOrderedCollectionPage(items,
		vocab.WithContext(vocab.ContextActivityStreams),
		vocab.WithID(id),
		vocab.WithPartOf(collID),
		vocab.WithNext(next),
		vocab.WithPrev(prev),
		vocab.WithTotalItems(totalItems),
	)
}

// NewMockCreateActivities returns the given number of mock 'Create' activities.
func NewMockCreateActivities(num int) []*vocab.ActivityType {
	activities := make([]*vocab.ActivityType, num)

	for i := 0; i < num; i++ {
		actorIRI := testutil.MustParseURL(fmt.Sprintf("https://org%d.example.com/services/fed", i))

		activities[i] = NewMockCreateActivity(actorIRI,
			testutil.MustParseURL("https://sally.example.com/services/fed"),
			vocab.NewObjectProperty(vocab.WithIRI(
				testutil.MustParseURL(fmt.Sprintf("https://org%d.example.com/notes/%d", i, i)),
			)),
		)
	}

	return activities
}

// NewMockCreateActivity returns a new mock 'Create' activity.
func NewMockCreateActivity(actorIRI, toIRI *url.URL, obj *vocab.ObjectProperty) *vocab.ActivityType {
	published := time.Now()

	return vocab.NewCreateActivity(obj,
		vocab.WithID(NewActivityID(actorIRI)),
		vocab.WithActor(actorIRI),
		vocab.WithTo(toIRI),
		vocab.WithPublishedTime(&published),
	)
}

// NewMockAnnounceActivities returns the given number of mock 'Announce' activities.
func NewMockAnnounceActivities(num int) []*vocab.ActivityType {
	activities := make([]*vocab.ActivityType, num)

	for i := 0; i < num; i++ {
		actorIRI := testutil.MustParseURL(fmt.Sprintf("https://org%d.example.com/services/fed", i))

		activities[i] = NewMockAnnounceActivity(actorIRI,
			testutil.MustParseURL("https://sally.example.com/services/fed"),
			vocab.NewObjectProperty(vocab.WithIRI(
				testutil.MustParseURL(fmt.Sprintf("https://org%d.example.com/notes/%d", i, i)),
			)),
		)
	}

	return activities
}

// NewMockAnnounceActivity returns a new mock 'Announce' activity.
func NewMockAnnounceActivity(actorIRI, toIRI *url.URL, obj *vocab.ObjectProperty) *vocab.ActivityType {
	published := time.Now()

	return vocab.NewAnnounceActivity(obj,
		vocab.WithID(NewActivityID(actorIRI)),
		vocab.WithActor(actorIRI),
		vocab.WithTo(toIRI),
		vocab.WithPublishedTime(&published),
	)
}

// NewMockLikeActivities returns the given number of mock 'Like' activities.
func NewMockLikeActivities(num int) []*vocab.ActivityType {
	activities := make([]*vocab.ActivityType, num)

	for i := 0; i < num; i++ {
		activities[i] = NewMockLikeActivity(
			fmt.Sprintf("https://org%d.example.com/activities/%s", i, uuid.New()),
			fmt.Sprintf("https://org%d.example.com/notes/%d", i, i),
		)
	}

	return activities
}

// NewMockLikeActivity returns a new mock 'Like' activity.
func NewMockLikeActivity(id, objID string) *vocab.ActivityType {
	actorIRI := testutil.MustParseURL("https://sally.example.com/services/fed")
	published := time.Now()

	return vocab.NewLikeActivity(
		vocab.NewObjectProperty(vocab.WithIRI(testutil.MustParseURL(objID))),
		vocab.WithID(testutil.MustParseURL(id)),
		vocab.WithActor(actorIRI),
		vocab.WithPublishedTime(&published),
	)
}

// NewActivityID returns a new mock activity ID scoped to the given service.
func NewActivityID(id fmt.Stringer) *url.URL {
	return testutil.MustParseURL(fmt.Sprintf("%s/activities/%s", id, uuid.New()))
}
