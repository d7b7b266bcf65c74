/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vocab

import (
	"net/url"
	"time"
)

// Options holds all of the options for building an ActivityPub object.
type Options struct {
	Context    []Context
	ID         *url.URL
	Types      []Type
	Name       string
	NameMap    map[string]string
	Summary    string
	SummaryMap map[string]string
	Content    string
	ContentMap map[string]string
	MediaType  string
	Published  *time.Time
	Updated    *time.Time
	StartTime  *time.Time
	EndTime    *time.Time
	To         []*url.URL
	CC         []*url.URL
	BTo        []*url.URL
	BCC        []*url.URL
	Audience   []*url.URL

	Actor      *ObjectProperty
	Target     *ObjectProperty
	Result     *ObjectProperty
	Origin     *ObjectProperty
	Instrument *ObjectProperty

	PublicKey         *PublicKeyType
	Inbox             *url.URL
	Outbox            *url.URL
	Following         *url.URL
	Followers         *url.URL
	Liked             *url.URL
	PreferredUsername string
	Endpoints         *EndpointsType

	First      *ObjectProperty
	Last       *ObjectProperty
	Next       *ObjectProperty
	Prev       *ObjectProperty
	Current    *url.URL
	PartOf     *url.URL
	TotalItems int

	ObjectPropertyOptions
}

// Opt is an option for an object, activity, etc.
type Opt func(opts *Options)

// NewOptions returns an Options struct which is populated with the provided options.
func NewOptions(opts ...Opt) *Options {
	options := &Options{}

	for _, opt := range opts {
		opt(options)
	}

	return options
}

// WithContext sets the '@context' property on the object.
func WithContext(context ...Context) Opt {
	return func(opts *Options) {
		opts.Context = context
	}
}

// WithID sets the 'id' property on the object.
func WithID(id *url.URL) Opt {
	return func(opts *Options) {
		opts.ID = id
	}
}

// WithType sets the 'type' property on the object.
func WithType(t ...Type) Opt {
	return func(opts *Options) {
		opts.Types = t
	}
}

// WithName sets the 'name' property on the object.
func WithName(name *LangString) Opt {
	return func(opts *Options) {
		if name != nil {
			opts.Name = name.value
			opts.NameMap = name.byLang
		}
	}
}

// WithSummary sets the 'summary' property on the object.
func WithSummary(summary *LangString) Opt {
	return func(opts *Options) {
		if summary != nil {
			opts.Summary = summary.value
			opts.SummaryMap = summary.byLang
		}
	}
}

// WithContent sets the 'content' property on the object.
func WithContent(content *LangString) Opt {
	return func(opts *Options) {
		if content != nil {
			opts.Content = content.value
			opts.ContentMap = content.byLang
		}
	}
}

// WithMediaType sets the 'mediaType' property on the object.
func WithMediaType(mediaType string) Opt {
	return func(opts *Options) {
		opts.MediaType = mediaType
	}
}

// WithPublishedTime sets the 'published' property on the object.
func WithPublishedTime(t *time.Time) Opt {
	return func(opts *Options) {
		opts.Published = t
	}
}

// WithUpdatedTime sets the 'updated' property on the object.
func WithUpdatedTime(t *time.Time) Opt {
	return func(opts *Options) {
		opts.Updated = t
	}
}

// WithStartTime sets the 'startTime' property on the object.
func WithStartTime(t *time.Time) Opt {
	return func(opts *Options) {
		opts.StartTime = t
	}
}

// WithEndTime sets the 'endTime' property on the object.
func WithEndTime(t *time.Time) Opt {
	return func(opts *Options) {
		opts.EndTime = t
	}
}

// WithTo adds the given URLs to the 'to' property.
func WithTo(to ...*url.URL) Opt {
	return func(opts *Options) {
		opts.To = append(opts.To, to...)
	}
}

// WithCC adds the given URLs to the 'cc' property.
func WithCC(cc ...*url.URL) Opt {
	return func(opts *Options) {
		opts.CC = append(opts.CC, cc...)
	}
}

// WithBTo adds the given URLs to the 'bto' property.
func WithBTo(bto ...*url.URL) Opt {
	return func(opts *Options) {
		opts.BTo = append(opts.BTo, bto...)
	}
}

// WithBCC adds the given URLs to the 'bcc' property.
func WithBCC(bcc ...*url.URL) Opt {
	return func(opts *Options) {
		opts.BCC = append(opts.BCC, bcc...)
	}
}

// WithAudience adds the given URLs to the 'audience' property.
func WithAudience(audience ...*url.URL) Opt {
	return func(opts *Options) {
		opts.Audience = append(opts.Audience, audience...)
	}
}

// WithActor sets the 'actor' property on the activity.
func WithActor(actor *url.URL) Opt {
	return func(opts *Options) {
		opts.Actor = NewObjectProperty(WithIRI(actor))
	}
}

// WithTarget sets the 'target' property on the activity.
func WithTarget(target *ObjectProperty) Opt {
	return func(opts *Options) {
		opts.Target = target
	}
}

// WithResult sets the 'result' property on the activity.
func WithResult(result *ObjectProperty) Opt {
	return func(opts *Options) {
		opts.Result = result
	}
}

// WithOrigin sets the 'origin' property on the activity.
func WithOrigin(origin *ObjectProperty) Opt {
	return func(opts *Options) {
		opts.Origin = origin
	}
}

// WithInstrument sets the 'instrument' property on the activity.
func WithInstrument(instrument *ObjectProperty) Opt {
	return func(opts *Options) {
		opts.Instrument = instrument
	}
}

// WithPublicKey sets the 'publicKey' property on the actor.
func WithPublicKey(publicKey *PublicKeyType) Opt {
	return func(opts *Options) {
		opts.PublicKey = publicKey
	}
}

// WithInbox sets the 'inbox' property on the actor.
func WithInbox(inbox *url.URL) Opt {
	return func(opts *Options) {
		opts.Inbox = inbox
	}
}

// WithOutbox sets the 'outbox' property on the actor.
func WithOutbox(outbox *url.URL) Opt {
	return func(opts *Options) {
		opts.Outbox = outbox
	}
}

// WithFollowing sets the 'following' property on the actor.
func WithFollowing(following *url.URL) Opt {
	return func(opts *Options) {
		opts.Following = following
	}
}

// WithFollowers sets the 'followers' property on the actor.
func WithFollowers(followers *url.URL) Opt {
	return func(opts *Options) {
		opts.Followers = followers
	}
}

// WithLiked sets the 'liked' property on the actor.
func WithLiked(liked *url.URL) Opt {
	return func(opts *Options) {
		opts.Liked = liked
	}
}

// WithPreferredUsername sets the 'preferredUsername' property on the actor.
func WithPreferredUsername(name string) Opt {
	return func(opts *Options) {
		opts.PreferredUsername = name
	}
}

// WithEndpoints sets the 'endpoints' property on the actor.
func WithEndpoints(endpoints *EndpointsType) Opt {
	return func(opts *Options) {
		opts.Endpoints = endpoints
	}
}

// WithFirst sets the 'first' property on the collection.
func WithFirst(first *url.URL) Opt {
	return func(opts *Options) {
		opts.First = NewObjectProperty(WithIRI(first))
	}
}

// WithLast sets the 'last' property on the collection.
func WithLast(last *url.URL) Opt {
	return func(opts *Options) {
		opts.Last = NewObjectProperty(WithIRI(last))
	}
}

// WithNext sets the 'next' property on the collection page.
func WithNext(next *url.URL) Opt {
	return func(opts *Options) {
		opts.Next = NewObjectProperty(WithIRI(next))
	}
}

// WithPrev sets the 'prev' property on the collection page.
func WithPrev(prev *url.URL) Opt {
	return func(opts *Options) {
		opts.Prev = NewObjectProperty(WithIRI(prev))
	}
}

// WithCurrent sets the 'current' property on the collection.
func WithCurrent(current *url.URL) Opt {
	return func(opts *Options) {
		opts.Current = current
	}
}

// WithPartOf sets the 'partOf' property on the collection page.
func WithPartOf(partOf *url.URL) Opt {
	return func(opts *Options) {
		opts.PartOf = partOf
	}
}

// WithTotalItems sets the 'totalItems' property on the collection.
func WithTotalItems(totalItems int) Opt {
	return func(opts *Options) {
		opts.TotalItems = totalItems
	}
}

// ObjectPropertyOptions holds options for an 'object' property.
type ObjectPropertyOptions struct {
	Iri                   *url.URL
	Object                *ObjectType
	Collection            *CollectionType
	OrderedCollection     *OrderedCollectionType
	CollectionPage        *CollectionPageType
	OrderedCollectionPage *OrderedCollectionPageType
	Activity              *ActivityType
}

// WithIRI sets the 'object' property to an IRI.
func WithIRI(iri *url.URL) Opt {
	return func(opts *Options) {
		opts.Iri = iri
	}
}

// WithObject sets the 'object' property to an embedded object.
func WithObject(obj *ObjectType) Opt {
	return func(opts *Options) {
		opts.Object = obj
	}
}

// WithCollection sets the 'object' property to an embedded collection.
func WithCollection(coll *CollectionType) Opt {
	return func(opts *Options) {
		opts.Collection = coll
	}
}

// WithOrderedCollection sets the 'object' property to an embedded ordered collection.
func WithOrderedCollection(coll *OrderedCollectionType) Opt {
	return func(opts *Options) {
		opts.OrderedCollection = coll
	}
}

// WithCollectionPage sets the 'object' property to an embedded collection page.
func WithCollectionPage(page *CollectionPageType) Opt {
	return func(opts *Options) {
		opts.CollectionPage = page
	}
}

// WithOrderedCollectionPage sets the 'object' property to an embedded ordered collection page.
func WithOrderedCollectionPage(page *OrderedCollectionPageType) Opt {
	return func(opts *Options) {
		opts.OrderedCollectionPage = page
	}
}

// WithActivity sets the 'object' property to an embedded activity.
func WithActivity(activity *ActivityType) Opt {
	return func(opts *Options) {
		opts.Activity = activity
	}
}
