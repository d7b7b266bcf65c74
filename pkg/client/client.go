/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package client retrieves ActivityPub objects, such as actors, activities and
// collections, from remote sources using signed HTTP requests.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/bluele/gcache"
	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/meridianfed/meridian/internal/pkg/log"
	"github.com/meridianfed/meridian/pkg/client/transport"
	merrors "github.com/meridianfed/meridian/pkg/errors"
	"github.com/meridianfed/meridian/pkg/vocab"
)

var logger = log.New("activitypub_client")

const (
	defaultCacheSize       = 100
	defaultCacheExpiration = time.Minute
)

// ErrNotFound is returned when the object is not found or the iterator has reached the end.
var ErrNotFound = errors.New("not found")

// Order is the order in which activities are returned.
type Order string

const (
	// Forward indicates that activities should be returned in the same order that they were
	// retrieved from the endpoint.
	Forward Order = "forward"
	// Reverse indicates that activities should be returned in the reverse order that they were
	// retrieved from the endpoint.
	Reverse Order = "reverse"
)

// ReferenceIterator iterates over the references in a result set.
type ReferenceIterator interface {
	// Next returns the next reference or the ErrNotFound error if no more references are available.
	Next() (*url.URL, error)
	// TotalItems returns the total number of items available at the moment the iterator was created.
	TotalItems() int
}

// ActivityIterator iterates over the activities in a result set.
type ActivityIterator interface {
	// Next returns the next activity or the ErrNotFound error if no more items are available.
	Next() (*vocab.ActivityType, error)
	// NextPage advances to the next page. If there are no more pages then an ErrNotFound error is returned.
	NextPage() (*url.URL, error)
	// SetNextIndex sets the index of the next activity within the current page that Next will return.
	SetNextIndex(int)
	// TotalItems returns the total number of items available at the moment the iterator was created.
	// This value remains constant throughout the lifetime of the iterator.
	TotalItems() int
	// CurrentPage returns the ID of the current page that the iterator is processing.
	CurrentPage() *url.URL
	// NextIndex returns the next index of the current page that will be processed. This function does not
	// advance the iterator.
	NextIndex() int
}

// ItemIterator iterates over the items of a collection, following pages as required.
type ItemIterator interface {
	// Next returns the next item or the ErrNotFound error if no more items are available.
	Next() (*vocab.ObjectProperty, error)
	// TotalItems returns the total number of items stated by the collection at the moment
	// the iterator was created.
	TotalItems() int
}

type httpTransport interface {
	Get(ctx context.Context, req *transport.Request) (*http.Response, error)
}

// HandleResolver resolves a WebFinger handle, such as acct:alice@example.com or
// @alice@example.com, to the URL of its ActivityPub actor.
type HandleResolver interface {
	ResolveActorURL(resource string) (*url.URL, error)
}

// Config contains configuration parameters for the client.
type Config struct {
	CacheSize       int
	CacheExpiration time.Duration
}

// Client implements an ActivityPub client which retrieves ActivityPub objects (such as actors,
// activities, and collections) from remote sources.
type Client struct {
	httpTransport

	handleResolver HandleResolver
	actorCache     gcache.Cache
	publicKeyCache gcache.Cache
}

// New returns a new ActivityPub client. The handle resolver may be nil, in which case
// only URL targets may be passed to LookupObject.
func New(cfg Config, t httpTransport, handleResolver HandleResolver) *Client {
	c := &Client{
		httpTransport:  t,
		handleResolver: handleResolver,
	}

	cacheSize := cfg.CacheSize

	if cacheSize == 0 {
		cacheSize = defaultCacheSize
	}

	cacheExpiration := cfg.CacheExpiration

	if cacheExpiration == 0 {
		cacheExpiration = defaultCacheExpiration
	}

	logger.Debug("Creating actor and public key caches",
		logfields.WithSize(cacheSize), logfields.WithExpiration(cacheExpiration))

	c.actorCache = gcache.New(cacheSize).ARC().
		Expiration(cacheExpiration).
		LoaderFunc(func(i interface{}) (interface{}, error) {
			return c.getActor(vocab.MustParseURL(i.(string))) //nolint:errcheck,forcetypeassert
		}).Build()

	c.publicKeyCache = gcache.New(cacheSize).ARC().
		Expiration(cacheExpiration).
		LoaderFunc(func(i interface{}) (interface{}, error) {
			return c.getPublicKey(vocab.MustParseURL(i.(string))) //nolint:errcheck,forcetypeassert
		}).Build()

	return c
}

// GetActor retrieves the actor at the given IRI. Responses are cached.
func (c *Client) GetActor(actorIRI *url.URL) (*vocab.ActorType, error) {
	result, err := c.actorCache.Get(actorIRI.String())
	if err != nil {
		logger.Debug("Error retrieving actor from cache", logfields.WithActorIRI(actorIRI), log.WithError(err))

		return nil, err
	}

	return result.(*vocab.ActorType), nil //nolint:errcheck,forcetypeassert
}

func (c *Client) getActor(actorIRI *url.URL) (*vocab.ActorType, error) {
	respBytes, err := c.get(actorIRI)
	if err != nil {
		return nil, fmt.Errorf("error reading response from %s: %w", actorIRI, err)
	}

	actor := &vocab.ActorType{}

	err = json.Unmarshal(respBytes, actor)
	if err != nil {
		return nil, merrors.Newf(merrors.KindParse, "invalid actor in response from %s: %s", actorIRI, err)
	}

	return actor, nil
}

// GetPublicKey retrieves the public key at the given IRI. Responses are cached.
func (c *Client) GetPublicKey(keyIRI *url.URL) (*vocab.PublicKeyType, error) {
	result, err := c.publicKeyCache.Get(keyIRI.String())
	if err != nil {
		logger.Debug("Error retrieving public key from cache", logfields.WithKeyIRI(keyIRI), log.WithError(err))

		return nil, err
	}

	return result.(*vocab.PublicKeyType), nil //nolint:errcheck,forcetypeassert
}

func (c *Client) getPublicKey(keyIRI *url.URL) (*vocab.PublicKeyType, error) {
	respBytes, err := c.get(keyIRI)
	if err != nil {
		return nil, fmt.Errorf("error reading response from %s: %w", keyIRI, err)
	}

	pubKey := &vocab.PublicKeyType{}

	err = json.Unmarshal(respBytes, pubKey)
	if err != nil {
		return nil, merrors.Newf(merrors.KindParse, "invalid public key in response from %s: %s", keyIRI, err)
	}

	return pubKey, nil
}

// Resolve fetches the document at the given IRI and parses it as an ActivityStreams object.
// It implements the vocab.Resolver interface and returns, along with the object, the URL
// that the document was actually loaded from, which may differ from the given IRI due to
// redirects.
func (c *Client) Resolve(ctx context.Context, iri *url.URL) (*vocab.ObjectType, *url.URL, error) {
	respBytes, docURL, err := c.getFrom(ctx, iri)
	if err != nil {
		return nil, nil, err
	}

	obj := &vocab.ObjectType{}

	if err := json.Unmarshal(respBytes, obj); err != nil {
		return nil, nil, merrors.Newf(merrors.KindParse, "invalid object in response from %s: %s", iri, err)
	}

	return obj, docURL, nil
}

// LookupObject retrieves the ActivityPub object for the given target, which is either the URL
// of an object or a WebFinger handle such as @alice@example.com or acct:alice@example.com.
// A handle is first resolved to the URL of its actor.
//
// An object whose ID is not at the origin of the document it was loaded from is handled
// according to the cross-origin policy: by default the lookup fails with vocab.ErrCrossOrigin.
//
// If the given context is cancelled before the lookup completes then (nil, nil) is returned.
func (c *Client) LookupObject(ctx context.Context, target string, opts ...Option) (*vocab.ObjectType, error) {
	options := newOptions(opts...)

	iri, err := c.resolveTarget(target)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil
		}

		return nil, err
	}

	obj, docURL, err := c.Resolve(ctx, iri)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil
		}

		return nil, err
	}

	if ctx.Err() != nil {
		return nil, nil
	}

	id := obj.ID().URL()
	if id == nil {
		id = docURL
	}

	if !vocab.SameOrigin(id, docURL) {
		switch options.crossOriginPolicy {
		case vocab.CrossOriginReject:
			return nil, fmt.Errorf("id [%s] of object from [%s]: %w", id, docURL, vocab.ErrCrossOrigin)
		case vocab.CrossOriginIgnore:
			logger.Debug("Ignoring cross-origin object", logfields.WithObjectIRI(id),
				logfields.WithRequestURL(docURL))

			return nil, ErrNotFound
		case vocab.CrossOriginTrust:
		}
	}

	return obj, nil
}

func (c *Client) resolveTarget(target string) (*url.URL, error) {
	if strings.Contains(target, "://") {
		iri, err := url.Parse(target)
		if err != nil {
			return nil, merrors.Newf(merrors.KindURL, "parse target [%s]: %s", target, err)
		}

		if iri.Scheme != "http" && iri.Scheme != "https" {
			return nil, merrors.Newf(merrors.KindURL, "unsupported scheme in target [%s]", target)
		}

		return iri, nil
	}

	if c.handleResolver == nil {
		return nil, fmt.Errorf("no WebFinger resolver to resolve handle [%s]", target)
	}

	actorURL, err := c.handleResolver.ResolveActorURL(target)
	if err != nil {
		return nil, fmt.Errorf("resolve handle [%s]: %w", target, err)
	}

	logger.Debug("Resolved handle", logfields.WithHandle(target), logfields.WithActorIRI(actorURL))

	return actorURL, nil
}

// GetReferences returns an iterator that reads all references at the given IRI. The IRI either
// resolves to an ActivityPub actor, collection or ordered collection.
func (c *Client) GetReferences(iri *url.URL) (ReferenceIterator, error) {
	respBytes, err := c.get(iri)
	if err != nil {
		return nil, fmt.Errorf("error reading response from %s: %w", iri, err)
	}

	objProps, firstPage, _, totalItems, err := unmarshalCollection(respBytes)
	if err != nil {
		return nil, fmt.Errorf("error unmarshalling response from %s: %w", iri, err)
	}

	var items []*url.URL

	for _, prop := range objProps {
		if prop.IRI() != nil {
			items = append(items, prop.IRI())
		}
	}

	return newReferenceIterator(items, firstPage.ID(), totalItems, c.get), nil
}

// GetActivities returns an iterator that reads activities at the given IRI. The IRI may reference a
// Collection, OrderedCollection, CollectionPage, or OrderedCollectionPage.
func (c *Client) GetActivities(iri *url.URL, order Order) (ActivityIterator, error) {
	respBytes, err := c.get(iri)
	if err != nil {
		return nil, fmt.Errorf("error reading response from %s: %w", iri, err)
	}

	obj := &vocab.ObjectType{}

	err = json.Unmarshal(respBytes, &obj)
	if err != nil {
		return nil, merrors.Newf(merrors.KindParse, "invalid response from %s: %s", iri, err)
	}

	switch {
	case obj.Type().IsAny(vocab.TypeCollection, vocab.TypeOrderedCollection):
		return c.activityIteratorFromCollection(respBytes, order)
	case obj.Type().IsAny(vocab.TypeCollectionPage, vocab.TypeOrderedCollectionPage):
		return c.activityIteratorFromCollectionPage(respBytes, order)
	default:
		return nil, fmt.Errorf("invalid collection type %s", obj.Type())
	}
}

// TraverseCollection returns an iterator over the items of the Collection or OrderedCollection
// at the given IRI. The iterator yields the items of each page in the order returned by the
// source, following the 'first' and 'next' references until the collection is exhausted. Pages
// that were already visited are not followed again, so the iteration is always finite.
//
// WithInterval sets a delay that is applied before each page is retrieved. WithSuppressErrors
// causes items and pages that cannot be retrieved or parsed to be skipped instead of failing
// the iteration.
func (c *Client) TraverseCollection(ctx context.Context, collIRI *url.URL, opts ...Option) (ItemIterator, error) {
	options := newOptions(opts...)

	respBytes, _, err := c.getFrom(ctx, collIRI)
	if err != nil {
		return nil, fmt.Errorf("error reading response from %s: %w", collIRI, err)
	}

	obj := &vocab.ObjectType{}

	if err := json.Unmarshal(respBytes, &obj); err != nil {
		return nil, merrors.Newf(merrors.KindParse, "invalid response from %s: %s", collIRI, err)
	}

	get := func(iri *url.URL) ([]byte, error) {
		b, _, e := c.getFrom(ctx, iri)

		return b, e
	}

	switch {
	case obj.Type().IsAny(vocab.TypeCollection, vocab.TypeOrderedCollection):
		items, first, _, totalItems, err := unmarshalCollection(respBytes)
		if err != nil {
			return nil, fmt.Errorf("error unmarshalling response from %s: %w", collIRI, err)
		}

		return newItemIterator(ctx, items, first, totalItems, get, options), nil

	case obj.Type().IsAny(vocab.TypeCollectionPage, vocab.TypeOrderedCollectionPage):
		pg, err := unmarshalCollectionPage(respBytes)
		if err != nil {
			return nil, fmt.Errorf("error unmarshalling response from %s: %w", collIRI, err)
		}

		return newItemIterator(ctx, pg.items, pg.next, pg.totalItems, get, options), nil

	default:
		return nil, fmt.Errorf("invalid collection type %s", obj.Type())
	}
}

func (c *Client) activityIteratorFromCollection(collBytes []byte, order Order) (ActivityIterator, error) {
	_, first, last, totalItems, err := unmarshalCollection(collBytes)
	if err != nil {
		return nil, fmt.Errorf("unmarshal collection: %w", err)
	}

	switch order {
	case Forward:
		logger.Debug("Creating forward activity iterator",
			logfields.WithNextIRI(first.ID()), logfields.WithTotal(totalItems))

		return newForwardActivityIterator(nil, nil, first.ID(), totalItems, c.get), nil
	case Reverse:
		logger.Debug("Creating reverse activity iterator",
			logfields.WithNextIRI(last.ID()), logfields.WithTotal(totalItems))

		return newReverseActivityIterator(nil, nil, last.ID(), totalItems, c.get), nil
	default:
		return nil, fmt.Errorf("invalid order [%s]", order)
	}
}

func (c *Client) activityIteratorFromCollectionPage(collBytes []byte, order Order) (ActivityIterator, error) {
	page, err := unmarshalCollectionPage(collBytes)
	if err != nil {
		return nil, fmt.Errorf("unmarshal collection page: %w", err)
	}

	var activities []*vocab.ActivityType

	for _, prop := range page.items {
		if prop.Activity() != nil {
			activities = append(activities, prop.Activity())
		}
	}

	switch order {
	case Forward:
		logger.Debug("Creating forward activity iterator", logfields.WithCurrentIRI(page.current),
			logfields.WithSize(len(activities)), logfields.WithTotal(page.totalItems))

		return newForwardActivityIterator(activities, page.current, page.next.ID(), page.totalItems, c.get), nil
	case Reverse:
		logger.Debug("Creating reverse activity iterator", logfields.WithCurrentIRI(page.current),
			logfields.WithSize(len(activities)), logfields.WithTotal(page.totalItems))

		return newReverseActivityIterator(activities, page.current, page.prev.ID(), page.totalItems, c.get), nil
	default:
		return nil, fmt.Errorf("invalid order [%s]", order)
	}
}

func (c *Client) get(iri *url.URL) ([]byte, error) {
	respBytes, _, err := c.getFrom(context.Background(), iri)

	return respBytes, err
}

// getFrom retrieves the document at the given IRI, returning the response payload along with
// the URL that the document was loaded from, which may differ from the IRI due to redirects.
func (c *Client) getFrom(ctx context.Context, iri *url.URL) ([]byte, *url.URL, error) {
	resp, err := c.Get(ctx, transport.NewRequest(iri,
		transport.WithHeader(transport.AcceptHeader, transport.ActivityStreamsContentType)))
	if err != nil {
		return nil, nil, merrors.NewTransientf("transient http error: request to %s failed: %w", iri, err)
	}

	defer func() {
		if e := resp.Body.Close(); e != nil {
			logfields.CloseResponseBodyError(logger, e)
		}
	}()

	logger.Debug("Got response", logfields.WithRequestURL(iri), logfields.WithHTTPStatus(resp.StatusCode))

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, nil, merrors.NewTransientf("transient http error: status code %d from %s",
				resp.StatusCode, iri)
		}

		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
			return nil, nil, fmt.Errorf("request to %s: %w", iri, ErrNotFound)
		}

		return nil, nil, fmt.Errorf("request to %s returned status code %d", iri, resp.StatusCode)
	}

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, merrors.NewTransientf("transient http error: read response body from %s: %w", iri, err)
	}

	docURL := iri

	if resp.Request != nil && resp.Request.URL != nil {
		docURL = resp.Request.URL
	}

	return respBytes, docURL, nil
}

type getFunc func(iri *url.URL) ([]byte, error)

type referenceIterator struct {
	totalItems   int
	currentItems []*url.URL
	currentIndex int
	nextPage     *url.URL
	get          getFunc
}

func newReferenceIterator(items []*url.URL, nextPage *url.URL, totalItems int, retrieve getFunc) *referenceIterator {
	return &referenceIterator{
		currentItems: items,
		totalItems:   totalItems,
		nextPage:     nextPage,
		get:          retrieve,
		currentIndex: 0,
	}
}

func (it *referenceIterator) Next() (*url.URL, error) {
	if it.currentIndex >= len(it.currentItems) {
		err := it.getNextPage()
		if err != nil {
			return nil, err
		}
	}

	item := it.currentItems[it.currentIndex]

	it.currentIndex++

	return item, nil
}

func (it *referenceIterator) TotalItems() int {
	return it.totalItems
}

func (it *referenceIterator) getNextPage() error {
	if it.nextPage == nil {
		logger.Debug("No more pages")

		return ErrNotFound
	}

	logger.Debug("Retrieving next page", logfields.WithNextIRI(it.nextPage))

	respBytes, err := it.get(it.nextPage)
	if err != nil {
		return fmt.Errorf("get references from %s: %w", it.nextPage, err)
	}

	page, err := unmarshalCollectionPage(respBytes)
	if err != nil {
		return err
	}

	var refs []*url.URL

	for _, item := range page.items {
		if item.IRI() != nil {
			refs = append(refs, item.IRI())
		} else {
			logger.Warn("Expecting IRI item for collection page but got an embedded object",
				logfields.WithType(item.Type().String()))
		}
	}

	it.currentItems = refs
	it.currentIndex = 0
	it.nextPage = page.next.ID()

	if len(it.currentItems) == 0 {
		return ErrNotFound
	}

	return nil
}

type getNextIRIFunc func(next, prev *url.URL) *url.URL

type appendFunc func(activities []*vocab.ActivityType, activity *vocab.ActivityType) []*vocab.ActivityType

type activityIterator struct {
	currentItems   []*vocab.ActivityType
	currentPage    *url.URL
	nextPage       *url.URL
	totalItems     int
	currentIndex   int
	numProcessed   int
	get            getFunc
	getNext        getNextIRIFunc
	appendActivity appendFunc
}

func newActivityIterator(items []*vocab.ActivityType, currentPage, nextPage *url.URL, totalItems int,
	get getFunc, getNext getNextIRIFunc, appendActivity appendFunc) *activityIterator {
	return &activityIterator{
		currentItems:   items,
		currentPage:    currentPage,
		nextPage:       nextPage,
		totalItems:     totalItems,
		get:            get,
		getNext:        getNext,
		appendActivity: appendActivity,
	}
}

func (it *activityIterator) CurrentPage() *url.URL {
	return it.currentPage
}

func (it *activityIterator) SetNextIndex(index int) {
	it.numProcessed += index - it.currentIndex
	it.currentIndex = index
}

func (it *activityIterator) NextIndex() int {
	return it.currentIndex
}

func (it *activityIterator) NextPage() (*url.URL, error) {
	unprocessedCount := len(it.currentItems) - it.currentIndex

	if err := it.getNextPage(); err != nil {
		if errors.Is(err, ErrNotFound) {
			it.numProcessed += unprocessedCount
		}

		return nil, err
	}

	it.numProcessed += unprocessedCount

	return it.CurrentPage(), nil
}

func (it *activityIterator) Next() (*vocab.ActivityType, error) {
	if it.numProcessed >= it.totalItems {
		// All items were already processed. There may actually be additional items if we retrieve
		// another page (since items keep being added in a running system) but we want to process
		// only the items that were available when the iterator was created.
		return nil, ErrNotFound
	}

	if it.currentIndex >= len(it.currentItems) {
		err := it.getNextPage()
		if err != nil {
			return nil, err
		}
	}

	item := it.currentItems[it.currentIndex]

	it.currentIndex++
	it.numProcessed++

	return item, nil
}

func (it *activityIterator) TotalItems() int {
	return it.totalItems
}

func (it *activityIterator) getNextPage() error {
	if it.nextPage == nil {
		logger.Debug("No more pages")

		return ErrNotFound
	}

	logger.Debug("Retrieving next page", logfields.WithNextIRI(it.nextPage))

	respBytes, err := it.get(it.nextPage)
	if err != nil {
		return fmt.Errorf("get activities from %s: %w", it.nextPage, err)
	}

	page, err := unmarshalCollectionPage(respBytes)
	if err != nil {
		return err
	}

	var activities []*vocab.ActivityType

	for _, item := range page.items {
		if item.Activity() != nil {
			activities = it.appendActivity(activities, item.Activity())
		} else {
			logger.Warn("Expecting activity item for collection page but got a different type",
				logfields.WithType(item.Type().String()))
		}
	}

	it.currentIndex = 0
	it.currentItems = activities
	it.currentPage = page.current
	it.nextPage = it.getNext(page.next.ID(), page.prev.ID())

	if len(it.currentItems) == 0 {
		return ErrNotFound
	}

	return nil
}

func newForwardActivityIterator(items []*vocab.ActivityType, currentPage, nextPage *url.URL,
	totalItems int, retrieve getFunc) *activityIterator {
	return newActivityIterator(items, currentPage, nextPage, totalItems, retrieve,
		func(next, _ *url.URL) *url.URL {
			return next
		},
		func(activities []*vocab.ActivityType, activity *vocab.ActivityType) []*vocab.ActivityType {
			return append(activities, activity)
		},
	)
}

func newReverseActivityIterator(items []*vocab.ActivityType, currentPage, nextPage *url.URL,
	totalItems int, retrieve getFunc) *activityIterator {
	return newActivityIterator(reverseSort(items), currentPage, nextPage, totalItems, retrieve,
		func(_, prev *url.URL) *url.URL {
			return prev
		},
		func(activities []*vocab.ActivityType, activity *vocab.ActivityType) []*vocab.ActivityType {
			// Prepend the activity since we're iterating in reverse order.
			return append([]*vocab.ActivityType{activity}, activities...)
		},
	)
}

type itemIterator struct {
	ctx            context.Context
	currentItems   []*vocab.ObjectProperty
	currentIndex   int
	nextPage       *vocab.ObjectProperty
	totalItems     int
	interval       time.Duration
	suppressErrors bool
	visited        map[string]bool
	get            getFunc
}

func newItemIterator(ctx context.Context, items []*vocab.ObjectProperty, nextPage *vocab.ObjectProperty,
	totalItems int, retrieve getFunc, options *options) *itemIterator {
	return &itemIterator{
		ctx:            ctx,
		currentItems:   items,
		nextPage:       nextPage,
		totalItems:     totalItems,
		interval:       options.interval,
		suppressErrors: options.suppressErrors,
		visited:        make(map[string]bool),
		get:            retrieve,
	}
}

func (it *itemIterator) Next() (*vocab.ObjectProperty, error) {
	for {
		if err := it.ctx.Err(); err != nil {
			return nil, merrors.New(merrors.KindCancelled, err)
		}

		if it.currentIndex < len(it.currentItems) {
			item := it.currentItems[it.currentIndex]

			it.currentIndex++

			if item.ID() == nil && item.Type() == nil {
				if it.suppressErrors {
					logger.Warn("Skipping invalid item in collection page")

					continue
				}

				return nil, fmt.Errorf("invalid item in collection page")
			}

			return item, nil
		}

		if err := it.getNextPage(); err != nil {
			if it.suppressErrors && !errors.Is(err, ErrNotFound) && !merrors.IsKind(err, merrors.KindCancelled) {
				logger.Warn("Error retrieving the next page of the collection. No more items will be returned.",
					log.WithError(err))

				return nil, ErrNotFound
			}

			return nil, err
		}
	}
}

func (it *itemIterator) TotalItems() int {
	return it.totalItems
}

func (it *itemIterator) getNextPage() error {
	if it.nextPage == nil {
		logger.Debug("No more pages")

		return ErrNotFound
	}

	next := it.nextPage

	// The next page reference may hold the page itself.
	if pg := pageFromProperty(next); pg != nil {
		if it.markVisited(pg.current) {
			return ErrNotFound
		}

		return it.setPage(pg)
	}

	pageIRI := next.ID()
	if pageIRI == nil {
		return fmt.Errorf("next page reference has no IRI")
	}

	if it.markVisited(pageIRI) {
		return ErrNotFound
	}

	if it.interval > 0 {
		select {
		case <-time.After(it.interval):
		case <-it.ctx.Done():
			return merrors.New(merrors.KindCancelled, it.ctx.Err())
		}
	}

	logger.Debug("Retrieving next page", logfields.WithNextIRI(pageIRI))

	respBytes, err := it.get(pageIRI)
	if err != nil {
		return fmt.Errorf("get collection page %s: %w", pageIRI, err)
	}

	pg, err := unmarshalCollectionPage(respBytes)
	if err != nil {
		return err
	}

	// The self-declared ID of the page may differ from the reference that was used
	// to retrieve it. Track it as well so that a cycle through either is detected.
	if pg.current != nil && pg.current.String() != pageIRI.String() && it.markVisited(pg.current) {
		return ErrNotFound
	}

	return it.setPage(pg)
}

// markVisited records the given page IRI and reports whether it was already visited.
func (it *itemIterator) markVisited(pageIRI *url.URL) bool {
	if pageIRI == nil {
		return false
	}

	if it.visited[pageIRI.String()] {
		logger.Warn("Page was already visited. Stopping traversal.", logfields.WithURI(pageIRI))

		return true
	}

	it.visited[pageIRI.String()] = true

	return false
}

func (it *itemIterator) setPage(pg *page) error {
	it.currentItems = pg.items
	it.currentIndex = 0
	it.nextPage = pg.next

	if len(it.currentItems) == 0 {
		return it.getNextPage()
	}

	return nil
}

func unmarshalCollection(respBytes []byte) (items []*vocab.ObjectProperty, firstPage, lastPage *vocab.ObjectProperty,
	totalCount int, err error) {
	obj := &vocab.ObjectType{}

	if err := json.Unmarshal(respBytes, &obj); err != nil {
		return nil, nil, nil, 0, merrors.Newf(merrors.KindParse, "invalid object in response: %s", err)
	}

	switch {
	case obj.Type().IsAny(vocab.TypeApplication, vocab.TypeGroup, vocab.TypeOrganization,
		vocab.TypePerson, vocab.TypeService):
		actor := &vocab.ActorType{}
		if err := json.Unmarshal(respBytes, actor); err != nil {
			return nil, nil, nil, 0, merrors.Newf(merrors.KindParse, "invalid actor in response: %s", err)
		}

		return []*vocab.ObjectProperty{vocab.NewObjectProperty(vocab.WithIRI(actor.ID().URL()))},
			nil, nil, 1, nil

	case obj.Type().Is(vocab.TypeCollection):
		coll := &vocab.CollectionType{}
		if err := json.Unmarshal(respBytes, coll); err != nil {
			return nil, nil, nil, 0, merrors.Newf(merrors.KindParse, "invalid collection in response: %s", err)
		}

		return coll.Items(), coll.First(), coll.Last(), coll.TotalItems(), nil

	case obj.Type().Is(vocab.TypeOrderedCollection):
		coll := &vocab.OrderedCollectionType{}
		if err := json.Unmarshal(respBytes, coll); err != nil {
			return nil, nil, nil, 0,
				merrors.Newf(merrors.KindParse, "invalid ordered collection in response: %s", err)
		}

		return coll.Items(), coll.First(), coll.Last(), coll.TotalItems(), nil

	default:
		return nil, nil, nil, 0,
			fmt.Errorf("expecting actor, Collection or OrderedCollection in response payload")
	}
}

type page struct {
	items      []*vocab.ObjectProperty
	current    *url.URL
	next, prev *vocab.ObjectProperty
	totalItems int
}

func unmarshalCollectionPage(respBytes []byte) (*page, error) {
	obj := &vocab.ObjectType{}

	if err := json.Unmarshal(respBytes, &obj); err != nil {
		return nil, merrors.Newf(merrors.KindParse, "invalid object in response: %s", err)
	}

	switch {
	case obj.Type().Is(vocab.TypeCollectionPage):
		coll := &vocab.CollectionPageType{}

		err := json.Unmarshal(respBytes, coll)
		if err != nil {
			return nil, merrors.Newf(merrors.KindParse, "invalid collection page in response: %s", err)
		}

		return &page{
			items:      coll.Items(),
			current:    coll.ID().URL(),
			next:       coll.Next(),
			prev:       coll.Prev(),
			totalItems: coll.TotalItems(),
		}, nil

	case obj.Type().Is(vocab.TypeOrderedCollectionPage):
		coll := &vocab.OrderedCollectionPageType{}

		err := json.Unmarshal(respBytes, coll)
		if err != nil {
			return nil, merrors.Newf(merrors.KindParse, "invalid ordered collection page in response: %s", err)
		}

		return &page{
			items:      coll.Items(),
			current:    coll.ID().URL(),
			next:       coll.Next(),
			prev:       coll.Prev(),
			totalItems: coll.TotalItems(),
		}, nil

	default:
		return nil, fmt.Errorf("expecting CollectionPage or OrderedCollectionPage in response payload")
	}
}

// pageFromProperty returns the collection page embedded in the given property,
// or nil if the property is a reference.
func pageFromProperty(prop *vocab.ObjectProperty) *page {
	if p := prop.CollectionPage(); p != nil {
		return &page{
			items:      p.Items(),
			current:    p.ID().URL(),
			next:       p.Next(),
			prev:       p.Prev(),
			totalItems: p.TotalItems(),
		}
	}

	if p := prop.OrderedCollectionPage(); p != nil {
		return &page{
			items:      p.Items(),
			current:    p.ID().URL(),
			next:       p.Next(),
			prev:       p.Prev(),
			totalItems: p.TotalItems(),
		}
	}

	return nil
}

func reverseSort(items []*vocab.ActivityType) []*vocab.ActivityType {
	sort.SliceStable(items,
		func(i, j int) bool {
			return i > j //nolint:gocritic
		},
	)

	return items
}
