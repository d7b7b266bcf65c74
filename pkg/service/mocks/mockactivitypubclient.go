/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mocks

import (
	"fmt"
	"net/url"

	"github.com/meridianfed/meridian/pkg/client"
	"github.com/meridianfed/meridian/pkg/vocab"
)

// ActivityPubClient is a mock ActivityPub client.
type ActivityPubClient struct {
	actors     map[string]*vocab.ActorType
	references map[string][]*url.URL
	activities []*vocab.ActivityType
	err        error
}

// NewActivityPubClient returns a mock ActivityPub client.
func NewActivityPubClient() *ActivityPubClient {
	return &ActivityPubClient{
		actors:     make(map[string]*vocab.ActorType),
		references: make(map[string][]*url.URL),
	}
}

// WithActor adds the given actor to the map of actors which is used
// by GetActor.
func (m *ActivityPubClient) WithActor(actor *vocab.ActorType) *ActivityPubClient {
	m.actors[actor.ID().String()] = actor

	return m
}

// WithReferences sets the references that are returned by GetReferences for
// the given IRI.
func (m *ActivityPubClient) WithReferences(iri *url.URL, refs ...*url.URL) *ActivityPubClient {
	m.references[iri.String()] = refs

	return m
}

// WithActivities sets the activities that are served by GetActivities.
func (m *ActivityPubClient) WithActivities(activities []*vocab.ActivityType) *ActivityPubClient {
	m.activities = activities

	return m
}

// WithError sets an error to be returned when any function is invoked on this struct.
func (m *ActivityPubClient) WithError(err error) *ActivityPubClient {
	m.err = err

	return m
}

// GetActor returns the actor for the given IRI.
func (m *ActivityPubClient) GetActor(actorIRI *url.URL) (*vocab.ActorType, error) {
	if m.err != nil {
		return nil, m.err
	}

	actor, ok := m.actors[actorIRI.String()]
	if !ok {
		return nil, fmt.Errorf("not found")
	}

	return actor, nil
}

// GetReferences returns an iterator over the references registered for the
// given IRI. If no references are registered then an iterator containing just
// the IRI is returned, which is the behaviour of the real client when the IRI
// points at an actor rather than a collection.
func (m *ActivityPubClient) GetReferences(iri *url.URL) (client.ReferenceIterator, error) {
	if m.err != nil {
		return nil, m.err
	}

	refs, ok := m.references[iri.String()]
	if !ok {
		refs = []*url.URL{iri}
	}

	return NewReferenceIterator(refs...), nil
}

// ReferenceIterator is a mock reference iterator.
type ReferenceIterator struct {
	refs    []*url.URL
	current int
}

// NewReferenceIterator returns a mock reference iterator over the given references.
func NewReferenceIterator(refs ...*url.URL) *ReferenceIterator {
	return &ReferenceIterator{refs: refs}
}

// Next returns the next reference or client.ErrNotFound if there are no more references.
func (it *ReferenceIterator) Next() (*url.URL, error) {
	if it.current >= len(it.refs) {
		return nil, client.ErrNotFound
	}

	ref := it.refs[it.current]

	it.current++

	return ref, nil
}

// TotalItems returns the total number of references.
func (it *ReferenceIterator) TotalItems() int {
	return len(it.refs)
}

const mockPageSize = 3

// GetActivities returns an iterator over the configured activities, split into
// pages of three. The page IRIs are derived from the given IRI (with the query
// stripped), so that passing a previously returned page IRI resumes the
// iteration at that page, which is the behaviour of the real client.
func (m *ActivityPubClient) GetActivities(iri *url.URL, _ client.Order) (client.ActivityIterator, error) {
	if m.err != nil {
		return nil, m.err
	}

	base := *iri
	base.RawQuery = ""

	var (
		pages    [][]*vocab.ActivityType
		pageIRIs []*url.URL
	)

	for i := 0; i < len(m.activities); i += mockPageSize {
		end := i + mockPageSize
		if end > len(m.activities) {
			end = len(m.activities)
		}

		pageIRI := base
		pageIRI.RawQuery = fmt.Sprintf("page=%d", len(pages))

		pages = append(pages, m.activities[i:end])
		pageIRIs = append(pageIRIs, &pageIRI)
	}

	it := &ActivityIterator{
		pages:    pages,
		pageIRIs: pageIRIs,
		total:    len(m.activities),
	}

	for i, pageIRI := range pageIRIs {
		if pageIRI.String() == iri.String() {
			it.page = i

			break
		}
	}

	return it, nil
}

// ActivityIterator is a mock activity iterator over a paged result set.
type ActivityIterator struct {
	pages    [][]*vocab.ActivityType
	pageIRIs []*url.URL
	page     int
	index    int
	total    int
}

// Next returns the next activity or client.ErrNotFound if there are no more activities.
func (it *ActivityIterator) Next() (*vocab.ActivityType, error) {
	for it.page < len(it.pages) {
		if it.index < len(it.pages[it.page]) {
			a := it.pages[it.page][it.index]

			it.index++

			return a, nil
		}

		it.page++
		it.index = 0
	}

	return nil, client.ErrNotFound
}

// NextPage advances the iterator to the next page.
func (it *ActivityIterator) NextPage() (*url.URL, error) {
	if it.page+1 >= len(it.pages) {
		return nil, client.ErrNotFound
	}

	it.page++
	it.index = 0

	return it.pageIRIs[it.page], nil
}

// SetNextIndex sets the index of the next activity within the current page that
// Next will return.
func (it *ActivityIterator) SetNextIndex(index int) {
	it.index = index
}

// NextIndex returns the index of the next activity within the current page.
func (it *ActivityIterator) NextIndex() int {
	return it.index
}

// CurrentPage returns the IRI of the current page.
func (it *ActivityIterator) CurrentPage() *url.URL {
	if it.page >= len(it.pageIRIs) {
		return nil
	}

	return it.pageIRIs[it.page]
}

// TotalItems returns the total number of activities.
func (it *ActivityIterator) TotalItems() int {
	return it.total
}
