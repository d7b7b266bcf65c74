/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vocab

import (
	"net/url"
)

// CollectionPageType defines a "CollectionPage" type.
type CollectionPageType struct {
	*CollectionType

	collPage *collectionPageType
}

type collectionPageType struct {
	PartOf *URLProperty    `json:"partOf,omitempty"`
	Next   *ObjectProperty `json:"next,omitempty"`
	Prev   *ObjectProperty `json:"prev,omitempty"`
}

// NewCollectionPage returns a new collection page.
func NewCollectionPage(items []*ObjectProperty, opts ...Opt) *CollectionPageType {
	options := NewOptions(opts...)

	t := &CollectionPageType{
		CollectionType: NewCollection(items, opts...),
		collPage: &collectionPageType{
			PartOf: NewURLProperty(options.PartOf),
			Next:   options.Next,
			Prev:   options.Prev,
		},
	}

	t.object.Type = NewTypeProperty(TypeCollectionPage)

	return t
}

// PartOf returns the URL of the collection of which this page is a part.
func (t *CollectionPageType) PartOf() *url.URL {
	return t.collPage.PartOf.URL()
}

// Next returns the next page, either as an IRI or as an embedded page.
func (t *CollectionPageType) Next() *ObjectProperty {
	return t.collPage.Next
}

// Prev returns the previous page, either as an IRI or as an embedded page.
func (t *CollectionPageType) Prev() *ObjectProperty {
	return t.collPage.Prev
}

// MarshalJSON marshals the collection page.
func (t *CollectionPageType) MarshalJSON() ([]byte, error) {
	return MarshalJSON(t.CollectionType, t.collPage)
}

// UnmarshalJSON unmarshals the collection page.
func (t *CollectionPageType) UnmarshalJSON(bytes []byte) error {
	t.CollectionType = &CollectionType{}
	t.collPage = &collectionPageType{}

	err := UnmarshalJSON(bytes, t.CollectionType, t.collPage)
	if err != nil {
		return err
	}

	t.collPage.Next.bindOwner(t.ObjectType)
	t.collPage.Prev.bindOwner(t.ObjectType)

	return nil
}

// OrderedCollectionPageType defines an "OrderedCollectionPage" type.
type OrderedCollectionPageType struct {
	*OrderedCollectionType

	collPage *collectionPageType
}

// NewOrderedCollectionPage returns a new ordered collection page.
func NewOrderedCollectionPage(items []*ObjectProperty, opts ...Opt) *OrderedCollectionPageType {
	options := NewOptions(opts...)

	t := &OrderedCollectionPageType{
		OrderedCollectionType: NewOrderedCollection(items, opts...),
		collPage: &collectionPageType{
			PartOf: NewURLProperty(options.PartOf),
			Next:   options.Next,
			Prev:   options.Prev,
		},
	}

	t.object.Type = NewTypeProperty(TypeOrderedCollectionPage)

	return t
}

// PartOf returns the URL of the collection of which this page is a part.
func (t *OrderedCollectionPageType) PartOf() *url.URL {
	return t.collPage.PartOf.URL()
}

// Next returns the next page, either as an IRI or as an embedded page.
func (t *OrderedCollectionPageType) Next() *ObjectProperty {
	return t.collPage.Next
}

// Prev returns the previous page, either as an IRI or as an embedded page.
func (t *OrderedCollectionPageType) Prev() *ObjectProperty {
	return t.collPage.Prev
}

// MarshalJSON marshals the ordered collection page.
func (t *OrderedCollectionPageType) MarshalJSON() ([]byte, error) {
	return MarshalJSON(t.OrderedCollectionType, t.collPage)
}

// UnmarshalJSON unmarshals the ordered collection page.
func (t *OrderedCollectionPageType) UnmarshalJSON(bytes []byte) error {
	t.OrderedCollectionType = &OrderedCollectionType{}
	t.collPage = &collectionPageType{}

	err := UnmarshalJSON(bytes, t.OrderedCollectionType, t.collPage)
	if err != nil {
		return err
	}

	t.collPage.Next.bindOwner(t.ObjectType)
	t.collPage.Prev.bindOwner(t.ObjectType)

	return nil
}
