/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vocab

import (
	"net/url"
)

// CollectionType defines a "Collection" type.
type CollectionType struct {
	*ObjectType

	coll *collectionType
}

type collectionType struct {
	Current    *URLProperty      `json:"current,omitempty"`
	First      *ObjectProperty   `json:"first,omitempty"`
	Last       *ObjectProperty   `json:"last,omitempty"`
	TotalItems int               `json:"totalItems"`
	Items      []*ObjectProperty `json:"items,omitempty"`
}

// TotalItems returns the total number of items in the collection.
func (t *CollectionType) TotalItems() int {
	return t.coll.TotalItems
}

// Items returns the items in the collection.
func (t *CollectionType) Items() []*ObjectProperty {
	items := make([]*ObjectProperty, len(t.coll.Items))

	copy(items, t.coll.Items)

	return items
}

// Current returns the page containing the items that were most recently updated.
func (t *CollectionType) Current() *url.URL {
	return t.coll.Current.URL()
}

// First returns the first page of the collection, either as an IRI or as an
// embedded collection page.
func (t *CollectionType) First() *ObjectProperty {
	return t.coll.First
}

// Last returns the last page of the collection, either as an IRI or as an
// embedded collection page.
func (t *CollectionType) Last() *ObjectProperty {
	return t.coll.Last
}

// NewCollection returns a new collection.
func NewCollection(items []*ObjectProperty, opts ...Opt) *CollectionType {
	options := NewOptions(opts...)

	totalItems := options.TotalItems
	if totalItems == 0 {
		totalItems = len(items)
	}

	return &CollectionType{
		ObjectType: NewObject(
			WithContext(options.Context...),
			WithID(options.ID),
			WithType(TypeCollection),
		),
		coll: &collectionType{
			Current:    NewURLProperty(options.Current),
			First:      options.First,
			Last:       options.Last,
			TotalItems: totalItems,
			Items:      items,
		},
	}
}

// MarshalJSON marshals the collection.
func (t *CollectionType) MarshalJSON() ([]byte, error) {
	return MarshalJSON(t.ObjectType, t.coll)
}

// UnmarshalJSON unmarshals the collection.
func (t *CollectionType) UnmarshalJSON(bytes []byte) error {
	t.ObjectType = NewObject()
	t.coll = &collectionType{}

	err := UnmarshalJSON(bytes, t.ObjectType, t.coll)
	if err != nil {
		return err
	}

	t.coll.First.bindOwner(t.ObjectType)
	t.coll.Last.bindOwner(t.ObjectType)

	for _, item := range t.coll.Items {
		item.bindOwner(t.ObjectType)
	}

	return nil
}

// OrderedCollectionType defines an "OrderedCollection" type.
type OrderedCollectionType struct {
	*CollectionType

	orderedColl *orderedCollectionType
}

// NewOrderedCollection returns a new ordered collection.
func NewOrderedCollection(items []*ObjectProperty, opts ...Opt) *OrderedCollectionType {
	t := &OrderedCollectionType{
		CollectionType: NewCollection(nil, opts...),
		orderedColl:    &orderedCollectionType{OrderedItems: items},
	}

	t.object.Type = NewTypeProperty(TypeOrderedCollection)

	if t.coll.TotalItems == 0 {
		t.coll.TotalItems = len(items)
	}

	return t
}

type orderedCollectionType struct {
	OrderedItems []*ObjectProperty `json:"orderedItems,omitempty"`
}

// Items returns the items in the ordered collection.
func (t *OrderedCollectionType) Items() []*ObjectProperty {
	items := make([]*ObjectProperty, len(t.orderedColl.OrderedItems))

	copy(items, t.orderedColl.OrderedItems)

	return items
}

// MarshalJSON marshals the ordered collection.
func (t *OrderedCollectionType) MarshalJSON() ([]byte, error) {
	return MarshalJSON(t.CollectionType, t.orderedColl)
}

// UnmarshalJSON unmarshals the ordered collection.
func (t *OrderedCollectionType) UnmarshalJSON(bytes []byte) error {
	t.CollectionType = &CollectionType{}
	t.orderedColl = &orderedCollectionType{}

	err := UnmarshalJSON(bytes, t.CollectionType, t.orderedColl)
	if err != nil {
		return err
	}

	for _, item := range t.orderedColl.OrderedItems {
		item.bindOwner(t.ObjectType)
	}

	return nil
}
