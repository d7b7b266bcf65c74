/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vocab

import (
	"encoding/json"
	"net/url"
)

// ObjectProperty defines an 'object' property. The property may be a simple IRI or
// an embedded object such as 'Collection', 'OrderedCollection', 'Activity', etc.
type ObjectProperty struct {
	iri             *URLProperty
	obj             *ObjectType
	coll            *CollectionType
	orderedColl     *OrderedCollectionType
	collPage        *CollectionPageType
	orderedCollPage *OrderedCollectionPageType
	activity        *ActivityType
	actor           *ActorType
	trusted         bool
	owner           *ObjectType
}

// NewObjectProperty returns a new 'object' property with the given options.
func NewObjectProperty(opts ...Opt) *ObjectProperty {
	options := NewOptions(opts...)

	return &ObjectProperty{
		iri:             NewURLProperty(options.Iri),
		obj:             options.Object,
		coll:            options.Collection,
		orderedColl:     options.OrderedCollection,
		collPage:        options.CollectionPage,
		orderedCollPage: options.OrderedCollectionPage,
		activity:        options.Activity,
	}
}

// Type returns the type of the object property. If the property
// is an IRI then nil is returned.
func (p *ObjectProperty) Type() *TypeProperty {
	if p == nil {
		return nil
	}

	switch {
	case p.obj != nil:
		return p.obj.Type()
	case p.coll != nil:
		return p.coll.Type()
	case p.orderedColl != nil:
		return p.orderedColl.Type()
	case p.collPage != nil:
		return p.collPage.Type()
	case p.orderedCollPage != nil:
		return p.orderedCollPage.Type()
	case p.activity != nil:
		return p.activity.Type()
	case p.actor != nil:
		return p.actor.Type()
	default:
		return nil
	}
}

// IRI returns the IRI or nil if the IRI is not set.
func (p *ObjectProperty) IRI() *url.URL {
	if p == nil || p.iri == nil {
		return nil
	}

	return p.iri.u
}

// ID returns the ID of the property: the IRI if the property is a reference,
// otherwise the 'id' of the embedded object.
func (p *ObjectProperty) ID() *url.URL {
	if p == nil {
		return nil
	}

	if p.iri != nil {
		return p.iri.u
	}

	if obj := p.anyObject(); obj != nil {
		return obj.ID().URL()
	}

	return nil
}

// Object returns the plain embedded object or nil if the property holds an IRI
// or an object of another shape.
func (p *ObjectProperty) Object() *ObjectType {
	if p == nil {
		return nil
	}

	return p.obj
}

// Collection returns the embedded 'Collection' or nil.
func (p *ObjectProperty) Collection() *CollectionType {
	if p == nil {
		return nil
	}

	return p.coll
}

// OrderedCollection returns the embedded 'OrderedCollection' or nil.
func (p *ObjectProperty) OrderedCollection() *OrderedCollectionType {
	if p == nil {
		return nil
	}

	return p.orderedColl
}

// CollectionPage returns the embedded 'CollectionPage' or nil.
func (p *ObjectProperty) CollectionPage() *CollectionPageType {
	if p == nil {
		return nil
	}

	return p.collPage
}

// OrderedCollectionPage returns the embedded 'OrderedCollectionPage' or nil.
func (p *ObjectProperty) OrderedCollectionPage() *OrderedCollectionPageType {
	if p == nil {
		return nil
	}

	return p.orderedCollPage
}

// Activity returns the embedded activity or nil.
func (p *ObjectProperty) Activity() *ActivityType {
	if p == nil {
		return nil
	}

	return p.activity
}

// Actor returns the embedded actor or nil.
func (p *ObjectProperty) Actor() *ActorType {
	if p == nil {
		return nil
	}

	return p.actor
}

// Trusted returns true if the property holds an object which was loaded from a
// document with the same origin as the object's own ID.
func (p *ObjectProperty) Trusted() bool {
	return p != nil && p.trusted
}

// bindOwner associates the property with the object that holds it, so that
// the owner's memoised document may be invalidated when the property is
// resolved in place.
func (p *ObjectProperty) bindOwner(owner *ObjectType) {
	if p != nil {
		p.owner = owner
	}
}

// anyObject returns the embedded object regardless of its shape.
func (p *ObjectProperty) anyObject() *ObjectType {
	switch {
	case p.obj != nil:
		return p.obj
	case p.coll != nil:
		return p.coll.ObjectType
	case p.orderedColl != nil:
		return p.orderedColl.ObjectType
	case p.collPage != nil:
		return p.collPage.ObjectType
	case p.orderedCollPage != nil:
		return p.orderedCollPage.ObjectType
	case p.activity != nil:
		return p.activity.ObjectType
	case p.actor != nil:
		return p.actor.ObjectType
	default:
		return nil
	}
}

// MarshalJSON marshals the 'object' property.
func (p *ObjectProperty) MarshalJSON() ([]byte, error) {
	switch {
	case p.iri != nil:
		return json.Marshal(p.iri)
	case p.obj != nil:
		return json.Marshal(p.obj)
	case p.coll != nil:
		return json.Marshal(p.coll)
	case p.orderedColl != nil:
		return json.Marshal(p.orderedColl)
	case p.collPage != nil:
		return json.Marshal(p.collPage)
	case p.orderedCollPage != nil:
		return json.Marshal(p.orderedCollPage)
	case p.activity != nil:
		return json.Marshal(p.activity)
	case p.actor != nil:
		return json.Marshal(p.actor)
	default:
		return nil, nil
	}
}

// UnmarshalJSON unmarshals the 'object' property. An embedded object is
// interpreted according to its 'type'.
func (p *ObjectProperty) UnmarshalJSON(bytes []byte) error {
	if len(bytes) == 0 {
		return nil
	}

	iri := &URLProperty{}

	err := json.Unmarshal(bytes, &iri)
	if err == nil {
		p.iri = iri

		return nil
	}

	obj := &ObjectType{}

	if err := json.Unmarshal(bytes, &obj); err != nil {
		return err
	}

	return p.setObject(obj, bytes)
}

//nolint:cyclop
func (p *ObjectProperty) setObject(obj *ObjectType, bytes []byte) error {
	switch {
	case obj.Type().Is(TypeCollection):
		p.coll = &CollectionType{}

		return json.Unmarshal(bytes, p.coll)
	case obj.Type().Is(TypeOrderedCollection):
		p.orderedColl = &OrderedCollectionType{}

		return json.Unmarshal(bytes, p.orderedColl)
	case obj.Type().Is(TypeCollectionPage):
		p.collPage = &CollectionPageType{}

		return json.Unmarshal(bytes, p.collPage)
	case obj.Type().Is(TypeOrderedCollectionPage):
		p.orderedCollPage = &OrderedCollectionPageType{}

		return json.Unmarshal(bytes, p.orderedCollPage)
	case obj.Type().IsAny(activityTypes()...):
		p.activity = &ActivityType{}

		return json.Unmarshal(bytes, p.activity)
	case obj.Type().IsAny(actorTypes()...):
		p.actor = &ActorType{}

		return json.Unmarshal(bytes, p.actor)
	default:
		p.obj = obj

		return nil
	}
}

func activityTypes() []Type {
	return []Type{
		TypeAccept, TypeAdd, TypeAnnounce, TypeArrive, TypeBlock, TypeCreate,
		TypeDelete, TypeDislike, TypeFlag, TypeFollow, TypeIgnore, TypeInvite,
		TypeJoin, TypeLeave, TypeLike, TypeListen, TypeMove, TypeOffer,
		TypeQuestion, TypeRead, TypeReject, TypeRemove, TypeTentativeAccept,
		TypeTentativeReject, TypeTravel, TypeUndo, TypeUpdate, TypeView,
	}
}

func actorTypes() []Type {
	return []Type{
		TypeApplication, TypeGroup, TypeOrganization, TypePerson, TypeService,
	}
}
