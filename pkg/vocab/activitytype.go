/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vocab

import (
	"net/url"
)

// ActivityType defines an 'activity'.
type ActivityType struct {
	*ObjectType

	activity *activityType
}

type activityType struct {
	Actor      *ObjectProperty `json:"actor,omitempty"`
	Object     *ObjectProperty `json:"object,omitempty"`
	Target     *ObjectProperty `json:"target,omitempty"`
	Result     *ObjectProperty `json:"result,omitempty"`
	Origin     *ObjectProperty `json:"origin,omitempty"`
	Instrument *ObjectProperty `json:"instrument,omitempty"`
}

// Actor returns the actor for the activity. If the actor is an embedded
// object then its ID is returned.
func (t *ActivityType) Actor() *url.URL {
	if t == nil || t.activity.Actor == nil {
		return nil
	}

	return t.activity.Actor.ID()
}

// SetActor sets the actor for the activity.
func (t *ActivityType) SetActor(iri *url.URL) {
	t.activity.Actor = NewObjectProperty(WithIRI(iri))
	t.invalidateRaw()
}

// Object returns the object of the activity.
func (t *ActivityType) Object() *ObjectProperty {
	if t == nil {
		return nil
	}

	return t.activity.Object
}

// Target returns the target of the activity.
func (t *ActivityType) Target() *ObjectProperty {
	return t.activity.Target
}

// Result returns the result of the activity.
func (t *ActivityType) Result() *ObjectProperty {
	return t.activity.Result
}

// Origin returns the origin of the activity.
func (t *ActivityType) Origin() *ObjectProperty {
	return t.activity.Origin
}

// Instrument returns the instrument of the activity.
func (t *ActivityType) Instrument() *ObjectProperty {
	return t.activity.Instrument
}

// MarshalJSON marshals the activity.
func (t *ActivityType) MarshalJSON() ([]byte, error) {
	return MarshalJSON(t.ObjectType, t.activity)
}

// UnmarshalJSON unmarshals the activity.
func (t *ActivityType) UnmarshalJSON(bytes []byte) error {
	t.ObjectType = NewObject()
	t.activity = &activityType{}

	err := UnmarshalJSON(bytes, t.ObjectType, t.activity)
	if err != nil {
		return err
	}

	for _, p := range []*ObjectProperty{
		t.activity.Actor, t.activity.Object, t.activity.Target,
		t.activity.Result, t.activity.Origin, t.activity.Instrument,
	} {
		p.bindOwner(t.ObjectType)
	}

	return nil
}

// NewActivity returns a new activity of the given type.
func NewActivity(aType Type, obj *ObjectProperty, opts ...Opt) *ActivityType {
	options := NewOptions(opts...)

	return &ActivityType{
		ObjectType: NewObject(
			WithContext(getContexts(options, ContextActivityStreams)...),
			WithID(options.ID),
			WithType(aType),
			WithTo(options.To...),
			WithCC(options.CC...),
			WithBTo(options.BTo...),
			WithBCC(options.BCC...),
			WithAudience(options.Audience...),
			WithPublishedTime(options.Published),
		),
		activity: &activityType{
			Actor:      options.Actor,
			Object:     obj,
			Target:     options.Target,
			Result:     options.Result,
			Origin:     options.Origin,
			Instrument: options.Instrument,
		},
	}
}

// NewCreateActivity returns a new 'Create' activity.
func NewCreateActivity(obj *ObjectProperty, opts ...Opt) *ActivityType {
	return NewActivity(TypeCreate, obj, opts...)
}

// NewUpdateActivity returns a new 'Update' activity.
func NewUpdateActivity(obj *ObjectProperty, opts ...Opt) *ActivityType {
	return NewActivity(TypeUpdate, obj, opts...)
}

// NewDeleteActivity returns a new 'Delete' activity.
func NewDeleteActivity(obj *ObjectProperty, opts ...Opt) *ActivityType {
	return NewActivity(TypeDelete, obj, opts...)
}

// NewFollowActivity returns a new 'Follow' activity.
func NewFollowActivity(obj *ObjectProperty, opts ...Opt) *ActivityType {
	return NewActivity(TypeFollow, obj, opts...)
}

// NewAcceptActivity returns a new 'Accept' activity.
func NewAcceptActivity(obj *ObjectProperty, opts ...Opt) *ActivityType {
	return NewActivity(TypeAccept, obj, opts...)
}

// NewRejectActivity returns a new 'Reject' activity.
func NewRejectActivity(obj *ObjectProperty, opts ...Opt) *ActivityType {
	return NewActivity(TypeReject, obj, opts...)
}

// NewAnnounceActivity returns a new 'Announce' activity.
func NewAnnounceActivity(obj *ObjectProperty, opts ...Opt) *ActivityType {
	return NewActivity(TypeAnnounce, obj, opts...)
}

// NewLikeActivity returns a new 'Like' activity.
func NewLikeActivity(obj *ObjectProperty, opts ...Opt) *ActivityType {
	return NewActivity(TypeLike, obj, opts...)
}

// NewUndoActivity returns a new 'Undo' activity.
func NewUndoActivity(obj *ObjectProperty, opts ...Opt) *ActivityType {
	return NewActivity(TypeUndo, obj, opts...)
}
