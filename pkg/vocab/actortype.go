/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vocab

import (
	"net/url"
)

// PublicKeyType defines a public key object.
type PublicKeyType struct {
	ID           string `json:"id"`
	Owner        string `json:"owner"`
	PublicKeyPem string `json:"publicKeyPem"`
}

// NewPublicKey returns a new public key object.
func NewPublicKey(id, owner *url.URL, pem string) *PublicKeyType {
	key := &PublicKeyType{PublicKeyPem: pem}

	if id != nil {
		key.ID = id.String()
	}

	if owner != nil {
		key.Owner = owner.String()
	}

	return key
}

// EndpointsType defines the 'endpoints' property of an actor.
type EndpointsType struct {
	SharedInbox *URLProperty `json:"sharedInbox,omitempty"`
}

// NewEndpoints returns a new 'endpoints' property.
func NewEndpoints(sharedInbox *url.URL) *EndpointsType {
	return &EndpointsType{SharedInbox: NewURLProperty(sharedInbox)}
}

// GetSharedInbox returns the URL of the shared inbox.
func (t *EndpointsType) GetSharedInbox() *url.URL {
	if t == nil {
		return nil
	}

	return t.SharedInbox.URL()
}

// ActorType defines an 'actor'.
type ActorType struct {
	*ObjectType

	actor *actorType
}

type actorType struct {
	PublicKey         *PublicKeyType `json:"publicKey,omitempty"`
	Inbox             *URLProperty   `json:"inbox"`
	Outbox            *URLProperty   `json:"outbox"`
	Followers         *URLProperty   `json:"followers,omitempty"`
	Following         *URLProperty   `json:"following,omitempty"`
	Liked             *URLProperty   `json:"liked,omitempty"`
	PreferredUsername string         `json:"preferredUsername,omitempty"`
	Endpoints         *EndpointsType `json:"endpoints,omitempty"`
}

// GetPublicKey returns the actor's public key.
func (t *ActorType) GetPublicKey() *PublicKeyType {
	return t.actor.PublicKey
}

// GetInbox returns the URL of the actor's inbox.
func (t *ActorType) GetInbox() *url.URL {
	return t.actor.Inbox.URL()
}

// GetOutbox returns the URL of the actor's outbox.
func (t *ActorType) GetOutbox() *url.URL {
	return t.actor.Outbox.URL()
}

// GetFollowers returns the URL of the actor's followers collection.
func (t *ActorType) GetFollowers() *url.URL {
	return t.actor.Followers.URL()
}

// GetFollowing returns the URL of the actor's following collection.
func (t *ActorType) GetFollowing() *url.URL {
	return t.actor.Following.URL()
}

// GetLiked returns the URL of the actor's liked collection.
func (t *ActorType) GetLiked() *url.URL {
	return t.actor.Liked.URL()
}

// GetPreferredUsername returns the actor's preferred username.
func (t *ActorType) GetPreferredUsername() string {
	return t.actor.PreferredUsername
}

// GetEndpoints returns the actor's endpoints.
func (t *ActorType) GetEndpoints() *EndpointsType {
	return t.actor.Endpoints
}

// SharedInbox returns the URL of the actor's shared inbox, if it has one,
// otherwise the actor's own inbox.
func (t *ActorType) SharedInbox() *url.URL {
	if inbox := t.actor.Endpoints.GetSharedInbox(); inbox != nil {
		return inbox
	}

	return t.GetInbox()
}

// MarshalJSON marshals the actor.
func (t *ActorType) MarshalJSON() ([]byte, error) {
	return MarshalJSON(t.ObjectType, t.actor)
}

// UnmarshalJSON unmarshals the actor.
func (t *ActorType) UnmarshalJSON(bytes []byte) error {
	t.ObjectType = NewObject()
	t.actor = &actorType{}

	return UnmarshalJSON(bytes, t.ObjectType, t.actor)
}

// NewActor returns a new actor of the given type.
func NewActor(aType Type, id *url.URL, opts ...Opt) *ActorType {
	options := NewOptions(opts...)

	return &ActorType{
		ObjectType: NewObject(
			WithContext(getContexts(options, ContextActivityStreams, ContextSecurity)...),
			WithID(id),
			WithType(aType),
			WithName(newLangString(options.Name, options.NameMap)),
			WithSummary(newLangString(options.Summary, options.SummaryMap)),
			WithPublishedTime(options.Published),
		),
		actor: &actorType{
			PublicKey:         options.PublicKey,
			Inbox:             NewURLProperty(options.Inbox),
			Outbox:            NewURLProperty(options.Outbox),
			Followers:         NewURLProperty(options.Followers),
			Following:         NewURLProperty(options.Following),
			Liked:             NewURLProperty(options.Liked),
			PreferredUsername: options.PreferredUsername,
			Endpoints:         options.Endpoints,
		},
	}
}

// NewService returns a new 'Service' actor.
func NewService(id *url.URL, opts ...Opt) *ActorType {
	return NewActor(TypeService, id, opts...)
}

// NewApplication returns a new 'Application' actor.
func NewApplication(id *url.URL, opts ...Opt) *ActorType {
	return NewActor(TypeApplication, id, opts...)
}

// NewPerson returns a new 'Person' actor.
func NewPerson(id *url.URL, opts ...Opt) *ActorType {
	return NewActor(TypePerson, id, opts...)
}
