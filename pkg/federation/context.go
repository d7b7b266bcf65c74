/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package federation

import (
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/piprate/json-gold/ld"

	"github.com/meridianfed/meridian/pkg/client"
	merrors "github.com/meridianfed/meridian/pkg/errors"
	pubsubspi "github.com/meridianfed/meridian/pkg/pubsub/spi"
	store "github.com/meridianfed/meridian/pkg/store/spi"
	"github.com/meridianfed/meridian/pkg/uritemplate"
	"github.com/meridianfed/meridian/pkg/vocab"
)

// Context gives dispatchers and activity listeners access to the federation's
// resources and URL builders. A Context is cheap to create and need not be
// reused.
type Context struct {
	federation *Federation
	base       *url.URL
	data       interface{}
}

// NewContext returns a context whose URLs are built against the given base. A
// nil base selects the canonical origin. The data value is carried through to
// Data for the application's own use.
func (f *Federation) NewContext(base *url.URL, data interface{}) *Context {
	if base == nil {
		base = f.cfg.Origin
	}

	return &Context{federation: f, base: base, data: data}
}

// Data returns the application value the context was created with.
func (c *Context) Data() interface{} {
	return c.data
}

// BaseURL returns the base against which the context builds URLs.
func (c *Context) BaseURL() *url.URL {
	return c.base
}

// Store returns the key-value store of the federation.
func (c *Context) Store() store.Store {
	return c.federation.store
}

// Queue returns the message queue of the federation.
func (c *Context) Queue() pubsubspi.PubSub {
	return c.federation.queue
}

// Client returns the ActivityPub client of the federation.
func (c *Context) Client() *client.Client {
	return c.federation.apClient
}

// DocumentLoader returns the federation's JSON-LD document loader.
func (c *Context) DocumentLoader() ld.DocumentLoader {
	return c.federation.docLoader
}

// SendActivity queues the given activity for delivery and returns its ID. The
// actor is set to the service IRI, an ID is generated if the activity has
// none, and the recipients are resolved from the to, cc, bto, bcc and
// audience fields. Delivery happens asynchronously with retries; an error
// here means the activity could not be queued, not that delivery failed.
func (c *Context) SendActivity(activity *vocab.ActivityType) (*url.URL, error) {
	return c.federation.outbox.Post(activity)
}

// ActorURI returns the URL of the actor with the given handle.
func (c *Context) ActorURI(handle string) (*url.URL, error) {
	return c.expandHandle(RouteActor, handle)
}

// InboxURI returns the URL of the inbox of the actor with the given handle.
func (c *Context) InboxURI(handle string) (*url.URL, error) {
	return c.expandHandle(RouteInbox, handle)
}

// SharedInboxURI returns the URL of the shared inbox.
func (c *Context) SharedInboxURI() (*url.URL, error) {
	return c.federation.routes.expand(RouteSharedInbox, nil, c.base)
}

// OutboxURI returns the URL of the outbox of the actor with the given handle.
func (c *Context) OutboxURI(handle string) (*url.URL, error) {
	return c.expandHandle(RouteOutbox, handle)
}

// FollowersURI returns the URL of the followers collection of the actor with
// the given handle.
func (c *Context) FollowersURI(handle string) (*url.URL, error) {
	return c.expandHandle(RouteFollowers, handle)
}

// FollowingURI returns the URL of the following collection of the actor with
// the given handle.
func (c *Context) FollowingURI(handle string) (*url.URL, error) {
	return c.expandHandle(RouteFollowing, handle)
}

// LikedURI returns the URL of the liked collection of the actor with the
// given handle.
func (c *Context) LikedURI(handle string) (*url.URL, error) {
	return c.expandHandle(RouteLiked, handle)
}

// CollectionURI returns the URL of the named collection of the actor with the
// given handle.
func (c *Context) CollectionURI(name, handle string) (*url.URL, error) {
	return c.expandHandle(name, handle)
}

// ObjectURI returns the URL of the object of the given type selected by the
// given template variables.
func (c *Context) ObjectURI(objectType vocab.Type, vars map[string]string) (*url.URL, error) {
	vals := make(uritemplate.Values, len(vars))

	for name, value := range vars {
		vals[name] = uritemplate.StringValue(value)
	}

	return c.federation.routes.expand(ObjectRoute(objectType), vals, c.base)
}

func (c *Context) expandHandle(name, handle string) (*url.URL, error) {
	return c.federation.routes.expand(name, uritemplate.Values{
		HandleVar: uritemplate.StringValue(handle),
	}, c.base)
}

// RequestContext is the context of one incoming request. In addition to the
// resources of a Context it gives access to the request and to its verified
// signature. The signature is verified at most once: the result of the first
// call to SignedKeyOwner or SignedKey is memoised for the remaining calls.
type RequestContext struct {
	*Context

	req *http.Request

	verifyOnce sync.Once
	keyOwner   *url.URL
	verifyErr  error
}

// NewRequestContext returns a request context for the given request. URLs are
// built against the canonical origin regardless of the Host header the
// request arrived with.
func (f *Federation) NewRequestContext(req *http.Request, data interface{}) *RequestContext {
	return f.newRequestContext(req, data)
}

func (f *Federation) newRequestContext(req *http.Request, data interface{}) *RequestContext {
	return &RequestContext{
		Context: f.NewContext(nil, data),
		req:     req,
	}
}

// Request returns the request being served. It is nil for contexts created
// outside of a request, such as during WebFinger resolution.
func (r *RequestContext) Request() *http.Request {
	return r.req
}

// SignedKeyOwner verifies the request's signature and returns the IRI of the
// actor that owns the signing key.
func (r *RequestContext) SignedKeyOwner() (*url.URL, error) {
	r.verifyOnce.Do(r.verify)

	return r.keyOwner, r.verifyErr
}

func (r *RequestContext) verify() {
	if r.req == nil {
		r.verifyErr = merrors.Newf(merrors.KindSignature, "no request to verify")

		return
	}

	if r.federation.verifier == nil {
		r.verifyErr = merrors.Newf(merrors.KindSignature, "signature verification is disabled")

		return
	}

	r.keyOwner, r.verifyErr = r.federation.verifier.VerifyRequest(r.req)
}

// SignedKey verifies the request's signature and returns the public key that
// signed it. The key is retrieved from the owning actor's document; the
// verifier has already matched its ID against the request's key ID.
func (r *RequestContext) SignedKey() (*vocab.PublicKeyType, error) {
	owner, err := r.SignedKeyOwner()
	if err != nil {
		return nil, err
	}

	actor, err := r.federation.apClient.GetActor(owner)
	if err != nil {
		return nil, fmt.Errorf("retrieve actor [%s]: %w", owner, err)
	}

	if actor.GetPublicKey() == nil {
		return nil, merrors.Newf(merrors.KindSignature, "actor [%s] has no public key", owner)
	}

	return actor.GetPublicKey(), nil
}
