/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vocab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
)

// ErrCrossOrigin indicates that the ID of a resolved object has an origin
// which differs from the origin of the document that it was loaded from.
var ErrCrossOrigin = errors.New("cross-origin object")

// CrossOriginPolicy determines how an object is handled when its ID has an
// origin which differs from the origin of the document it was loaded from.
type CrossOriginPolicy int

const (
	// CrossOriginIgnore discards the content of a cross-origin object. The
	// property is left as a reference which may be resolved again.
	CrossOriginIgnore CrossOriginPolicy = iota

	// CrossOriginReject fails resolution of a cross-origin object with
	// ErrCrossOrigin.
	CrossOriginReject

	// CrossOriginTrust accepts the content of a cross-origin object. The
	// object is cached in the property but is not marked as trusted.
	CrossOriginTrust
)

// Resolver resolves an IRI to an object. Implementations fetch and parse the
// document at the given IRI and return the resulting object along with the
// final URL of the document, which may differ from the IRI due to redirects.
type Resolver interface {
	Resolve(ctx context.Context, iri *url.URL) (*ObjectType, *url.URL, error)
}

// ResolveOptions holds the options for resolving an object property.
type ResolveOptions struct {
	Origin *url.URL
	Policy CrossOriginPolicy
}

// ResolveOpt sets an option for resolving an object property.
type ResolveOpt func(options *ResolveOptions)

// WithExpectedOrigin sets the URL whose origin the resolved object's ID is
// expected to match. This is usually the ID of the object which holds the
// property being resolved.
func WithExpectedOrigin(origin *url.URL) ResolveOpt {
	return func(options *ResolveOptions) {
		options.Origin = origin
	}
}

// WithCrossOriginPolicy sets the policy that is applied when the resolved
// object's ID has an unexpected origin.
func WithCrossOriginPolicy(policy CrossOriginPolicy) ResolveOpt {
	return func(options *ResolveOptions) {
		options.Policy = policy
	}
}

// Resolve ensures that the property holds a trusted object, fetching the
// object with the given resolver if required. The resolved object is cached
// in the property, replacing the reference, and the memoised document of the
// object which holds this property is invalidated.
//
// An object is trusted if the origin of its ID matches the origin of the
// document that it was loaded from, as well as the origin given with
// WithExpectedOrigin. A property which already holds a trusted object is
// returned as is. A cross-origin object is handled according to the
// cross-origin policy.
func (p *ObjectProperty) Resolve(ctx context.Context, resolver Resolver, opts ...ResolveOpt) error {
	if p == nil {
		return errors.New("nil object property")
	}

	options := &ResolveOptions{}

	for _, opt := range opts {
		opt(options)
	}

	if p.trusted && p.anyObject() != nil {
		return nil
	}

	iri := p.ID()
	if iri == nil {
		return errors.New("property has no IRI to resolve")
	}

	// An embedded object doesn't need to be fetched again if its ID already
	// has the expected origin.
	if p.anyObject() != nil && options.Origin != nil && SameOrigin(iri, options.Origin) {
		p.trusted = true

		return nil
	}

	obj, docURL, err := resolver.Resolve(ctx, iri)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", iri, err)
	}

	id := obj.ID().URL()
	if id == nil {
		id = docURL
	}

	crossOrigin := !SameOrigin(id, docURL)

	if !crossOrigin && options.Origin != nil {
		crossOrigin = !SameOrigin(id, options.Origin)
	}

	if crossOrigin {
		switch options.Policy {
		case CrossOriginReject:
			return fmt.Errorf("id [%s] of object from [%s]: %w", id, docURL, ErrCrossOrigin)
		case CrossOriginIgnore:
			return nil
		case CrossOriginTrust:
		}
	}

	err = p.setResolved(obj)
	if err != nil {
		return fmt.Errorf("set resolved object [%s]: %w", id, err)
	}

	p.trusted = !crossOrigin

	if p.owner != nil {
		p.owner.invalidateRaw()
	}

	return nil
}

// setResolved caches the given object in the property, interpreting it
// according to its 'type'.
func (p *ObjectProperty) setResolved(obj *ObjectType) error {
	var (
		bytes []byte
		err   error
	)

	if raw := obj.Raw(); raw != nil {
		bytes, err = Marshal(raw)
	} else {
		bytes, err = json.Marshal(obj)
	}

	if err != nil {
		return err
	}

	p.iri = nil
	p.obj = nil
	p.coll = nil
	p.orderedColl = nil
	p.collPage = nil
	p.orderedCollPage = nil
	p.activity = nil
	p.actor = nil

	return p.setObject(obj, bytes)
}
