/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package spi contains the contracts between the federation framework and the
// ActivityPub services (inbox listener and delivery pipeline).
package spi

import (
	"context"

	"github.com/meridianfed/meridian/pkg/lifecycle"
	"github.com/meridianfed/meridian/pkg/vocab"
)

// ServiceLifecycle defines the functions of a service lifecycle.
type ServiceLifecycle interface {
	// Start starts the service.
	Start()
	// Stop stops the service.
	Stop()
	// State returns the state of the service.
	State() lifecycle.State
}

// HandlerFunc handles an activity that was posted to an inbox.
type HandlerFunc func(ctx context.Context, activity *vocab.ActivityType) error

// ErrorHandlerFunc is invoked when an activity handler returns an error.
type ErrorHandlerFunc func(activity *vocab.ActivityType, err error)

// Registry holds activity handlers keyed by activity type.
//
// A handler registered for a type also receives activities of all of its
// subtypes, unless a handler is registered for a more specific type. For
// example, a handler for 'Offer' receives 'Invite' activities when no
// handler is registered for 'Invite', and a handler for 'Activity' receives
// everything that no other handler claims.
//
// A Registry is populated before the inbox is started and must not be
// modified afterwards.
type Registry struct {
	handlers map[vocab.Type]HandlerFunc
}

// NewRegistry returns a new, empty handler registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[vocab.Type]HandlerFunc),
	}
}

// Subscribe registers a handler for the given activity type. If a handler is
// already registered for the type then it is replaced.
func (r *Registry) Subscribe(activityType vocab.Type, handler HandlerFunc) *Registry {
	r.handlers[activityType] = handler

	return r
}

// HandlerFor returns the handler for the most specific of the given types,
// along with the type for which the handler was registered. The given types
// are tried first, then their parents in the ActivityStreams type hierarchy,
// and so on up to 'Activity'. False is returned if no handler matches.
func (r *Registry) HandlerFor(types ...vocab.Type) (HandlerFunc, vocab.Type, bool) {
	frontier := types

	for len(frontier) > 0 {
		var parents []vocab.Type

		for _, t := range frontier {
			if handler, ok := r.handlers[t]; ok {
				return handler, t, true
			}

			if parent := vocab.SuperType(t); parent != "" {
				parents = append(parents, parent)
			}
		}

		frontier = parents
	}

	return nil, "", false
}
