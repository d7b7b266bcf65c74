/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package spi contains the key-value storage contract used by the federation
// framework. Implementations are expected to be safe for concurrent use.
package spi

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

// ErrDataNotFound is returned by Get when no value exists under the given key,
// including the case where a value has expired but has not yet been swept.
var ErrDataNotFound = errors.New("data not found")

// DefaultPrefix is the namespace under which the framework stores its data when
// the host application does not supply its own.
var DefaultPrefix = Key{"_meridian"}

// Key identifies a value in the store. Keys are hierarchical; the parts are
// joined into a single flat key by String.
type Key []string

// String returns the flat form of the key. Each part is path-escaped so that a
// part containing the separator cannot collide with a longer key.
func (k Key) String() string {
	parts := make([]string, len(k))

	for i, part := range k {
		parts[i] = url.PathEscape(part)
	}

	return strings.Join(parts, "/")
}

// Append returns a new key with the given parts appended. The receiver is not
// modified.
func (k Key) Append(parts ...string) Key {
	newKey := make(Key, 0, len(k)+len(parts))
	newKey = append(newKey, k...)
	newKey = append(newKey, parts...)

	return newKey
}

// ForRemoteDocument returns the key under which a cached remote document is stored.
func ForRemoteDocument(prefix Key, documentURL string) Key {
	return prefix.Append("remoteDocument", documentURL)
}

// ForPublicKey returns the key under which a resolved public key is stored.
func ForPublicKey(prefix Key, keyID string) Key {
	return prefix.Append("publicKey", keyID)
}

// ForInboxIdempotence returns the key used to collapse duplicate deliveries of
// an activity to an inbox.
func ForInboxIdempotence(prefix Key, inboxID, activityID string) Key {
	return prefix.Append("inboxIdempotence", inboxID, activityID)
}

// ForSignatureSpec returns the key under which the remembered HTTP signature
// spec of a remote origin is stored.
func ForSignatureSpec(prefix Key, origin string) Key {
	return prefix.Append("httpSigSpec", origin)
}

// ForSyncCursor returns the key under which the last synchronized position in
// a remote service's outbox is stored.
func ForSyncCursor(prefix Key, serviceIRI string) Key {
	return prefix.Append("syncCursor", serviceIRI)
}

// Options holds per-operation options.
type Options struct {
	// TTL is the time after which the value expires. Zero means no expiry.
	TTL time.Duration
}

// Option sets an option on a Set or CompareAndSwap operation.
type Option func(*Options)

// WithTTL sets the time-to-live of the value being stored.
func WithTTL(ttl time.Duration) Option {
	return func(opts *Options) {
		opts.TTL = ttl
	}
}

// NewOptions returns an Options populated from the given option functions.
func NewOptions(opts ...Option) *Options {
	options := &Options{}

	for _, opt := range opts {
		opt(options)
	}

	return options
}

// Store is a namespaced key-value store.
//
// Values are opaque JSON. Set over an existing key replaces the value but
// preserves the creation instant of the first Set. Delete is idempotent.
type Store interface {
	// Get returns the value stored under the given key, or ErrDataNotFound.
	Get(key Key) ([]byte, error)

	// Set stores the value under the given key.
	Set(key Key, value []byte, opts ...Option) error

	// Delete removes the value stored under the given key, if any.
	Delete(key Key) error

	// CompareAndSwap atomically replaces the value stored under the given key:
	// the swap is applied only if the current value equals expected. A nil
	// expected value means the key must be absent; a nil replacement deletes
	// the key. It returns true if the swap was applied.
	CompareAndSwap(key Key, expected, replacement []byte, opts ...Option) (bool, error)
}
