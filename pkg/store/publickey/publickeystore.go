/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package publickey provides cached access to the public keys of remote
// actors. A key is looked up in the in-memory cache, then in the key-value
// store, and finally fetched from its origin server.
package publickey

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/bluele/gcache"
	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/meridianfed/meridian/internal/pkg/log"
	"github.com/meridianfed/meridian/pkg/store/spi"
	"github.com/meridianfed/meridian/pkg/vocab"
)

var logger = log.New("publickey_store")

const maxCacheSize = 1000

// KeyFetcher retrieves a public key from its origin server.
type KeyFetcher func(keyIRI *url.URL) (*vocab.PublicKeyType, error)

// Store manages a persistent store of the public keys of remote actors. The
// keys are also cached for better performance.
type Store struct {
	cache  gcache.Cache
	store  spi.Store
	prefix spi.Key
	fetch  KeyFetcher
	ttl    time.Duration
}

// Option sets an option on the store.
type Option func(*Store)

// WithKeyTTL sets the time-to-live of persisted keys, after which a key is
// fetched from its origin again.
func WithKeyTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// New returns a new public key store backed by the given key-value store.
func New(kvStore spi.Store, prefix spi.Key, fetch KeyFetcher, opts ...Option) *Store {
	s := &Store{
		store:  kvStore,
		prefix: prefix,
		fetch:  fetch,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.cache = gcache.New(maxCacheSize).ARC().
		LoaderFunc(
			func(k interface{}) (interface{}, error) {
				return s.load(k.(string)) //nolint:errcheck,forcetypeassert
			},
		).Build()

	return s
}

// GetPublicKey returns the public key with the given ID.
func (s *Store) GetPublicKey(keyIRI *url.URL) (*vocab.PublicKeyType, error) {
	publicKey, err := s.cache.Get(keyIRI.String())
	if err != nil {
		return nil, err
	}

	return publicKey.(*vocab.PublicKeyType), nil //nolint:errcheck,forcetypeassert
}

func (s *Store) load(keyID string) (*vocab.PublicKeyType, error) {
	logger.Debug("Loading public key into cache", logfields.WithKeyID(keyID))

	publicKey, err := s.getFromStore(keyID)
	if err == nil {
		return publicKey, nil
	}

	if !errors.Is(err, spi.ErrDataNotFound) {
		return nil, fmt.Errorf("get public key from store: %w", err)
	}

	keyIRI, err := url.Parse(keyID)
	if err != nil {
		return nil, fmt.Errorf("parse key IRI [%s]: %w", keyID, err)
	}

	logger.Debug("Public key not found in store. Fetching it from the origin.", logfields.WithKeyID(keyID))

	publicKey, err = s.fetch(keyIRI)
	if err != nil {
		return nil, fmt.Errorf("fetch public key [%s]: %w", keyID, err)
	}

	if err := s.putToStore(keyID, publicKey); err != nil {
		// The caller still gets the key. Just log a warning.
		logger.Warn("Error storing public key", logfields.WithKeyID(keyID), log.WithError(err))
	}

	return publicKey, nil
}

func (s *Store) getFromStore(keyID string) (*vocab.PublicKeyType, error) {
	value, err := s.store.Get(spi.ForPublicKey(s.prefix, keyID))
	if err != nil {
		return nil, err
	}

	publicKey := &vocab.PublicKeyType{}

	if err := json.Unmarshal(value, publicKey); err != nil {
		return nil, fmt.Errorf("unmarshal public key [%s]: %w", keyID, err)
	}

	return publicKey, nil
}

func (s *Store) putToStore(keyID string, publicKey *vocab.PublicKeyType) error {
	value, err := json.Marshal(publicKey)
	if err != nil {
		return fmt.Errorf("marshal public key [%s]: %w", keyID, err)
	}

	var opts []spi.Option

	if s.ttl > 0 {
		opts = append(opts, spi.WithTTL(s.ttl))
	}

	if err := s.store.Set(spi.ForPublicKey(s.prefix, keyID), value, opts...); err != nil {
		return fmt.Errorf("store public key [%s]: %w", keyID, err)
	}

	return nil
}
