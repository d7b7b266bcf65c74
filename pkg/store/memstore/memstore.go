/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package memstore contains an in-memory key-value store, suitable for tests
// and single-process deployments.
package memstore

import (
	"bytes"
	"sync"
	"time"

	"github.com/meridianfed/meridian/pkg/store/spi"
)

// Store is an in-memory implementation of the key-value store contract.
// Expired entries are removed lazily on access.
type Store struct {
	mutex   sync.RWMutex
	entries map[string]*entry
}

type entry struct {
	value   []byte
	created time.Time
	expires time.Time
}

func (e *entry) expired(now time.Time) bool {
	return !e.expires.IsZero() && !now.Before(e.expires)
}

// New returns a new in-memory key-value store.
func New() *Store {
	return &Store{
		entries: make(map[string]*entry),
	}
}

// Get returns the value stored under the given key, or spi.ErrDataNotFound.
func (s *Store) Get(key spi.Key) ([]byte, error) {
	k := key.String()

	s.mutex.RLock()
	e, ok := s.entries[k]
	s.mutex.RUnlock()

	if !ok {
		return nil, spi.ErrDataNotFound
	}

	if e.expired(time.Now()) {
		s.deleteExpired(k)

		return nil, spi.ErrDataNotFound
	}

	return copyOf(e.value), nil
}

// Set stores the value under the given key. The creation instant of an existing
// entry is preserved.
func (s *Store) Set(key spi.Key, value []byte, opts ...spi.Option) error {
	options := spi.NewOptions(opts...)

	k := key.String()
	now := time.Now()

	s.mutex.Lock()
	defer s.mutex.Unlock()

	created := now

	if e, ok := s.entries[k]; ok && !e.expired(now) {
		created = e.created
	}

	s.entries[k] = &entry{
		value:   copyOf(value),
		created: created,
		expires: expiresAt(now, options.TTL),
	}

	return nil
}

// Delete removes the value stored under the given key. Deleting a key that does
// not exist is not an error.
func (s *Store) Delete(key spi.Key) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.entries, key.String())

	return nil
}

// CompareAndSwap replaces the value under the given key if the current value
// equals expected. A nil expected value requires the key to be absent; a nil
// replacement deletes the key.
func (s *Store) CompareAndSwap(key spi.Key, expected, replacement []byte, opts ...spi.Option) (bool, error) {
	options := spi.NewOptions(opts...)

	k := key.String()
	now := time.Now()

	s.mutex.Lock()
	defer s.mutex.Unlock()

	e, ok := s.entries[k]
	if ok && e.expired(now) {
		delete(s.entries, k)

		e, ok = nil, false
	}

	if ok {
		if expected == nil || !bytes.Equal(e.value, expected) {
			return false, nil
		}
	} else if expected != nil {
		return false, nil
	}

	if replacement == nil {
		delete(s.entries, k)

		return true, nil
	}

	created := now
	if ok {
		created = e.created
	}

	s.entries[k] = &entry{
		value:   copyOf(replacement),
		created: created,
		expires: expiresAt(now, options.TTL),
	}

	return true, nil
}

// CreatedTime returns the creation instant of the entry under the given key.
func (s *Store) CreatedTime(key spi.Key) (time.Time, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	e, ok := s.entries[key.String()]
	if !ok || e.expired(time.Now()) {
		return time.Time{}, spi.ErrDataNotFound
	}

	return e.created, nil
}

func (s *Store) deleteExpired(k string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if e, ok := s.entries[k]; ok && e.expired(time.Now()) {
		delete(s.entries, k)
	}
}

func expiresAt(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}

	return now.Add(ttl)
}

func copyOf(value []byte) []byte {
	if value == nil {
		return nil
	}

	c := make([]byte, len(value))
	copy(c, value)

	return c
}
