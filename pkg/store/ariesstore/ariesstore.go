/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package ariesstore contains a key-value store backed by an Aries storage
// provider, which allows the framework data to live in MongoDB or any other
// supported database.
package ariesstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	ariesstorage "github.com/hyperledger/aries-framework-go/spi/storage"
	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/meridianfed/meridian/internal/pkg/log"
	merrors "github.com/meridianfed/meridian/pkg/errors"
	"github.com/meridianfed/meridian/pkg/store"
	"github.com/meridianfed/meridian/pkg/store/spi"
)

// ExpiryTagName is the tag under which the expiry time of an entry is stored.
// The tag value is a Unix timestamp in seconds.
const ExpiryTagName = "ExpiryTime"

var logger = log.New("kv-store")

type expiryService interface {
	Register(store ariesstorage.Store, expiryTagName, storeName string)
}

// Store is a key-value store backed by an Aries storage provider. Expired
// entries are filtered out on read and removed by the expiry service.
type Store struct {
	name     string
	store    ariesstorage.Store
	casMutex sync.Mutex
}

// Open opens the key-value store with the given name. When expirySvc is
// non-nil the store is registered with it, so that entries stored with a TTL
// are eventually removed from the database.
func Open(provider ariesstorage.Provider, name string, expirySvc expiryService) (*Store, error) {
	s, err := store.Open(provider, name, store.NewTagGroup(ExpiryTagName))
	if err != nil {
		return nil, fmt.Errorf("open store [%s]: %w", name, err)
	}

	if expirySvc != nil {
		expirySvc.Register(s, ExpiryTagName, name)
	}

	return &Store{name: name, store: s}, nil
}

// record is the envelope in which values are stored. Created and Expires are
// Unix timestamps in nanoseconds.
type record struct {
	Value   []byte `json:"value"`
	Created int64  `json:"created"`
	Expires int64  `json:"expires,omitempty"`
}

func (r *record) expired(now time.Time) bool {
	return r.Expires > 0 && now.UnixNano() >= r.Expires
}

// Get returns the value stored under the given key, or spi.ErrDataNotFound.
func (s *Store) Get(key spi.Key) ([]byte, error) {
	rec, err := s.getRecord(key)
	if err != nil {
		return nil, err
	}

	return rec.Value, nil
}

// Set stores the value under the given key. The creation instant of an existing
// entry is preserved.
func (s *Store) Set(key spi.Key, value []byte, opts ...spi.Option) error {
	options := spi.NewOptions(opts...)

	now := time.Now()

	createdNano := now.UnixNano()

	existing, err := s.getRecord(key)
	if err == nil {
		createdNano = existing.Created
	} else if !errors.Is(err, spi.ErrDataNotFound) {
		return err
	}

	return s.putRecord(key, value, createdNano, now, options.TTL)
}

// Delete removes the value stored under the given key. Deleting a key that does
// not exist is not an error.
func (s *Store) Delete(key spi.Key) error {
	if err := s.store.Delete(key.String()); err != nil {
		return merrors.NewTransient(fmt.Errorf("delete [%s]: %w", key, err))
	}

	return nil
}

// CompareAndSwap replaces the value under the given key if the current value
// equals expected. A nil expected value requires the key to be absent; a nil
// replacement deletes the key. The swap is atomic within this process only.
func (s *Store) CompareAndSwap(key spi.Key, expected, replacement []byte, opts ...spi.Option) (bool, error) {
	options := spi.NewOptions(opts...)

	s.casMutex.Lock()
	defer s.casMutex.Unlock()

	now := time.Now()

	current, err := s.getRecord(key)
	if err != nil && !errors.Is(err, spi.ErrDataNotFound) {
		return false, err
	}

	if current != nil {
		if expected == nil || !bytes.Equal(current.Value, expected) {
			return false, nil
		}
	} else if expected != nil {
		return false, nil
	}

	if replacement == nil {
		return true, s.Delete(key)
	}

	createdNano := now.UnixNano()
	if current != nil {
		createdNano = current.Created
	}

	if err := s.putRecord(key, replacement, createdNano, now, options.TTL); err != nil {
		return false, err
	}

	return true, nil
}

// CreatedTime returns the creation instant of the entry under the given key.
func (s *Store) CreatedTime(key spi.Key) (time.Time, error) {
	rec, err := s.getRecord(key)
	if err != nil {
		return time.Time{}, err
	}

	return time.Unix(0, rec.Created), nil
}

func (s *Store) getRecord(key spi.Key) (*record, error) {
	value, err := s.store.Get(key.String())
	if err != nil {
		if errors.Is(err, ariesstorage.ErrDataNotFound) {
			return nil, spi.ErrDataNotFound
		}

		return nil, merrors.NewTransient(fmt.Errorf("get [%s]: %w", key, err))
	}

	rec := &record{}

	if err := json.Unmarshal(value, rec); err != nil {
		return nil, fmt.Errorf("unmarshal record [%s]: %w", key, err)
	}

	if rec.expired(time.Now()) {
		if err := s.store.Delete(key.String()); err != nil {
			logger.Warn("Error deleting expired entry", logfields.WithStoreName(s.name),
				logfields.WithKVKey(key), logfields.WithError(err))
		}

		return nil, spi.ErrDataNotFound
	}

	return rec, nil
}

func (s *Store) putRecord(key spi.Key, value []byte, createdNano int64, now time.Time, ttl time.Duration) error {
	rec := record{Value: value, Created: createdNano}

	var tags []ariesstorage.Tag

	if ttl > 0 {
		expires := now.Add(ttl)

		rec.Expires = expires.UnixNano()

		// The sweeper compares whole seconds; round up so that it never deletes early.
		tags = append(tags, ariesstorage.Tag{
			Name:  ExpiryTagName,
			Value: strconv.FormatInt(expires.Add(time.Second).Unix(), 10),
		})
	}

	recBytes, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record [%s]: %w", key, err)
	}

	if err := s.store.Put(key.String(), recBytes, tags...); err != nil {
		return merrors.NewTransient(fmt.Errorf("store [%s]: %w", key, err))
	}

	return nil
}
