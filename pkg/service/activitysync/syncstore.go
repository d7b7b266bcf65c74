/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package activitysync

import (
	"encoding/json"
	"fmt"
	"net/url"

	store "github.com/meridianfed/meridian/pkg/store/spi"
)

// syncStore tracks the position within a remote service's outbox up to which
// activities have already been synchronized.
type syncStore struct {
	store     store.Store
	prefix    store.Key
	marshal   func(v interface{}) ([]byte, error)
	unmarshal func(data []byte, v interface{}) error
}

func newSyncStore(kvStore store.Store, prefix store.Key) *syncStore {
	return &syncStore{
		store:     kvStore,
		prefix:    prefix,
		marshal:   json.Marshal,
		unmarshal: json.Unmarshal,
	}
}

type syncInfo struct {
	Page  string `json:"page"`
	Index int    `json:"index"`
}

// GetLastSyncedPage returns the last page that was synchronized for the given
// service, along with the index of the last processed activity within that
// page. An ErrDataNotFound error is returned if the service has never been
// synchronized.
func (s *syncStore) GetLastSyncedPage(serviceIRI *url.URL) (*url.URL, int, error) {
	infoBytes, err := s.store.Get(store.ForSyncCursor(s.prefix, serviceIRI.String()))
	if err != nil {
		return nil, 0, fmt.Errorf("get sync info: %w", err)
	}

	info := &syncInfo{}

	err = s.unmarshal(infoBytes, info)
	if err != nil {
		return nil, 0, fmt.Errorf("unmarshal sync info [%s]: %w", infoBytes, err)
	}

	pageIRI, err := url.Parse(info.Page)
	if err != nil {
		return nil, 0, fmt.Errorf("parse page IRI [%s]: %w", info.Page, err)
	}

	return pageIRI, info.Index, nil
}

// PutLastSyncedPage stores the page and the index of the last processed
// activity within that page for the given service.
func (s *syncStore) PutLastSyncedPage(serviceIRI, page *url.URL, index int) error {
	info := &syncInfo{
		Page:  page.String(),
		Index: index,
	}

	infoBytes, err := s.marshal(info)
	if err != nil {
		return fmt.Errorf("marshal sync info for page [%s] at index %d: %w", info.Page, info.Index, err)
	}

	err = s.store.Set(store.ForSyncCursor(s.prefix, serviceIRI.String()), infoBytes)
	if err != nil {
		return fmt.Errorf("store sync info [%s]: %w", infoBytes, err)
	}

	return nil
}
