/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package publickey

import (
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridianfed/meridian/pkg/internal/testutil"
	"github.com/meridianfed/meridian/pkg/store/memstore"
	"github.com/meridianfed/meridian/pkg/store/spi"
	"github.com/meridianfed/meridian/pkg/vocab"
)

func TestStore_GetPublicKey(t *testing.T) {
	actorIRI := testutil.MustParseURL("https://sally.example.com/services/fed")
	keyIRI := testutil.NewMockID(actorIRI, "/keys/main-key")

	publicKey := vocab.NewPublicKey(keyIRI, actorIRI, "key pem")

	t.Run("Fetched from origin -> success", func(t *testing.T) {
		var fetchCount int

		s := New(memstore.New(), spi.DefaultPrefix,
			func(iri *url.URL) (*vocab.PublicKeyType, error) {
				fetchCount++

				require.Equal(t, keyIRI.String(), iri.String())

				return publicKey, nil
			},
		)

		pk, err := s.GetPublicKey(keyIRI)
		require.NoError(t, err)
		require.Equal(t, publicKey, pk)
		require.Equal(t, 1, fetchCount)

		// The second lookup is served from the cache.
		pk, err = s.GetPublicKey(keyIRI)
		require.NoError(t, err)
		require.Equal(t, publicKey, pk)
		require.Equal(t, 1, fetchCount)
	})

	t.Run("Found in store -> success", func(t *testing.T) {
		kvStore := memstore.New()

		s := New(kvStore, spi.DefaultPrefix,
			func(iri *url.URL) (*vocab.PublicKeyType, error) {
				t.Error("the key should have been loaded from the store")

				return nil, errors.New("unexpected fetch")
			},
		)

		require.NoError(t, s.putToStore(keyIRI.String(), publicKey))

		pk, err := s.GetPublicKey(keyIRI)
		require.NoError(t, err)
		require.Equal(t, publicKey, pk)
	})

	t.Run("Fetch error -> error is not cached", func(t *testing.T) {
		errExpected := errors.New("injected fetch error")

		var fetchCount int

		s := New(memstore.New(), spi.DefaultPrefix,
			func(iri *url.URL) (*vocab.PublicKeyType, error) {
				fetchCount++

				return nil, errExpected
			},
		)

		_, err := s.GetPublicKey(keyIRI)
		require.Error(t, err)
		require.Contains(t, err.Error(), errExpected.Error())

		_, err = s.GetPublicKey(keyIRI)
		require.Error(t, err)
		require.Equal(t, 2, fetchCount)
	})

	t.Run("Store error -> error", func(t *testing.T) {
		errExpected := errors.New("injected store error")

		s := New(&failingStore{Store: memstore.New(), getErr: errExpected}, spi.DefaultPrefix,
			func(iri *url.URL) (*vocab.PublicKeyType, error) {
				return publicKey, nil
			},
		)

		_, err := s.GetPublicKey(keyIRI)
		require.Error(t, err)
		require.Contains(t, err.Error(), errExpected.Error())
	})

	t.Run("Invalid data in store -> error", func(t *testing.T) {
		kvStore := memstore.New()

		require.NoError(t, kvStore.Set(spi.ForPublicKey(spi.DefaultPrefix, keyIRI.String()), []byte("invalid json")))

		s := New(kvStore, spi.DefaultPrefix,
			func(iri *url.URL) (*vocab.PublicKeyType, error) {
				return publicKey, nil
			},
		)

		_, err := s.GetPublicKey(keyIRI)
		require.Error(t, err)
		require.Contains(t, err.Error(), "unmarshal public key")
	})

	t.Run("Store put failure -> key is still returned", func(t *testing.T) {
		errExpected := errors.New("injected store error")

		s := New(&failingStore{Store: memstore.New(), setErr: errExpected}, spi.DefaultPrefix,
			func(iri *url.URL) (*vocab.PublicKeyType, error) {
				return publicKey, nil
			},
			WithKeyTTL(time.Minute),
		)

		pk, err := s.GetPublicKey(keyIRI)
		require.NoError(t, err)
		require.Equal(t, publicKey, pk)
	})
}

type failingStore struct {
	*memstore.Store

	getErr error
	setErr error
}

func (s *failingStore) Get(key spi.Key) ([]byte, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}

	return s.Store.Get(key)
}

func (s *failingStore) Set(key spi.Key, value []byte, opts ...spi.Option) error {
	if s.setErr != nil {
		return s.setErr
	}

	return s.Store.Set(key, value, opts...)
}
