/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package memstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridianfed/meridian/pkg/store/spi"
)

func TestStore(t *testing.T) {
	t.Run("get missing key -> not found", func(t *testing.T) {
		s := New()

		_, err := s.Get(spi.Key{"missing"})
		require.ErrorIs(t, err, spi.ErrDataNotFound)
	})

	t.Run("set and get", func(t *testing.T) {
		s := New()

		require.NoError(t, s.Set(spi.Key{"k"}, []byte(`"v"`)))

		value, err := s.Get(spi.Key{"k"})
		require.NoError(t, err)
		require.Equal(t, `"v"`, string(value))
	})

	t.Run("set preserves the creation instant", func(t *testing.T) {
		s := New()

		key := spi.Key{"k"}

		require.NoError(t, s.Set(key, []byte(`"v1"`)))

		created, err := s.CreatedTime(key)
		require.NoError(t, err)

		time.Sleep(10 * time.Millisecond)

		require.NoError(t, s.Set(key, []byte(`"v2"`)))

		createdAfterUpdate, err := s.CreatedTime(key)
		require.NoError(t, err)
		require.Equal(t, created, createdAfterUpdate)

		value, err := s.Get(key)
		require.NoError(t, err)
		require.Equal(t, `"v2"`, string(value))
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		s := New()

		key := spi.Key{"k"}

		require.NoError(t, s.Set(key, []byte(`"v"`)))
		require.NoError(t, s.Delete(key))
		require.NoError(t, s.Delete(key))

		_, err := s.Get(key)
		require.ErrorIs(t, err, spi.ErrDataNotFound)
	})

	t.Run("returned value is a copy", func(t *testing.T) {
		s := New()

		key := spi.Key{"k"}

		require.NoError(t, s.Set(key, []byte(`"v"`)))

		value, err := s.Get(key)
		require.NoError(t, err)

		value[0] = 'x'

		value, err = s.Get(key)
		require.NoError(t, err)
		require.Equal(t, `"v"`, string(value))
	})
}

func TestStoreExpiry(t *testing.T) {
	s := New()

	key := spi.Key{"k"}

	require.NoError(t, s.Set(key, []byte(`"v"`), spi.WithTTL(500*time.Millisecond)))

	value, err := s.Get(key)
	require.NoError(t, err)
	require.Equal(t, `"v"`, string(value))

	time.Sleep(600 * time.Millisecond)

	_, err = s.Get(key)
	require.ErrorIs(t, err, spi.ErrDataNotFound)

	// An expired entry does not contribute its creation instant to a new Set.
	require.NoError(t, s.Set(key, []byte(`"v2"`)))

	created, err := s.CreatedTime(key)
	require.NoError(t, err)
	require.True(t, time.Since(created) < 100*time.Millisecond)
}

func TestStoreCompareAndSwap(t *testing.T) {
	t.Run("swap sequence", func(t *testing.T) {
		s := New()

		key := spi.Key{"x"}

		require.NoError(t, s.Set(key, []byte(`"a"`)))

		ok, err := s.CompareAndSwap(key, []byte(`"b"`), []byte(`"c"`))
		require.NoError(t, err)
		require.False(t, ok)

		ok, err = s.CompareAndSwap(key, []byte(`"a"`), []byte(`"c"`))
		require.NoError(t, err)
		require.True(t, ok)

		value, err := s.Get(key)
		require.NoError(t, err)
		require.Equal(t, `"c"`, string(value))

		ok, err = s.CompareAndSwap(key, []byte(`"c"`), nil)
		require.NoError(t, err)
		require.True(t, ok)

		_, err = s.Get(key)
		require.ErrorIs(t, err, spi.ErrDataNotFound)
	})

	t.Run("nil expected requires the key to be absent", func(t *testing.T) {
		s := New()

		key := spi.Key{"x"}

		ok, err := s.CompareAndSwap(key, nil, []byte(`"v"`))
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = s.CompareAndSwap(key, nil, []byte(`"w"`))
		require.NoError(t, err)
		require.False(t, ok)

		value, err := s.Get(key)
		require.NoError(t, err)
		require.Equal(t, `"v"`, string(value))
	})

	t.Run("swap preserves the creation instant", func(t *testing.T) {
		s := New()

		key := spi.Key{"x"}

		require.NoError(t, s.Set(key, []byte(`"a"`)))

		created, err := s.CreatedTime(key)
		require.NoError(t, err)

		time.Sleep(10 * time.Millisecond)

		ok, err := s.CompareAndSwap(key, []byte(`"a"`), []byte(`"b"`))
		require.NoError(t, err)
		require.True(t, ok)

		createdAfterSwap, err := s.CreatedTime(key)
		require.NoError(t, err)
		require.Equal(t, created, createdAfterSwap)
	})

	t.Run("expired entry is treated as absent", func(t *testing.T) {
		s := New()

		key := spi.Key{"x"}

		require.NoError(t, s.Set(key, []byte(`"a"`), spi.WithTTL(time.Millisecond)))

		time.Sleep(10 * time.Millisecond)

		ok, err := s.CompareAndSwap(key, []byte(`"a"`), []byte(`"b"`))
		require.NoError(t, err)
		require.False(t, ok)

		ok, err = s.CompareAndSwap(key, nil, []byte(`"b"`))
		require.NoError(t, err)
		require.True(t, ok)
	})
}
