/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package spi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestKeyString(t *testing.T) {
	t.Run("plain parts", func(t *testing.T) {
		require.Equal(t, "_meridian/publicKey/abc", Key{"_meridian", "publicKey", "abc"}.String())
	})

	t.Run("parts containing the separator are escaped", func(t *testing.T) {
		withSlash := Key{"a", "b/c"}.String()
		flat := Key{"a", "b", "c"}.String()

		require.NotEqual(t, flat, withSlash)
		require.Equal(t, "a/b%2Fc", withSlash)
	})
}

func TestKeyAppend(t *testing.T) {
	prefix := Key{"_meridian"}

	key := prefix.Append("remoteDocument", "https://example.com/doc")
	require.Equal(t, Key{"_meridian", "remoteDocument", "https://example.com/doc"}, key)

	// The original key must not be modified.
	require.Equal(t, Key{"_meridian"}, prefix)
}

func TestKeyBuilders(t *testing.T) {
	prefix := DefaultPrefix

	require.Equal(t, Key{"_meridian", "remoteDocument", "https://example.com/doc"},
		ForRemoteDocument(prefix, "https://example.com/doc"))

	require.Equal(t, Key{"_meridian", "publicKey", "https://example.com/key"},
		ForPublicKey(prefix, "https://example.com/key"))

	require.Equal(t, Key{"_meridian", "inboxIdempotence", "inbox1", "activity1"},
		ForInboxIdempotence(prefix, "inbox1", "activity1"))

	require.Equal(t, Key{"_meridian", "httpSigSpec", "https://remote.domain"},
		ForSignatureSpec(prefix, "https://remote.domain"))

	require.Equal(t, Key{"_meridian", "syncCursor", "https://remote.domain/services/svc"},
		ForSyncCursor(prefix, "https://remote.domain/services/svc"))
}

func TestOptions(t *testing.T) {
	options := NewOptions()
	require.Equal(t, time.Duration(0), options.TTL)

	options = NewOptions(WithTTL(time.Minute))
	require.Equal(t, time.Minute, options.TTL)
}
