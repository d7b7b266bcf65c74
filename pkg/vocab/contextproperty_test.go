/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vocab

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContextProperty(t *testing.T) {
	t.Run("Nil", func(t *testing.T) {
		p := NewContextProperty()
		require.Nil(t, p)
		require.Empty(t, p.Contexts())
		require.False(t, p.Contains(ContextActivityStreams))
		require.Empty(t, p.String())
	})

	t.Run("Single context", func(t *testing.T) {
		p := NewContextProperty(ContextActivityStreams)

		require.True(t, p.Contains(ContextActivityStreams))
		require.False(t, p.Contains(ContextSecurity))

		bytes, err := json.Marshal(p)
		require.NoError(t, err)
		require.Equal(t, `"https://www.w3.org/ns/activitystreams"`, string(bytes))

		p2 := &ContextProperty{}
		require.NoError(t, json.Unmarshal(bytes, p2))
		require.True(t, p2.Contains(ContextActivityStreams))
	})

	t.Run("Multiple contexts", func(t *testing.T) {
		p := NewContextProperty(ContextActivityStreams, ContextSecurity)

		require.True(t, p.Contains(ContextActivityStreams, ContextSecurity))
		require.True(t, p.ContainsAny(ContextSecurity, ContextDataIntegrity))
		require.False(t, p.ContainsAny(ContextDataIntegrity))

		bytes, err := json.Marshal(p)
		require.NoError(t, err)
		require.Equal(t,
			`["https://www.w3.org/ns/activitystreams","https://w3id.org/security/v1"]`,
			string(bytes))
	})

	t.Run("Embedded term definitions are preserved", func(t *testing.T) {
		doc := `["https://www.w3.org/ns/activitystreams",{"toot":"http://joinmastodon.org/ns#","sensitive":"as:sensitive"}]`

		p := &ContextProperty{}
		require.NoError(t, json.Unmarshal([]byte(doc), p))

		require.True(t, p.Contains(ContextActivityStreams))

		bytes, err := json.Marshal(p)
		require.NoError(t, err)
		require.JSONEq(t, doc, string(bytes))
	})
}
