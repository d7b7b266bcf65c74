/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vocab

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridianfed/meridian/pkg/docloader"
	"github.com/meridianfed/meridian/pkg/internal/testutil"
)

func TestMarshalRaw(t *testing.T) {
	t.Run("Memoised document", func(t *testing.T) {
		obj := &ObjectType{}
		require.NoError(t, json.Unmarshal([]byte(jsonLDNote), obj))

		bytes, err := MarshalRaw(obj)
		require.NoError(t, err)
		require.JSONEq(t, jsonLDNote, string(bytes))
	})

	t.Run("Invalidated document", func(t *testing.T) {
		obj := &ObjectType{}
		require.NoError(t, json.Unmarshal([]byte(jsonLDNote), obj))

		obj.SetID(testutil.MustParseURL("https://sally.example.com/notes/2"))

		bytes, err := MarshalRaw(obj)
		require.NoError(t, err)
		require.Contains(t, string(bytes), `"id":"https://sally.example.com/notes/2"`)
	})

	t.Run("Constructed object", func(t *testing.T) {
		obj := NewObject(
			WithType(TypeNote),
			WithContent(NewLangString("Hello!")),
		)

		bytes, err := MarshalRaw(obj)
		require.NoError(t, err)
		require.JSONEq(t, `{"type":"Note","content":"Hello!"}`, string(bytes))
	})
}

func TestMarshalCompact(t *testing.T) {
	loader := docloader.New(http.DefaultClient)

	obj := NewObject(
		WithContext(ContextActivityStreams),
		WithID(testutil.MustParseURL("https://sally.example.com/notes/1")),
		WithType(TypeNote),
		WithContent(NewLangString("Hello!")),
	)

	t.Run("Success", func(t *testing.T) {
		bytes, err := MarshalCompact(obj, loader)
		require.NoError(t, err)

		doc := make(Document)
		require.NoError(t, json.Unmarshal(bytes, &doc))

		require.Equal(t, "https://www.w3.org/ns/activitystreams", doc["@context"])
		require.Equal(t, "https://sally.example.com/notes/1", doc["id"])
		require.Equal(t, "Note", doc["type"])
		require.Equal(t, "Hello!", doc["content"])
	})

	t.Run("Context load error", func(t *testing.T) {
		_, err := MarshalCompact(obj, loader, Context("https://10.0.0.1/context"))
		require.Error(t, err)
		require.Contains(t, err.Error(), "compact document")
	})
}

func TestMarshalExpanded(t *testing.T) {
	loader := docloader.New(http.DefaultClient)

	obj := NewObject(
		WithContext(ContextActivityStreams),
		WithID(testutil.MustParseURL("https://sally.example.com/notes/1")),
		WithType(TypeNote),
		WithContent(NewLangString("Hello!")),
	)

	bytes, err := MarshalExpanded(obj, loader)
	require.NoError(t, err)

	var expanded []interface{}

	require.NoError(t, json.Unmarshal(bytes, &expanded))
	require.Len(t, expanded, 1)

	node, ok := expanded[0].(map[string]interface{})
	require.True(t, ok)

	require.Equal(t, "https://sally.example.com/notes/1", node["@id"])
	require.Contains(t, node, "https://www.w3.org/ns/activitystreams#content")

	types, ok := node["@type"].([]interface{})
	require.True(t, ok)
	require.Contains(t, types, "https://www.w3.org/ns/activitystreams#Note")
}

const jsonLDNote = `{
  "@context": "https://www.w3.org/ns/activitystreams",
  "id": "https://sally.example.com/notes/1",
  "type": "Note",
  "content": "Hello!",
  "attributedTo": "https://sally.example.com/users/sally",
  "sensitive": false
}`
