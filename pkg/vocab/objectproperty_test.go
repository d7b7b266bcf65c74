/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vocab

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridianfed/meridian/pkg/internal/testutil"
)

func TestObjectProperty(t *testing.T) {
	iri := testutil.MustParseURL("https://sally.example.com/notes/1")

	t.Run("Nil", func(t *testing.T) {
		var p *ObjectProperty

		require.Nil(t, p.Type())
		require.Nil(t, p.IRI())
		require.Nil(t, p.ID())
		require.Nil(t, p.Object())
		require.Nil(t, p.Collection())
		require.Nil(t, p.Activity())
		require.Nil(t, p.Actor())
		require.False(t, p.Trusted())
	})

	t.Run("IRI", func(t *testing.T) {
		p := NewObjectProperty(WithIRI(iri))

		require.Nil(t, p.Type())
		require.Equal(t, iri.String(), p.IRI().String())
		require.Equal(t, iri.String(), p.ID().String())

		bytes, err := json.Marshal(p)
		require.NoError(t, err)
		require.Equal(t, `"https://sally.example.com/notes/1"`, string(bytes))

		p2 := &ObjectProperty{}
		require.NoError(t, json.Unmarshal(bytes, p2))
		require.Equal(t, iri.String(), p2.IRI().String())
	})

	t.Run("Embedded object", func(t *testing.T) {
		p := NewObjectProperty(WithObject(NewObject(
			WithID(iri),
			WithType(TypeNote),
			WithContent(NewLangString("Hello")),
		)))

		require.True(t, p.Type().Is(TypeNote))
		require.Nil(t, p.IRI())
		require.Equal(t, iri.String(), p.ID().String())

		bytes, err := json.Marshal(p)
		require.NoError(t, err)

		p2 := &ObjectProperty{}
		require.NoError(t, json.Unmarshal(bytes, p2))

		require.NotNil(t, p2.Object())
		require.Equal(t, "Hello", p2.Object().Content().String())
	})

	t.Run("Type dispatch", func(t *testing.T) {
		tests := []struct {
			name   string
			doc    string
			verify func(t *testing.T, p *ObjectProperty)
		}{
			{
				name: "Collection",
				doc:  `{"type":"Collection","totalItems":0}`,
				verify: func(t *testing.T, p *ObjectProperty) {
					t.Helper()
					require.NotNil(t, p.Collection())
				},
			},
			{
				name: "OrderedCollection",
				doc:  `{"type":"OrderedCollection","totalItems":0}`,
				verify: func(t *testing.T, p *ObjectProperty) {
					t.Helper()
					require.NotNil(t, p.OrderedCollection())
				},
			},
			{
				name: "CollectionPage",
				doc:  `{"type":"CollectionPage","totalItems":0}`,
				verify: func(t *testing.T, p *ObjectProperty) {
					t.Helper()
					require.NotNil(t, p.CollectionPage())
				},
			},
			{
				name: "OrderedCollectionPage",
				doc:  `{"type":"OrderedCollectionPage","totalItems":0}`,
				verify: func(t *testing.T, p *ObjectProperty) {
					t.Helper()
					require.NotNil(t, p.OrderedCollectionPage())
				},
			},
			{
				name: "Activity",
				doc:  `{"type":"Like","actor":"https://bob.example.com/users/bob"}`,
				verify: func(t *testing.T, p *ObjectProperty) {
					t.Helper()
					require.NotNil(t, p.Activity())
					require.Equal(t, "https://bob.example.com/users/bob", p.Activity().Actor().String())
				},
			},
			{
				name: "Actor",
				doc:  `{"type":"Person","preferredUsername":"bob"}`,
				verify: func(t *testing.T, p *ObjectProperty) {
					t.Helper()
					require.NotNil(t, p.Actor())
					require.Equal(t, "bob", p.Actor().GetPreferredUsername())
				},
			},
			{
				name: "Plain object",
				doc:  `{"type":"Video","name":"A video"}`,
				verify: func(t *testing.T, p *ObjectProperty) {
					t.Helper()
					require.NotNil(t, p.Object())
					require.Equal(t, "A video", p.Object().Name().String())
				},
			},
		}

		for _, test := range tests {
			t.Run(test.name, func(t *testing.T) {
				p := &ObjectProperty{}
				require.NoError(t, json.Unmarshal([]byte(test.doc), p))
				test.verify(t, p)
			})
		}
	})
}
