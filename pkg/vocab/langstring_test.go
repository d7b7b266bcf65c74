/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vocab

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLangString(t *testing.T) {
	t.Run("Nil", func(t *testing.T) {
		var s *LangString

		require.Empty(t, s.String())
		require.Empty(t, s.Get("en"))
		require.Empty(t, s.Languages())
		require.Nil(t, s.Map())
	})

	t.Run("Value", func(t *testing.T) {
		s := NewLangString("Hello")

		require.Equal(t, "Hello", s.String())
		require.Empty(t, s.Get("en"))
		require.Empty(t, s.Languages())
	})

	t.Run("Per-language values", func(t *testing.T) {
		s := NewLangStringMap(map[string]string{
			"fr": "Bonjour",
			"en": "Hello",
		})

		require.Equal(t, "Hello", s.Get("en"))
		require.Equal(t, "Bonjour", s.Get("fr"))
		require.Empty(t, s.Get("de"))

		// With no language-independent value, the value for the first
		// language in lexical order is returned.
		require.Equal(t, "Hello", s.String())

		require.Equal(t, []string{"en", "fr"}, s.Languages())
	})

	t.Run("Empty values -> nil", func(t *testing.T) {
		require.Nil(t, newLangString("", nil))
		require.NotNil(t, newLangString("Hello", nil))
		require.NotNil(t, newLangString("", map[string]string{"en": "Hello"}))
	})
}
