/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package uritemplate

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMatch(t *testing.T) {
	tmpl := MustParse("/repos{/owner,repo}{?q,lang}")

	vars := Values{
		"owner": StringValue("alice"),
		"repo":  StringValue("hello/world"),
		"q":     StringValue("a b"),
		"lang":  StringValue("en"),
	}

	uri, err := tmpl.Expand(vars)
	require.NoError(t, err)
	require.Equal(t, "/repos/alice/hello%2Fworld?q=a%20b&lang=en", uri)

	t.Run("opaque capture round-trips byte-for-byte", func(t *testing.T) {
		matched, ok := tmpl.Match(uri)
		require.True(t, ok)
		require.Equal(t, "alice", matched["owner"].String())
		require.Equal(t, "hello%2Fworld", matched["repo"].String())
		require.Equal(t, "a%20b", matched["q"].String())
		require.Equal(t, "en", matched["lang"].String())

		expanded, err := tmpl.Expand(matched)
		require.NoError(t, err)
		require.Equal(t, uri, expanded)
	})

	t.Run("cooked capture recovers the original values", func(t *testing.T) {
		matched, ok := tmpl.Match(uri, WithEncoding(EncodingCooked))
		require.True(t, ok)
		require.Equal(t, vars, matched)
	})

	t.Run("lossless capture retains both forms", func(t *testing.T) {
		matched, ok := tmpl.Match(uri, WithEncoding(EncodingLossless))
		require.True(t, ok)
		require.Equal(t, "hello/world", matched["repo"].String())
		require.Equal(t, "hello%2Fworld", matched["repo"].Raw())
		require.Equal(t, "a b", matched["q"].String())
		require.Equal(t, "a%20b", matched["q"].Raw())
	})

	t.Run("absent query leaves variables undefined", func(t *testing.T) {
		matched, ok := tmpl.Match("/repos/alice/hello")
		require.True(t, ok)
		require.Equal(t, "alice", matched["owner"].String())
		require.Equal(t, "hello", matched["repo"].String())

		_, defined := matched["q"]
		require.False(t, defined)

		_, defined = matched["lang"]
		require.False(t, defined)
	})

	t.Run("partial query", func(t *testing.T) {
		matched, ok := tmpl.Match("/repos/alice/hello?q=1")
		require.True(t, ok)
		require.Equal(t, "1", matched["q"].String())

		_, defined := matched["lang"]
		require.False(t, defined)
	})

	t.Run("literal mismatch -> no match", func(t *testing.T) {
		matched, ok := tmpl.Match("/users/alice")
		require.False(t, ok)
		require.Nil(t, matched)
	})

	t.Run("trailing garbage -> no match", func(t *testing.T) {
		_, ok := MustParse("/inbox").Match("/inbox/extra")
		require.False(t, ok)
	})

	t.Run("unclaimed query parameter -> no match", func(t *testing.T) {
		_, ok := MustParse("/search{?q}").Match("/search?q=1&page=2")
		require.False(t, ok)
	})

	t.Run("literal after optional expression", func(t *testing.T) {
		versioned := MustParse("/api{/ver}/health")

		matched, ok := versioned.Match("/api/v1/health")
		require.True(t, ok)
		require.Equal(t, "v1", matched["ver"].String())

		matched, ok = versioned.Match("/api/health")
		require.True(t, ok)

		_, defined := matched["ver"]
		require.False(t, defined)
	})

	t.Run("simple expression bounded by literal", func(t *testing.T) {
		matched, ok := MustParse("{x}/files").Match("abc/files")
		require.True(t, ok)
		require.Equal(t, "abc", matched["x"].String())
	})
}

func TestMatchPositional(t *testing.T) {
	t.Run("last variable absorbs surplus segments", func(t *testing.T) {
		matched, ok := MustParse("{/a,b}").Match("/x/y/z")
		require.True(t, ok)
		require.Equal(t, "x", matched["a"].String())
		require.Equal(t, "y/z", matched["b"].String())
	})

	t.Run("exploded variable captures a list", func(t *testing.T) {
		matched, ok := MustParse("{/segments*}").Match("/a/b/c", WithEncoding(EncodingCooked))
		require.True(t, ok)
		require.Equal(t, KindList, matched["segments"].Kind())
		require.Equal(t, []string{"a", "b", "c"}, matched["segments"].List())
	})

	t.Run("label explode", func(t *testing.T) {
		matched, ok := MustParse("www{.host*}").Match("www.example.com")
		require.True(t, ok)
		require.Equal(t, []string{"example", "com"}, matched["host"].List())
	})
}

func TestMatchNamedExplode(t *testing.T) {
	tmpl := MustParse("/search{?filter*}")

	t.Run("repeated name captures a list", func(t *testing.T) {
		matched, ok := tmpl.Match("/search?filter=go&filter=web", WithEncoding(EncodingCooked))
		require.True(t, ok)
		require.Equal(t, KindList, matched["filter"].Kind())
		require.Equal(t, []string{"go", "web"}, matched["filter"].List())
	})

	t.Run("distinct names capture an associative array", func(t *testing.T) {
		matched, ok := tmpl.Match("/search?lang=go&topic=web", WithEncoding(EncodingCooked))
		require.True(t, ok)
		require.Equal(t, KindAssoc, matched["filter"].Kind())
		require.Equal(t, []Pair{
			{Name: "lang", Value: "go"},
			{Name: "topic", Value: "web"},
		}, matched["filter"].Assoc())
	})

	t.Run("simple variables claim their parts before the explode", func(t *testing.T) {
		mixed := MustParse("/search{?q,filter*}")

		matched, ok := mixed.Match("/search?q=abc&tag=go", WithEncoding(EncodingCooked))
		require.True(t, ok)
		require.Equal(t, "abc", matched["q"].String())
		require.Equal(t, KindAssoc, matched["filter"].Kind())
	})
}

func TestMatchStrict(t *testing.T) {
	tmpl := MustParse("/u{/name}")

	t.Run("invalid percent triplet accepted by default", func(t *testing.T) {
		matched, ok := tmpl.Match("/u/ab%2")
		require.True(t, ok)
		require.Equal(t, "ab%2", matched["name"].String())
	})

	t.Run("invalid percent triplet rejected in strict mode", func(t *testing.T) {
		matched, ok := tmpl.Match("/u/ab%2", WithStrict(true))
		require.False(t, ok)
		require.Nil(t, matched)
	})

	t.Run("valid triplets pass strict mode", func(t *testing.T) {
		matched, ok := tmpl.Match("/u/a%20b", WithStrict(true), WithEncoding(EncodingCooked))
		require.True(t, ok)
		require.Equal(t, "a b", matched["name"].String())
	})
}
