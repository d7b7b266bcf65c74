/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package testutil

import (
	"encoding/json"
	"fmt"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

// MustParseURL parses the given string, panicking if it is not a valid URL.
func MustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		panic(err)
	}

	return u
}

// NewMockID returns a URL composed of the base IRI and the given path.
func NewMockID(iri fmt.Stringer, path string) *url.URL {
	return MustParseURL(fmt.Sprintf("%s%s", iri, path))
}

// NewMockURLs returns num URLs, formatting the i'th one with getURI.
//
//nolint:unparam
func NewMockURLs(num int, getURI func(i int) string) []*url.URL {
	urls := make([]*url.URL, num)

	for i := range urls {
		urls[i] = MustParseURL(getURI(i))
	}

	return urls
}

// RequireEqualJSON asserts that the JSON representation of the given object
// matches the expected JSON document.
func RequireEqualJSON(t *testing.T, expected string, obj interface{}) {
	t.Helper()

	bytes, err := json.Marshal(obj)
	require.NoError(t, err)

	require.JSONEq(t, expected, string(bytes))
}
