/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package docloader_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridianfed/meridian/pkg/docloader"
	merrors "github.com/meridianfed/meridian/pkg/errors"
)

func TestUserAgent(t *testing.T) {
	require.Equal(t, "Meridian/1.0.0", docloader.UserAgent("", ""))
	require.Equal(t, "MyApp/2.0 Meridian/1.0.0", docloader.UserAgent("MyApp/2.0", ""))
	require.Equal(t, "MyApp/2.0 Meridian/1.0.0 (+https://myapp.example/)",
		docloader.UserAgent("MyApp/2.0", "https://myapp.example/"))
	require.Equal(t, "Meridian/1.0.0 (+https://myapp.example/)",
		docloader.UserAgent("", "https://myapp.example/"))
}

func TestLoaderPreloadedContexts(t *testing.T) {
	loader := docloader.New(&http.Client{})

	for _, u := range []string{
		"https://www.w3.org/ns/activitystreams",
		"https://w3id.org/security/v1",
		"https://w3id.org/security/data-integrity/v1",
	} {
		doc, err := loader.Load(context.Background(), u)
		require.NoError(t, err)
		require.Equal(t, u, doc.DocumentURL)

		content, ok := doc.Document.(map[string]interface{})
		require.True(t, ok)
		require.Contains(t, content, "@context")
	}

	doc, err := loader.LoadDocument("https://www.w3.org/ns/activitystreams")
	require.NoError(t, err)
	require.NotNil(t, doc.Document)
}

func TestLoaderGuards(t *testing.T) {
	loader := docloader.New(&http.Client{})

	t.Run("unsupported scheme", func(t *testing.T) {
		_, err := loader.Load(context.Background(), "ftp://example.com/doc")
		require.Error(t, err)
		require.True(t, merrors.IsKind(err, merrors.KindURL))
	})

	t.Run("private addresses", func(t *testing.T) {
		for _, u := range []string{
			"https://localhost/actor",
			"https://foo.localhost/actor",
			"http://127.0.0.1/actor",
			"http://10.1.2.3/actor",
			"http://192.168.0.10/actor",
			"http://169.254.10.20/actor",
			"http://[::1]/actor",
			"http://0.0.0.0/actor",
		} {
			_, err := loader.Load(context.Background(), u)
			require.Error(t, err, u)
			require.True(t, merrors.IsKind(err, merrors.KindURL), u)
		}
	})

	t.Run("allow private addresses", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/activity+json")
			fmt.Fprint(w, `{"id":"https://example.com/actor"}`)
		}))
		defer server.Close()

		permissive := docloader.New(server.Client(), docloader.WithAllowPrivateAddress(true))

		doc, err := permissive.Load(context.Background(), server.URL+"/actor")
		require.NoError(t, err)
		require.NotNil(t, doc.Document)
	})
}

func TestLoaderLoad(t *testing.T) {
	var lastUserAgent string

	mux := http.NewServeMux()

	mux.HandleFunc("/actor", func(w http.ResponseWriter, r *http.Request) {
		lastUserAgent = r.Header.Get("User-Agent")

		w.Header().Set("Content-Type", `application/ld+json; profile="https://www.w3.org/ns/activitystreams"`)
		w.Header().Set("Link", `</context.jsonld>; rel="http://www.w3.org/ns/json-ld#context"`)
		fmt.Fprint(w, `{"id":"https://example.com/actor","type":"Person"}`)
	})

	mux.HandleFunc("/mislabeled", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, `{"id":"https://example.com/mislabeled"}`)
	})

	mux.HandleFunc("/not-json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, "hello")
	})

	mux.HandleFunc("/bad-json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/activity+json")
		fmt.Fprint(w, "{")
	})

	mux.HandleFunc("/redirect", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/actor", http.StatusFound)
	})

	mux.HandleFunc("/loop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusFound)
	})

	mux.HandleFunc("/linked", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Header().Set("Link", `</actor>; rel="alternate"; type="application/activity+json"`)
		fmt.Fprint(w, "see the alternate")
	})

	mux.HandleFunc("/linked-profile", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Header().Set("Link",
			`</actor>; rel="alternate"; type="application/ld+json; profile=\"https://www.w3.org/ns/activitystreams\""`)
		fmt.Fprint(w, "see the alternate")
	})

	mux.HandleFunc("/profile", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head>
			<link rel="stylesheet" href="/styles.css">
			<link rel="alternate" type="application/activity+json" href="/actor">
			</head><body></body></html>`)
	})

	mux.HandleFunc("/profile-anchor", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body>
			<a rel="alternate" type="application/activity+json" href="/actor">ActivityPub</a>
			</body></html>`)
	})

	mux.HandleFunc("/profile-plain", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><p>nothing to discover here</p></body></html>`)
	})

	mux.HandleFunc("/with-context", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Link", `</context.jsonld>; rel="http://www.w3.org/ns/json-ld#context"`)
		fmt.Fprint(w, `{"name":"plain JSON"}`)
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	loader := docloader.New(server.Client(),
		docloader.WithAllowPrivateAddress(true),
		docloader.WithUserAgent("TestApp/1.0", "https://testapp.example/"),
	)

	t.Run("activity JSON response", func(t *testing.T) {
		doc, err := loader.Load(context.Background(), server.URL+"/actor")
		require.NoError(t, err)
		require.Equal(t, server.URL+"/actor", doc.DocumentURL)

		content, ok := doc.Document.(map[string]interface{})
		require.True(t, ok)
		require.Equal(t, "Person", content["type"])

		require.Equal(t, "TestApp/1.0 Meridian/1.0.0 (+https://testapp.example/)", lastUserAgent)
	})

	t.Run("mislabeled JSON response", func(t *testing.T) {
		doc, err := loader.Load(context.Background(), server.URL+"/mislabeled")
		require.NoError(t, err)
		require.NotNil(t, doc.Document)
	})

	t.Run("not JSON at all -> parse error", func(t *testing.T) {
		_, err := loader.Load(context.Background(), server.URL+"/not-json")
		require.Error(t, err)
		require.True(t, merrors.IsKind(err, merrors.KindParse))
	})

	t.Run("invalid JSON body -> parse error", func(t *testing.T) {
		_, err := loader.Load(context.Background(), server.URL+"/bad-json")
		require.Error(t, err)
		require.True(t, merrors.IsKind(err, merrors.KindParse))
	})

	t.Run("not found -> fetch error with URL and status", func(t *testing.T) {
		_, err := loader.Load(context.Background(), server.URL+"/missing")
		require.Error(t, err)
		require.True(t, merrors.IsKind(err, merrors.KindFetch))

		var fetchErr *merrors.FetchError

		require.True(t, errors.As(err, &fetchErr))
		require.Equal(t, http.StatusNotFound, fetchErr.Status())
		require.Equal(t, server.URL+"/missing", fetchErr.URL())
	})

	t.Run("redirect is followed and reflected in the document URL", func(t *testing.T) {
		doc, err := loader.Load(context.Background(), server.URL+"/redirect")
		require.NoError(t, err)
		require.Equal(t, server.URL+"/actor", doc.DocumentURL)
	})

	t.Run("redirect loop -> error", func(t *testing.T) {
		_, err := loader.Load(context.Background(), server.URL+"/loop")
		require.Error(t, err)
		require.Contains(t, err.Error(), "stopped after 10 redirects")
	})

	t.Run("alternate from Link header", func(t *testing.T) {
		doc, err := loader.Load(context.Background(), server.URL+"/linked")
		require.NoError(t, err)
		require.Equal(t, server.URL+"/actor", doc.DocumentURL)
	})

	t.Run("alternate from Link header with quoted profile", func(t *testing.T) {
		doc, err := loader.Load(context.Background(), server.URL+"/linked-profile")
		require.NoError(t, err)
		require.Equal(t, server.URL+"/actor", doc.DocumentURL)
	})

	t.Run("alternate from HTML link tag", func(t *testing.T) {
		doc, err := loader.Load(context.Background(), server.URL+"/profile")
		require.NoError(t, err)
		require.Equal(t, server.URL+"/actor", doc.DocumentURL)
	})

	t.Run("alternate from HTML anchor tag", func(t *testing.T) {
		doc, err := loader.Load(context.Background(), server.URL+"/profile-anchor")
		require.NoError(t, err)
		require.Equal(t, server.URL+"/actor", doc.DocumentURL)
	})

	t.Run("HTML without an alternate -> parse error", func(t *testing.T) {
		_, err := loader.Load(context.Background(), server.URL+"/profile-plain")
		require.Error(t, err)
		require.True(t, merrors.IsKind(err, merrors.KindParse))
	})

	t.Run("context URL from Link header", func(t *testing.T) {
		doc, err := loader.Load(context.Background(), server.URL+"/with-context")
		require.NoError(t, err)
		require.Equal(t, server.URL+"/context.jsonld", doc.ContextURL)
	})

	t.Run("context link is ignored for JSON-LD responses", func(t *testing.T) {
		doc, err := loader.Load(context.Background(), server.URL+"/actor")
		require.NoError(t, err)
		require.Empty(t, doc.ContextURL)
	})

	t.Run("cancelled context -> cancelled error", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := loader.Load(ctx, server.URL+"/actor")
		require.Error(t, err)
		require.True(t, merrors.IsKind(err, merrors.KindCancelled))
	})
}
