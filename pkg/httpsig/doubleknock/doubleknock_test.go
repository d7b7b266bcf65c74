/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package doubleknock

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridianfed/meridian/pkg/httpsig"
	"github.com/meridianfed/meridian/pkg/internal/testutil"
	"github.com/meridianfed/meridian/pkg/store/memstore"
	"github.com/meridianfed/meridian/pkg/store/spi"
)

func TestTransport_Send(t *testing.T) {
	keyID := testutil.MustParseURL("https://sally.example.com/services/fed/keys/main-key")
	targetIRI := testutil.MustParseURL("https://alice.example.com/services/fed/inbox")

	const origin = "https://alice.example.com"

	payload := []byte(`{"@context":"https://www.w3.org/ns/activitystreams","type":"Create"}`)

	_, privKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	t.Run("First knock accepted -> spec remembered", func(t *testing.T) {
		client := newMockClient(response(http.StatusAccepted))
		determiner := NewMemDeterminer()

		transport := New(client, privKey, keyID, WithSpecDeterminer(determiner))

		resp, err := transport.Send(newPostRequest(t, targetIRI.String()), payload)
		require.NoError(t, err)
		require.Equal(t, http.StatusAccepted, resp.StatusCode)

		require.Len(t, client.requests, 1)
		require.NotEmpty(t, client.requests[0].Header.Get("Signature-Input"))

		spec, err := determiner.GetSpec(origin)
		require.NoError(t, err)
		require.Equal(t, httpsig.SpecRFC9421, spec)
	})

	t.Run("Rejected first knock -> retried with the other suite", func(t *testing.T) {
		client := newMockClient(response(http.StatusUnauthorized), response(http.StatusAccepted))
		determiner := NewMemDeterminer()

		transport := New(client, privKey, keyID, WithSpecDeterminer(determiner))

		resp, err := transport.Send(newPostRequest(t, targetIRI.String()), payload)
		require.NoError(t, err)
		require.Equal(t, http.StatusAccepted, resp.StatusCode)

		require.Len(t, client.requests, 2)
		require.NotEmpty(t, client.requests[0].Header.Get("Signature-Input"))
		require.Empty(t, client.requests[1].Header.Get("Signature-Input"))
		require.NotEmpty(t, client.requests[1].Header.Get("Signature"))

		spec, err := determiner.GetSpec(origin)
		require.NoError(t, err)
		require.Equal(t, httpsig.SpecCavage, spec)
	})

	t.Run("Remembered spec is used directly", func(t *testing.T) {
		client := newMockClient(response(http.StatusAccepted))
		determiner := NewMemDeterminer()

		require.NoError(t, determiner.RememberSpec(origin, httpsig.SpecCavage))

		transport := New(client, privKey, keyID, WithSpecDeterminer(determiner))

		_, err := transport.Send(newPostRequest(t, targetIRI.String()), payload)
		require.NoError(t, err)

		require.Len(t, client.requests, 1)
		require.Empty(t, client.requests[0].Header.Get("Signature-Input"))
		require.NotEmpty(t, client.requests[0].Header.Get("Signature"))
	})

	t.Run("First knock suite is configurable", func(t *testing.T) {
		client := newMockClient(response(http.StatusAccepted))

		transport := New(client, privKey, keyID, WithFirstKnock(httpsig.SpecCavage))

		_, err := transport.Send(newPostRequest(t, targetIRI.String()), payload)
		require.NoError(t, err)

		require.Len(t, client.requests, 1)
		require.Empty(t, client.requests[0].Header.Get("Signature-Input"))
	})

	t.Run("Rejected on both knocks -> nothing remembered", func(t *testing.T) {
		client := newMockClient(response(http.StatusUnauthorized), response(http.StatusForbidden))
		determiner := NewMemDeterminer()

		transport := New(client, privKey, keyID, WithSpecDeterminer(determiner))

		resp, err := transport.Send(newPostRequest(t, targetIRI.String()), payload)
		require.NoError(t, err)
		require.Equal(t, http.StatusForbidden, resp.StatusCode)

		require.Len(t, client.requests, 2)

		spec, err := determiner.GetSpec(origin)
		require.NoError(t, err)
		require.Empty(t, spec)
	})

	t.Run("Server error -> no retry", func(t *testing.T) {
		client := newMockClient(response(http.StatusInternalServerError))

		transport := New(client, privKey, keyID)

		resp, err := transport.Send(newPostRequest(t, targetIRI.String()), payload)
		require.NoError(t, err)
		require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

		require.Len(t, client.requests, 1)
	})

	t.Run("GET request is signed with the GET signer", func(t *testing.T) {
		client := newMockClient(response(http.StatusOK))

		transport := New(client, privKey, keyID)

		req, err := http.NewRequest(http.MethodGet, targetIRI.String(), nil)
		require.NoError(t, err)

		req.Header.Set("Accept", "application/activity+json")

		_, err = transport.Send(req, nil)
		require.NoError(t, err)

		require.Len(t, client.requests, 1)
		require.NotEmpty(t, client.requests[0].Header.Get("Signature-Input"))
		require.Empty(t, client.requests[0].Header.Get("Content-Digest"))
	})

	t.Run("Client error -> error", func(t *testing.T) {
		errExpected := errors.New("injected client error")

		transport := New(&mockClient{err: errExpected}, privKey, keyID)

		_, err := transport.Send(newPostRequest(t, targetIRI.String()), payload)
		require.Error(t, err)
		require.ErrorIs(t, err, errExpected)
	})
}

func TestStoreDeterminer(t *testing.T) {
	const origin = "https://alice.example.com"

	t.Run("Success", func(t *testing.T) {
		determiner := NewStoreDeterminer(memstore.New(), spi.DefaultPrefix)

		spec, err := determiner.GetSpec(origin)
		require.NoError(t, err)
		require.Empty(t, spec)

		require.NoError(t, determiner.RememberSpec(origin, httpsig.SpecCavage))

		spec, err = determiner.GetSpec(origin)
		require.NoError(t, err)
		require.Equal(t, httpsig.SpecCavage, spec)
	})

	t.Run("Unsupported stored value is ignored", func(t *testing.T) {
		store := memstore.New()

		require.NoError(t, store.Set(spi.ForSignatureSpec(spi.DefaultPrefix, origin), []byte("unknown-spec")))

		spec, err := NewStoreDeterminer(store, spi.DefaultPrefix).GetSpec(origin)
		require.NoError(t, err)
		require.Empty(t, spec)
	})
}

func newPostRequest(t *testing.T, target string) *http.Request {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, target, nil)
	require.NoError(t, err)

	req.Header.Set("Content-Type", "application/activity+json")

	return req
}

func response(status int) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader(nil)),
	}
}

type mockClient struct {
	responses []*http.Response
	requests  []*http.Request
	err       error
}

func newMockClient(responses ...*http.Response) *mockClient {
	return &mockClient{responses: responses}
}

func (c *mockClient) Do(req *http.Request) (*http.Response, error) {
	c.requests = append(c.requests, req)

	if c.err != nil {
		return nil, c.err
	}

	resp := c.responses[0]

	if len(c.responses) > 1 {
		c.responses = c.responses[1:]
	}

	return resp, nil
}
