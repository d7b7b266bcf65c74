/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package nodeinfo

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	merrors "github.com/meridianfed/meridian/pkg/errors"
)

func TestNewClient(t *testing.T) {
	c := NewClient()
	require.NotNil(t, c)
	require.Equal(t, http.DefaultClient, c.httpClient)

	httpClient := httpMock(func(req *http.Request) (*http.Response, error) {
		return nil, nil
	})

	c = NewClient(WithHTTPClient(httpClient))
	require.NotNil(t, c)
}

func TestGetNodeInfo(t *testing.T) {
	t.Run("success - strict", func(t *testing.T) {
		var requestedURLs []string

		httpClient := httpMock(func(req *http.Request) (*http.Response, error) {
			requestedURLs = append(requestedURLs, req.URL.String())

			if req.URL.Path == "/.well-known/nodeinfo" {
				return response(http.StatusOK, wellKnownDoc), nil
			}

			return response(http.StatusOK, nodeInfoV2_1Doc), nil
		})

		c := NewClient(WithHTTPClient(httpClient))

		nodeInfo, err := c.GetNodeInfo(context.Background(), "example.com", ParseStrict)
		require.NoError(t, err)
		require.NotNil(t, nodeInfo)

		require.Equal(t, []string{
			"https://example.com/.well-known/nodeinfo",
			"https://example.com/nodeinfo/2.1",
		}, requestedURLs)

		require.Equal(t, V2_1, nodeInfo.Version)
		require.Equal(t, "mastodon", nodeInfo.Software.Name)
		require.Equal(t, "4.2.1", nodeInfo.Software.Version)
		require.Equal(t, []string{"activitypub"}, nodeInfo.Protocols)
		require.Equal(t, 12, nodeInfo.Usage.Users.Total)
		require.Equal(t, 100, nodeInfo.Usage.LocalPosts)
		require.JSONEq(t, nodeInfoV2_1Doc, string(nodeInfo.Raw))
	})

	t.Run("success - falls back to version 2.0", func(t *testing.T) {
		httpClient := httpMock(func(req *http.Request) (*http.Response, error) {
			if req.URL.Path == "/.well-known/nodeinfo" {
				return response(http.StatusOK, wellKnownDocV2_0Only), nil
			}

			require.Equal(t, "https://example.com/nodeinfo/2.0", req.URL.String())

			return response(http.StatusOK, nodeInfoV2_0Doc), nil
		})

		c := NewClient(WithHTTPClient(httpClient))

		nodeInfo, err := c.GetNodeInfo(context.Background(), "example.com", ParseStrict)
		require.NoError(t, err)
		require.Equal(t, V2_0, nodeInfo.Version)
	})

	t.Run("success - host given as URL", func(t *testing.T) {
		httpClient := httpMock(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "http", req.URL.Scheme)

			if req.URL.Path == "/.well-known/nodeinfo" {
				return response(http.StatusOK, `{"links":[{"rel":"http://nodeinfo.diaspora.software/ns/schema/2.0","href":"http://example.com:8080/nodeinfo/2.0"}]}`), nil
			}

			return response(http.StatusOK, nodeInfoV2_0Doc), nil
		})

		c := NewClient(WithHTTPClient(httpClient))

		nodeInfo, err := c.GetNodeInfo(context.Background(), "http://example.com:8080", ParseStrict)
		require.NoError(t, err)
		require.NotNil(t, nodeInfo)
	})

	t.Run("success - best effort fills defaults", func(t *testing.T) {
		c := NewClient(WithHTTPClient(clientFor(malformedDoc)))

		nodeInfo, err := c.GetNodeInfo(context.Background(), "example.com", ParseBestEffort)
		require.NoError(t, err)

		require.Equal(t, V2_0, nodeInfo.Version)
		require.Equal(t, "unknown", nodeInfo.Software.Name)
		require.Equal(t, "0.0.0", nodeInfo.Software.Version)
		require.Equal(t, []string{"activitypub"}, nodeInfo.Protocols)
		require.Equal(t, 0, nodeInfo.Usage.LocalPosts)
	})

	t.Run("success - best effort tolerates mistyped fields", func(t *testing.T) {
		c := NewClient(WithHTTPClient(clientFor(mistypedDoc)))

		nodeInfo, err := c.GetNodeInfo(context.Background(), "example.com", ParseBestEffort)
		require.NoError(t, err)
		require.Equal(t, []string{"activitypub"}, nodeInfo.Protocols)
	})

	t.Run("success - parse none returns document as is", func(t *testing.T) {
		c := NewClient(WithHTTPClient(clientFor(malformedDoc)))

		nodeInfo, err := c.GetNodeInfo(context.Background(), "example.com", ParseNone)
		require.NoError(t, err)

		require.Equal(t, "latest", nodeInfo.Software.Version)
		require.Empty(t, nodeInfo.Protocols)
		require.JSONEq(t, malformedDoc, string(nodeInfo.Raw))
	})

	t.Run("error - strict rejects malformed document", func(t *testing.T) {
		c := NewClient(WithHTTPClient(clientFor(malformedDoc)))

		nodeInfo, err := c.GetNodeInfo(context.Background(), "example.com", ParseStrict)
		require.Error(t, err)
		require.Nil(t, nodeInfo)
		require.True(t, merrors.IsKind(err, merrors.KindParse))
	})

	t.Run("error - strict rejects mistyped fields", func(t *testing.T) {
		c := NewClient(WithHTTPClient(clientFor(mistypedDoc)))

		_, err := c.GetNodeInfo(context.Background(), "example.com", ParseStrict)
		require.Error(t, err)
		require.True(t, merrors.IsKind(err, merrors.KindParse))
	})

	t.Run("error - invalid JSON fails in every parse mode", func(t *testing.T) {
		for _, parseMode := range []ParseMode{ParseStrict, ParseBestEffort, ParseNone} {
			c := NewClient(WithHTTPClient(clientFor("invalid JSON")))

			_, err := c.GetNodeInfo(context.Background(), "example.com", parseMode)
			require.Error(t, err, parseMode)
			require.True(t, merrors.IsKind(err, merrors.KindParse), parseMode)
		}
	})

	t.Run("error - discovery document not found", func(t *testing.T) {
		httpClient := httpMock(func(req *http.Request) (*http.Response, error) {
			return response(http.StatusNotFound, "not found"), nil
		})

		c := NewClient(WithHTTPClient(httpClient))

		_, err := c.GetNodeInfo(context.Background(), "example.com", ParseStrict)
		require.Error(t, err)
		require.ErrorIs(t, err, merrors.ErrContentNotFound)
	})

	t.Run("error - no supported schema link", func(t *testing.T) {
		httpClient := httpMock(func(req *http.Request) (*http.Response, error) {
			return response(http.StatusOK, `{"links":[{"rel":"http://nodeinfo.diaspora.software/ns/schema/1.0","href":"https://example.com/nodeinfo/1.0"}]}`), nil
		})

		c := NewClient(WithHTTPClient(httpClient))

		_, err := c.GetNodeInfo(context.Background(), "example.com", ParseStrict)
		require.Error(t, err)
		require.ErrorIs(t, err, merrors.ErrContentNotFound)
	})

	t.Run("error - invalid discovery document", func(t *testing.T) {
		httpClient := httpMock(func(req *http.Request) (*http.Response, error) {
			return response(http.StatusOK, "invalid JSON"), nil
		})

		c := NewClient(WithHTTPClient(httpClient))

		_, err := c.GetNodeInfo(context.Background(), "example.com", ParseStrict)
		require.Error(t, err)
		require.True(t, merrors.IsKind(err, merrors.KindParse))
	})

	t.Run("error - http.Do() error", func(t *testing.T) {
		httpClient := httpMock(func(req *http.Request) (*http.Response, error) {
			return nil, errors.New("injected HTTP client error")
		})

		c := NewClient(WithHTTPClient(httpClient))

		_, err := c.GetNodeInfo(context.Background(), "example.com", ParseStrict)
		require.Error(t, err)
		require.Contains(t, err.Error(), "injected HTTP client error")
		require.True(t, merrors.IsTransient(err))
	})

	t.Run("error - internal server error", func(t *testing.T) {
		httpClient := httpMock(func(req *http.Request) (*http.Response, error) {
			return response(http.StatusInternalServerError, "server error"), nil
		})

		c := NewClient(WithHTTPClient(httpClient))

		_, err := c.GetNodeInfo(context.Background(), "example.com", ParseStrict)
		require.Error(t, err)
		require.Contains(t, err.Error(), "status code 500")
		require.True(t, merrors.IsTransient(err))
	})

	t.Run("error - forbidden", func(t *testing.T) {
		httpClient := httpMock(func(req *http.Request) (*http.Response, error) {
			return response(http.StatusForbidden, "forbidden"), nil
		})

		c := NewClient(WithHTTPClient(httpClient))

		_, err := c.GetNodeInfo(context.Background(), "example.com", ParseStrict)
		require.Error(t, err)
		require.Contains(t, err.Error(), "status code 403")
		require.False(t, merrors.IsTransient(err))
	})

	t.Run("error - unsupported scheme", func(t *testing.T) {
		c := NewClient()

		_, err := c.GetNodeInfo(context.Background(), "ftp://example.com", ParseStrict)
		require.Error(t, err)
		require.True(t, merrors.IsKind(err, merrors.KindURL))
	})
}

// clientFor returns an HTTP client that serves the standard discovery document
// and the given NodeInfo document.
func clientFor(nodeInfoDoc string) httpMock {
	return func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == "/.well-known/nodeinfo" {
			return response(http.StatusOK, wellKnownDoc), nil
		}

		return response(http.StatusOK, nodeInfoDoc), nil
	}
}

func response(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
}

const (
	wellKnownDoc = `{
  "links": [
    {
      "rel": "http://nodeinfo.diaspora.software/ns/schema/2.0",
      "href": "https://example.com/nodeinfo/2.0"
    },
    {
      "rel": "http://nodeinfo.diaspora.software/ns/schema/2.1",
      "href": "https://example.com/nodeinfo/2.1"
    }
  ]
}`

	wellKnownDocV2_0Only = `{
  "links": [
    {
      "rel": "http://nodeinfo.diaspora.software/ns/schema/2.0",
      "href": "https://example.com/nodeinfo/2.0"
    }
  ]
}`

	nodeInfoV2_1Doc = `{
  "version": "2.1",
  "software": {
    "name": "mastodon",
    "version": "4.2.1",
    "repository": "https://github.com/mastodon/mastodon"
  },
  "protocols": ["activitypub"],
  "services": {"inbound": [], "outbound": []},
  "openRegistrations": true,
  "usage": {
    "users": {"total": 12},
    "localPosts": 100,
    "localComments": 50
  }
}`

	nodeInfoV2_0Doc = `{
  "version": "2.0",
  "software": {
    "name": "pleroma",
    "version": "2.5.0"
  },
  "protocols": ["activitypub"],
  "services": {"inbound": [], "outbound": []},
  "openRegistrations": false,
  "usage": {
    "users": {"total": 1},
    "localPosts": 3,
    "localComments": 0
  }
}`

	malformedDoc = `{
  "version": "0.7",
  "software": {
    "name": "Weird Software!",
    "version": "latest"
  },
  "usage": {
    "users": {"total": 1},
    "localPosts": -4,
    "localComments": 0
  }
}`

	mistypedDoc = `{
  "version": "2.0",
  "software": {
    "name": "pleroma",
    "version": "2.5.0"
  },
  "protocols": "activitypub",
  "usage": {
    "users": {"total": 1},
    "localPosts": 3,
    "localComments": 0
  }
}`
)

type httpMock func(req *http.Request) (*http.Response, error)

func (m httpMock) Do(req *http.Request) (*http.Response, error) {
	return m(req)
}
