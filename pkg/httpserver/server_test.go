/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package httpserver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridianfed/meridian/pkg/restapi/common"
)

const (
	listenURL = "localhost:8327"
	clientURL = "http://" + listenURL

	samplePath = "/sample"
)

func TestServer_StartStop(t *testing.T) {
	s := New(
		&Config{
			Address:           listenURL,
			IdleTimeout:       time.Second,
			ReadHeaderTimeout: time.Second,
			Fallback:          &mockFallback{prefix: "/users/"},
		},
		&mockHandler{path: samplePath, method: http.MethodGet, response: "sample resource"},
		&mockHandler{path: samplePath, method: http.MethodPost},
		&mockPagedHandler{},
	)

	require.NoError(t, s.Start())
	require.Error(t, s.Start())

	// Wait for the service to start.
	time.Sleep(100 * time.Millisecond)

	t.Run("registered endpoint", func(t *testing.T) {
		status, body := httpGet(t, clientURL+samplePath)
		require.Equal(t, http.StatusOK, status)
		require.Equal(t, "sample resource", body)
	})

	t.Run("endpoint with query params", func(t *testing.T) {
		status, body := httpGet(t, clientURL+samplePath+"/pages?page=3")
		require.Equal(t, http.StatusOK, status)
		require.Equal(t, "page", body)
	})

	t.Run("fallback handles the request", func(t *testing.T) {
		status, body := httpGet(t, clientURL+"/users/alice")
		require.Equal(t, http.StatusOK, status)
		require.Equal(t, "fallback /users/alice", body)
	})

	t.Run("fallback declines the request", func(t *testing.T) {
		status, _ := httpGet(t, clientURL+"/no/such/path")
		require.Equal(t, http.StatusNotFound, status)
	})

	t.Run("stop", func(t *testing.T) {
		require.NoError(t, s.Stop(context.Background()))
		require.Error(t, s.Stop(context.Background()))
	})
}

func TestServer_NoFallback(t *testing.T) {
	const address = "localhost:8328"

	s := New(&Config{Address: address},
		&mockHandler{path: samplePath, method: http.MethodGet, response: "sample resource"},
	)

	require.NoError(t, s.Start())

	defer func() {
		require.NoError(t, s.Stop(context.Background()))
	}()

	// Wait for the service to start.
	time.Sleep(100 * time.Millisecond)

	status, _ := httpGet(t, "http://"+address+"/no/such/path")
	require.Equal(t, http.StatusNotFound, status)
}

func httpGet(t *testing.T, url string) (int, string) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, url, http.NoBody)
	require.NoError(t, err)

	resp, err := invokeWithRetry(
		func() (response *http.Response, e error) {
			return http.DefaultClient.Do(req)
		},
	)
	require.NoError(t, err)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	return resp.StatusCode, string(body)
}

func invokeWithRetry(invoke func() (*http.Response, error)) (*http.Response, error) {
	remainingAttempts := 20

	for {
		resp, err := invoke()
		if err == nil {
			return resp, nil
		}

		remainingAttempts--
		if remainingAttempts == 0 {
			return nil, err
		}

		time.Sleep(100 * time.Millisecond)
	}
}

type mockHandler struct {
	path     string
	method   string
	response string
}

func (h *mockHandler) Path() string {
	return h.path
}

func (h *mockHandler) Method() string {
	return h.method
}

func (h *mockHandler) Handler() common.HTTPRequestHandler {
	return func(w http.ResponseWriter, _ *http.Request) {
		if _, err := w.Write([]byte(h.response)); err != nil {
			panic(err)
		}
	}
}

type mockPagedHandler struct{}

func (h *mockPagedHandler) Path() string {
	return samplePath + "/pages"
}

func (h *mockPagedHandler) Method() string {
	return http.MethodGet
}

func (h *mockPagedHandler) Params() map[string]string {
	return map[string]string{"page": "{page}"}
}

func (h *mockPagedHandler) Handler() common.HTTPRequestHandler {
	return func(w http.ResponseWriter, _ *http.Request) {
		if _, err := w.Write([]byte("page")); err != nil {
			panic(err)
		}
	}
}

type mockFallback struct {
	prefix string
}

func (m *mockFallback) Handle(w http.ResponseWriter, req *http.Request) bool {
	if !strings.HasPrefix(req.URL.Path, m.prefix) {
		return false
	}

	if _, err := fmt.Fprintf(w, "fallback %s", req.URL.Path); err != nil {
		panic(err)
	}

	return true
}
