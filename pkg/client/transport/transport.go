/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package transport Gets and Posts ActivityPub documents using signed HTTP
// requests. Signing is delegated to a sender (usually a double-knocking
// transport) which negotiates the signature suite of each target origin.
package transport

import (
	"context"
	"crypto"
	"fmt"
	"net/http"
	"net/url"

	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/meridianfed/meridian/internal/pkg/log"
	"github.com/meridianfed/meridian/pkg/httpsig"
	"github.com/meridianfed/meridian/pkg/httpsig/doubleknock"
)

var logger = log.New("client_transport")

const (
	// AcceptHeader is the name of the Accept header.
	AcceptHeader = "Accept"
	// ContentTypeHeader is the name of the Content-Type header.
	ContentTypeHeader = "Content-Type"
	// ActivityStreamsContentType is the content type of an ActivityStreams document.
	ActivityStreamsContentType = `application/ld+json; profile="https://www.w3.org/ns/activitystreams"`
	// ActivityJSONContentType is the plain ActivityPub content type.
	ActivityJSONContentType = "application/activity+json"
)

// Sender signs an HTTP request and sends it, negotiating the signature suite
// accepted by the target origin. The payload is passed separately so that the
// request may be rebuilt if it needs to be signed more than once.
type Sender interface {
	Send(req *http.Request, payload []byte) (*http.Response, error)
}

// Transport implements a client-side transport that Gets and Posts requests
// using HTTP signatures.
type Transport struct {
	sender Sender
}

// New returns a new transport over the given sender.
func New(sender Sender) *Transport {
	return &Transport{sender: sender}
}

// Request contains the destination URL and headers.
type Request struct {
	URL    *url.URL
	Header http.Header
}

// RequestOpt sets an option on a request.
type RequestOpt func(r *Request)

// WithHeader sets a header on the request.
func WithHeader(name string, values ...string) RequestOpt {
	return func(r *Request) {
		r.Header[name] = values
	}
}

// NewRequest returns a new request.
func NewRequest(toURL *url.URL, opts ...RequestOpt) *Request {
	r := &Request{
		URL:    toURL,
		Header: make(http.Header),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Default returns a transport that uses the default HTTP client and no HTTP
// signatures. This transport should only be used by tests.
func Default() *Transport {
	return New(doubleknock.New(http.DefaultClient, nil, &url.URL{},
		doubleknock.WithSigners(httpsig.SpecCavage, DefaultSigner(), DefaultSigner()),
		doubleknock.WithSigners(httpsig.SpecRFC9421, DefaultSigner(), DefaultSigner()),
	))
}

// Post sends an HTTP POST. The request is signed and the signature is added to
// the request header before it is sent.
func (t *Transport) Post(ctx context.Context, r *Request, payload []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("new request to %s: %w", r.URL, err)
	}

	req.Header = r.Header

	if req.Header.Get(ContentTypeHeader) == "" {
		req.Header.Set(ContentTypeHeader, ActivityStreamsContentType)
	}

	logger.Debug("Posting signed request", logfields.WithRequestURL(r.URL),
		logfields.WithRequestHeaders(req.Header))

	return t.sender.Send(req, payload)
}

// Get sends an HTTP GET. The request is signed and the signature is added to
// the request header before it is sent.
func (t *Transport) Get(ctx context.Context, r *Request) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("get from %s: %w", r.URL, err)
	}

	req.Header = r.Header

	if req.Header.Get(AcceptHeader) == "" {
		req.Header.Set(AcceptHeader, ActivityStreamsContentType)
	}

	logger.Debug("Getting with signed request", logfields.WithRequestURL(r.URL),
		logfields.WithRequestHeaders(req.Header))

	return t.sender.Send(req, nil)
}

// NoOpSigner is a signer that does nothing. This signer should only be used by tests.
type NoOpSigner struct{}

// DefaultSigner returns a default, no-op signer. This signer should only be used by tests.
func DefaultSigner() *NoOpSigner {
	return &NoOpSigner{}
}

// SignRequest does nothing.
func (s *NoOpSigner) SignRequest(crypto.PrivateKey, string, *http.Request, []byte) error {
	return nil
}
