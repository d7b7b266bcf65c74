/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package doubleknock sends signed requests to federated peers whose HTTP
// signature suite is not known in advance. A request is first signed under
// the suite remembered for the target origin (or a configured first-knock
// suite) and, if the peer rejects it, signed and sent once more under the
// other suite. The suite that the peer accepts is remembered for the origin.
package doubleknock

import (
	"bytes"
	"crypto"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/meridianfed/meridian/internal/pkg/log"
	"github.com/meridianfed/meridian/pkg/httpsig"
	"github.com/meridianfed/meridian/pkg/store/spi"
	"github.com/meridianfed/meridian/pkg/vocab"
)

var logger = log.New("httpsig_doubleknock")

// Signer signs an HTTP request under one signature suite.
type Signer interface {
	SignRequest(pKey crypto.PrivateKey, pubKeyID string, req *http.Request, body []byte) error
}

// SpecDeterminer remembers which HTTP signature suite a remote origin accepts.
type SpecDeterminer interface {
	// GetSpec returns the suite remembered for the given origin, or an empty
	// spec if none has been remembered.
	GetSpec(origin string) (httpsig.Spec, error)

	// RememberSpec remembers the suite accepted by the given origin.
	RememberSpec(origin string, spec httpsig.Spec) error
}

type httpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type signers struct {
	get  Signer
	post Signer
}

// Transport sends signed HTTP requests, negotiating the signature suite of
// each target origin by double-knocking.
type Transport struct {
	client      httpClient
	privateKey  crypto.PrivateKey
	publicKeyID *url.URL
	determiner  SpecDeterminer
	firstKnock  httpsig.Spec
	signers     map[httpsig.Spec]signers
}

// Option sets an option on the transport.
type Option func(*Transport)

// WithFirstKnock sets the suite used for the first request to an origin whose
// suite is not yet known.
func WithFirstKnock(spec httpsig.Spec) Option {
	return func(t *Transport) {
		t.firstKnock = spec
	}
}

// WithSpecDeterminer sets the determiner used to remember the suite accepted
// by each origin.
func WithSpecDeterminer(d SpecDeterminer) Option {
	return func(t *Transport) {
		t.determiner = d
	}
}

// WithSigners overrides the signers used for the given suite.
func WithSigners(spec httpsig.Spec, get, post Signer) Option {
	return func(t *Transport) {
		t.signers[spec] = signers{get: get, post: post}
	}
}

// New returns a new double-knocking transport that signs requests with the
// given private key.
func New(client httpClient, privateKey crypto.PrivateKey, publicKeyID *url.URL, opts ...Option) *Transport {
	t := &Transport{
		client:      client,
		privateKey:  privateKey,
		publicKeyID: publicKeyID,
		determiner:  NewMemDeterminer(),
		firstKnock:  httpsig.SpecRFC9421,
		signers: map[httpsig.Spec]signers{
			httpsig.SpecCavage: {
				get:  httpsig.NewSigner(httpsig.DefaultGetSignerConfig()),
				post: httpsig.NewSigner(httpsig.DefaultPostSignerConfig()),
			},
			httpsig.SpecRFC9421: {
				get:  httpsig.NewRFC9421Signer(httpsig.DefaultGetComponents()),
				post: httpsig.NewRFC9421Signer(httpsig.DefaultPostComponents()),
			},
		},
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Send signs the request under the suite remembered for the target origin and
// sends it. If the peer responds with 400, 401 or 403 then the request is
// signed and sent once more under the other suite. The payload is passed
// separately so that the request can be rebuilt for the second attempt.
func (t *Transport) Send(req *http.Request, payload []byte) (*http.Response, error) {
	origin := vocab.Origin(req.URL)

	spec := t.firstKnock

	remembered, err := t.determiner.GetSpec(origin)
	if err != nil {
		logger.Warn("Error getting the remembered signature spec. Using the first-knock spec.",
			logfields.WithOrigin(origin), log.WithError(err))
	} else if remembered != "" {
		spec = remembered
	}

	resp, err := t.send(req, payload, spec)
	if err != nil {
		return nil, err
	}

	if isSuccess(resp.StatusCode) {
		if spec != remembered {
			t.remember(origin, spec)
		}

		return resp, nil
	}

	if !isKnockRejected(resp.StatusCode) {
		return resp, nil
	}

	other := spec.Other()

	if _, ok := t.signers[other]; !ok {
		return resp, nil
	}

	logger.Debug("Request was rejected. Retrying with the other signature suite.",
		logfields.WithOrigin(origin), logfields.WithHTTPStatus(resp.StatusCode),
		logfields.WithSignatureSpec(string(other)))

	discard(resp)

	resp, err = t.send(req, payload, other)
	if err != nil {
		return nil, err
	}

	if isSuccess(resp.StatusCode) {
		t.remember(origin, other)
	}

	return resp, nil
}

func (t *Transport) send(req *http.Request, payload []byte, spec httpsig.Spec) (*http.Response, error) {
	s, ok := t.signers[spec]
	if !ok {
		return nil, fmt.Errorf("no signers for signature spec [%s]", spec)
	}

	// Each attempt gets a fresh copy of the request so that headers written
	// by one suite don't leak into the other.
	attempt, err := cloneRequest(req, payload)
	if err != nil {
		return nil, err
	}

	signer := s.get
	if attempt.Method == http.MethodPost {
		signer = s.post
	}

	if err := signer.SignRequest(t.privateKey, t.publicKeyID.String(), attempt, payload); err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}

	logger.Debug("Sending signed request", logfields.WithRequestURL(attempt.URL),
		logfields.WithSignatureSpec(string(spec)))

	return t.client.Do(attempt)
}

func (t *Transport) remember(origin string, spec httpsig.Spec) {
	if err := t.determiner.RememberSpec(origin, spec); err != nil {
		logger.Warn("Error remembering the signature spec accepted by the origin",
			logfields.WithOrigin(origin), logfields.WithSignatureSpec(string(spec)), log.WithError(err))
	}
}

func cloneRequest(req *http.Request, payload []byte) (*http.Request, error) {
	var body io.Reader
	if len(payload) > 0 {
		body = bytes.NewReader(payload)
	}

	clone, err := http.NewRequestWithContext(req.Context(), req.Method, req.URL.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request to %s: %w", req.URL, err)
	}

	clone.Header = req.Header.Clone()

	return clone, nil
}

func isSuccess(status int) bool {
	return status >= http.StatusOK && status < http.StatusMultipleChoices
}

// isKnockRejected returns true if the response status indicates that the peer
// may not have understood the signature suite.
func isKnockRejected(status int) bool {
	return status == http.StatusBadRequest || status == http.StatusUnauthorized || status == http.StatusForbidden
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

// MemDeterminer is an in-memory SpecDeterminer.
type MemDeterminer struct {
	mutex sync.RWMutex
	specs map[string]httpsig.Spec
}

// NewMemDeterminer returns a new in-memory SpecDeterminer.
func NewMemDeterminer() *MemDeterminer {
	return &MemDeterminer{
		specs: make(map[string]httpsig.Spec),
	}
}

// GetSpec returns the suite remembered for the given origin.
func (d *MemDeterminer) GetSpec(origin string) (httpsig.Spec, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	return d.specs[origin], nil
}

// RememberSpec remembers the suite accepted by the given origin.
func (d *MemDeterminer) RememberSpec(origin string, spec httpsig.Spec) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.specs[origin] = spec

	return nil
}

// StoreDeterminer is a SpecDeterminer backed by the key-value store, so that
// the suite accepted by an origin survives a restart.
type StoreDeterminer struct {
	store  spi.Store
	prefix spi.Key
}

// NewStoreDeterminer returns a SpecDeterminer backed by the given store.
func NewStoreDeterminer(store spi.Store, prefix spi.Key) *StoreDeterminer {
	return &StoreDeterminer{
		store:  store,
		prefix: prefix,
	}
}

// GetSpec returns the suite remembered for the given origin.
func (d *StoreDeterminer) GetSpec(origin string) (httpsig.Spec, error) {
	value, err := d.store.Get(spi.ForSignatureSpec(d.prefix, origin))
	if err != nil {
		if errors.Is(err, spi.ErrDataNotFound) {
			return "", nil
		}

		return "", fmt.Errorf("get signature spec for origin [%s]: %w", origin, err)
	}

	spec, err := httpsig.ParseSpec(string(value))
	if err != nil {
		logger.Warn("Ignoring unsupported signature spec in store", logfields.WithOrigin(origin), log.WithError(err))

		return "", nil
	}

	return spec, nil
}

// RememberSpec remembers the suite accepted by the given origin.
func (d *StoreDeterminer) RememberSpec(origin string, spec httpsig.Spec) error {
	if err := d.store.Set(spi.ForSignatureSpec(d.prefix, origin), []byte(spec)); err != nil {
		return fmt.Errorf("store signature spec for origin [%s]: %w", origin, err)
	}

	return nil
}
