/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mocks

import (
	"net/http"
	"net/url"
)

// SignatureVerifier is a mock HTTP signature verifier.
type SignatureVerifier struct {
	actorIRI *url.URL
	err      error
}

// NewSignatureVerifier returns a mock signature verifier which returns the
// given actor IRI for every request.
func NewSignatureVerifier(actorIRI *url.URL) *SignatureVerifier {
	return &SignatureVerifier{actorIRI: actorIRI}
}

// WithError sets the error to be returned by VerifyRequest.
func (m *SignatureVerifier) WithError(err error) *SignatureVerifier {
	m.err = err

	return m
}

// VerifyRequest returns the actor IRI with which this verifier was created,
// or the injected error.
func (m *SignatureVerifier) VerifyRequest(_ *http.Request) (*url.URL, error) {
	if m.err != nil {
		return nil, m.err
	}

	return m.actorIRI, nil
}
