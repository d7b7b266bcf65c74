/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package httpsig signs and verifies HTTP requests for ActivityPub federation.
// Two signature suites are supported: the legacy draft-cavage-http-signatures-12
// suite that most fediverse software speaks today, and the RFC 9421 HTTP message
// signatures suite that is replacing it.
package httpsig

import (
	"fmt"
	"strings"
	"time"

	"github.com/trustbloc/logutil-go/pkg/log"
)

var logger = log.New("httpsig")

// Spec identifies an HTTP signature suite.
type Spec string

const (
	// SpecCavage is the draft-cavage-http-signatures-12 suite (Signature header).
	SpecCavage Spec = "draft-cavage"

	// SpecRFC9421 is the RFC 9421 HTTP message signatures suite
	// (Signature-Input and Signature headers).
	SpecRFC9421 Spec = "rfc9421"
)

// Other returns the alternative suite, which is used for the second knock
// when a request signed under this suite is rejected.
func (s Spec) Other() Spec {
	if s == SpecCavage {
		return SpecRFC9421
	}

	return SpecCavage
}

// ParseSpec parses a signature suite identifier.
func ParseSpec(value string) (Spec, error) {
	switch Spec(value) {
	case SpecCavage:
		return SpecCavage, nil
	case SpecRFC9421:
		return SpecRFC9421, nil
	default:
		return "", fmt.Errorf("unsupported signature spec [%s]", value)
	}
}

const (
	dateHeader           = "Date"
	hostHeader           = "Host"
	digestHeader         = "Digest"
	contentDigestHeader  = "Content-Digest"
	contentTypeHeader    = "Content-Type"
	signatureHeader      = "Signature"
	signatureInputHeader = "Signature-Input"
)

const (
	algRSASha256    = "rsa-sha256"
	algHS2019       = "hs2019"
	algEd25519      = "ed25519"
	algRSAV15Sha256 = "rsa-v1_5-sha256"
)

const (
	defaultExpiration = 60 * time.Second
	defaultTimeWindow = time.Hour

	// RSA keys below this size are rejected by the verifier.
	minRSAKeyBits = 2048
)

func containsFold(values []string, value string) bool {
	for _, v := range values {
		if strings.EqualFold(v, value) {
			return true
		}
	}

	return false
}
