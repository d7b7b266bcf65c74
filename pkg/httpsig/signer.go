/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package httpsig

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rsa"
	"fmt"
	"net/http"
	"strings"
	"time"

	gofed "github.com/go-fed/httpsig"

	logfields "github.com/meridianfed/meridian/internal/pkg/log"
)

// SignerConfig contains the configuration for signing HTTP requests under the
// draft-cavage suite.
type SignerConfig struct {
	Headers         []string
	DigestAlgorithm gofed.DigestAlgorithm
	Expiration      time.Duration
}

// DefaultGetSignerConfig returns the default configuration for signing HTTP GET requests.
// Header names are lower case since they appear verbatim in the signing string.
func DefaultGetSignerConfig() SignerConfig {
	return SignerConfig{
		Headers: []string{gofed.RequestTarget, "host", "date", "accept"},
	}
}

// DefaultPostSignerConfig returns the default configuration for signing HTTP POST requests.
func DefaultPostSignerConfig() SignerConfig {
	return SignerConfig{
		Headers:         []string{gofed.RequestTarget, "host", "date", "digest", "content-type"},
		DigestAlgorithm: gofed.DigestSha256,
	}
}

// Signer signs HTTP requests under the draft-cavage suite. The signature
// algorithm is chosen according to the type of the private key.
type Signer struct {
	SignerConfig
}

// NewSigner returns a new draft-cavage signer with the given configuration.
func NewSigner(cfg SignerConfig) *Signer {
	s := &Signer{
		SignerConfig: cfg,
	}

	if s.Expiration == 0 {
		s.Expiration = defaultExpiration
	}

	return s
}

// SignRequest signs the given request, adding a Signature header. The Date
// header (and, for requests with a body, the Digest header) is populated if
// not already set.
func (s *Signer) SignRequest(pKey crypto.PrivateKey, pubKeyID string, req *http.Request, body []byte) error {
	algorithms, err := algorithmsForKey(pKey)
	if err != nil {
		return err
	}

	// The signature library adds a digest whenever the body is non-nil.
	if len(body) == 0 {
		body = nil
	}

	if req.Header.Get(dateHeader) == "" {
		req.Header.Set(dateHeader, date())
	}

	// The Host header of an outbound request lives on the request struct, not
	// in the header map, so it needs to be set explicitly in order for the
	// signature library to include it in the signature.
	if containsFold(s.Headers, hostHeader) && req.Header.Get(hostHeader) == "" {
		host := req.Host
		if host == "" && req.URL != nil {
			host = req.URL.Host
		}

		req.Header.Set(hostHeader, host)
	}

	digestAlgorithm := s.DigestAlgorithm
	if len(body) == 0 {
		digestAlgorithm = ""
	}

	// The signer is not thread safe, so create a new instance for each request.
	signer, _, err := gofed.NewSigner(algorithms, digestAlgorithm,
		s.headersForRequest(req, len(body) > 0), gofed.Signature, int64(s.Expiration.Seconds()))
	if err != nil {
		return fmt.Errorf("create signer: %w", err)
	}

	if err := signer.SignRequest(pKey, pubKeyID, req, body); err != nil {
		return fmt.Errorf("sign request: %w", err)
	}

	logger.Debug("Signed request", logfields.WithRequestURL(req.URL), logfields.WithKeyID(pubKeyID))

	return nil
}

// headersForRequest filters the configured headers down to the ones that can
// be resolved on the given request, since the signature library fails if a
// header in the list is missing.
func (s *Signer) headersForRequest(req *http.Request, hasBody bool) []string {
	headers := make([]string, 0, len(s.Headers))

	for _, h := range s.Headers {
		switch {
		case h == gofed.RequestTarget:
			headers = append(headers, h)
		case strings.EqualFold(h, digestHeader):
			// The digest is computed and added by the signature library.
			if hasBody {
				headers = append(headers, h)
			}
		case req.Header.Get(h) != "":
			headers = append(headers, h)
		}
	}

	return headers
}

func algorithmsForKey(pKey crypto.PrivateKey) ([]gofed.Algorithm, error) {
	switch pKey.(type) {
	case ed25519.PrivateKey:
		return []gofed.Algorithm{gofed.ED25519}, nil
	case *rsa.PrivateKey:
		return []gofed.Algorithm{gofed.RSA_SHA256}, nil
	default:
		return nil, fmt.Errorf("unsupported private key type [%T]", pKey)
	}
}

func date() string {
	return fmt.Sprintf("%s GMT", time.Now().UTC().Format("Mon, 02 Jan 2006 15:04:05"))
}
