/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package httpsig

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/igor-pavlenko/httpsignatures-go"
	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/meridianfed/meridian/internal/pkg/log"
	merrors "github.com/meridianfed/meridian/pkg/errors"
	"github.com/meridianfed/meridian/pkg/vocab"
)

type actorRetriever interface {
	publicKeyRetriever

	GetActor(actorIRI *url.URL) (*vocab.ActorType, error)
}

// VerifierConfig contains the configuration for verifying HTTP signatures.
type VerifierConfig struct {
	// TimeWindow is the maximum allowed age (and clock skew) of a signature.
	// A zero value disables the check.
	TimeWindow time.Duration
}

// DefaultVerifierConfig returns the default verifier configuration.
func DefaultVerifierConfig() VerifierConfig {
	return VerifierConfig{
		TimeWindow: defaultTimeWindow,
	}
}

// Verifier verifies the HTTP signature on inbound requests. Both the
// draft-cavage and the RFC 9421 suites are accepted, so that peers may speak
// either one.
type Verifier struct {
	VerifierConfig

	actorRetriever actorRetriever
	keyResolver    *KeyResolver
	verifier       func() cavageVerifier
}

type cavageVerifier interface {
	Verify(r *http.Request) error
}

// NewVerifier returns a new verifier that resolves actors and public keys
// with the given retriever.
func NewVerifier(cfg VerifierConfig, retriever actorRetriever) *Verifier {
	resolver := NewKeyResolver(retriever)

	return &Verifier{
		VerifierConfig: cfg,
		actorRetriever: retriever,
		keyResolver:    resolver,
		verifier: func() cavageVerifier {
			// The verifier is not thread safe, so create a new instance for
			// each request.
			hs := httpsignatures.NewHTTPSignatures(&secretRetriever{})
			hs.SetSignatureHashAlgorithm(&signatureHashAlgorithm{resolver: resolver})

			return hs
		},
	}
}

// VerifyRequest verifies the signature on the given request and returns the
// IRI of the actor that signed it. The key ID in the signature must match the
// public key published by the signing actor.
func (v *Verifier) VerifyRequest(req *http.Request) (*url.URL, error) {
	body, err := readBody(req)
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}

	var keyID string

	switch {
	case req.Header.Get(signatureInputHeader) != "":
		keyID, err = v.verifyRFC9421(req, body)
	case req.Header.Get(signatureHeader) != "":
		keyID, err = v.verifyCavage(req, body)
	default:
		return nil, merrors.Newf(merrors.KindSignature, "request is not signed")
	}

	if err != nil {
		return nil, err
	}

	return v.verifyActorBinding(keyID)
}

func (v *Verifier) verifyCavage(req *http.Request, body []byte) (string, error) {
	params, err := parseCavageSignatureParams(req)
	if err != nil {
		return "", merrors.New(merrors.KindSignature, err)
	}

	keyID := params["keyId"]
	if keyID == "" {
		return "", merrors.Newf(merrors.KindSignature, "no keyId in Signature header")
	}

	// On the server side the Host header is promoted out of the header map,
	// so it needs to be restored for the signature library to find it.
	if req.Header.Get(hostHeader) == "" && req.Host != "" {
		req.Header.Set(hostHeader, req.Host)
	}

	if err := v.checkTimeWindow(params["created"], req.Header.Get(dateHeader)); err != nil {
		return "", err
	}

	if err := v.checkDigest(req, strings.Fields(params["headers"]), body); err != nil {
		return "", err
	}

	// The signature library reads the body when verifying the digest, so
	// restore it before and after the call.
	req.Body = io.NopCloser(bytes.NewReader(body))

	err = v.verifier().Verify(req)

	req.Body = io.NopCloser(bytes.NewReader(body))

	if err != nil {
		return "", v.wrapVerifyError(req, err)
	}

	return keyID, nil
}

func (v *Verifier) verifyRFC9421(req *http.Request, body []byte) (string, error) {
	inputs, err := parseSignatureInputs(req.Header.Get(signatureInputHeader))
	if err != nil {
		return "", merrors.New(merrors.KindSignature, err)
	}

	signatures, err := parseSignatures(req.Header.Get(signatureHeader))
	if err != nil {
		return "", merrors.New(merrors.KindSignature, err)
	}

	var lastErr error

	// A request may carry multiple signatures. It is accepted if any one of
	// them verifies.
	for _, in := range inputs {
		signature, ok := signatures[in.label]
		if !ok {
			lastErr = merrors.Newf(merrors.KindSignature, "no signature for label %q", in.label)

			continue
		}

		keyID, err := v.verifySignatureInput(req, in, signature, body)
		if err != nil {
			if merrors.IsTransient(err) {
				return "", err
			}

			lastErr = err

			continue
		}

		return keyID, nil
	}

	return "", lastErr
}

func (v *Verifier) verifySignatureInput(req *http.Request, in signatureInput, signature, body []byte) (string, error) {
	if in.keyID == "" {
		return "", merrors.Newf(merrors.KindSignature, "no keyid parameter for label %q", in.label)
	}

	if in.alg != "" && !containsFold([]string{algEd25519, algRSAV15Sha256, algHS2019}, in.alg) {
		return "", merrors.Newf(merrors.KindSignature, "unsupported algorithm %q", in.alg)
	}

	if in.expires > 0 && time.Now().Unix() > in.expires {
		return "", merrors.Newf(merrors.KindSignature, "signature for label %q has expired", in.label)
	}

	var created string
	if in.created > 0 {
		created = strconv.FormatInt(in.created, 10)
	}

	if err := v.checkTimeWindow(created, req.Header.Get(dateHeader)); err != nil {
		return "", err
	}

	if err := v.checkDigest(req, in.components, body); err != nil {
		return "", err
	}

	base, err := signatureBase(req, in.components, in.params)
	if err != nil {
		return "", merrors.New(merrors.KindSignature, err)
	}

	pubKey, err := v.keyResolver.Resolve(in.keyID)
	if err != nil {
		return "", fmt.Errorf("resolve key for label %q: %w", in.label, err)
	}

	// The signature is verified under the key published by the actor. The
	// algorithm claimed in the header does not direct the dispatch, so an
	// attacker cannot downgrade it.
	if err := verifySignature(pubKey, []byte(base), signature); err != nil {
		return "", merrors.New(merrors.KindSignature, err)
	}

	return in.keyID, nil
}

// checkTimeWindow checks that the signature was created within the allowed
// time window, preferring the created parameter over the Date header.
func (v *Verifier) checkTimeWindow(created, date string) error {
	if v.TimeWindow == 0 {
		return nil
	}

	var signedAt time.Time

	switch {
	case created != "":
		value, err := strconv.ParseInt(created, 10, 64)
		if err != nil {
			return merrors.Newf(merrors.KindSignature, "invalid created parameter [%s]", created)
		}

		signedAt = time.Unix(value, 0)
	case date != "":
		value, err := http.ParseTime(date)
		if err != nil {
			return merrors.Newf(merrors.KindSignature, "invalid Date header [%s]", date)
		}

		signedAt = value
	default:
		return merrors.Newf(merrors.KindSignature, "request has no Date header or created parameter")
	}

	if diff := time.Since(signedAt); diff > v.TimeWindow || diff < -v.TimeWindow {
		return merrors.Newf(merrors.KindSignature, "signature created at %s is outside the allowed time window",
			signedAt.UTC().Format(time.RFC3339))
	}

	return nil
}

// checkDigest checks that, for a request with a body, a digest header is
// present, covered by the signature, and matches the body.
func (v *Verifier) checkDigest(req *http.Request, covered []string, body []byte) error {
	var (
		header string
		verify func(digest string, body []byte) error
	)

	if req.Header.Get(signatureInputHeader) != "" {
		header = contentDigestHeader
		verify = verifyContentDigest
	} else {
		header = digestHeader
		verify = verifyDigest
	}

	digest := req.Header.Get(header)

	if len(body) == 0 && digest == "" {
		return nil
	}

	if digest == "" {
		return merrors.Newf(merrors.KindSignature, "request has a body but no %s header", header)
	}

	if len(body) > 0 && !containsFold(covered, header) {
		return merrors.Newf(merrors.KindSignature, "%s header is not covered by the signature", header)
	}

	if err := verify(digest, body); err != nil {
		return merrors.New(merrors.KindSignature, err)
	}

	return nil
}

// verifyActorBinding retrieves the actor that owns the given key and checks
// that the actor's published key ID matches the key ID in the request.
func (v *Verifier) verifyActorBinding(keyID string) (*url.URL, error) {
	keyIRI, err := url.Parse(keyID)
	if err != nil {
		return nil, merrors.Newf(merrors.KindSignature, "parse key IRI [%s]", keyID)
	}

	publicKey, err := v.actorRetriever.GetPublicKey(keyIRI)
	if err != nil {
		return nil, fmt.Errorf("retrieve public key for ID [%s]: %w", keyID, err)
	}

	ownerIRI, err := url.Parse(publicKey.Owner)
	if err != nil {
		return nil, merrors.Newf(merrors.KindSignature, "parse key owner [%s]", publicKey.Owner)
	}

	logger.Debug("Retrieving actor for public key owner", logfields.WithKeyOwnerIRI(ownerIRI))

	actor, err := v.actorRetriever.GetActor(ownerIRI)
	if err != nil {
		return nil, fmt.Errorf("retrieve actor [%s]: %w", ownerIRI, err)
	}

	if actor.GetPublicKey() == nil {
		return nil, merrors.Newf(merrors.KindSignature, "owner has nil key")
	}

	// The public key of the actor must match the key ID in the request.
	// Otherwise the request could be an attempt to impersonate the actor.
	if actor.GetPublicKey().ID != keyID {
		return nil, merrors.Newf(merrors.KindSignature, "public key of actor does not match the public key ID in the request")
	}

	return actor.ID().URL(), nil
}

// wrapVerifyError classifies an error from the signature library. The library
// does not wrap errors, so a transient key retrieval failure is detected by
// its message and re-wrapped so that the caller may retry the request.
func (v *Verifier) wrapVerifyError(req *http.Request, err error) error {
	if merrors.IsTransient(err) {
		logger.Error("Error in signature verification", logfields.WithRequestURL(req.URL), log.WithError(err))

		return err
	}

	if strings.Contains(err.Error(), "transient http error:") {
		logger.Error("Error in signature verification", logfields.WithRequestURL(req.URL), log.WithError(err))

		return merrors.NewTransient(err)
	}

	logger.Info("Signature verification failed", logfields.WithRequestURL(req.URL), log.WithError(err))

	return merrors.New(merrors.KindSignature, err)
}

// parseCavageSignatureParams parses the parameters in the Signature header of
// the given request.
func parseCavageSignatureParams(req *http.Request) (map[string]string, error) {
	params := make(map[string]string)

	for _, value := range req.Header.Values(signatureHeader) {
		for _, param := range splitOutsideQuotes(value, ',') {
			name, v, ok := strings.Cut(param, "=")
			if !ok {
				continue
			}

			params[strings.TrimSpace(name)] = strings.Trim(v, `"`)
		}
	}

	if len(params) == 0 {
		return nil, fmt.Errorf("no parameters in Signature header")
	}

	return params, nil
}

func readBody(req *http.Request) ([]byte, error) {
	if req.Body == nil {
		return nil, nil
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}

	req.Body = io.NopCloser(bytes.NewReader(body))

	return body, nil
}
