/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package httpsig

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	logfields "github.com/meridianfed/meridian/internal/pkg/log"
)

const (
	componentMethod          = "@method"
	componentTargetURI       = "@target-uri"
	componentAuthority       = "@authority"
	componentSignatureParams = "@signature-params"

	defaultSignatureLabel = "sig1"
)

// DefaultGetComponents returns the default covered components for signing
// HTTP GET requests under RFC 9421.
func DefaultGetComponents() []string {
	return []string{componentMethod, componentTargetURI, componentAuthority, "date", "accept"}
}

// DefaultPostComponents returns the default covered components for signing
// HTTP POST requests under RFC 9421.
func DefaultPostComponents() []string {
	return []string{componentMethod, componentTargetURI, componentAuthority, "date", "content-digest", "content-type"}
}

// RFC9421Signer signs HTTP requests under the RFC 9421 HTTP message
// signatures suite. The signature algorithm is chosen according to the type
// of the private key.
type RFC9421Signer struct {
	components []string
	label      string
}

// NewRFC9421Signer returns a new RFC 9421 signer covering the given components.
func NewRFC9421Signer(components []string) *RFC9421Signer {
	return &RFC9421Signer{
		components: components,
		label:      defaultSignatureLabel,
	}
}

// SignRequest signs the given request, adding Signature-Input and Signature
// headers. The Date header (and, for requests with a body, the Content-Digest
// header) is populated if not already set.
func (s *RFC9421Signer) SignRequest(pKey crypto.PrivateKey, pubKeyID string, req *http.Request, body []byte) error {
	alg, err := rfc9421AlgorithmForKey(pKey)
	if err != nil {
		return err
	}

	if req.Header.Get(dateHeader) == "" {
		req.Header.Set(dateHeader, date())
	}

	if len(body) > 0 && req.Header.Get(contentDigestHeader) == "" {
		req.Header.Set(contentDigestHeader, contentDigest(body))
	}

	components := s.componentsForRequest(req)

	params := serializeSignatureParams(components, time.Now().Unix(), pubKeyID, alg)

	base, err := signatureBase(req, components, params)
	if err != nil {
		return err
	}

	signature, err := signBase(pKey, []byte(base))
	if err != nil {
		return err
	}

	req.Header.Set(signatureInputHeader, fmt.Sprintf("%s=%s", s.label, params))
	req.Header.Set(signatureHeader, fmt.Sprintf("%s=:%s:", s.label, base64.StdEncoding.EncodeToString(signature)))

	logger.Debug("Signed request", logfields.WithRequestURL(req.URL), logfields.WithKeyID(pubKeyID))

	return nil
}

// componentsForRequest filters the configured components down to the derived
// components plus the headers that are present on the request.
func (s *RFC9421Signer) componentsForRequest(req *http.Request) []string {
	components := make([]string, 0, len(s.components))

	for _, c := range s.components {
		switch {
		case strings.HasPrefix(c, "@"):
			components = append(components, c)
		case req.Header.Get(c) != "":
			components = append(components, c)
		}
	}

	return components
}

func serializeSignatureParams(components []string, created int64, keyID, alg string) string {
	quoted := make([]string, len(components))

	for i, c := range components {
		quoted[i] = strconv.Quote(strings.ToLower(c))
	}

	return fmt.Sprintf("(%s);created=%d;keyid=%q;alg=%q", strings.Join(quoted, " "), created, keyID, alg)
}

// signatureBase builds the string that is signed: one line per covered
// component followed by the signature parameters line.
func signatureBase(req *http.Request, components []string, params string) (string, error) {
	var b strings.Builder

	seen := make(map[string]struct{})

	for _, c := range components {
		name := strings.ToLower(c)

		if _, ok := seen[name]; ok {
			return "", fmt.Errorf("duplicate covered component %q", name)
		}

		seen[name] = struct{}{}

		value, err := componentValue(req, name)
		if err != nil {
			return "", err
		}

		fmt.Fprintf(&b, "%q: %s\n", name, value)
	}

	fmt.Fprintf(&b, "%q: %s", componentSignatureParams, params)

	return b.String(), nil
}

func componentValue(req *http.Request, name string) (string, error) {
	switch {
	case name == componentMethod:
		return strings.ToUpper(req.Method), nil
	case name == componentTargetURI:
		return targetURI(req), nil
	case name == componentAuthority:
		return authority(req), nil
	case strings.HasPrefix(name, "@"):
		return "", fmt.Errorf("unsupported derived component %q", name)
	case strings.EqualFold(name, hostHeader):
		if value := req.Header.Get(hostHeader); value != "" {
			return value, nil
		}

		return req.Host, nil
	default:
		values := req.Header.Values(name)
		if len(values) == 0 {
			return "", fmt.Errorf("covered header %q is not present in the request", name)
		}

		trimmed := make([]string, len(values))

		for i, v := range values {
			trimmed[i] = strings.TrimSpace(v)
		}

		return strings.Join(trimmed, ", "), nil
	}
}

// targetURI returns the full target URI of the request. For server-side
// requests the URL is relative, so the URI is reconstructed from the request
// attributes.
func targetURI(req *http.Request) string {
	if req.URL != nil && req.URL.IsAbs() {
		return req.URL.String()
	}

	scheme := "http"

	switch {
	case req.TLS != nil:
		scheme = "https"
	case req.Header.Get("X-Forwarded-Proto") != "":
		scheme = req.Header.Get("X-Forwarded-Proto")
	}

	return fmt.Sprintf("%s://%s%s", scheme, authority(req), req.URL.RequestURI())
}

func authority(req *http.Request) string {
	if req.Host != "" {
		return req.Host
	}

	if req.URL != nil {
		return req.URL.Host
	}

	return ""
}

func rfc9421AlgorithmForKey(pKey crypto.PrivateKey) (string, error) {
	switch pKey.(type) {
	case ed25519.PrivateKey:
		return algEd25519, nil
	case *rsa.PrivateKey:
		return algRSAV15Sha256, nil
	default:
		return "", fmt.Errorf("unsupported private key type [%T]", pKey)
	}
}

func signBase(pKey crypto.PrivateKey, base []byte) ([]byte, error) {
	switch key := pKey.(type) {
	case ed25519.PrivateKey:
		return ed25519.Sign(key, base), nil
	case *rsa.PrivateKey:
		hashed := sha256.Sum256(base)

		return rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, hashed[:])
	default:
		return nil, fmt.Errorf("unsupported private key type [%T]", pKey)
	}
}

// signatureInput is one parsed member of a Signature-Input header.
type signatureInput struct {
	label      string
	components []string
	created    int64
	expires    int64
	keyID      string
	alg        string

	// params holds the raw signature parameters exactly as they appeared in
	// the header, so that the signature base can be reconstructed byte for
	// byte.
	params string
}

func parseSignatureInputs(value string) ([]signatureInput, error) {
	if value == "" {
		return nil, errors.New("no Signature-Input header")
	}

	var inputs []signatureInput

	for _, member := range splitOutsideQuotes(value, ',') {
		if member == "" {
			continue
		}

		in, err := parseSignatureInput(member)
		if err != nil {
			return nil, err
		}

		inputs = append(inputs, in)
	}

	if len(inputs) == 0 {
		return nil, errors.New("no signatures in Signature-Input header")
	}

	return inputs, nil
}

func parseSignatureInput(member string) (signatureInput, error) {
	label, rest, ok := strings.Cut(member, "=")
	if !ok || !strings.HasPrefix(rest, "(") {
		return signatureInput{}, fmt.Errorf("invalid Signature-Input member [%s]", member)
	}

	in := signatureInput{
		label:  strings.TrimSpace(label),
		params: rest,
	}

	end := closingParen(rest)
	if end < 0 {
		return signatureInput{}, fmt.Errorf("unterminated component list in Signature-Input member [%s]", member)
	}

	for _, c := range strings.Fields(rest[1:end]) {
		component, err := strconv.Unquote(c)
		if err != nil {
			return signatureInput{}, fmt.Errorf("invalid covered component [%s]: %w", c, err)
		}

		in.components = append(in.components, component)
	}

	for _, param := range splitOutsideQuotes(rest[end+1:], ';') {
		if param == "" {
			continue
		}

		if err := in.setParam(param); err != nil {
			return signatureInput{}, err
		}
	}

	return in, nil
}

func (in *signatureInput) setParam(param string) error {
	name, value, _ := strings.Cut(param, "=")

	var err error

	switch strings.TrimSpace(name) {
	case "created":
		in.created, err = strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid created parameter [%s]", value)
		}
	case "expires":
		in.expires, err = strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid expires parameter [%s]", value)
		}
	case "keyid":
		in.keyID, err = strconv.Unquote(value)
		if err != nil {
			return fmt.Errorf("invalid keyid parameter [%s]", value)
		}
	case "alg":
		in.alg, err = strconv.Unquote(value)
		if err != nil {
			return fmt.Errorf("invalid alg parameter [%s]", value)
		}
	default:
		// Unrecognized parameters (such as nonce and tag) are covered by the
		// signature through the raw parameter string, so they can be ignored
		// here.
	}

	return nil
}

func parseSignatures(value string) (map[string][]byte, error) {
	if value == "" {
		return nil, errors.New("no Signature header")
	}

	signatures := make(map[string][]byte)

	for _, member := range splitOutsideQuotes(value, ',') {
		if member == "" {
			continue
		}

		label, rest, ok := strings.Cut(member, "=")
		if !ok {
			return nil, fmt.Errorf("invalid Signature member [%s]", member)
		}

		rest = strings.TrimSpace(rest)
		if len(rest) < 2 || rest[0] != ':' || rest[len(rest)-1] != ':' {
			return nil, fmt.Errorf("invalid byte sequence in Signature member [%s]", member)
		}

		signature, err := base64.StdEncoding.DecodeString(rest[1 : len(rest)-1])
		if err != nil {
			return nil, fmt.Errorf("invalid signature for label %q: %w", label, err)
		}

		signatures[strings.TrimSpace(label)] = signature
	}

	return signatures, nil
}

// splitOutsideQuotes splits value on the given separator, ignoring separators
// that appear within quoted strings.
func splitOutsideQuotes(value string, sep byte) []string {
	var (
		members []string
		start   int
		quoted  bool
	)

	for i := 0; i < len(value); i++ {
		switch value[i] {
		case '"':
			quoted = !quoted
		case '\\':
			if quoted {
				i++
			}
		case sep:
			if !quoted {
				members = append(members, strings.TrimSpace(value[start:i]))
				start = i + 1
			}
		}
	}

	return append(members, strings.TrimSpace(value[start:]))
}

// closingParen returns the index of the parenthesis that closes the component
// list opened at position 0, ignoring parentheses within quoted strings.
func closingParen(value string) int {
	quoted := false

	for i := 1; i < len(value); i++ {
		switch value[i] {
		case '"':
			quoted = !quoted
		case '\\':
			if quoted {
				i++
			}
		case ')':
			if !quoted {
				return i
			}
		}
	}

	return -1
}
