/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package httpsig

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/url"

	"github.com/igor-pavlenko/httpsignatures-go"

	"github.com/meridianfed/meridian/pkg/vocab"
)

const meridianHTTPSigAlgorithm = "https://github.com/meridianfed/meridian/httpsig"

// ErrInvalidSignature indicates that the signature over the request does not
// verify under the resolved public key.
var ErrInvalidSignature = errors.New("invalid signature")

type publicKeyRetriever interface {
	GetPublicKey(keyIRI *url.URL) (*vocab.PublicKeyType, error)
}

// KeyResolver resolves the crypto public key for the key ID in a request's
// signature, using an actor public key retriever.
type KeyResolver struct {
	retriever publicKeyRetriever
}

// NewKeyResolver returns a new key resolver.
func NewKeyResolver(retriever publicKeyRetriever) *KeyResolver {
	return &KeyResolver{
		retriever: retriever,
	}
}

// Resolve returns the crypto public key for the given key ID.
func (r *KeyResolver) Resolve(keyID string) (crypto.PublicKey, error) {
	keyIRI, err := url.Parse(keyID)
	if err != nil {
		return nil, fmt.Errorf("parse key IRI [%s]: %w", keyID, err)
	}

	publicKey, err := r.retriever.GetPublicKey(keyIRI)
	if err != nil {
		return nil, fmt.Errorf("retrieve public key for ID [%s]: %w", keyID, err)
	}

	pubKey, err := ParsePublicKeyPEM([]byte(publicKey.PublicKeyPem))
	if err != nil {
		return nil, fmt.Errorf("invalid public key for ID [%s]: %w", keyID, err)
	}

	return pubKey, nil
}

// ParsePublicKeyPEM parses a PEM-encoded public key and returns the crypto
// public key. Only Ed25519 keys and RSA keys of at least 2048 bits are accepted.
func ParsePublicKeyPEM(keyPem []byte) (crypto.PublicKey, error) {
	block, _ := pem.Decode(keyPem)
	if block == nil {
		return nil, errors.New("invalid PEM")
	}

	var (
		pubKey interface{}
		err    error
	)

	if block.Type == "RSA PUBLIC KEY" {
		pubKey, err = x509.ParsePKCS1PublicKey(block.Bytes)
	} else {
		pubKey, err = x509.ParsePKIXPublicKey(block.Bytes)
	}

	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}

	switch key := pubKey.(type) {
	case ed25519.PublicKey:
		return key, nil
	case *rsa.PublicKey:
		if bits := key.N.BitLen(); bits < minRSAKeyBits {
			return nil, fmt.Errorf("RSA key is %d bits, minimum is %d", bits, minRSAKeyBits)
		}

		return key, nil
	default:
		return nil, fmt.Errorf("unsupported public key type [%T]", pubKey)
	}
}

// verifySignature verifies the signature over data, dispatching on the type of
// the resolved key rather than on the algorithm claimed by the request.
func verifySignature(pubKey crypto.PublicKey, data, signature []byte) error {
	switch key := pubKey.(type) {
	case ed25519.PublicKey:
		if !ed25519.Verify(key, data, signature) {
			return ErrInvalidSignature
		}

		return nil
	case *rsa.PublicKey:
		hashed := sha256.Sum256(data)

		if err := rsa.VerifyPKCS1v15(key, crypto.SHA256, hashed[:], signature); err != nil {
			return ErrInvalidSignature
		}

		return nil
	default:
		return fmt.Errorf("unsupported public key type [%T]", pubKey)
	}
}

// signatureHashAlgorithm is a custom, verify-only algorithm for the HTTP
// signatures library. Requests are always verified against the key published
// by the actor, regardless of the algorithm claimed in the Signature header.
type signatureHashAlgorithm struct {
	resolver *KeyResolver
}

// Algorithm returns the name of the algorithm.
func (a *signatureHashAlgorithm) Algorithm() string {
	return meridianHTTPSigAlgorithm
}

// Create is not supported since requests are signed with a different suite.
func (a *signatureHashAlgorithm) Create(secret httpsignatures.Secret, data []byte) ([]byte, error) {
	return nil, errors.New("signing is not supported")
}

// Verify verifies the signature over data under the public key resolved for
// the secret's key ID.
func (a *signatureHashAlgorithm) Verify(secret httpsignatures.Secret, data, signature []byte) error {
	pubKey, err := a.resolver.Resolve(secret.KeyID)
	if err != nil {
		return err
	}

	return verifySignature(pubKey, data, signature)
}

// secretRetriever returns a secret that directs the HTTP signatures library to
// the custom verify-only algorithm.
type secretRetriever struct{}

func (r *secretRetriever) Get(keyID string) (httpsignatures.Secret, error) {
	return httpsignatures.Secret{
		KeyID:     keyID,
		Algorithm: meridianHTTPSigAlgorithm,
	}, nil
}
