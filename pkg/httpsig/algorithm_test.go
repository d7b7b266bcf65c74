/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package httpsig_test

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/stretchr/testify/require"

	. "github.com/meridianfed/meridian/pkg/httpsig"
	"github.com/meridianfed/meridian/pkg/internal/testutil"
	servicemocks "github.com/meridianfed/meridian/pkg/service/mocks"
	"github.com/meridianfed/meridian/pkg/vocab"
)

func TestKeyResolver_Resolve(t *testing.T) {
	keyIRI := testutil.MustParseURL("https://sally.example.com/services/fed/keys/main-key")
	ownerIRI := testutil.MustParseURL("https://sally.example.com/services/fed")

	pubKey, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	keyPem, err := getPublicKeyPem(pubKey)
	require.NoError(t, err)

	t.Run("Success", func(t *testing.T) {
		retriever := servicemocks.NewActorRetriever().
			WithPublicKey(vocab.NewPublicKey(keyIRI, ownerIRI, string(keyPem)))

		resolved, err := NewKeyResolver(retriever).Resolve(keyIRI.String())
		require.NoError(t, err)
		require.Equal(t, pubKey, resolved)
	})

	t.Run("Invalid key IRI -> error", func(t *testing.T) {
		_, err := NewKeyResolver(servicemocks.NewActorRetriever()).Resolve(":invalid")
		require.Error(t, err)
		require.Contains(t, err.Error(), "parse key IRI")
	})

	t.Run("Key not found -> error", func(t *testing.T) {
		_, err := NewKeyResolver(servicemocks.NewActorRetriever()).Resolve(keyIRI.String())
		require.Error(t, err)
		require.Contains(t, err.Error(), "retrieve public key for ID")
	})

	t.Run("Invalid PEM -> error", func(t *testing.T) {
		retriever := servicemocks.NewActorRetriever().
			WithPublicKey(vocab.NewPublicKey(keyIRI, ownerIRI, "not a pem"))

		_, err := NewKeyResolver(retriever).Resolve(keyIRI.String())
		require.Error(t, err)
		require.Contains(t, err.Error(), "invalid public key for ID")
	})
}

func TestParsePublicKeyPEM(t *testing.T) {
	t.Run("Ed25519 key", func(t *testing.T) {
		pubKey, _, err := ed25519.GenerateKey(rand.Reader)
		require.NoError(t, err)

		keyPem, err := getPublicKeyPem(pubKey)
		require.NoError(t, err)

		parsed, err := ParsePublicKeyPEM(keyPem)
		require.NoError(t, err)
		require.Equal(t, pubKey, parsed)
	})

	t.Run("RSA key", func(t *testing.T) {
		privKey, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)

		keyPem, err := getPublicKeyPem(&privKey.PublicKey)
		require.NoError(t, err)

		parsed, err := ParsePublicKeyPEM(keyPem)
		require.NoError(t, err)
		require.Equal(t, &privKey.PublicKey, parsed)
	})

	t.Run("RSA key in PKCS1 format", func(t *testing.T) {
		privKey, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)

		keyPem := pem.EncodeToMemory(&pem.Block{
			Type:  "RSA PUBLIC KEY",
			Bytes: x509.MarshalPKCS1PublicKey(&privKey.PublicKey),
		})

		parsed, err := ParsePublicKeyPEM(keyPem)
		require.NoError(t, err)
		require.Equal(t, &privKey.PublicKey, parsed)
	})

	t.Run("RSA key below the minimum size -> error", func(t *testing.T) {
		privKey, err := rsa.GenerateKey(rand.Reader, 1024)
		require.NoError(t, err)

		keyPem, err := getPublicKeyPem(&privKey.PublicKey)
		require.NoError(t, err)

		_, err = ParsePublicKeyPEM(keyPem)
		require.Error(t, err)
		require.Contains(t, err.Error(), "RSA key is 1024 bits, minimum is 2048")
	})

	t.Run("Unsupported key type -> error", func(t *testing.T) {
		privKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		require.NoError(t, err)

		keyPem, err := getPublicKeyPem(&privKey.PublicKey)
		require.NoError(t, err)

		_, err = ParsePublicKeyPEM(keyPem)
		require.Error(t, err)
		require.Contains(t, err.Error(), "unsupported public key type")
	})

	t.Run("Invalid PEM -> error", func(t *testing.T) {
		_, err := ParsePublicKeyPEM([]byte("not a pem"))
		require.Error(t, err)
		require.Contains(t, err.Error(), "invalid PEM")
	})
}

func TestVerifySignature(t *testing.T) {
	data := []byte("some data to sign")

	t.Run("Ed25519", func(t *testing.T) {
		pubKey, privKey, err := ed25519.GenerateKey(rand.Reader)
		require.NoError(t, err)

		signature := ed25519.Sign(privKey, data)

		require.NoError(t, verifySignature(pubKey, data, signature))

		err = verifySignature(pubKey, []byte("tampered data"), signature)
		require.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("RSA", func(t *testing.T) {
		privKey, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)

		signature, err := signBase(privKey, data)
		require.NoError(t, err)

		require.NoError(t, verifySignature(&privKey.PublicKey, data, signature))

		err = verifySignature(&privKey.PublicKey, []byte("tampered data"), signature)
		require.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("Unsupported key type -> error", func(t *testing.T) {
		err := verifySignature("not a key", data, nil)
		require.Error(t, err)
		require.Contains(t, err.Error(), "unsupported public key type")
	})
}
