/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package httpsig

import (
	"bytes"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// contentDigest returns the value of the Content-Digest header for the given
// body, using the sha-256 algorithm.
func contentDigest(body []byte) string {
	hash := sha256.Sum256(body)

	return fmt.Sprintf("sha-256=:%s:", base64.StdEncoding.EncodeToString(hash[:]))
}

// verifyDigest verifies a Digest header value against the request body. All
// recognized algorithms in the header must match, and at least one recognized
// algorithm must be present.
func verifyDigest(digest string, body []byte) error {
	var recognized bool

	for _, entry := range strings.Split(digest, ",") {
		parts := strings.SplitN(strings.TrimSpace(entry), "=", 2)
		if len(parts) != 2 {
			continue
		}

		computed, ok := hashBody(parts[0], body)
		if !ok {
			continue
		}

		if parts[1] != base64.StdEncoding.EncodeToString(computed) {
			return fmt.Errorf("digest mismatch for algorithm [%s]", parts[0])
		}

		recognized = true
	}

	if !recognized {
		return errors.New("no recognized digest algorithm")
	}

	return nil
}

// verifyContentDigest verifies a Content-Digest header value against the
// request body. The value is a dictionary of byte sequences as defined by
// RFC 9530.
func verifyContentDigest(digest string, body []byte) error {
	var recognized bool

	for _, entry := range strings.Split(digest, ",") {
		parts := strings.SplitN(strings.TrimSpace(entry), "=", 2)
		if len(parts) != 2 {
			continue
		}

		computed, ok := hashBody(parts[0], body)
		if !ok {
			continue
		}

		value := strings.TrimSpace(parts[1])
		if len(value) < 2 || value[0] != ':' || value[len(value)-1] != ':' {
			return fmt.Errorf("invalid byte sequence for algorithm [%s]", parts[0])
		}

		expected, err := base64.StdEncoding.DecodeString(value[1 : len(value)-1])
		if err != nil {
			return fmt.Errorf("invalid byte sequence for algorithm [%s]: %w", parts[0], err)
		}

		if !bytes.Equal(expected, computed) {
			return fmt.Errorf("content digest mismatch for algorithm [%s]", parts[0])
		}

		recognized = true
	}

	if !recognized {
		return errors.New("no recognized content digest algorithm")
	}

	return nil
}

func hashBody(algorithm string, body []byte) ([]byte, bool) {
	switch {
	case strings.EqualFold(algorithm, "sha-256"):
		hash := sha256.Sum256(body)

		return hash[:], true
	case strings.EqualFold(algorithm, "sha-512"):
		hash := sha512.Sum512(body)

		return hash[:], true
	default:
		return nil, false
	}
}
