/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package tlsutil

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path"
)

// GetCertPool returns a certificate pool containing the given PEM-encoded CA
// certificates, optionally on top of the system certificate pool.
func GetCertPool(useSystemCertPool bool, tlsCACerts []string) (*x509.CertPool, error) {
	certPool := x509.NewCertPool()

	if useSystemCertPool {
		systemCertPool, err := x509.SystemCertPool()
		if err != nil {
			return nil, fmt.Errorf("failed to get system cert pool: %w", err)
		}

		certPool = systemCertPool
	}

	for _, v := range tlsCACerts {
		certBytes, err := os.ReadFile(path.Clean(v))
		if err != nil {
			return nil, fmt.Errorf("failed to read cert: %w", err)
		}

		block, _ := pem.Decode(certBytes)
		if block == nil {
			return nil, fmt.Errorf("failed to decode pem")
		}

		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse cert: %w", err)
		}

		certPool.AddCert(cert)
	}

	return certPool, nil
}
