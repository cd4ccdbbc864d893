/*
Copyright Fedway Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package tlsutil contains helpers for building TLS certificate pools.
package tlsutil

import (
	"crypto/x509"
	"fmt"
	"os"
	"path"
)

// GetCertPool returns a certificate pool containing the certificates from the
// given PEM files, optionally on top of the system certificate pool.
func GetCertPool(useSystemCertPool bool, tlsCACerts []string) (*x509.CertPool, error) {
	var certPool *x509.CertPool

	if useSystemCertPool {
		systemPool, err := x509.SystemCertPool()
		if err != nil {
			return nil, fmt.Errorf("get system cert pool: %w", err)
		}

		certPool = systemPool
	} else {
		certPool = x509.NewCertPool()
	}

	for _, certFile := range tlsCACerts {
		pemBytes, err := os.ReadFile(path.Clean(certFile))
		if err != nil {
			return nil, fmt.Errorf("read cert [%s]: %w", certFile, err)
		}

		if !certPool.AppendCertsFromPEM(pemBytes) {
			return nil, fmt.Errorf("no certificates found in [%s]", certFile)
		}
	}

	return certPool, nil
}
