/*
Copyright Fedway Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package httpsig

import (
	"context"
	"crypto/rsa"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-fed/httpsig"
	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/fedway/fedway/internal/pkg/log"
	federrors "github.com/fedway/fedway/pkg/errors"
	"github.com/fedway/fedway/pkg/keyutil"
	"github.com/fedway/fedway/pkg/vocab"
)

// KeyResolver resolves the public key for the given key IRI, typically by
// dereferencing the IRI with a document loader.
type KeyResolver interface {
	ResolveKey(ctx context.Context, keyIRI *url.URL) (*vocab.PublicKeyType, error)
}

// Verifier verifies signatures of HTTP requests.
type Verifier struct {
	resolver KeyResolver
}

// NewVerifier returns a new HTTP signature verifier that resolves the signing key
// with the given resolver.
func NewVerifier(resolver KeyResolver) *Verifier {
	return &Verifier{resolver: resolver}
}

// VerifyRequest verifies the HTTP signature on the request and returns the public key
// that produced the signature. A nil key with a nil error indicates that the request
// has no valid signature. A non-nil error indicates a server-side failure, i.e. the
// signature could not be verified either way.
func (v *Verifier) VerifyRequest(req *http.Request) (*vocab.PublicKeyType, error) {
	verifier, err := httpsig.NewVerifier(req)
	if err != nil {
		logger.Debug("Request has no verifiable signature", logfields.WithRequestURL(req.URL), log.WithError(err))

		return nil, nil //nolint:nilnil
	}

	keyID := verifier.KeyId()

	keyIRI, err := url.Parse(keyID)
	if err != nil {
		logger.Debug("Invalid key ID in Signature header", logfields.WithKeyID(keyID), log.WithError(err))

		return nil, nil //nolint:nilnil
	}

	publicKey, err := v.resolver.ResolveKey(req.Context(), keyIRI)
	if err != nil {
		if federrors.IsTransient(err) {
			return nil, fmt.Errorf("resolve key [%s]: %w", keyIRI, err)
		}

		logger.Debug("Could not resolve key", logfields.WithKeyID(keyID), log.WithError(err))

		return nil, nil //nolint:nilnil
	}

	pubKey, err := keyutil.DecodePublicKeyPEM([]byte(publicKey.PublicKeyPem))
	if err != nil {
		logger.Debug("Invalid PEM on resolved key", logfields.WithKeyID(keyID), log.WithError(err))

		return nil, nil //nolint:nilnil
	}

	rsaKey, ok := pubKey.(*rsa.PublicKey)
	if !ok {
		logger.Debug("Resolved key is not an RSA key", logfields.WithKeyID(keyID))

		return nil, nil //nolint:nilnil
	}

	if err := verifier.Verify(rsaKey, httpsig.RSA_SHA256); err != nil {
		logger.Info("Signature verification failed", logfields.WithRequestURL(req.URL), log.WithError(err))

		return nil, nil //nolint:nilnil
	}

	logger.Debug("Successfully verified signature", logfields.WithKeyID(keyID))

	return publicKey, nil
}
