/*
Copyright Fedway Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package keyutil

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRSAPrivateKeyRoundTrip(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	jwk := ExportRSAPrivateKey(key)
	require.Equal(t, "RSA", jwk.Kty)
	require.NotEmpty(t, jwk.D)

	jwkBytes, err := json.Marshal(jwk)
	require.NoError(t, err)

	restored := &JWK{}
	require.NoError(t, json.Unmarshal(jwkBytes, restored))

	imported, err := ImportRSAPrivateKey(restored)
	require.NoError(t, err)
	require.Zero(t, imported.N.Cmp(key.N))
	require.Zero(t, imported.D.Cmp(key.D))
}

func TestImportRSAPrivateKeyError(t *testing.T) {
	t.Run("unsupported key type", func(t *testing.T) {
		_, err := ImportRSAPrivateKey(&JWK{Kty: "EC"})
		require.ErrorIs(t, err, ErrUnsupportedKeyType)
	})

	t.Run("missing private component", func(t *testing.T) {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)

		jwk := ExportRSAPrivateKey(key)
		jwk.D = ""

		_, err = ImportRSAPrivateKey(jwk)
		require.Error(t, err)
		require.Contains(t, err.Error(), "missing private key component")
	})

	t.Run("invalid encoding", func(t *testing.T) {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)

		jwk := ExportRSAPrivateKey(key)
		jwk.N = "!invalid!"

		_, err = ImportRSAPrivateKey(jwk)
		require.Error(t, err)
	})
}

func TestPublicKeyPEMRoundTrip(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	pemStr, err := EncodePublicKeyPEM(&key.PublicKey)
	require.NoError(t, err)
	require.Contains(t, pemStr, "BEGIN PUBLIC KEY")

	pubKey, err := DecodePublicKeyPEM([]byte(pemStr))
	require.NoError(t, err)

	rsaKey, ok := pubKey.(*rsa.PublicKey)
	require.True(t, ok)
	require.Zero(t, rsaKey.N.Cmp(key.N))

	_, err = DecodePublicKeyPEM([]byte("not pem"))
	require.Error(t, err)
}
