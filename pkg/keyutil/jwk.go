/*
Copyright Fedway Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package keyutil

import (
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
)

// JWK is a JSON Web Key (RFC 7517) restricted to RSA keys, which is the key type
// used for HTTP signatures. A JWK with a non-empty 'd' component is a private key.
type JWK struct {
	Kty string `json:"kty"`
	N   string `json:"n"`
	E   string `json:"e"`
	D   string `json:"d,omitempty"`
	P   string `json:"p,omitempty"`
	Q   string `json:"q,omitempty"`
	DP  string `json:"dp,omitempty"`
	DQ  string `json:"dq,omitempty"`
	QI  string `json:"qi,omitempty"`
}

// ErrUnsupportedKeyType indicates that the JWK 'kty' is not RSA.
var ErrUnsupportedKeyType = errors.New("unsupported key type")

// ExportRSAPrivateKey returns the JWK representation of the given RSA private key.
func ExportRSAPrivateKey(key *rsa.PrivateKey) *JWK {
	key.Precompute()

	return &JWK{
		Kty: "RSA",
		N:   encodeBigInt(key.N),
		E:   encodeBigInt(big.NewInt(int64(key.E))),
		D:   encodeBigInt(key.D),
		P:   encodeBigInt(key.Primes[0]),
		Q:   encodeBigInt(key.Primes[1]),
		DP:  encodeBigInt(key.Precomputed.Dp),
		DQ:  encodeBigInt(key.Precomputed.Dq),
		QI:  encodeBigInt(key.Precomputed.Qinv),
	}
}

// ImportRSAPrivateKey returns the RSA private key for the given JWK.
func ImportRSAPrivateKey(jwk *JWK) (*rsa.PrivateKey, error) {
	if jwk.Kty != "RSA" {
		return nil, fmt.Errorf("import key [%s]: %w", jwk.Kty, ErrUnsupportedKeyType)
	}

	if jwk.D == "" || jwk.P == "" || jwk.Q == "" {
		return nil, errors.New("import key: missing private key component")
	}

	n, err := decodeBigInt(jwk.N)
	if err != nil {
		return nil, fmt.Errorf("import key component 'n': %w", err)
	}

	e, err := decodeBigInt(jwk.E)
	if err != nil {
		return nil, fmt.Errorf("import key component 'e': %w", err)
	}

	d, err := decodeBigInt(jwk.D)
	if err != nil {
		return nil, fmt.Errorf("import key component 'd': %w", err)
	}

	p, err := decodeBigInt(jwk.P)
	if err != nil {
		return nil, fmt.Errorf("import key component 'p': %w", err)
	}

	q, err := decodeBigInt(jwk.Q)
	if err != nil {
		return nil, fmt.Errorf("import key component 'q': %w", err)
	}

	key := &rsa.PrivateKey{
		PublicKey: rsa.PublicKey{
			N: n,
			E: int(e.Int64()),
		},
		D:      d,
		Primes: []*big.Int{p, q},
	}

	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("validate imported key: %w", err)
	}

	key.Precompute()

	return key, nil
}

func encodeBigInt(i *big.Int) string {
	return base64.RawURLEncoding.EncodeToString(i.Bytes())
}

func decodeBigInt(value string) (*big.Int, error) {
	b, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, err
	}

	return new(big.Int).SetBytes(b), nil
}
