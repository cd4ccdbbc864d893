/*
Copyright Fedway Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJRD(t *testing.T) {
	jrd := &JRD{
		Subject: "acct:alice@example.com",
		Links: []Link{
			{
				Rel:  RelSelf,
				Type: "application/activity+json",
				Href: "https://example.com/users/alice",
			},
		},
	}

	jrdBytes, err := json.Marshal(jrd)
	require.NoError(t, err)

	require.Contains(t, string(jrdBytes), `"subject":"acct:alice@example.com"`)
	require.Contains(t, string(jrdBytes), `"rel":"self"`)
	require.NotContains(t, string(jrdBytes), "aliases")
	require.NotContains(t, string(jrdBytes), "properties")
}
