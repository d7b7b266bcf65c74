/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package ldcontext_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridianfed/meridian/internal/pkg/ldcontext"
)

func TestMustGetAll(t *testing.T) {
	res := ldcontext.MustGetAll()
	require.Len(t, res, 3)
	require.Equal(t, "https://www.w3.org/ns/activitystreams", res[0].URL)
	require.Equal(t, "https://w3id.org/security/data-integrity/v1", res[1].URL)
	require.Equal(t, "https://w3id.org/security/v1", res[2].URL)

	for _, doc := range res {
		var content map[string]interface{}

		require.NoError(t, json.Unmarshal(doc.Content, &content))
		require.Contains(t, content, "@context")
	}
}
