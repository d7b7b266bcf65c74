/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package auth

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"regexp"

	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/meridianfed/meridian/internal/pkg/log"
)

const loggerModule = "httpserver"

const (
	authHeader  = "Authorization"
	tokenPrefix = "Bearer "
)

// TokenDef contains authorization bearer token definitions.
type TokenDef struct {
	EndpointExpression string
	ReadTokens         []string
	WriteTokens        []string
}

// Config contains the authorization token configuration.
type Config struct {
	AuthTokensDef []*TokenDef
	AuthTokens    map[string]string
}

// TokenVerifier authorizes requests with bearer tokens.
type TokenVerifier struct {
	Config

	endpoint   string
	authTokens []string
	logger     *log.Log
}

// NewTokenVerifier returns a verifier that performs bearer token authorization.
func NewTokenVerifier(cfg Config, endpoint, method string) *TokenVerifier {
	authTokens, err := resolveAuthTokens(endpoint, method, cfg.AuthTokensDef, cfg.AuthTokens)
	if err != nil {
		// This would occur on startup due to bad configuration, so it's better to panic.
		panic(fmt.Errorf("resolve authorization tokens: %w", err))
	}

	return &TokenVerifier{
		Config:     cfg,
		endpoint:   endpoint,
		authTokens: authTokens,
		logger:     log.New(loggerModule, log.WithFields(logfields.WithServiceEndpoint(endpoint))),
	}
}

// Verify verifies that the request has the required bearer token. If not, false is returned.
func (h *TokenVerifier) Verify(req *http.Request) bool {
	if len(h.authTokens) == 0 {
		// Open access.
		h.logger.Debug("No auth token required")

		return true
	}

	actHdr := req.Header.Get(authHeader)
	if actHdr == "" {
		h.logger.Debug("Bearer token not found in header")

		return false
	}

	// Compare the header against all tokens. If any match then the request is allowed.
	for _, token := range h.authTokens {
		if subtle.ConstantTimeCompare([]byte(actHdr), []byte(tokenPrefix+token)) == 1 {
			return true
		}
	}

	h.logger.Debug("Bearer token does not match any of the required tokens")

	return false
}

// resolveAuthTokens finds the first token definition whose endpoint expression
// matches the given endpoint and returns the tokens for the given method. POST
// requests use the write tokens, all other methods use the read tokens.
func resolveAuthTokens(endpoint, method string, authTokensDef []*TokenDef,
	authTokenMap map[string]string) ([]string, error) {
	for _, def := range authTokensDef {
		ok, err := regexp.MatchString(def.EndpointExpression, endpoint)
		if err != nil {
			return nil, fmt.Errorf("match endpoint pattern %s: %w", def.EndpointExpression, err)
		}

		if !ok {
			continue
		}

		tokenIDs := def.ReadTokens

		if method == http.MethodPost {
			tokenIDs = def.WriteTokens
		}

		var authTokens []string

		for _, tokenID := range tokenIDs {
			token, ok := authTokenMap[tokenID]
			if !ok {
				return nil, fmt.Errorf("token not found: %s", tokenID)
			}

			authTokens = append(authTokens, token)
		}

		return authTokens, nil
	}

	return nil, nil
}
