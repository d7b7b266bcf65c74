/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package auth

import (
	"net/http"

	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/meridianfed/meridian/internal/pkg/log"
	"github.com/meridianfed/meridian/pkg/restapi/common"
)

const unauthorizedResponse = "Unauthorized.\n"

// HandlerWrapper performs bearer token authorization before delegating to the
// wrapped HTTP handler. Unauthorized requests are answered with 401.
type HandlerWrapper struct {
	common.HTTPHandler

	verifier      *TokenVerifier
	handleRequest common.HTTPRequestHandler
	logger        *log.Log
}

// NewHandlerWrapper wraps the given handler with bearer token authorization.
func NewHandlerWrapper(cfg Config, handler common.HTTPHandler) *HandlerWrapper {
	return &HandlerWrapper{
		HTTPHandler:   handler,
		verifier:      NewTokenVerifier(cfg, handler.Path(), handler.Method()),
		handleRequest: handler.Handler(),
		logger:        log.New(loggerModule, log.WithFields(logfields.WithServiceEndpoint(handler.Path()))),
	}
}

// Handler returns the authorizing handler.
func (h *HandlerWrapper) Handler() common.HTTPRequestHandler {
	return func(w http.ResponseWriter, req *http.Request) {
		if h.verifier.Verify(req) {
			h.handleRequest(w, req)

			return
		}

		w.WriteHeader(http.StatusUnauthorized)

		if _, err := w.Write([]byte(unauthorizedResponse)); err != nil {
			logfields.WriteResponseBodyError(h.logger, err)
		}
	}
}
