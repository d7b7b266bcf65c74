/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package maintenance

import (
	"net/http"

	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/meridianfed/meridian/internal/pkg/log"
	"github.com/meridianfed/meridian/pkg/restapi/common"
)

const loggerModule = "maintenance"

const (
	serviceUnavailableResponse = "Service Unavailable.\n"
	retryAfterSeconds          = "300"
)

// HandlerWrapper replaces an existing HTTP handler so that all calls to the
// endpoint return 503 (Service Unavailable) while the server is in maintenance mode.
type HandlerWrapper struct {
	common.HTTPHandler

	logger *log.Log
}

// NewMaintenanceWrapper returns a wrapper that responds with service unavailable for the handler that was passed in.
func NewMaintenanceWrapper(handler common.HTTPHandler) *HandlerWrapper {
	return &HandlerWrapper{
		HTTPHandler: handler,
		logger:      log.New(loggerModule, log.WithFields(logfields.WithServiceEndpoint(handler.Path()))),
	}
}

// Handler returns the maintenance-mode handler.
func (h *HandlerWrapper) Handler() common.HTTPRequestHandler {
	return func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Retry-After", retryAfterSeconds)
		w.WriteHeader(http.StatusServiceUnavailable)

		if _, err := w.Write([]byte(serviceUnavailableResponse)); err != nil {
			logfields.WriteResponseBodyError(h.logger, err)
		}
	}
}
