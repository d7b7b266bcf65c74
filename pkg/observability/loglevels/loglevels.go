/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package loglevels

import (
	"io"
	"net/http"

	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/meridianfed/meridian/internal/pkg/log"
	"github.com/meridianfed/meridian/pkg/restapi/common"
)

var logger = log.New("loglevels")

const (
	logLevelsPath               = "/loglevels"
	internalServerErrorResponse = "Internal Server Error.\n"
	badRequestResponse          = "Bad Request.\n"
)

type handler struct {
	logger *log.Log
	method string
}

func newHandler(method string) *handler {
	return &handler{
		logger: logger.With(logfields.WithServiceEndpoint(logLevelsPath)),
		method: method,
	}
}

// Method returns the HTTP method.
func (h *handler) Method() string {
	return h.method
}

// Path returns the HTTP path.
func (h *handler) Path() string {
	return logLevelsPath
}

func (h *handler) writeResponse(w http.ResponseWriter, status int, body []byte) {
	w.WriteHeader(status)

	if len(body) == 0 {
		return
	}

	if _, err := w.Write(body); err != nil {
		h.logger.Warn("Unable to write response", log.WithError(err))

		return
	}

	h.logger.Debug("Wrote response", log.WithResponse(body))
}

// WriteHandler is a REST handler that updates the active logging spec. The request
// body holds the new spec in the format "module1=level1:module2=level2:defaultLevel".
type WriteHandler struct {
	*handler

	readAll func(r io.Reader) ([]byte, error)
}

// NewWriteHandler returns a new log levels POST handler.
func NewWriteHandler() *WriteHandler {
	return &WriteHandler{
		handler: newHandler(http.MethodPost),
		readAll: io.ReadAll,
	}
}

// Handler returns the HTTP handler.
func (h *WriteHandler) Handler() common.HTTPRequestHandler {
	return h.handlePost
}

func (h *WriteHandler) handlePost(w http.ResponseWriter, req *http.Request) {
	reqBytes, err := h.readAll(req.Body)
	if err != nil {
		h.logger.Error("Error reading request body", log.WithError(err))

		h.writeResponse(w, http.StatusInternalServerError, []byte(internalServerErrorResponse))

		return
	}

	spec := string(reqBytes)

	h.logger.Debug("Got request to update log levels", logfields.WithRequestBody(reqBytes))

	if err := log.SetSpec(spec); err != nil {
		h.logger.Warn("Set logging spec error", logfields.WithLogSpec(spec), log.WithError(err))

		h.writeResponse(w, http.StatusBadRequest, []byte(badRequestResponse))

		return
	}

	h.logger.Info("Successfully updated log levels", logfields.WithLogSpec(log.GetSpec()))

	h.writeResponse(w, http.StatusOK, nil)
}

// ReadHandler is a REST handler that returns the active logging spec.
type ReadHandler struct {
	*handler
}

// NewReadHandler returns a new log levels GET handler.
func NewReadHandler() *ReadHandler {
	return &ReadHandler{handler: newHandler(http.MethodGet)}
}

// Handler returns the HTTP handler.
func (h *ReadHandler) Handler() common.HTTPRequestHandler {
	return h.handleGet
}

func (h *ReadHandler) handleGet(w http.ResponseWriter, _ *http.Request) {
	h.writeResponse(w, http.StatusOK, []byte(log.GetSpec()))
}
