/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package nodeinfo

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/meridianfed/meridian/internal/pkg/log"
	"github.com/meridianfed/meridian/pkg/restapi/common"
)

const internalServerErrorResponse = "Internal Server Error.\n"

// WellKnownPath is the path of the NodeInfo discovery document.
const WellKnownPath = "/.well-known/nodeinfo"

const (
	nodeInfoV2_0Schema = "http://nodeinfo.diaspora.software/ns/schema/2.0"
	nodeInfoV2_1Schema = "http://nodeinfo.diaspora.software/ns/schema/2.1"
)

type nodeInfoRetriever interface {
	GetNodeInfo(version Version) *NodeInfo
}

// Handler implements the /nodeinfo REST endpoint.
type Handler struct {
	version     Version
	retriever   nodeInfoRetriever
	contentType string
	marshal     func(v interface{}) ([]byte, error)
}

// NewHandler returns the /nodeinfo REST handler.
func NewHandler(version Version, retriever nodeInfoRetriever) *Handler {
	return &Handler{
		version:   version,
		retriever: retriever,
		contentType: fmt.Sprintf(`application/json; profile="http://nodeinfo.diaspora.software/ns/schema/%s#"`,
			version),
		marshal: json.Marshal,
	}
}

// Path returns the HTTP REST endpoint for the NodeInfo handler.
func (h *Handler) Path() string {
	return fmt.Sprintf("/nodeinfo/%s", h.version)
}

// Method returns the HTTP REST method for the NodeInfo handler.
func (h *Handler) Method() string {
	return http.MethodGet
}

// Handler returns the HTTP REST handle for the NodeInfo handler.
func (h *Handler) Handler() common.HTTPRequestHandler {
	return h.handle
}

func (h *Handler) handle(w http.ResponseWriter, _ *http.Request) {
	w.Header().Add("Content-Type", h.contentType)

	nodeInfoBytes, err := h.marshal(h.retriever.GetNodeInfo(h.version))
	if err != nil {
		logger.Error("Error marshalling node info", log.WithError(err))

		writeResponse(w, h.Path(), http.StatusInternalServerError, []byte(internalServerErrorResponse))

		return
	}

	writeResponse(w, h.Path(), http.StatusOK, nodeInfoBytes)
}

// WellKnownResponse is the NodeInfo discovery document that is served at /.well-known/nodeinfo.
type WellKnownResponse struct {
	Links []WellKnownLink `json:"links"`
}

// WellKnownLink points at a versioned NodeInfo endpoint.
type WellKnownLink struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

// WellKnownHandler implements the /.well-known/nodeinfo discovery endpoint,
// which points clients at the versioned NodeInfo endpoints for this server.
type WellKnownHandler struct {
	response *WellKnownResponse
	marshal  func(v interface{}) ([]byte, error)
}

// NewWellKnownHandler returns the /.well-known/nodeinfo REST handler. The
// links in the discovery document are constructed from the given base URL.
func NewWellKnownHandler(baseURL string) *WellKnownHandler {
	return &WellKnownHandler{
		response: &WellKnownResponse{
			Links: []WellKnownLink{
				{Rel: nodeInfoV2_0Schema, Href: fmt.Sprintf("%s/nodeinfo/%s", baseURL, V2_0)},
				{Rel: nodeInfoV2_1Schema, Href: fmt.Sprintf("%s/nodeinfo/%s", baseURL, V2_1)},
			},
		},
		marshal: json.Marshal,
	}
}

// Path returns the HTTP REST endpoint for the discovery handler.
func (h *WellKnownHandler) Path() string {
	return WellKnownPath
}

// Method returns the HTTP REST method for the discovery handler.
func (h *WellKnownHandler) Method() string {
	return http.MethodGet
}

// Handler returns the HTTP REST handle for the discovery handler.
func (h *WellKnownHandler) Handler() common.HTTPRequestHandler {
	return h.handle
}

func (h *WellKnownHandler) handle(w http.ResponseWriter, _ *http.Request) {
	w.Header().Add("Content-Type", "application/json")

	respBytes, err := h.marshal(h.response)
	if err != nil {
		logger.Error("Error marshalling discovery document", log.WithError(err))

		writeResponse(w, WellKnownPath, http.StatusInternalServerError, []byte(internalServerErrorResponse))

		return
	}

	writeResponse(w, WellKnownPath, http.StatusOK, respBytes)
}

func writeResponse(w http.ResponseWriter, endpoint string, status int, body []byte) {
	w.WriteHeader(status)

	if len(body) > 0 {
		if _, err := w.Write(body); err != nil {
			logger.Warn("Unable to write response", logfields.WithServiceEndpoint(endpoint),
				log.WithError(err))

			return
		}

		logfields.WroteResponse(logger, body)
	}
}
