/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package resthandler implements the WebFinger endpoint (RFC 7033) that serves
// the actors registered with this server.
package resthandler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/meridianfed/meridian/internal/pkg/log"
	merrors "github.com/meridianfed/meridian/pkg/errors"
	"github.com/meridianfed/meridian/pkg/restapi/common"
	"github.com/meridianfed/meridian/pkg/vocab"
	"github.com/meridianfed/meridian/pkg/webfinger/model"
)

var logger = log.New("webfinger_resthandler")

// Path is the context path of the WebFinger endpoint.
const Path = "/.well-known/webfinger"

const (
	selfRelation        = "self"
	profilePageRelation = "http://webfinger.net/rel/profile-page"

	activityJSONType = "application/activity+json"
	profilePageType  = "text/html"

	jrdContentType = "application/jrd+json"
)

// ActorRetriever retrieves the actors that are registered with this server.
// An implementation returns an ErrContentNotFound error if no actor matches
// the given username or IRI.
type ActorRetriever interface {
	ActorByUsername(username string) (*vocab.ActorType, error)
	ActorByIRI(iri *url.URL) (*vocab.ActorType, error)
}

// Handler implements the WebFinger endpoint, resolving 'acct:' and actor URL
// resources to the actors registered with this server.
type Handler struct {
	baseURL   *url.URL
	retriever ActorRetriever
	marshal   func(v interface{}) ([]byte, error)
}

// New returns a new WebFinger handler. All resources are resolved against
// baseURL: an 'acct:' resource must name its host and an actor URL resource
// must share its origin, otherwise the resource is reported as not found.
func New(baseURL *url.URL, retriever ActorRetriever) *Handler {
	return &Handler{
		baseURL:   baseURL,
		retriever: retriever,
		marshal:   json.Marshal,
	}
}

// Path returns the context path.
func (h *Handler) Path() string {
	return Path
}

// Method returns the HTTP method.
func (h *Handler) Method() string {
	return http.MethodGet
}

// Handler returns the handler function.
func (h *Handler) Handler() common.HTTPRequestHandler {
	return h.handle
}

func (h *Handler) handle(w http.ResponseWriter, req *http.Request) {
	queryValue := req.URL.Query()["resource"]
	if len(queryValue) == 0 {
		h.writeErrorResponse(w, http.StatusBadRequest, "resource query string not found")

		return
	}

	resource := queryValue[0]

	actor, err := h.resolveActor(resource)
	if err != nil {
		if errors.Is(err, merrors.ErrContentNotFound) {
			h.writeErrorResponse(w, http.StatusNotFound, fmt.Sprintf("resource %s not found", resource))

			return
		}

		logger.Error("Error retrieving actor for WebFinger resource",
			logfields.WithResource(resource), log.WithError(err))

		h.writeErrorResponse(w, http.StatusInternalServerError, "error retrieving resource")

		return
	}

	actorIRI := actor.ID().String()

	resp := &model.Resp{
		Subject: resource,
		Aliases: []string{actorIRI},
		Links: []model.Link{
			{
				Rel:  selfRelation,
				Type: activityJSONType,
				Href: actorIRI,
			},
		},
	}

	if profileURL := resolveProfileURL(actor); profileURL != "" {
		resp.Links = append(resp.Links, model.Link{
			Rel:  profilePageRelation,
			Type: profilePageType,
			Href: profileURL,
		})
	}

	h.writeResponse(w, resp)
}

// resolveActor maps a WebFinger resource to a registered actor. Resources in
// the 'acct:' and '@user@host' forms are resolved by username, URL resources
// by IRI. Anything else is not found.
func (h *Handler) resolveActor(resource string) (*vocab.ActorType, error) {
	if strings.HasPrefix(resource, "acct:") || strings.HasPrefix(resource, "@") {
		acct := strings.TrimPrefix(strings.TrimPrefix(resource, "acct:"), "@")

		parts := strings.SplitN(acct, "@", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, merrors.ErrContentNotFound
		}

		if parts[1] != h.baseURL.Host {
			return nil, merrors.ErrContentNotFound
		}

		return h.retriever.ActorByUsername(parts[0])
	}

	iri, err := url.Parse(resource)
	if err != nil || iri.Scheme != h.baseURL.Scheme || iri.Host != h.baseURL.Host {
		return nil, merrors.ErrContentNotFound
	}

	return h.retriever.ActorByIRI(iri)
}

func (h *Handler) writeResponse(w http.ResponseWriter, resp *model.Resp) {
	respBytes, err := h.marshal(resp)
	if err != nil {
		logger.Error("Unable to marshal WebFinger response", log.WithError(err))

		h.writeErrorResponse(w, http.StatusInternalServerError, "error retrieving resource")

		return
	}

	w.Header().Add("Content-Type", jrdContentType)
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(respBytes); err != nil {
		logfields.WriteResponseBodyError(logger, err)
	}
}

func (h *Handler) writeErrorResponse(w http.ResponseWriter, status int, msg string) {
	w.Header().Add("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(errorResponse{Message: msg}); err != nil {
		logfields.WriteResponseBodyError(logger, err)
	}
}

// resolveProfileURL returns the actor's profile page ('url' property),
// or "" if the actor doesn't have one.
func resolveProfileURL(actor *vocab.ActorType) string {
	v, ok := actor.Value("url")
	if !ok {
		return ""
	}

	profileURL, ok := v.(string)
	if !ok {
		return ""
	}

	return profileURL
}

type errorResponse struct {
	Message string `json:"errMessage,omitempty"`
}
