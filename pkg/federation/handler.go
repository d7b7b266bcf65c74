/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package federation

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/meridianfed/meridian/internal/pkg/log"
	"github.com/meridianfed/meridian/pkg/client"
	"github.com/meridianfed/meridian/pkg/client/transport"
	merrors "github.com/meridianfed/meridian/pkg/errors"
	"github.com/meridianfed/meridian/pkg/nodeinfo"
	"github.com/meridianfed/meridian/pkg/uritemplate"
	"github.com/meridianfed/meridian/pkg/vocab"
)

const (
	badRequestResponse          = "Bad Request.\n"
	unauthorizedResponse        = "Unauthorized.\n"
	methodNotAllowedResponse    = "Method Not Allowed.\n"
	notAcceptableResponse       = "Not Acceptable.\n"
	requestTimeoutResponse      = "Request Timeout.\n"
	badGatewayResponse          = "Bad Gateway.\n"
	internalServerErrorResponse = "Internal Server Error.\n"

	pagingParam = "page"
	cursorParam = "cursor"
)

// Handle serves the given request if its path matches one of the registered
// routes, and reports whether it did. A false return means the request is not
// for this federation - the path matched no route, the Host header named a
// different origin, or a dispatcher reported that the resource does not
// exist - and the caller routes it to the rest of the application, typically
// ending in its own not-found response.
func (f *Federation) Handle(w http.ResponseWriter, r *http.Request) bool {
	if !f.matchesOrigin(r) {
		return false
	}

	if f.wellKnownNodeInfo != nil && r.URL.Path == nodeinfo.WellKnownPath {
		if !isRead(r.Method) {
			f.writeMethodNotAllowed(w, "GET, HEAD")

			return true
		}

		f.wellKnownNodeInfo.Handler()(w, r)

		return true
	}

	name, vals, ok := f.routes.match(r.URL.Path)
	if !ok {
		return false
	}

	kind := f.kinds[name]

	if kind == kindInbox || kind == kindSharedInbox {
		if r.Method != http.MethodPost {
			f.writeMethodNotAllowed(w, http.MethodPost)

			return true
		}

		return f.handleDelivery(w, r, name, vals)
	}

	if !isRead(r.Method) {
		f.writeMethodNotAllowed(w, "GET, HEAD")

		return true
	}

	if kind == kindNodeInfo {
		handler, ok := f.nodeInfoHandlers[stringVar(vals, versionVar)]
		if !ok {
			return false
		}

		handler.Handler()(w, r)

		return true
	}

	if !acceptsActivityStreams(r) {
		f.logger.Debugc(r.Context(), "Request does not accept ActivityStreams",
			logfields.WithRequestURL(r.URL), logfields.WithRequestHeaders(r.Header))

		f.writeResponse(w, http.StatusNotAcceptable, []byte(notAcceptableResponse))

		return true
	}

	reqCtx := f.newRequestContext(r, nil)

	if f.authorize != nil {
		allowed, err := f.authorize(reqCtx, name, plainVars(vals))
		if err != nil {
			return f.writeError(w, r, err)
		}

		if !allowed {
			f.unauthorized(w, r)

			return true
		}
	}

	obj, err := f.dispatch[name](reqCtx, r, vals)
	if err != nil {
		return f.writeError(w, r, err)
	}

	f.render(w, r, obj)

	return true
}

// handleDelivery accepts a POSTed activity. A delivery to the inbox of an
// actor that does not exist is not for us, so the actor is resolved before
// the payload is handed to the inbox service.
func (f *Federation) handleDelivery(w http.ResponseWriter, r *http.Request, name string,
	vals uritemplate.Values) bool {
	if name == RouteInbox && f.actorDispatcher != nil {
		_, err := f.actorDispatcher(f.newRequestContext(r, nil), stringVar(vals, HandleVar))
		if err != nil {
			return f.writeError(w, r, err)
		}
	}

	f.inbox.HTTPHandler().Handler()(w, r)

	return true
}

// matchesOrigin reports whether the request is addressed to this server's
// canonical origin. Requests with no Host header (such as those constructed
// directly in tests) are accepted.
func (f *Federation) matchesOrigin(r *http.Request) bool {
	host := r.Host
	if host == "" {
		host = r.URL.Host
	}

	return host == "" || strings.EqualFold(host, f.cfg.Origin.Host)
}

func isRead(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

// acceptsActivityStreams reports whether the request's Accept header admits
// an ActivityStreams response. An absent header accepts anything.
func acceptsActivityStreams(r *http.Request) bool {
	accept := strings.Join(r.Header.Values("Accept"), ",")
	if accept == "" {
		return true
	}

	for _, mediaRange := range strings.Split(accept, ",") {
		mediaType := mediaRange
		if i := strings.Index(mediaType, ";"); i >= 0 {
			mediaType = mediaType[:i]
		}

		switch strings.ToLower(strings.TrimSpace(mediaType)) {
		case "*/*", "application/*", "application/activity+json", "application/ld+json":
			return true
		}
	}

	return false
}

// writeError responds according to the kind of the given error and reports
// whether a response was written. Not-found errors are not responded to:
// a resource that does not exist here may exist elsewhere in the
// application, so the request is handed back to the caller.
func (f *Federation) writeError(w http.ResponseWriter, r *http.Request, err error) bool {
	if errors.Is(err, merrors.ErrContentNotFound) || errors.Is(err, client.ErrNotFound) ||
		merrors.IsKind(err, merrors.KindRouting) {
		f.logger.Debugc(r.Context(), "Resource not found", logfields.WithRequestURL(r.URL), log.WithError(err))

		return false
	}

	status := statusOf(err)

	if status == http.StatusInternalServerError {
		f.logger.Errorc(r.Context(), "Error handling request", logfields.WithRequestURL(r.URL), log.WithError(err))
	} else {
		f.logger.Debugc(r.Context(), "Error handling request", logfields.WithRequestURL(r.URL),
			logfields.WithHTTPStatus(status), log.WithError(err))
	}

	f.writeResponse(w, status, []byte(responseBody(status)))

	return true
}

func statusOf(err error) int {
	if merrors.IsBadRequest(err) {
		return http.StatusBadRequest
	}

	switch merrors.GetKind(err) {
	case merrors.KindSignature, merrors.KindAuthorization:
		return http.StatusUnauthorized
	case merrors.KindNotAcceptable:
		return http.StatusNotAcceptable
	case merrors.KindParse:
		return http.StatusBadRequest
	case merrors.KindFetch, merrors.KindURL:
		return http.StatusBadGateway
	case merrors.KindCancelled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func responseBody(status int) string {
	switch status {
	case http.StatusBadRequest:
		return badRequestResponse
	case http.StatusUnauthorized:
		return unauthorizedResponse
	case http.StatusNotAcceptable:
		return notAcceptableResponse
	case http.StatusRequestTimeout:
		return requestTimeoutResponse
	case http.StatusBadGateway:
		return badGatewayResponse
	default:
		return internalServerErrorResponse
	}
}

func (f *Federation) writeResponse(w http.ResponseWriter, status int, body []byte) {
	w.WriteHeader(status)

	if len(body) == 0 {
		return
	}

	if _, err := w.Write(body); err != nil {
		f.logger.Warn("Unable to write response", log.WithError(err))

		return
	}

	logfields.WroteResponse(f.logger, body)
}

func (f *Federation) writeMethodNotAllowed(w http.ResponseWriter, allow string) {
	w.Header().Set("Allow", allow)

	f.writeResponse(w, http.StatusMethodNotAllowed, []byte(methodNotAllowedResponse))
}

// render writes the given object as compact JSON-LD. Actor documents carry
// the security context in addition to ActivityStreams so that their public
// keys compact to the expected terms.
func (f *Federation) render(w http.ResponseWriter, r *http.Request, obj interface{}) {
	contexts := []vocab.Context{vocab.ContextActivityStreams}

	if _, ok := obj.(*vocab.ActorType); ok {
		contexts = append(contexts, vocab.ContextSecurity)
	}

	body, err := vocab.MarshalCompact(obj, f.docLoader, contexts...)
	if err != nil {
		f.logger.Errorc(r.Context(), "Error marshalling response", logfields.WithRequestURL(r.URL),
			log.WithError(err))

		f.writeResponse(w, http.StatusInternalServerError, []byte(internalServerErrorResponse))

		return
	}

	w.Header().Set(transport.ContentTypeHeader, transport.ActivityJSONContentType)

	f.writeResponse(w, http.StatusOK, body)
}

// collectionResource resolves a collection route into either the collection
// index or one of its pages, depending on the paging query parameters.
func (f *Federation) collectionResource(d CollectionDispatcher, name string, reqCtx *RequestContext,
	r *http.Request, vals uritemplate.Values) (interface{}, error) {
	self, err := f.routes.expand(name, vals, f.cfg.Origin)
	if err != nil {
		return nil, err
	}

	handle := stringVar(vals, HandleVar)

	var totalItems *int

	if d.Count != nil {
		count, err := d.Count(reqCtx, handle)
		if err != nil {
			return nil, err
		}

		totalItems = &count
	}

	query := r.URL.Query()

	if query.Get(pagingParam) != "true" {
		return f.collectionIndex(d, reqCtx, self, handle, totalItems)
	}

	return f.collectionPage(d, reqCtx, self, handle, query.Get(cursorParam), totalItems)
}

// collectionIndex builds the top-level collection document, which carries no
// items of its own but points at the first (and optionally last) page.
func (f *Federation) collectionIndex(d CollectionDispatcher, reqCtx *RequestContext, self *url.URL,
	handle string, totalItems *int) (interface{}, error) {
	opts := []vocab.Opt{
		vocab.WithContext(vocab.ContextActivityStreams),
		vocab.WithID(self),
	}

	firstCursor := ""

	if d.FirstCursor != nil {
		cursor, err := d.FirstCursor(reqCtx, handle)
		if err != nil {
			return nil, err
		}

		firstCursor = cursor
	}

	opts = append(opts, vocab.WithFirst(pageURL(self, firstCursor)))

	if d.LastCursor != nil {
		cursor, err := d.LastCursor(reqCtx, handle)
		if err != nil {
			return nil, err
		}

		opts = append(opts, vocab.WithLast(pageURL(self, cursor)))
	}

	if totalItems != nil {
		opts = append(opts, vocab.WithTotalItems(*totalItems))
	}

	if d.Ordered {
		return vocab.NewOrderedCollection(nil, opts...), nil
	}

	return vocab.NewCollection(nil, opts...), nil
}

func (f *Federation) collectionPage(d CollectionDispatcher, reqCtx *RequestContext, self *url.URL,
	handle, cursor string, totalItems *int) (interface{}, error) {
	page, err := d.GetItems(reqCtx, handle, cursor)
	if err != nil {
		return nil, err
	}

	if page == nil {
		page = &CollectionPage{}
	}

	opts := []vocab.Opt{
		vocab.WithContext(vocab.ContextActivityStreams),
		vocab.WithID(pageURL(self, cursor)),
		vocab.WithPartOf(self),
	}

	if page.NextCursor != "" {
		opts = append(opts, vocab.WithNext(pageURL(self, page.NextCursor)))
	}

	if page.PrevCursor != "" {
		opts = append(opts, vocab.WithPrev(pageURL(self, page.PrevCursor)))
	}

	if totalItems != nil {
		opts = append(opts, vocab.WithTotalItems(*totalItems))
	}

	if d.Ordered {
		return vocab.NewOrderedCollectionPage(page.Items, opts...), nil
	}

	return vocab.NewCollectionPage(page.Items, opts...), nil
}

// pageURL returns the URL of the page of the given collection at the given
// cursor. An empty cursor names the default (first) page.
func pageURL(collURL *url.URL, cursor string) *url.URL {
	u := *collURL

	q := u.Query()
	q.Set(pagingParam, "true")

	if cursor != "" {
		q.Set(cursorParam, cursor)
	}

	u.RawQuery = q.Encode()

	return &u
}
