/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package docloader fetches remote JSON-LD documents over HTTP(S). It
// implements json-gold's ld.DocumentLoader so that it can be plugged directly
// into JSON-LD processing, performs alternate-document discovery through Link
// headers and HTML link tags, and guards against requests to private
// addresses. A set of well-known contexts is embedded and served from memory.
package docloader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/piprate/json-gold/ld"
	"github.com/trustbloc/logutil-go/pkg/log"

	"github.com/meridianfed/meridian/internal/pkg/ldcontext"
	logfields "github.com/meridianfed/meridian/internal/pkg/log"
	merrors "github.com/meridianfed/meridian/pkg/errors"
)

var logger = log.New("docloader")

const (
	// version identifies this framework in outgoing requests.
	version = "1.0.0"

	maxRedirects     = 10
	maxAlternateHops = 3

	contentTypeActivityJSON = "application/activity+json"
	contentTypeLDJSON       = "application/ld+json"
	contentTypeHTML         = "text/html"
	contentTypeXHTML        = "application/xhtml+xml"

	jsonLDContextRel = "http://www.w3.org/ns/json-ld#context"

	acceptHeader = contentTypeActivityJSON + ", " +
		contentTypeLDJSON + `; profile="https://www.w3.org/ns/activitystreams", ` +
		`application/json; q=0.5, text/html; q=0.1, application/xhtml+xml; q=0.1`
)

// UserAgent composes the User-Agent header value from the given policy.
// software, when set, is prepended to the runtime identifier; uri, when set,
// is appended as "(+<uri>)".
func UserAgent(software, uri string) string {
	agent := "Meridian/" + version

	if software != "" {
		agent = software + " " + agent
	}

	if uri != "" {
		agent += " (+" + uri + ")"
	}

	return agent
}

// Option sets a loader option.
type Option func(*Loader)

// WithUserAgent sets the User-Agent policy for outgoing requests.
func WithUserAgent(software, uri string) Option {
	return func(l *Loader) {
		l.userAgent = UserAgent(software, uri)
	}
}

// WithAllowPrivateAddress disables the private-address guard. Intended for tests.
func WithAllowPrivateAddress(allow bool) Option {
	return func(l *Loader) {
		l.allowPrivate = allow
	}
}

// Loader fetches remote JSON-LD documents.
type Loader struct {
	client       *http.Client
	userAgent    string
	allowPrivate bool
	preloaded    map[string]*ld.RemoteDocument
}

// New returns a new document loader that uses the given HTTP client. The
// client's redirect policy is replaced so that every redirect target passes
// the private-address guard.
func New(client *http.Client, opts ...Option) *Loader {
	l := &Loader{
		userAgent: UserAgent("", ""),
		preloaded: preloadedDocuments(),
	}

	for _, opt := range opts {
		opt(l)
	}

	c := *client

	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}

		return l.checkURL(req.URL)
	}

	l.client = &c

	return l
}

// LoadDocument implements json-gold's ld.DocumentLoader.
func (l *Loader) LoadDocument(u string) (*ld.RemoteDocument, error) {
	return l.Load(context.Background(), u)
}

// Load fetches the document at the given URL. Preloaded contexts are returned
// from memory. The URL must be HTTP(S) and, unless the loader was created with
// WithAllowPrivateAddress, must not point at a private or loopback address;
// the same guard applies to every redirect target and discovered alternate.
func (l *Loader) Load(ctx context.Context, u string) (*ld.RemoteDocument, error) {
	if doc, ok := l.preloaded[u]; ok {
		return doc, nil
	}

	parsed, err := url.Parse(u)
	if err != nil {
		return nil, merrors.Newf(merrors.KindURL, "invalid URL [%s]: %s", u, err)
	}

	if err := l.checkURL(parsed); err != nil {
		return nil, err
	}

	return l.fetch(ctx, parsed, 0)
}

func (l *Loader) fetch(ctx context.Context, u *url.URL, hop int) (*ld.RemoteDocument, error) {
	if hop > maxAlternateHops {
		return nil, fmt.Errorf("no JSON document found at [%s] after %d alternate links", u, hop)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request for [%s]: %w", u, err)
	}

	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("User-Agent", l.userAgent)

	resp, err := l.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, merrors.New(merrors.KindCancelled, ctx.Err())
		}

		return nil, merrors.NewTransient(fmt.Errorf("get [%s]: %w", u, err))
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			logfields.CloseResponseBodyError(logger, err)
		}
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, merrors.NewFetch(u.String(), resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	// The client followed any redirects, so the response URL is the base for
	// relative alternate links and the DocumentURL of the result.
	responseURL := resp.Request.URL

	mediaType := responseMediaType(resp)

	if isJSONMediaType(mediaType) {
		return l.document(resp, responseURL, mediaType)
	}

	if alt, ok := headerAlternate(resp.Header, responseURL); ok {
		logger.Debug("Following alternate link from response header",
			logfields.WithRequestURL(u), logfields.WithCurrentIRI(alt))

		return l.fetchAlternate(ctx, alt, hop)
	}

	if mediaType == contentTypeHTML || mediaType == contentTypeXHTML {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, merrors.NewTransient(fmt.Errorf("read response from [%s]: %w", u, err))
		}

		if alt, ok := htmlAlternate(body, responseURL); ok {
			logger.Debug("Following alternate link from HTML document",
				logfields.WithRequestURL(u), logfields.WithCurrentIRI(alt))

			return l.fetchAlternate(ctx, alt, hop)
		}

		return nil, merrors.Newf(merrors.KindParse,
			"no alternate JSON document linked from the HTML document at [%s]", u)
	}

	// Some servers mislabel their JSON responses. Fall back to parsing the
	// body before giving up on the content type.
	return l.document(resp, responseURL, mediaType)
}

func (l *Loader) fetchAlternate(ctx context.Context, alt *url.URL, hop int) (*ld.RemoteDocument, error) {
	if err := l.checkURL(alt); err != nil {
		return nil, err
	}

	return l.fetch(ctx, alt, hop+1)
}

func (l *Loader) document(resp *http.Response, responseURL *url.URL, mediaType string) (*ld.RemoteDocument, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, merrors.NewTransient(fmt.Errorf("read response from [%s]: %w", responseURL, err))
	}

	var document interface{}

	if err := json.Unmarshal(body, &document); err != nil {
		return nil, merrors.Newf(merrors.KindParse,
			"response from [%s] with content type [%s] is not JSON: %s", responseURL, mediaType, err)
	}

	doc := &ld.RemoteDocument{
		DocumentURL: responseURL.String(),
		Document:    document,
	}

	// Per the JSON-LD API, a context link applies only to responses that are
	// not themselves JSON-LD.
	if mediaType != contentTypeLDJSON {
		if contextURL, ok := headerContextURL(resp.Header, responseURL); ok {
			doc.ContextURL = contextURL
		}
	}

	return doc, nil
}

// checkURL rejects non-HTTP(S) schemes and, unless disabled, hosts that
// point at loopback, private, link-local or unspecified addresses.
func (l *Loader) checkURL(u *url.URL) error {
	if u.Scheme != "http" && u.Scheme != "https" {
		return merrors.Newf(merrors.KindURL, "URL [%s] has an unsupported scheme [%s]", u, u.Scheme)
	}

	if l.allowPrivate {
		return nil
	}

	host := u.Hostname()

	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return merrors.Newf(merrors.KindURL, "URL [%s] points at a private address", u)
	}

	if ip := net.ParseIP(strings.Trim(host, "[]")); ip != nil && isPrivateIP(ip) {
		return merrors.Newf(merrors.KindURL, "URL [%s] points at a private address", u)
	}

	return nil
}

func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified()
}

func responseMediaType(resp *http.Response) string {
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		return ""
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}

	return mediaType
}

func isJSONMediaType(mediaType string) bool {
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

func preloadedDocuments() map[string]*ld.RemoteDocument {
	docs := make(map[string]*ld.RemoteDocument)

	for _, doc := range ldcontext.MustGetAll() {
		var content interface{}

		if err := json.Unmarshal(doc.Content, &content); err != nil {
			panic(fmt.Errorf("unmarshal embedded context [%s]: %w", doc.URL, err))
		}

		docs[doc.URL] = &ld.RemoteDocument{
			DocumentURL: doc.URL,
			Document:    content,
		}
	}

	return docs
}
