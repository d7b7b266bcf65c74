/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package client implements a WebFinger client as described in RFC 7033.
package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bluele/gcache"
	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/meridianfed/meridian/internal/pkg/log"
	merrors "github.com/meridianfed/meridian/pkg/errors"
	"github.com/meridianfed/meridian/pkg/webfinger/model"
)

var logger = log.New("webfinger_client")

const (
	defaultCacheLifetime = 300 * time.Second // five minutes
	defaultCacheSize     = 100

	selfRelation = "self"

	activityJSONType   = "application/activity+json"
	activityLDJSONType = `application/ld+json; profile="https://www.w3.org/ns/activitystreams"`

	acceptHeader = "application/jrd+json, application/json"
)

// httpClient represents HTTP client.
type httpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client implements a WebFinger client.
type Client struct {
	httpClient httpClient

	cacheLifetime time.Duration
	cacheSize     int
	allowPrivate  bool

	resourceCache gcache.Cache
}

// New creates a new WebFinger client.
func New(opts ...Option) *Client {
	client := &Client{
		httpClient:    &http.Client{},
		cacheLifetime: defaultCacheLifetime,
		cacheSize:     defaultCacheSize,
	}

	for _, opt := range opts {
		opt(client)
	}

	client.resourceCache = gcache.New(client.cacheSize).
		Expiration(client.cacheLifetime).
		LoaderFunc(func(key interface{}) (interface{}, error) {
			resource := key.(string) //nolint:errcheck,forcetypeassert

			r, err := client.resolveResource(resource)
			if err != nil {
				return nil, err
			}

			logger.Debug("Loaded WebFinger resource into cache",
				logfields.WithResource(resource), logfields.WithMetadata(r))

			return r, nil
		}).Build()

	return client
}

// ResolveResource resolves the given resource at its host and returns the JRD.
// The resource is either an acct: URI, an HTTP(S) URL, or a handle of the form
// @user@host, which is normalised to an acct: URI. Responses are cached.
// model.ErrResourceNotFound is returned if the host does not know the resource.
func (c *Client) ResolveResource(resource string) (*model.Resp, error) {
	normalized, _, err := normalizeResource(resource)
	if err != nil {
		return nil, err
	}

	r, err := c.resourceCache.Get(normalized)
	if err != nil {
		return nil, fmt.Errorf("get WebFinger resource [%s]: %w", normalized, err)
	}

	return r.(*model.Resp), nil //nolint:errcheck,forcetypeassert
}

// ResolveActorURL resolves the given handle to the URL of its ActivityPub actor, i.e. the
// href of the JRD link with rel="self" and an ActivityPub content type.
func (c *Client) ResolveActorURL(resource string) (*url.URL, error) {
	jrd, err := c.ResolveResource(resource)
	if err != nil {
		return nil, fmt.Errorf("resolve WebFinger resource [%s]: %w", resource, err)
	}

	var u string

	for _, link := range jrd.Links {
		if link.Rel == selfRelation && (link.Type == activityJSONType || link.Type == activityLDJSONType) {
			u = link.Href

			break
		}
	}

	if u == "" {
		return nil, merrors.ErrContentNotFound
	}

	actorURL, err := url.Parse(u)
	if err != nil {
		return nil, fmt.Errorf("parse actor URL [%s]: %w", u, err)
	}

	return actorURL, nil
}

func (c *Client) resolveResource(resource string) (*model.Resp, error) {
	_, endpoint, err := normalizeResource(resource)
	if err != nil {
		return nil, err
	}

	if err := c.checkHost(endpoint); err != nil {
		return nil, err
	}

	query := endpoint.Query()
	query.Set("resource", resource)
	endpoint.RawQuery = query.Encode()

	webFingerURL := endpoint.String()

	req, err := http.NewRequest(http.MethodGet, webFingerURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request for WebFinger URL [%s]: %w", webFingerURL, err)
	}

	req.Header.Set("Accept", acceptHeader)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, merrors.NewTransientf("get response (URL: %s): %w", webFingerURL, err)
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			logfields.CloseResponseBodyError(logger, err)
		}
	}()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, merrors.NewTransientf("read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusNotFound {
			return nil, model.ErrResourceNotFound
		}

		e := merrors.NewFetch(webFingerURL, resp.StatusCode, string(respBytes))

		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, merrors.NewTransient(e)
		}

		return nil, e
	}

	jrd := &model.Resp{}

	if err := json.Unmarshal(respBytes, jrd); err != nil {
		return nil, merrors.Newf(merrors.KindParse,
			"unmarshal WebFinger response from [%s]: %s", webFingerURL, err)
	}

	if err := validateResp(resource, jrd); err != nil {
		return nil, merrors.New(merrors.KindParse,
			fmt.Errorf("invalid WebFinger response from [%s]: %w", webFingerURL, err))
	}

	return jrd, nil
}

// checkHost rejects hosts that point at loopback, private, link-local or unspecified
// addresses, unless the client was created with WithAllowPrivateAddress.
func (c *Client) checkHost(endpoint *url.URL) error {
	if c.allowPrivate {
		return nil
	}

	host := endpoint.Hostname()

	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return merrors.Newf(merrors.KindURL, "WebFinger host [%s] is a private address", host)
	}

	if ip := net.ParseIP(strings.Trim(host, "[]")); ip != nil && isPrivateIP(ip) {
		return merrors.Newf(merrors.KindURL, "WebFinger host [%s] is a private address", host)
	}

	return nil
}

// normalizeResource converts the given resource to its canonical form and returns it,
// along with the URL of the WebFinger endpoint at which it may be resolved.
func normalizeResource(resource string) (string, *url.URL, error) {
	if strings.Contains(resource, "://") {
		u, err := url.Parse(resource)
		if err != nil {
			return "", nil, merrors.Newf(merrors.KindURL, "parse resource [%s]: %s", resource, err)
		}

		if u.Scheme != "http" && u.Scheme != "https" {
			return "", nil, merrors.Newf(merrors.KindURL,
				"resource [%s] has an unsupported scheme [%s]", resource, u.Scheme)
		}

		return resource, endpointURL(u.Scheme, u.Host), nil
	}

	acct := strings.TrimPrefix(strings.TrimPrefix(resource, "acct:"), "@")

	parts := strings.SplitN(acct, "@", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" || strings.Contains(parts[1], "@") {
		return "", nil, merrors.Newf(merrors.KindURL, "invalid WebFinger resource [%s]", resource)
	}

	return "acct:" + acct, endpointURL("https", parts[1]), nil
}

// validateResp ensures that the JRD subject refers to the requested resource (the
// scheme is ignored in the comparison) and that each link has a relation type.
func validateResp(resource string, jrd *model.Resp) error {
	if jrd.Subject != "" && trimScheme(jrd.Subject) != trimScheme(resource) {
		return fmt.Errorf("subject [%s] does not match resource [%s]", jrd.Subject, resource)
	}

	for i, link := range jrd.Links {
		if link.Rel == "" {
			return fmt.Errorf("link [%d] has no rel", i)
		}
	}

	return nil
}

func trimScheme(resource string) string {
	i := strings.Index(resource, ":")
	if i == -1 {
		return resource
	}

	return strings.TrimPrefix(resource[i+1:], "//")
}

func endpointURL(scheme, host string) *url.URL {
	return &url.URL{Scheme: scheme, Host: host, Path: "/.well-known/webfinger"}
}

func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified()
}

// Option is a WebFinger client instance option.
type Option func(opts *Client)

// WithHTTPClient option is for custom http client.
func WithHTTPClient(httpClient httpClient) Option {
	return func(opts *Client) {
		opts.httpClient = httpClient
	}
}

// WithCacheLifetime option defines the lifetime of an object in the cache.
func WithCacheLifetime(lifetime time.Duration) Option {
	return func(opts *Client) {
		opts.cacheLifetime = lifetime
	}
}

// WithCacheSize option defines the cache size.
func WithCacheSize(size int) Option {
	return func(opts *Client) {
		opts.cacheSize = size
	}
}

// WithAllowPrivateAddress option disables the private-address guard on WebFinger
// hosts. Intended for tests.
func WithAllowPrivateAddress(allow bool) Option {
	return func(opts *Client) {
		opts.allowPrivate = allow
	}
}
