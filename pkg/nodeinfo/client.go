/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package nodeinfo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	logfields "github.com/meridianfed/meridian/internal/pkg/log"
	merrors "github.com/meridianfed/meridian/pkg/errors"
)

// ParseMode determines how strictly a retrieved NodeInfo document is validated.
type ParseMode = string

const (
	// ParseStrict rejects documents that do not conform to the NodeInfo 2.x schema.
	ParseStrict ParseMode = "strict"

	// ParseBestEffort replaces missing or malformed fields with reasonable defaults.
	ParseBestEffort ParseMode = "best-effort"

	// ParseNone performs no schema validation. The document is returned as fetched.
	ParseNone ParseMode = "none"
)

// httpClient represents HTTP client.
type httpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client retrieves NodeInfo documents from remote servers.
type Client struct {
	httpClient httpClient
}

// NewClient returns a new NodeInfo client.
func NewClient(opts ...ClientOpt) *Client {
	client := &Client{
		httpClient: http.DefaultClient,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// ClientOpt sets a client option.
type ClientOpt func(c *Client)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(client httpClient) ClientOpt {
	return func(c *Client) {
		c.httpClient = client
	}
}

// GetNodeInfo retrieves the NodeInfo document published by the given host. The
// host may be a host name or a URL. Discovery follows the well-known document
// and selects the highest supported schema version (2.1 is preferred over 2.0).
// The document is validated according to parseMode, and the returned NodeInfo
// carries the document exactly as fetched in its Raw field.
func (c *Client) GetNodeInfo(ctx context.Context, host string, parseMode ParseMode) (*NodeInfo, error) {
	nodeInfoURL, err := c.discover(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("discover NodeInfo URL for host [%s]: %w", host, err)
	}

	logger.Debug("Resolved NodeInfo URL", logfields.WithDomain(host),
		logfields.WithRequestURLString(nodeInfoURL))

	respBytes, err := c.get(ctx, nodeInfoURL)
	if err != nil {
		return nil, fmt.Errorf("get NodeInfo document (URL: %s): %w", nodeInfoURL, err)
	}

	nodeInfo, err := parseNodeInfo(respBytes, parseMode)
	if err != nil {
		return nil, fmt.Errorf("parse NodeInfo document (URL: %s): %w", nodeInfoURL, err)
	}

	return nodeInfo, nil
}

// discover retrieves the discovery document at /.well-known/nodeinfo and
// returns the link with the highest supported schema version.
func (c *Client) discover(ctx context.Context, host string) (string, error) {
	wellKnownURL, err := wellKnownNodeInfoURL(host)
	if err != nil {
		return "", err
	}

	respBytes, err := c.get(ctx, wellKnownURL)
	if err != nil {
		return "", err
	}

	wellKnownResp := &WellKnownResponse{}

	if err := json.Unmarshal(respBytes, wellKnownResp); err != nil {
		return "", merrors.Newf(merrors.KindParse, "unmarshal discovery document from [%s]: %s",
			wellKnownURL, err)
	}

	for _, schema := range []string{nodeInfoV2_1Schema, nodeInfoV2_0Schema} {
		for _, link := range wellKnownResp.Links {
			if link.Rel == schema && link.Href != "" {
				return link.Href, nil
			}
		}
	}

	return "", merrors.ErrContentNotFound
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, merrors.NewTransientf("get response (URL: %s): %w", rawURL, err)
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			logfields.CloseResponseBodyError(logger, err)
		}
	}()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, merrors.NewTransientf("read response body (URL: %s): %w", rawURL, err)
	}

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusNotFound {
			return nil, merrors.ErrContentNotFound
		}

		e := merrors.NewFetch(rawURL, resp.StatusCode, string(respBytes))

		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, merrors.NewTransient(e)
		}

		return nil, e
	}

	return respBytes, nil
}

// parseNodeInfo maps the given document to a NodeInfo struct. Syntax errors
// fail in every parse mode; fields of the wrong type fail only in strict mode.
func parseNodeInfo(data []byte, parseMode ParseMode) (*NodeInfo, error) {
	nodeInfo := &NodeInfo{}

	err := json.Unmarshal(data, nodeInfo)
	if err != nil {
		var typeErr *json.UnmarshalTypeError

		if !errors.As(err, &typeErr) || parseMode == ParseStrict {
			return nil, merrors.Newf(merrors.KindParse, "unmarshal NodeInfo document: %s", err)
		}
	}

	nodeInfo.Raw = data

	switch parseMode {
	case ParseNone:
	case ParseBestEffort:
		nodeInfo.applyDefaults()
	default:
		if err := nodeInfo.Validate(); err != nil {
			return nil, merrors.New(merrors.KindParse, fmt.Errorf("invalid NodeInfo document: %w", err))
		}
	}

	return nodeInfo, nil
}

func wellKnownNodeInfoURL(host string) (string, error) {
	if strings.Contains(host, "://") {
		u, err := url.Parse(host)
		if err != nil {
			return "", merrors.Newf(merrors.KindURL, "parse host [%s]: %s", host, err)
		}

		if u.Scheme != "http" && u.Scheme != "https" {
			return "", merrors.Newf(merrors.KindURL, "unsupported scheme [%s] for host [%s]", u.Scheme, host)
		}

		return fmt.Sprintf("%s://%s%s", u.Scheme, u.Host, WellKnownPath), nil
	}

	return fmt.Sprintf("https://%s%s", host, WellKnownPath), nil
}
