/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package docloader

import (
	"bytes"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// linkValue is a single link-value of an HTTP Link header.
type linkValue struct {
	target string
	params map[string]string
}

// headerAlternate returns the first Link header value with rel="alternate"
// and an ActivityPub media type. Relative targets are resolved against base.
func headerAlternate(header http.Header, base *url.URL) (*url.URL, bool) {
	for _, link := range parseLinkHeaders(header.Values("Link")) {
		if !strings.EqualFold(link.params["rel"], "alternate") {
			continue
		}

		if !isActivityMediaType(link.params["type"]) {
			continue
		}

		if alt, err := base.Parse(link.target); err == nil {
			return alt, true
		}
	}

	return nil, false
}

// headerContextURL returns the target of the Link header value that carries
// the JSON-LD context relation, if any.
func headerContextURL(header http.Header, base *url.URL) (string, bool) {
	for _, link := range parseLinkHeaders(header.Values("Link")) {
		if link.params["rel"] != jsonLDContextRel {
			continue
		}

		if contextURL, err := base.Parse(link.target); err == nil {
			return contextURL.String(), true
		}
	}

	return "", false
}

// htmlAlternate scans an HTML document for an alternate link with an
// ActivityPub media type. A matching <link> element wins over a matching <a>
// element regardless of document order.
func htmlAlternate(body []byte, base *url.URL) (*url.URL, bool) {
	var anchorMatch *url.URL

	tokenizer := html.NewTokenizer(bytes.NewReader(body))

	for {
		tokenType := tokenizer.Next()
		if tokenType == html.ErrorToken {
			break
		}

		if tokenType != html.StartTagToken && tokenType != html.SelfClosingTagToken {
			continue
		}

		name, hasAttr := tokenizer.TagName()

		tag := string(name)
		if tag != "link" && tag != "a" {
			continue
		}

		var rel, mediaType, href string

		for hasAttr {
			var key, value []byte

			key, value, hasAttr = tokenizer.TagAttr()

			switch string(key) {
			case "rel":
				rel = string(value)
			case "type":
				mediaType = string(value)
			case "href":
				href = string(value)
			}
		}

		if !relContainsAlternate(rel) || !isActivityMediaType(mediaType) || href == "" {
			continue
		}

		alt, err := base.Parse(href)
		if err != nil {
			continue
		}

		if tag == "link" {
			return alt, true
		}

		if anchorMatch == nil {
			anchorMatch = alt
		}
	}

	if anchorMatch != nil {
		return anchorMatch, true
	}

	return nil, false
}

func relContainsAlternate(rel string) bool {
	for _, r := range strings.Fields(rel) {
		if strings.EqualFold(r, "alternate") {
			return true
		}
	}

	return false
}

// isActivityMediaType returns true for application/activity+json and for
// application/ld+json (with or without the activitystreams profile).
func isActivityMediaType(value string) bool {
	if value == "" {
		return false
	}

	mediaType, _, err := mime.ParseMediaType(value)
	if err != nil {
		return false
	}

	return mediaType == contentTypeActivityJSON || mediaType == contentTypeLDJSON
}

// parseLinkHeaders parses Link header values per the RFC 8288 grammar:
// comma-separated link-values, each "<target>" followed by ;-separated
// parameters whose values may be quoted (with backslash escapes).
func parseLinkHeaders(values []string) []linkValue {
	var links []linkValue

	for _, value := range values {
		for _, part := range splitLinkValues(value) {
			if link, ok := parseLinkValue(part); ok {
				links = append(links, link)
			}
		}
	}

	return links
}

// splitLinkValues splits a Link header on the commas that separate
// link-values, ignoring commas inside <...> or quoted strings.
func splitLinkValues(s string) []string {
	var (
		parts   []string
		start   int
		inAngle bool
		inQuote bool
	)

	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if inQuote {
				i++
			}
		case '"':
			if !inAngle {
				inQuote = !inQuote
			}
		case '<':
			if !inQuote {
				inAngle = true
			}
		case '>':
			if !inQuote {
				inAngle = false
			}
		case ',':
			if !inAngle && !inQuote {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}

	return append(parts, s[start:])
}

func parseLinkValue(s string) (linkValue, bool) {
	s = strings.TrimSpace(s)

	if !strings.HasPrefix(s, "<") {
		return linkValue{}, false
	}

	end := strings.IndexByte(s, '>')
	if end < 0 {
		return linkValue{}, false
	}

	link := linkValue{
		target: s[1:end],
		params: make(map[string]string),
	}

	for _, param := range splitOutsideQuotes(s[end+1:], ';') {
		param = strings.TrimSpace(param)
		if param == "" {
			continue
		}

		name, value, ok := strings.Cut(param, "=")
		if !ok {
			continue
		}

		link.params[strings.ToLower(strings.TrimSpace(name))] = unquote(strings.TrimSpace(value))
	}

	return link, true
}

func splitOutsideQuotes(s string, sep byte) []string {
	var (
		parts   []string
		start   int
		inQuote bool
	)

	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if inQuote {
				i++
			}
		case '"':
			inQuote = !inQuote
		case sep:
			if !inQuote {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}

	return append(parts, s[start:])
}

func unquote(s string) string {
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return s
	}

	s = s[1 : len(s)-1]

	if !strings.Contains(s, `\`) {
		return s
	}

	var b strings.Builder

	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}

		b.WriteByte(s[i])
	}

	return b.String()
}
