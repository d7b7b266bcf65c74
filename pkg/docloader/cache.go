/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package docloader

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"time"

	"github.com/piprate/json-gold/ld"

	"github.com/meridianfed/meridian/internal/pkg/ldcontext"
	logfields "github.com/meridianfed/meridian/internal/pkg/log"
	"github.com/meridianfed/meridian/pkg/store/spi"
	"github.com/meridianfed/meridian/pkg/uritemplate"
)

// MaxCacheTTL caps the TTL of every cache rule.
const MaxCacheTTL = 30 * 24 * time.Hour

// DocumentLoader loads remote JSON-LD documents.
type DocumentLoader interface {
	Load(ctx context.Context, u string) (*ld.RemoteDocument, error)
}

// CacheRule associates a URL pattern with the length of time matching
// documents stay cached. Rules are evaluated in declaration order and the
// first match wins; a URL that matches no rule is not cached.
type CacheRule struct {
	matches func(u string) bool
	ttl     time.Duration
}

// MatchExact returns a rule that applies only to the given URL.
func MatchExact(u string, ttl time.Duration) CacheRule {
	return CacheRule{
		matches: func(target string) bool { return target == u },
		ttl:     capTTL(ttl),
	}
}

// MatchURL returns a rule that applies only to the given URL.
func MatchURL(u *url.URL, ttl time.Duration) CacheRule {
	return MatchExact(u.String(), ttl)
}

// MatchTemplate returns a rule that applies to every URL matched by the given
// URI template.
func MatchTemplate(tmpl *uritemplate.Template, ttl time.Duration) CacheRule {
	return CacheRule{
		matches: func(target string) bool {
			_, ok := tmpl.Match(target)

			return ok
		},
		ttl: capTTL(ttl),
	}
}

// Matches reports whether the rule applies to the given URL.
func (r CacheRule) Matches(u string) bool {
	return r.matches(u)
}

func capTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 || ttl > MaxCacheTTL {
		return MaxCacheTTL
	}

	return ttl
}

// CacheOption sets a CachingLoader option.
type CacheOption func(*CachingLoader)

// WithKeyPrefix overrides the key prefix under which documents are cached.
func WithKeyPrefix(prefix spi.Key) CacheOption {
	return func(c *CachingLoader) {
		c.prefix = prefix
	}
}

// CachingLoader caches loaded documents in a key-value store according to a
// set of rules. A failure of the store is never surfaced to the caller: reads
// fall back to the wrapped loader and writes are logged and dropped.
// Preloaded contexts bypass the cache entirely since the wrapped loader
// serves them from memory.
type CachingLoader struct {
	loader DocumentLoader
	store  spi.Store
	rules  []CacheRule
	prefix spi.Key
	skip   map[string]struct{}
}

// NewCachingLoader wraps the given loader with a document cache backed by the
// given store.
func NewCachingLoader(store spi.Store, loader DocumentLoader, rules []CacheRule, opts ...CacheOption) *CachingLoader {
	skip := make(map[string]struct{})

	for _, doc := range ldcontext.MustGetAll() {
		skip[doc.URL] = struct{}{}
	}

	c := &CachingLoader{
		loader: loader,
		store:  store,
		rules:  rules,
		prefix: spi.DefaultPrefix,
		skip:   skip,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// LoadDocument implements json-gold's ld.DocumentLoader.
func (c *CachingLoader) LoadDocument(u string) (*ld.RemoteDocument, error) {
	return c.Load(context.Background(), u)
}

// Load returns the cached document for the given URL if one exists, otherwise
// it loads the document through the wrapped loader and, if a cache rule
// matches, stores it with the rule's TTL.
func (c *CachingLoader) Load(ctx context.Context, u string) (*ld.RemoteDocument, error) {
	if _, ok := c.skip[u]; ok {
		return c.loader.Load(ctx, u)
	}

	rule, ok := c.rule(u)
	if !ok {
		return c.loader.Load(ctx, u)
	}

	key := spi.ForRemoteDocument(c.prefix, u)

	if doc, ok := c.get(key); ok {
		logger.Debug("Returning cached document", logfields.WithRequestURLString(u))

		return doc, nil
	}

	doc, err := c.loader.Load(ctx, u)
	if err != nil {
		return nil, err
	}

	c.put(key, doc, rule.ttl)

	return doc, nil
}

func (c *CachingLoader) rule(u string) (CacheRule, bool) {
	for _, rule := range c.rules {
		if rule.matches(u) {
			return rule, true
		}
	}

	return CacheRule{}, false
}

// cachedDocument is the storage form of a loaded document.
type cachedDocument struct {
	DocumentURL string          `json:"documentUrl"`
	ContextURL  string          `json:"contextUrl,omitempty"`
	Document    json.RawMessage `json:"document"`
}

func (c *CachingLoader) get(key spi.Key) (*ld.RemoteDocument, bool) {
	value, err := c.store.Get(key)
	if err != nil {
		if !errors.Is(err, spi.ErrDataNotFound) {
			logger.Warn("Error reading cached document. The document will be loaded from the source.",
				logfields.WithKVKey(key), logfields.WithError(err))
		}

		return nil, false
	}

	var cached cachedDocument

	if err := json.Unmarshal(value, &cached); err != nil {
		logger.Warn("Error unmarshalling cached document. The document will be loaded from the source.",
			logfields.WithKVKey(key), logfields.WithError(err))

		return nil, false
	}

	var document interface{}

	if err := json.Unmarshal(cached.Document, &document); err != nil {
		logger.Warn("Error unmarshalling cached document. The document will be loaded from the source.",
			logfields.WithKVKey(key), logfields.WithError(err))

		return nil, false
	}

	return &ld.RemoteDocument{
		DocumentURL: cached.DocumentURL,
		ContextURL:  cached.ContextURL,
		Document:    document,
	}, true
}

func (c *CachingLoader) put(key spi.Key, doc *ld.RemoteDocument, ttl time.Duration) {
	documentBytes, err := json.Marshal(doc.Document)
	if err != nil {
		logger.Warn("Error marshalling document for caching", logfields.WithKVKey(key), logfields.WithError(err))

		return
	}

	cachedBytes, err := json.Marshal(cachedDocument{
		DocumentURL: doc.DocumentURL,
		ContextURL:  doc.ContextURL,
		Document:    documentBytes,
	})
	if err != nil {
		logger.Warn("Error marshalling document for caching", logfields.WithKVKey(key), logfields.WithError(err))

		return
	}

	if err := c.store.Set(key, cachedBytes, spi.WithTTL(ttl)); err != nil {
		logger.Warn("Error caching document", logfields.WithKVKey(key), logfields.WithError(err))
	}
}
