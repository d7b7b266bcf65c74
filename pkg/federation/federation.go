/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package federation assembles the pieces of an ActivityPub service - URI
// routing, HTTP signature suites, the inbox and delivery pipelines, WebFinger
// and NodeInfo - behind a single immutable Federation object. A Builder
// accumulates route templates, dispatchers and activity listeners; Build
// wires them to a key-value store and a message queue and returns the
// Federation, which is the only object the application needs in order to
// serve and send activities.
package federation

import (
	"crypto"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/piprate/json-gold/ld"
	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/meridianfed/meridian/internal/pkg/log"
	"github.com/meridianfed/meridian/pkg/client"
	"github.com/meridianfed/meridian/pkg/client/transport"
	"github.com/meridianfed/meridian/pkg/docloader"
	merrors "github.com/meridianfed/meridian/pkg/errors"
	"github.com/meridianfed/meridian/pkg/httpsig"
	"github.com/meridianfed/meridian/pkg/httpsig/doubleknock"
	"github.com/meridianfed/meridian/pkg/lifecycle"
	"github.com/meridianfed/meridian/pkg/nodeinfo"
	"github.com/meridianfed/meridian/pkg/observability/metrics"
	"github.com/meridianfed/meridian/pkg/observability/metrics/noop"
	"github.com/meridianfed/meridian/pkg/pubsub/mempubsub"
	"github.com/meridianfed/meridian/pkg/pubsub/redelivery"
	pubsubspi "github.com/meridianfed/meridian/pkg/pubsub/spi"
	"github.com/meridianfed/meridian/pkg/restapi/common"
	"github.com/meridianfed/meridian/pkg/service/inbox"
	"github.com/meridianfed/meridian/pkg/service/outbox"
	service "github.com/meridianfed/meridian/pkg/service/spi"
	"github.com/meridianfed/meridian/pkg/store/publickey"
	store "github.com/meridianfed/meridian/pkg/store/spi"
	"github.com/meridianfed/meridian/pkg/uritemplate"
	"github.com/meridianfed/meridian/pkg/vocab"
	wfclient "github.com/meridianfed/meridian/pkg/webfinger/client"
)

const (
	loggerModule = "federation"

	defaultServiceName = "meridian"

	defaultInboxTopic  = "meridian.inbox"
	defaultOutboxTopic = "meridian.outbox"

	defaultNodeInfoRefreshInterval = 15 * time.Second

	nodeInfoTemplate = "/nodeinfo/{version}"
	versionVar       = "version"
)

// ActorDispatcher returns the actor document for a local handle. The
// framework does not persist actors; the application supplies a dispatcher
// that reads from its own storage. A handle that does not exist is reported
// by returning errors.ErrContentNotFound.
type ActorDispatcher func(reqCtx *RequestContext, handle string) (*vocab.ActorType, error)

// ObjectDispatcher returns the object selected by the variables captured from
// an object route.
type ObjectDispatcher func(reqCtx *RequestContext, vars map[string]string) (*vocab.ObjectType, error)

// CollectionPage is one page of a collection, in the application's paging
// order. The cursors are opaque to the framework: they name the pages that
// follow and precede this one, and are empty at the ends of the collection.
type CollectionPage struct {
	Items      []*vocab.ObjectProperty
	NextCursor string
	PrevCursor string
}

// CollectionDispatcher serves a collection route. GetItems is required; the
// remaining functions refine the collection index and may be nil.
type CollectionDispatcher struct {
	// GetItems returns the page of the collection at the given cursor. An
	// empty cursor selects the first page.
	GetItems func(reqCtx *RequestContext, handle, cursor string) (*CollectionPage, error)

	// Count returns the total number of items in the collection. If nil then
	// the rendered collection carries no totalItems.
	Count func(reqCtx *RequestContext, handle string) (int, error)

	// FirstCursor returns the cursor of the first page. If nil then the first
	// page link carries no cursor.
	FirstCursor func(reqCtx *RequestContext, handle string) (string, error)

	// LastCursor returns the cursor of the last page. If nil then the
	// rendered collection carries no last page link.
	LastCursor func(reqCtx *RequestContext, handle string) (string, error)

	// Ordered selects an OrderedCollection rendition.
	Ordered bool
}

// AuthorizePredicate decides whether a request may read the resource of the
// named route. Returning false with a nil error invokes the unauthorized
// handler. The request's signature, if any, is available through the request
// context.
type AuthorizePredicate func(reqCtx *RequestContext, routeName string, vars map[string]string) (bool, error)

// Config holds the configuration of a federation.
type Config struct {
	// ServiceName names the federation in logs.
	ServiceName string

	// Origin is the canonical origin of this server. URLs built by a Context
	// always carry the origin's scheme and host, and Handle only serves
	// requests whose Host header matches it.
	Origin *url.URL

	// StorePrefix is the key prefix under which framework data (cached
	// documents, idempotence keys, remembered signature suites) lives in the
	// key-value store.
	StorePrefix store.Key

	// PrivateKey signs outgoing requests and PublicKeyID identifies the key
	// to the peers that verify them. Both are required unless
	// SkipVerification is set.
	PrivateKey  crypto.PrivateKey
	PublicKeyID *url.URL

	// FirstKnock is the signature suite offered first to an origin whose
	// accepted suite is not yet known.
	FirstKnock httpsig.Spec

	// SignatureTimeWindow is the maximum allowed age (and clock skew) of the
	// signature on an incoming request.
	SignatureTimeWindow time.Duration

	// SkipVerification disables HTTP signatures entirely: incoming requests
	// are not verified and outgoing requests are not signed. Only for tests.
	SkipVerification bool

	// InboxTopic and OutboxTopic name the queue topics that carry incoming
	// and outgoing activities.
	InboxTopic  string
	OutboxTopic string

	// IdempotenceTTL is the time that a received activity is remembered for
	// the purpose of collapsing duplicate deliveries.
	IdempotenceTTL time.Duration

	// InboxRetryPolicy and OutboxRetryPolicy govern redelivery of activities
	// whose processing or delivery failed with a transient error.
	InboxRetryPolicy  *redelivery.Policy
	OutboxRetryPolicy *redelivery.Policy

	// PreferSharedInbox delivers an activity once to a recipient server's
	// shared inbox instead of once per actor inbox, when the recipient
	// declares one.
	PreferSharedInbox bool

	MaxRecipients         int
	MaxConcurrentRequests int

	// CacheSize and CacheExpiration tune the actor, public key and WebFinger
	// caches.
	CacheSize       int
	CacheExpiration time.Duration

	// CacheRules select which remote JSON-LD documents are cached in the
	// key-value store, and for how long. With no rules only the preloaded
	// contexts are served from cache.
	CacheRules []docloader.CacheRule

	// SoftwareName and SoftwareURI identify this software in the User-Agent
	// header of document loader requests.
	SoftwareName string
	SoftwareURI  string

	// NodeInfoRefreshInterval is the interval at which the NodeInfo usage
	// statistics are refreshed.
	NodeInfoRefreshInterval time.Duration

	// AllowPrivateAddresses disables the private network guard of the
	// document loader and the WebFinger client. Only for tests.
	AllowPrivateAddresses bool
}

// BuildParams supplies the external resources of a federation.
type BuildParams struct {
	// KV is the key-value store that holds framework data. Required.
	KV store.Store

	// Queue carries inbox and delivery messages. If nil then an in-process
	// queue is created and owned by the federation. An in-process queue does
	// not survive a restart and does not distribute work across a cluster.
	Queue pubsubspi.PubSub

	// HTTPClient sends all outgoing requests. Defaults to http.DefaultClient.
	HTTPClient *http.Client

	// Metrics receives instrumentation. Defaults to a no-op provider.
	Metrics metrics.Metrics
}

type routeKind int

const (
	kindActor routeKind = iota
	kindObject
	kindCollection
	kindInbox
	kindSharedInbox
	kindNodeInfo
)

type routeDef struct {
	name     string
	template string
	kind     routeKind
}

// Builder accumulates the routes, dispatchers and listeners of a federation.
// It is the only mutable view of one: Build validates everything that was
// registered and returns an immutable Federation. A Builder is not safe for
// concurrent use and should be discarded after Build.
type Builder struct {
	cfg Config

	defs                  []routeDef
	actorDispatcher       ActorDispatcher
	objectDispatchers     map[string]ObjectDispatcher
	collectionDispatchers map[string]CollectionDispatcher
	nodeInfoSoftware      nodeinfo.Software
	nodeInfoStats         nodeinfo.StatsRetriever
	hasNodeInfo           bool
	registry              *service.Registry
	authorize             AuthorizePredicate
	unauthorized          common.HTTPRequestHandler
	onInboxError          service.ErrorHandlerFunc
	err                   error
}

// NewBuilder returns a builder for a federation with the given configuration.
func NewBuilder(cfg Config) *Builder {
	return &Builder{
		cfg:                   cfg,
		objectDispatchers:     make(map[string]ObjectDispatcher),
		collectionDispatchers: make(map[string]CollectionDispatcher),
		registry:              service.NewRegistry(),
	}
}

// WithActor registers the actor route. The template must capture {handle}.
func (b *Builder) WithActor(template string, d ActorDispatcher) *Builder {
	if d == nil {
		return b.setErr(errors.New("actor route requires a dispatcher"))
	}

	b.actorDispatcher = d

	return b.addRoute(RouteActor, template, kindActor)
}

// WithObject registers a route that serves objects of the given type, such as
// notes or articles. The variables captured by the template are passed to the
// dispatcher.
func (b *Builder) WithObject(objectType vocab.Type, template string, d ObjectDispatcher) *Builder {
	name := ObjectRoute(objectType)

	if d == nil {
		return b.setErr(fmt.Errorf("route [%s] requires a dispatcher", name))
	}

	b.objectDispatchers[name] = d

	return b.addRoute(name, template, kindObject)
}

// WithCollection registers a collection route under the given name, which is
// one of the standard collection names (RouteFollowers, RouteFollowing,
// RouteLiked, RouteFeatured, RouteFeaturedTags) or an application-defined
// name. The template must capture {handle}.
func (b *Builder) WithCollection(name, template string, d CollectionDispatcher) *Builder {
	if d.GetItems == nil {
		return b.setErr(fmt.Errorf("collection route [%s] requires GetItems", name))
	}

	b.collectionDispatchers[name] = d

	return b.addRoute(name, template, kindCollection)
}

// WithOutbox registers the outbox collection route. The template must
// capture {handle}.
func (b *Builder) WithOutbox(template string, d CollectionDispatcher) *Builder {
	return b.WithCollection(RouteOutbox, template, d)
}

// WithInbox registers the per-actor inbox route. The template must
// capture {handle}.
func (b *Builder) WithInbox(template string) *Builder {
	return b.addRoute(RouteInbox, template, kindInbox)
}

// WithSharedInbox registers the shared inbox route. The template must not
// capture any variables.
func (b *Builder) WithSharedInbox(template string) *Builder {
	return b.addRoute(RouteSharedInbox, template, kindSharedInbox)
}

// WithNodeInfo enables the NodeInfo endpoints: the versioned documents are
// served on the standard /nodeinfo/{version} route and the discovery document
// on /.well-known/nodeinfo. The software record names this server and the
// stats retriever supplies its usage statistics; a nil retriever reports
// empty statistics.
func (b *Builder) WithNodeInfo(software nodeinfo.Software, stats nodeinfo.StatsRetriever) *Builder {
	if stats == nil {
		stats = nodeinfo.StaticStats{}
	}

	b.nodeInfoSoftware = software
	b.nodeInfoStats = stats
	b.hasNodeInfo = true

	return b.addRoute(RouteNodeInfo, nodeInfoTemplate, kindNodeInfo)
}

// OnActivity registers a listener for activities of the given type that are
// posted to an inbox. A listener registered for a type also receives
// activities of its subtypes, unless a listener is registered for a more
// specific type.
func (b *Builder) OnActivity(activityType vocab.Type, handler service.HandlerFunc) *Builder {
	b.registry.Subscribe(activityType, handler)

	return b
}

// WithAuthorizer sets the predicate that authorizes read requests. Without
// one, every read is allowed.
func (b *Builder) WithAuthorizer(p AuthorizePredicate) *Builder {
	b.authorize = p

	return b
}

// WithUnauthorizedHandler overrides the response written when the authorize
// predicate denies a request.
func (b *Builder) WithUnauthorizedHandler(h common.HTTPRequestHandler) *Builder {
	b.unauthorized = h

	return b
}

// OnInboxError sets the handler invoked when an activity listener returns an
// error.
func (b *Builder) OnInboxError(h service.ErrorHandlerFunc) *Builder {
	b.onInboxError = h

	return b
}

func (b *Builder) addRoute(name, template string, kind routeKind) *Builder {
	b.defs = append(b.defs, routeDef{name: name, template: template, kind: kind})

	return b
}

func (b *Builder) setErr(err error) *Builder {
	if b.err == nil {
		b.err = err
	}

	return b
}

// Build wires the federation to the given resources and returns it. The
// federation is immutable: routes, dispatchers and listeners registered on
// the builder after Build have no effect on it.
func (b *Builder) Build(params BuildParams) (*Federation, error) {
	if b.err != nil {
		return nil, b.err
	}

	if params.KV == nil {
		return nil, errors.New("key-value store is required")
	}

	cfg := b.cfg

	if cfg.Origin == nil || cfg.Origin.Host == "" {
		return nil, errors.New("a canonical origin is required")
	}

	if !cfg.SkipVerification && (cfg.PrivateKey == nil || cfg.PublicKeyID == nil) {
		return nil, errors.New("a private key and public key ID are required unless verification is skipped")
	}

	applyConfigDefaults(&cfg)

	routes, kinds, err := b.buildRouteTable()
	if err != nil {
		return nil, err
	}

	f := &Federation{
		cfg:                   cfg,
		routes:                routes,
		kinds:                 kinds,
		actorDispatcher:       b.actorDispatcher,
		objectDispatchers:     b.objectDispatchers,
		collectionDispatchers: b.collectionDispatchers,
		authorize:             b.authorize,
		unauthorized:          b.unauthorized,
		store:                 params.KV,
		logger:                log.New(loggerModule, log.WithFields(logfields.WithServiceName(cfg.ServiceName))),
	}

	if f.unauthorized == nil {
		f.unauthorized = func(w http.ResponseWriter, _ *http.Request) {
			f.writeResponse(w, http.StatusUnauthorized, []byte(unauthorizedResponse))
		}
	}

	httpClient := params.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	metricsProvider := params.Metrics
	if metricsProvider == nil {
		metricsProvider = noop.NewProvider().Metrics()
	}

	f.queue = params.Queue
	if f.queue == nil {
		f.queue = mempubsub.New(mempubsub.DefaultConfig())
		f.ownsQueue = true
	}

	sender := b.newSender(&cfg, httpClient, params.KV)

	f.transport = transport.New(sender)
	f.wfClient = newWebFingerClient(&cfg, httpClient)
	f.apClient = client.New(client.Config{
		CacheSize:       cfg.CacheSize,
		CacheExpiration: cfg.CacheExpiration,
	}, f.transport, f.wfClient)

	if !cfg.SkipVerification {
		verifierCfg := httpsig.DefaultVerifierConfig()

		if cfg.SignatureTimeWindow > 0 {
			verifierCfg.TimeWindow = cfg.SignatureTimeWindow
		}

		keyStore := publickey.New(params.KV, cfg.StorePrefix, f.apClient.GetPublicKey,
			publickey.WithKeyTTL(cfg.CacheExpiration))

		f.verifier = httpsig.NewVerifier(verifierCfg, &keyStoreRetriever{Store: keyStore, actors: f.apClient})
	}

	f.docLoader = newDocumentLoader(&cfg, httpClient, sender, params.KV)

	if err := f.createServices(b, &cfg, params.KV, metricsProvider); err != nil {
		f.closeOwnedQueue()

		return nil, err
	}

	f.buildDispatchTable()

	f.Lifecycle = lifecycle.New(cfg.ServiceName,
		lifecycle.WithStart(f.start),
		lifecycle.WithStop(f.stop),
	)

	f.logger.Debug("Built federation", logfields.WithServiceIRI(cfg.Origin))

	return f, nil
}

func (b *Builder) buildRouteTable() (*routeTable, map[string]routeKind, error) {
	routes := newRouteTable()
	kinds := make(map[string]routeKind, len(b.defs))

	for _, def := range b.defs {
		tmpl, err := uritemplate.Parse(def.template)
		if err != nil {
			return nil, nil, fmt.Errorf("parse template for route [%s]: %w", def.name, err)
		}

		if err := validateRouteVars(def, tmpl); err != nil {
			return nil, nil, err
		}

		if err := routes.add(def.name, tmpl); err != nil {
			return nil, nil, err
		}

		kinds[def.name] = def.kind
	}

	routes.freeze()

	return routes, kinds, nil
}

func validateRouteVars(def routeDef, tmpl *uritemplate.Template) error {
	switch def.kind {
	case kindActor, kindInbox, kindCollection:
		for _, name := range tmpl.Names() {
			if name == HandleVar {
				return nil
			}
		}

		return fmt.Errorf("template for route [%s] must capture {%s}", def.name, HandleVar)
	case kindSharedInbox:
		if len(tmpl.Names()) > 0 {
			return fmt.Errorf("template for route [%s] must not capture variables", def.name)
		}
	}

	return nil
}

// newSender returns the double-knocking sender for outgoing requests. With
// verification skipped the sender attaches no signatures.
func (b *Builder) newSender(cfg *Config, httpClient *http.Client, kv store.Store) *doubleknock.Transport {
	if cfg.SkipVerification {
		return doubleknock.New(httpClient, nil, &url.URL{},
			doubleknock.WithSigners(httpsig.SpecCavage, transport.DefaultSigner(), transport.DefaultSigner()),
			doubleknock.WithSigners(httpsig.SpecRFC9421, transport.DefaultSigner(), transport.DefaultSigner()),
		)
	}

	opts := []doubleknock.Option{
		doubleknock.WithSpecDeterminer(doubleknock.NewStoreDeterminer(kv, cfg.StorePrefix)),
	}

	if cfg.FirstKnock != "" {
		opts = append(opts, doubleknock.WithFirstKnock(cfg.FirstKnock))
	}

	return doubleknock.New(httpClient, cfg.PrivateKey, cfg.PublicKeyID, opts...)
}

func newWebFingerClient(cfg *Config, httpClient *http.Client) *wfclient.Client {
	opts := []wfclient.Option{wfclient.WithHTTPClient(httpClient)}

	if cfg.CacheExpiration > 0 {
		opts = append(opts, wfclient.WithCacheLifetime(cfg.CacheExpiration))
	}

	if cfg.CacheSize > 0 {
		opts = append(opts, wfclient.WithCacheSize(cfg.CacheSize))
	}

	if cfg.AllowPrivateAddresses {
		opts = append(opts, wfclient.WithAllowPrivateAddress(true))
	}

	return wfclient.New(opts...)
}

// newDocumentLoader returns the caching JSON-LD document loader. Documents
// are fetched with signed requests so that peers which require authorized
// fetch serve us their documents.
func newDocumentLoader(cfg *Config, httpClient *http.Client, sender *doubleknock.Transport,
	kv store.Store) *docloader.CachingLoader {
	docClient := httpClient

	if !cfg.SkipVerification {
		docClient = &http.Client{Transport: &signingRoundTripper{sender: sender}}
	}

	var opts []docloader.Option

	if cfg.SoftwareName != "" {
		opts = append(opts, docloader.WithUserAgent(cfg.SoftwareName, cfg.SoftwareURI))
	}

	if cfg.AllowPrivateAddresses {
		opts = append(opts, docloader.WithAllowPrivateAddress(true))
	}

	return docloader.NewCachingLoader(kv, docloader.New(docClient, opts...), cfg.CacheRules,
		docloader.WithKeyPrefix(cfg.StorePrefix))
}

func (f *Federation) createServices(b *Builder, cfg *Config, kv store.Store, metricsProvider metrics.Metrics) error {
	inboxEndpoint := ""

	for _, def := range b.defs {
		if def.kind == kindSharedInbox {
			inboxEndpoint = def.template

			break
		}

		if def.kind == kindInbox && inboxEndpoint == "" {
			inboxEndpoint = def.template
		}
	}

	if inboxEndpoint != "" {
		if err := f.createInbox(b, cfg, kv, inboxEndpoint); err != nil {
			return err
		}
	}

	if err := f.createOutbox(cfg, metricsProvider); err != nil {
		return err
	}

	if b.hasNodeInfo {
		f.nodeInfo = nodeinfo.NewService(b.nodeInfoSoftware, cfg.NodeInfoRefreshInterval, b.nodeInfoStats)

		f.nodeInfoHandlers = map[nodeinfo.Version]common.HTTPHandler{
			nodeinfo.V2_0: nodeinfo.NewHandler(nodeinfo.V2_0, f.nodeInfo),
			nodeinfo.V2_1: nodeinfo.NewHandler(nodeinfo.V2_1, f.nodeInfo),
		}

		f.wellKnownNodeInfo = nodeinfo.NewWellKnownHandler(strings.TrimSuffix(cfg.Origin.String(), "/"))
	}

	return nil
}

func (f *Federation) createInbox(b *Builder, cfg *Config, kv store.Store, endpoint string) error {
	inboxCfg := &inbox.Config{
		ServiceEndpoint:  endpoint,
		ServiceIRI:       cfg.Origin,
		Topic:            cfg.InboxTopic,
		SkipVerification: cfg.SkipVerification,
		IdempotenceTTL:   cfg.IdempotenceTTL,
		RetryPolicy:      cfg.InboxRetryPolicy,
	}

	opts := []inbox.Option{inbox.WithStorePrefix(cfg.StorePrefix)}

	if b.onInboxError != nil {
		opts = append(opts, inbox.WithErrorHandler(b.onInboxError))
	}

	var err error

	if f.verifier != nil {
		f.inbox, err = inbox.New(inboxCfg, kv, f.queue, b.registry, f.verifier, opts...)
	} else {
		f.inbox, err = inbox.New(inboxCfg, kv, f.queue, b.registry, nil, opts...)
	}

	if err != nil {
		return fmt.Errorf("create inbox: %w", err)
	}

	return nil
}

func (f *Federation) createOutbox(cfg *Config, metricsProvider metrics.Metrics) error {
	senderKeyID := ""
	if cfg.PublicKeyID != nil {
		senderKeyID = cfg.PublicKeyID.String()
	}

	ob, err := outbox.New(&outbox.Config{
		ServiceName:           cfg.ServiceName,
		ServiceIRI:            cfg.Origin,
		ServiceEndpointURL:    cfg.Origin,
		Topic:                 cfg.OutboxTopic,
		SenderKeyID:           senderKeyID,
		MaxRecipients:         cfg.MaxRecipients,
		MaxConcurrentRequests: cfg.MaxConcurrentRequests,
		CacheSize:             cfg.CacheSize,
		CacheExpiration:       cfg.CacheExpiration,
		PreferSharedInbox:     cfg.PreferSharedInbox,
		RetryPolicy:           cfg.OutboxRetryPolicy,
	}, f.queue, f.transport, f.apClient, metricsProvider)
	if err != nil {
		return fmt.Errorf("create outbox: %w", err)
	}

	f.outbox = ob

	return nil
}

// dispatchFunc resolves the resource selected by a matched route into the
// document to be rendered.
type dispatchFunc func(reqCtx *RequestContext, r *http.Request, vals uritemplate.Values) (interface{}, error)

// buildDispatchTable freezes the registered dispatchers into an immutable
// table from route name to function value.
func (f *Federation) buildDispatchTable() {
	f.dispatch = make(map[string]dispatchFunc, len(f.kinds))

	for name, kind := range f.kinds {
		switch kind {
		case kindActor:
			d := f.actorDispatcher

			f.dispatch[name] = func(reqCtx *RequestContext, _ *http.Request, vals uritemplate.Values) (interface{}, error) {
				return d(reqCtx, stringVar(vals, HandleVar))
			}
		case kindObject:
			d := f.objectDispatchers[name]

			f.dispatch[name] = func(reqCtx *RequestContext, _ *http.Request, vals uritemplate.Values) (interface{}, error) {
				return d(reqCtx, plainVars(vals))
			}
		case kindCollection:
			d := f.collectionDispatchers[name]
			routeName := name

			f.dispatch[name] = func(reqCtx *RequestContext, r *http.Request, vals uritemplate.Values) (interface{}, error) {
				return f.collectionResource(d, routeName, reqCtx, r, vals)
			}
		}
	}
}

func applyConfigDefaults(cfg *Config) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = defaultServiceName
	}

	if len(cfg.StorePrefix) == 0 {
		cfg.StorePrefix = store.DefaultPrefix
	}

	if cfg.InboxTopic == "" {
		cfg.InboxTopic = defaultInboxTopic
	}

	if cfg.OutboxTopic == "" {
		cfg.OutboxTopic = defaultOutboxTopic
	}

	if cfg.NodeInfoRefreshInterval == 0 {
		cfg.NodeInfoRefreshInterval = defaultNodeInfoRefreshInterval
	}
}

// Federation is the assembled ActivityPub machinery of a server. It is
// immutable: all mutable state lives behind the services it wires together,
// so a Federation is safe for concurrent use by any number of request
// handlers. Start and Stop control the lifecycles of the inbox, the delivery
// pipeline and the NodeInfo service.
type Federation struct {
	*lifecycle.Lifecycle

	cfg    Config
	routes *routeTable
	kinds  map[string]routeKind

	actorDispatcher       ActorDispatcher
	objectDispatchers     map[string]ObjectDispatcher
	collectionDispatchers map[string]CollectionDispatcher
	dispatch              map[string]dispatchFunc

	authorize    AuthorizePredicate
	unauthorized common.HTTPRequestHandler

	store     store.Store
	queue     pubsubspi.PubSub
	ownsQueue bool

	transport *transport.Transport
	wfClient  *wfclient.Client
	apClient  *client.Client
	verifier  *httpsig.Verifier
	docLoader *docloader.CachingLoader

	inbox    *inbox.Inbox
	outbox   *outbox.Outbox
	nodeInfo *nodeinfo.Service

	nodeInfoHandlers  map[nodeinfo.Version]common.HTTPHandler
	wellKnownNodeInfo common.HTTPHandler

	logger *log.Log
}

func (f *Federation) start() {
	if f.nodeInfo != nil {
		f.nodeInfo.Start()
	}

	if f.inbox != nil {
		f.inbox.Start()
	}

	f.outbox.Start()
}

func (f *Federation) stop() {
	f.outbox.Stop()

	if f.inbox != nil {
		f.inbox.Stop()
	}

	if f.nodeInfo != nil {
		f.nodeInfo.Stop()
	}

	f.closeOwnedQueue()
}

func (f *Federation) closeOwnedQueue() {
	if !f.ownsQueue {
		return
	}

	if err := f.queue.Close(); err != nil {
		f.logger.Warn("Error closing message queue", log.WithError(err))
	}
}

// Origin returns the canonical origin of this server.
func (f *Federation) Origin() *url.URL {
	return f.cfg.Origin
}

// Store returns the key-value store of the federation.
func (f *Federation) Store() store.Store {
	return f.store
}

// Queue returns the message queue of the federation.
func (f *Federation) Queue() pubsubspi.PubSub {
	return f.queue
}

// Client returns the ActivityPub client of the federation.
func (f *Federation) Client() *client.Client {
	return f.apClient
}

// Transport returns the HTTP transport that signs outgoing requests.
func (f *Federation) Transport() *transport.Transport {
	return f.transport
}

// DocumentLoader returns the federation's JSON-LD document loader. Documents
// are fetched with signed requests and cached according to the cache rules.
func (f *Federation) DocumentLoader() ld.DocumentLoader {
	return f.docLoader
}

// ActorByUsername returns the actor document for the given local username. It
// implements the retriever contract of the WebFinger endpoint.
func (f *Federation) ActorByUsername(username string) (*vocab.ActorType, error) {
	if f.actorDispatcher == nil {
		return nil, merrors.ErrContentNotFound
	}

	return f.actorDispatcher(f.newRequestContext(nil, nil), username)
}

// ActorByIRI returns the actor document whose ID is the given IRI.
func (f *Federation) ActorByIRI(iri *url.URL) (*vocab.ActorType, error) {
	name, vals, ok := f.routes.match(iri.Path)
	if !ok || name != RouteActor {
		return nil, merrors.ErrContentNotFound
	}

	return f.ActorByUsername(stringVar(vals, HandleVar))
}

// keyStoreRetriever resolves public keys through the persistent key store and
// actors through the ActivityPub client. Keys survive a restart; actors are
// cached in memory only.
type keyStoreRetriever struct {
	*publickey.Store

	actors *client.Client
}

func (r *keyStoreRetriever) GetActor(actorIRI *url.URL) (*vocab.ActorType, error) {
	return r.actors.GetActor(actorIRI)
}

// signingRoundTripper signs document loader requests with the double-knocking
// sender. Send works on a clone of the request for each attempt, which keeps
// the RoundTripper contract of not mutating the request.
type signingRoundTripper struct {
	sender *doubleknock.Transport
}

func (rt *signingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return rt.sender.Send(req, nil)
}
