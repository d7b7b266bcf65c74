/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package startcmd

import (
	"context"
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	ariesmongodbstorage "github.com/hyperledger/aries-framework-go-ext/component/storage/mongodb"
	ariesmemstorage "github.com/hyperledger/aries-framework-go/component/storageutil/mem"
	ariesstorage "github.com/hyperledger/aries-framework-go/spi/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/trustbloc/logutil-go/pkg/log"

	"github.com/meridianfed/meridian/internal/pkg/tlsutil"
	"github.com/meridianfed/meridian/pkg/federation"
	"github.com/meridianfed/meridian/pkg/healthcheck"
	"github.com/meridianfed/meridian/pkg/httpserver"
	"github.com/meridianfed/meridian/pkg/httpserver/auth"
	"github.com/meridianfed/meridian/pkg/httpserver/maintenance"
	"github.com/meridianfed/meridian/pkg/httpsig"
	"github.com/meridianfed/meridian/pkg/nodeinfo"
	"github.com/meridianfed/meridian/pkg/observability/loglevels"
	"github.com/meridianfed/meridian/pkg/observability/metrics"
	"github.com/meridianfed/meridian/pkg/observability/metrics/noop"
	"github.com/meridianfed/meridian/pkg/observability/metrics/prometheus"
	"github.com/meridianfed/meridian/pkg/observability/tracing"
	"github.com/meridianfed/meridian/pkg/pubsub/amqp"
	"github.com/meridianfed/meridian/pkg/restapi/common"
	"github.com/meridianfed/meridian/pkg/service/activitysync"
	"github.com/meridianfed/meridian/pkg/store"
	"github.com/meridianfed/meridian/pkg/store/ariesstore"
	"github.com/meridianfed/meridian/pkg/store/expiry"
	"github.com/meridianfed/meridian/pkg/store/spi"
	"github.com/meridianfed/meridian/pkg/taskmgr"
	"github.com/meridianfed/meridian/pkg/vocab"
	"github.com/meridianfed/meridian/pkg/webfinger/resthandler"
)

const (
	servicesBasePath = "/services"

	actorTemplate     = servicesBasePath + "/{handle}"
	inboxTemplate     = actorTemplate + "/inbox"
	outboxTemplate    = actorTemplate + "/outbox"
	followersTemplate = actorTemplate + "/followers"
	followingTemplate = actorTemplate + "/following"
	sharedInboxPath   = "/inbox"

	coordinationStoreName = "coordination"
	kvStoreName           = "federation"

	inboxTopic  = "meridian_inbox"
	outboxTopic = "meridian_outbox"

	softwareName = "Meridian"
	softwareURI  = "https://github.com/meridianfed/meridian"

	stopTimeout = 10 * time.Second
)

var logger = log.New("meridian-server")

type server interface {
	Start(srv *httpserver.Server) error
}

// HTTPServer starts the background services and the HTTP server, then waits
// for an interrupt signal, upon which everything is stopped in reverse order.
type HTTPServer struct {
	federation      *federation.Federation
	taskMgr         *taskmgr.Manager
	expiryService   *expiry.Service
	metricsProvider metrics.Provider
	tracingProvider tracing.Provider
	amqpPubSub      *amqp.PubSub
}

// Start starts the HTTP server.
func (s *HTTPServer) Start(srv *httpserver.Server) error {
	if err := s.metricsProvider.Create(); err != nil {
		return fmt.Errorf("create metrics provider: %w", err)
	}

	s.tracingProvider.Start()
	s.taskMgr.Start()
	s.expiryService.Start()
	s.federation.Start()

	if err := srv.Start(); err != nil {
		return err
	}

	logger.Info("Started Meridian server")

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM)

	// Wait for interrupt
	<-interrupt

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	if err := srv.Stop(ctx); err != nil {
		logger.Warn("Error stopping HTTP server", log.WithError(err))
	}

	s.federation.Stop()
	s.expiryService.Stop()
	s.taskMgr.Stop()

	if s.amqpPubSub != nil {
		if err := s.amqpPubSub.Close(); err != nil {
			logger.Warn("Error closing message queue", log.WithError(err))
		}
	}

	s.tracingProvider.Stop()

	if err := s.metricsProvider.Destroy(); err != nil {
		logger.Warn("Error destroying metrics provider", log.WithError(err))
	}

	return nil
}

// GetStartCmd returns the Cobra start command.
func GetStartCmd() *cobra.Command {
	startCmd := createStartCmd()

	createFlags(startCmd)

	return startCmd
}

func createStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start meridian-server",
		Long:  "Start meridian-server",
		RunE: func(cmd *cobra.Command, args []string) error {
			parameters, err := getMeridianParameters(cmd)
			if err != nil {
				return err
			}

			return startMeridianServices(parameters)
		},
	}
}

//nolint:gocyclo,funlen
func startMeridianServices(parameters *serverParameters) error {
	if parameters.logLevel != "" {
		setLogLevels(logger, parameters.logLevel)
	}

	storageProvider, err := createStorageProvider(parameters.dbParams)
	if err != nil {
		return err
	}

	coordinationStore, err := store.Open(storageProvider, coordinationStoreName)
	if err != nil {
		return fmt.Errorf("open coordination store: %w", err)
	}

	taskMgr := taskmgr.New(coordinationStore, parameters.taskMgrCheckInterval)

	expiryService := expiry.NewService(parameters.dataExpiryCheckInterval, coordinationStore, taskMgr.InstanceID())

	kvStore, err := ariesstore.Open(storageProvider, kvStoreName, expiryService)
	if err != nil {
		return fmt.Errorf("open key-value store: %w", err)
	}

	rootCAs, err := tlsutil.GetCertPool(parameters.tlsParams.systemCertPool, parameters.tlsParams.caCerts)
	if err != nil {
		return fmt.Errorf("create CA cert pool: %w", err)
	}

	httpClient := &http.Client{
		Timeout: time.Minute,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				RootCAs:    rootCAs,
				MinVersion: tls.VersionTLS12,
			},
		},
	}

	privateKey, publicKeyPem, err := loadPrivateKey(parameters.privateKeyPath)
	if err != nil {
		return err
	}

	origin, err := url.Parse(parameters.externalEndpoint)
	if err != nil {
		return fmt.Errorf("parse external endpoint: %w", err)
	}

	keyPath := fmt.Sprintf("%s/%s/keys/%s", servicesBasePath, parameters.serviceID, parameters.keyID)

	publicKeyIRI := mustParseURL(parameters.externalEndpoint, keyPath)

	serviceIRI := mustParseURL(parameters.externalEndpoint,
		fmt.Sprintf("%s/%s", servicesBasePath, parameters.serviceID))

	publicKey := vocab.NewPublicKey(publicKeyIRI, serviceIRI, publicKeyPem)

	var amqpPubSub *amqp.PubSub

	if parameters.mqURL != "" {
		amqpPubSub = amqp.New(amqp.Config{URI: parameters.mqURL})
	}

	metricsProvider, err := createMetricsProvider(parameters)
	if err != nil {
		return err
	}

	tracingProvider, err := tracing.Initialize(parameters.tracingParams.provider,
		parameters.tracingParams.serviceName, parameters.tracingParams.collectorURL)
	if err != nil {
		return fmt.Errorf("initialize tracing provider: %w", err)
	}

	svc := newLocalService(parameters.serviceID, publicKey, kvStore)

	buildParams := federation.BuildParams{
		KV:         kvStore,
		HTTPClient: httpClient,
		Metrics:    metricsProvider.Metrics(),
	}

	if amqpPubSub != nil {
		buildParams.Queue = amqpPubSub
	}

	fed, err := federation.NewBuilder(federation.Config{
		ServiceName:             parameters.serviceID,
		Origin:                  origin,
		StorePrefix:             spi.DefaultPrefix,
		PrivateKey:              privateKey,
		PublicKeyID:             publicKeyIRI,
		FirstKnock:              signatureSpec(parameters.firstKnock),
		InboxTopic:              inboxTopic,
		OutboxTopic:             outboxTopic,
		PreferSharedInbox:       true,
		CacheSize:               parameters.cacheSize,
		CacheExpiration:         parameters.cacheExpiration,
		CacheRules:              parameters.documentCacheRules,
		SoftwareName:            softwareName,
		SoftwareURI:             softwareURI,
		NodeInfoRefreshInterval: parameters.nodeInfoRefreshInterval,
	}).
		WithActor(actorTemplate, svc.actor).
		WithInbox(inboxTemplate).
		WithSharedInbox(sharedInboxPath).
		WithOutbox(outboxTemplate, svc.collection(outboxCollection)).
		WithCollection(federation.RouteFollowers, followersTemplate, svc.collection(followersCollection)).
		WithCollection(federation.RouteFollowing, followingTemplate, svc.collection(followingCollection)).
		WithNodeInfo(nodeinfo.Software{
			Name:       softwareName,
			Version:    httpserver.BuildVersion,
			Repository: softwareURI,
		}, svc).
		OnActivity(vocab.TypeFollow, svc.handleFollow).
		OnActivity(vocab.TypeUndo, svc.handleUndo).
		OnActivity(vocab.TypeAccept, svc.handleAccept).
		Build(buildParams)
	if err != nil {
		return fmt.Errorf("build federation: %w", err)
	}

	svc.setFederation(fed)

	if parameters.activitySyncEnabled {
		activitysync.Register(activitysync.Config{
			InboxTopic:     inboxTopic,
			Interval:       parameters.activitySyncInterval,
			MinActivityAge: parameters.activitySyncMinAge,
		}, taskMgr, fed.Client(), kvStore, fed.Queue(), svc.followingIRIs)
	}

	authCfg := auth.Config{
		AuthTokensDef: parameters.authTokenDefinitions,
		AuthTokens:    parameters.authTokens,
	}

	handlers := []common.HTTPHandler{
		resthandler.New(origin, fed),
		newPublicKeyHandler(keyPath, publicKey),
		auth.NewHandlerWrapper(authCfg, newFollowHandler(svc)),
		auth.NewHandlerWrapper(authCfg, loglevels.NewWriteHandler()),
		auth.NewHandlerWrapper(authCfg, loglevels.NewReadHandler()),
	}

	var fallback httpserver.Fallback = fed

	if parameters.maintenanceMode {
		logger.Warn("Server is running in maintenance mode.")

		for i, handler := range handlers {
			handlers[i] = maintenance.NewMaintenanceWrapper(handler)
		}

		fallback = &maintenanceFallback{}
	}

	var mqConnection interface{ IsConnected() bool }

	if amqpPubSub != nil {
		mqConnection = amqpPubSub
	}

	var dbPinger interface{ Ping() error }

	if pinger, ok := storageProvider.(interface{ Ping() error }); ok {
		dbPinger = pinger
	}

	handlers = append(handlers,
		healthcheck.NewHandler(mqConnection, dbPinger, fed, parameters.maintenanceMode))

	httpServer := httpserver.New(&httpserver.Config{
		Address:            parameters.hostURL,
		CertFile:           parameters.tlsParams.serveCertPath,
		KeyFile:            parameters.tlsParams.serveKeyPath,
		IdleTimeout:        parameters.serverIdleTimeout,
		ReadHeaderTimeout:  parameters.serverReadHeaderTimeout,
		TracingServiceName: parameters.tracingParams.serviceName,
		Fallback:           fallback,
	}, handlers...)

	srv := &HTTPServer{
		federation:      fed,
		taskMgr:         taskMgr,
		expiryService:   expiryService,
		metricsProvider: metricsProvider,
		tracingProvider: tracingProvider,
		amqpPubSub:      amqpPubSub,
	}

	return srv.Start(httpServer)
}

func createStorageProvider(params *dbParameters) (ariesstorage.Provider, error) {
	switch params.databaseType {
	case databaseTypeMemOption:
		return ariesmemstorage.NewProvider(), nil
	case databaseTypeMongoDBOption:
		provider, err := ariesmongodbstorage.NewProvider(params.databaseURL,
			ariesmongodbstorage.WithDBPrefix(params.databasePrefix),
			ariesmongodbstorage.WithTimeout(params.databaseTimeout))
		if err != nil {
			return nil, fmt.Errorf("create MongoDB storage provider: %w", err)
		}

		return provider, nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", params.databaseType)
	}
}

func createMetricsProvider(parameters *serverParameters) (metrics.Provider, error) {
	if parameters.metricsProviderName != metricsProviderPrometheusOption {
		return noop.NewProvider(), nil
	}

	metricsServer := httpserver.New(&httpserver.Config{
		Address:           parameters.metricsURL,
		IdleTimeout:       parameters.serverIdleTimeout,
		ReadHeaderTimeout: parameters.serverReadHeaderTimeout,
	}, &metricsHandler{})

	return prometheus.NewPrometheusProvider(metricsServer), nil
}

func signatureSpec(firstKnock string) httpsig.Spec {
	if firstKnock == firstKnockRFC9421Option {
		return httpsig.SpecRFC9421
	}

	return httpsig.SpecCavage
}

// loadPrivateKey reads the signing key from the PKCS #8 PEM file at the given
// path and returns it along with the PEM encoding of its public key. With no
// path an ephemeral Ed25519 key is generated, which is suitable only for
// development since peers cannot verify requests across a restart.
func loadPrivateKey(path string) (crypto.PrivateKey, string, error) {
	if path == "" {
		logger.Warn("No private key file was specified. An ephemeral signing key was generated; " +
			"it will not survive a restart.")

		publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, "", fmt.Errorf("generate signing key: %w", err)
		}

		publicKeyPem, err := encodePublicKeyPEM(publicKey)
		if err != nil {
			return nil, "", err
		}

		return privateKey, publicKeyPem, nil
	}

	keyBytes, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, "", fmt.Errorf("read private key file: %w", err)
	}

	block, _ := pem.Decode(keyBytes)
	if block == nil {
		return nil, "", fmt.Errorf("failed to decode pem in private key file [%s]", path)
	}

	privateKey, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, "", fmt.Errorf("parse private key: %w", err)
	}

	signer, ok := privateKey.(crypto.Signer)
	if !ok {
		return nil, "", fmt.Errorf("private key of type %T cannot sign requests", privateKey)
	}

	publicKeyPem, err := encodePublicKeyPEM(signer.Public())
	if err != nil {
		return nil, "", err
	}

	return privateKey, publicKeyPem, nil
}

func encodePublicKeyPEM(publicKey crypto.PublicKey) (string, error) {
	keyBytes, err := x509.MarshalPKIXPublicKey(publicKey)
	if err != nil {
		return "", fmt.Errorf("marshal public key: %w", err)
	}

	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: keyBytes})), nil
}

func mustParseURL(basePath, relativePath string) *url.URL {
	u, err := url.Parse(fmt.Sprintf("%s%s", basePath, relativePath))
	if err != nil {
		panic(fmt.Errorf("invalid URL: %s", err.Error()))
	}

	return u
}

// metricsHandler exposes the Prometheus metrics endpoint.
type metricsHandler struct{}

// Path returns the path of the endpoint.
func (h *metricsHandler) Path() string {
	return "/metrics"
}

// Method returns the HTTP method of the endpoint.
func (h *metricsHandler) Method() string {
	return http.MethodGet
}

// Handler returns the function that is invoked for requests to the endpoint.
func (h *metricsHandler) Handler() common.HTTPRequestHandler {
	return promhttp.Handler().ServeHTTP
}

// maintenanceFallback responds with 503 (Service Unavailable) to the
// federated routes while the server is in maintenance mode.
type maintenanceFallback struct{}

// Handle responds with 503 to every request.
func (f *maintenanceFallback) Handle(w http.ResponseWriter, _ *http.Request) bool {
	w.WriteHeader(http.StatusServiceUnavailable)

	return true
}
