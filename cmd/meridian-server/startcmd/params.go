/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package startcmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/meridianfed/meridian/internal/pkg/cmdutil"
	"github.com/meridianfed/meridian/pkg/docloader"
	"github.com/meridianfed/meridian/pkg/httpserver/auth"
	"github.com/meridianfed/meridian/pkg/observability/tracing"
	"github.com/meridianfed/meridian/pkg/uritemplate"
)

const (
	defaultServiceID               = "meridian"
	defaultKeyID                   = "main-key"
	defaultDatabaseTimeout         = 10 * time.Second
	defaultTaskMgrCheckInterval    = 10 * time.Second
	defaultDataExpiryCheckInterval = time.Minute
	defaultServerIdleTimeout       = 2 * time.Minute
	defaultServerReadHeaderTimeout = 20 * time.Second
	defaultDocumentCacheTTL        = time.Hour
	defaultTracingServiceName      = "meridian"

	commonEnvVarUsageText = "Alternatively, this can be set with the following environment variable: "

	hostURLFlagName      = "host-url"
	hostURLFlagShorthand = "u"
	hostURLFlagUsage     = "URL to run the meridian-server instance on. Format: HostName:Port. " +
		commonEnvVarUsageText + hostURLEnvKey
	hostURLEnvKey = "MERIDIAN_HOST_URL"

	externalEndpointFlagName      = "external-endpoint"
	externalEndpointFlagShorthand = "e"
	externalEndpointFlagUsage     = "External endpoint that remote servers use to invoke services." +
		" This endpoint is used to generate the IDs of actors, activities and collections and" +
		" should be resolvable by remote servers. Format: scheme://HostName[:Port]. " +
		commonEnvVarUsageText + externalEndpointEnvKey
	externalEndpointEnvKey = "MERIDIAN_EXTERNAL_ENDPOINT"

	serviceIDFlagName  = "service-id"
	serviceIDFlagUsage = "The handle of the local service actor. The actor document is served at" +
		" /services/<id> and its handle resolves over WebFinger. Defaults to '" + defaultServiceID + "'. " +
		commonEnvVarUsageText + serviceIDEnvKey
	serviceIDEnvKey = "MERIDIAN_SERVICE_ID"

	tlsSystemCertPoolFlagName  = "tls-systemcertpool"
	tlsSystemCertPoolFlagUsage = "Use system certificate pool." +
		" Possible values [true] [false]. Defaults to false if not set. " +
		commonEnvVarUsageText + tlsSystemCertPoolEnvKey
	tlsSystemCertPoolEnvKey = "MERIDIAN_TLS_SYSTEMCERTPOOL"

	tlsCACertsFlagName  = "tls-cacerts"
	tlsCACertsFlagUsage = "Comma-separated list of CA certs path. " +
		commonEnvVarUsageText + tlsCACertsEnvKey
	tlsCACertsEnvKey = "MERIDIAN_TLS_CACERTS"

	tlsCertificateFlagName      = "tls-certificate"
	tlsCertificateFlagShorthand = "y"
	tlsCertificateFlagUsage     = "TLS certificate for the Meridian server. " +
		commonEnvVarUsageText + tlsCertificateEnvKey
	tlsCertificateEnvKey = "MERIDIAN_TLS_CERTIFICATE"

	tlsKeyFlagName      = "tls-key"
	tlsKeyFlagShorthand = "x"
	tlsKeyFlagUsage     = "TLS key for the Meridian server. " +
		commonEnvVarUsageText + tlsKeyEnvKey
	tlsKeyEnvKey = "MERIDIAN_TLS_KEY"

	databaseTypeFlagName      = "database-type"
	databaseTypeEnvKey        = "MERIDIAN_DATABASE_TYPE"
	databaseTypeFlagShorthand = "t"
	databaseTypeFlagUsage     = "The type of database to use for the key-value store. " +
		"Supported options: mem, mongodb. " + commonEnvVarUsageText + databaseTypeEnvKey

	databaseURLFlagName      = "database-url"
	databaseURLEnvKey        = "MERIDIAN_DATABASE_URL"
	databaseURLFlagShorthand = "v"
	databaseURLFlagUsage     = "The URL of the database. Not needed if using mem. " +
		commonEnvVarUsageText + databaseURLEnvKey

	databasePrefixFlagName  = "database-prefix"
	databasePrefixEnvKey    = "MERIDIAN_DATABASE_PREFIX"
	databasePrefixFlagUsage = "An optional prefix to be used when creating and retrieving underlying databases. " +
		commonEnvVarUsageText + databasePrefixEnvKey

	databaseTimeoutFlagName  = "database-timeout"
	databaseTimeoutEnvKey    = "MERIDIAN_DATABASE_TIMEOUT"
	databaseTimeoutFlagUsage = "Total time to wait for a database response. Defaults to 10s. " +
		commonEnvVarUsageText + databaseTimeoutEnvKey

	mqURLFlagName      = "mq-url"
	mqURLFlagShorthand = "q"
	mqURLFlagUsage     = "The URL of the AMQP message broker. If not specified then an in-process" +
		" message queue is used, which neither survives a restart nor distributes work across a cluster. " +
		commonEnvVarUsageText + mqURLEnvKey
	mqURLEnvKey = "MERIDIAN_MQ_URL"

	privateKeyFileFlagName  = "private-key-file"
	privateKeyFileFlagUsage = "Path to the PEM-encoded PKCS #8 private key that signs outgoing requests." +
		" If not specified then an ephemeral Ed25519 key is generated on start-up, which invalidates" +
		" previously distributed public keys on every restart. " +
		commonEnvVarUsageText + privateKeyFileEnvKey
	privateKeyFileEnvKey = "MERIDIAN_PRIVATE_KEY_FILE"

	keyIDFlagName  = "key-id"
	keyIDFlagUsage = "The ID under which the public key of the signing key pair is served." +
		" Defaults to '" + defaultKeyID + "'. " + commonEnvVarUsageText + keyIDEnvKey
	keyIDEnvKey = "MERIDIAN_KEY_ID"

	firstKnockFlagName  = "first-knock"
	firstKnockFlagUsage = "The HTTP signature suite offered first to an origin whose accepted suite" +
		" is not yet known. Supported options: cavage, rfc9421. Defaults to cavage. " +
		commonEnvVarUsageText + firstKnockEnvKey
	firstKnockEnvKey = "MERIDIAN_FIRST_KNOCK"

	// Linter gosec flags these as "potential hardcoded credentials". They are not, hence the nolint annotations.
	authTokensDefFlagName  = "auth-tokens-def" //nolint: gosec
	authTokensDefEnvKey    = "MERIDIAN_AUTH_TOKENS_DEF"
	authTokensDefFlagUsage = "Authorization token definitions of the form" +
		" <endpoint-expression>|<read-token-ids>|<write-token-ids>, where token IDs are separated by '&'. " +
		commonEnvVarUsageText + authTokensDefEnvKey

	authTokensFlagName  = "auth-tokens" //nolint: gosec
	authTokensEnvKey    = "MERIDIAN_AUTH_TOKENS"
	authTokensFlagUsage = "Authorization tokens of the form <token-id>=<token-value>. " +
		commonEnvVarUsageText + authTokensEnvKey

	cacheSizeFlagName  = "cache-size"
	cacheSizeEnvKey    = "MERIDIAN_CACHE_SIZE"
	cacheSizeFlagUsage = "The maximum number of entries held by the actor, public key and WebFinger caches. " +
		commonEnvVarUsageText + cacheSizeEnvKey

	cacheExpirationFlagName  = "cache-expiration"
	cacheExpirationEnvKey    = "MERIDIAN_CACHE_EXPIRATION"
	cacheExpirationFlagUsage = "The expiration time of entries in the actor, public key and WebFinger caches. " +
		commonEnvVarUsageText + cacheExpirationEnvKey

	documentCacheRuleFlagName  = "document-cache-rule"
	documentCacheRuleEnvKey    = "MERIDIAN_DOCUMENT_CACHE_RULE"
	documentCacheRuleFlagUsage = "Rules of the form <uri-template>|<ttl> that select which remote JSON-LD" +
		" documents are cached in the key-value store, and for how long. The TTL defaults to 1h. " +
		commonEnvVarUsageText + documentCacheRuleEnvKey

	activitySyncFlagName  = "activity-sync"
	activitySyncEnvKey    = "MERIDIAN_ACTIVITY_SYNC"
	activitySyncFlagUsage = "Enables periodic reading of the outboxes of the services that the local" +
		" service is following, so that activities missed during an outage are reprocessed." +
		" Possible values [true] [false]. Defaults to false. " + commonEnvVarUsageText + activitySyncEnvKey

	activitySyncIntervalFlagName  = "activity-sync-interval"
	activitySyncIntervalEnvKey    = "MERIDIAN_ACTIVITY_SYNC_INTERVAL"
	activitySyncIntervalFlagUsage = "The interval at which the outboxes of followed services are checked" +
		" for missed activities. Defaults to 1m. " + commonEnvVarUsageText + activitySyncIntervalEnvKey

	activitySyncMinAgeFlagName  = "activity-sync-min-activity-age"
	activitySyncMinAgeEnvKey    = "MERIDIAN_ACTIVITY_SYNC_MIN_ACTIVITY_AGE"
	activitySyncMinAgeFlagUsage = "The minimum age of an activity before it is synchronized. Younger" +
		" activities are most likely still in transit and are left for a subsequent run. Defaults to 1m. " +
		commonEnvVarUsageText + activitySyncMinAgeEnvKey

	nodeInfoRefreshIntervalFlagName  = "nodeinfo-refresh-interval"
	nodeInfoRefreshIntervalEnvKey    = "MERIDIAN_NODEINFO_REFRESH_INTERVAL"
	nodeInfoRefreshIntervalFlagUsage = "The interval at which the NodeInfo usage statistics are refreshed." +
		" Defaults to 15s. " + commonEnvVarUsageText + nodeInfoRefreshIntervalEnvKey

	taskMgrCheckIntervalFlagName  = "task-manager-check-interval"
	taskMgrCheckIntervalEnvKey    = "MERIDIAN_TASK_MANAGER_CHECK_INTERVAL"
	taskMgrCheckIntervalFlagUsage = "How frequently to check for scheduled tasks. Defaults to 10s. " +
		commonEnvVarUsageText + taskMgrCheckIntervalEnvKey

	dataExpiryCheckIntervalFlagName  = "data-expiry-check-interval"
	dataExpiryCheckIntervalEnvKey    = "MERIDIAN_DATA_EXPIRY_CHECK_INTERVAL"
	dataExpiryCheckIntervalFlagUsage = "How frequently to check for (and delete) expired data. Defaults to 1m. " +
		commonEnvVarUsageText + dataExpiryCheckIntervalEnvKey

	serverIdleTimeoutFlagName  = "server-idle-timeout"
	serverIdleTimeoutEnvKey    = "MERIDIAN_SERVER_IDLE_TIMEOUT"
	serverIdleTimeoutFlagUsage = "The timeout for server idle connections. Defaults to 2m. " +
		commonEnvVarUsageText + serverIdleTimeoutEnvKey

	serverReadHeaderTimeoutFlagName  = "server-read-header-timeout"
	serverReadHeaderTimeoutEnvKey    = "MERIDIAN_SERVER_READ_HEADER_TIMEOUT"
	serverReadHeaderTimeoutFlagUsage = "The timeout for reading request headers. Defaults to 20s. " +
		commonEnvVarUsageText + serverReadHeaderTimeoutEnvKey

	maintenanceModeFlagName  = "maintenance-mode"
	maintenanceModeEnvKey    = "MERIDIAN_MAINTENANCE_MODE"
	maintenanceModeFlagUsage = "Start the server in maintenance mode: every endpoint except the health" +
		" check responds with 503 Service Unavailable. Possible values [true] [false]. Defaults to false. " +
		commonEnvVarUsageText + maintenanceModeEnvKey

	metricsProviderFlagName  = "metrics-provider-name"
	metricsProviderEnvKey    = "MERIDIAN_METRICS_PROVIDER_NAME"
	metricsProviderFlagUsage = "The metrics provider. Supported options: prometheus. Metrics are disabled" +
		" if not set. " + commonEnvVarUsageText + metricsProviderEnvKey

	metricsURLFlagName  = "metrics-url"
	metricsURLEnvKey    = "MERIDIAN_METRICS_URL"
	metricsURLFlagUsage = "URL that exposes the metrics endpoint. Format: HostName:Port. " +
		commonEnvVarUsageText + metricsURLEnvKey

	tracingProviderFlagName  = "tracing-provider"
	tracingProviderEnvKey    = "MERIDIAN_TRACING_PROVIDER"
	tracingProviderFlagUsage = "The tracing provider. Supported options: JAEGER. Tracing is disabled" +
		" if not set. " + commonEnvVarUsageText + tracingProviderEnvKey

	tracingCollectorURLFlagName  = "tracing-collector-url"
	tracingCollectorURLEnvKey    = "MERIDIAN_TRACING_COLLECTOR_URL"
	tracingCollectorURLFlagUsage = "The URL of the tracing collector. " +
		commonEnvVarUsageText + tracingCollectorURLEnvKey

	tracingServiceNameFlagName  = "tracing-service-name"
	tracingServiceNameEnvKey    = "MERIDIAN_TRACING_SERVICE_NAME"
	tracingServiceNameFlagUsage = "The name of the service reported to the tracing collector." +
		" Defaults to '" + defaultTracingServiceName + "'. " + commonEnvVarUsageText + tracingServiceNameEnvKey

	databaseTypeMemOption     = "mem"
	databaseTypeMongoDBOption = "mongodb"

	firstKnockCavageOption  = "cavage"
	firstKnockRFC9421Option = "rfc9421"

	metricsProviderPrometheusOption = "prometheus"
)

type serverParameters struct {
	hostURL                 string
	externalEndpoint        string
	serviceID               string
	privateKeyPath          string
	keyID                   string
	firstKnock              string
	tlsParams               *tlsParameters
	dbParams                *dbParameters
	mqURL                   string
	authTokenDefinitions    []*auth.TokenDef
	authTokens              map[string]string
	cacheSize               int
	cacheExpiration         time.Duration
	documentCacheRules      []docloader.CacheRule
	activitySyncEnabled     bool
	activitySyncInterval    time.Duration
	activitySyncMinAge      time.Duration
	nodeInfoRefreshInterval time.Duration
	taskMgrCheckInterval    time.Duration
	dataExpiryCheckInterval time.Duration
	serverIdleTimeout       time.Duration
	serverReadHeaderTimeout time.Duration
	maintenanceMode         bool
	metricsProviderName     string
	metricsURL              string
	tracingParams           *tracingParameters
	logLevel                string
}

type tlsParameters struct {
	systemCertPool bool
	caCerts        []string
	serveCertPath  string
	serveKeyPath   string
}

type dbParameters struct {
	databaseType    string
	databaseURL     string
	databasePrefix  string
	databaseTimeout time.Duration
}

type tracingParameters struct {
	provider     tracing.ProviderType
	collectorURL string
	serviceName  string
}

//nolint:gocyclo,funlen
func getMeridianParameters(cmd *cobra.Command) (*serverParameters, error) {
	hostURL, err := cmdutil.GetUserSetVarFromString(cmd, hostURLFlagName, hostURLEnvKey, false)
	if err != nil {
		return nil, err
	}

	externalEndpoint, err := cmdutil.GetUserSetVarFromString(cmd, externalEndpointFlagName, externalEndpointEnvKey, true)
	if err != nil {
		return nil, err
	}

	if externalEndpoint == "" {
		externalEndpoint = "http://" + hostURL
	}

	serviceID, err := cmdutil.GetUserSetVarFromString(cmd, serviceIDFlagName, serviceIDEnvKey, true)
	if err != nil {
		return nil, err
	}

	if serviceID == "" {
		serviceID = defaultServiceID
	}

	privateKeyPath, err := cmdutil.GetUserSetVarFromString(cmd, privateKeyFileFlagName, privateKeyFileEnvKey, true)
	if err != nil {
		return nil, err
	}

	keyID, err := cmdutil.GetUserSetVarFromString(cmd, keyIDFlagName, keyIDEnvKey, true)
	if err != nil {
		return nil, err
	}

	if keyID == "" {
		keyID = defaultKeyID
	}

	firstKnock, err := getFirstKnock(cmd)
	if err != nil {
		return nil, err
	}

	tlsParams, err := getTLSParameters(cmd)
	if err != nil {
		return nil, err
	}

	dbParams, err := getDBParameters(cmd)
	if err != nil {
		return nil, err
	}

	mqURL, err := cmdutil.GetUserSetVarFromString(cmd, mqURLFlagName, mqURLEnvKey, true)
	if err != nil {
		return nil, err
	}

	authTokenDefs, err := getAuthTokenDefinitions(cmd, authTokensDefFlagName, authTokensDefEnvKey, nil)
	if err != nil {
		return nil, err
	}

	authTokens, err := getAuthTokens(cmd, authTokensFlagName, authTokensEnvKey, nil)
	if err != nil {
		return nil, err
	}

	cacheSizeStr := cmdutil.GetUserSetOptionalVarFromString(cmd, cacheSizeFlagName, cacheSizeEnvKey)

	cacheSize := 0
	if cacheSizeStr != "" {
		cacheSize, err = strconv.Atoi(cacheSizeStr)
		if err != nil {
			return nil, fmt.Errorf("invalid cache size format: %s", err.Error())
		}
	}

	cacheExpiration, err := getDuration(cmd, cacheExpirationFlagName, cacheExpirationEnvKey, 0)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cacheExpirationFlagName, err)
	}

	documentCacheRules, err := getDocumentCacheRules(cmd)
	if err != nil {
		return nil, err
	}

	activitySyncStr, err := cmdutil.GetUserSetVarFromString(cmd, activitySyncFlagName, activitySyncEnvKey, true)
	if err != nil {
		return nil, err
	}

	activitySyncEnabled := false
	if activitySyncStr != "" {
		activitySyncEnabled, err = strconv.ParseBool(activitySyncStr)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s [%s]: %w", activitySyncFlagName, activitySyncStr, err)
		}
	}

	activitySyncInterval, err := getDuration(cmd, activitySyncIntervalFlagName, activitySyncIntervalEnvKey, 0)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", activitySyncIntervalFlagName, err)
	}

	activitySyncMinAge, err := getDuration(cmd, activitySyncMinAgeFlagName, activitySyncMinAgeEnvKey, 0)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", activitySyncMinAgeFlagName, err)
	}

	nodeInfoRefreshInterval, err := getDuration(cmd, nodeInfoRefreshIntervalFlagName, nodeInfoRefreshIntervalEnvKey, 0)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", nodeInfoRefreshIntervalFlagName, err)
	}

	taskMgrCheckInterval, err := getDuration(cmd, taskMgrCheckIntervalFlagName, taskMgrCheckIntervalEnvKey,
		defaultTaskMgrCheckInterval)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", taskMgrCheckIntervalFlagName, err)
	}

	dataExpiryCheckInterval, err := getDuration(cmd, dataExpiryCheckIntervalFlagName, dataExpiryCheckIntervalEnvKey,
		defaultDataExpiryCheckInterval)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", dataExpiryCheckIntervalFlagName, err)
	}

	serverIdleTimeout, err := getDuration(cmd, serverIdleTimeoutFlagName, serverIdleTimeoutEnvKey,
		defaultServerIdleTimeout)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", serverIdleTimeoutFlagName, err)
	}

	serverReadHeaderTimeout, err := getDuration(cmd, serverReadHeaderTimeoutFlagName, serverReadHeaderTimeoutEnvKey,
		defaultServerReadHeaderTimeout)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", serverReadHeaderTimeoutFlagName, err)
	}

	maintenanceModeStr, err := cmdutil.GetUserSetVarFromString(cmd, maintenanceModeFlagName, maintenanceModeEnvKey, true)
	if err != nil {
		return nil, err
	}

	maintenanceMode := false
	if maintenanceModeStr != "" {
		maintenanceMode, err = strconv.ParseBool(maintenanceModeStr)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s [%s]: %w", maintenanceModeFlagName, maintenanceModeStr, err)
		}
	}

	metricsProviderName, metricsURL, err := getMetricsParameters(cmd)
	if err != nil {
		return nil, err
	}

	tracingParams, err := getTracingParameters(cmd)
	if err != nil {
		return nil, err
	}

	logLevel, err := cmdutil.GetUserSetVarFromString(cmd, LogLevelFlagName, LogLevelEnvKey, true)
	if err != nil {
		return nil, err
	}

	return &serverParameters{
		hostURL:                 hostURL,
		externalEndpoint:        externalEndpoint,
		serviceID:               serviceID,
		privateKeyPath:          privateKeyPath,
		keyID:                   keyID,
		firstKnock:              firstKnock,
		tlsParams:               tlsParams,
		dbParams:                dbParams,
		mqURL:                   mqURL,
		authTokenDefinitions:    authTokenDefs,
		authTokens:              authTokens,
		cacheSize:               cacheSize,
		cacheExpiration:         cacheExpiration,
		documentCacheRules:      documentCacheRules,
		activitySyncEnabled:     activitySyncEnabled,
		activitySyncInterval:    activitySyncInterval,
		activitySyncMinAge:      activitySyncMinAge,
		nodeInfoRefreshInterval: nodeInfoRefreshInterval,
		taskMgrCheckInterval:    taskMgrCheckInterval,
		dataExpiryCheckInterval: dataExpiryCheckInterval,
		serverIdleTimeout:       serverIdleTimeout,
		serverReadHeaderTimeout: serverReadHeaderTimeout,
		maintenanceMode:         maintenanceMode,
		metricsProviderName:     metricsProviderName,
		metricsURL:              metricsURL,
		tracingParams:           tracingParams,
		logLevel:                logLevel,
	}, nil
}

func getFirstKnock(cmd *cobra.Command) (string, error) {
	firstKnock, err := cmdutil.GetUserSetVarFromString(cmd, firstKnockFlagName, firstKnockEnvKey, true)
	if err != nil {
		return "", err
	}

	switch firstKnock {
	case "":
		return firstKnockCavageOption, nil
	case firstKnockCavageOption, firstKnockRFC9421Option:
		return firstKnock, nil
	default:
		return "", fmt.Errorf("unsupported first knock signature suite: %s", firstKnock)
	}
}

func getTLSParameters(cmd *cobra.Command) (*tlsParameters, error) {
	tlsSystemCertPoolString, err := cmdutil.GetUserSetVarFromString(cmd, tlsSystemCertPoolFlagName,
		tlsSystemCertPoolEnvKey, true)
	if err != nil {
		return nil, err
	}

	tlsSystemCertPool := false
	if tlsSystemCertPoolString != "" {
		tlsSystemCertPool, err = strconv.ParseBool(tlsSystemCertPoolString)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s [%s]: %w", tlsSystemCertPoolFlagName,
				tlsSystemCertPoolString, err)
		}
	}

	tlsCACerts := cmdutil.GetUserSetOptionalVarFromArrayString(cmd, tlsCACertsFlagName, tlsCACertsEnvKey)

	tlsServeCertPath, err := cmdutil.GetUserSetVarFromString(cmd, tlsCertificateFlagName, tlsCertificateEnvKey, true)
	if err != nil {
		return nil, err
	}

	tlsServeKeyPath, err := cmdutil.GetUserSetVarFromString(cmd, tlsKeyFlagName, tlsKeyEnvKey, true)
	if err != nil {
		return nil, err
	}

	return &tlsParameters{
		systemCertPool: tlsSystemCertPool,
		caCerts:        tlsCACerts,
		serveCertPath:  tlsServeCertPath,
		serveKeyPath:   tlsServeKeyPath,
	}, nil
}

func getDBParameters(cmd *cobra.Command) (*dbParameters, error) {
	databaseType, err := cmdutil.GetUserSetVarFromString(cmd, databaseTypeFlagName, databaseTypeEnvKey, false)
	if err != nil {
		return nil, err
	}

	databaseURL, err := cmdutil.GetUserSetVarFromString(cmd, databaseURLFlagName, databaseURLEnvKey, true)
	if err != nil {
		return nil, err
	}

	databasePrefix, err := cmdutil.GetUserSetVarFromString(cmd, databasePrefixFlagName, databasePrefixEnvKey, true)
	if err != nil {
		return nil, err
	}

	databaseTimeout, err := getDuration(cmd, databaseTimeoutFlagName, databaseTimeoutEnvKey, defaultDatabaseTimeout)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", databaseTimeoutFlagName, err)
	}

	switch databaseType {
	case databaseTypeMemOption:
	case databaseTypeMongoDBOption:
		if databaseURL == "" {
			return nil, fmt.Errorf("%s is required when %s is %s", databaseURLFlagName,
				databaseTypeFlagName, databaseTypeMongoDBOption)
		}
	default:
		return nil, fmt.Errorf("unsupported database type: %s", databaseType)
	}

	return &dbParameters{
		databaseType:    databaseType,
		databaseURL:     databaseURL,
		databasePrefix:  databasePrefix,
		databaseTimeout: databaseTimeout,
	}, nil
}

func getMetricsParameters(cmd *cobra.Command) (providerName, metricsURL string, err error) {
	providerName, err = cmdutil.GetUserSetVarFromString(cmd, metricsProviderFlagName, metricsProviderEnvKey, true)
	if err != nil {
		return "", "", err
	}

	switch providerName {
	case "", metricsProviderPrometheusOption:
	default:
		return "", "", fmt.Errorf("unsupported metrics provider: %s", providerName)
	}

	metricsURL, err = cmdutil.GetUserSetVarFromString(cmd, metricsURLFlagName, metricsURLEnvKey, true)
	if err != nil {
		return "", "", err
	}

	if providerName == metricsProviderPrometheusOption && metricsURL == "" {
		return "", "", fmt.Errorf("%s is required when %s is %s", metricsURLFlagName,
			metricsProviderFlagName, metricsProviderPrometheusOption)
	}

	return providerName, metricsURL, nil
}

func getTracingParameters(cmd *cobra.Command) (*tracingParameters, error) {
	provider, err := cmdutil.GetUserSetVarFromString(cmd, tracingProviderFlagName, tracingProviderEnvKey, true)
	if err != nil {
		return nil, err
	}

	switch strings.ToUpper(provider) {
	case tracing.ProviderNone, tracing.ProviderJaeger:
		provider = strings.ToUpper(provider)
	default:
		return nil, fmt.Errorf("unsupported tracing provider: %s", provider)
	}

	collectorURL, err := cmdutil.GetUserSetVarFromString(cmd, tracingCollectorURLFlagName, tracingCollectorURLEnvKey, true)
	if err != nil {
		return nil, err
	}

	if provider == tracing.ProviderJaeger && collectorURL == "" {
		return nil, fmt.Errorf("%s is required when %s is %s", tracingCollectorURLFlagName,
			tracingProviderFlagName, tracing.ProviderJaeger)
	}

	serviceName, err := cmdutil.GetUserSetVarFromString(cmd, tracingServiceNameFlagName, tracingServiceNameEnvKey, true)
	if err != nil {
		return nil, err
	}

	if serviceName == "" {
		serviceName = defaultTracingServiceName
	}

	return &tracingParameters{
		provider:     provider,
		collectorURL: collectorURL,
		serviceName:  serviceName,
	}, nil
}

func getAuthTokenDefinitions(cmd *cobra.Command, flagName, envKey string,
	defaultDefs []*auth.TokenDef) ([]*auth.TokenDef, error) {
	authTokenDefsStr, err := cmdutil.GetUserSetVarFromArrayString(cmd, flagName, envKey, true)
	if err != nil {
		return nil, err
	}

	if len(authTokenDefsStr) == 0 {
		return defaultDefs, nil
	}

	var authTokenDefs []*auth.TokenDef

	for _, defStr := range authTokenDefsStr {
		parts := strings.Split(defStr, "|")

		if len(parts) > 3 {
			return nil, fmt.Errorf("invalid auth token definition [%s]: expecting"+
				" <endpoint-expression>|<read-token-ids>|<write-token-ids>", defStr)
		}

		var readTokens, writeTokens []string

		if len(parts) > 1 {
			readTokens = filterEmptyTokens(strings.Split(parts[1], "&"))
		}

		if len(parts) > 2 {
			writeTokens = filterEmptyTokens(strings.Split(parts[2], "&"))
		}

		authTokenDefs = append(authTokenDefs, &auth.TokenDef{
			EndpointExpression: parts[0],
			ReadTokens:         readTokens,
			WriteTokens:        writeTokens,
		})
	}

	return authTokenDefs, nil
}

func filterEmptyTokens(tokens []string) []string {
	var nonEmptyTokens []string

	for _, token := range tokens {
		if token != "" {
			nonEmptyTokens = append(nonEmptyTokens, token)
		}
	}

	return nonEmptyTokens
}

func getAuthTokens(cmd *cobra.Command, flagName, envKey string,
	defaultTokens map[string]string) (map[string]string, error) {
	authTokensStr, err := cmdutil.GetUserSetVarFromArrayString(cmd, flagName, envKey, true)
	if err != nil {
		return nil, err
	}

	if len(authTokensStr) == 0 {
		return defaultTokens, nil
	}

	authTokens := make(map[string]string)

	for _, keyValStr := range authTokensStr {
		keyVal := strings.Split(keyValStr, "=")

		if len(keyVal) != 2 {
			return nil, fmt.Errorf("invalid auth token [%s]: expecting <token-id>=<token-value>", keyValStr)
		}

		authTokens[keyVal[0]] = keyVal[1]
	}

	return authTokens, nil
}

func getDocumentCacheRules(cmd *cobra.Command) ([]docloader.CacheRule, error) {
	ruleStrs := cmdutil.GetUserSetOptionalVarFromArrayString(cmd, documentCacheRuleFlagName, documentCacheRuleEnvKey)

	var rules []docloader.CacheRule

	for _, ruleStr := range ruleStrs {
		parts := strings.Split(ruleStr, "|")

		if len(parts) > 2 {
			return nil, fmt.Errorf("invalid document cache rule [%s]: expecting <uri-template>|<ttl>", ruleStr)
		}

		ttl := defaultDocumentCacheTTL

		if len(parts) > 1 && parts[1] != "" {
			var err error

			ttl, err = time.ParseDuration(parts[1])
			if err != nil {
				return nil, fmt.Errorf("invalid TTL in document cache rule [%s]: %w", ruleStr, err)
			}
		}

		tmpl, err := uritemplate.Parse(parts[0])
		if err != nil {
			return nil, fmt.Errorf("invalid template in document cache rule [%s]: %w", ruleStr, err)
		}

		rules = append(rules, docloader.MatchTemplate(tmpl, ttl))
	}

	return rules, nil
}

func getDuration(cmd *cobra.Command, flagName, envKey string,
	defaultDuration time.Duration) (time.Duration, error) {
	timeoutStr, err := cmdutil.GetUserSetVarFromString(cmd, flagName, envKey, true)
	if err != nil {
		return -1, err
	}

	if timeoutStr == "" {
		return defaultDuration, nil
	}

	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return -1, fmt.Errorf("invalid duration format [%s]: %w", timeoutStr, err)
	}

	return timeout, nil
}

func createFlags(startCmd *cobra.Command) {
	startCmd.Flags().StringP(hostURLFlagName, hostURLFlagShorthand, "", hostURLFlagUsage)
	startCmd.Flags().StringP(externalEndpointFlagName, externalEndpointFlagShorthand, "", externalEndpointFlagUsage)
	startCmd.Flags().StringP(serviceIDFlagName, "", "", serviceIDFlagUsage)
	startCmd.Flags().StringP(tlsSystemCertPoolFlagName, "", "", tlsSystemCertPoolFlagUsage)
	startCmd.Flags().StringArrayP(tlsCACertsFlagName, "", []string{}, tlsCACertsFlagUsage)
	startCmd.Flags().StringP(tlsCertificateFlagName, tlsCertificateFlagShorthand, "", tlsCertificateFlagUsage)
	startCmd.Flags().StringP(tlsKeyFlagName, tlsKeyFlagShorthand, "", tlsKeyFlagUsage)
	startCmd.Flags().StringP(databaseTypeFlagName, databaseTypeFlagShorthand, "", databaseTypeFlagUsage)
	startCmd.Flags().StringP(databaseURLFlagName, databaseURLFlagShorthand, "", databaseURLFlagUsage)
	startCmd.Flags().StringP(databasePrefixFlagName, "", "", databasePrefixFlagUsage)
	startCmd.Flags().StringP(databaseTimeoutFlagName, "", "", databaseTimeoutFlagUsage)
	startCmd.Flags().StringP(mqURLFlagName, mqURLFlagShorthand, "", mqURLFlagUsage)
	startCmd.Flags().StringP(privateKeyFileFlagName, "", "", privateKeyFileFlagUsage)
	startCmd.Flags().StringP(keyIDFlagName, "", "", keyIDFlagUsage)
	startCmd.Flags().StringP(firstKnockFlagName, "", "", firstKnockFlagUsage)
	startCmd.Flags().StringArrayP(authTokensDefFlagName, "", []string{}, authTokensDefFlagUsage)
	startCmd.Flags().StringArrayP(authTokensFlagName, "", []string{}, authTokensFlagUsage)
	startCmd.Flags().StringP(cacheSizeFlagName, "", "", cacheSizeFlagUsage)
	startCmd.Flags().StringP(cacheExpirationFlagName, "", "", cacheExpirationFlagUsage)
	startCmd.Flags().StringArrayP(documentCacheRuleFlagName, "", []string{}, documentCacheRuleFlagUsage)
	startCmd.Flags().StringP(activitySyncFlagName, "", "", activitySyncFlagUsage)
	startCmd.Flags().StringP(activitySyncIntervalFlagName, "", "", activitySyncIntervalFlagUsage)
	startCmd.Flags().StringP(activitySyncMinAgeFlagName, "", "", activitySyncMinAgeFlagUsage)
	startCmd.Flags().StringP(nodeInfoRefreshIntervalFlagName, "", "", nodeInfoRefreshIntervalFlagUsage)
	startCmd.Flags().StringP(taskMgrCheckIntervalFlagName, "", "", taskMgrCheckIntervalFlagUsage)
	startCmd.Flags().StringP(dataExpiryCheckIntervalFlagName, "", "", dataExpiryCheckIntervalFlagUsage)
	startCmd.Flags().StringP(serverIdleTimeoutFlagName, "", "", serverIdleTimeoutFlagUsage)
	startCmd.Flags().StringP(serverReadHeaderTimeoutFlagName, "", "", serverReadHeaderTimeoutFlagUsage)
	startCmd.Flags().StringP(maintenanceModeFlagName, "", "", maintenanceModeFlagUsage)
	startCmd.Flags().StringP(metricsProviderFlagName, "", "", metricsProviderFlagUsage)
	startCmd.Flags().StringP(metricsURLFlagName, "", "", metricsURLFlagUsage)
	startCmd.Flags().StringP(tracingProviderFlagName, "", "", tracingProviderFlagUsage)
	startCmd.Flags().StringP(tracingCollectorURLFlagName, "", "", tracingCollectorURLFlagUsage)
	startCmd.Flags().StringP(tracingServiceNameFlagName, "", "", tracingServiceNameFlagUsage)
	startCmd.Flags().StringP(LogLevelFlagName, LogLevelFlagShorthand, "", LogLevelPrefixFlagUsage)
}
