/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package startcmd

import (
	"net"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

func TestStartCmdContents(t *testing.T) {
	startCmd := GetStartCmd()

	require.Equal(t, "start", startCmd.Use)
	require.Equal(t, "Start meridian-server", startCmd.Short)
	require.Equal(t, "Start meridian-server", startCmd.Long)

	checkFlagPropertiesCorrect(t, startCmd, hostURLFlagName, hostURLFlagShorthand, hostURLFlagUsage)
}

func TestStartCmdWithBlankArg(t *testing.T) {
	t.Run("test blank host url arg", func(t *testing.T) {
		startCmd := GetStartCmd()

		args := []string{"--" + hostURLFlagName, ""}
		startCmd.SetArgs(args)

		err := startCmd.Execute()
		require.Error(t, err)
		require.Equal(t, "host-url value is empty", err.Error())
	})

	t.Run("test blank database type arg", func(t *testing.T) {
		startCmd := GetStartCmd()

		args := []string{"--" + hostURLFlagName, "localhost:8080", "--" + databaseTypeFlagName, ""}
		startCmd.SetArgs(args)

		err := startCmd.Execute()
		require.Error(t, err)
		require.Equal(t, "database-type value is empty", err.Error())
	})
}

func TestStartCmdWithMissingArg(t *testing.T) {
	t.Run("test missing host url arg", func(t *testing.T) {
		startCmd := GetStartCmd()

		err := startCmd.Execute()

		require.Error(t, err)
		require.Equal(t,
			"Neither host-url (command line flag) nor MERIDIAN_HOST_URL (environment variable) have been set.",
			err.Error())
	})

	t.Run("test missing database type arg", func(t *testing.T) {
		startCmd := GetStartCmd()

		args := []string{"--" + hostURLFlagName, "localhost:8080"}
		startCmd.SetArgs(args)

		err := startCmd.Execute()

		require.Error(t, err)
		require.Equal(t,
			"Neither database-type (command line flag) nor MERIDIAN_DATABASE_TYPE (environment variable)"+
				" have been set.",
			err.Error())
	})
}

//nolint:funlen
func TestStartCmdWithInvalidArgs(t *testing.T) {
	t.Run("unsupported database type", func(t *testing.T) {
		err := executeWithArgs(
			"--"+hostURLFlagName, "localhost:8080",
			"--"+databaseTypeFlagName, "couchdb",
		)
		require.Error(t, err)
		require.Equal(t, "unsupported database type: couchdb", err.Error())
	})

	t.Run("mongodb requires a database URL", func(t *testing.T) {
		err := executeWithArgs(
			"--"+hostURLFlagName, "localhost:8080",
			"--"+databaseTypeFlagName, databaseTypeMongoDBOption,
		)
		require.Error(t, err)
		require.Equal(t, "database-url is required when database-type is mongodb", err.Error())
	})

	t.Run("invalid database timeout", func(t *testing.T) {
		err := executeWithArgs(
			"--"+hostURLFlagName, "localhost:8080",
			"--"+databaseTypeFlagName, databaseTypeMemOption,
			"--"+databaseTimeoutFlagName, "5",
		)
		require.Error(t, err)
		require.Contains(t, err.Error(), "invalid duration format [5]")
	})

	t.Run("unsupported first knock signature suite", func(t *testing.T) {
		err := executeWithArgs(
			"--"+hostURLFlagName, "localhost:8080",
			"--"+firstKnockFlagName, "hs2019",
		)
		require.Error(t, err)
		require.Equal(t, "unsupported first knock signature suite: hs2019", err.Error())
	})

	t.Run("invalid TLS system cert pool flag", func(t *testing.T) {
		err := executeWithArgs(
			"--"+hostURLFlagName, "localhost:8080",
			"--"+tlsSystemCertPoolFlagName, "maybe",
		)
		require.Error(t, err)
		require.Contains(t, err.Error(), "invalid value for tls-systemcertpool")
	})

	t.Run("invalid cache size", func(t *testing.T) {
		err := executeWithArgs(
			"--"+hostURLFlagName, "localhost:8080",
			"--"+databaseTypeFlagName, databaseTypeMemOption,
			"--"+cacheSizeFlagName, "xyz",
		)
		require.Error(t, err)
		require.Contains(t, err.Error(), "invalid cache size format")
	})

	t.Run("invalid cache expiration", func(t *testing.T) {
		err := executeWithArgs(
			"--"+hostURLFlagName, "localhost:8080",
			"--"+databaseTypeFlagName, databaseTypeMemOption,
			"--"+cacheExpirationFlagName, "10",
		)
		require.Error(t, err)
		require.Contains(t, err.Error(), "invalid duration format [10]")
	})

	t.Run("invalid auth token definition", func(t *testing.T) {
		err := executeWithArgs(
			"--"+hostURLFlagName, "localhost:8080",
			"--"+databaseTypeFlagName, databaseTypeMemOption,
			"--"+authTokensDefFlagName, "/services/meridian/outbox|read|write|other",
		)
		require.Error(t, err)
		require.Contains(t, err.Error(), "invalid auth token definition")
	})

	t.Run("invalid auth token", func(t *testing.T) {
		err := executeWithArgs(
			"--"+hostURLFlagName, "localhost:8080",
			"--"+databaseTypeFlagName, databaseTypeMemOption,
			"--"+authTokensFlagName, "admin",
		)
		require.Error(t, err)
		require.Equal(t, "invalid auth token [admin]: expecting <token-id>=<token-value>", err.Error())
	})

	t.Run("invalid document cache rule", func(t *testing.T) {
		err := executeWithArgs(
			"--"+hostURLFlagName, "localhost:8080",
			"--"+databaseTypeFlagName, databaseTypeMemOption,
			"--"+documentCacheRuleFlagName, "https://example.com/contexts/{name}|1h|extra",
		)
		require.Error(t, err)
		require.Contains(t, err.Error(), "invalid document cache rule")
	})

	t.Run("invalid TTL in document cache rule", func(t *testing.T) {
		err := executeWithArgs(
			"--"+hostURLFlagName, "localhost:8080",
			"--"+databaseTypeFlagName, databaseTypeMemOption,
			"--"+documentCacheRuleFlagName, "https://example.com/contexts/{name}|abc",
		)
		require.Error(t, err)
		require.Contains(t, err.Error(), "invalid TTL in document cache rule")
	})

	t.Run("invalid template in document cache rule", func(t *testing.T) {
		err := executeWithArgs(
			"--"+hostURLFlagName, "localhost:8080",
			"--"+databaseTypeFlagName, databaseTypeMemOption,
			"--"+documentCacheRuleFlagName, "https://example.com/{handle|1h",
		)
		require.Error(t, err)
		require.Contains(t, err.Error(), "invalid template in document cache rule")
	})

	t.Run("invalid activity sync flag", func(t *testing.T) {
		err := executeWithArgs(
			"--"+hostURLFlagName, "localhost:8080",
			"--"+databaseTypeFlagName, databaseTypeMemOption,
			"--"+activitySyncFlagName, "sometimes",
		)
		require.Error(t, err)
		require.Contains(t, err.Error(), "invalid value for activity-sync")
	})

	t.Run("invalid activity sync interval", func(t *testing.T) {
		err := executeWithArgs(
			"--"+hostURLFlagName, "localhost:8080",
			"--"+databaseTypeFlagName, databaseTypeMemOption,
			"--"+activitySyncIntervalFlagName, "30",
		)
		require.Error(t, err)
		require.Contains(t, err.Error(), "invalid duration format [30]")
	})

	t.Run("invalid maintenance mode flag", func(t *testing.T) {
		err := executeWithArgs(
			"--"+hostURLFlagName, "localhost:8080",
			"--"+databaseTypeFlagName, databaseTypeMemOption,
			"--"+maintenanceModeFlagName, "definitely",
		)
		require.Error(t, err)
		require.Contains(t, err.Error(), "invalid value for maintenance-mode")
	})

	t.Run("unsupported metrics provider", func(t *testing.T) {
		err := executeWithArgs(
			"--"+hostURLFlagName, "localhost:8080",
			"--"+databaseTypeFlagName, databaseTypeMemOption,
			"--"+metricsProviderFlagName, "statsd",
		)
		require.Error(t, err)
		require.Equal(t, "unsupported metrics provider: statsd", err.Error())
	})

	t.Run("prometheus requires a metrics URL", func(t *testing.T) {
		err := executeWithArgs(
			"--"+hostURLFlagName, "localhost:8080",
			"--"+databaseTypeFlagName, databaseTypeMemOption,
			"--"+metricsProviderFlagName, metricsProviderPrometheusOption,
		)
		require.Error(t, err)
		require.Equal(t, "metrics-url is required when metrics-provider-name is prometheus", err.Error())
	})

	t.Run("unsupported tracing provider", func(t *testing.T) {
		err := executeWithArgs(
			"--"+hostURLFlagName, "localhost:8080",
			"--"+databaseTypeFlagName, databaseTypeMemOption,
			"--"+tracingProviderFlagName, "zipkin",
		)
		require.Error(t, err)
		require.Equal(t, "unsupported tracing provider: zipkin", err.Error())
	})

	t.Run("Jaeger requires a collector URL", func(t *testing.T) {
		err := executeWithArgs(
			"--"+hostURLFlagName, "localhost:8080",
			"--"+databaseTypeFlagName, databaseTypeMemOption,
			"--"+tracingProviderFlagName, "jaeger",
		)
		require.Error(t, err)
		require.Equal(t, "tracing-collector-url is required when tracing-provider is JAEGER", err.Error())
	})
}

func TestAuthTokens(t *testing.T) {
	startCmd := GetStartCmd()

	args := []string{
		"--" + authTokensDefFlagName, "/services/meridian/keys",
		"--" + authTokensDefFlagName, "/services/meridian/outbox|admin&read|admin",
		"--" + authTokensDefFlagName, "/services/meridian/inbox||admin",
		"--" + authTokensDefFlagName, "/services/meridian/activities|read&",
		"--" + authTokensFlagName, "admin=ADMIN_TOKEN",
		"--" + authTokensFlagName, "read=READ_TOKEN",
	}
	startCmd.SetArgs(args)

	err := startCmd.Execute()
	require.Error(t, err)

	authDefs, err := getAuthTokenDefinitions(startCmd, authTokensDefFlagName, authTokensDefEnvKey, nil)
	require.NoError(t, err)
	require.Len(t, authDefs, 4)

	require.Equal(t, "/services/meridian/keys", authDefs[0].EndpointExpression)
	require.Empty(t, authDefs[0].ReadTokens)
	require.Empty(t, authDefs[0].WriteTokens)

	require.Equal(t, "/services/meridian/outbox", authDefs[1].EndpointExpression)
	require.Len(t, authDefs[1].ReadTokens, 2)
	require.Equal(t, "admin", authDefs[1].ReadTokens[0])
	require.Equal(t, "read", authDefs[1].ReadTokens[1])
	require.Len(t, authDefs[1].WriteTokens, 1)
	require.Equal(t, "admin", authDefs[1].WriteTokens[0])

	require.Equal(t, "/services/meridian/inbox", authDefs[2].EndpointExpression)
	require.Empty(t, authDefs[2].ReadTokens)
	require.Len(t, authDefs[2].WriteTokens, 1)

	require.Equal(t, "/services/meridian/activities", authDefs[3].EndpointExpression)
	require.Len(t, authDefs[3].ReadTokens, 1)
	require.Empty(t, authDefs[3].WriteTokens)

	authTokens, err := getAuthTokens(startCmd, authTokensFlagName, authTokensEnvKey, nil)
	require.NoError(t, err)
	require.Len(t, authTokens, 2)
	require.Equal(t, "ADMIN_TOKEN", authTokens["admin"])
	require.Equal(t, "READ_TOKEN", authTokens["read"])
}

func TestDocumentCacheRules(t *testing.T) {
	startCmd := GetStartCmd()

	args := []string{
		"--" + documentCacheRuleFlagName, "https://www.w3.org/ns/activitystreams",
		"--" + documentCacheRuleFlagName, "https://w3id.org/security/v1|30m",
	}
	startCmd.SetArgs(args)

	err := startCmd.Execute()
	require.Error(t, err)

	rules, err := getDocumentCacheRules(startCmd)
	require.NoError(t, err)
	require.Len(t, rules, 2)
}

func TestStartCmdValidArgs(t *testing.T) {
	const hostURL = "localhost:8247"

	startCmd := GetStartCmd()

	args := []string{
		"--" + hostURLFlagName, hostURL,
		"--" + databaseTypeFlagName, databaseTypeMemOption,
		"--" + cacheSizeFlagName, "100",
		"--" + LogLevelFlagName, "INFO",
	}
	startCmd.SetArgs(args)

	go func() {
		err := startCmd.Execute()
		require.NoError(t, err)
	}()

	require.NoError(t, backoff.Retry(func() error {
		_, err := net.DialTimeout("tcp", hostURL, time.Second)

		return err
	}, backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Second), 10)))

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGINT))
}

func TestStartCmdValidArgsEnvVar(t *testing.T) {
	const hostURL = "localhost:8248"

	startCmd := GetStartCmd()

	setEnvVars(t, hostURL)

	defer unsetEnvVars(t)

	go func() {
		err := startCmd.Execute()
		require.NoError(t, err)
	}()

	require.NoError(t, backoff.Retry(func() error {
		_, err := net.DialTimeout("tcp", hostURL, time.Second)

		return err
	}, backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Second), 10)))

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGINT))
}

func setEnvVars(t *testing.T, hostURL string) {
	t.Helper()

	err := os.Setenv(hostURLEnvKey, hostURL)
	require.NoError(t, err)

	err = os.Setenv(databaseTypeEnvKey, databaseTypeMemOption)
	require.NoError(t, err)
}

func unsetEnvVars(t *testing.T) {
	t.Helper()

	err := os.Unsetenv(hostURLEnvKey)
	require.NoError(t, err)

	err = os.Unsetenv(databaseTypeEnvKey)
	require.NoError(t, err)
}

func executeWithArgs(args ...string) error {
	startCmd := GetStartCmd()

	startCmd.SetArgs(args)

	return startCmd.Execute()
}

func checkFlagPropertiesCorrect(t *testing.T, cmd *cobra.Command, flagName, flagShorthand, flagUsage string) {
	t.Helper()

	flag := cmd.Flag(flagName)

	require.NotNil(t, flag)
	require.Equal(t, flagName, flag.Name)
	require.Equal(t, flagShorthand, flag.Shorthand)
	require.Equal(t, flagUsage, flag.Usage)
	require.Equal(t, "", flag.Value.String())

	flagAnnotations := flag.Annotations
	require.Nil(t, flagAnnotations)
}
