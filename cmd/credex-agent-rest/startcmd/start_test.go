/*
Copyright Trustridge Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package startcmd

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

type mockServer struct {
	host   string
	router http.Handler
}

func (s *mockServer) ListenAndServe(host string, router http.Handler, certFile, keyFile string) error {
	s.host = host
	s.router = router

	return nil
}

func TestStartCmdContents(t *testing.T) {
	startCmd, err := Cmd(&mockServer{})
	require.NoError(t, err)

	require.Equal(t, "start", startCmd.Use)
	require.Equal(t, "Start an agent", startCmd.Short)
	require.Equal(t, "Start a credential exchange agent controller", startCmd.Long)

	for _, flagName := range []string{
		agentHostFlagName, agentTokenFlagName, agentInboundHostFlagName,
		databaseTypeFlagName, databaseURLFlagName, ledgerURLFlagName,
		autoOfferFlagName, autoIssueFlagName, autoStoreFlagName, autoRemoveFlagName,
		agentLogLevelFlagName, agentTLSCertFileFlagName, agentTLSKeyFileFlagName,
	} {
		require.NotNil(t, startCmd.Flags().Lookup(flagName), flagName)
	}
}

func TestStartCmdWithBlankHostArg(t *testing.T) {
	startCmd, err := Cmd(&mockServer{})
	require.NoError(t, err)

	startCmd.SetArgs([]string{"--" + agentHostFlagName, "", "--" + databaseTypeFlagName, databaseTypeMemOption})

	err = startCmd.Execute()
	require.Equal(t, errMissingHost, err)
}

func TestStartCmdWithMissingHostArg(t *testing.T) {
	startCmd, err := Cmd(&mockServer{})
	require.NoError(t, err)

	startCmd.SetArgs([]string{"--" + databaseTypeFlagName, databaseTypeMemOption})

	err = startCmd.Execute()
	require.Error(t, err)
	require.Contains(t, err.Error(), agentHostFlagName)
	require.Contains(t, err.Error(), agentHostEnvKey)
}

func TestStartCmdValidArgs(t *testing.T) {
	server := &mockServer{}

	startCmd, err := Cmd(server)
	require.NoError(t, err)

	startCmd.SetArgs([]string{
		"--" + agentHostFlagName, "localhost:8080",
		"--" + databaseTypeFlagName, databaseTypeMemOption,
		"--" + autoOfferFlagName, "true",
	})

	require.NoError(t, startCmd.Execute())
	require.Equal(t, "localhost:8080", server.host)
	require.NotNil(t, server.router)
}

func TestStartCmdValidArgsEnvVariable(t *testing.T) {
	server := &mockServer{}

	startCmd, err := Cmd(server)
	require.NoError(t, err)

	require.NoError(t, os.Setenv(agentHostEnvKey, "localhost:8080"))
	require.NoError(t, os.Setenv(databaseTypeEnvKey, databaseTypeMemOption))

	defer func() {
		require.NoError(t, os.Unsetenv(agentHostEnvKey))
		require.NoError(t, os.Unsetenv(databaseTypeEnvKey))
	}()

	require.NoError(t, startCmd.Execute())
	require.Equal(t, "localhost:8080", server.host)
}

func TestStartCmdUnsupportedDatabaseType(t *testing.T) {
	startCmd, err := Cmd(&mockServer{})
	require.NoError(t, err)

	startCmd.SetArgs([]string{
		"--" + agentHostFlagName, "localhost:8080",
		"--" + databaseTypeFlagName, "oracle",
		"--" + databaseTimeoutFlagName, "1",
	})

	err = startCmd.Execute()
	require.Error(t, err)
	require.Contains(t, err.Error(), "database type not set to a valid type")
}

func TestStartCmdInvalidAutomationFlag(t *testing.T) {
	startCmd, err := Cmd(&mockServer{})
	require.NoError(t, err)

	startCmd.SetArgs([]string{
		"--" + agentHostFlagName, "localhost:8080",
		"--" + databaseTypeFlagName, databaseTypeMemOption,
		"--" + autoIssueFlagName, "maybe",
	})

	err = startCmd.Execute()
	require.Error(t, err)
	require.Contains(t, err.Error(), autoIssueFlagName)
}

func TestStartCmdInvalidLogLevel(t *testing.T) {
	startCmd, err := Cmd(&mockServer{})
	require.NoError(t, err)

	startCmd.SetArgs([]string{
		"--" + agentHostFlagName, "localhost:8080",
		"--" + databaseTypeFlagName, databaseTypeMemOption,
		"--" + agentLogLevelFlagName, "LOUD",
	})

	err = startCmd.Execute()
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to parse log level")
}

func TestStartCmdInvalidDatabaseTimeout(t *testing.T) {
	startCmd, err := Cmd(&mockServer{})
	require.NoError(t, err)

	startCmd.SetArgs([]string{
		"--" + agentHostFlagName, "localhost:8080",
		"--" + databaseTypeFlagName, databaseTypeMemOption,
		"--" + databaseTimeoutFlagName, "soon",
	})

	err = startCmd.Execute()
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to parse db timeout")
}

func TestStartCmdRoutesConfigured(t *testing.T) {
	server := &mockServer{}

	startCmd, err := Cmd(server)
	require.NoError(t, err)

	startCmd.SetArgs([]string{
		"--" + agentHostFlagName, "localhost:8080",
		"--" + databaseTypeFlagName, databaseTypeMemOption,
	})

	require.NoError(t, startCmd.Execute())

	// records query is served by the admin API.
	req := httptest.NewRequest(http.MethodGet, "/issue-credential/records", nil)
	rr := httptest.NewRecorder()

	server.router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	// inbound didcomm endpoint shares the host when no inbound host is set.
	req = httptest.NewRequest(http.MethodPost, "/didcomm", nil)
	rr = httptest.NewRecorder()

	server.router.ServeHTTP(rr, req)
	require.NotEqual(t, http.StatusNotFound, rr.Code)
}

func TestAuthorizationMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := authorizationMiddleware("secret")(next)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rr = httptest.NewRecorder()

	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rr = httptest.NewRecorder()

	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
}
