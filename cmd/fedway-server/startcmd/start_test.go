/*
Copyright Fedway Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package startcmd

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fedway/fedway/pkg/queue/memqueue"
	"github.com/fedway/fedway/pkg/store/memstore"
)

func TestGetStartCmd(t *testing.T) {
	startCmd := GetStartCmd()

	require.Equal(t, "start", startCmd.Use)
	require.Equal(t, "Start fedway-server", startCmd.Short)
	require.NotNil(t, startCmd.RunE)

	require.NotNil(t, startCmd.Flags().Lookup(hostURLFlagName))
	require.NotNil(t, startCmd.Flags().Lookup(databaseTypeFlagName))
	require.NotNil(t, startCmd.Flags().Lookup(tracingProviderFlagName))
}

func TestStartCmdWithMissingHostURL(t *testing.T) {
	startCmd := GetStartCmd()
	startCmd.SetArgs([]string{})

	err := startCmd.Execute()
	require.Error(t, err)
	require.Contains(t, err.Error(), hostURLFlagName)
}

func TestCreateStoreProvider(t *testing.T) {
	t.Run("mem", func(t *testing.T) {
		provider, pinger, err := createStoreProvider(&dbParameters{databaseType: "mem"})
		require.NoError(t, err)
		require.NotNil(t, provider)
		require.Nil(t, pinger)
	})

	t.Run("unsupported type -> error", func(t *testing.T) {
		_, _, err := createStoreProvider(&dbParameters{databaseType: "couchdb"})
		require.Error(t, err)
		require.Contains(t, err.Error(), "unsupported database type")
	})
}

func TestCreateQueue(t *testing.T) {
	t.Run("no broker URL -> in-memory queue", func(t *testing.T) {
		queue, err := createQueue("")
		require.NoError(t, err)
		require.IsType(t, &memqueue.Queue{}, queue)
		require.True(t, queue.IsConnected())

		require.NoError(t, queue.Close())
	})
}

func TestLoadOrCreateKeyPair(t *testing.T) {
	store, err := memstore.New("federation")
	require.NoError(t, err)

	key1, err := loadOrCreateKeyPair(store)
	require.NoError(t, err)
	require.NotNil(t, key1)

	// The key pair is persisted: a second load returns the same key.
	key2, err := loadOrCreateKeyPair(store)
	require.NoError(t, err)
	require.Equal(t, key1.N, key2.N)
	require.Equal(t, key1.D, key2.D)
}

func TestNewHTTPClient(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		client, err := newHTTPClient(&tlsParameters{})
		require.NoError(t, err)
		require.NotNil(t, client)
	})

	t.Run("with system cert pool", func(t *testing.T) {
		client, err := newHTTPClient(&tlsParameters{systemCertPool: true})
		require.NoError(t, err)
		require.NotNil(t, client)
	})

	t.Run("invalid CA cert file -> error", func(t *testing.T) {
		_, err := newHTTPClient(&tlsParameters{caCerts: []string{"no-such-file.pem"}})
		require.Error(t, err)
	})
}

func TestMetricsHandler(t *testing.T) {
	handler := newMetricsHandler()

	require.Equal(t, http.MethodGet, handler.Method())
	require.Equal(t, metricsEndpoint, handler.Path())

	rec := httptest.NewRecorder()
	handler.Handler()(rec, httptest.NewRequest(http.MethodGet, metricsEndpoint, nil))

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSetLogLevels(t *testing.T) {
	setLogLevels("")
	setLogLevels("federation=DEBUG:INFO")
	setLogLevels("not a valid spec")
}
