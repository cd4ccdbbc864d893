/*
Copyright Fedway Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package healthcheck

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type mockQueue struct {
	connected bool
}

func (m *mockQueue) IsConnected() bool { return m.connected }

type mockDB struct {
	err error
}

func (m *mockDB) Ping() error { return m.err }

func invoke(t *testing.T, h *Handler) (int, *response) {
	t.Helper()

	w := httptest.NewRecorder()

	h.Handler()(w, httptest.NewRequest(http.MethodGet, h.Path(), nil))

	resp := &response{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), resp))

	return w.Code, resp
}

func TestHandler(t *testing.T) {
	require.Equal(t, http.MethodGet, NewHandler(nil, nil).Method())
	require.Equal(t, "/healthcheck", NewHandler(nil, nil).Path())

	t.Run("all healthy", func(t *testing.T) {
		code, resp := invoke(t, NewHandler(&mockQueue{connected: true}, &mockDB{}))

		require.Equal(t, http.StatusOK, code)
		require.Equal(t, "success", resp.MQStatus)
		require.Equal(t, "success", resp.DBStatus)
		require.Equal(t, "OK", resp.Status)
	})

	t.Run("nothing to check", func(t *testing.T) {
		code, resp := invoke(t, NewHandler(nil, nil))

		require.Equal(t, http.StatusOK, code)
		require.Empty(t, resp.MQStatus)
		require.Empty(t, resp.DBStatus)
	})

	t.Run("queue not connected", func(t *testing.T) {
		code, resp := invoke(t, NewHandler(&mockQueue{}, &mockDB{}))

		require.Equal(t, http.StatusServiceUnavailable, code)
		require.Equal(t, "not connected", resp.MQStatus)
	})

	t.Run("db ping failure", func(t *testing.T) {
		code, resp := invoke(t, NewHandler(&mockQueue{connected: true}, &mockDB{err: errors.New("db down")}))

		require.Equal(t, http.StatusServiceUnavailable, code)
		require.Equal(t, "db down", resp.DBStatus)
	})
}
