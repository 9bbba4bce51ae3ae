package rituals

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hubA1 = `{"hub":{"hash":"hashA1","hublot":"A1","status":1,
	"attributes":{"roomnamec":"Living Room","fanc":"1"},
	"sensors":{"battc":{"id":21,"title":"Charging"},"rfidc":{"title":"The Ritual of Sakura"},"versionc":"4.0"}}}`

const hubB2 = `{"hub":{"hash":"hashB2","hublot":"B2","status":0,
	"attributes":{"roomnamec":"Bedroom","fanc":"0"},
	"sensors":{"rfidc":{"title":"No cartridge"}}}}`

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/ocapi/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if req.Password != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"account_hash":"acc123"}`))
	})
	mux.HandleFunc("/api/account/hubs/acc123", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("[" + hubA1 + "," + hubB2 + "]"))
	})
	mux.HandleFunc("/api/account/hub/hashA1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(hubA1))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestAccount(t *testing.T) {
	ctx := context.Background()

	t.Run("Authenticate and list", func(t *testing.T) {
		srv := newTestServer(t)
		sut := NewAccount(srv.URL, "user@example.com", "secret", srv.Client(), testLogger())

		require.NoError(t, sut.Authenticate(ctx))
		assert.Equal(t, "acc123", sut.AccountHash())

		diffusers, err := sut.Diffusers(ctx)
		require.NoError(t, err)
		require.Len(t, diffusers, 2)

		assert.Equal(t, "A1", diffusers[0].Hublot)
		assert.Equal(t, "hashA1", diffusers[0].Hash)
		assert.Equal(t, "Living Room", diffusers[0].Name)
		assert.True(t, diffusers[0].HasBattery)
		assert.True(t, diffusers[0].Charging)

		assert.Equal(t, "B2", diffusers[1].Hublot)
		assert.False(t, diffusers[1].HasBattery)
		assert.False(t, diffusers[1].Charging)
	})

	t.Run("Bad credentials", func(t *testing.T) {
		srv := newTestServer(t)
		sut := NewAccount(srv.URL, "user@example.com", "wrong", srv.Client(), testLogger())

		err := sut.Authenticate(ctx)
		require.ErrorIs(t, err, ErrAuthenticationFailed)
		assert.Empty(t, sut.AccountHash())
	})

	t.Run("List before login", func(t *testing.T) {
		srv := newTestServer(t)
		sut := NewAccount(srv.URL, "user@example.com", "secret", srv.Client(), testLogger())

		_, err := sut.Diffusers(ctx)
		require.ErrorIs(t, err, ErrNotAuthenticated)
	})

	t.Run("Refresh", func(t *testing.T) {
		srv := newTestServer(t)
		sut := NewAccount(srv.URL, "user@example.com", "secret", srv.Client(), testLogger())

		d, err := sut.Refresh(ctx, "hashA1")
		require.NoError(t, err)
		assert.Equal(t, "A1", d.Hublot)
		assert.Equal(t, "4.0", d.FirmwareVersion)
	})

	t.Run("Refresh unknown hub", func(t *testing.T) {
		srv := newTestServer(t)
		sut := NewAccount(srv.URL, "user@example.com", "secret", srv.Client(), testLogger())

		_, err := sut.Refresh(ctx, "missing")
		require.Error(t, err)

		var se *StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, http.StatusNotFound, se.StatusCode)
	})
}
