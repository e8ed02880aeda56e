package cmd

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHTTPServer(t *testing.T) {
	testEnv(t)

	srv, err := newHTTPServer(":0")
	require.NoError(t, err)
	assert.Equal(t, ":0", srv.Addr)
	assert.NotZero(t, srv.ReadHeaderTimeout)
	assert.NotZero(t, srv.WriteTimeout)

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestServeRun_StopsOnCancel(t *testing.T) {
	testEnv(t)
	viper.Set("port", 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, serveRun(ctx))
}

func TestServeRun_DryRun(t *testing.T) {
	testEnv(t)
	dryRun = true
	ui.DryRun = true

	assert.NoError(t, serveRun(context.Background()))
}

func TestNewHTTPServer_BadLogConfig(t *testing.T) {
	testEnv(t)
	viper.Set("log.format", "xml")

	_, err := newHTTPServer(":0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown log format")
}
