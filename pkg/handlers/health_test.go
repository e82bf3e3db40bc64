package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/brightpulse/bitrix-warehouse/pkg/config"
)

type fakePinger struct {
	err error
}

func (f *fakePinger) PingContext(_ context.Context) error { return f.err }

func newHealthMux(pinger *fakePinger) *http.ServeMux {
	cfg := &config.Config{Env: "local", Version: "test", DBDialect: "postgresql"}
	mux := http.NewServeMux()
	NewHealthHandler(cfg, pinger, zap.NewNop()).RegisterRoutes(mux)
	return mux
}

func TestHealth(t *testing.T) {
	mux := newHealthMux(&fakePinger{})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestPingReportsWarehouse(t *testing.T) {
	mux := newHealthMux(&fakePinger{})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body PingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "bitrix-warehouse", body.Service)
	assert.Equal(t, "postgresql", body.Dialect)
	assert.Equal(t, "ok", body.Warehouse)
}

func TestPingWarehouseDown(t *testing.T) {
	mux := newHealthMux(&fakePinger{err: errBitrixDown})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body PingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unreachable", body.Warehouse)
}
