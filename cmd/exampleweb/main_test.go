package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/parkerroan/hitledger"
	"github.com/parkerroan/hitledger/clock"
	"github.com/parkerroan/hitledger/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

func TestRouter(t *testing.T) {
	reg := prometheus.NewRegistry()
	rl, err := hitledger.NewRateLimiter(
		hitledger.WithHitsPerPeriod(1),
		hitledger.WithPeriod(time.Minute),
		hitledger.WithClock(clock.NewManual(time.Unix(1700000000, 0))),
		hitledger.WithMetrics(metrics.NewMetrics(reg)),
	)
	require.NoError(t, err)
	defer rl.Close()

	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	r := newRouter(rl, hitledger.KeyFromRemoteAddr, reg, logger)

	get := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("GET", path, nil)
		req.RemoteAddr = "192.0.2.1:1234"
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	rec := get("/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hello, World! Tracking 1 clients. Your hits clear in 60000ms.\n", rec.Body.String())

	assert.Equal(t, http.StatusTooManyRequests, get("/").Code)

	// health and metrics are never limited
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, get("/healthz").Code)
	}

	rec = get("/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "hitledger_rejected_total 1"))

	assert.Contains(t, logs.String(), `"status":429`)
}
