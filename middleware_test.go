package hitledger_test

import (
	"context"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/parkerroan/hitledger"
	"github.com/parkerroan/hitledger/broker"
	"github.com/parkerroan/hitledger/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, clk clock.Clock) *mux.Router {
	t.Helper()
	rl, err := hitledger.NewRateLimiter(
		hitledger.WithHitsPerPeriod(2),
		hitledger.WithPeriod(10*time.Second),
		hitledger.WithClock(clk),
	)
	require.NoError(t, err)
	t.Cleanup(rl.Close)

	r := mux.NewRouter()
	r.Use(hitledger.HTTPMiddleware(rl, hitledger.KeyFromRemoteAddr))
	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	return r
}

func serve(h http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHTTPMiddleware(t *testing.T) {
	clk := clock.NewManual(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	r := newTestRouter(t, clk)

	for i := 0; i < 2; i++ {
		rec := serve(r, "192.0.2.1:1000")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ok", rec.Body.String())
		assert.Empty(t, rec.Header().Get("Retry-After"))
	}

	rec := serve(r, "192.0.2.1:1001")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "10", rec.Header().Get("Retry-After"))
	assert.Equal(t, "2", rec.Header().Get("RateLimit-Limit"))
	assert.Equal(t, "10", rec.Header().Get("RateLimit-Reset"))
	assert.Equal(t, "2;w=10", rec.Header().Get("RateLimit-Policy"))
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "Rate limit exceeded. Please try again in 10 seconds.\n", rec.Body.String())

	// Another client is unaffected.
	assert.Equal(t, http.StatusOK, serve(r, "192.0.2.2:1000").Code)

	// Honouring Retry-After gets the client back in.
	clk.Advance(10 * time.Second)
	assert.Equal(t, http.StatusOK, serve(r, "192.0.2.1:1000").Code)
}

func TestHTTPMiddleware_RoundsRetryAfterUp(t *testing.T) {
	clk := clock.NewManual(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	r := newTestRouter(t, clk)

	serve(r, "192.0.2.1:1000")
	serve(r, "192.0.2.1:1000")
	clk.Advance(1500 * time.Millisecond)

	// clear = 15s, block = 15 - 1.5 - 10 = 3.5s, retry after 8.5s
	rec := serve(r, "192.0.2.1:1000")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "9", rec.Header().Get("Retry-After"))
	assert.Equal(t, "Rate limit exceeded. Please try again in 8.5 seconds.\n", rec.Body.String())
}

// ExampleHTTPMiddleware shows how to use the middleware with a standard net/http handler or mux.
func ExampleHTTPMiddleware() {
	// Report blocked and evicted clients to a Redis stream
	rdb := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
	})
	redisBroker := broker.NewRedisBroker(rdb, broker.WithStream("my-service"))

	ctx := context.Background()
	redisBroker.Start(ctx)

	rl, err := hitledger.NewRateLimiter(
		hitledger.WithBroker(redisBroker),
		hitledger.WithHitsPerPeriod(10),
		hitledger.WithPeriod(10*time.Second),
	)
	if err != nil {
		log.Fatal(err)
	}

	// Create a new router
	r := mux.NewRouter() // or http.NewServeMux()

	// Create a new rate limited HTTP handler using your middleware
	r.Use(hitledger.HTTPMiddleware(rl, hitledger.KeyFromRemoteAddr))
}

// ExampleRateLimiter_localInstance shows how to use a rate limiter without a broker.
func ExampleRateLimiter_localInstance() {
	rl, err := hitledger.NewRateLimiter(
		hitledger.WithHitsPerPeriod(10),
		hitledger.WithPeriod(10*time.Second),
		hitledger.WithMaxClients(100000),
	)
	if err != nil {
		log.Fatal(err)
	}
	defer rl.Close()

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		allowed, details := rl.TryAccept(ctx, "userKey")
		log.Printf("Request %v allowed: %v details: %+v", i, allowed, details)
	}
}
