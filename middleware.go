package hitledger

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
)

// HTTPMiddleware creates a new middleware function for rate limiting.
// This function is compatible with both standard net/http and mux handlers.
func HTTPMiddleware(rl *RateLimiter, keyGetter func(r *http.Request) string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyGetter(r) // get the unique identifier for the requester

			allowed, details := rl.TryAccept(r.Context(), key)
			if !allowed {
				retryAfter := int64(math.Ceil(details.RetryAfter.Seconds()))

				h := w.Header()
				h.Set("Retry-After", strconv.FormatInt(retryAfter, 10))
				h.Set("RateLimit-Limit", strconv.FormatFloat(details.Limit, 'f', -1, 64))
				h.Set("RateLimit-Reset", strconv.FormatInt(retryAfter, 10))
				h.Set("RateLimit-Policy", fmt.Sprintf("%v;w=%v", details.Limit, details.Window.Seconds()))
				h.Set("Content-Type", "text/plain; charset=utf-8")
				w.WriteHeader(http.StatusTooManyRequests)
				fmt.Fprintf(w, "Rate limit exceeded. Please try again in %v seconds.\n", details.RetryAfter.Seconds())
				return
			}

			// Proceed to the next handler if not rate-limited
			next.ServeHTTP(w, r)
		})
	}
}
