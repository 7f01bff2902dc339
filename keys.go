package hitledger

import (
	"net"
	"net/http"
	"strings"
)

// KeyFromForwardedFor identifies a client by the first address in
// X-Forwarded-For, then X-Real-IP, then the host part of RemoteAddr.
//
// Both headers are set by whoever sent the request. Use this only behind a
// proxy that overwrites them; otherwise a client can pick any key it likes and
// never be limited. KeyFromRemoteAddr cannot be spoofed that way.
func KeyFromForwardedFor(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	return KeyFromRemoteAddr(r)
}

// KeyFromRemoteAddr identifies a client by the host part of RemoteAddr.
func KeyFromRemoteAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
