// Package metadata captures client-facing request metadata: the real client
// IP behind proxies, the raw User-Agent, and a parsed device label used for
// last-login bookkeeping.
package metadata

import (
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"mariner/pkg/requestcontext"
)

// ClientMetadata extracts client IP, User-Agent and device label from the
// request and adds them to the context. Apply early in the chain.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawUA := r.Header.Get("User-Agent")

		ctx := r.Context()
		ctx = requestcontext.WithClientIP(ctx, ClientIPFromRequest(r))
		ctx = requestcontext.WithUserAgent(ctx, rawUA)
		ctx = requestcontext.WithDevice(ctx, DeviceLabel(rawUA))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// DeviceLabel condenses a User-Agent string into a short human-readable
// label ("Chrome on Linux", "Mobile Safari on iPhone").
func DeviceLabel(rawUA string) string {
	if rawUA == "" {
		return ""
	}
	ua := useragent.New(rawUA)
	browser, _ := ua.Browser()
	platform := ua.Platform()
	if browser == "" {
		return platform
	}
	if platform == "" {
		return browser
	}
	return browser + " on " + platform
}

// ClientIPFromRequest extracts the real client IP, handling proxies and load
// balancers.
func ClientIPFromRequest(r *http.Request) string {
	// X-Forwarded-For can carry a chain (client, proxy1, proxy2, ...); the
	// first entry is the original client.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// RemoteAddr is "ip:port" for IPv4 and "[::1]:port" for IPv6.
	if addr := r.RemoteAddr; addr != "" {
		if idx := strings.LastIndex(addr, ":"); idx != -1 {
			return addr[:idx]
		}
		return addr
	}

	return "unknown"
}
