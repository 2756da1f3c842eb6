// Package shield provides the HTTP middleware stack of the fidelity API:
// security headers, body limits, request tracing and rate limiting.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.DefaultAPIStack(1<<20, trustedProxies) {
//	    r.Use(mw)
//	}
//	ep = shield.NewRateLimiter(rules).Endpoint("fidelity_compare")(ep)
package shield

import (
	"net"
	"net/http"
)

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// DefaultAPIStack returns the standard middleware for a JSON API, ordered
// SecurityHeaders → MaxBody → ClientIP → TraceID.
func DefaultAPIStack(maxBody int64, trusted []*net.IPNet) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		SecurityHeaders(APIHeaders()),
		MaxBody(maxBody),
		ClientIP(trusted),
		TraceID,
	}
}
