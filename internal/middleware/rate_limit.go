package middleware

import (
	"net/http"
	"time"

	pkghttp "github.com/bastionhq/bastion/pkg/http"
	"github.com/go-chi/httprate"
)

// RateLimitConfig holds rate limiting configuration for the public endpoints
type RateLimitConfig struct {
	RequestsPerMinute int
	// IPConfig controls which proxies may set forwarding headers. Keying
	// the bucket on the validated client IP keeps a spoofed header from
	// draining another client's budget or escaping one's own.
	IPConfig *pkghttp.IPConfig
}

// DefaultGateRateLimit returns the fallback limit for the gate and challenge
// endpoints when no configured value is supplied
func DefaultGateRateLimit() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 60,
	}
}

// RateLimitByIP creates a middleware that rate limits requests by client IP.
// This protects the service itself; per-identifier throttling is the gate's
// own job and lives in the services layer.
func RateLimitByIP(config RateLimitConfig) func(next http.Handler) http.Handler {
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = DefaultGateRateLimit().RequestsPerMinute
	}
	return httprate.Limit(
		config.RequestsPerMinute,
		1*time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return pkghttp.ExtractClientIP(r, config.IPConfig), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"Rate limit exceeded"}`))
		}),
	)
}
