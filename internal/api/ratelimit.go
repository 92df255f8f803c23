package api

import (
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/librarium/librarium-server/internal/ratelimit"
)

// RateLimiter wraps KeyedRateLimiter for API use.
type RateLimiter = ratelimit.KeyedRateLimiter

// NewRateLimiter creates a new rate limiter.
// ratePerInterval: number of requests allowed per interval.
// interval: time period for the rate (e.g., time.Minute).
// burst: maximum burst size.
func NewRateLimiter(ratePerInterval int, interval time.Duration, burst int) *RateLimiter {
	rps := float64(ratePerInterval) / interval.Seconds()
	return ratelimit.New(rps, burst)
}

// checkRateLimit enforces the limiter for the given client key.
// Returns a 429 error when the limit is exceeded.
func (s *Server) checkRateLimit(key, path string) error {
	if key == "" {
		key = "unknown"
	}
	if !s.authRateLimiter.Allow(key) {
		s.logger.Warn("rate limit exceeded", "ip", key, "path", path)
		return huma.Error429TooManyRequests("Too many requests. Please try again later.")
	}
	return nil
}

// clientIP picks the best client address from forwarding headers, falling
// back to the transport address.
func clientIP(xForwardedFor, xRealIP, remoteAddr string) string {
	if xForwardedFor != "" {
		// First IP in the chain is the client.
		for i := 0; i < len(xForwardedFor); i++ {
			if xForwardedFor[i] == ',' {
				return xForwardedFor[:i]
			}
		}
		return xForwardedFor
	}

	if xRealIP != "" {
		return xRealIP
	}

	// Strip port from RemoteAddr.
	for i := len(remoteAddr) - 1; i >= 0; i-- {
		if remoteAddr[i] == ':' {
			return remoteAddr[:i]
		}
	}
	return remoteAddr
}
