package api

import (
	"math"
	"net"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/abhishinde10/healthnexus/internal/auth"
	"github.com/abhishinde10/healthnexus/internal/metrics"
	"github.com/abhishinde10/healthnexus/internal/ratelimit"
)

// RateLimitMiddleware limits each caller, or each client IP for anonymous
// requests. A failing limiter lets the request through.
func RateLimitMiddleware(limiter ratelimit.Limiter, log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := clientIdentity(r)

			d, err := limiter.Allow(r.Context(), identity)
			if err != nil {
				log.Warn().Err(err).Str("identity", identity).Msg("rate limiter unavailable, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))

			if !d.Allowed {
				metrics.RateLimitRejections.Inc()
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(d.RetryAfter.Seconds()))))
				writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests, retry later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIdentity(r *http.Request) string {
	if c, ok := auth.FromContext(r.Context()); ok {
		return "user:" + c.ID.String()
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
