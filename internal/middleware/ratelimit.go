package middleware

import (
	"net"
	"net/http"
	"time"

	"github.com/hearthhq/hearth/internal/redis"
)

type RateLimiter struct {
	redis  *redis.Client
	limit  int64
	window time.Duration
}

func NewRateLimiter(redisClient *redis.Client, limit int64) *RateLimiter {
	return &RateLimiter{
		redis:  redisClient,
		limit:  limit,
		window: time.Minute,
	}
}

// Limit applies a per-client sliding window limit on public routes. A redis
// failure lets the request through; rate limiting is not worth an outage.
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}

		result, err := rl.redis.CheckRateLimit(r.Context(), "ip:"+host, rl.limit, rl.window)
		if err == nil && !result.Allowed {
			w.Header().Set("Retry-After", result.ResetAt.UTC().Format(http.TimeFormat))
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}
