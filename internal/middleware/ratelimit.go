package middleware

import (
	"net/http"
	"strconv"

	"github.com/go-redis/redis_rate/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/pptmaker/pptmaker-api/internal/pkg/logger"
	"github.com/pptmaker/pptmaker-api/internal/pkg/response"
)

// RateLimiter enforces per-client request budgets shared across instances through Redis
type RateLimiter struct {
	limiter *redis_rate.Limiter
}

// NewRateLimiter returns nil when Redis is not configured; a nil limiter lets everything through
func NewRateLimiter(client *redis.Client) *RateLimiter {
	if client == nil {
		return nil
	}
	return &RateLimiter{limiter: redis_rate.NewLimiter(client)}
}

// PerMinute limits requests per client (user id when authenticated, IP otherwise) under the given bucket name
func (rl *RateLimiter) PerMinute(bucket string, requests int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if rl == nil || requests <= 0 {
			return next
		}
		limit := redis_rate.PerMinute(requests)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "ratelimit:" + bucket + ":" + clientKey(r)

			res, err := rl.limiter.Allow(r.Context(), key, limit)
			if err != nil {
				logger.FromContext(r.Context()).Warn().Err(err).Str("bucket", bucket).Msg("Rate limiter unavailable, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			if res.Allowed == 0 {
				w.Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())+1))
				response.TooManyRequests(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	if id := GetUserID(r.Context()); id != uuid.Nil {
		return "user:" + id.String()
	}
	return "ip:" + getClientIP(r)
}
