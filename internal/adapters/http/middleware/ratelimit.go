package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/halcyon-ai/mnemo/internal/adapters/redisbus"
	"github.com/halcyon-ai/mnemo/internal/ports"
)

// RateLimit caps requests per user per window using a bus counter. The bus
// is a hint: when it is down the limiter admits everything rather than
// blocking traffic on cache availability.
func RateLimit(bus ports.Bus, op string, max int64, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bus == nil {
				next.ServeHTTP(w, r)
				return
			}

			userID := GetUserID(r.Context())
			if userID == "" {
				next.ServeHTTP(w, r)
				return
			}

			count, err := bus.IncrWithTTL(r.Context(), redisbus.RateLimitKey(userID, op), window)
			if err != nil {
				slog.Debug("rate limiter degraded", "op", op, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			if count > max {
				w.Header().Set("Retry-After", "60")
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
