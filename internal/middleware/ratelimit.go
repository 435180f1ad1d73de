package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// SubmissionLimiter throttles rating submissions per rater using a
// Redis counter per (path, rater) window. When Redis is unreachable the
// limiter fails open: a broken cache must not block ratings.
type SubmissionLimiter struct {
	redis  *redis.Client
	max    int
	window time.Duration
	logger *log.Logger
}

// NewSubmissionLimiter connects to Redis and verifies the connection.
func NewSubmissionLimiter(redisURL string, max int, window time.Duration, logger *log.Logger) (*SubmissionLimiter, error) {
	if logger == nil {
		logger = log.Default()
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	return &SubmissionLimiter{redis: client, max: max, window: window, logger: logger}, nil
}

// Limit wraps a handler with the per-rater counter. Requests without a
// rater id fall back to the remote address so anonymous traffic cannot
// bypass the limit.
func (l *SubmissionLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		who := r.Header.Get("X-Rater-Id")
		if who == "" {
			who = r.RemoteAddr
		}
		key := fmt.Sprintf("rate_limit:%s:%s", r.URL.Path, who)

		count, err := l.redis.Incr(r.Context(), key).Result()
		if err != nil {
			l.logger.Printf("ratelimit: redis error, allowing request: %v", err)
			next.ServeHTTP(w, r)
			return
		}
		if count == 1 {
			l.redis.Expire(r.Context(), key, l.window)
		}

		if count > int64(l.max) {
			ttl, _ := l.redis.TTL(r.Context(), key).Result()
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(ttl.Seconds())))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"code":    "RATE_LIMIT_EXCEEDED",
				"message": "Too many rating submissions. Please try again later.",
			})
			return
		}

		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", l.max))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", l.max-int(count)))
		next.ServeHTTP(w, r)
	})
}

// Close releases the Redis connection.
func (l *SubmissionLimiter) Close() error {
	return l.redis.Close()
}
