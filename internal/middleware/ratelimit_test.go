package middleware

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"
)

// TestSubmissionLimiter runs against a live Redis and is skipped unless
// REDIS_URL is set.
func TestSubmissionLimiter(t *testing.T) {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		t.Skip("REDIS_URL not provided")
	}

	limiter, err := NewSubmissionLimiter(redisURL, 3, time.Minute, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("create limiter: %v", err)
	}
	defer limiter.Close()

	handler := limiter.Limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rater := fmt.Sprintf("limit-test-%d", time.Now().UnixNano())
	for i := 1; i <= 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/users/chef-1/ratings", nil)
		req.Header.Set("X-Rater-Id", rater)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("request %d status = %d, want 204", i, rec.Code)
		}
		if got := rec.Header().Get("X-RateLimit-Remaining"); got != fmt.Sprintf("%d", 3-i) {
			t.Fatalf("request %d remaining = %q", i, got)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/users/chef-1/ratings", nil)
	req.Header.Set("X-Rater-Id", rater)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("over-limit status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("Retry-After header missing")
	}

	// A different rater gets a fresh window.
	other := httptest.NewRequest(http.MethodPost, "/users/chef-1/ratings", nil)
	other.Header.Set("X-Rater-Id", rater+"-other")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, other)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("fresh rater status = %d, want 204", rec.Code)
	}
}

func TestNewSubmissionLimiterRejectsBadURL(t *testing.T) {
	if _, err := NewSubmissionLimiter("not-a-url", 10, time.Minute, log.New(io.Discard, "", 0)); err == nil {
		t.Fatalf("expected error for malformed redis url")
	}
}
