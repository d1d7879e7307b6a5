package api

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func itoa(n int64) string { return strconv.FormatInt(n, 10) }

func TestTokenFromHeader(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Token abc123", "abc123"},
		{"Bearer abc123", "abc123"},
		{"bearer   abc123 ", "abc123"},
		{"Basic dXNlcjpwYXNz", ""},
		{"abc123", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			assert.Equal(t, tt.want, tokenFromHeader(tt.header))
		})
	}
}

func TestRateLimiterRejectsBurst(t *testing.T) {
	limiter := newIPRateLimiter(2)
	router := gin.New()
	router.POST("/login", limiter.middleware(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code, "limits are per client IP")
}

func TestRateLimiterEvictsIdleClients(t *testing.T) {
	clock := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter := newIPRateLimiter(2)
	limiter.now = func() time.Time { return clock }

	limiter.get("10.0.0.1")
	limiter.get("10.0.0.2")
	assert.Equal(t, 2, limiter.size())

	clock = clock.Add(limiterIdleTTL / 2)
	limiter.get("10.0.0.2")

	clock = clock.Add(limiterIdleTTL/2 + time.Second)
	limiter.get("10.0.0.3")
	assert.Equal(t, 2, limiter.size(), "10.0.0.1 went idle")

	clock = clock.Add(2 * limiterIdleTTL)
	limiter.get("10.0.0.4")
	assert.Equal(t, 1, limiter.size())
}
