package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"boipaben/server/internal/config"
)

func setupLimitedRouter(bucketSize, refillRate int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		RateLimitBucketSize: bucketSize,
		RateLimitRefillRate: refillRate,
	}
	r := gin.New()
	r.Use(NewRateLimiterMiddleware(cfg).Limit())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func TestRateLimiterAllowsWithinBucket(t *testing.T) {
	r := setupLimitedRouter(3, 1)

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/ping", nil)
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, "request %d within the bucket", i+1)
	}
}

func TestRateLimiterRejectsBurstOverflow(t *testing.T) {
	r := setupLimitedRouter(2, 1)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "10.0.0.9:1234"
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	assert.Equal(t, http.StatusOK, codes[0])
	assert.Equal(t, http.StatusOK, codes[1])
	assert.Equal(t, http.StatusTooManyRequests, codes[2])
}

func TestRateLimiterIsolatesClients(t *testing.T) {
	r := setupLimitedRouter(1, 1)

	exhaust := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = "10.0.0.1:1000"
	r.ServeHTTP(exhaust, req)
	assert.Equal(t, http.StatusOK, exhaust.Code)

	// A different client has its own bucket.
	w := httptest.NewRecorder()
	req2, _ := http.NewRequest(http.MethodGet, "/ping", nil)
	req2.RemoteAddr = "10.0.0.2:1000"
	r.ServeHTTP(w, req2)
	assert.Equal(t, http.StatusOK, w.Code)
}
