package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(handlers...)
	return r
}

func TestRequestIDMintsWhenAbsent(t *testing.T) {
	r := newRouter(RequestID())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRequestIDPropagatesInbound(t *testing.T) {
	r := newRouter(RequestID())
	r.GET("/", func(c *gin.Context) {
		assert.Equal(t, "req-abc123", c.GetString("request_id"))
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-abc123")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, "req-abc123", rec.Header().Get("X-Request-ID"))
}

func TestRecoveryRendersEnvelope(t *testing.T) {
	r := newRouter(Recovery())
	r.GET("/boom", func(c *gin.Context) { panic("kaboom") })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal_server_error")
}

func TestLoginRateLimiterThrottles(t *testing.T) {
	r := newRouter(LoginRateLimiter(1, 2))
	r.POST("/login", func(c *gin.Context) { c.Status(http.StatusOK) })

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/login", nil))
		statuses = append(statuses, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, statuses)
}

func TestTTLLimiterCacheReusesAndSweeps(t *testing.T) {
	cache := newTTLLimiterCache(time.Millisecond)
	makeFn := func() *rate.Limiter { return rate.NewLimiter(1, 1) }

	first := cache.get("10.0.0.1", makeFn)
	again := cache.get("10.0.0.1", makeFn)
	assert.Same(t, first, again)

	// Age the entry past its ttl, then force a sweep.
	time.Sleep(5 * time.Millisecond)
	cache.mu.Lock()
	cache.sweepLocked(time.Now())
	remaining := len(cache.items)
	cache.mu.Unlock()
	assert.Zero(t, remaining)
}
