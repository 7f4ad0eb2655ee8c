package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestRequestID_GeneratesNew(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestID(c))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	headerID := w.Header().Get(RequestIDHeader)
	if headerID == "" {
		t.Error("Expected X-Request-ID header to be set")
	}
	if w.Body.String() != headerID {
		t.Errorf("Header ID (%s) should match body ID (%s)", headerID, w.Body.String())
	}
}

func TestRequestID_UsesExisting(t *testing.T) {
	existingID := "existing-request-id-123"

	r := gin.New()
	r.Use(RequestID())
	r.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestID(c))
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(RequestIDHeader, existingID)
	r.ServeHTTP(w, req)

	if w.Body.String() != existingID {
		t.Errorf("Expected existing ID %s, got %s", existingID, w.Body.String())
	}
}

func TestCORS_Headers(t *testing.T) {
	r := gin.New()
	r.Use(CORS())
	r.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Origin", "https://example.com")
	r.ServeHTTP(w, req)

	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("Expected Access-Control-Allow-Origin header")
	}
	if w.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Error("Expected Access-Control-Allow-Methods header")
	}
}

func TestCORS_Preflight(t *testing.T) {
	r := gin.New()
	r.Use(CORS())
	r.OPTIONS("/test", func(c *gin.Context) {
		t.Error("Preflight should not reach the handler")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/test", nil)
	req.Header.Set("Origin", "https://example.com")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
}

func TestRateLimiter_Local(t *testing.T) {
	config := DefaultRateLimitConfig()
	config.RequestsPerSecond = 1
	config.BurstSize = 2

	r := gin.New()
	r.Use(RateLimiter(config))
	r.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
		statuses = append(statuses, w.Code)
	}

	if statuses[0] != http.StatusOK || statuses[1] != http.StatusOK {
		t.Errorf("burst requests = %v, want first two 200", statuses)
	}
	if statuses[2] != http.StatusTooManyRequests {
		t.Errorf("third request = %d, want %d", statuses[2], http.StatusTooManyRequests)
	}
}

func TestRateLimiter_Disabled(t *testing.T) {
	config := DefaultRateLimitConfig()
	config.RequestsPerSecond = 0

	r := gin.New()
	r.Use(RateLimiter(config))
	r.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	for i := 0; i < 10; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}
}

func TestLocalRateLimiter_Refills(t *testing.T) {
	config := DefaultRateLimitConfig()
	config.RequestsPerSecond = 100
	config.BurstSize = 1

	rl := NewLocalRateLimiter(config)
	defer rl.Stop()

	if !rl.Allow("ip") {
		t.Fatal("first request should pass")
	}
	if rl.Allow("ip") {
		t.Fatal("bucket should be empty")
	}

	time.Sleep(50 * time.Millisecond)
	if !rl.Allow("ip") {
		t.Error("bucket should have refilled")
	}
}
