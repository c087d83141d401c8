package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/finsight/finsight/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// TestRequestID tests ID generation and passthrough
func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	// Generated when absent
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	r.ServeHTTP(w, req)
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("Expected generated request ID header")
	}

	// Passed through when present
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-123")
	r.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "req-123" {
		t.Errorf("Expected passthrough request ID, got '%s'", got)
	}
}

// TestCORS tests whitelist enforcement and preflight handling
func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"http://localhost:5173"}))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	// Allowed origin gets headers
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	r.ServeHTTP(w, req)
	if w.Header().Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Error("Expected CORS headers for whitelisted origin")
	}

	// Unknown origin gets none
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://evil.example")
	r.ServeHTTP(w, req)
	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("Expected no CORS headers for unknown origin")
	}

	// Preflight from unknown origin is rejected
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "http://evil.example")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for unknown preflight, got %d", w.Code)
	}

	// Preflight from allowed origin succeeds
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected 204 for allowed preflight, got %d", w.Code)
	}
}

// TestErrorHandler tests AppError status mapping
func TestErrorHandler(t *testing.T) {
	r := gin.New()
	r.Use(ErrorHandler(false))
	r.GET("/busy", func(c *gin.Context) {
		c.Error(errors.ErrBusy("section"))
	})
	r.GET("/missing", func(c *gin.Context) {
		c.Error(errors.ErrNotFound("report"))
	})
	r.GET("/internal", func(c *gin.Context) {
		c.Error(errors.ErrInternal("secret detail", nil))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/busy", nil))
	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409 for busy, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for not found, got %d", w.Code)
	}

	// Internal error messages are hidden outside debug mode
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/internal", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500 for internal, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "secret detail") {
		t.Errorf("Internal error leaked details: %s", w.Body.String())
	}
}
