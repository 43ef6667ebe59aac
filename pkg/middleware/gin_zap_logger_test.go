package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newTestRouter() (*gin.Engine, *observer.ObservedLogs) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.DebugLevel)
	r := gin.New()
	r.Use(ZapLoggingMiddlewareForGin(zap.New(core)))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(RequestIDKey)) })
	r.GET("/bad", func(c *gin.Context) { c.Status(http.StatusBadRequest) })
	return r, logs
}

func TestZapLoggingMiddlewareForGin(t *testing.T) {
	t.Run("Skips health endpoint", func(t *testing.T) {
		r, logs := newTestRouter()
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 0, logs.Len())
		assert.Empty(t, w.Header().Get(RequestIDHeader))
	})

	t.Run("Propagates incoming request id", func(t *testing.T) {
		r, logs := newTestRouter()
		req := httptest.NewRequest(http.MethodGet, "/ok?x=1", nil)
		req.Header.Set(RequestIDHeader, "req-123")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, "req-123", w.Header().Get(RequestIDHeader))
		assert.Equal(t, "req-123", w.Body.String())
		entries := logs.FilterMessage("Request completed").All()
		if assert.Len(t, entries, 1) {
			assert.Equal(t, "/ok?x=1", entries[0].ContextMap()["path"])
		}
	})

	t.Run("Client errors logged as warnings", func(t *testing.T) {
		r, logs := newTestRouter()
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/bad", nil))

		assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
		assert.Equal(t, 1, logs.FilterMessage("Client error").Len())
	})
}
