package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/edgeflare/valuelog/pkg/httputil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestRequestID(t *testing.T) {
	echo := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID, _ := httputil.RequestID(r)
		_, _ = w.Write([]byte(reqID))
	}))

	t.Run("should generate a new request ID if none exists", func(t *testing.T) {
		w := httptest.NewRecorder()
		echo.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://example.com/foo", nil))

		_, err := uuid.Parse(w.Header().Get(RequestIDHeader))
		assert.NoError(t, err, "Response header X-Request-Id should be a valid UUID")
		assert.Equal(t, w.Header().Get(RequestIDHeader), w.Body.String())
	})

	t.Run("should preserve existing request ID", func(t *testing.T) {
		existing := uuid.New().String()
		ctx := context.WithValue(context.Background(), httputil.RequestIDCtxKey, existing)
		w := httptest.NewRecorder()
		echo.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://example.com/foo", nil).WithContext(ctx))

		assert.Equal(t, existing, w.Header().Get(RequestIDHeader))
	})

	t.Run("should accept a well-formed client request ID", func(t *testing.T) {
		sent := uuid.New().String()
		req := httptest.NewRequest(http.MethodGet, "http://example.com/foo", nil)
		req.Header.Set(RequestIDHeader, sent)
		w := httptest.NewRecorder()
		echo.ServeHTTP(w, req)

		assert.Equal(t, sent, w.Body.String())
	})

	t.Run("should replace a malformed client request ID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "http://example.com/foo", nil)
		req.Header.Set(RequestIDHeader, "<script>")
		w := httptest.NewRecorder()
		echo.ServeHTTP(w, req)

		assert.NotEqual(t, "<script>", w.Body.String())
		_, err := uuid.Parse(w.Body.String())
		assert.NoError(t, err)
	})

	t.Run("should handle multiple requests independently", func(t *testing.T) {
		w1 := httptest.NewRecorder()
		echo.ServeHTTP(w1, httptest.NewRequest(http.MethodGet, "http://example.com/foo1", nil))
		w2 := httptest.NewRecorder()
		echo.ServeHTTP(w2, httptest.NewRequest(http.MethodGet, "http://example.com/foo2", nil))

		assert.NotEqual(t, w1.Body.String(), w2.Body.String(), "Request IDs should be different for different requests")
	})
}
