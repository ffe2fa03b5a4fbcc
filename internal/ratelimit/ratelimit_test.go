package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMiddleware_RejectsAfterBurst(t *testing.T) {
	l := New(Options{RPS: 0.02, Burst: 2})

	calls := 0
	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "http://example/visits", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
		if rec.Code == http.StatusTooManyRequests {
			assert.Equal(t, "50", rec.Header().Get("Retry-After"))
		}
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Equal(t, 2, calls)
}

func TestMiddleware_SeparateClients(t *testing.T) {
	l := New(Options{RPS: 0.02, Burst: 1})
	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, addr := range []string{"10.0.0.1:1", "10.0.0.2:1", "10.0.0.3:1"} {
		req := httptest.NewRequest(http.MethodPost, "http://example/visits", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, addr)
	}
}

func TestClientKeyFunc(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "http://example/visits", nil)
	req.RemoteAddr = "192.0.2.10:5555"
	req.Header.Set("X-Forwarded-For", " 203.0.113.7 , 10.0.0.1")

	assert.Equal(t, "192.0.2.10", ClientKeyFunc(false)(req))
	assert.Equal(t, "203.0.113.7", ClientKeyFunc(true)(req))

	req.Header.Del("X-Forwarded-For")
	assert.Equal(t, "192.0.2.10", ClientKeyFunc(true)(req))

	req.RemoteAddr = "pipe"
	assert.Equal(t, "pipe", ClientKeyFunc(false)(req))
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, 1, New(Options{RPS: 100}).RetryAfter())
	assert.Equal(t, 4, New(Options{RPS: 0.25}).RetryAfter())
	assert.Equal(t, 1, New(Options{RPS: 0}).RetryAfter())
}
