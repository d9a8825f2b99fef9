package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	mw "github.com/example/ridedispatch/internal/http/middleware"
)

func newLimited(t *testing.T, read, write mw.BucketConfig) http.Handler {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	limiter := mw.NewRateLimiter(client, read, write)
	return limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
}

func TestRateLimiterThrottlesWrites(t *testing.T) {
	h := newLimited(t, mw.BucketConfig{Rate: 100, Burst: 100}, mw.BucketConfig{Rate: 0.001, Burst: 2})

	do := func(method string) int {
		req := httptest.NewRequest(method, "/v1/bookings", nil)
		req.RemoteAddr = "10.0.0.1:4000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusNoContent, do(http.MethodPost))
	require.Equal(t, http.StatusNoContent, do(http.MethodPost))

	resp := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/bookings", nil)
	req.RemoteAddr = "10.0.0.1:4000"
	h.ServeHTTP(resp, req)
	require.Equal(t, http.StatusTooManyRequests, resp.Code)
	require.NotEmpty(t, resp.Header().Get("Retry-After"))

	// Reads draw from their own bucket and still pass.
	require.Equal(t, http.StatusNoContent, do(http.MethodGet))
}

func TestRateLimiterSeparatesCallers(t *testing.T) {
	h := newLimited(t, mw.BucketConfig{}, mw.BucketConfig{Rate: 0.001, Burst: 1})

	do := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/bookings", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusNoContent, do("10.0.0.1:4000"))
	require.Equal(t, http.StatusTooManyRequests, do("10.0.0.1:4000"))
	require.Equal(t, http.StatusNoContent, do("10.0.0.2:4000"))
}

func TestNilLimiterPassesThrough(t *testing.T) {
	var limiter *mw.RateLimiter
	h := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/bookings", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
}
