package server

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func reqFromIP(ip string) *http.Request {
	r := httptest.NewRequest("POST", "/api/submit", nil)
	r.RemoteAddr = ip + ":12345"
	return r
}

// rateLimitWrap stops the limiter's sweeper when the test ends.
func rateLimitWrap(t *testing.T, rps float64, burst, maxIPs int, next http.Handler) http.Handler {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	mw, _ := RateLimitMiddleware(ctx, rps, burst, maxIPs, zaptest.NewLogger(t))
	return mw(next)
}

var limiterEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestSubmitLimiterTake(t *testing.T) {
	l := newSubmitLimiter(1, 2, 10, zaptest.NewLogger(t))

	ok, _ := l.take("1.1.1.1", limiterEpoch)
	assert.True(t, ok)
	ok, _ = l.take("1.1.1.1", limiterEpoch)
	assert.True(t, ok, "burst of two")

	ok, wait := l.take("1.1.1.1", limiterEpoch)
	assert.False(t, ok)
	assert.Equal(t, time.Second, wait)

	// A refused request does not spend the next token.
	ok, _ = l.take("1.1.1.1", limiterEpoch.Add(time.Second))
	assert.True(t, ok)

	ok, _ = l.take("2.2.2.2", limiterEpoch)
	assert.True(t, ok, "clients have their own buckets")
}

func TestSubmitLimiterZeroBurst(t *testing.T) {
	l := newSubmitLimiter(1, 0, 10, nil)
	ok, wait := l.take("1.1.1.1", limiterEpoch)
	assert.False(t, ok)
	assert.Equal(t, time.Second, wait)
}

func TestSubmitLimiterEvictsLeastRecent(t *testing.T) {
	l := newSubmitLimiter(0.001, 1, 2, zaptest.NewLogger(t))

	for _, ip := range []string{"10.0.0.1", "10.0.0.2"} {
		ok, _ := l.take(ip, limiterEpoch)
		require.True(t, ok)
	}
	// Touch .1 so .2 is the oldest.
	ok, _ := l.take("10.0.0.1", limiterEpoch)
	require.False(t, ok)

	ok, _ = l.take("10.0.0.3", limiterEpoch)
	assert.True(t, ok)
	assert.Equal(t, 2, l.tracked())

	ok, _ = l.take("10.0.0.1", limiterEpoch)
	assert.False(t, ok, "recently seen client keeps its empty bucket")
	ok, _ = l.take("10.0.0.2", limiterEpoch)
	assert.True(t, ok, "evicted client comes back with a full bucket")
}

func TestSubmitLimiterSweep(t *testing.T) {
	l := newSubmitLimiter(1, 1, 10, nil)
	l.take("1.1.1.1", limiterEpoch)
	l.take("2.2.2.2", limiterEpoch.Add(9*time.Minute))

	l.sweep(limiterEpoch.Add(11*time.Minute), limiterIdle)
	assert.Equal(t, 1, l.tracked())
}

func TestRateLimitMiddleware(t *testing.T) {
	wrapped := rateLimitWrap(t, 0.001, 1, 10, okHandler())

	w := httptest.NewRecorder()
	wrapped.ServeHTTP(w, reqFromIP("5.5.5.5"))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	wrapped.ServeHTTP(w, reqFromIP("5.5.5.5"))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1000", w.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, w.Body.String())

	w = httptest.NewRecorder()
	wrapped.ServeHTTP(w, reqFromIP("6.6.6.6"))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimitConcurrentClients(t *testing.T) {
	wrapped := rateLimitWrap(t, 1000, 1000, 50, okHandler())

	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ip := fmt.Sprintf("10.0.%d.%d", i/256, i%256)
			for range 10 {
				w := httptest.NewRecorder()
				wrapped.ServeHTTP(w, reqFromIP(ip))
				assert.Equal(t, http.StatusOK, w.Code)
			}
		}()
	}
	wg.Wait()
}

func TestRateLimitSweeperStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	_, done := RateLimitMiddleware(ctx, 100, 100, 100, nil)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		xff    string
		xri    string
		want   string
	}{
		{"direct", "203.0.113.9:5000", "", "", "203.0.113.9"},
		{"public peer forwarded header ignored", "203.0.113.9:5000", "198.51.100.1", "", "203.0.113.9"},
		{"proxy forwarded for", "127.0.0.1:5000", "198.51.100.1, 10.0.0.1", "", "198.51.100.1"},
		{"proxy real ip", "10.1.2.3:5000", "", "198.51.100.2", "198.51.100.2"},
		{"no port", "203.0.113.10", "", "", "203.0.113.10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}
			assert.Equal(t, tt.want, getClientIP(r))
		})
	}
}

func TestCORSMiddleware(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		h := CORSMiddleware(nil)(okHandler())
		r := httptest.NewRequest("GET", "/api/current", nil)
		r.Header.Set("Origin", "https://elsewhere.example")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("listed origin echoed", func(t *testing.T) {
		h := CORSMiddleware([]string{"https://reader.example"})(okHandler())
		r := httptest.NewRequest("GET", "/api/current", nil)
		r.Header.Set("Origin", "https://reader.example")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		assert.Equal(t, "https://reader.example", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "Origin", w.Header().Get("Vary"))
	})

	t.Run("unlisted origin", func(t *testing.T) {
		h := CORSMiddleware([]string{"https://reader.example"})(okHandler())
		r := httptest.NewRequest("GET", "/api/current", nil)
		r.Header.Set("Origin", "https://evil.example")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("wildcard preflight", func(t *testing.T) {
		called := false
		h := CORSMiddleware([]string{"*"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
		}))
		r := httptest.NewRequest(http.MethodOptions, "/api/submit", nil)
		r.Header.Set("Origin", "https://anyone.example")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		assert.False(t, called)
	})
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	w := httptest.NewRecorder()
	SecurityHeadersMiddleware()(okHandler()).ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Contains(t, w.Header().Get("Content-Security-Policy"), "frame-src https://hcaptcha.com")
}

func TestTokenMiddleware(t *testing.T) {
	h := TokenMiddleware("s3cret")(okHandler())
	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic s3cret", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer s3cret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/api/submissions", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestCompression(t *testing.T) {
	h := WithCompression(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "5")
		_, _ = w.Write([]byte("hello"))
	}))

	t.Run("gzip accepted", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/api/current", nil)
		r.Header.Set("Accept-Encoding", "gzip, deflate")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)

		assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
		assert.Empty(t, w.Header().Get("Content-Length"))
		zr, err := gzip.NewReader(w.Body)
		if err != nil {
			t.Fatal(err)
		}
		body, err := io.ReadAll(zr)
		if err != nil {
			t.Fatal(err)
		}
		assert.Equal(t, "hello", string(body))
	})

	t.Run("websocket untouched", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws", nil)
		r.Header.Set("Accept-Encoding", "gzip")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		assert.Empty(t, w.Header().Get("Content-Encoding"))
		assert.Equal(t, "hello", w.Body.String())
	})
}
