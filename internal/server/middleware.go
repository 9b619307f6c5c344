package server

import (
	"container/list"
	"context"
	"crypto/subtle"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// CORSMiddleware adds CORS headers to responses.
// If origins is empty or nil, CORS headers are not added.
func CORSMiddleware(origins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(origins) == 0 {
			return next
		}
		allowAll := slices.Contains(origins, "*")

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if origin != "" && (allowAll || slices.Contains(origins, origin)) {
				// When wildcard is configured, use "*" header; otherwise echo the specific origin
				if allowAll {
					w.Header().Set("Access-Control-Allow-Origin", "*")
				} else {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Add("Vary", "Origin")
				}
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
				w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours
			}

			// Handle preflight request
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// contentPolicy allows the inline story scripts and styles and the captcha
// widget from hcaptcha.com.
var contentPolicy = strings.Join([]string{
	"default-src 'self'",
	"script-src 'self' 'unsafe-inline' https://hcaptcha.com https://*.hcaptcha.com",
	"style-src 'self' 'unsafe-inline' https://hcaptcha.com https://*.hcaptcha.com",
	"frame-src https://hcaptcha.com https://*.hcaptcha.com",
	"connect-src 'self' https://hcaptcha.com https://*.hcaptcha.com",
	"img-src 'self' data: https:",
	"font-src 'self' data:",
	"frame-ancestors 'none'",
}, "; ")

var securityHeaders = [][2]string{
	{"X-Frame-Options", "DENY"},
	{"X-Content-Type-Options", "nosniff"},
	{"Referrer-Policy", "strict-origin-when-cross-origin"},
	{"Content-Security-Policy", contentPolicy},
}

// SecurityHeadersMiddleware adds security headers to all responses.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, h := range securityHeaders {
				w.Header().Set(h[0], h[1])
			}
			next.ServeHTTP(w, r)
		})
	}
}

const (
	limiterIdle       = 10 * time.Minute
	limiterSweepEvery = 5 * time.Minute
	evictionLogEvery  = 30 * time.Second
)

// submitBucket is one client's token bucket.
type submitBucket struct {
	ip   string
	lim  *rate.Limiter
	seen time.Time
}

// submitLimiter keeps a token bucket per client IP. At most max clients are
// tracked; a new client pushes out the one seen least recently.
type submitLimiter struct {
	every rate.Limit
	burst int
	max   int
	log   *zap.Logger

	mu       sync.Mutex
	byIP     map[string]*list.Element
	recent   *list.List // front is the latest client
	evicted  int
	loggedAt time.Time
}

func newSubmitLimiter(rps float64, burst, maxIPs int, log *zap.Logger) *submitLimiter {
	if maxIPs <= 0 {
		maxIPs = 10000
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &submitLimiter{
		every:  rate.Limit(rps),
		burst:  burst,
		max:    maxIPs,
		log:    log,
		byIP:   make(map[string]*list.Element),
		recent: list.New(),
	}
}

// take spends a token for ip. When none is left it reports how long the
// client has to wait for the next one.
func (l *submitLimiter) take(ip string, now time.Time) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.bucket(ip, now)
	res := b.lim.ReserveN(now, 1)
	if !res.OK() {
		return false, time.Second
	}
	if wait := res.DelayFrom(now); wait > 0 {
		res.CancelAt(now)
		return false, wait
	}
	return true, 0
}

// bucket must be called with mu held.
func (l *submitLimiter) bucket(ip string, now time.Time) *submitBucket {
	if e, ok := l.byIP[ip]; ok {
		l.recent.MoveToFront(e)
		b := e.Value.(*submitBucket)
		b.seen = now
		return b
	}

	if l.recent.Len() >= l.max {
		oldest := l.recent.Back()
		l.recent.Remove(oldest)
		delete(l.byIP, oldest.Value.(*submitBucket).ip)
		l.evicted++
		if now.Sub(l.loggedAt) >= evictionLogEvery {
			l.log.Info("Rate limiter evicted least recent clients",
				zap.Int("evicted", l.evicted), zap.Int("capacity", l.max))
			l.loggedAt = now
			l.evicted = 0
		}
	}

	b := &submitBucket{ip: ip, lim: rate.NewLimiter(l.every, l.burst), seen: now}
	l.byIP[ip] = l.recent.PushFront(b)
	return b
}

// sweep forgets clients idle for longer than idle.
func (l *submitLimiter) sweep(now time.Time, idle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for e := l.recent.Back(); e != nil; {
		prev := e.Prev()
		if b := e.Value.(*submitBucket); now.Sub(b.seen) > idle {
			l.recent.Remove(e)
			delete(l.byIP, b.ip)
		}
		e = prev
	}
}

func (l *submitLimiter) tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.recent.Len()
}

// RateLimitMiddleware limits requests per client IP to rps with the given
// burst, tracking at most maxIPs clients. Idle clients are swept until ctx
// is cancelled; the returned channel closes when the sweeper has stopped.
func RateLimitMiddleware(ctx context.Context, rps float64, burst int, maxIPs int, log *zap.Logger) (func(http.Handler) http.Handler, <-chan struct{}) {
	l := newSubmitLimiter(rps, burst, maxIPs, log)

	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(limiterSweepEvery)
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				l.sweep(now, limiterIdle)
			case <-ctx.Done():
				return
			}
		}
	}()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ok, wait := l.take(getClientIP(r), time.Now()); !ok {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}, done
}

// getClientIP extracts the client IP from the request.
// It only trusts X-Forwarded-For / X-Real-IP when the immediate peer is a
// loopback or private address (i.e., behind a reverse proxy).
func getClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}

	peerIP := net.ParseIP(host)
	trustedProxy := peerIP != nil && (peerIP.IsLoopback() || peerIP.IsPrivate())

	if trustedProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}

	if peerIP != nil {
		return peerIP.String()
	}
	return host
}

// TokenMiddleware requires "Authorization: Bearer <token>".
func TokenMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || got == "" {
				writeJSONError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeJSONError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
