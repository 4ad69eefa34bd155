// CLAUDE:SUMMARY HTTP middleware: request IDs, security headers, per-client token-bucket limiter, route metrics, bearer auth, Idempotency-Key replay
package api

import (
	"bytes"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/hazyhaar/veritrack/internal/protocol"
	"github.com/hazyhaar/veritrack/pkg/kit"
)

// SecurityHeaders wraps a handler with standard security headers.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// RequestID tags the request context with an X-Request-ID (generated when absent)
// and the transport it arrived on.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := kit.WithRequestID(r.Context(), id)
		if kit.GetTransport(ctx) == "" {
			ctx = kit.WithTransport(ctx, "http")
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WithTransport labels requests served by next, e.g. "h3" for the QUIC listener.
func WithTransport(name string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(kit.WithTransport(r.Context(), name)))
	})
}

// Limiter keeps one token bucket per client.
type Limiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	rate     rate.Limit
	burst    int
}

// NewLimiter allows requestsPerSecond per client with the given burst.
func NewLimiter(requestsPerSecond float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 5
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
	}
}

// Allow reports whether client may make a request now.
func (l *Limiter) Allow(client string) bool {
	return l.get(client).Allow()
}

func (l *Limiter) get(client string) *rate.Limiter {
	l.mu.RLock()
	lim, ok := l.limiters[client]
	l.mu.RUnlock()
	if ok {
		return lim
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.limiters[client]; ok {
		return lim
	}
	lim = rate.NewLimiter(l.rate, l.burst)
	l.limiters[client] = lim
	return lim
}

func clientIP(r *http.Request) string {
	ip := r.RemoteAddr
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		ip, _, _ = strings.Cut(fwd, ",")
		ip = strings.TrimSpace(ip)
	}
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return ip
}

// RateLimit rejects clients over their budget with 429.
func (a *API) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.limiter.Allow(clientIP(r)) {
			a.metrics.RateLimited.Inc()
			w.Header().Set("Retry-After", "1")
			jsonError(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the status and body written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
	body   *bytes.Buffer
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	if s.body != nil {
		s.body.Write(b)
	}
	return s.ResponseWriter.Write(b)
}

// Instrument counts requests by method, route pattern and status. It must wrap
// the ServeMux directly so the matched pattern is visible after dispatch.
func (a *API) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		a.metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		a.metrics.HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

type cachedResponse struct {
	status int
	body   []byte
}

// mutation authenticates the caller, bounds the body and replays responses for a
// repeated Idempotency-Key from the same caller on the same route.
func (a *API) mutation(h func(w http.ResponseWriter, r *http.Request, caller protocol.Address)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := a.auth.ExtractClaims(r)
		if claims == nil {
			jsonError(w, "authentication required", http.StatusUnauthorized)
			return
		}
		caller := claims.Address
		r = r.WithContext(kit.WithUserID(r.Context(), string(caller)))

		key := r.Header.Get("Idempotency-Key")
		if key == "" {
			h(w, r, caller)
			return
		}
		if len(key) > 255 {
			jsonError(w, "Idempotency-Key too long", http.StatusBadRequest)
			return
		}
		cacheKey := string(caller) + " " + r.Method + " " + r.URL.Path + " " + key
		if v, ok := a.idem.Get(cacheKey); ok {
			cached := v.(cachedResponse)
			a.metrics.IdempotentHits.Inc()
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Idempotent-Replayed", "true")
			w.WriteHeader(cached.status)
			_, _ = w.Write(cached.body)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, body: &bytes.Buffer{}}
		h(rec, r, caller)
		if rec.status != 0 && rec.status < http.StatusInternalServerError {
			a.idem.SetDefault(cacheKey, cachedResponse{status: rec.status, body: rec.body.Bytes()})
		}
	}
}
