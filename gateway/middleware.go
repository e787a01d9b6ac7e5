package gateway

import (
	"bufio"
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// getOrGenerateRequestID extracts request ID from headers or generates a new one
// for tracing requests across the gateway and NATS
func getOrGenerateRequestID(r *http.Request) string {
	if reqID := r.Header.Get("X-Request-ID"); reqID != "" {
		return reqID
	}

	// Format: 16 hex characters (8 random bytes)
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		// Fallback to timestamp-based ID if random generation fails
		return fmt.Sprintf("req-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// wrap applies the cross-cutting request behavior around a route handler:
// request ID, CORS, rate limiting, bearer auth, the per-request timeout,
// and status recording for metrics.
func (g *Gateway) wrap(rt route) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := getOrGenerateRequestID(r)
		w.Header().Set("X-Request-ID", requestID)

		g.requestsTotal.Add(1)

		if g.config.EnableCORS {
			g.applyCORS(w, r)
		}

		if g.limiter != nil && !g.limiter.allow(clientAddr(r)) {
			g.writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			g.finish(rt, http.StatusTooManyRequests, start)
			return
		}

		if rt.requireAuth && !g.authorize(r) {
			g.writeError(w, http.StatusUnauthorized, "missing or invalid bearer token")
			g.finish(rt, http.StatusUnauthorized, start)
			return
		}

		if rt.websocket {
			// Upgrades outlive any request timeout; the socket handler
			// records its own connection metrics.
			rt.handler(w, r)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), g.config.requestTimeout)
		defer cancel()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		rt.handler(rec, r.WithContext(ctx))
		g.finish(rt, rec.status, start)
	}
}

// finish records the outcome of a request against counters and metrics.
// The canonical pattern is the metric label, never the raw path, so
// cardinality stays bounded.
func (g *Gateway) finish(rt route, status int, start time.Time) {
	if status >= http.StatusBadRequest {
		g.requestsFailed.Add(1)
	}
	if g.metrics != nil {
		g.metrics.RecordHTTPRequest(rt.method, rt.pattern, status, time.Since(start))
	}
}

// authorize checks the bearer token on consumer management mutations.
// Open when no token is configured.
func (g *Gateway) authorize(r *http.Request) bool {
	if !g.security.AuthRequired() {
		return true
	}

	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(g.security.AuthToken)) == 1
}

// applyCORS applies CORS headers to the response
func (g *Gateway) applyCORS(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")

	allowed := false
	for _, allowedOrigin := range g.config.CORSOrigins {
		if allowedOrigin == "*" || allowedOrigin == origin {
			allowed = true
			break
		}
	}

	if allowed {
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")
	}
}

// clientAddr returns the client host for rate limiting, without the port
// so one client maps to one bucket across connections
func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// maxTrackedClients bounds the rate limiter map when client addresses churn
const maxTrackedClients = 10000

// clientLimiters hands out one token bucket per client address
type clientLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func newClientLimiters(rps float64, burst int) *clientLimiters {
	return &clientLimiters{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

// allow reports whether the client may proceed under its token bucket
func (c *clientLimiters) allow(addr string) bool {
	c.mu.Lock()
	if len(c.limiters) >= maxTrackedClients {
		// Resetting loses bucket state but keeps memory bounded
		c.limiters = make(map[string]*rate.Limiter)
	}
	lim, ok := c.limiters[addr]
	if !ok {
		lim = rate.NewLimiter(c.rps, c.burst)
		c.limiters[addr] = lim
	}
	c.mu.Unlock()

	return lim.Allow()
}

// statusRecorder captures the response status for metrics. Hijack passes
// through so WebSocket upgrades still work behind it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

func (rec *statusRecorder) Flush() {
	if f, ok := rec.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rec *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rec.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}
