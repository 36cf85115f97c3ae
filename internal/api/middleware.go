package api

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"toproute/internal/metrics"
)

// statusWriter records the response code while still exposing Flush and
// Hijack to the SSE and WebSocket handlers underneath.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return h.Hijack()
}

// MetricsMiddleware records request counts and latency per method and route.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)
		path := pathLabel(r.URL.Path)
		status := strconv.Itoa(sw.status)
		metrics.HTTPRequests.WithLabelValues(r.Method, path, status).Inc()
		metrics.HTTPDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
	})
}

// pathLabel buckets resource IDs out of the path so metric cardinality stays
// bounded.
func pathLabel(p string) string {
	for _, prefix := range []string{
		"/v1/instances/",
		"/v1/runs/",
		"/v1/subscriptions/",
		"/v1/admin/webhook-deliveries/",
	} {
		if strings.HasPrefix(p, prefix) && len(p) > len(prefix) {
			return prefix + ":id"
		}
	}
	return p
}

// RateLimitMiddleware applies a process-wide request budget. A zero rps
// disables limiting.
func RateLimitMiddleware(rps float64, next http.Handler) http.Handler {
	if rps <= 0 {
		return next
	}
	limiter := rate.NewLimiter(rate.Limit(rps), int(rps)*2)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			writeProblem(w, http.StatusTooManyRequests, "Too Many Requests", "rate limit exceeded", r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}
