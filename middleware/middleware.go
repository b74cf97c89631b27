package middleware

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"
)

// HTTPObserver records per-request metrics. *metrics.Metrics satisfies it.
type HTTPObserver interface {
	ObserveHTTP(method, path string, status int, d time.Duration)
}

// CORS middleware
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Logging writes one JSON access-log entry per request and reports it to
// observer when one is given.
func Logging(observer HTTPObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Create a response writer wrapper to capture status code
			wrapped := &responseWriter{ResponseWriter: w}

			next.ServeHTTP(wrapped, r)

			status := wrapped.status()
			duration := time.Since(start)
			entry := map[string]interface{}{
				"ts":       start.UTC().Format(time.RFC3339Nano),
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   status,
				"duration": duration.String(),
			}
			if err := json.NewEncoder(log.Writer()).Encode(entry); err != nil {
				log.Printf("%s %s %d %v", r.Method, r.URL.Path, status, duration)
			}
			if observer != nil {
				observer.ObserveHTTP(r.Method, routeLabel(r.URL.Path), status, duration)
			}
		})
	}
}

// routes are the exact paths served by the mux. Anything else is reported
// under "other".
var routes = map[string]bool{
	"/":                    true,
	"/api/health":          true,
	"/handle_task":         true,
	"/api/projects/links":  true,
	"/api/projects/qrcode": true,
	"/mcp":                 true,
	"/metrics":             true,
	"/swagger/doc.json":    true,
}

// routeLabel keeps metric cardinality bounded.
func routeLabel(p string) string {
	switch {
	case routes[p]:
		return p
	case strings.HasPrefix(p, "/sites/"):
		return "/sites/"
	default:
		return "other"
	}
}

// Recovery middleware
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("Panic recovered: %v", err)

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				json.NewEncoder(w).Encode(map[string]interface{}{
					"error": "Internal server error",
				})
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// SecurityHeaders middleware
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "SAMEORIGIN")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// Timeout bounds how long a caller waits for a response. The handler keeps
// running after the deadline; only the response is abandoned.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			r = r.WithContext(ctx)

			tracked := &timeoutTrackingWriter{ResponseWriter: w, header: make(http.Header)}

			done := make(chan struct{})
			go func() {
				defer close(done)
				next.ServeHTTP(tracked, r)
			}()

			select {
			case <-done:
			case <-ctx.Done():
				if !tracked.markTimedOut() {
					// Already answering; let the handler finish its response.
					<-done
					return
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusGatewayTimeout)
				json.NewEncoder(w).Encode(map[string]interface{}{
					"error": "Request timed out",
				})
			}
		})
	}
}

// timeoutTrackingWriter buffers the handler's headers in its own map and
// drops writes once the timeout response has been sent. The underlying
// header map is only touched under mu, before the timeout fires.
type timeoutTrackingWriter struct {
	http.ResponseWriter
	header    http.Header
	mu        sync.Mutex
	committed bool
	timedOut  bool
}

func (tw *timeoutTrackingWriter) Header() http.Header {
	return tw.header
}

func (tw *timeoutTrackingWriter) markTimedOut() bool {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.committed {
		return false
	}
	tw.timedOut = true
	return true
}

// commit copies the buffered headers out and sends the status. Callers
// hold mu.
func (tw *timeoutTrackingWriter) commit(statusCode int) {
	dst := tw.ResponseWriter.Header()
	for k, v := range tw.header {
		dst[k] = append([]string(nil), v...)
	}
	tw.committed = true
	tw.ResponseWriter.WriteHeader(statusCode)
}

func (tw *timeoutTrackingWriter) WriteHeader(statusCode int) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.timedOut || tw.committed {
		return
	}
	tw.commit(statusCode)
}

func (tw *timeoutTrackingWriter) Write(b []byte) (int, error) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.timedOut {
		return 0, http.ErrHandlerTimeout
	}
	if !tw.committed {
		tw.commit(http.StatusOK)
	}
	return tw.ResponseWriter.Write(b)
}

// ContentType middleware
func ContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "POST" {
			contentType := r.Header.Get("Content-Type")
			if contentType != "" && !strings.HasPrefix(contentType, "application/json") {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnsupportedMediaType)
				json.NewEncoder(w).Encode(map[string]interface{}{
					"error": "Content-Type must be application/json",
				})
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.statusCode != 0 {
		// Headers already written, ignore superfluous calls
		return
	}
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if rw.statusCode == 0 {
		rw.statusCode = http.StatusOK
	}
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) status() int {
	if rw.statusCode == 0 {
		return http.StatusOK
	}
	return rw.statusCode
}
