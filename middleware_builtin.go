package lws

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Built-in middleware modules, registered on the default registry under the
// plugin-prefix convention so string specs like "log" or "lws-cors" resolve
// without any user registration.
func init() {
	must(defaultRegistry.Register("lws-log", MiddlewareConstructor(newLogMiddleware)))
	must(defaultRegistry.Register("lws-cors", MiddlewareConstructor(newCORSMiddleware)))
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// LogMiddleware logs one line per handled request, tagged with the verbose
// request id when the aggregator's request middleware runs ahead of it.
type LogMiddleware struct {
	logger Logger
}

// NewLogMiddleware creates the request-logging middleware. A nil logger
// falls back to slog.
func NewLogMiddleware(logger Logger) *LogMiddleware {
	if logger == nil {
		logger = NewSlogLogger(nil)
	}
	return &LogMiddleware{logger: logger}
}

func newLogMiddleware(_ *ServerOptions) (Middleware, error) {
	return NewLogMiddleware(nil), nil
}

// Handler implements Middleware.
func (m *LogMiddleware) Handler(_ *ServerOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapper := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapper, r)

			m.logger.Info("Request handled",
				"requestId", RequestID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapper.statusCode,
				"duration", time.Since(start),
			)
		})
	}
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// CORSMiddleware sets cross-origin headers on every response and
// short-circuits preflight OPTIONS requests.
type CORSMiddleware struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	MaxAge         int
}

// NewCORSMiddleware creates a CORS middleware with permissive defaults.
func NewCORSMiddleware() *CORSMiddleware {
	return &CORSMiddleware{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Origin", "Accept", "Content-Type", "X-Requested-With", "Authorization"},
		MaxAge:         300,
	}
}

func newCORSMiddleware(_ *ServerOptions) (Middleware, error) {
	return NewCORSMiddleware(), nil
}

// Handler implements Middleware.
func (m *CORSMiddleware) Handler(_ *ServerOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed := false
			for _, allowedOrigin := range m.AllowedOrigins {
				if allowedOrigin == "*" || allowedOrigin == origin {
					allowed = true
					break
				}
			}

			if allowed && origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				if len(m.AllowedMethods) > 0 {
					w.Header().Set("Access-Control-Allow-Methods", strings.Join(m.AllowedMethods, ", "))
				}
				if len(m.AllowedHeaders) > 0 {
					w.Header().Set("Access-Control-Allow-Headers", strings.Join(m.AllowedHeaders, ", "))
				}
				if m.MaxAge > 0 {
					w.Header().Set("Access-Control-Max-Age", fmt.Sprintf("%d", m.MaxAge))
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
