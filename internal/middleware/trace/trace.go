// Package trace assigns request ids and records one log line and one metric
// sample per HTTP request.
package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"budgetlist/internal/log"
	"budgetlist/internal/metrics"
)

type ContextKey string

const RequestIDKey ContextKey = "request_id"

// HeaderRequestID is read from incoming requests and echoed on responses.
const HeaderRequestID = "X-Request-ID"

var validRequestID = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)

type Middleware struct {
	logger    *log.Logger
	events    *log.StructuredLogger
	metrics   *metrics.Metrics
	extractIP func(*http.Request) string
	route     func(*http.Request) string
}

// NewMiddleware builds the tracer. route names the matched route for metric
// labels; extractIP resolves the client address. Both may be nil.
func NewMiddleware(logger *log.Logger, m *metrics.Metrics, extractIP, route func(*http.Request) string) *Middleware {
	logger = logger.WithComponent(log.ComponentTrace)
	return &Middleware{
		logger:    logger,
		events:    log.NewStructuredLogger(logger),
		metrics:   m,
		extractIP: extractIP,
		route:     route,
	}
}

func (m *Middleware) Middleware(next http.Handler) http.Handler {
	// The request logger is derived from the id stored below.
	inner := log.Middleware(m.logger)(log.RequestIDMiddleware(func(r *http.Request) string {
		return GetRequestID(r.Context())
	})(next))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get(HeaderRequestID)
		if !validRequestID.MatchString(requestID) {
			requestID = GenerateRequestID()
		}
		w.Header().Set(HeaderRequestID, requestID)

		clientIP := ""
		if m.extractIP != nil {
			clientIP = m.extractIP(r)
		}
		route := "unmatched"
		if m.route != nil {
			if p := m.route(r); p != "" {
				route = p
			}
		}

		r = r.WithContext(context.WithValue(r.Context(), RequestIDKey, requestID))
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		inner.ServeHTTP(rw, r)

		duration := time.Since(start)
		m.metrics.ObserveHTTP(r.Method, route, rw.statusCode, duration)
		m.events.LogHTTPEnd(
			log.NewContext(r.Context(), m.logger),
			r, rw.statusCode, duration.Milliseconds(), clientIP, requestID,
		)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// GenerateRequestID returns a random id prefixed with "req_".
func GenerateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}
