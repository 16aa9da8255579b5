package slogx

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/aussiebroadwan/maturity/pkg/idx"
)

// RequestIDHeader is echoed back so callers can quote it in bug reports.
const RequestIDHeader = "X-Request-ID"

type reqIDKey struct{}

// RequestIDFromContext returns the id HTTPMiddleware assigned to the request.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(reqIDKey{}).(string)
	return id
}

// requestID keeps a caller supplied id when it is short and plain, so it
// cannot forge log structure; otherwise it mints a ULID.
func requestID(r *http.Request) string {
	id := r.Header.Get(RequestIDHeader)
	if id == "" || len(id) > 64 {
		return idx.New().String()
	}
	for _, c := range id {
		ok := c == '-' || c == '_' || c == '.' ||
			(c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
		if !ok {
			return idx.New().String()
		}
	}
	return id
}

// HTTPMiddleware puts a request scoped logger into the context and writes
// one summary line per request. Requests to quietPaths, such as probes and
// scrapes, are summarised at debug level. Only the path is logged because
// query strings carry codes and states.
func HTTPMiddleware(base *slog.Logger, quietPaths ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			id := requestID(r)
			w.Header().Set(RequestIDHeader, id)

			logger := base.With(
				"req_id", id,
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			ctx := context.WithValue(WithContext(r.Context(), logger), reqIDKey{}, id)

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(ctx))

			level := slog.LevelInfo
			switch {
			case rec.status >= http.StatusInternalServerError:
				level = slog.LevelError
			case slices.Contains(quietPaths, r.URL.Path):
				level = slog.LevelDebug
			}
			logger.Log(ctx, level, "http_request",
				"status", rec.status,
				"bytes", rec.written,
				"duration_ms", time.Since(start).Milliseconds(),
				"user_agent", r.UserAgent(),
			)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	written     int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wroteHeader {
		s.status, s.wroteHeader = code, true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	s.wroteHeader = true
	n, err := s.ResponseWriter.Write(b)
	s.written += n
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }
