package web

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// statusRecorder captures the response code for instrumentation.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// instrument logs each request and feeds the HTTP metrics.
func (h *Handler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		if h.metrics != nil {
			h.metrics.RecordHTTPRequest(r.Method, metricPath(r.URL.Path), strconv.Itoa(rec.status), elapsed.Seconds())
		}
		h.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", elapsed.Milliseconds(),
		)
	})
}

// metricPath collapses per-resource paths so conversation ids do not
// explode label cardinality.
func metricPath(p string) string {
	if strings.HasPrefix(p, "/api/conversations/") {
		return "/api/conversations/{id}"
	}
	return p
}
