package server

import (
	"net/http"

	"filegate/internal/metrics"

	"github.com/charmbracelet/log"
	"github.com/felixge/httpsnoop"
)

type middleware func(next http.Handler) http.Handler

func handle(mux *http.ServeMux, pattern string, handler http.Handler, middlewares ...middleware) {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](http.Handler(handler))
	}
	mux.Handle(pattern, handler)
}

// accessLog logs every request and counts it.
func accessLog(logger *log.Logger, m *metrics.Metrics) middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			stats := httpsnoop.CaptureMetrics(next, w, r)
			m.HTTPRequest(r.Method, stats)

			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", stats.Code,
				"bytes", stats.Written,
				"duration", stats.Duration,
			)
		})
	}
}
