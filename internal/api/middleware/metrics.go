// metrics.go — Prometheus HTTP метрики Identity Admin.
// Регистрирует метрики: ia_http_requests_total, ia_http_request_duration_seconds.
package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ia_http_requests_total",
			Help: "Общее количество HTTP-запросов к Identity Admin",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ia_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к Identity Admin в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			path := normalizePath(r.URL.Path)

			wrapped := newResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
			httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

// knownPaths — пути, которые попадают в лейблы метрик как есть.
var knownPaths = map[string]bool{
	"/health/live":                     true,
	"/health/ready":                    true,
	"/metrics":                         true,
	"/api/v1/admin/provision-identity": true,
	"/api/v1/admin/reset-password":     true,
	"/api/v1/admin/users":              true,
	"/api/v1/admin/operations":         true,
}

// normalizePath сводит неизвестные пути к одному лейблу, чтобы сканирование
// произвольных URL не раздувало кардинальность метрик.
func normalizePath(path string) string {
	if knownPaths[path] {
		return path
	}
	return "other"
}
