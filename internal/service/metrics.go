// metrics.go — Prometheus метрики административных операций.
package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// adminOperationsTotal — количество административных операций по действию и итогу.
	adminOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ia_admin_operations_total",
			Help: "Количество административных операций Identity Admin",
		},
		[]string{"action", "outcome"},
	)

	// identityLookupPages — число страниц Keycloak, просмотренных за один поиск.
	identityLookupPages = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ia_identity_lookup_pages",
			Help:    "Количество страниц пользователей Keycloak, просмотренных при поиске по email",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 500, 1000},
		},
		[]string{"strategy"},
	)

	// auditWriteFailures — неудачные записи в журнал операций по приёмнику.
	auditWriteFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ia_audit_write_failures_total",
			Help: "Количество неудачных записей журнала административных операций",
		},
		[]string{"sink"},
	)
)
