// dephealth.go — интеграция с topologymetrics SDK для мониторинга зависимостей.
//
// Identity Admin мониторит две критичные зависимости:
//   - PostgreSQL — SQL checker через существующий pgxpool (connection pool mode)
//   - Keycloak — HTTP checker к JWKS endpoint realm
//
// Метрики доступны на /metrics вместе с остальными Prometheus-метриками:
//   - app_dependency_health — состояние зависимости (1 = ok, 0 = fail)
//   - app_dependency_latency_seconds — задержка проверки
package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // HTTP checker для Keycloak
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"
	"github.com/prometheus/client_golang/prometheus"
)

// DephealthConfig — параметры мониторинга зависимостей.
type DephealthConfig struct {
	// ServiceID — имя вершины графа текущего приложения
	ServiceID string
	Group     string
	// DB — *sql.DB поверх pgxpool (database.OpenDB)
	DB *sql.DB
	// PostgresURL — URL PostgreSQL без пароля, только для лейблов
	PostgresURL     string
	KeycloakJWKSURL string
	CheckInterval   time.Duration
	// KeycloakTLSSkipVerify — Keycloak с сертификатом внутреннего CA
	KeycloakTLSSkipVerify bool
	// Registerer — Prometheus registry (nil — глобальный)
	Registerer prometheus.Registerer
}

// DephealthService — сервис мониторинга зависимостей через topologymetrics.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// NewDephealthService создаёт сервис мониторинга зависимостей.
func NewDephealthService(cfg DephealthConfig, logger *slog.Logger) (*DephealthService, error) {
	// Keycloak отдаёт /health только на management-порту,
	// поэтому проверяется сам JWKS endpoint realm.
	kcHealthPath := "/health"
	if parsed, err := url.Parse(cfg.KeycloakJWKSURL); err == nil && parsed.Path != "" {
		kcHealthPath = parsed.Path
	}

	kcOpts := []dephealth.DependencyOption{
		dephealth.FromURL(cfg.KeycloakJWKSURL),
		dephealth.WithHTTPHealthPath(kcHealthPath),
		dephealth.CheckInterval(cfg.CheckInterval),
		dephealth.Critical(true),
	}
	if cfg.KeycloakTLSSkipVerify {
		kcOpts = append(kcOpts, dephealth.WithHTTPTLSSkipVerify(true))
	}

	opts := []dephealth.Option{
		dephealth.WithLogger(logger),
		dephealth.AddDependency("postgresql", dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(cfg.DB)),
			dephealth.FromURL(cfg.PostgresURL),
			dephealth.CheckInterval(cfg.CheckInterval),
			dephealth.Critical(true),
		),
		dephealth.HTTP("keycloak-jwks", kcOpts...),
	}
	if cfg.Registerer != nil {
		opts = append(opts, dephealth.WithRegisterer(cfg.Registerer))
	}

	dh, err := dephealth.New(cfg.ServiceID, cfg.Group, opts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен (PostgreSQL + Keycloak)")
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает текущее состояние зависимостей (имя → ok).
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}

// CheckReady сводит состояние зависимостей для /health/ready.
// Реализует handlers.ReadinessChecker.
func (ds *DephealthService) CheckReady() (string, string) {
	return summarizeHealth(ds.Health())
}

// summarizeHealth: "ok", если все зависимости здоровы, иначе "degraded" со списком.
// Пустая карта (проверки ещё не выполнялись) считается "ok".
func summarizeHealth(health map[string]bool) (string, string) {
	var failed []string
	for name, ok := range health {
		if !ok {
			failed = append(failed, name)
		}
	}
	if len(failed) == 0 {
		return "ok", fmt.Sprintf("зависимостей: %d, все доступны", len(health))
	}
	sort.Strings(failed)
	return "degraded", "недоступны: " + strings.Join(failed, ", ")
}
