// Точка входа Identity Admin — административный сервис сверки профилей
// и учётных записей Keycloak.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL,
// создаёт клиент Keycloak, сервисный слой и журнал операций,
// запускает topologymetrics и HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/bigkaa/fleetops/identity-admin/internal/api/handlers"
	"github.com/bigkaa/fleetops/identity-admin/internal/api/middleware"
	"github.com/bigkaa/fleetops/identity-admin/internal/api/openapi"
	"github.com/bigkaa/fleetops/identity-admin/internal/auditstream"
	"github.com/bigkaa/fleetops/identity-admin/internal/config"
	"github.com/bigkaa/fleetops/identity-admin/internal/database"
	"github.com/bigkaa/fleetops/identity-admin/internal/domain/rbac"
	"github.com/bigkaa/fleetops/identity-admin/internal/keycloak"
	"github.com/bigkaa/fleetops/identity-admin/internal/repository"
	"github.com/bigkaa/fleetops/identity-admin/internal/server"
	"github.com/bigkaa/fleetops/identity-admin/internal/service"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Identity Admin запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("lookup_strategy", cfg.LookupStrategy),
		slog.Bool("secret_path_enabled", cfg.SecretPathEnabled()),
	)

	if os.Getenv("IA_DEPHEALTH_GROUP") == "" {
		logger.Warn("IA_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics
	pgDB := database.OpenDB(pool)
	defer pgDB.Close()

	// 5. HTTP-клиент Keycloak (с CA-сертификатом, если задан)
	kcHTTPClient, err := middleware.HTTPClientWithCA(cfg.KeycloakCACertPath, cfg.UpstreamTimeout)
	if err != nil {
		logger.Error("Ошибка загрузки CA-сертификата",
			slog.String("path", cfg.KeycloakCACertPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// 6. Keycloak Admin API клиент
	kcClient := keycloak.New(
		cfg.KeycloakURL,
		cfg.KeycloakRealm,
		cfg.KeycloakClientID,
		cfg.KeycloakClientSecret,
		kcHTTPClient,
		logger,
	)
	logger.Info("Keycloak клиент создан",
		slog.String("url", cfg.KeycloakURL),
		slog.String("realm", cfg.KeycloakRealm),
	)

	// 7. Repositories
	profileRepo := repository.NewProfileRepository(pool)
	opLogRepo := repository.NewOperationLogRepository(pool)

	// 8. Services
	allowList := rbac.NewAllowList(cfg.AdminRoles)
	directory := service.NewIdentityDirectory(kcClient, service.DirectoryConfig{
		Strategy: cfg.LookupStrategy,
		PageSize: cfg.LookupPageSize,
		MaxPages: cfg.LookupMaxPages,
		Timeout:  cfg.UpstreamTimeout,
	}, logger)
	provisioner := service.NewProvisioner(
		directory, kcClient, profileRepo,
		cfg.UpstreamTimeout, cfg.TempPasswordLength,
		logger,
	)
	userCreation := service.NewUserCreationService(profileRepo, provisioner, cfg.UpstreamTimeout, logger)
	passwordReset := service.NewPasswordResetService(
		profileRepo, directory, kcClient, allowList,
		cfg.UpstreamTimeout, cfg.TempPasswordLength,
		logger,
	)
	operations := service.NewOperationLogService(opLogRepo)

	// 9. Журнал операций: PostgreSQL + (опционально) Redis stream
	sinks := []service.AuditSink{service.NewOperationLogSink(opLogRepo)}
	var auditStream *auditstream.Sink
	if cfg.AuditRedisURL != "" {
		auditStream, err = auditstream.New(cfg.AuditRedisURL, cfg.AuditRedisStream, cfg.AuditRedisMaxLen, logger)
		if err != nil {
			logger.Error("Ошибка создания Redis stream журнала", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer auditStream.Close()
		sinks = append(sinks, auditStream)
		logger.Info("Зеркалирование журнала операций в Redis включено",
			slog.String("stream", cfg.AuditRedisStream),
		)
	}
	auditor := service.NewAuditor(cfg.AuditTimeout, logger, sinks...)

	// 10. Проверка bearer-токенов и Gate
	verifier, err := middleware.NewTokenVerifier(
		cfg.JWTJWKSURL,
		cfg.KeycloakCACertPath,
		cfg.JWTIssuer,
		cfg.JWKSClientTimeout,
		cfg.JWKSRefreshInterval,
		cfg.JWTLeeway,
		logger,
	)
	if err != nil {
		logger.Error("Ошибка создания проверки токенов", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Проверка токенов инициализирована",
		slog.String("jwks_url", cfg.JWTJWKSURL),
		slog.String("issuer", cfg.JWTIssuer),
	)

	gate := middleware.NewGate(verifier, profileRepo, middleware.GateConfig{
		Secrets:       cfg.AdminSecrets,
		SecretActions: cfg.AdminSecretActions,
		AllowedRoles:  allowList,
		Timeout:       cfg.UpstreamTimeout,
	}, logger)

	// 11. Проверка запросов по OpenAPI контракту
	doc, err := openapi.Load()
	if err != nil {
		logger.Error("Ошибка загрузки OpenAPI контракта", slog.String("error", err.Error()))
		os.Exit(1)
	}
	validator := openapi.NewValidator(doc, logger)

	// 12. topologymetrics — мониторинг зависимостей (PostgreSQL + Keycloak)
	dephealthSvc, dephealthErr := service.NewDephealthService(service.DephealthConfig{
		ServiceID:       "identity-admin",
		Group:           cfg.DephealthGroup,
		DB:              pgDB,
		PostgresURL:     cfg.DatabaseURL(),
		KeycloakJWKSURL: cfg.JWTJWKSURL,
		CheckInterval:   cfg.DephealthCheckInterval,
	}, logger)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
	} else {
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 13. Health и API handler
	healthHandler := handlers.NewHealthHandler(database.NewReadinessChecker(pool), kcClient)
	if auditStream != nil {
		healthHandler.WithOptional("audit_stream", auditStream)
	}
	if dephealthSvc != nil {
		healthHandler.WithOptional("dependencies", dephealthSvc)
	}

	apiHandler := handlers.NewAPIHandler(healthHandler, handlers.Services{
		Gate:        gate,
		Provisioner: provisioner,
		Users:       userCreation,
		Resets:      passwordReset,
		Operations:  operations,
		Auditor:     auditor,
	}, logger)

	// 14. Создание и запуск HTTP-сервера
	// Отклонённые контрактом запросы тоже попадают в журнал операций
	validator.OnReject(apiHandler.RecordRejected)

	srv := server.New(cfg, logger, apiHandler, validator.Middleware())
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 15. Остановка фоновых задач
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	logger.Info("Identity Admin остановлен")
}
