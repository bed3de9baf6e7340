// Пакет config — загрузка и валидация конфигурации Identity Admin
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Стратегии поиска identity по email.
const (
	// LookupStrategyScan — постраничный перебор всех пользователей Keycloak.
	LookupStrategyScan = "scan"
	// LookupStrategySearch — серверный фильтр Keycloak (email + exact=true).
	LookupStrategySearch = "search"
)

// Config содержит все параметры конфигурации Identity Admin.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера (диапазон 8000-8009)
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- Keycloak ---

	// URL Keycloak (например, https://keycloak.fleetops.lan)
	KeycloakURL string
	// Имя realm в Keycloak
	KeycloakRealm string
	// Client ID для доступа к Keycloak Admin API
	KeycloakClientID string
	// Client Secret для доступа к Keycloak Admin API
	KeycloakClientSecret string
	// Путь к CA-сертификату для TLS-соединений с Keycloak (опционально)
	KeycloakCACertPath string

	// --- JWT ---

	// Issuer JWT (авто-вычисляется из KeycloakURL, если не задан)
	JWTIssuer string
	// URL JWKS endpoint (авто-вычисляется из KeycloakURL, если не задан)
	JWTJWKSURL string
	// Допустимое отклонение часов при проверке exp/nbf
	JWTLeeway time.Duration
	// Интервал фонового обновления JWKS
	JWKSRefreshInterval time.Duration
	// Таймаут HTTP-клиента JWKS
	JWKSClientTimeout time.Duration

	// --- Авторизация ---

	// AdminSecrets — общие административные секреты. Первый — текущий,
	// остальные принимаются на время ротации. Пусто — путь отключён.
	AdminSecrets []string
	// AdminSecretActions — операции, которые разрешено выполнять по секрету.
	AdminSecretActions []string
	// AdminRoles — роли профиля, допущенные к административным операциям.
	AdminRoles []string

	// --- Поиск identity ---

	// Стратегия поиска: scan или search
	LookupStrategy string
	// Размер страницы при переборе пользователей Keycloak
	LookupPageSize int
	// Максимальное количество страниц перебора
	LookupMaxPages int

	// --- Таймауты ---

	// Таймаут одного вызова Keycloak / PostgreSQL
	UpstreamTimeout time.Duration
	// Таймаут записи в журнал операций
	AuditTimeout time.Duration
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration

	// --- Журнал операций ---

	// URL Redis для зеркалирования журнала в stream (опционально)
	AuditRedisURL string
	// Имя Redis stream
	AuditRedisStream string
	// Приблизительная максимальная длина stream
	AuditRedisMaxLen int64

	// --- topologymetrics ---

	DephealthGroup         string
	DephealthCheckInterval time.Duration

	// --- Пароли ---

	// Длина генерируемого временного пароля
	TempPasswordLength int
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	cfg.Port, err = getEnvInt("IA_PORT", 8000)
	if err != nil {
		return nil, fmt.Errorf("IA_PORT: %w", err)
	}
	if cfg.Port < 8000 || cfg.Port > 8009 {
		return nil, fmt.Errorf("IA_PORT: значение %d вне допустимого диапазона 8000-8009", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("IA_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("IA_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("IA_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("IA_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- PostgreSQL ---

	if cfg.DBHost, err = getEnvRequired("IA_DB_HOST"); err != nil {
		return nil, err
	}
	cfg.DBPort, err = getEnvInt("IA_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("IA_DB_PORT: %w", err)
	}
	if cfg.DBName, err = getEnvRequired("IA_DB_NAME"); err != nil {
		return nil, err
	}
	if cfg.DBUser, err = getEnvRequired("IA_DB_USER"); err != nil {
		return nil, err
	}
	if cfg.DBPassword, err = getEnvRequired("IA_DB_PASSWORD"); err != nil {
		return nil, err
	}

	cfg.DBSSLMode = getEnvDefault("IA_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("IA_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- Keycloak ---

	if cfg.KeycloakURL, err = getEnvRequired("IA_KEYCLOAK_URL"); err != nil {
		return nil, err
	}
	cfg.KeycloakURL = strings.TrimRight(cfg.KeycloakURL, "/")
	cfg.KeycloakRealm = getEnvDefault("IA_KEYCLOAK_REALM", "fleetops")
	if cfg.KeycloakClientID, err = getEnvRequired("IA_KEYCLOAK_CLIENT_ID"); err != nil {
		return nil, err
	}
	if cfg.KeycloakClientSecret, err = getEnvRequired("IA_KEYCLOAK_CLIENT_SECRET"); err != nil {
		return nil, err
	}
	cfg.KeycloakCACertPath = getEnvDefault("IA_KEYCLOAK_CA_CERT_PATH", "")

	// --- JWT ---

	cfg.JWTIssuer = getEnvDefault("IA_JWT_ISSUER",
		fmt.Sprintf("%s/realms/%s", cfg.KeycloakURL, cfg.KeycloakRealm))
	cfg.JWTJWKSURL = getEnvDefault("IA_JWT_JWKS_URL",
		fmt.Sprintf("%s/realms/%s/protocol/openid-connect/certs", cfg.KeycloakURL, cfg.KeycloakRealm))

	cfg.JWTLeeway, err = getEnvDuration("IA_JWT_LEEWAY", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("IA_JWT_LEEWAY: %w", err)
	}
	cfg.JWKSRefreshInterval, err = getEnvDuration("IA_JWKS_REFRESH_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("IA_JWKS_REFRESH_INTERVAL: %w", err)
	}
	cfg.JWKSClientTimeout, err = getEnvDuration("IA_JWKS_CLIENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("IA_JWKS_CLIENT_TIMEOUT: %w", err)
	}

	// --- Авторизация ---

	// IA_ADMIN_SECRETS — пусто по умолчанию: путь по секрету отключён
	cfg.AdminSecrets = parseCSV(getEnvDefault("IA_ADMIN_SECRETS", ""))
	for _, s := range cfg.AdminSecrets {
		if len(s) < 32 {
			return nil, fmt.Errorf("IA_ADMIN_SECRETS: секрет короче 32 символов")
		}
	}
	cfg.AdminSecretActions = parseCSV(getEnvDefault("IA_ADMIN_SECRET_ACTIONS", "provision_identity"))
	cfg.AdminRoles = parseCSV(getEnvDefault("IA_ADMIN_ROLES", "admin,council,super_admin,compliance_officer"))
	if len(cfg.AdminRoles) == 0 {
		return nil, fmt.Errorf("IA_ADMIN_ROLES: список ролей не может быть пустым")
	}

	// --- Поиск identity ---

	cfg.LookupStrategy = getEnvDefault("IA_LOOKUP_STRATEGY", LookupStrategyScan)
	if cfg.LookupStrategy != LookupStrategyScan && cfg.LookupStrategy != LookupStrategySearch {
		return nil, fmt.Errorf("IA_LOOKUP_STRATEGY: недопустимое значение %q, допустимые: scan, search", cfg.LookupStrategy)
	}
	cfg.LookupPageSize, err = getEnvInt("IA_LOOKUP_PAGE_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("IA_LOOKUP_PAGE_SIZE: %w", err)
	}
	if cfg.LookupPageSize < 1 || cfg.LookupPageSize > 5000 {
		return nil, fmt.Errorf("IA_LOOKUP_PAGE_SIZE: значение %d вне допустимого диапазона 1-5000", cfg.LookupPageSize)
	}
	cfg.LookupMaxPages, err = getEnvInt("IA_LOOKUP_MAX_PAGES", 50)
	if err != nil {
		return nil, fmt.Errorf("IA_LOOKUP_MAX_PAGES: %w", err)
	}
	if cfg.LookupMaxPages < 1 || cfg.LookupMaxPages > 1000 {
		return nil, fmt.Errorf("IA_LOOKUP_MAX_PAGES: значение %d вне допустимого диапазона 1-1000", cfg.LookupMaxPages)
	}

	// --- Таймауты ---

	cfg.UpstreamTimeout, err = getEnvDuration("IA_UPSTREAM_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("IA_UPSTREAM_TIMEOUT: %w", err)
	}
	cfg.AuditTimeout, err = getEnvDuration("IA_AUDIT_TIMEOUT", 3*time.Second)
	if err != nil {
		return nil, fmt.Errorf("IA_AUDIT_TIMEOUT: %w", err)
	}
	cfg.ShutdownTimeout, err = getEnvDuration("IA_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("IA_SHUTDOWN_TIMEOUT: %w", err)
	}

	// --- Журнал операций ---

	cfg.AuditRedisURL = getEnvDefault("IA_AUDIT_REDIS_URL", "")
	cfg.AuditRedisStream = getEnvDefault("IA_AUDIT_REDIS_STREAM", "identity-admin:audit")
	maxLen, err := getEnvInt("IA_AUDIT_REDIS_MAXLEN", 100000)
	if err != nil {
		return nil, fmt.Errorf("IA_AUDIT_REDIS_MAXLEN: %w", err)
	}
	if maxLen < 0 {
		return nil, fmt.Errorf("IA_AUDIT_REDIS_MAXLEN: значение %d не может быть отрицательным", maxLen)
	}
	cfg.AuditRedisMaxLen = int64(maxLen)

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("IA_DEPHEALTH_GROUP", "fleetops")
	cfg.DephealthCheckInterval, err = getEnvDuration("IA_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("IA_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Пароли ---

	cfg.TempPasswordLength, err = getEnvInt("IA_TEMP_PASSWORD_LENGTH", 16)
	if err != nil {
		return nil, fmt.Errorf("IA_TEMP_PASSWORD_LENGTH: %w", err)
	}
	if cfg.TempPasswordLength < 12 || cfg.TempPasswordLength > 64 {
		return nil, fmt.Errorf("IA_TEMP_PASSWORD_LENGTH: значение %d вне допустимого диапазона 12-64", cfg.TempPasswordLength)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL без пароля (для лейблов topologymetrics).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s@%s:%d/%s", c.DBUser, c.DBHost, c.DBPort, c.DBName)
}

// SecretPathEnabled сообщает, включён ли путь авторизации по общему секрету.
func (c *Config) SecretPathEnabled() bool {
	return len(c.AdminSecrets) > 0
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	if d <= 0 {
		return 0, fmt.Errorf("длительность должна быть положительной: %q", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

// parseCSV разбирает строку, разделённую запятыми, на срез строк.
// Пробелы вокруг элементов убираются, пустые элементы игнорируются.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
