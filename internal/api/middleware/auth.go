// auth.go — проверка bearer-токенов вызывающих через JWKS Keycloak.
// Из токена берётся только sub: роль вызывающего определяется по профилю
// в основном хранилище (см. gate.go).
package middleware

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrNoBearer — запрос без заголовка Authorization: Bearer.
	ErrNoBearer = errors.New("отсутствует bearer-токен")
	// ErrInvalidToken — подпись, срок действия или issuer токена не прошли проверку.
	ErrInvalidToken = errors.New("невалидный или просроченный токен")
)

// TokenVerifier проверяет JWT, подписанные ключами realm Keycloak (RS256).
type TokenVerifier struct {
	jwks      keyfunc.Keyfunc
	issuer    string
	jwtLeeway time.Duration
	logger    *slog.Logger
}

// NewTokenVerifier создаёт TokenVerifier с JWKS из Keycloak.
// caCertPath — опциональный путь к CA-сертификату для TLS.
// jwksClientTimeout — таймаут HTTP-клиента JWKS (IA_JWKS_CLIENT_TIMEOUT).
// jwksRefreshInterval — интервал обновления ключей (IA_JWKS_REFRESH_INTERVAL).
// jwtLeeway — допустимое отклонение времени (IA_JWT_LEEWAY).
func NewTokenVerifier(
	jwksURL string,
	caCertPath string,
	issuer string,
	jwksClientTimeout time.Duration,
	jwksRefreshInterval time.Duration,
	jwtLeeway time.Duration,
	logger *slog.Logger,
) (*TokenVerifier, error) {
	httpClient, err := HTTPClientWithCA(caCertPath, jwksClientTimeout)
	if err != nil {
		return nil, fmt.Errorf("загрузка CA-сертификата %s: %w", caCertPath, err)
	}

	// NoErrorReturnFirstHTTPReq — стартуем даже если Keycloak ещё недоступен.
	storage, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
		Client:                    httpClient,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           jwksRefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", jwksURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{
		Storage: storage,
	})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}

	return NewTokenVerifierWithKeyfunc(k, issuer, jwtLeeway, logger), nil
}

// NewTokenVerifierWithKeyfunc создаёт TokenVerifier с готовой keyfunc.
func NewTokenVerifierWithKeyfunc(kf keyfunc.Keyfunc, issuer string, jwtLeeway time.Duration, logger *slog.Logger) *TokenVerifier {
	return &TokenVerifier{
		jwks:      kf,
		issuer:    issuer,
		jwtLeeway: jwtLeeway,
		logger:    logger.With(slog.String("component", "token_verifier")),
	}
}

// HTTPClientWithCA создаёт HTTP-клиент с дополнительным CA-сертификатом.
// Пустой caCertPath — системный пул доверия.
func HTTPClientWithCA(caCertPath string, timeout time.Duration) (*http.Client, error) {
	if caCertPath == "" {
		return &http.Client{Timeout: timeout}, nil
	}

	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, err
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("файл не содержит PEM-сертификатов")
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				RootCAs:    caCertPool,
				MinVersion: tls.VersionTLS12,
			},
		},
	}, nil
}

// bearerToken извлекает токен из заголовка Authorization.
func bearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", ErrNoBearer
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", fmt.Errorf("%w: ожидается Bearer <token>", ErrInvalidToken)
	}
	return strings.TrimSpace(parts[1]), nil
}

// Verify проверяет bearer-токен запроса и возвращает его sub.
func (v *TokenVerifier) Verify(r *http.Request) (string, error) {
	tokenString, err := bearerToken(r)
	if err != nil {
		return "", err
	}

	claims := &jwt.RegisteredClaims{}
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.jwtLeeway),
	}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, v.jwks.KeyfuncCtx(r.Context()), parserOpts...)
	if err != nil || !token.Valid {
		v.logger.Debug("JWT валидация не пройдена",
			slog.Any("error", err),
			slog.String("remote_addr", r.RemoteAddr),
		)
		return "", ErrInvalidToken
	}

	if claims.Subject == "" {
		return "", fmt.Errorf("%w: отсутствует sub", ErrInvalidToken)
	}
	return claims.Subject, nil
}
