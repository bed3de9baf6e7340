package middleware

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// testKeyID — идентификатор ключа для тестов.
const testKeyID = "test-key-ia"

const testIssuer = "https://keycloak.test/realms/fleetops"

// generateTestKey генерирует RSA ключ для тестов.
func generateTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	return key
}

// buildJWKSetJSON строит JWKS JSON из RSA публичного ключа.
func buildJWKSetJSON(pub *rsa.PublicKey, kid string) json.RawMessage {
	nB64 := base64.RawURLEncoding.EncodeToString(pub.N.Bytes())
	eB64 := base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes())

	jwks := map[string]any{
		"keys": []map[string]any{
			{
				"kty": "RSA",
				"kid": kid,
				"use": "sig",
				"alg": "RS256",
				"n":   nB64,
				"e":   eB64,
			},
		},
	}

	data, _ := json.Marshal(jwks)
	return data
}

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTestVerifier создаёт TokenVerifier с JWKS из ключа key.
func newTestVerifier(t *testing.T, key *rsa.PrivateKey) *TokenVerifier {
	t.Helper()
	kf, err := keyfunc.NewJWKSetJSON(buildJWKSetJSON(&key.PublicKey, testKeyID))
	if err != nil {
		t.Fatalf("не удалось создать keyfunc: %v", err)
	}
	return NewTokenVerifierWithKeyfunc(kf, testIssuer, 5*time.Second, testLogger())
}

// signToken подписывает claims ключом key (RS256).
func signToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatal(err)
	}
	return tokenStr
}

// generateUserToken генерирует JWT пользователя.
func generateUserToken(t *testing.T, key *rsa.PrivateKey, sub string, expired bool) string {
	t.Helper()

	exp := time.Now().Add(time.Hour)
	if expired {
		exp = time.Now().Add(-time.Hour)
	}

	return signToken(t, key, jwt.MapClaims{
		"sub": sub,
		"iss": testIssuer,
		"exp": jwt.NewNumericDate(exp),
		"nbf": jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		"iat": jwt.NewNumericDate(time.Now()),
	})
}

func requestWithAuth(header string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/reset-password", http.NoBody)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	return req
}

func TestTokenVerifier_Valid(t *testing.T) {
	key := generateTestKey(t)
	v := newTestVerifier(t, key)

	sub, err := v.Verify(requestWithAuth("Bearer " + generateUserToken(t, key, "kc-admin-1", false)))
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if sub != "kc-admin-1" {
		t.Errorf("ожидался sub=kc-admin-1, получен %s", sub)
	}
}

func TestTokenVerifier_LowercaseBearer(t *testing.T) {
	key := generateTestKey(t)
	v := newTestVerifier(t, key)

	if _, err := v.Verify(requestWithAuth("bearer " + generateUserToken(t, key, "kc-1", false))); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
}

func TestTokenVerifier_MissingToken(t *testing.T) {
	v := newTestVerifier(t, generateTestKey(t))

	_, err := v.Verify(requestWithAuth(""))
	if !errors.Is(err, ErrNoBearer) {
		t.Errorf("ожидалась ErrNoBearer, получена %v", err)
	}
}

func TestTokenVerifier_Rejects(t *testing.T) {
	key := generateTestKey(t)
	otherKey := generateTestKey(t)
	v := newTestVerifier(t, key)

	noSub := signToken(t, key, jwt.MapClaims{
		"iss": testIssuer,
		"exp": jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	noExp := signToken(t, key, jwt.MapClaims{
		"sub": "kc-1",
		"iss": testIssuer,
	})
	wrongIssuer := signToken(t, key, jwt.MapClaims{
		"sub": "kc-1",
		"iss": "https://evil.test/realms/fleetops",
		"exp": jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	hs := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "kc-1",
		"iss": testIssuer,
		"exp": jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	hs.Header["kid"] = testKeyID
	hsToken, err := hs.SignedString([]byte("shared-secret"))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		header string
	}{
		{"неверный формат", "Basic dXNlcjpwYXNz"},
		{"пустой токен", "Bearer "},
		{"мусор", "Bearer not.a.jwt"},
		{"просроченный", "Bearer " + generateUserToken(t, key, "kc-1", true)},
		{"чужой ключ", "Bearer " + generateUserToken(t, otherKey, "kc-1", false)},
		{"без sub", "Bearer " + noSub},
		{"без exp", "Bearer " + noExp},
		{"чужой issuer", "Bearer " + wrongIssuer},
		{"HS256", "Bearer " + hsToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(requestWithAuth(tt.header))
			if !errors.Is(err, ErrInvalidToken) {
				t.Errorf("ожидалась ErrInvalidToken, получена %v", err)
			}
		})
	}
}

func TestHTTPClientWithCA(t *testing.T) {
	client, err := HTTPClientWithCA("", 3*time.Second)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if client.Timeout != 3*time.Second {
		t.Errorf("ожидался таймаут 3s, получен %s", client.Timeout)
	}

	if _, err := HTTPClientWithCA(filepath.Join(t.TempDir(), "missing.pem"), time.Second); err == nil {
		t.Error("ожидалась ошибка для отсутствующего файла")
	}

	garbage := filepath.Join(t.TempDir(), "garbage.pem")
	if err := os.WriteFile(garbage, []byte("not a certificate"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := HTTPClientWithCA(garbage, time.Second); err == nil {
		t.Error("ожидалась ошибка для файла без PEM")
	}
}
