package keycloak

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrConflict — Keycloak вернул 409 (пользователь с таким username/email уже есть).
	ErrConflict = errors.New("keycloak: конфликт")
	// ErrNotFound — Keycloak вернул 404.
	ErrNotFound = errors.New("keycloak: не найдено")
)

// APIError — неуспешный ответ Admin REST API.
// Body содержит диагностическое сообщение Keycloak.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: Keycloak API вернул статус %d: %s", e.Op, e.StatusCode, e.Body)
}

// Is сопоставляет статус ответа с ErrConflict и ErrNotFound.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrConflict:
		return e.StatusCode == http.StatusConflict
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}
