// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bigkaa/fleetops/identity-admin/internal/keycloak"
)

var (
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrUnauthorized — учётные данные вызывающего отсутствуют или неверны.
	ErrUnauthorized = errors.New("требуется авторизация")
	// ErrForbidden — вызывающий аутентифицирован, но не имеет права на операцию.
	ErrForbidden = errors.New("недостаточно прав")
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrConflict — конфликт (дублирующийся ресурс).
	ErrConflict = errors.New("конфликт — ресурс уже существует")
	// ErrUpstream — ошибка или таймаут внешней зависимости.
	ErrUpstream = errors.New("ошибка внешней зависимости")
	// ErrPrepareRejected — проверка перед сбросом пароля не пройдена.
	ErrPrepareRejected = errors.New("сброс пароля отклонён")
)

// UpstreamError — ошибка внешней зависимости с диагностикой провайдера.
// errors.Is(err, ErrUpstream) == true.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() []error {
	return []error{ErrUpstream, e.Err}
}

// Diagnostic возвращает сообщение провайдера (тело ответа Keycloak) или текст ошибки.
func (e *UpstreamError) Diagnostic() string {
	var apiErr *keycloak.APIError
	if errors.As(e.Err, &apiErr) && apiErr.Body != "" {
		return apiErr.Body
	}
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return "превышено время ожидания ответа"
	}
	return e.Err.Error()
}

// upstream оборачивает ошибку внешнего вызова.
func upstream(op string, err error) error {
	return &UpstreamError{Op: op, Err: err}
}

// PrepareRejectedError — отказ шага prepare с машиночитаемой причиной.
// errors.Is(err, ErrPrepareRejected) == true.
type PrepareRejectedError struct {
	Reason string
}

func (e *PrepareRejectedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrPrepareRejected.Error(), e.Reason)
}

func (e *PrepareRejectedError) Unwrap() error {
	return ErrPrepareRejected
}
