// Пакет errors — ответы с ошибками в едином формате Identity Admin.
// Формат: {"error": "...", "code": "...", "details": "...", "reason": "..."}.
// Все HTTP-ответы с ошибками должны использовать WriteError или FromService.
package errors

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bigkaa/fleetops/identity-admin/internal/service"
)

// Коды ошибок, определённые в OpenAPI контракте.
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeForbidden       = "FORBIDDEN"
	CodeNotFound        = "NOT_FOUND"
	CodeConflict        = "CONFLICT"
	CodePrepareRejected = "PREPARE_REJECTED"
	CodeUpstreamFailure = "UPSTREAM_FAILURE"
	CodeInternalError   = "INTERNAL_ERROR"
)

// Body — тело ответа ошибки.
type Body struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	// Details — диагностика внешней зависимости (тело ответа Keycloak)
	Details string `json:"details,omitempty"`
	// Reason — причина отказа prepare при сбросе пароля
	Reason string `json:"reason,omitempty"`
}

// WriteError записывает ответ ошибки.
func WriteError(w http.ResponseWriter, statusCode int, body Body) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, Body{Error: message, Code: CodeValidationError})
}

// Unauthorized — 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, Body{Error: message, Code: CodeUnauthorized})
}

// Forbidden — 403 недостаточно прав.
func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, Body{Error: message, Code: CodeForbidden})
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, Body{Error: message, Code: CodeNotFound})
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, Body{Error: message, Code: CodeInternalError})
}

// Classify сопоставляет ошибку сервисного слоя со статусом и телом ответа.
// Неизвестные ошибки отдаются как INTERNAL_ERROR без текста исходной ошибки.
func Classify(err error) (int, Body) {
	var (
		rejected *service.PrepareRejectedError
		upErr    *service.UpstreamError
	)

	switch {
	case errors.As(err, &rejected):
		return http.StatusUnprocessableEntity, Body{
			Error:  "Сброс пароля отклонён",
			Code:   CodePrepareRejected,
			Reason: rejected.Reason,
		}
	case errors.As(err, &upErr):
		return http.StatusInternalServerError, Body{
			Error:   "Ошибка внешней зависимости: " + upErr.Op,
			Code:    CodeUpstreamFailure,
			Details: upErr.Diagnostic(),
		}
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, Body{Error: err.Error(), Code: CodeValidationError}
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized, Body{Error: err.Error(), Code: CodeUnauthorized}
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, Body{Error: err.Error(), Code: CodeForbidden}
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, Body{Error: err.Error(), Code: CodeNotFound}
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict, Body{Error: err.Error(), Code: CodeConflict}
	default:
		return http.StatusInternalServerError, Body{Error: "Внутренняя ошибка сервера", Code: CodeInternalError}
	}
}

// FromService записывает ответ для ошибки сервисного слоя.
func FromService(w http.ResponseWriter, err error) {
	status, body := Classify(err)
	WriteError(w, status, body)
}
