// handler.go — основной обработчик административного API.
// Каждая операция: разбор запроса → авторизация (Gate) → сервисный слой →
// запись в журнал операций (всегда, в том числе при отказе).
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/fleetops/identity-admin/internal/api/errors"
	"github.com/bigkaa/fleetops/identity-admin/internal/domain/model"
	"github.com/bigkaa/fleetops/identity-admin/internal/service"
)

// Authorizer — авторизация административных операций (middleware.Gate).
type Authorizer interface {
	Authorize(r *http.Request, action, adminSecret string) (model.AuthorizationContext, error)
}

// IdentityProvisioner — обеспечение identity для профиля (service.Provisioner).
type IdentityProvisioner interface {
	ResolveTarget(ctx context.Context, email, profileID string) (*model.Profile, error)
	EnsureIdentity(ctx context.Context, in service.ProvisionInput) (*service.ProvisionResult, error)
}

// UserCreator — создание профиля и identity (service.UserCreationService).
type UserCreator interface {
	CreateUser(ctx context.Context, in service.CreateUserInput) (*service.CreateUserResult, error)
}

// PasswordResetter — сброс пароля (service.PasswordResetService).
type PasswordResetter interface {
	Reset(ctx context.Context, in service.ResetInput) (*service.ResetResult, error)
}

// OperationLister — чтение журнала операций (service.OperationLogService).
type OperationLister interface {
	List(ctx context.Context, filter model.OperationLogFilter, limit, offset int) ([]*model.OperationLogEntry, int, error)
}

// OperationRecorder — запись журнала операций (service.Auditor).
type OperationRecorder interface {
	Record(ctx context.Context, e *model.OperationLogEntry)
}

// Services — зависимости APIHandler.
type Services struct {
	Gate        Authorizer
	Provisioner IdentityProvisioner
	Users       UserCreator
	Resets      PasswordResetter
	Operations  OperationLister
	Auditor     OperationRecorder
}

// APIHandler — обработчик административного API.
type APIHandler struct {
	health      *HealthHandler
	gate        Authorizer
	provisioner IdentityProvisioner
	users       UserCreator
	resets      PasswordResetter
	operations  OperationLister
	auditor     OperationRecorder
	logger      *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(health *HealthHandler, svc Services, logger *slog.Logger) *APIHandler {
	return &APIHandler{
		health:      health,
		gate:        svc.Gate,
		provisioner: svc.Provisioner,
		users:       svc.Users,
		resets:      svc.Resets,
		operations:  svc.Operations,
		auditor:     svc.Auditor,
		logger:      logger.With(slog.String("component", "api_handler")),
	}
}

// HealthLive — liveness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Журнал операций ---

// auditEntry — заготовка записи журнала для одной операции.
type auditEntry struct {
	action   string
	method   model.AuthMethod
	actorID  string
	targetID string
	metadata map[string]any
}

// newAuditEntry создаёт заготовку. Способ авторизации уточняется после Gate;
// до этого он определяется по наличию секрета в запросе.
func newAuditEntry(action, adminSecret string) *auditEntry {
	method := model.AuthMethodToken
	if adminSecret != "" {
		method = model.AuthMethodSecret
	}
	return &auditEntry{action: action, method: method, metadata: map[string]any{}}
}

func (a *auditEntry) authorized(actx model.AuthorizationContext) {
	a.method = actx.Method
	a.actorID = actx.ActorID
}

// record записывает итог операции в журнал.
func (h *APIHandler) record(ctx context.Context, a *auditEntry, err error) {
	e := &model.OperationLogEntry{
		ActorID:     a.actorID,
		ActorMethod: string(a.method),
		Action:      a.action,
		TargetID:    a.targetID,
		Metadata:    a.metadata,
		Outcome:     service.OutcomeOf(err),
	}
	if err != nil {
		e.Error = err.Error()
	}
	h.auditor.Record(ctx, e)
}

// fail записывает неуспешную операцию в журнал и отвечает клиенту ошибкой.
func (h *APIHandler) fail(w http.ResponseWriter, r *http.Request, a *auditEntry, err error) {
	h.record(r.Context(), a, err)
	apierrors.FromService(w, err)
}

// actionByPath — операции журнала по путям API.
var actionByPath = map[string]string{
	"/api/v1/admin/provision-identity": model.ActionProvisionIdentity,
	"/api/v1/admin/reset-password":     model.ActionResetPassword,
	"/api/v1/admin/users":              model.ActionCreateUser,
	"/api/v1/admin/operations":         model.ActionListOperations,
}

// RecordRejected записывает в журнал запрос, отклонённый проверкой
// контракта до обработчика. Способ авторизации определяется по наличию
// adminSecret в теле.
func (h *APIHandler) RecordRejected(r *http.Request, reason string) {
	action, ok := actionByPath[r.URL.Path]
	if !ok {
		return
	}

	var secret string
	if r.Body != nil && action != model.ActionListOperations {
		var body struct {
			AdminSecret any `json:"adminSecret"`
		}
		if json.NewDecoder(r.Body).Decode(&body) == nil && body.AdminSecret != nil {
			secret = "present"
		}
	}

	h.record(r.Context(), newAuditEntry(action, secret), invalid(reason))
}

// invalid — ошибка валидации запроса до авторизации.
func invalid(msg string) error {
	return fmt.Errorf("%w: %s", service.ErrValidation, msg)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON разбирает тело запроса. Неизвестные поля отклоняются.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// deref возвращает значение строки или пустую строку для nil.
func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// paginationDefaults нормализует параметры пагинации.
// Возвращает корректные limit и offset.
func paginationDefaults(limit *int, offset *int) (int, int) {
	l := 100
	o := 0

	if limit != nil {
		l = *limit
		if l < 1 {
			l = 1
		}
		if l > 500 {
			l = 500
		}
	}

	if offset != nil {
		o = *offset
		if o < 0 {
			o = 0
		}
	}

	return l, o
}
