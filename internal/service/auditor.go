// auditor.go — журнал административных операций.
// Запись журнала не влияет на результат операции: сбои только логируются.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/fleetops/identity-admin/internal/domain/model"
	"github.com/bigkaa/fleetops/identity-admin/internal/repository"
)

// AuditSink — приёмник записей журнала.
type AuditSink interface {
	Name() string
	Append(ctx context.Context, e *model.OperationLogEntry) error
}

// Auditor записывает операции во все настроенные приёмники.
type Auditor struct {
	sinks   []AuditSink
	timeout time.Duration
	logger  *slog.Logger
}

// NewAuditor создаёт Auditor.
func NewAuditor(timeout time.Duration, logger *slog.Logger, sinks ...AuditSink) *Auditor {
	return &Auditor{
		sinks:   sinks,
		timeout: timeout,
		logger:  logger.With(slog.String("component", "auditor")),
	}
}

// Record записывает операцию. Не возвращает ошибок: отмена запроса
// не прерывает запись, сбой приёмника логируется и учитывается в метриках.
func (a *Auditor) Record(ctx context.Context, e *model.OperationLogEntry) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	adminOperationsTotal.WithLabelValues(e.Action, e.Outcome).Inc()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
	defer cancel()

	for _, sink := range a.sinks {
		if err := sink.Append(ctx, e); err != nil {
			auditWriteFailures.WithLabelValues(sink.Name()).Inc()
			a.logger.Error("Ошибка записи журнала операций",
				slog.String("sink", sink.Name()),
				slog.String("action", e.Action),
				slog.String("target_id", e.TargetID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// OutcomeOf определяет итог операции по ошибке.
func OutcomeOf(err error) string {
	switch {
	case err == nil:
		return model.OutcomeSuccess
	case errors.Is(err, ErrPrepareRejected), errors.Is(err, ErrUnauthorized), errors.Is(err, ErrForbidden):
		return model.OutcomeRejected
	default:
		return model.OutcomeFailure
	}
}

// operationLogSink — приёмник журнала в PostgreSQL.
type operationLogSink struct {
	repo repository.OperationLogRepository
}

// NewOperationLogSink оборачивает репозиторий журнала в AuditSink.
func NewOperationLogSink(repo repository.OperationLogRepository) AuditSink {
	return &operationLogSink{repo: repo}
}

func (s *operationLogSink) Name() string { return "postgres" }

func (s *operationLogSink) Append(ctx context.Context, e *model.OperationLogEntry) error {
	return s.repo.Append(ctx, e)
}

// OperationLogService — чтение журнала операций.
type OperationLogService struct {
	repo repository.OperationLogRepository
}

// NewOperationLogService создаёт сервис чтения журнала.
func NewOperationLogService(repo repository.OperationLogRepository) *OperationLogService {
	return &OperationLogService{repo: repo}
}

// List возвращает страницу журнала и общее число записей по фильтру.
func (s *OperationLogService) List(ctx context.Context, filter model.OperationLogFilter, limit, offset int) ([]*model.OperationLogEntry, int, error) {
	entries, err := s.repo.List(ctx, filter, limit, offset)
	if err != nil {
		return nil, 0, upstream("чтение журнала операций", err)
	}
	total, err := s.repo.Count(ctx, filter)
	if err != nil {
		return nil, 0, upstream("подсчёт журнала операций", err)
	}
	return entries, total, nil
}
