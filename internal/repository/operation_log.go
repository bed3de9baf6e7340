package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/fleetops/identity-admin/internal/domain/model"
)

// OperationLogRepository — журнал административных операций.
// Записи только добавляются: обновления и удаления не предусмотрены.
type OperationLogRepository interface {
	Append(ctx context.Context, e *model.OperationLogEntry) error
	List(ctx context.Context, filter model.OperationLogFilter, limit, offset int) ([]*model.OperationLogEntry, error)
	Count(ctx context.Context, filter model.OperationLogFilter) (int, error)
}

type operationLogRepo struct {
	db DBTX
}

// NewOperationLogRepository создаёт репозиторий журнала операций.
func NewOperationLogRepository(db DBTX) OperationLogRepository {
	return &operationLogRepo{db: db}
}

// nullIfEmpty превращает пустую строку в NULL.
func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *operationLogRepo) Append(ctx context.Context, e *model.OperationLogEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	metadata := e.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	query := `
		INSERT INTO admin_operation_log (id, actor_id, actor_method, action, target_id, metadata, outcome, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, NOW()))
		RETURNING created_at`

	var createdAt *time.Time
	if !e.CreatedAt.IsZero() {
		createdAt = &e.CreatedAt
	}

	err := r.db.QueryRow(ctx, query,
		e.ID, nullIfEmpty(e.ActorID), e.ActorMethod, e.Action, nullIfEmpty(e.TargetID),
		metadata, e.Outcome, nullIfEmpty(e.Error), createdAt,
	).Scan(&e.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка записи в журнал операций: %w", err)
	}
	return nil
}

// buildWhere строит условие выборки по фильтру.
func buildWhere(filter model.OperationLogFilter) (string, []any) {
	var conditions []string
	var args []any
	argNum := 1

	if filter.Action != nil {
		conditions = append(conditions, fmt.Sprintf("action = $%d", argNum))
		args = append(args, *filter.Action)
		argNum++
	}
	if filter.TargetID != nil {
		conditions = append(conditions, fmt.Sprintf("target_id = $%d", argNum))
		args = append(args, *filter.TargetID)
	}

	if len(conditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

func (r *operationLogRepo) List(ctx context.Context, filter model.OperationLogFilter, limit, offset int) ([]*model.OperationLogEntry, error) {
	where, args := buildWhere(filter)
	argNum := len(args) + 1

	query := fmt.Sprintf(`
		SELECT id, actor_id, actor_method, action, target_id, metadata, outcome, error, created_at
		FROM admin_operation_log
		%s
		ORDER BY created_at DESC, id
		LIMIT $%d OFFSET $%d`, where, argNum, argNum+1)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения журнала операций: %w", err)
	}
	defer rows.Close()

	var result []*model.OperationLogEntry
	for rows.Next() {
		var (
			e                       model.OperationLogEntry
			actorID, targetID, errS *string
		)
		if err := rows.Scan(
			&e.ID, &actorID, &e.ActorMethod, &e.Action, &targetID,
			&e.Metadata, &e.Outcome, &errS, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи журнала: %w", err)
		}
		if actorID != nil {
			e.ActorID = *actorID
		}
		if targetID != nil {
			e.TargetID = *targetID
		}
		if errS != nil {
			e.Error = *errS
		}
		result = append(result, &e)
	}
	return result, rows.Err()
}

func (r *operationLogRepo) Count(ctx context.Context, filter model.OperationLogFilter) (int, error) {
	where, args := buildWhere(filter)

	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM admin_operation_log `+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта записей журнала: %w", err)
	}
	return count, nil
}
