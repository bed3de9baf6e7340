package model

import "time"

// Действия административных операций.
const (
	ActionProvisionIdentity = "provision_identity"
	ActionResetPassword     = "reset_password"
	ActionCreateUser        = "create_user"
	ActionListOperations    = "list_operations"
)

// Итог операции в журнале.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeRejected = "rejected"
)

// OperationLogEntry — запись журнала административных операций.
// Только добавляется: не изменяется и не удаляется.
type OperationLogEntry struct {
	ID string
	// ActorID — subject вызывающего (пусто при авторизации по секрету)
	ActorID string
	// ActorMethod — способ авторизации (secret, token)
	ActorMethod string
	Action      string
	// TargetID — ID затронутого профиля или identity
	TargetID string
	Metadata map[string]any
	Outcome  string
	// Error — текст ошибки для неуспешных операций
	Error     string
	CreatedAt time.Time
}

// OperationLogFilter — фильтр выборки журнала.
type OperationLogFilter struct {
	Action   *string
	TargetID *string
}
