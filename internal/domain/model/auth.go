package model

// AuthMethod — способ авторизации административного запроса.
type AuthMethod string

const (
	// AuthMethodSecret — общий административный секрет.
	AuthMethodSecret AuthMethod = "secret"
	// AuthMethodToken — bearer-токен вызывающего с проверкой роли.
	AuthMethodToken AuthMethod = "token"
)

// AuthorizationContext — результат авторизации запроса.
// Живёт в рамках одного запроса и никогда не сохраняется.
type AuthorizationContext struct {
	Method              AuthMethod
	ActorID             string
	ActorRole           string
	ActorOrganizationID string
}

// IsSecret сообщает, авторизован ли запрос общим секретом.
func (a AuthorizationContext) IsSecret() bool {
	return a.Method == AuthMethodSecret
}
