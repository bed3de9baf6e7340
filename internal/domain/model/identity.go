package model

import "time"

// Identity — учётная запись во внешнем identity provider (Keycloak).
// Пароль не читается: он только передаётся при создании и сбросе.
type Identity struct {
	ID            string
	Username      string
	Email         string
	EmailVerified bool
	Enabled       bool
	CreatedAt     time.Time
}
