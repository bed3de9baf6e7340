// Пакет model — доменные модели Identity Admin.
package model

import "time"

// Profile — профиль пользователя в основном хранилище (таблица profiles).
// «Якорная» запись: создаётся независимо от identity в Keycloak.
type Profile struct {
	// ID — UUID профиля
	ID string
	// Email — адрес электронной почты (уникален без учёта регистра)
	Email string
	// FirstName — имя
	FirstName string
	// LastName — фамилия
	LastName string
	// Role — роль в приложении (admin, council, driver, ...)
	Role string
	// OrganizationID — организация (nil для системных профилей)
	OrganizationID *string
	// MustChangePassword — при следующем входе требуется смена пароля
	MustChangePassword bool
	// IdentityID — ID связанного пользователя Keycloak (nil, если связь не записана)
	IdentityID *string
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}

// LinkedIdentityID возвращает ID identity, с которым сверен профиль.
// Если связь не записана явно, ожидается совпадение ID профиля и identity.
func (p *Profile) LinkedIdentityID() string {
	if p.IdentityID != nil && *p.IdentityID != "" {
		return *p.IdentityID
	}
	return p.ID
}

// OrgID возвращает организацию профиля или пустую строку.
func (p *Profile) OrgID() string {
	if p.OrganizationID == nil {
		return ""
	}
	return *p.OrganizationID
}
