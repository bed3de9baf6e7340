// Пакет rbac — роли профилей и правила административного доступа.
// Роли упорядочены по весу: администратор может управлять только
// профилями с ролью не выше собственной.
package rbac

// Роли профиля.
const (
	RoleDriver            = "driver"
	RoleDispatcher        = "dispatcher"
	RoleFleetManager      = "fleet_manager"
	RoleComplianceOfficer = "compliance_officer"
	RoleCouncil           = "council"
	RoleAdmin             = "admin"
	RoleSuperAdmin        = "super_admin"
)

// roleWeight — вес роли для сравнения.
// Чем выше вес, тем больше привилегий.
var roleWeight = map[string]int{
	RoleDriver:            1,
	RoleDispatcher:        2,
	RoleFleetManager:      3,
	RoleComplianceOfficer: 4,
	RoleCouncil:           4,
	RoleAdmin:             5,
	RoleSuperAdmin:        6,
}

// IsValidRole проверяет, является ли строка допустимой ролью.
func IsValidRole(role string) bool {
	_, ok := roleWeight[role]
	return ok
}

// IsSuperAdmin — роль без ограничений по организации.
func IsSuperAdmin(role string) bool {
	return role == RoleSuperAdmin
}

// CanManage проверяет, может ли actorRole управлять профилем с targetRole.
// Неизвестная роль субъекта не управляет ничем.
func CanManage(actorRole, targetRole string) bool {
	wa := roleWeight[actorRole]
	if wa == 0 {
		return false
	}
	return wa >= roleWeight[targetRole]
}

// AllowList — набор ролей, допущенных к административным операциям.
type AllowList map[string]bool

// NewAllowList строит AllowList из списка ролей конфигурации.
func NewAllowList(roles []string) AllowList {
	s := make(AllowList, len(roles))
	for _, r := range roles {
		s[r] = true
	}
	return s
}

// Allows проверяет, входит ли роль в набор.
func (a AllowList) Allows(role string) bool {
	return role != "" && a[role]
}
