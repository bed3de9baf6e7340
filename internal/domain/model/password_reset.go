package model

// ResetState — состояние операции сброса пароля.
// Переходы: Requested → Prepared → Executed или Requested → Rejected.
type ResetState string

const (
	ResetRequested ResetState = "requested"
	ResetPrepared  ResetState = "prepared"
	ResetExecuted  ResetState = "executed"
	ResetRejected  ResetState = "rejected"
)

// resetTransitions — допустимые переходы состояний сброса.
var resetTransitions = map[ResetState][]ResetState{
	ResetRequested: {ResetPrepared, ResetRejected},
	ResetPrepared:  {ResetExecuted},
}

// CanTransition проверяет допустимость перехода from → to.
func CanTransition(from, to ResetState) bool {
	for _, s := range resetTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Причины отказа на шаге prepare.
const (
	ReasonTargetNotFound        = "target_not_found"
	ReasonActorNotFound         = "actor_not_found"
	ReasonActorRoleNotAllowed   = "actor_role_not_allowed"
	ReasonCannotResetHigherRole = "cannot_reset_higher_role"
	ReasonOrganizationMismatch  = "organization_mismatch"
	ReasonPasswordTooShort      = "password_too_short"
)
