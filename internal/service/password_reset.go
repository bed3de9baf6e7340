// password_reset.go — двухфазный сброс пароля: prepare (проверки без
// побочных эффектов) и execute (смена пароля в Keycloak).
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bigkaa/fleetops/identity-admin/internal/domain/model"
	"github.com/bigkaa/fleetops/identity-admin/internal/domain/rbac"
	"github.com/bigkaa/fleetops/identity-admin/internal/keycloak"
	"github.com/bigkaa/fleetops/identity-admin/internal/repository"
)

// PrepareInput — параметры проверки сброса пароля.
// Цель задаётся ровно одним из TargetUserID или TargetEmail.
type PrepareInput struct {
	TargetUserID string
	TargetEmail  string
	Actor        model.AuthorizationContext
	NewPassword  string
}

// PrepResult — итог prepare. При OK=false Reason содержит причину отказа.
type PrepResult struct {
	OK     bool
	Reason string
	Target *model.Profile
}

// ExecInput — параметры execute.
type ExecInput struct {
	Target      *model.Profile
	NewPassword string
	// ForceMustChange — значение must_change_password после сброса (по умолчанию true)
	ForceMustChange *bool
}

// ExecResult — итог execute.
type ExecResult struct {
	IdentityID  string
	TargetEmail string
	// TemporaryPassword — только если пароль сгенерирован
	TemporaryPassword  string
	MustChangePassword bool
}

// ResetInput — параметры полного сброса.
type ResetInput struct {
	PrepareInput
	ForceMustChange *bool
}

// ResetResult — итог полного сброса.
type ResetResult struct {
	State  model.ResetState
	Reason string
	Target *model.Profile
	Exec   *ExecResult
}

// PasswordResetService — оркестратор сброса пароля.
type PasswordResetService struct {
	profiles       repository.ProfileRepository
	directory      IdentityDirectory
	provider       IdentityProvider
	allowed        rbac.AllowList
	timeout        time.Duration
	passwordLength int
	logger         *slog.Logger
}

// NewPasswordResetService создаёт оркестратор сброса пароля.
func NewPasswordResetService(
	profiles repository.ProfileRepository,
	directory IdentityDirectory,
	provider IdentityProvider,
	allowed rbac.AllowList,
	timeout time.Duration,
	passwordLength int,
	logger *slog.Logger,
) *PasswordResetService {
	return &PasswordResetService{
		profiles:       profiles,
		directory:      directory,
		provider:       provider,
		allowed:        allowed,
		timeout:        timeout,
		passwordLength: passwordLength,
		logger:         logger.With(slog.String("component", "password_reset")),
	}
}

// Prepare проверяет допустимость сброса. Ничего не изменяет и может
// выполняться повторно.
func (s *PasswordResetService) Prepare(ctx context.Context, in PrepareInput) (*PrepResult, error) {
	if (in.TargetUserID == "") == (in.TargetEmail == "") {
		return nil, fmt.Errorf("%w: укажите ровно одно из targetUserId или targetEmail", ErrValidation)
	}
	if in.NewPassword != "" && ValidatePassword(in.NewPassword) != nil {
		return &PrepResult{Reason: model.ReasonPasswordTooShort}, nil
	}

	q := repository.PrepareResetQuery{
		TargetID:    in.TargetUserID,
		TargetEmail: in.TargetEmail,
	}
	if !in.Actor.IsSecret() {
		q.ActorSubject = in.Actor.ActorID
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	snap, err := s.profiles.PrepareReset(ctx, q)
	if err != nil {
		return nil, upstream("чтение профилей для сброса пароля", err)
	}

	if reason := s.evaluate(snap, in.Actor); reason != "" {
		return &PrepResult{Reason: reason, Target: snap.Target}, nil
	}
	return &PrepResult{OK: true, Target: snap.Target}, nil
}

// evaluate применяет правила допуска в фиксированном порядке.
// Возвращает пустую строку, если сброс разрешён.
func (s *PasswordResetService) evaluate(snap *repository.ResetSnapshot, actor model.AuthorizationContext) string {
	if snap.Target == nil {
		return model.ReasonTargetNotFound
	}
	if actor.IsSecret() {
		return ""
	}

	switch {
	case snap.Actor == nil:
		return model.ReasonActorNotFound
	case !s.allowed.Allows(snap.Actor.Role):
		return model.ReasonActorRoleNotAllowed
	case !rbac.CanManage(snap.Actor.Role, snap.Target.Role):
		return model.ReasonCannotResetHigherRole
	case !rbac.IsSuperAdmin(snap.Actor.Role) && snap.Actor.OrgID() != snap.Target.OrgID():
		return model.ReasonOrganizationMismatch
	}
	return ""
}

// Execute меняет пароль identity цели и выставляет must_change_password.
// Сбой Keycloak не меняет флаг и не повторяется. После отправки запроса
// на смену пароля операция не прерывается отменой клиента.
func (s *PasswordResetService) Execute(ctx context.Context, in ExecInput) (*ExecResult, error) {
	if in.Target == nil {
		return nil, fmt.Errorf("%w: цель сброса не задана", ErrValidation)
	}

	identityID, err := s.resolveIdentity(ctx, in.Target)
	if err != nil {
		return nil, err
	}

	password := in.NewPassword
	generated := false
	if password == "" {
		if password, err = GeneratePassword(s.passwordLength); err != nil {
			return nil, err
		}
		generated = true
	}

	mustChange := true
	if in.ForceMustChange != nil {
		mustChange = *in.ForceMustChange
	}

	ctx = context.WithoutCancel(ctx)

	if err := s.resetCredential(ctx, identityID, password); err != nil {
		s.logger.Error("Ошибка смены пароля в Keycloak",
			slog.String("profile_id", in.Target.ID),
			slog.String("identity_id", identityID),
			slog.String("error", err.Error()),
		)
		return nil, upstream("смена пароля", err)
	}

	if err := s.setMustChange(ctx, in.Target.ID, mustChange); err != nil {
		s.logger.Error("Пароль изменён, но флаг must_change_password не обновлён",
			slog.String("profile_id", in.Target.ID),
			slog.String("error", err.Error()),
		)
		return nil, upstream("обновление must_change_password", err)
	}

	s.logger.Info("Пароль сброшен",
		slog.String("profile_id", in.Target.ID),
		slog.String("identity_id", identityID),
		slog.Bool("must_change_password", mustChange),
		slog.Bool("generated_password", generated),
	)

	result := &ExecResult{
		IdentityID:         identityID,
		TargetEmail:        in.Target.Email,
		MustChangePassword: mustChange,
	}
	if generated {
		result.TemporaryPassword = password
	}
	return result, nil
}

// Reset выполняет prepare и, при успехе, execute.
// Отказ prepare возвращается как *PrepareRejectedError.
func (s *PasswordResetService) Reset(ctx context.Context, in ResetInput) (*ResetResult, error) {
	result := &ResetResult{State: model.ResetRequested}

	prep, err := s.Prepare(ctx, in.PrepareInput)
	if err != nil {
		return result, err
	}
	result.Target = prep.Target

	if !prep.OK {
		if err := result.advance(model.ResetRejected); err != nil {
			return result, err
		}
		result.Reason = prep.Reason
		s.logger.Info("Сброс пароля отклонён",
			slog.String("reason", prep.Reason),
			slog.String("actor_id", in.Actor.ActorID),
		)
		return result, &PrepareRejectedError{Reason: prep.Reason}
	}
	if err := result.advance(model.ResetPrepared); err != nil {
		return result, err
	}

	exec, err := s.Execute(ctx, ExecInput{
		Target:          prep.Target,
		NewPassword:     in.NewPassword,
		ForceMustChange: in.ForceMustChange,
	})
	if err != nil {
		return result, err
	}
	result.Exec = exec

	if err := result.advance(model.ResetExecuted); err != nil {
		return result, err
	}
	return result, nil
}

func (r *ResetResult) advance(to model.ResetState) error {
	if !model.CanTransition(r.State, to) {
		return fmt.Errorf("недопустимый переход состояния сброса %s → %s", r.State, to)
	}
	r.State = to
	return nil
}

// resolveIdentity находит identity цели: по связанному ID, затем по email.
func (s *PasswordResetService) resolveIdentity(ctx context.Context, target *model.Profile) (string, error) {
	linked := target.LinkedIdentityID()

	gctx, cancel := context.WithTimeout(ctx, s.timeout)
	user, err := s.provider.GetUser(gctx, linked)
	cancel()

	switch {
	case err == nil && normalizeEmail(user.Email) == normalizeEmail(target.Email):
		return user.ID, nil
	case err == nil:
		s.logger.Warn("Email identity не совпадает с профилем, поиск по email",
			slog.String("profile_id", target.ID),
			slog.String("identity_id", linked),
		)
	case !errors.Is(err, keycloak.ErrNotFound):
		return "", upstream("получение identity", err)
	}

	identity, err := s.directory.FindByEmail(ctx, target.Email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", fmt.Errorf("%w: identity для %s не найден", ErrNotFound, target.Email)
		}
		return "", err
	}
	return identity.ID, nil
}

func (s *PasswordResetService) resetCredential(ctx context.Context, identityID, password string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.provider.ResetPassword(ctx, identityID, password, false)
}

func (s *PasswordResetService) setMustChange(ctx context.Context, profileID string, value bool) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.profiles.SetMustChangePassword(ctx, profileID, value)
}
