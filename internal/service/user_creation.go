// user_creation.go — создание пользователя: профиль + identity.
// При неустранимом сбое создания identity вставленный профиль удаляется.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/fleetops/identity-admin/internal/domain/model"
	"github.com/bigkaa/fleetops/identity-admin/internal/domain/rbac"
	"github.com/bigkaa/fleetops/identity-admin/internal/repository"
)

// CreateUserInput — параметры создания пользователя.
type CreateUserInput struct {
	Email          string
	Role           string
	FirstName      string
	LastName       string
	OrganizationID *string
	// Password — пусто, если пароль нужно сгенерировать
	Password string
}

// CreateUserResult — итог создания пользователя.
type CreateUserResult struct {
	ProfileID         string
	IdentityID        string
	Created           bool
	TemporaryPassword string
}

// UserCreationService создаёт профиль и identity как одну операцию.
type UserCreationService struct {
	profiles    repository.ProfileRepository
	provisioner *Provisioner
	timeout     time.Duration
	logger      *slog.Logger
}

// NewUserCreationService создаёт сервис создания пользователей.
func NewUserCreationService(
	profiles repository.ProfileRepository,
	provisioner *Provisioner,
	timeout time.Duration,
	logger *slog.Logger,
) *UserCreationService {
	return &UserCreationService{
		profiles:    profiles,
		provisioner: provisioner,
		timeout:     timeout,
		logger:      logger.With(slog.String("component", "user_creation")),
	}
}

// ValidateEmail проверяет синтаксис email (только адрес, без отображаемого имени).
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("%w: некорректный email %q", ErrValidation, email)
	}
	return nil
}

func (in CreateUserInput) validate() error {
	if err := ValidateEmail(in.Email); err != nil {
		return err
	}
	if !rbac.IsValidRole(in.Role) {
		return fmt.Errorf("%w: неизвестная роль %q", ErrValidation, in.Role)
	}
	if in.OrganizationID != nil {
		if _, err := uuid.Parse(*in.OrganizationID); err != nil {
			return fmt.Errorf("%w: organizationId должен быть UUID", ErrValidation)
		}
	}
	if in.Password != "" {
		return ValidatePassword(in.Password)
	}
	return nil
}

// CreateUser вставляет профиль, затем обеспечивает identity.
// Если identity обеспечить не удалось, профиль удаляется: профиль без
// identity после возврата ошибки не остаётся.
func (s *UserCreationService) CreateUser(ctx context.Context, in CreateUserInput) (*CreateUserResult, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	profile := &model.Profile{
		ID:                 uuid.New().String(),
		Email:              strings.TrimSpace(in.Email),
		FirstName:          in.FirstName,
		LastName:           in.LastName,
		Role:               in.Role,
		OrganizationID:     in.OrganizationID,
		MustChangePassword: true,
	}

	if err := s.insertProfile(ctx, profile); err != nil {
		return nil, err
	}

	res, err := s.provisioner.EnsureIdentity(ctx, ProvisionInput{
		Email:     profile.Email,
		ProfileID: profile.ID,
		Password:  in.Password,
		FirstName: in.FirstName,
		LastName:  in.LastName,
	})
	if err != nil {
		return nil, s.compensate(ctx, profile.ID, err)
	}

	s.logger.Info("Пользователь создан",
		slog.String("profile_id", profile.ID),
		slog.String("identity_id", res.IdentityID),
		slog.Bool("identity_created", res.Created),
	)

	return &CreateUserResult{
		ProfileID:         profile.ID,
		IdentityID:        res.IdentityID,
		Created:           res.Created,
		TemporaryPassword: res.TemporaryPassword,
	}, nil
}

func (s *UserCreationService) insertProfile(ctx context.Context, profile *model.Profile) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := s.profiles.Create(ctx, profile)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: профиль с email %s уже существует", ErrConflict, profile.Email)
	default:
		return upstream("создание профиля", err)
	}
}

// compensate удаляет вставленный профиль. Выполняется независимо от отмены запроса.
func (s *UserCreationService) compensate(ctx context.Context, profileID string, cause error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	s.logger.Warn("Identity не создан, удаляем профиль",
		slog.String("profile_id", profileID),
		slog.String("error", cause.Error()),
	)

	if err := s.profiles.Delete(ctx, profileID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.logger.Error("Не удалось удалить профиль после сбоя создания identity",
			slog.String("profile_id", profileID),
			slog.String("error", err.Error()),
		)
		return errors.Join(cause, fmt.Errorf("компенсация: удаление профиля %s: %w", profileID, err))
	}
	return cause
}
