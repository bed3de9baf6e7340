// provisioner.go — идемпотентное создание identity для профиля.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bigkaa/fleetops/identity-admin/internal/domain/model"
	"github.com/bigkaa/fleetops/identity-admin/internal/keycloak"
	"github.com/bigkaa/fleetops/identity-admin/internal/repository"
)

// ProvisionInput — параметры обеспечения identity.
type ProvisionInput struct {
	Email string
	// ProfileID — профиль, который нужно связать с identity (может быть пустым)
	ProfileID string
	// Password — начальный пароль; пусто — будет сгенерирован временный
	Password  string
	FirstName string
	LastName  string
}

// ProvisionResult — итог обеспечения identity.
type ProvisionResult struct {
	IdentityID string
	// Created — identity создан этим вызовом
	Created bool
	// TemporaryPassword — сгенерированный пароль; пусто, если пароль задан вызывающим
	// или identity уже существовал
	TemporaryPassword string
}

// Provisioner гарантирует наличие ровно одного identity для email.
// Конфликт при создании (409) поглощается одним повторным поиском.
// Provisioner никогда не удаляет данные.
type Provisioner struct {
	directory      IdentityDirectory
	provider       IdentityProvider
	profiles       repository.ProfileRepository
	timeout        time.Duration
	passwordLength int
	logger         *slog.Logger
}

// NewProvisioner создаёт Provisioner.
func NewProvisioner(
	directory IdentityDirectory,
	provider IdentityProvider,
	profiles repository.ProfileRepository,
	timeout time.Duration,
	passwordLength int,
	logger *slog.Logger,
) *Provisioner {
	return &Provisioner{
		directory:      directory,
		provider:       provider,
		profiles:       profiles,
		timeout:        timeout,
		passwordLength: passwordLength,
		logger:         logger.With(slog.String("component", "provisioner")),
	}
}

// ResolveTarget находит профиль запроса на обеспечение identity: по
// profileID, а если он не задан, то по email.
func (p *Provisioner) ResolveTarget(ctx context.Context, email, profileID string) (*model.Profile, error) {
	email = strings.TrimSpace(email)
	if email == "" && profileID == "" {
		return nil, fmt.Errorf("%w: укажите email или profileId", ErrValidation)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var (
		profile *model.Profile
		err     error
	)
	if profileID != "" {
		profile, err = p.profiles.GetByID(ctx, profileID)
	} else {
		profile, err = p.profiles.GetByEmail(ctx, email)
	}
	switch {
	case err == nil:
		return profile, nil
	case errors.Is(err, repository.ErrNotFound):
		if profileID != "" {
			return nil, fmt.Errorf("%w: профиль %s", ErrNotFound, profileID)
		}
		return nil, fmt.Errorf("%w: профиль с email %s", ErrNotFound, email)
	default:
		return nil, upstream("чтение профиля", err)
	}
}

// EnsureIdentity находит или создаёт identity для email и помечает профиль
// флагом must_change_password. Повторный вызов возвращает Created=false.
func (p *Provisioner) EnsureIdentity(ctx context.Context, in ProvisionInput) (*ProvisionResult, error) {
	email := normalizeEmail(in.Email)
	if email == "" {
		return nil, fmt.Errorf("%w: email обязателен", ErrValidation)
	}
	if in.Password != "" {
		if err := ValidatePassword(in.Password); err != nil {
			return nil, err
		}
	}

	identity, err := p.directory.FindByEmail(ctx, email)
	switch {
	case err == nil:
		p.logger.Info("Identity уже существует",
			slog.String("identity_id", identity.ID),
			slog.String("profile_id", in.ProfileID),
		)
		if err := p.markProfile(ctx, in.ProfileID, identity.ID); err != nil {
			return nil, err
		}
		return &ProvisionResult{IdentityID: identity.ID}, nil
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	password := in.Password
	generated := false
	if password == "" {
		if password, err = GeneratePassword(p.passwordLength); err != nil {
			return nil, err
		}
		generated = true
	}

	// Запрос на создание не прерывается отменой клиента
	ctx = context.WithoutCancel(ctx)

	identityID, err := p.create(ctx, email, password, in)
	if err != nil {
		if !errors.Is(err, keycloak.ErrConflict) {
			return nil, upstream("создание identity", err)
		}

		// Identity создан параллельным вызовом — один повторный поиск
		p.logger.Info("Конфликт при создании identity, повторный поиск",
			slog.String("profile_id", in.ProfileID),
		)
		identity, lookupErr := p.directory.FindByEmail(ctx, email)
		if lookupErr != nil {
			if errors.Is(lookupErr, ErrNotFound) {
				return nil, upstream("поиск identity после конфликта",
					fmt.Errorf("Keycloak сообщил о дубликате, но identity не найден: %w", err))
			}
			return nil, lookupErr
		}
		if err := p.markProfile(ctx, in.ProfileID, identity.ID); err != nil {
			return nil, err
		}
		return &ProvisionResult{IdentityID: identity.ID}, nil
	}

	p.logger.Info("Identity создан",
		slog.String("identity_id", identityID),
		slog.String("profile_id", in.ProfileID),
		slog.Bool("generated_password", generated),
	)

	if err := p.markProfile(ctx, in.ProfileID, identityID); err != nil {
		return nil, err
	}

	result := &ProvisionResult{IdentityID: identityID, Created: true}
	if generated {
		result.TemporaryPassword = password
	}
	return result, nil
}

func (p *Provisioner) create(ctx context.Context, email, password string, in ProvisionInput) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	return p.provider.CreateUser(ctx, keycloak.NewUser{
		Email:         email,
		FirstName:     in.FirstName,
		LastName:      in.LastName,
		Password:      password,
		EmailVerified: true,
	})
}

// markProfile связывает профиль с identity и выставляет must_change_password.
func (p *Provisioner) markProfile(ctx context.Context, profileID, identityID string) error {
	if profileID == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.profiles.LinkIdentity(ctx, profileID, identityID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: профиль %s", ErrNotFound, profileID)
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: identity %s уже связан с другим профилем", ErrConflict, identityID)
	default:
		return upstream("обновление профиля", err)
	}
}
