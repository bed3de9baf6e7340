// identity_directory.go — поиск identity в Keycloak по email.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bigkaa/fleetops/identity-admin/internal/config"
	"github.com/bigkaa/fleetops/identity-admin/internal/domain/model"
	"github.com/bigkaa/fleetops/identity-admin/internal/keycloak"
)

// IdentityProvider — операции Keycloak Admin API, используемые сервисами.
// Реализуется *keycloak.Client.
type IdentityProvider interface {
	ListUsers(ctx context.Context, first, max int) ([]keycloak.KeycloakUser, error)
	SearchUsersByEmail(ctx context.Context, email string) ([]keycloak.KeycloakUser, error)
	GetUser(ctx context.Context, id string) (*keycloak.KeycloakUser, error)
	CreateUser(ctx context.Context, u keycloak.NewUser) (string, error)
	ResetPassword(ctx context.Context, id, password string, temporary bool) error
}

// IdentityDirectory — поиск identity по email.
// Возвращает ErrNotFound, если identity не найден, и *UpstreamError при сбое провайдера.
type IdentityDirectory interface {
	FindByEmail(ctx context.Context, email string) (*model.Identity, error)
}

// DirectoryConfig — параметры поиска identity.
type DirectoryConfig struct {
	Strategy string
	PageSize int
	MaxPages int
	// Timeout ограничивает каждый запрос к Keycloak
	Timeout time.Duration
}

// NewIdentityDirectory выбирает реализацию поиска по стратегии.
func NewIdentityDirectory(provider IdentityProvider, cfg DirectoryConfig, logger *slog.Logger) IdentityDirectory {
	if cfg.Strategy == config.LookupStrategySearch {
		return NewSearchDirectory(provider, cfg.Timeout, logger)
	}
	return NewScanDirectory(provider, cfg.PageSize, cfg.MaxPages, cfg.Timeout, logger)
}

// normalizeEmail приводит email к виду для сравнения.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func toIdentity(u *keycloak.KeycloakUser) *model.Identity {
	return &model.Identity{
		ID:            u.ID,
		Username:      u.Username,
		Email:         u.Email,
		EmailVerified: u.EmailVerified,
		Enabled:       u.Enabled,
		CreatedAt:     u.CreatedAtTime(),
	}
}

// ScanDirectory постранично перебирает пользователей realm и сравнивает email.
// Просмотр ограничен maxPages страницами; исчерпание лимита даёт ErrNotFound.
type ScanDirectory struct {
	provider IdentityProvider
	pageSize int
	maxPages int
	timeout  time.Duration
	logger   *slog.Logger
}

// NewScanDirectory создаёт поиск перебором.
func NewScanDirectory(provider IdentityProvider, pageSize, maxPages int, timeout time.Duration, logger *slog.Logger) *ScanDirectory {
	return &ScanDirectory{
		provider: provider,
		pageSize: pageSize,
		maxPages: maxPages,
		timeout:  timeout,
		logger:   logger.With(slog.String("component", "identity_directory"), slog.String("strategy", "scan")),
	}
}

// FindByEmail возвращает первый identity с совпадающим email.
func (d *ScanDirectory) FindByEmail(ctx context.Context, email string) (*model.Identity, error) {
	want := normalizeEmail(email)
	if want == "" {
		return nil, fmt.Errorf("%w: пустой email", ErrValidation)
	}

	pages := 0
	defer func() {
		identityLookupPages.WithLabelValues(config.LookupStrategyScan).Observe(float64(pages))
	}()

	for pages < d.maxPages {
		users, err := d.page(ctx, pages*d.pageSize)
		if err != nil {
			return nil, err
		}
		pages++

		for i := range users {
			if normalizeEmail(users[i].Email) == want {
				return toIdentity(&users[i]), nil
			}
		}

		if len(users) < d.pageSize {
			return nil, ErrNotFound
		}
	}

	d.logger.Warn("Достигнут лимит страниц при поиске identity",
		slog.Int("pages", pages),
		slog.Int("page_size", d.pageSize),
	)
	return nil, ErrNotFound
}

func (d *ScanDirectory) page(ctx context.Context, first int) ([]keycloak.KeycloakUser, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	users, err := d.provider.ListUsers(ctx, first, d.pageSize)
	if err != nil {
		return nil, upstream("список пользователей Keycloak", err)
	}
	return users, nil
}

// SearchDirectory использует фильтр Keycloak email+exact
// и повторно проверяет совпадение на своей стороне.
type SearchDirectory struct {
	provider IdentityProvider
	timeout  time.Duration
	logger   *slog.Logger
}

// NewSearchDirectory создаёт поиск через фильтр Keycloak.
func NewSearchDirectory(provider IdentityProvider, timeout time.Duration, logger *slog.Logger) *SearchDirectory {
	return &SearchDirectory{
		provider: provider,
		timeout:  timeout,
		logger:   logger.With(slog.String("component", "identity_directory"), slog.String("strategy", "search")),
	}
}

func (d *SearchDirectory) FindByEmail(ctx context.Context, email string) (*model.Identity, error) {
	want := normalizeEmail(email)
	if want == "" {
		return nil, fmt.Errorf("%w: пустой email", ErrValidation)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	users, err := d.provider.SearchUsersByEmail(ctx, want)
	identityLookupPages.WithLabelValues(config.LookupStrategySearch).Observe(1)
	if err != nil {
		return nil, upstream("поиск пользователя Keycloak", err)
	}

	for i := range users {
		if normalizeEmail(users[i].Email) == want {
			return toIdentity(&users[i]), nil
		}
	}
	return nil, ErrNotFound
}
