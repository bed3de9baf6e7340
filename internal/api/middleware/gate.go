// gate.go — авторизация административных операций.
// Запрос допускается либо по общему секрету (только для разрешённых
// секрету операций), либо по bearer-токену вызывающего, чей профиль
// имеет роль из списка допущенных. Проверка ничего не изменяет.
package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bigkaa/fleetops/identity-admin/internal/domain/model"
	"github.com/bigkaa/fleetops/identity-admin/internal/domain/rbac"
	"github.com/bigkaa/fleetops/identity-admin/internal/repository"
	"github.com/bigkaa/fleetops/identity-admin/internal/service"
)

// SubjectVerifier проверяет учётные данные запроса и возвращает subject.
type SubjectVerifier interface {
	Verify(r *http.Request) (string, error)
}

// ProfileLookup ищет профиль вызывающего по subject токена.
// Реализуется repository.ProfileRepository.
type ProfileLookup interface {
	GetByIdentityOrID(ctx context.Context, subject string) (*model.Profile, error)
}

// GateConfig — параметры Gate.
type GateConfig struct {
	// Secrets — действующие общие секреты: текущий и предыдущие на время ротации
	Secrets []string
	// SecretActions — операции, разрешённые по секрету
	SecretActions []string
	AllowedRoles  rbac.AllowList
	// Timeout — таймаут чтения профиля вызывающего
	Timeout time.Duration
}

// Gate — авторизация административных операций.
type Gate struct {
	verifier      SubjectVerifier
	profiles      ProfileLookup
	secrets       [][]byte
	secretActions map[string]bool
	allowed       rbac.AllowList
	timeout       time.Duration
	logger        *slog.Logger
}

// NewGate создаёт Gate.
func NewGate(verifier SubjectVerifier, profiles ProfileLookup, cfg GateConfig, logger *slog.Logger) *Gate {
	g := &Gate{
		verifier:      verifier,
		profiles:      profiles,
		secretActions: make(map[string]bool, len(cfg.SecretActions)),
		allowed:       cfg.AllowedRoles,
		timeout:       cfg.Timeout,
		logger:        logger.With(slog.String("component", "gate")),
	}
	for _, s := range cfg.Secrets {
		if s != "" {
			g.secrets = append(g.secrets, []byte(s))
		}
	}
	for _, a := range cfg.SecretActions {
		g.secretActions[a] = true
	}
	return g
}

// matchSecret сравнивает секрет со всеми действующими за постоянное время.
func (g *Gate) matchSecret(candidate string) bool {
	c := []byte(candidate)
	matched := 0
	for _, s := range g.secrets {
		matched |= subtle.ConstantTimeCompare(c, s)
	}
	return matched == 1
}

// Authorize проверяет право на операцию action.
// adminSecret — секрет из тела запроса (может быть пустым).
// Ошибки: service.ErrUnauthorized, service.ErrForbidden, *service.UpstreamError.
func (g *Gate) Authorize(r *http.Request, action, adminSecret string) (model.AuthorizationContext, error) {
	if adminSecret != "" && g.matchSecret(adminSecret) {
		if !g.secretActions[action] {
			g.logger.Warn("Секрет не разрешает операцию",
				slog.String("action", action),
				slog.String("remote_addr", r.RemoteAddr),
			)
			return model.AuthorizationContext{}, fmt.Errorf("%w: операция %s недоступна по секрету", service.ErrForbidden, action)
		}
		return model.AuthorizationContext{Method: model.AuthMethodSecret}, nil
	}

	subject, err := g.verifier.Verify(r)
	if err != nil {
		if adminSecret != "" {
			g.logger.Warn("Неверный административный секрет",
				slog.String("action", action),
				slog.String("remote_addr", r.RemoteAddr),
			)
		}
		return model.AuthorizationContext{}, fmt.Errorf("%w: %v", service.ErrUnauthorized, err)
	}

	ctx, cancel := context.WithTimeout(r.Context(), g.timeout)
	defer cancel()

	profile, err := g.profiles.GetByIdentityOrID(ctx, subject)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return model.AuthorizationContext{}, fmt.Errorf("%w: профиль вызывающего не найден", service.ErrForbidden)
	case err != nil:
		return model.AuthorizationContext{}, &service.UpstreamError{Op: "чтение профиля вызывающего", Err: err}
	}

	if !g.allowed.Allows(profile.Role) {
		g.logger.Info("Роль вызывающего не допущена",
			slog.String("subject", subject),
			slog.String("role", profile.Role),
			slog.String("action", action),
		)
		return model.AuthorizationContext{}, fmt.Errorf("%w: роль %s не допущена к операции", service.ErrForbidden, profile.Role)
	}

	return model.AuthorizationContext{
		Method:              model.AuthMethodToken,
		ActorID:             subject,
		ActorRole:           profile.Role,
		ActorOrganizationID: profile.OrgID(),
	}, nil
}
