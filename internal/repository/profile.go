package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/fleetops/identity-admin/internal/domain/model"
)

// ProfileRepository — доступ к таблице profiles.
type ProfileRepository interface {
	// Create вставляет профиль. Дубликат email (без учёта регистра) — ErrConflict.
	Create(ctx context.Context, p *model.Profile) error
	GetByID(ctx context.Context, id string) (*model.Profile, error)
	// GetByEmail ищет профиль по email без учёта регистра.
	GetByEmail(ctx context.Context, email string) (*model.Profile, error)
	// GetByIdentityOrID ищет профиль по связанному identity ID или по ID профиля.
	GetByIdentityOrID(ctx context.Context, subject string) (*model.Profile, error)
	// Delete удаляет профиль (компенсирующее действие создания пользователя).
	Delete(ctx context.Context, id string) error
	SetMustChangePassword(ctx context.Context, id string, value bool) error
	// LinkIdentity записывает ID identity и выставляет must_change_password.
	LinkIdentity(ctx context.Context, id, identityID string) error
	// PrepareReset читает согласованный снимок цели и субъекта сброса пароля.
	PrepareReset(ctx context.Context, q PrepareResetQuery) (*ResetSnapshot, error)
}

// PrepareResetQuery — параметры чтения снимка для сброса пароля.
// Цель задаётся ровно одним из TargetID или TargetEmail.
type PrepareResetQuery struct {
	TargetID    string
	TargetEmail string
	// ActorSubject — subject токена вызывающего; пусто при авторизации по секрету.
	ActorSubject string
}

// ResetSnapshot — цель и субъект сброса, прочитанные в одной транзакции.
// Target или Actor равны nil, если запись не найдена.
type ResetSnapshot struct {
	Target *model.Profile
	Actor  *model.Profile
}

type profileRepo struct {
	db DBTX
}

// NewProfileRepository создаёт репозиторий профилей.
func NewProfileRepository(db DBTX) ProfileRepository {
	return &profileRepo{db: db}
}

const profileColumns = `id, email, first_name, last_name, role, organization_id,
	must_change_password, identity_id, created_at, updated_at`

func scanProfile(row pgx.Row) (*model.Profile, error) {
	p := &model.Profile{}
	err := row.Scan(
		&p.ID, &p.Email, &p.FirstName, &p.LastName, &p.Role, &p.OrganizationID,
		&p.MustChangePassword, &p.IdentityID, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// uuidParam возвращает s, если это корректный UUID, иначе nil (NULL в запросе).
func uuidParam(s string) *string {
	if _, err := uuid.Parse(s); err != nil {
		return nil
	}
	return &s
}

func (r *profileRepo) Create(ctx context.Context, p *model.Profile) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}

	query := `
		INSERT INTO profiles (id, email, first_name, last_name, role, organization_id,
			must_change_password, identity_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		p.ID, strings.TrimSpace(p.Email), p.FirstName, p.LastName, p.Role, p.OrganizationID,
		p.MustChangePassword, p.IdentityID,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: профиль с email %s уже существует", ErrConflict, p.Email)
		}
		return fmt.Errorf("ошибка создания профиля: %w", err)
	}
	return nil
}

func (r *profileRepo) GetByID(ctx context.Context, id string) (*model.Profile, error) {
	return getProfileByID(ctx, r.db, id)
}

func getProfileByID(ctx context.Context, db DBTX, id string) (*model.Profile, error) {
	param := uuidParam(id)
	if param == nil {
		return nil, ErrNotFound
	}

	query := fmt.Sprintf(`SELECT %s FROM profiles WHERE id = $1`, profileColumns)
	p, err := scanProfile(db.QueryRow(ctx, query, *param))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения профиля: %w", err)
	}
	return p, nil
}

func (r *profileRepo) GetByEmail(ctx context.Context, email string) (*model.Profile, error) {
	return getProfileByEmail(ctx, r.db, email)
}

func getProfileByEmail(ctx context.Context, db DBTX, email string) (*model.Profile, error) {
	query := fmt.Sprintf(`SELECT %s FROM profiles WHERE lower(email) = lower($1)`, profileColumns)
	p, err := scanProfile(db.QueryRow(ctx, query, strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения профиля по email: %w", err)
	}
	return p, nil
}

func (r *profileRepo) GetByIdentityOrID(ctx context.Context, subject string) (*model.Profile, error) {
	return getProfileByIdentityOrID(ctx, r.db, subject)
}

// getProfileByIdentityOrID предпочитает явную связь identity_id совпадению ID профиля.
func getProfileByIdentityOrID(ctx context.Context, db DBTX, subject string) (*model.Profile, error) {
	if subject == "" {
		return nil, ErrNotFound
	}

	query := fmt.Sprintf(`
		SELECT %s FROM profiles
		WHERE identity_id = $1 OR id = $2
		ORDER BY (identity_id IS NOT NULL AND identity_id = $1) DESC
		LIMIT 1`, profileColumns)

	p, err := scanProfile(db.QueryRow(ctx, query, subject, uuidParam(subject)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения профиля по subject: %w", err)
	}
	return p, nil
}

func (r *profileRepo) Delete(ctx context.Context, id string) error {
	param := uuidParam(id)
	if param == nil {
		return ErrNotFound
	}

	tag, err := r.db.Exec(ctx, `DELETE FROM profiles WHERE id = $1`, *param)
	if err != nil {
		return fmt.Errorf("ошибка удаления профиля: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *profileRepo) SetMustChangePassword(ctx context.Context, id string, value bool) error {
	param := uuidParam(id)
	if param == nil {
		return ErrNotFound
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE profiles SET must_change_password = $2 WHERE id = $1`, *param, value)
	if err != nil {
		return fmt.Errorf("ошибка обновления must_change_password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *profileRepo) LinkIdentity(ctx context.Context, id, identityID string) error {
	param := uuidParam(id)
	if param == nil {
		return ErrNotFound
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE profiles SET identity_id = $2, must_change_password = TRUE WHERE id = $1`,
		*param, identityID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: identity %s связан с другим профилем", ErrConflict, identityID)
		}
		return fmt.Errorf("ошибка связывания профиля с identity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// PrepareReset выполняется в read-only транзакции с уровнем REPEATABLE READ:
// цель и субъект читаются из одного снимка данных.
// Если репозиторий уже работает внутри транзакции, используется она.
func (r *profileRepo) PrepareReset(ctx context.Context, q PrepareResetQuery) (*ResetSnapshot, error) {
	beginner, ok := r.db.(TxBeginner)
	if !ok {
		return loadResetSnapshot(ctx, r.db, q)
	}

	var snap *ResetSnapshot
	opts := pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
	err := NewTxRunner(beginner).RunInTxWithOptions(ctx, opts, func(tx pgx.Tx) error {
		var err error
		snap, err = loadResetSnapshot(ctx, tx, q)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func loadResetSnapshot(ctx context.Context, db DBTX, q PrepareResetQuery) (*ResetSnapshot, error) {
	snap := &ResetSnapshot{}

	var (
		target *model.Profile
		err    error
	)
	if q.TargetID != "" {
		target, err = getProfileByID(ctx, db, q.TargetID)
	} else {
		target, err = getProfileByEmail(ctx, db, q.TargetEmail)
	}
	switch {
	case err == nil:
		snap.Target = target
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	if q.ActorSubject != "" {
		actor, err := getProfileByIdentityOrID(ctx, db, q.ActorSubject)
		switch {
		case err == nil:
			snap.Actor = actor
		case !errors.Is(err, ErrNotFound):
			return nil, err
		}
	}

	return snap, nil
}
