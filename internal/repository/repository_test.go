package repository

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bigkaa/fleetops/identity-admin/internal/config"
	"github.com/bigkaa/fleetops/identity-admin/internal/database"
	"github.com/bigkaa/fleetops/identity-admin/internal/domain/model"
)

// setupTestDB запускает PostgreSQL контейнер и применяет миграции.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("fleetops_test"),
		postgres.WithUsername("fleetops"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	t.Setenv("IA_DB_HOST", host)
	t.Setenv("IA_DB_PORT", port.Port())
	t.Setenv("IA_DB_NAME", "fleetops_test")
	t.Setenv("IA_DB_USER", "fleetops")
	t.Setenv("IA_DB_PASSWORD", "test-password")
	t.Setenv("IA_DB_SSL_MODE", "disable")
	t.Setenv("IA_KEYCLOAK_URL", "http://localhost:8080")
	t.Setenv("IA_KEYCLOAK_CLIENT_ID", "test")
	t.Setenv("IA_KEYCLOAK_CLIENT_SECRET", "test")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Ошибка миграций: %v", err)
	}

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	return pool
}

func strPtr(s string) *string { return &s }

// --- Тесты ProfileRepository ---

func TestProfileCRUD(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewProfileRepository(pool)

	orgID := uuid.New().String()
	p := &model.Profile{
		Email:          "A@x.com",
		FirstName:      "Анна",
		LastName:       "Петрова",
		Role:           "dispatcher",
		OrganizationID: &orgID,
	}

	// Create
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	if p.ID == "" || p.CreatedAt.IsZero() {
		t.Fatal("ID или CreatedAt не установлены")
	}

	// Дубликат email без учёта регистра
	dup := &model.Profile{Email: "a@X.com", Role: "driver"}
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Errorf("Create() дубликата: ожидали ErrConflict, получили %v", err)
	}

	// GetByEmail
	got, err := repo.GetByEmail(ctx, " a@x.COM ")
	if err != nil {
		t.Fatalf("GetByEmail() ошибка: %v", err)
	}
	if got.ID != p.ID || got.OrgID() != orgID {
		t.Errorf("GetByEmail() = %+v", got)
	}

	// GetByID с некорректным UUID
	if _, err := repo.GetByID(ctx, "not-a-uuid"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID(not-a-uuid): ожидали ErrNotFound, получили %v", err)
	}

	// GetByIdentityOrID по ID профиля (связь не записана)
	got, err = repo.GetByIdentityOrID(ctx, p.ID)
	if err != nil || got.ID != p.ID {
		t.Fatalf("GetByIdentityOrID(id) = %v, %v", got, err)
	}

	// LinkIdentity
	if err := repo.LinkIdentity(ctx, p.ID, "kc-123"); err != nil {
		t.Fatalf("LinkIdentity() ошибка: %v", err)
	}
	got, err = repo.GetByIdentityOrID(ctx, "kc-123")
	if err != nil {
		t.Fatalf("GetByIdentityOrID(kc-123) ошибка: %v", err)
	}
	if got.ID != p.ID || !got.MustChangePassword || got.LinkedIdentityID() != "kc-123" {
		t.Errorf("после LinkIdentity: %+v", got)
	}

	// SetMustChangePassword
	if err := repo.SetMustChangePassword(ctx, p.ID, false); err != nil {
		t.Fatalf("SetMustChangePassword() ошибка: %v", err)
	}
	got, _ = repo.GetByID(ctx, p.ID)
	if got.MustChangePassword {
		t.Error("must_change_password должен быть false")
	}

	// Delete
	if err := repo.Delete(ctx, p.ID); err != nil {
		t.Fatalf("Delete() ошибка: %v", err)
	}
	if _, err := repo.GetByID(ctx, p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("После Delete ожидали ErrNotFound, получили: %v", err)
	}
	if err := repo.Delete(ctx, p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Повторный Delete: ожидали ErrNotFound, получили: %v", err)
	}
}

func TestProfilePrepareReset(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewProfileRepository(pool)

	actor := &model.Profile{Email: "admin@x.com", Role: "admin", IdentityID: strPtr("kc-admin")}
	target := &model.Profile{Email: "driver@x.com", Role: "driver"}
	for _, p := range []*model.Profile{actor, target} {
		if err := repo.Create(ctx, p); err != nil {
			t.Fatalf("Create() ошибка: %v", err)
		}
	}

	snap, err := repo.PrepareReset(ctx, PrepareResetQuery{
		TargetEmail:  "DRIVER@x.com",
		ActorSubject: "kc-admin",
	})
	if err != nil {
		t.Fatalf("PrepareReset() ошибка: %v", err)
	}
	if snap.Target == nil || snap.Target.ID != target.ID {
		t.Errorf("Target = %+v", snap.Target)
	}
	if snap.Actor == nil || snap.Actor.ID != actor.ID {
		t.Errorf("Actor = %+v", snap.Actor)
	}

	// Цель и субъект не найдены — не ошибка, а пустой снимок
	snap, err = repo.PrepareReset(ctx, PrepareResetQuery{
		TargetID:     uuid.New().String(),
		ActorSubject: "kc-unknown",
	})
	if err != nil {
		t.Fatalf("PrepareReset() ошибка: %v", err)
	}
	if snap.Target != nil || snap.Actor != nil {
		t.Errorf("ожидался пустой снимок, получен %+v", snap)
	}

	// Внутри существующей транзакции
	tx, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin() ошибка: %v", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck
	snap, err = NewProfileRepository(tx).PrepareReset(ctx, PrepareResetQuery{TargetID: target.ID})
	if err != nil || snap.Target == nil {
		t.Fatalf("PrepareReset() в транзакции: %+v, %v", snap, err)
	}
}

// --- Тесты OperationLogRepository ---

func TestOperationLogAppendList(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewOperationLogRepository(pool)

	entries := []*model.OperationLogEntry{
		{
			ActorMethod: string(model.AuthMethodSecret),
			Action:      model.ActionProvisionIdentity,
			TargetID:    "p1",
			Metadata:    map[string]any{"created": true},
			Outcome:     model.OutcomeSuccess,
		},
		{
			ActorID:     "kc-admin",
			ActorMethod: string(model.AuthMethodToken),
			Action:      model.ActionResetPassword,
			TargetID:    "p2",
			Outcome:     model.OutcomeRejected,
			Error:       model.ReasonCannotResetHigherRole,
		},
	}
	for _, e := range entries {
		if err := repo.Append(ctx, e); err != nil {
			t.Fatalf("Append() ошибка: %v", err)
		}
		if e.ID == "" || e.CreatedAt.IsZero() {
			t.Fatal("ID или CreatedAt не установлены")
		}
	}

	all, err := repo.List(ctx, model.OperationLogFilter{}, 10, 0)
	if err != nil {
		t.Fatalf("List() ошибка: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("List() вернул %d записей, хотели 2", len(all))
	}

	action := model.ActionResetPassword
	filtered, err := repo.List(ctx, model.OperationLogFilter{Action: &action}, 10, 0)
	if err != nil {
		t.Fatalf("List(action) ошибка: %v", err)
	}
	if len(filtered) != 1 || filtered[0].ActorID != "kc-admin" || filtered[0].Error != model.ReasonCannotResetHigherRole {
		t.Errorf("List(action) = %+v", filtered)
	}

	target := "p1"
	count, err := repo.Count(ctx, model.OperationLogFilter{TargetID: &target})
	if err != nil {
		t.Fatalf("Count() ошибка: %v", err)
	}
	if count != 1 {
		t.Errorf("Count() = %d, хотели 1", count)
	}
}

// TestBuildWhere проверяет построение условий выборки журнала.
func TestBuildWhere(t *testing.T) {
	action := "reset_password"
	target := "p1"

	tests := []struct {
		name      string
		filter    model.OperationLogFilter
		wantWhere string
		wantArgs  int
	}{
		{name: "без фильтра", filter: model.OperationLogFilter{}, wantWhere: "", wantArgs: 0},
		{name: "action", filter: model.OperationLogFilter{Action: &action}, wantWhere: "WHERE action = $1", wantArgs: 1},
		{
			name:      "action и target",
			filter:    model.OperationLogFilter{Action: &action, TargetID: &target},
			wantWhere: "WHERE action = $1 AND target_id = $2",
			wantArgs:  2,
		},
		{name: "target", filter: model.OperationLogFilter{TargetID: &target}, wantWhere: "WHERE target_id = $1", wantArgs: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			where, args := buildWhere(tt.filter)
			if where != tt.wantWhere {
				t.Errorf("where = %q, хотели %q", where, tt.wantWhere)
			}
			if len(args) != tt.wantArgs {
				t.Errorf("len(args) = %d, хотели %d", len(args), tt.wantArgs)
			}
		})
	}
}

// TestUUIDParam проверяет фильтрацию некорректных UUID.
func TestUUIDParam(t *testing.T) {
	if uuidParam("kc-123") != nil {
		t.Error("uuidParam(kc-123) должен вернуть nil")
	}
	id := uuid.New().String()
	if p := uuidParam(id); p == nil || *p != id {
		t.Errorf("uuidParam(%s) = %v", id, p)
	}
}
