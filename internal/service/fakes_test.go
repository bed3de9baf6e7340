package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/fleetops/identity-admin/internal/domain/model"
	"github.com/bigkaa/fleetops/identity-admin/internal/keycloak"
	"github.com/bigkaa/fleetops/identity-admin/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeProvider — Keycloak в памяти. Email уникален, дубликат даёт 409.
type fakeProvider struct {
	mu        sync.Mutex
	users     []keycloak.KeycloakUser
	passwords map[string]string
	nextID    int

	listCalls   int
	searchCalls int
	createCalls int
	resetCalls  int

	listErr   error
	createErr error
	resetErr  error
	// createBarrier синхронизирует параллельные CreateUser перед вставкой
	createBarrier *sync.WaitGroup
	// blockCreate — CreateUser ждёт отмены контекста
	blockCreate bool
}

func newFakeProvider(emails ...string) *fakeProvider {
	f := &fakeProvider{passwords: map[string]string{}}
	for _, e := range emails {
		f.addUser(e)
	}
	return f
}

// addUser добавляет пользователя без блокировки.
func (f *fakeProvider) addUser(email string) string {
	f.nextID++
	id := fmt.Sprintf("kc-%d", f.nextID)
	f.users = append(f.users, keycloak.KeycloakUser{
		ID:       id,
		Username: strings.ToLower(email),
		Email:    email,
		Enabled:  true,
	})
	return id
}

func (f *fakeProvider) countByEmail(email string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, u := range f.users {
		if strings.EqualFold(u.Email, email) {
			n++
		}
	}
	return n
}

func (f *fakeProvider) password(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.passwords[id]
}

func (f *fakeProvider) ListUsers(_ context.Context, first, max int) ([]keycloak.KeycloakUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	if first >= len(f.users) {
		return []keycloak.KeycloakUser{}, nil
	}
	end := first + max
	if end > len(f.users) {
		end = len(f.users)
	}
	return append([]keycloak.KeycloakUser(nil), f.users[first:end]...), nil
}

func (f *fakeProvider) SearchUsersByEmail(_ context.Context, email string) ([]keycloak.KeycloakUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []keycloak.KeycloakUser
	for _, u := range f.users {
		if strings.EqualFold(u.Email, email) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeProvider) GetUser(_ context.Context, id string) (*keycloak.KeycloakUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.ID == id {
			u := u
			return &u, nil
		}
	}
	return nil, &keycloak.APIError{Op: "GetUser", StatusCode: http.StatusNotFound, Body: `{"error":"User not found"}`}
}

func (f *fakeProvider) CreateUser(ctx context.Context, u keycloak.NewUser) (string, error) {
	if f.createBarrier != nil {
		f.createBarrier.Done()
		f.createBarrier.Wait()
	}
	if f.blockCreate {
		<-ctx.Done()
		return "", ctx.Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		return "", f.createErr
	}
	for _, existing := range f.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return "", &keycloak.APIError{Op: "CreateUser", StatusCode: http.StatusConflict,
				Body: `{"errorMessage":"User exists with same email"}`}
		}
	}
	id := f.addUser(u.Email)
	f.passwords[id] = u.Password
	return id, nil
}

func (f *fakeProvider) ResetPassword(_ context.Context, id, password string, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resetCalls++
	if f.resetErr != nil {
		return f.resetErr
	}
	for _, u := range f.users {
		if u.ID == id {
			f.passwords[id] = password
			return nil
		}
	}
	return &keycloak.APIError{Op: "ResetPassword", StatusCode: http.StatusNotFound}
}

// fakeProfiles — хранилище профилей в памяти.
type fakeProfiles struct {
	mu       sync.Mutex
	profiles map[string]*model.Profile

	// mutations — число изменяющих вызовов (Create, Delete, Set*, Link*)
	mutations int

	createErr error
	deleteErr error
	setErr    error
	linkErr   error
}

func newFakeProfiles(profiles ...*model.Profile) *fakeProfiles {
	f := &fakeProfiles{profiles: map[string]*model.Profile{}}
	for _, p := range profiles {
		f.profiles[p.ID] = p
	}
	return f
}

func (f *fakeProfiles) get(id string) *model.Profile {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[id]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

func (f *fakeProfiles) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.profiles)
}

func (f *fakeProfiles) mutationCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mutations
}

func (f *fakeProfiles) Create(_ context.Context, p *model.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mutations++
	if f.createErr != nil {
		return f.createErr
	}
	for _, existing := range f.profiles {
		if strings.EqualFold(existing.Email, p.Email) {
			return fmt.Errorf("%w: email", repository.ErrConflict)
		}
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	f.profiles[p.ID] = &cp
	return nil
}

func (f *fakeProfiles) GetByID(_ context.Context, id string) (*model.Profile, error) {
	if p := f.get(id); p != nil {
		return p, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeProfiles) GetByEmail(_ context.Context, email string) (*model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byEmail(email)
}

func (f *fakeProfiles) byEmail(email string) (*model.Profile, error) {
	for _, p := range f.profiles {
		if strings.EqualFold(p.Email, strings.TrimSpace(email)) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeProfiles) GetByIdentityOrID(_ context.Context, subject string) (*model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bySubject(subject)
}

func (f *fakeProfiles) bySubject(subject string) (*model.Profile, error) {
	for _, p := range f.profiles {
		if p.IdentityID != nil && *p.IdentityID == subject {
			cp := *p
			return &cp, nil
		}
	}
	if p, ok := f.profiles[subject]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeProfiles) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mutations++
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.profiles[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.profiles, id)
	return nil
}

func (f *fakeProfiles) SetMustChangePassword(_ context.Context, id string, value bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mutations++
	if f.setErr != nil {
		return f.setErr
	}
	p, ok := f.profiles[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.MustChangePassword = value
	return nil
}

func (f *fakeProfiles) LinkIdentity(_ context.Context, id, identityID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mutations++
	if f.linkErr != nil {
		return f.linkErr
	}
	p, ok := f.profiles[id]
	if !ok {
		return repository.ErrNotFound
	}
	for otherID, other := range f.profiles {
		if otherID != id && other.IdentityID != nil && *other.IdentityID == identityID {
			return repository.ErrConflict
		}
	}
	p.IdentityID = &identityID
	p.MustChangePassword = true
	return nil
}

func (f *fakeProfiles) PrepareReset(_ context.Context, q repository.PrepareResetQuery) (*repository.ResetSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	snap := &repository.ResetSnapshot{}
	if q.TargetID != "" {
		if p, ok := f.profiles[q.TargetID]; ok {
			cp := *p
			snap.Target = &cp
		}
	} else if p, err := f.byEmail(q.TargetEmail); err == nil {
		snap.Target = p
	}
	if q.ActorSubject != "" {
		if p, err := f.bySubject(q.ActorSubject); err == nil {
			snap.Actor = p
		}
	}
	return snap, nil
}

func newProfile(id, email, role string, orgID *string) *model.Profile {
	return &model.Profile{ID: id, Email: email, Role: role, OrganizationID: orgID}
}

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }
