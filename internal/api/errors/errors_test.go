package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bigkaa/fleetops/identity-admin/internal/keycloak"
	"github.com/bigkaa/fleetops/identity-admin/internal/service"
)

func TestClassify(t *testing.T) {
	kcErr := &keycloak.APIError{Op: "CreateUser", StatusCode: 400, Body: "invalidPassword"}

	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantCode    string
		wantDetails string
		wantReason  string
	}{
		{"validation", fmt.Errorf("%w: email обязателен", service.ErrValidation), 400, CodeValidationError, "", ""},
		{"unauthorized", service.ErrUnauthorized, 401, CodeUnauthorized, "", ""},
		{"forbidden", fmt.Errorf("%w: роль", service.ErrForbidden), 403, CodeForbidden, "", ""},
		{"not found", fmt.Errorf("%w: профиль p1", service.ErrNotFound), 404, CodeNotFound, "", ""},
		{"conflict", fmt.Errorf("%w: email", service.ErrConflict), 409, CodeConflict, "", ""},
		{"prepare rejected", &service.PrepareRejectedError{Reason: "organization_mismatch"}, 422, CodePrepareRejected, "", "organization_mismatch"},
		{"upstream", &service.UpstreamError{Op: "создание identity", Err: kcErr}, 500, CodeUpstreamFailure, "invalidPassword", ""},
		{"unknown", errors.New("boom"), 500, CodeInternalError, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := Classify(tt.err)
			if status != tt.wantStatus {
				t.Errorf("статус: ожидался %d, получен %d", tt.wantStatus, status)
			}
			if body.Code != tt.wantCode {
				t.Errorf("код: ожидался %s, получен %s", tt.wantCode, body.Code)
			}
			if body.Details != tt.wantDetails {
				t.Errorf("details: ожидалось %q, получено %q", tt.wantDetails, body.Details)
			}
			if body.Reason != tt.wantReason {
				t.Errorf("reason: ожидалось %q, получено %q", tt.wantReason, body.Reason)
			}
			if body.Error == "" {
				t.Error("пустое сообщение об ошибке")
			}
		})
	}
}

func TestFromService_Body(t *testing.T) {
	rec := httptest.NewRecorder()
	FromService(rec, &service.PrepareRejectedError{Reason: "target_not_found"})

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("ожидался 422, получен %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: %s", ct)
	}

	var raw map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&raw); err != nil {
		t.Fatal(err)
	}
	if raw["reason"] != "target_not_found" || raw["code"] != CodePrepareRejected {
		t.Errorf("неожиданное тело: %v", raw)
	}
	if _, ok := raw["details"]; ok {
		t.Error("details не должно присутствовать")
	}
}
